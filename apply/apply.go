// Package apply carries out a reconcile plan against the server, or only
// counts it in dry-run mode.
package apply

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/minios-linux/langsync/reconcile"
	"github.com/minios-linux/langsync/weblate"
)

const (
	// MaxReported is how many failures Summary.Reported returns.
	MaxReported = 30
	// excerptLen bounds the response body kept per failure.
	excerptLen = 300
)

// Client is the write side of the directory client.
type Client interface {
	Create(ctx context.Context, req weblate.CreateRequest) error
	Patch(ctx context.Context, code string, patch weblate.LanguagePatch) error
	Delete(ctx context.Context, code string) error
}

// Summary is the outcome of a run.
type Summary struct {
	Applied  bool                `json:"applied" yaml:"applied"`
	Created  int                 `json:"created" yaml:"created"`
	Updated  int                 `json:"updated" yaml:"updated"`
	Deleted  int                 `json:"deleted" yaml:"deleted"`
	Skipped  int                 `json:"skipped" yaml:"skipped"`
	Failed   int                 `json:"failed" yaml:"failed"`
	Failures []reconcile.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Reported returns the failures worth printing: at most MaxReported.
func (s *Summary) Reported() []reconcile.Failure {
	if len(s.Failures) > MaxReported {
		return s.Failures[:MaxReported]
	}
	return s.Failures
}

// Executor runs plans. With Apply unset it never calls a mutating method.
type Executor struct {
	Client Client
	Apply  bool
	Logger *zerolog.Logger
}

func (e *Executor) logger() *zerolog.Logger {
	if e.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return e.Logger
}

// Run executes plan in order. A failing action is recorded and the run
// moves on; only a cancelled context stops it early, in which case the
// summary so far is returned together with the context error.
func (e *Executor) Run(ctx context.Context, plan *reconcile.Plan) (*Summary, error) {
	log := e.logger()
	s := &Summary{Applied: e.Apply}
	for _, f := range plan.Failures {
		s.Failed++
		s.Failures = append(s.Failures, f)
	}

	for _, a := range plan.Actions {
		if a.Kind == reconcile.Skip {
			s.Skipped++
			log.Debug().Str("code", a.Code).Str("reason", a.Reason).Msg("skip")
			continue
		}
		if err := ctx.Err(); err != nil {
			return s, err
		}

		if !e.Apply {
			log.Info().Str("code", a.Code).Msg("dry-run: " + a.Describe())
			s.count(a.Kind)
			continue
		}

		err := e.do(ctx, a)
		if err == nil {
			log.Info().Str("code", a.Code).Msg(a.Describe())
			s.count(a.Kind)
			continue
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return s, ctx.Err()
		}

		f := reconcile.Failure{Code: a.Code, Op: string(a.Kind), Detail: err.Error()}
		var apiErr *weblate.APIError
		if errors.As(err, &apiErr) {
			f.Status = apiErr.StatusCode
			f.Detail = apiErr.Excerpt(excerptLen)
		}
		log.Warn().Str("code", a.Code).Str("op", f.Op).Int("status", f.Status).Msg(f.Detail)
		s.Failed++
		s.Failures = append(s.Failures, f)
	}
	return s, nil
}

func (e *Executor) do(ctx context.Context, a reconcile.Action) error {
	switch a.Kind {
	case reconcile.Create:
		return e.Client.Create(ctx, a.CreateRequest())
	case reconcile.Update:
		return e.Client.Patch(ctx, a.Code, a.Patch())
	case reconcile.Delete:
		return e.Client.Delete(ctx, a.Code)
	}
	return nil
}

func (s *Summary) count(k reconcile.Kind) {
	switch k {
	case reconcile.Create:
		s.Created++
	case reconcile.Update:
		s.Updated++
	case reconcile.Delete:
		s.Deleted++
	}
}
