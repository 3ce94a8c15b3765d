// Package reconcile decides, per language code, what has to happen on the
// server so that it matches the locale catalogue and the plural map.
//
// The functions here never write anything. They turn the inputs and a
// snapshot of the server into a Plan; the apply package carries it out.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/minios-linux/langsync/langcode"
	"github.com/minios-linux/langsync/pluralrule"
	"github.com/minios-linux/langsync/source"
	"github.com/minios-linux/langsync/weblate"
)

// Kind is the outcome for one code.
type Kind string

const (
	Create Kind = "create"
	Update Kind = "update"
	Skip   Kind = "skip"
	Delete Kind = "delete"
)

// Action is the decision for one code.
type Action struct {
	Kind Kind `json:"kind" yaml:"kind"`
	// Code is the code the server operation is addressed to. For updates and
	// deletes it is the server's own code, not the normalized one.
	Code string `json:"code" yaml:"code"`
	// Target is the catalogue code the record was matched to, if any.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// MatchedBy is "code" or "alias(<code>)".
	MatchedBy string `json:"matched_by,omitempty" yaml:"matched_by,omitempty"`

	CurrentName string `json:"current_name,omitempty" yaml:"current_name,omitempty"`
	WantName    string `json:"want_name,omitempty" yaml:"want_name,omitempty"`
	SetName     bool   `json:"set_name,omitempty" yaml:"set_name,omitempty"`

	CurrentRule pluralrule.Rule `json:"current_plural,omitzero" yaml:"current_plural,omitempty"`
	WantRule    pluralrule.Rule `json:"want_plural,omitzero" yaml:"want_plural,omitempty"`
	SetPlural   bool            `json:"set_plural,omitempty" yaml:"set_plural,omitempty"`
	// PluralFrom is the key the wanted rule was resolved from.
	PluralFrom string `json:"plural_from,omitempty" yaml:"plural_from,omitempty"`

	// Direction is only ever set on Create.
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Patch returns the partial update for an Update action.
func (a Action) Patch() weblate.LanguagePatch {
	var p weblate.LanguagePatch
	if a.SetName {
		p.Name = weblate.Some(a.WantName)
	}
	if a.SetPlural {
		p.Plural = weblate.Some(a.WantRule)
	}
	return p
}

// CreateRequest returns the payload for a Create action.
func (a Action) CreateRequest() weblate.CreateRequest {
	return weblate.CreateRequest{
		Code:      a.Code,
		Name:      a.WantName,
		Plural:    a.WantRule,
		Direction: a.Direction,
	}
}

// Failure is a per-code problem found while planning, before any write.
type Failure struct {
	Code   string `json:"code" yaml:"code"`
	Op     string `json:"op" yaml:"op"`
	Status int    `json:"status,omitempty" yaml:"status,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Plan is the ordered list of actions for a run.
type Plan struct {
	Actions  []Action  `json:"actions" yaml:"actions"`
	Failures []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Count returns the number of actions of kind k.
func (p *Plan) Count(k Kind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// Input is everything a reconcile run looks at.
type Input struct {
	PluralMap source.PluralMap
	Catalogue *source.Catalogue
	// Remote is the server snapshot keyed by the server's own code.
	Remote map[string]weblate.Language
	// Exclude holds normalized codes that are never deleted.
	Exclude map[string]bool
	// CataloguePlurals lets a catalogue entry's own pluralForms serve as the
	// last plural fallback.
	CataloguePlurals bool
}

// ExcludeSet normalizes codes into a set usable as Input.Exclude.
func ExcludeSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		for _, f := range strings.FieldsFunc(c, func(r rune) bool { return r == ',' || r == ' ' }) {
			if n := langcode.Normalize(f); n != "" {
				set[n] = true
			}
		}
	}
	return set
}

// Resolution is a plural rule together with where it came from.
type Resolution struct {
	Rule pluralrule.Rule
	// From is the plural map key (or "catalogue") the rule was taken from.
	From string
	// Inherited is true when the rule came from the base language.
	Inherited bool
}

// Resolve finds the plural rule for code: the plural map entry for the code,
// else the entry for its base language, else (when enabled) the catalogue's
// own pluralForms. An entry that exists but does not parse ends the search.
func (in *Input) Resolve(code string) (Resolution, bool) {
	code = langcode.Normalize(code)
	if code == "" {
		return Resolution{}, false
	}

	if raw := in.PluralMap[code]; raw != "" {
		rule, ok := pluralrule.Parse(raw)
		return Resolution{Rule: rule, From: code}, ok
	}
	if base := langcode.Base(code); base != code {
		if raw := in.PluralMap[base]; raw != "" {
			rule, ok := pluralrule.Parse(raw)
			return Resolution{Rule: rule, From: base, Inherited: true}, ok
		}
	}
	if in.CataloguePlurals && in.Catalogue != nil {
		if loc, found := in.Catalogue.Locales[code]; found && loc.PluralForms != "" {
			rule, ok := pluralrule.Parse(loc.PluralForms)
			return Resolution{Rule: rule, From: "catalogue"}, ok
		}
	}
	return Resolution{}, false
}

func (in *Input) catalogue() map[string]source.Locale {
	if in.Catalogue == nil {
		return nil
	}
	return in.Catalogue.Locales
}

// match finds the catalogue code a remote record belongs to: its own code,
// else the first of its aliases present in the catalogue, in the order the
// server lists them.
func (in *Input) match(lang weblate.Language) (target, matchedBy string) {
	locales := in.catalogue()
	if code := langcode.Normalize(lang.Code); code != "" {
		if _, ok := locales[code]; ok {
			return code, "code"
		}
	}
	for _, alias := range lang.Aliases {
		a := langcode.Normalize(alias)
		if _, ok := locales[a]; ok && a != "" {
			return a, "alias(" + a + ")"
		}
	}
	return "", ""
}

// diff compares a matched remote record with what the catalogue and the plural
// map want and returns an Update or Skip action.
func (in *Input) diff(lang weblate.Language, target, matchedBy string) Action {
	a := Action{
		Code:        lang.Code,
		Target:      target,
		MatchedBy:   matchedBy,
		CurrentName: strings.TrimSpace(lang.Name),
		CurrentRule: lang.Plural,
	}

	if loc, ok := in.catalogue()[target]; ok {
		a.WantName = loc.Name
	}
	a.SetName = a.WantName != "" && a.WantName != a.CurrentName

	res, ok := in.Resolve(target)
	if !ok {
		res, ok = in.Resolve(lang.Code)
	}
	if ok {
		a.WantRule = res.Rule
		a.PluralFrom = res.From
		current := pluralrule.Rule{Count: lang.Plural.Count, Formula: strings.TrimSpace(lang.Plural.Formula)}
		a.SetPlural = !res.Rule.Equal(current)
	}

	switch {
	case a.SetName || a.SetPlural:
		a.Kind = Update
		a.Reason = updateReason(a)
	default:
		a.Kind = Skip
		a.Reason = "up to date"
		if !ok {
			a.Reason = "up to date (no plural rule to compare)"
		}
	}
	return a
}

func updateReason(a Action) string {
	var parts []string
	if a.SetName {
		parts = append(parts, "name")
	}
	if a.SetPlural {
		parts = append(parts, "plural")
	}
	return "change " + strings.Join(parts, "+")
}

func (in *Input) createOrSkip(code string) Action {
	loc := in.catalogue()[code]
	a := Action{Code: code, Target: code, WantName: loc.Name}
	res, ok := in.Resolve(code)
	if !ok {
		a.Kind = Skip
		a.Reason = "no plural rule"
		return a
	}
	a.Kind = Create
	a.WantRule = res.Rule
	a.PluralFrom = res.From
	a.SetName = true
	a.SetPlural = true
	if loc.RTL {
		a.Direction = "rtl"
	}
	a.Reason = "missing on server"
	if res.Inherited {
		a.Reason += ", plural inherited from " + res.From
	}
	return a
}

// Sync computes the full reconcile plan: every remote record is kept and
// updated, protected, or deleted, and every catalogue code the server cannot
// serve is created.
func Sync(in *Input) *Plan {
	plan := &Plan{}

	// Normalized remote codes and aliases, for the creation pass.
	remoteCodes := make(map[string]bool, len(in.Remote))
	aliasOwner := make(map[string]string)

	for _, code := range slices.Sorted(maps.Keys(in.Remote)) {
		norm := langcode.Normalize(code)
		if norm == "" {
			continue
		}
		lang := in.Remote[code]
		remoteCodes[norm] = true
		for _, alias := range lang.Aliases {
			if a := langcode.Normalize(alias); a != "" {
				if _, taken := aliasOwner[a]; !taken {
					aliasOwner[a] = code
				}
			}
		}

		if target, by := in.match(lang); target != "" {
			plan.Actions = append(plan.Actions, in.diff(lang, target, by))
			continue
		}
		if in.Exclude[norm] {
			plan.Actions = append(plan.Actions, Action{Kind: Skip, Code: code, CurrentName: lang.Name, Reason: "excluded"})
			continue
		}
		plan.Actions = append(plan.Actions, Action{Kind: Delete, Code: code, CurrentName: lang.Name, Reason: "not in catalogue"})
	}

	if in.Catalogue == nil {
		return plan
	}
	for _, code := range slices.Sorted(maps.Keys(in.Catalogue.Locales)) {
		if remoteCodes[code] {
			continue
		}
		if owner, ok := aliasOwner[code]; ok {
			plan.Actions = append(plan.Actions, Action{
				Kind:   Skip,
				Code:   code,
				Target: code,
				Reason: "served by alias of " + owner,
			})
			continue
		}
		plan.Actions = append(plan.Actions, in.createOrSkip(code))
	}
	return plan
}

// Getter fetches a single language record.
type Getter interface {
	Get(ctx context.Context, code string) (*weblate.Language, error)
}

// Upsert plans a create-or-update pass over the catalogue only, looking each
// code up on the server one by one. It never deletes. Codes whose lookup
// fails with anything but "not found" are reported as failures.
func Upsert(ctx context.Context, client Getter, in *Input) (*Plan, error) {
	plan := &Plan{}
	if in.Catalogue == nil {
		return plan, nil
	}

	codes := in.Catalogue.Order
	if len(codes) == 0 {
		codes = slices.Sorted(maps.Keys(in.Catalogue.Locales))
	}
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return plan, err
		}
		if _, ok := in.Resolve(code); !ok {
			plan.Actions = append(plan.Actions, Action{Kind: Skip, Code: code, Target: code, Reason: "no plural rule"})
			continue
		}

		lang, err := client.Get(ctx, code)
		switch {
		case errors.Is(err, weblate.ErrNotFound):
			plan.Actions = append(plan.Actions, in.createOrSkip(code))
		case err != nil:
			if ctx.Err() != nil {
				return plan, ctx.Err()
			}
			f := Failure{Code: code, Op: "lookup_failed", Detail: err.Error()}
			var apiErr *weblate.APIError
			if errors.As(err, &apiErr) {
				f.Status = apiErr.StatusCode
				f.Detail = apiErr.Excerpt(300)
			}
			plan.Failures = append(plan.Failures, f)
		default:
			plan.Actions = append(plan.Actions, in.diff(*lang, code, "code"))
		}
	}
	return plan, nil
}

// Prune plans the deletion of every remote language that is not excluded.
// The catalogue and plural map are not consulted. Blank codes are ignored.
func Prune(remote map[string]weblate.Language, exclude map[string]bool) *Plan {
	plan := &Plan{}
	for _, code := range slices.Sorted(maps.Keys(remote)) {
		if langcode.Normalize(code) == "" {
			continue
		}
		a := Action{Code: code, CurrentName: remote[code].Name}
		if exclude[langcode.Normalize(code)] {
			a.Kind = Skip
			a.Reason = "excluded"
		} else {
			a.Kind = Delete
			a.Reason = "prune"
		}
		plan.Actions = append(plan.Actions, a)
	}
	return plan
}

// Describe renders a one-line summary of an action for logs.
func (a Action) Describe() string {
	switch a.Kind {
	case Create:
		return fmt.Sprintf("create %s name=%q plural=(%d, %q) from %s", a.Code, a.WantName, a.WantRule.Count, a.WantRule.Formula, a.PluralFrom)
	case Update:
		var b strings.Builder
		fmt.Fprintf(&b, "update %s [%s]", a.Code, a.MatchedBy)
		if a.SetName {
			fmt.Fprintf(&b, " name: %q -> %q", a.CurrentName, a.WantName)
		}
		if a.SetPlural {
			fmt.Fprintf(&b, " plural: %d/%q -> %d/%q (from %s)", a.CurrentRule.Count, a.CurrentRule.Formula, a.WantRule.Count, a.WantRule.Formula, a.PluralFrom)
		}
		return b.String()
	case Delete:
		return "delete " + a.Code
	default:
		return fmt.Sprintf("skip %s (%s)", a.Code, a.Reason)
	}
}
