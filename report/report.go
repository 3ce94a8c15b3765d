// Package report renders plans and run summaries for the terminal or for
// machines (json, yaml).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/langsync/apply"
	"github.com/minios-linux/langsync/reconcile"
)

// Formats accepted by Plan and Summary.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ValidFormat reports whether f names a supported output format.
func ValidFormat(f string) bool {
	switch f {
	case FormatTable, FormatJSON, FormatYAML, "yml", "":
		return true
	}
	return false
}

// Plan writes the plan in the given format.
func Plan(w io.Writer, plan *reconcile.Plan, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, plan)
	case FormatYAML, "yml":
		return renderYAML(w, plan)
	default:
		return planTable(w, plan)
	}
}

// Summary writes the run summary in the given format. Only the first
// apply.MaxReported failures are listed.
func Summary(w io.Writer, s *apply.Summary, format string) error {
	capped := *s
	capped.Failures = s.Reported()

	switch format {
	case FormatJSON:
		return renderJSON(w, capped)
	case FormatYAML, "yml":
		return renderYAML(w, capped)
	default:
		return summaryTable(w, s)
	}
}

func planTable(w io.Writer, plan *reconcile.Plan) error {
	if len(plan.Actions) == 0 && len(plan.Failures) == 0 {
		_, _ = fmt.Fprintln(w, "(nothing to do)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Action", "Code", "Match", "Name", "Plural", "Note"})

	for _, a := range plan.Actions {
		t.AppendRow(table.Row{
			string(a.Kind),
			a.Code,
			a.MatchedBy,
			nameCell(a),
			pluralCell(a),
			note(a),
		})
	}
	t.Render()

	_, _ = fmt.Fprintf(w, "create %d, update %d, skip %d, delete %d\n",
		plan.Count(reconcile.Create), plan.Count(reconcile.Update),
		plan.Count(reconcile.Skip), plan.Count(reconcile.Delete))

	if len(plan.Failures) > 0 {
		_, _ = fmt.Fprintf(w, "%d lookups failed:\n", len(plan.Failures))
		failureTable(w, plan.Failures)
	}
	return nil
}

func nameCell(a reconcile.Action) string {
	switch {
	case a.Kind == reconcile.Create:
		return a.WantName
	case a.SetName:
		return fmt.Sprintf("%s -> %s", a.CurrentName, a.WantName)
	default:
		return a.CurrentName
	}
}

func pluralCell(a reconcile.Action) string {
	switch {
	case a.Kind == reconcile.Create:
		return fmt.Sprintf("%d: %s", a.WantRule.Count, a.WantRule.Formula)
	case a.SetPlural:
		return fmt.Sprintf("%d: %s -> %d: %s", a.CurrentRule.Count, a.CurrentRule.Formula, a.WantRule.Count, a.WantRule.Formula)
	}
	return ""
}

func note(a reconcile.Action) string {
	parts := []string{a.Reason}
	if a.PluralFrom != "" && a.PluralFrom != a.Target && (a.SetPlural || a.Kind == reconcile.Create) && !strings.Contains(a.Reason, a.PluralFrom) {
		parts = append(parts, "plural from "+a.PluralFrom)
	}
	if a.Direction != "" {
		parts = append(parts, a.Direction)
	}
	return strings.Join(parts, "; ")
}

func summaryTable(w io.Writer, s *apply.Summary) error {
	mode := "dry-run"
	if s.Applied {
		mode = "applied"
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Summary (" + mode + ")")
	t.AppendHeader(table.Row{"Created", "Updated", "Deleted", "Skipped", "Failed"})
	t.AppendRow(table.Row{s.Created, s.Updated, s.Deleted, s.Skipped, s.Failed})
	t.Render()

	if reported := s.Reported(); len(reported) > 0 {
		failureTable(w, reported)
		if more := len(s.Failures) - len(reported); more > 0 {
			_, _ = fmt.Fprintf(w, "... and %d more\n", more)
		}
	}
	return nil
}

// Issue is one problem found by an offline check.
type Issue struct {
	Code    string `json:"code" yaml:"code"`
	Problem string `json:"problem" yaml:"problem"`
}

// Issues writes the result of an offline check.
func Issues(w io.Writer, issues []Issue, format string) error {
	if issues == nil {
		issues = []Issue{}
	}
	switch format {
	case FormatJSON:
		return renderJSON(w, issues)
	case FormatYAML, "yml":
		return renderYAML(w, issues)
	}

	if len(issues) == 0 {
		_, _ = fmt.Fprintln(w, "(no problems)")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Code", "Problem"})
	for _, is := range issues {
		t.AppendRow(table.Row{is.Code, is.Problem})
	}
	t.Render()
	return nil
}

func failureTable(w io.Writer, failures []reconcile.Failure) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Code", "Op", "Status", "Detail"})
	for _, f := range failures {
		status := "-"
		if f.Status != 0 {
			status = fmt.Sprint(f.Status)
		}
		t.AppendRow(table.Row{f.Code, f.Op, status, strings.ReplaceAll(f.Detail, "\n", " ")})
	}
	t.Render()
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
