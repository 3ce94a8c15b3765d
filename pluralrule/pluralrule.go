// Package pluralrule parses gettext Plural-Forms strings such as
//
//	nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);
//
// into the (count, formula) pair stored by the translation server.
package pluralrule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/leonelquinteros/gotext/plurals"
)

var (
	npluralsRe = regexp.MustCompile(`(?i)nplurals\s*=\s*(\d+)`)
	formulaRe  = regexp.MustCompile(`(?i)plural\s*=\s*([^;]+)`)
)

// Rule is a plural rule: how many plural categories a language has and the
// C expression selecting one of them for n.
type Rule struct {
	Count   int    `json:"number" yaml:"number"`
	Formula string `json:"formula" yaml:"formula"`
}

// Equal reports whether two rules carry the same count and formula.
func (r Rule) Equal(other Rule) bool {
	return r.Count == other.Count && r.Formula == other.Formula
}

// String renders the rule back in Plural-Forms header form.
func (r Rule) String() string {
	return fmt.Sprintf("nplurals=%d; plural=(%s);", r.Count, r.Formula)
}

// Parse extracts the rule from a Plural-Forms string. Keywords match
// case-insensitively and the trailing ";" is optional. One layer of
// parentheses wrapping the whole formula is removed.
//
// ok is false when either part is missing, nplurals is zero, the formula is
// empty, or its parentheses do not balance. This is a best-effort check; balanced garbage
// is passed through as an opaque formula.
func Parse(s string) (rule Rule, ok bool) {
	s = strings.TrimRight(strings.TrimSpace(s), ";")
	if s == "" {
		return Rule{}, false
	}

	num := npluralsRe.FindStringSubmatch(s)
	form := formulaRe.FindStringSubmatch(s)
	if num == nil || form == nil {
		return Rule{}, false
	}

	count, err := strconv.Atoi(num[1])
	if err != nil || count <= 0 {
		return Rule{}, false
	}

	formula := strings.TrimSpace(form[1])
	if strings.HasPrefix(formula, "(") && strings.HasSuffix(formula, ")") {
		formula = strings.TrimSpace(formula[1 : len(formula)-1])
	}
	formula = strings.TrimSpace(strings.TrimRight(formula, ";"))

	if formula == "" || strings.Count(formula, "(") != strings.Count(formula, ")") {
		return Rule{}, false
	}
	return Rule{Count: count, Formula: formula}, true
}

// maxSample is the largest n evaluated by Check.
const maxSample = 200

// Check compiles the formula with the gettext plural compiler and evaluates
// it for n = 0..200. It fails when the formula does not compile or selects a
// plural index outside [0, Count).
func Check(r Rule) error {
	if r.Count <= 0 {
		return fmt.Errorf("nplurals must be positive, got %d", r.Count)
	}

	expr, err := plurals.Compile(r.Formula)
	if err != nil {
		return fmt.Errorf("compiling %q: %w", r.Formula, err)
	}

	for n := uint32(0); n <= maxSample; n++ {
		if idx := expr.Eval(n); idx < 0 || idx >= r.Count {
			return fmt.Errorf("formula %q selects form %d for n=%d, but nplurals=%d", r.Formula, idx, n, r.Count)
		}
	}
	return nil
}
