// Package source loads the two external inputs of a sync run:
//
//   - the plural map: language code -> Plural-Forms string, supplied by the user
//   - the locale catalogue: the legacy Zanata locales export
//
// Both files come in loosely defined JSON shapes. Each document is first
// classified by its top-level shape and then decoded into one canonical
// representation; a shape that is not supported is reported as a
// *FormatError before anything touches the network.
package source

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/minios-linux/langsync/langcode"
)

// FormatError reports an input document whose top-level shape is not
// supported.
type FormatError struct {
	// Input names the document kind ("plural map", "locale catalogue").
	Input string
	// Path is the file the document was read from, if any.
	Path string
	// Reason describes what was found instead.
	Reason string
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: unsupported format: %s", e.Input, e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: unsupported format: %s", e.Input, e.Reason)
}

type shape int

const (
	shapeOther shape = iota
	shapeObject
	shapeArray
)

func (s shape) String() string {
	switch s {
	case shapeObject:
		return "object"
	case shapeArray:
		return "array"
	default:
		return "scalar"
	}
}

// classify validates data and returns its top-level shape.
func classify(data []byte) (gjson.Result, shape, bool) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, shapeOther, false
	}
	doc := gjson.ParseBytes(data)
	switch {
	case doc.IsObject():
		return doc, shapeObject, true
	case doc.IsArray():
		return doc, shapeArray, true
	default:
		return doc, shapeOther, true
	}
}

// ---------------------------------------------------------------------------
// Plural map
// ---------------------------------------------------------------------------

// PluralMap maps normalized language codes to raw Plural-Forms strings.
type PluralMap map[string]string

// LoadPluralMap reads and parses a plural map file.
func LoadPluralMap(path string) (PluralMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plural map: %w", err)
	}
	m, err := ParsePluralMap(data)
	if err != nil {
		if fe, ok := err.(*FormatError); ok {
			fe.Path = path
		}
		return nil, err
	}
	return m, nil
}

// ParsePluralMap decodes a plural map in any of the supported shapes:
//
//	{"en": "nplurals=2; plural=(n != 1);", "ko": "..."}
//	[{"en": "..."}, {"ko": "..."}]
//	[{"code": "en", "plural": "..."}, {"code": "ko", "plural_equation": "..."}]
//
// Keys are normalized; entries whose value is not a string are ignored.
func ParsePluralMap(data []byte) (PluralMap, error) {
	doc, sh, valid := classify(data)
	if !valid {
		return nil, &FormatError{Input: "plural map", Reason: "invalid JSON"}
	}

	out := make(PluralMap)
	switch sh {
	case shapeObject:
		addStringPairs(out, doc)
	case shapeArray:
		doc.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				return true
			}
			if code, rule, ok := explicitEntry(item); ok {
				if code != "" && rule != "" {
					out[code] = rule
				}
				return true
			}
			addStringPairs(out, item)
			return true
		})
	default:
		return nil, &FormatError{Input: "plural map", Reason: "top-level " + sh.String() + ", want object or array"}
	}
	return out, nil
}

// explicitEntry recognizes {"code": ..., "plural"|"plural_equation": ...}.
// ok is true when the item has that shape, even if its values are unusable.
func explicitEntry(item gjson.Result) (code, rule string, ok bool) {
	codeField := item.Get("code")
	plural := item.Get("plural")
	equation := item.Get("plural_equation")
	if !codeField.Exists() || (!plural.Exists() && !equation.Exists()) {
		return "", "", false
	}

	// "plural" wins unless it is empty, then "plural_equation".
	pf := plural
	if !truthy(pf) {
		pf = equation
	}
	if pf.Type != gjson.String || codeField.Type != gjson.String {
		return "", "", true
	}
	return langcode.Normalize(codeField.String()), strings.TrimSpace(pf.String()), true
}

func addStringPairs(out PluralMap, obj gjson.Result) {
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			return true
		}
		if code := langcode.Normalize(key.String()); code != "" {
			out[code] = strings.TrimSpace(value.String())
		}
		return true
	})
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.String:
		return r.String() != ""
	case gjson.Number:
		return r.Num != 0
	default:
		return r.Exists()
	}
}

// ---------------------------------------------------------------------------
// Locale catalogue
// ---------------------------------------------------------------------------

// Locale is one entry of the locale catalogue.
type Locale struct {
	Code string
	// Name is displayName, else nativeName, else the code itself.
	Name string
	// RTL marks right-to-left languages (see langcode.IsRTL).
	RTL bool
	// PluralForms is the raw pluralForms string of the entry, possibly empty.
	PluralForms string
}

// Catalogue is the decoded locale catalogue.
type Catalogue struct {
	Locales map[string]Locale
	// Order lists codes in the order they first appear in the file.
	Order []string
	// Malformed lists codes that are not well-formed language tags.
	// They are loaded anyway; callers may warn about them.
	Malformed []string
}

// LoadCatalogue reads and parses a locale catalogue file.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locale catalogue: %w", err)
	}
	c, err := ParseCatalogue(data)
	if err != nil {
		if fe, ok := err.(*FormatError); ok {
			fe.Path = path
		}
		return nil, err
	}
	return c, nil
}

// ParseCatalogue decodes a locale catalogue: an array of objects carrying
// localeId (or id), displayName, nativeName and pluralForms.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	doc, sh, valid := classify(data)
	if !valid {
		return nil, &FormatError{Input: "locale catalogue", Reason: "invalid JSON"}
	}
	if sh != shapeArray {
		return nil, &FormatError{Input: "locale catalogue", Reason: "top-level " + sh.String() + ", want array"}
	}

	c := &Catalogue{Locales: make(map[string]Locale)}
	doc.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		raw := firstString(item, "localeId", "id")
		code := langcode.Normalize(raw)
		if code == "" {
			return true
		}

		name := strings.TrimSpace(item.Get("displayName").String())
		if name == "" {
			name = strings.TrimSpace(item.Get("nativeName").String())
		}
		if name == "" {
			name = code
		}

		if _, seen := c.Locales[code]; !seen {
			c.Order = append(c.Order, code)
			if langcode.Validate(code) != nil {
				c.Malformed = append(c.Malformed, code)
			}
		}
		c.Locales[code] = Locale{
			Code:        code,
			Name:        name,
			RTL:         langcode.IsRTL(code),
			PluralForms: strings.TrimSpace(item.Get("pluralForms").String()),
		}
		return true
	})
	return c, nil
}

// firstString returns the first non-empty string field among keys.
func firstString(obj gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := obj.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
