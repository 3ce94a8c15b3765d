// Package langcode canonicalizes locale identifiers into the code format used
// by the translation server (underscore separated, lower-case first letter)
// and answers simple questions about a code: its base language and whether
// the language is written right-to-left.
package langcode

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// rtlBases lists base languages created with direction=rtl.
// ku_Arab never matches a base on its own; it is kept so that an exact
// ku_Arab lookup through IsRTL still succeeds.
var rtlBases = map[string]bool{
	"ar":      true,
	"fa":      true,
	"he":      true,
	"ur":      true,
	"ug":      true,
	"dv":      true,
	"ps":      true,
	"ku_Arab": true,
}

// Normalize converts a raw locale identifier into server form:
// every "-" becomes "_" and only the first character is lower-cased.
//
//	tr-TR -> tr_TR
//	Ro    -> ro
//	pt_BR -> pt_BR
//
// Normalize is idempotent and returns "" for blank input.
func Normalize(code string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(code), "-", "_")
	if normalized == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(normalized)
	return string(unicode.ToLower(first)) + normalized[size:]
}

// Base returns the base language of a code: everything before the first
// underscore of its normalized form (ko_KR -> ko).
func Base(code string) string {
	normalized := Normalize(code)
	if idx := strings.IndexByte(normalized, '_'); idx >= 0 {
		return normalized[:idx]
	}
	return normalized
}

// IsRTL reports whether the language of code is written right-to-left.
func IsRTL(code string) bool {
	normalized := Normalize(code)
	return rtlBases[normalized] || rtlBases[Base(normalized)]
}

// Validate reports whether code parses as a BCP 47 tag once underscores are
// read as hyphens. Server codes such as sr_Latn or zh_Hant are valid; typos
// like "english" or "e_US" are not.
func Validate(code string) error {
	_, err := language.Parse(strings.ReplaceAll(Normalize(code), "_", "-"))
	return err
}
