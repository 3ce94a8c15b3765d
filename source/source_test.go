package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePluralMapShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want PluralMap
	}{
		{
			name: "flat object",
			in:   `{"en": " nplurals=2; plural=(n != 1); ", "tr-TR": "nplurals=2; plural=(n > 1);", "bad": 3}`,
			want: PluralMap{
				"en":    "nplurals=2; plural=(n != 1);",
				"tr_TR": "nplurals=2; plural=(n > 1);",
			},
		},
		{
			name: "array of single-key objects",
			in:   `[{"Ko": "nplurals=1; plural=0;"}, {"fr": "nplurals=2; plural=(n > 1);"}, "skip me"]`,
			want: PluralMap{
				"ko": "nplurals=1; plural=0;",
				"fr": "nplurals=2; plural=(n > 1);",
			},
		},
		{
			name: "array of explicit entries",
			in: `[
				{"code": "pt-BR", "plural": "nplurals=2; plural=(n > 1);"},
				{"code": "ru", "plural_equation": "nplurals=3; plural=(n%10==1 ? 0 : 1);"},
				{"code": "de", "plural": "", "plural_equation": "nplurals=2; plural=(n != 1);"},
				{"code": "xx", "plural": 5}
			]`,
			want: PluralMap{
				"pt_BR": "nplurals=2; plural=(n > 1);",
				"ru":    "nplurals=3; plural=(n%10==1 ? 0 : 1);",
				"de":    "nplurals=2; plural=(n != 1);",
			},
		},
		{
			name: "empty object",
			in:   `{}`,
			want: PluralMap{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePluralMap([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParsePluralMapRejectsOtherShapes(t *testing.T) {
	for _, in := range []string{`"en"`, `42`, `null`, `{not json`} {
		_, err := ParsePluralMap([]byte(in))
		var fe *FormatError
		require.True(t, errors.As(err, &fe), "input %s: got %v", in, err)
		assert.Equal(t, "plural map", fe.Input)
	}
}

func TestParseCatalogue(t *testing.T) {
	in := `[
		{"localeId": "tr-TR", "displayName": "Turkish (Turkey)", "nativeName": "Türkçe", "pluralForms": "nplurals=2; plural=(n > 1);"},
		{"id": "ar", "nativeName": " العربية "},
		{"localeId": "Ro"},
		{"displayName": "no id"},
		"garbage",
		{"localeId": "tr_TR", "displayName": "Turkish"}
	]`

	c, err := ParseCatalogue([]byte(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"tr_TR", "ar", "ro"}, c.Order)
	assert.Len(t, c.Locales, 3)

	tr := c.Locales["tr_TR"]
	assert.Equal(t, "Turkish", tr.Name, "later duplicate wins")
	assert.False(t, tr.RTL)
	assert.Equal(t, "", tr.PluralForms)

	ar := c.Locales["ar"]
	assert.Equal(t, "العربية", ar.Name)
	assert.True(t, ar.RTL)

	assert.Equal(t, "ro", c.Locales["ro"].Name, "falls back to the code")
}

func TestParseCatalogueKeepsPluralForms(t *testing.T) {
	c, err := ParseCatalogue([]byte(`[{"localeId": "fr", "pluralForms": " nplurals=2; plural=(n > 1); "}]`))
	require.NoError(t, err)
	assert.Equal(t, "nplurals=2; plural=(n > 1);", c.Locales["fr"].PluralForms)
}

func TestParseCatalogueRejectsObject(t *testing.T) {
	_, err := ParseCatalogue([]byte(`{"localeId": "en"}`))
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Error(), "want array")
}

func TestParseCatalogueReportsMalformedCodes(t *testing.T) {
	c, err := ParseCatalogue([]byte(`[{"localeId": "en"}, {"localeId": "e-US"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"e_US"}, c.Malformed)
}

func TestLoadFilesSetPathOnFormatError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plural.json")
	require.NoError(t, os.WriteFile(path, []byte(`"nope"`), 0644))

	_, err := LoadPluralMap(path)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, path, fe.Path)

	_, err = LoadCatalogue(path)
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, path, fe.Path)

	_, err = LoadCatalogue(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.False(t, errors.As(err, &fe))
}
