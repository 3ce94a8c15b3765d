package weblate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/langsync/pluralrule"
)

// recorded is one request seen by the test server.
type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body string)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recorded{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(data),
		})
		handler(w, r, string(data))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Options{BaseURL: srv.URL + "/", Token: "secret", Timeout: 5 * time.Second})
}

func TestListFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprintf(w, `{"next": "%s/api/languages/?page=2", "results": [
				{"code": "en", "name": "English", "plural": {"number": 2, "formula": "n != 1", "id": 7}, "direction": "ltr"}
			]}`, srv.URL)
		case "2":
			fmt.Fprint(w, `{"next": null, "results": [
				{"code": "iw", "name": "Hebrew", "plural": {"number": 2, "formula": " n != 1 "}, "aliases": ["he", "he_IL"]}
			]}`)
		}
	})

	got, err := newTestClient(srv).List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, pluralrule.Rule{Count: 2, Formula: "n != 1"}, got["en"].Plural)
	assert.Equal(t, "ltr", got["en"].Direction)
	assert.Equal(t, []string{"he", "he_IL"}, got["iw"].Aliases)
	assert.Equal(t, "n != 1", got["iw"].Plural.Formula, "formula is trimmed")
	assert.Contains(t, string(got["en"].Raw), `"id": 7`)

	require.Len(t, *reqs, 2)
	assert.Equal(t, "/api/languages/", (*reqs)[0].Path)
	assert.Equal(t, "page_size=100", (*reqs)[0].Query)
	assert.Equal(t, "Token secret", (*reqs)[0].Auth)
}

func TestListSkipsRecordsWithoutCode(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		fmt.Fprint(w, `{"next": null, "results": [
			{"code": "", "name": "Broken"},
			{"name": "No code at all"},
			{"code": "  ", "name": "Blank"},
			{"code": "de", "name": "German"}
		]}`)
	})

	got, err := newTestClient(srv).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "de")
	assert.NotContains(t, got, "")
}

func TestListReturnsPartialResultOnPageError(t *testing.T) {
	var srv *httptest.Server
	srv, _ = newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		if r.URL.Query().Get("page") == "2" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"next": "%s/api/languages/?page=2", "results": [{"code": "en", "name": "English"}]}`, srv.URL)
	})

	got, err := newTestClient(srv).List(context.Background())
	require.Error(t, err)
	assert.Len(t, got, 1)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestListStopsOnPaginationLoop(t *testing.T) {
	var srv *httptest.Server
	srv, _ = newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		fmt.Fprintf(w, `{"next": "%s/api/languages/?page_size=100", "results": [{"code": "en"}]}`, srv.URL)
	})

	got, err := newTestClient(srv).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagination loop")
	assert.Len(t, got, 1)
}

func TestGetDistinguishesNotFound(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		switch r.URL.Path {
		case "/api/languages/ko/":
			fmt.Fprint(w, `{"code": "ko", "name": "Korean", "plural": {"number": 1, "formula": "0"}}`)
		case "/api/languages/zz/":
			http.Error(w, `{"detail": "Not found."}`, http.StatusNotFound)
		default:
			http.Error(w, "forbidden", http.StatusForbidden)
		}
	})
	c := newTestClient(srv)

	lang, err := c.Get(context.Background(), "ko")
	require.NoError(t, err)
	assert.Equal(t, "Korean", lang.Name)
	assert.Equal(t, pluralrule.Rule{Count: 1, Formula: "0"}, lang.Plural)

	_, err = c.Get(context.Background(), "zz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Get(context.Background(), "de")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden\n", apiErr.Body)

	assert.Equal(t, "GET", (*reqs)[0].Method)
}

func TestGetEscapesCode(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		fmt.Fprint(w, `{"code": "x"}`)
	})
	_, err := newTestClient(srv).Get(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/api/languages/a%2Fb/", (*reqs)[0].Path)
}

func TestCreate(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, r *http.Request, body string) {
		if strings.Contains(body, `"code":"en"`) {
			http.Error(w, `{"code": ["language with this code already exists."]}`, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	c := newTestClient(srv)

	err := c.Create(context.Background(), CreateRequest{
		Code:      "ar",
		Plural:    pluralrule.Rule{Count: 6, Formula: "n==0 ? 0 : 1"},
		Direction: "rtl",
	})
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte((*reqs)[0].Body), &sent))
	assert.Equal(t, "POST", (*reqs)[0].Method)
	assert.Equal(t, "/api/languages/", (*reqs)[0].Path)
	assert.Equal(t, "ar", sent["name"], "empty name falls back to code")
	assert.Equal(t, "rtl", sent["direction"])
	assert.Equal(t, map[string]any{"number": float64(6), "formula": "n==0 ? 0 : 1"}, sent["plural"])

	require.NoError(t, c.Create(context.Background(), CreateRequest{Code: "fr", Name: "French", Direction: "sideways"}))
	assert.NotContains(t, (*reqs)[1].Body, "direction")

	err = c.Create(context.Background(), CreateRequest{Code: "en", Name: "English"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "already exists")
}

func TestPatchSendsOnlySetFields(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		fmt.Fprint(w, `{}`)
	})
	c := newTestClient(srv)
	ctx := context.Background()

	require.NoError(t, c.Patch(ctx, "en", LanguagePatch{Name: Some("English")}))
	require.NoError(t, c.Patch(ctx, "en", LanguagePatch{Plural: Some(pluralrule.Rule{Count: 2, Formula: "n > 1"})}))
	require.NoError(t, c.Patch(ctx, "en", LanguagePatch{}))

	require.Len(t, *reqs, 2, "empty patch sends no request")
	assert.Equal(t, "PATCH", (*reqs)[0].Method)
	assert.Equal(t, "/api/languages/en/", (*reqs)[0].Path)
	assert.JSONEq(t, `{"name": "English"}`, (*reqs)[0].Body)
	assert.JSONEq(t, `{"plural": {"number": 2, "formula": "n > 1"}}`, (*reqs)[1].Body)
}

func TestDeleteAcceptsNoContent(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		if r.URL.Path == "/api/languages/en/" {
			http.Error(w, "protected", http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(srv)

	require.NoError(t, c.Delete(context.Background(), "xx"))
	assert.Equal(t, "DELETE", (*reqs)[0].Method)

	err := c.Delete(context.Background(), "en")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "protected\n", apiErr.Body)
}

func TestTimeout(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		time.Sleep(200 * time.Millisecond)
	})
	c := NewClient(Options{BaseURL: srv.URL, Token: "t", Timeout: 20 * time.Millisecond})

	_, err := c.Get(context.Background(), "en")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestAPIErrorExcerpt(t *testing.T) {
	e := &APIError{StatusCode: 500, Body: strings.Repeat("é", 400)}
	assert.Len(t, []rune(e.Excerpt(300)), 300)
	assert.Equal(t, "short", (&APIError{Body: "short"}).Excerpt(300))
}

func TestLanguagePatch(t *testing.T) {
	var p LanguagePatch
	assert.True(t, p.IsEmpty())

	p.Name = Some("")
	assert.False(t, p.IsEmpty(), "an explicitly set empty name is still a change")

	name, ok := p.Name.Get()
	assert.True(t, ok)
	assert.Equal(t, "", name)

	_, ok = p.Plural.Get()
	assert.False(t, ok)
}
