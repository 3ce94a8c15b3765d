// Package weblate is a small client for the language endpoints of the
// Weblate REST API (/api/languages/).
//
// The client does not retry and does not interpret failures beyond the HTTP
// status: a non-2xx response comes back as *APIError carrying the raw status
// and body, and callers decide what it means.
package weblate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/minios-linux/langsync/pluralrule"
)

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// pageSize is requested when listing languages.
const pageSize = 100

// ErrNotFound matches (via errors.Is) an *APIError with status 404.
var ErrNotFound = errors.New("language not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Excerpt(200))
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Excerpt returns at most n characters of the response body.
func (e *APIError) Excerpt(n int) string {
	r := []rune(e.Body)
	if len(r) <= n {
		return e.Body
	}
	return string(r[:n])
}

// Language is a language record as returned by the server.
type Language struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Plural    pluralrule.Rule `json:"plural"`
	Aliases   []string        `json:"aliases,omitempty"`
	Direction string          `json:"direction,omitempty"`

	// Raw is the record exactly as received, kept for backups.
	Raw json.RawMessage `json:"-"`
}

// CreateRequest is the payload of Create.
type CreateRequest struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Plural pluralrule.Rule `json:"plural"`
	// Direction is "rtl", "ltr" or empty to let the server decide.
	Direction string `json:"direction,omitempty"`
}

// LanguagePatch is a partial update. Only set fields are sent.
type LanguagePatch struct {
	Name   Optional[string]
	Plural Optional[pluralrule.Rule]
}

// IsEmpty reports whether the patch changes nothing.
func (p LanguagePatch) IsEmpty() bool {
	return !p.Name.IsSet() && !p.Plural.IsSet()
}

// MarshalJSON encodes only the fields that are set.
func (p LanguagePatch) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, 2)
	if name, ok := p.Name.Get(); ok {
		payload["name"] = name
	}
	if rule, ok := p.Plural.Get(); ok {
		payload["plural"] = rule
	}
	return json.Marshal(payload)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, e.g. https://weblate.example.org.
	BaseURL string
	// Token is the API key sent as "Authorization: Token <key>".
	Token string
	// Timeout bounds every request (DefaultTimeout when zero).
	Timeout time.Duration
	// Proxy is an optional HTTP/HTTPS proxy URL; HTTP(S)_PROXY is used otherwise.
	Proxy string
	// UserAgent is sent with every request.
	UserAgent string
	// Logger receives one debug line per request; nil disables logging.
	Logger *zerolog.Logger
	// HTTPClient overrides the client built from Timeout and Proxy.
	HTTPClient *http.Client
}

// Client talks to one Weblate server.
type Client struct {
	base      string
	token     string
	userAgent string
	http      *http.Client
	log       zerolog.Logger
}

// NewClient returns a client for opts.BaseURL.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = makeHTTPClient(opts.Proxy, timeout)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "langsync"
	}
	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		userAgent: ua,
		http:      hc,
		log:       logger,
	}
}

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (c *Client) collectionURL() string {
	return c.base + "/api/languages/"
}

func (c *Client) languageURL(code string) string {
	return c.base + "/api/languages/" + url.PathEscape(code) + "/"
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

type page struct {
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// List fetches every language, following pagination links until the last
// page. Records without a code are skipped. If a page fails, List returns the
// records collected so far together with the error.
func (c *Client) List(ctx context.Context) (map[string]Language, error) {
	out := make(map[string]Language)
	next := fmt.Sprintf("%s?page_size=%d", c.collectionURL(), pageSize)
	visited := make(map[string]bool)

	for next != "" {
		if visited[next] {
			return out, fmt.Errorf("pagination loop at %s", next)
		}
		visited[next] = true

		body, err := c.do(ctx, http.MethodGet, next, nil, http.StatusOK)
		if err != nil {
			return out, fmt.Errorf("listing languages (%d collected): %w", len(out), err)
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return out, fmt.Errorf("decoding language page %s: %w", next, err)
		}
		for _, raw := range p.Results {
			lang, err := decodeLanguage(raw)
			if err != nil {
				return out, err
			}
			if strings.TrimSpace(lang.Code) == "" {
				c.log.Warn().RawJSON("record", raw).Msg("ignoring language without a code")
				continue
			}
			out[lang.Code] = lang
		}

		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return out, nil
}

// Get fetches one language. A missing language yields an error matching
// ErrNotFound; any other failure is returned as is.
func (c *Client) Get(ctx context.Context, code string) (*Language, error) {
	body, err := c.do(ctx, http.MethodGet, c.languageURL(code), nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	lang, err := decodeLanguage(body)
	if err != nil {
		return nil, err
	}
	return &lang, nil
}

// Create adds a new language. It fails if the code already exists.
func (c *Client) Create(ctx context.Context, req CreateRequest) error {
	if req.Name == "" {
		req.Name = req.Code
	}
	if req.Direction != "rtl" && req.Direction != "ltr" {
		req.Direction = ""
	}
	_, err := c.do(ctx, http.MethodPost, c.collectionURL(), req, http.StatusOK, http.StatusCreated)
	return err
}

// Patch applies a partial update. An empty patch sends nothing.
func (c *Client) Patch(ctx context.Context, code string, patch LanguagePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	_, err := c.do(ctx, http.MethodPatch, c.languageURL(code), patch, http.StatusOK, http.StatusAccepted)
	return err
}

// Delete removes a language.
func (c *Client) Delete(ctx context.Context, code string) error {
	_, err := c.do(ctx, http.MethodDelete, c.languageURL(code), nil,
		http.StatusOK, http.StatusAccepted, http.StatusNoContent)
	return err
}

func decodeLanguage(raw json.RawMessage) (Language, error) {
	var lang Language
	if err := json.Unmarshal(raw, &lang); err != nil {
		return Language{}, fmt.Errorf("decoding language: %w", err)
	}
	lang.Plural.Formula = strings.TrimSpace(lang.Plural.Formula)
	lang.Raw = append(json.RawMessage(nil), raw...)
	return lang, nil
}

// do sends one request and returns the response body when the status is one
// of ok.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any, ok ...int) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("url", endpoint).Msg("request failed")
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response of %s %s: %w", method, endpoint, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("weblate request")

	if !slices.Contains(ok, resp.StatusCode) {
		return nil, &APIError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return body, nil
}
