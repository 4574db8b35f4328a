// Package wfo scrapes native distribution areas from World Flora Online
// taxon pages. WFO exposes no distribution API, so the client fetches the
// taxon page and extracts the "Found in" area tokens, stopping before the
// bibliography block.
package wfo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/verdantlab/flora-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://www.worldfloraonline.org"
	userAgent      = "flora-cli/1.0 (botanical nativity enrichment)"

	maxPageBytes = 2 * 1024 * 1024
)

// stopPhrases mark the end of the distribution block; anything after them is
// citation noise.
var stopPhrases = []string{
	"introduced into",
	"references",
	"reference",
	"bibliography",
	"citation",
	"citations",
}

// Client fetches native areas for WFO taxon identifiers.
type Client interface {
	// NativeAreas returns the "Found in" distribution tokens for a taxon,
	// deduplicated in page order. An empty slice means the page carries no
	// distribution block.
	NativeAreas(ctx context.Context, id string) ([]string, error)

	// TaxonURL returns the page URL for a taxon identifier.
	TaxonURL(id string) string
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the site base URL.
func WithBaseURL(base string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second floor for page fetches.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a WFO page client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 75 * time.Second},
		limiter:    rate.NewLimiter(1, 1), // WFO pages are slow; stay polite
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TaxonURL returns the page URL for a taxon identifier.
func (c *client) TaxonURL(id string) string {
	return c.baseURL + "/taxon/" + strings.ToLower(strings.TrimSpace(id))
}

// NativeAreas fetches the taxon page and extracts its distribution tokens.
// Transient fetch failures are retried per the client's retry policy.
func (c *client) NativeAreas(ctx context.Context, id string) ([]string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, eris.New("wfo: empty taxon id")
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("wfo", "taxon page")
	return resilience.Do(ctx, cfg, func(ctx context.Context) ([]string, error) {
		return c.fetchAreas(ctx, id)
	})
}

func (c *client) fetchAreas(ctx context.Context, id string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wfo: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TaxonURL(id), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wfo: build request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wfo: fetch taxon page")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("wfo: taxon page returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, eris.Wrapf(err, "wfo: taxon %s", id)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "wfo: read taxon page")
	}

	return extractFoundIn(string(body)), nil
}

var (
	dropBlockRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`[ \t\x{00a0}]+`)

	refTokenRe = regexp.MustCompile(`^\s*(\[\d+\]|\d+)\s*$`)
	doiRe      = regexp.MustCompile(`(?i)\bdoi\s*:`)
	letterRe   = regexp.MustCompile(`[A-Za-z]`)
)

// extractFoundIn pulls area tokens from the "Found in" block of a taxon
// page. Tags become line breaks so each link or list item yields its own
// token; pipe-delimited text nodes are split into separate tokens.
func extractFoundIn(html string) []string {
	html = dropBlockRe.ReplaceAllString(html, "")
	html = tagRe.ReplaceAllString(html, "\n")

	started := false
	var areas []string
	seen := map[string]bool{}

	for _, line := range strings.Split(html, "\n") {
		line = cleanSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		if !started {
			if strings.Contains(lower, "found in") {
				started = true
			}
			continue
		}
		if hasStopPhrase(lower) {
			break
		}

		for _, part := range strings.Split(line, "|") {
			part = cleanSpace(part)
			if !looksLikeAreaToken(part) {
				continue
			}
			key := strings.ToLower(part)
			if !seen[key] {
				seen[key] = true
				areas = append(areas, part)
			}
		}
	}

	return areas
}

func hasStopPhrase(lower string) bool {
	for _, p := range stopPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// looksLikeAreaToken rejects citation markers, bare numbers, DOIs, URLs, and
// fragments too short to be a place name.
func looksLikeAreaToken(tok string) bool {
	if tok == "" || len(tok) < 3 {
		return false
	}
	if refTokenRe.MatchString(tok) || doiRe.MatchString(tok) {
		return false
	}
	lower := strings.ToLower(tok)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return false
	}
	if !letterRe.MatchString(tok) {
		return false
	}
	return !hasStopPhrase(lower)
}

func cleanSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
