// Package wikidata implements the geographic knowledge base over the
// Wikidata SPARQL endpoint. Labels are matched as English rdfs:label with a
// type restriction: country/sovereign-state classes for authoritative state
// lookups, and a geographic-object filter for everything else.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/verdantlab/flora-cli/internal/georesolve"
	"github.com/verdantlab/flora-cli/internal/resilience"
)

const (
	defaultEndpoint = "https://query.wikidata.org/sparql"
	userAgent       = "flora-cli/1.0 (botanical nativity enrichment)"
)

// Client runs typed entity lookups against the SPARQL endpoint. It satisfies
// georesolve.KnowledgeBase.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// Option configures the client.
type Option func(*Client)

// WithEndpoint overrides the SPARQL endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second floor for SPARQL queries.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// NewClient creates a Wikidata SPARQL client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(5, 1), // WDQS usage policy headroom
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindByLabelAndType finds entities whose English label equals the given
// string and whose classification passes the type filter.
func (c *Client) FindByLabelAndType(ctx context.Context, label string, filter georesolve.TypeFilter) ([]georesolve.Entity, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}

	var query string
	switch filter {
	case georesolve.TypeCountry:
		// Q6256 country, Q3624078 sovereign state. Many modern states are
		// typed only as the latter.
		query = fmt.Sprintf(`SELECT ?entity ?entityLabel WHERE {
  ?entity rdfs:label "%s"@en .
  ?entity wdt:P31/wdt:P279* ?ct .
  VALUES ?ct { wd:Q6256 wd:Q3624078 }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 5`, escapeLiteral(label))
	case georesolve.TypeGeographic:
		// Q618123 geographical object, Q2221906 geographic location. A
		// coordinate claim also qualifies.
		query = fmt.Sprintf(`SELECT ?entity ?entityLabel WHERE {
  ?entity rdfs:label "%s"@en .
  FILTER(
    EXISTS { ?entity wdt:P625 ?coord . } ||
    EXISTS { ?entity wdt:P31/wdt:P279* wd:Q618123 . } ||
    EXISTS { ?entity wdt:P31/wdt:P279* wd:Q2221906 . }
  )
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 10`, escapeLiteral(label))
	default:
		return nil, eris.Errorf("wikidata: unknown type filter %q", filter)
	}

	rows, err := c.query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "wikidata: find %q", label)
	}

	var entities []georesolve.Entity
	for _, row := range rows {
		id := entityID(row["entity"])
		if id == "" {
			continue
		}
		entities = append(entities, georesolve.Entity{ID: id, Label: row["entityLabel"]})
	}
	return entities, nil
}

// EntityCountry returns the entity's direct country (P17), or "" when the
// entity carries no country claim.
func (c *Client) EntityCountry(ctx context.Context, e georesolve.Entity) (string, error) {
	if !entityIDRe.MatchString(e.ID) {
		return "", eris.Errorf("wikidata: invalid entity id %q", e.ID)
	}
	query := fmt.Sprintf(`SELECT ?countryLabel WHERE {
  wd:%s wdt:P17 ?country .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 1`, e.ID)

	rows, err := c.query(ctx, query)
	if err != nil {
		return "", eris.Wrapf(err, "wikidata: country of %s", e.ID)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0]["countryLabel"], nil
}

// EntityParent returns the entity's administrative parent (P131), or nil at
// the top of the containment chain.
func (c *Client) EntityParent(ctx context.Context, e georesolve.Entity) (*georesolve.Entity, error) {
	if !entityIDRe.MatchString(e.ID) {
		return nil, eris.Errorf("wikidata: invalid entity id %q", e.ID)
	}
	query := fmt.Sprintf(`SELECT ?parent ?parentLabel WHERE {
  wd:%s wdt:P131 ?parent .
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 1`, e.ID)

	rows, err := c.query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "wikidata: parent of %s", e.ID)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	id := entityID(rows[0]["parent"])
	if id == "" {
		return nil, nil
	}
	return &georesolve.Entity{ID: id, Label: rows[0]["parentLabel"]}, nil
}

// sparqlResponse is the SPARQL JSON results shape.
type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// query runs one SPARQL query and flattens each binding row to a
// variable→value map. Transient endpoint failures are retried per the
// client's retry policy.
func (c *Client) query(ctx context.Context, sparql string) ([]map[string]string, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("wikidata", "sparql")
	return resilience.Do(ctx, cfg, func(ctx context.Context) ([]map[string]string, error) {
		return c.queryOnce(ctx, sparql)
	})
}

func (c *Client) queryOnce(ctx context.Context, sparql string) ([]map[string]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "wikidata: rate limit")
	}

	params := url.Values{
		"format": {"json"},
		"query":  {sparql},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: build request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("wikidata: endpoint returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: read body")
	}

	var parsed sparqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "wikidata: parse response")
	}

	rows := make([]map[string]string, 0, len(parsed.Results.Bindings))
	for _, binding := range parsed.Results.Bindings {
		row := make(map[string]string, len(binding))
		for name, v := range binding {
			row[name] = v.Value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// escapeLiteral escapes a string for use inside a SPARQL double-quoted
// literal.
func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// entityIDRe is the only identifier shape ever interpolated into a query.
var entityIDRe = regexp.MustCompile(`^Q\d+$`)

// entityID extracts the Q-identifier from an entity URI. Anything that is
// not a bare Q-number is discarded: identifiers are interpolated into SPARQL
// text, so a malformed binding must never survive this point.
func entityID(uri string) string {
	if uri == "" {
		return ""
	}
	id := uri[strings.LastIndexByte(uri, '/')+1:]
	if !entityIDRe.MatchString(id) {
		return ""
	}
	return id
}
