// Package gbif wraps the GBIF species API: fuzzy name matching against the
// backbone taxonomy and per-key taxon detail lookups.
package gbif

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/verdantlab/flora-cli/internal/model"
	"github.com/verdantlab/flora-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.gbif.org/v1"
	userAgent      = "flora-cli/1.0 (botanical name resolution)"
)

// Client queries the GBIF species API.
type Client interface {
	// MatchName matches a free-text name against the backbone taxonomy,
	// restricted to the plant kingdom. The primary usage plus any
	// alternative candidates are returned in API order.
	MatchName(ctx context.Context, name string) (*MatchResponse, error)

	// Species fetches the taxon record behind a backbone usage key.
	Species(ctx context.Context, id string) (*model.TaxonRecord, error)

	// Synonyms fetches every synonym name listed under a usage key,
	// walking all result pages. Names are deduplicated case-insensitively
	// in page order.
	Synonyms(ctx context.Context, id string) ([]string, error)

	// VernacularNames fetches the English common names listed under a
	// usage key. Entries without a language code are kept only when they
	// look ASCII enough to plausibly be English.
	VernacularNames(ctx context.Context, id string) ([]model.VernacularName, error)
}

// MatchResponse is one backbone match with its alternatives.
type MatchResponse struct {
	MatchType  string           `json:"matchType"`
	Confidence int              `json:"confidence"`
	Usage      *MatchCandidate  `json:"usage,omitempty"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
}

// MatchCandidate is one backbone usage proposed for an input name.
type MatchCandidate struct {
	UsageKey       int64  `json:"usageKey"`
	ScientificName string `json:"scientificName"`
	CanonicalName  string `json:"canonicalName"`
	Rank           string `json:"rank"`
	Status         string `json:"status"`
	Confidence     int    `json:"confidence"`
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(base string) Option {
	return func(c *client) {
		c.baseURL = base
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second floor for API calls.
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

// NewClient creates a GBIF API client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 1), // polite default for the public API
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// gbifMatchResponse is the species/match JSON shape.
type gbifMatchResponse struct {
	UsageKey       int64  `json:"usageKey"`
	ScientificName string `json:"scientificName"`
	CanonicalName  string `json:"canonicalName"`
	Rank           string `json:"rank"`
	Status         string `json:"status"`
	Confidence     int    `json:"confidence"`
	MatchType      string `json:"matchType"`
	Alternatives   []struct {
		UsageKey       int64  `json:"usageKey"`
		ScientificName string `json:"scientificName"`
		CanonicalName  string `json:"canonicalName"`
		Rank           string `json:"rank"`
		Status         string `json:"status"`
		Confidence     int    `json:"confidence"`
	} `json:"alternatives"`
}

// MatchName matches a name against the backbone taxonomy.
func (c *client) MatchName(ctx context.Context, name string) (*MatchResponse, error) {
	params := url.Values{
		"name":    {name},
		"kingdom": {"Plantae"},
		"verbose": {"true"},
	}

	body, err := c.get(ctx, c.baseURL+"/species/match?"+params.Encode(), "match")
	if err != nil {
		return nil, err
	}

	var raw gbifMatchResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "gbif: match parse response")
	}

	resp := &MatchResponse{MatchType: raw.MatchType, Confidence: raw.Confidence}
	if raw.MatchType != "" && raw.MatchType != "NONE" && raw.UsageKey != 0 {
		resp.Usage = &MatchCandidate{
			UsageKey:       raw.UsageKey,
			ScientificName: raw.ScientificName,
			CanonicalName:  raw.CanonicalName,
			Rank:           raw.Rank,
			Status:         raw.Status,
			Confidence:     raw.Confidence,
		}
	}
	for _, alt := range raw.Alternatives {
		resp.Candidates = append(resp.Candidates, MatchCandidate{
			UsageKey:       alt.UsageKey,
			ScientificName: alt.ScientificName,
			CanonicalName:  alt.CanonicalName,
			Rank:           alt.Rank,
			Status:         alt.Status,
			Confidence:     alt.Confidence,
		})
	}
	return resp, nil
}

// gbifSpeciesResponse is the species/{key} JSON shape.
type gbifSpeciesResponse struct {
	Key             int64  `json:"key"`
	ScientificName  string `json:"scientificName"`
	CanonicalName   string `json:"canonicalName"`
	TaxonomicStatus string `json:"taxonomicStatus"`
	AcceptedKey     int64  `json:"acceptedKey"`
	Family          string `json:"family"`
}

// Species fetches a single backbone taxon record.
func (c *client) Species(ctx context.Context, id string) (*model.TaxonRecord, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, eris.Errorf("gbif: invalid species key %q", id)
	}

	body, err := c.get(ctx, c.baseURL+"/species/"+url.PathEscape(id), "species")
	if err != nil {
		return nil, err
	}

	var raw gbifSpeciesResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "gbif: species parse response")
	}

	rec := &model.TaxonRecord{
		ID:             strconv.FormatInt(raw.Key, 10),
		ScientificName: raw.ScientificName,
		CanonicalName:  raw.CanonicalName,
		Status:         raw.TaxonomicStatus,
		Family:         raw.Family,
	}
	if raw.AcceptedKey != 0 {
		rec.AcceptedID = strconv.FormatInt(raw.AcceptedKey, 10)
	}
	return rec, nil
}

// synonymPageLimit is the page size for species/{key}/synonyms. The endpoint
// is paginated; most taxa fit in one page.
const synonymPageLimit = 300

// gbifPagedNames is the species/{key}/synonyms JSON shape.
type gbifPagedNames struct {
	EndOfRecords bool `json:"endOfRecords"`
	Count        *int `json:"count"`
	Results      []struct {
		ScientificName string `json:"scientificName"`
		CanonicalName  string `json:"canonicalName"`
	} `json:"results"`
}

// Synonyms fetches all synonym names for a usage key across result pages.
func (c *client) Synonyms(ctx context.Context, id string) ([]string, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, eris.Errorf("gbif: invalid species key %q", id)
	}

	var names []string
	seen := map[string]bool{}
	offset := 0

	for {
		params := url.Values{
			"limit":  {strconv.Itoa(synonymPageLimit)},
			"offset": {strconv.Itoa(offset)},
		}
		body, err := c.get(ctx, c.baseURL+"/species/"+url.PathEscape(id)+"/synonyms?"+params.Encode(), "synonyms")
		if err != nil {
			return nil, err
		}

		var page gbifPagedNames
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, eris.Wrap(err, "gbif: synonyms parse response")
		}

		for _, item := range page.Results {
			name := item.ScientificName
			if name == "" {
				name = item.CanonicalName
			}
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if !seen[key] {
				seen[key] = true
				names = append(names, name)
			}
		}

		offset += len(page.Results)
		if page.EndOfRecords || len(page.Results) == 0 {
			break
		}
		if page.Count != nil && offset >= *page.Count {
			break
		}
	}

	return names, nil
}

// englishLangs are the language codes treated as English in vernacular
// records.
var englishLangs = map[string]bool{"en": true, "eng": true, "english": true}

// gbifVernacularResponse is the species/{key}/vernacularNames JSON shape.
type gbifVernacularResponse struct {
	Results []struct {
		VernacularName string `json:"vernacularName"`
		Language       string `json:"language"`
		Preferred      bool   `json:"preferred"`
	} `json:"results"`
}

// VernacularNames fetches the English common names for a usage key.
func (c *client) VernacularNames(ctx context.Context, id string) ([]model.VernacularName, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, eris.Errorf("gbif: invalid species key %q", id)
	}

	body, err := c.get(ctx, c.baseURL+"/species/"+url.PathEscape(id)+"/vernacularNames", "vernaculars")
	if err != nil {
		return nil, err
	}

	var raw gbifVernacularResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "gbif: vernaculars parse response")
	}

	var names []model.VernacularName
	seen := map[string]bool{}
	for _, item := range raw.Results {
		name := strings.Join(strings.Fields(item.VernacularName), " ")
		if name == "" {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(item.Language))

		if lang != "" {
			if !englishLangs[lang] {
				continue
			}
		} else if !looksMostlyASCII(name) {
			// No language code: keep only names plausible as English.
			continue
		}

		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, model.VernacularName{
			Name:      name,
			Language:  lang,
			Preferred: lang != "" && item.Preferred,
		})
	}
	return names, nil
}

// looksMostlyASCII reports whether at least 90% of the string's runes are
// printable ASCII.
func looksMostlyASCII(s string) bool {
	total, ascii := 0, 0
	for _, r := range s {
		total++
		if r >= 0x20 && r < 0x7f {
			ascii++
		}
	}
	return total > 0 && float64(ascii)/float64(total) >= 0.9
}

// get performs a rate-limited GET and returns the response body. Throttle
// and server-side failures come back as transient errors and are retried
// per the client's retry policy.
func (c *client) get(ctx context.Context, reqURL, op string) ([]byte, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("gbif", op)
	return resilience.Do(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return c.getOnce(ctx, reqURL, op)
	})
}

func (c *client) getOnce(ctx context.Context, reqURL, op string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "gbif: %s rate limit", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "gbif: %s build request", op)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "gbif: %s request", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("gbif: %s returned status %d", op, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, eris.Wrap(err, "gbif: "+op)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "gbif: %s read body", op)
	}
	return body, nil
}
