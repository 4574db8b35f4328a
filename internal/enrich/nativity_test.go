package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAreaSource struct {
	areas map[string][]string
	err   error
	calls int
}

func (f *fakeAreaSource) NativeAreas(_ context.Context, id string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.areas[strings.ToLower(id)], nil
}

func (f *fakeAreaSource) TaxonURL(id string) string {
	return "https://wfo.example/taxon/" + strings.ToLower(id)
}

type fakeExpander struct {
	leaves map[string][]string
}

func (f *fakeExpander) Expand(name string) []string {
	return f.leaves[strings.ToLower(name)]
}

// identityCountries resolves every token to itself, mimicking tokens that
// are already country names.
type identityCountries struct {
	failing map[string]bool
	calls   []string
}

func (f *identityCountries) ResolveAll(_ context.Context, token string) ([]string, error) {
	f.calls = append(f.calls, token)
	if f.failing[strings.ToLower(token)] {
		return nil, errors.New("knowledge base unavailable")
	}
	return []string{token}, nil
}

func TestEnrichTaxon_PipeCompositeTokenSplits(t *testing.T) {
	// The whole distribution arrives as one pipe-delimited token; every part
	// must survive into the country set, not just the first.
	areas := &fakeAreaSource{areas: map[string][]string{
		"wfo-0000949392": {"Myanmar | Thailand | Vietnam"},
	}}
	countries := &identityCountries{}
	n := NewNativity(areas, nil, countries, nil, instantThrottle())

	res, cached := n.EnrichTaxon(context.Background(), "wfo-0000949392")
	assert.False(t, cached)
	assert.Equal(t, []string{"Myanmar", "Thailand", "Vietnam"}, res.Areas)
	assert.Equal(t, []string{"Myanmar", "Thailand", "Vietnam"}, res.Countries)
	assert.Equal(t, "https://wfo.example/taxon/wfo-0000949392", res.SourceURL)
	assert.Empty(t, res.Error)
}

func TestEnrichTaxon_HierarchyExpansion(t *testing.T) {
	areas := &fakeAreaSource{areas: map[string][]string{
		"wfo-1": {"Indo-China", "Borneo"},
	}}
	expander := &fakeExpander{leaves: map[string][]string{
		"indo-china": {"Myanmar", "Thailand"},
	}}
	countries := &identityCountries{}
	n := NewNativity(areas, expander, countries, nil, instantThrottle())

	res, _ := n.EnrichTaxon(context.Background(), "wfo-1")
	// Indo-China expands; Borneo is unknown to the hierarchy and stands raw.
	assert.Equal(t, []string{"Myanmar", "Thailand", "Borneo"}, res.Countries)
	assert.Equal(t, []string{"Myanmar", "Thailand", "Borneo"}, countries.calls)
}

func TestEnrichTaxon_DedupAcrossTokens(t *testing.T) {
	areas := &fakeAreaSource{areas: map[string][]string{
		"wfo-1": {"Peru", "peru", "Bolivia"},
	}}
	n := NewNativity(areas, nil, &identityCountries{}, nil, instantThrottle())

	res, _ := n.EnrichTaxon(context.Background(), "wfo-1")
	assert.Equal(t, []string{"Peru", "Bolivia"}, res.Countries)
}

func TestEnrichTaxon_FetchErrorAbsorbed(t *testing.T) {
	areas := &fakeAreaSource{err: errors.New("page unavailable")}
	n := NewNativity(areas, nil, &identityCountries{}, nil, instantThrottle())

	res, _ := n.EnrichTaxon(context.Background(), "wfo-1")
	assert.Contains(t, res.Error, "page unavailable")
	assert.Empty(t, res.Countries)
}

func TestEnrichTaxon_TokenFailureKeepsOtherCountries(t *testing.T) {
	areas := &fakeAreaSource{areas: map[string][]string{
		"wfo-1": {"Myanmar", "Shangri-La", "Thailand"},
	}}
	countries := &identityCountries{failing: map[string]bool{"shangri-la": true}}
	n := NewNativity(areas, nil, countries, nil, instantThrottle())

	res, _ := n.EnrichTaxon(context.Background(), "wfo-1")
	assert.Equal(t, []string{"Myanmar", "Thailand"}, res.Countries)
	assert.Empty(t, res.Error)
}

func TestRun_NativitySummary(t *testing.T) {
	areas := &fakeAreaSource{areas: map[string][]string{
		"wfo-1": {"Myanmar"},
		"wfo-2": {},
	}}
	n := NewNativity(areas, nil, &identityCountries{}, nil, instantThrottle())

	results, summary := n.Run(context.Background(), []string{"wfo-1", "wfo-2"})
	require.Len(t, results, 2)
	assert.Equal(t, 1, summary.Resolved)
	assert.Equal(t, 1, summary.Unmatched)
	assert.Zero(t, summary.Errors)
}

func TestEnrichTaxon_SuccessfulEntryServedFromCache(t *testing.T) {
	ctx := context.Background()
	areas := &fakeAreaSource{areas: map[string][]string{"wfo-1": {"Myanmar"}}}
	cache := newResolveCache(t)
	n := NewNativity(areas, nil, &identityCountries{}, cache, instantThrottle())

	first, cached := n.EnrichTaxon(ctx, "WFO-1")
	assert.False(t, cached)
	require.Equal(t, []string{"Myanmar"}, first.Countries)

	second, cached := n.EnrichTaxon(ctx, "wfo-1")
	assert.True(t, cached)
	assert.Equal(t, first.Countries, second.Countries)
	assert.Equal(t, 1, areas.calls)
}

func TestEnrichTaxon_BlankEntrySettledByDefault(t *testing.T) {
	ctx := context.Background()
	areas := &fakeAreaSource{areas: map[string][]string{"wfo-1": {}}}
	cache := newResolveCache(t)
	n := NewNativity(areas, nil, &identityCountries{}, cache, instantThrottle())

	_, _ = n.EnrichTaxon(ctx, "wfo-1")
	_, cached := n.EnrichTaxon(ctx, "wfo-1")
	assert.True(t, cached)
	assert.Equal(t, 1, areas.calls)
}

func TestEnrichTaxon_BlankEntryRetriedUnderStricterPolicy(t *testing.T) {
	ctx := context.Background()
	areas := &fakeAreaSource{areas: map[string][]string{"wfo-1": {}}}
	cache := newResolveCache(t)
	n := NewNativity(areas, nil, &identityCountries{}, cache, instantThrottle(),
		WithRetryBlank(true))

	_, _ = n.EnrichTaxon(ctx, "wfo-1")

	// The source now has distribution text; the blank entry must be retried.
	areas.areas["wfo-1"] = []string{"Myanmar"}
	res, cached := n.EnrichTaxon(ctx, "wfo-1")
	assert.False(t, cached)
	assert.Equal(t, []string{"Myanmar"}, res.Countries)
	assert.Equal(t, 2, areas.calls)
}

func TestEnrichTaxon_ErroredEntryAlwaysRetried(t *testing.T) {
	ctx := context.Background()
	areas := &fakeAreaSource{err: errors.New("page unavailable")}
	cache := newResolveCache(t)
	n := NewNativity(areas, nil, &identityCountries{}, cache, instantThrottle())

	_, _ = n.EnrichTaxon(ctx, "wfo-1")

	areas.err = nil
	areas.areas = map[string][]string{"wfo-1": {"Myanmar"}}
	res, cached := n.EnrichTaxon(ctx, "wfo-1")
	assert.False(t, cached)
	assert.True(t, res.HasCountries())
}

func TestSplitAreas(t *testing.T) {
	got := splitAreas([]string{"Myanmar | Thailand", "Thailand", "Borneo"})
	assert.Equal(t, []string{"Myanmar", "Thailand", "Borneo"}, got)
}
