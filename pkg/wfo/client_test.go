package wfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlab/flora-cli/internal/resilience"
)

const taxonPage = `<html><head><title>Acalypha hispida Burm.f.</title>
<style>.d { color: red }</style></head>
<body>
<script>trackPageView("taxon");</script>
<h1>Acalypha hispida Burm.f.</h1>
<p>This species is accepted, and its native range is Asia-Tropical.</p>
<h2>Distribution</h2>
<p>Found in:</p>
<ul>
  <li><a href="/area/MYA">Myanmar</a></li>
  <li>Thailand | Vietnam</li>
  <li>[3]</li>
  <li>42</li>
  <li>doi: 10.1234/example</li>
  <li>https://example.org/flora</li>
  <li><a href="/area/BOR">Borneo</a></li>
</ul>
<h2>Bibliography</h2>
<ul><li>Govaerts, R. (2003). World Checklist of Euphorbiaceae. Belgium</li></ul>
</body></html>`

func newTestClient(handler http.HandlerFunc) (Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(
		WithBaseURL(srv.URL),
		WithRateLimit(1000),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)
	return c, srv
}

func TestNativeAreas_ExtractsFoundInTokens(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taxon/wfo-0000949392", r.URL.Path)
		w.Write([]byte(taxonPage))
	})
	defer srv.Close()

	got, err := c.NativeAreas(context.Background(), "WFO-0000949392")
	require.NoError(t, err)
	assert.Equal(t, []string{"Myanmar", "Thailand", "Vietnam", "Borneo"}, got)
}

func TestNativeAreas_NoDistributionBlock(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Some taxon</h1><p>No distribution here.</p></body></html>`))
	})
	defer srv.Close()

	got, err := c.NativeAreas(context.Background(), "wfo-0000000001")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNativeAreas_EmptyID(t *testing.T) {
	c := NewClient()
	_, err := c.NativeAreas(context.Background(), "  ")
	assert.Error(t, err)
}

func TestNativeAreas_ServerErrorIsTransient(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := c.NativeAreas(context.Background(), "wfo-0000949392")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestNativeAreas_NotFoundIsPermanent(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	_, err := c.NativeAreas(context.Background(), "wfo-0000000002")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestTaxonURL(t *testing.T) {
	c := NewClient(WithBaseURL("https://wfo.example/"))
	assert.Equal(t, "https://wfo.example/taxon/wfo-123", c.TaxonURL(" WFO-123 "))
}

func TestExtractFoundIn_StopsAtIntroducedInto(t *testing.T) {
	page := `<p>Found in:</p>
<a>Mexico</a>
<p>Introduced into:</p>
<a>Spain</a>`
	assert.Equal(t, []string{"Mexico"}, extractFoundIn(page))
}

func TestExtractFoundIn_DedupsInPageOrder(t *testing.T) {
	page := `<p>Found in:</p><a>Peru</a><a>Bolivia</a><a>peru</a>`
	assert.Equal(t, []string{"Peru", "Bolivia"}, extractFoundIn(page))
}

func TestLooksLikeAreaToken(t *testing.T) {
	valid := []string{"Myanmar", "New South Wales", "Cote d'Ivoire"}
	for _, tok := range valid {
		assert.True(t, looksLikeAreaToken(tok), "token %q", tok)
	}
	invalid := []string{"", "at", "[12]", "907", "doi: 10.1/x", "https://x.org", "---", "References"}
	for _, tok := range invalid {
		assert.False(t, looksLikeAreaToken(tok), "token %q", tok)
	}
}
