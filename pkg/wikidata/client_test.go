package wikidata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlab/flora-cli/internal/georesolve"
	"github.com/verdantlab/flora-cli/internal/resilience"
)

func bindingsJSON(rows ...map[string]string) string {
	var sb strings.Builder
	sb.WriteString(`{"results":{"bindings":[`)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("{")
		first := true
		for name, value := range row {
			if !first {
				sb.WriteString(",")
			}
			first = false
			fmt.Fprintf(&sb, `%q:{"value":%q}`, name, value)
		}
		sb.WriteString("}")
	}
	sb.WriteString(`]}}`)
	return sb.String()
}

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(
		WithEndpoint(srv.URL),
		WithRateLimit(1000),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)
	return c, srv
}

func TestFindByLabelAndType_Country(t *testing.T) {
	var gotQuery string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(bindingsJSON(map[string]string{
			"entity":      "http://www.wikidata.org/entity/Q836",
			"entityLabel": "Myanmar",
		})))
	})
	defer srv.Close()

	got, err := c.FindByLabelAndType(context.Background(), "Myanmar", georesolve.TypeCountry)
	require.NoError(t, err)
	assert.Equal(t, []georesolve.Entity{{ID: "Q836", Label: "Myanmar"}}, got)
	assert.Contains(t, gotQuery, `"Myanmar"@en`)
	assert.Contains(t, gotQuery, "wd:Q6256 wd:Q3624078")
}

func TestFindByLabelAndType_GeographicFilter(t *testing.T) {
	var gotQuery string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(bindingsJSON()))
	})
	defer srv.Close()

	got, err := c.FindByLabelAndType(context.Background(), "Mount Kinabalu", georesolve.TypeGeographic)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Contains(t, gotQuery, "wdt:P625")
	assert.Contains(t, gotQuery, "wd:Q618123")
	assert.Contains(t, gotQuery, "wd:Q2221906")
}

func TestFindByLabelAndType_EscapesLiteral(t *testing.T) {
	var gotQuery string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(bindingsJSON()))
	})
	defer srv.Close()

	_, err := c.FindByLabelAndType(context.Background(), `Cape "York"`, georesolve.TypeCountry)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, `"Cape \"York\""@en`)
}

func TestFindByLabelAndType_BlankLabel(t *testing.T) {
	c := NewClient()
	got, err := c.FindByLabelAndType(context.Background(), "  ", georesolve.TypeCountry)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntityCountry(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("query"), "wd:Q132829 wdt:P17")
		w.Write([]byte(bindingsJSON(map[string]string{"countryLabel": "Malaysia"})))
	})
	defer srv.Close()

	got, err := c.EntityCountry(context.Background(), georesolve.Entity{ID: "Q132829"})
	require.NoError(t, err)
	assert.Equal(t, "Malaysia", got)
}

func TestEntityCountry_NoClaim(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bindingsJSON()))
	})
	defer srv.Close()

	got, err := c.EntityCountry(context.Background(), georesolve.Entity{ID: "Q1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEntityParent(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("query"), "wd:Q1 wdt:P131")
		w.Write([]byte(bindingsJSON(map[string]string{
			"parent":      "http://www.wikidata.org/entity/Q188953",
			"parentLabel": "Pahang",
		})))
	})
	defer srv.Close()

	got, err := c.EntityParent(context.Background(), georesolve.Entity{ID: "Q1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Q188953", got.ID)
	assert.Equal(t, "Pahang", got.Label)
}

func TestEntityParent_TopOfChain(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bindingsJSON()))
	})
	defer srv.Close()

	got, err := c.EntityParent(context.Background(), georesolve.Entity{ID: "Q836"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindByLabelAndType_DiscardsMalformedEntityURI(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bindingsJSON(
			map[string]string{
				"entity":      "http://www.wikidata.org/entity/Q836} UNION { ?x ?y ?z",
				"entityLabel": "mangled",
			},
			map[string]string{
				"entity":      "http://www.wikidata.org/entity/Q836",
				"entityLabel": "Myanmar",
			},
		)))
	})
	defer srv.Close()

	got, err := c.FindByLabelAndType(context.Background(), "Myanmar", georesolve.TypeCountry)
	require.NoError(t, err)
	assert.Equal(t, []georesolve.Entity{{ID: "Q836", Label: "Myanmar"}}, got)
}

func TestEntityCountry_RejectsInvalidID(t *testing.T) {
	c := NewClient()
	_, err := c.EntityCountry(context.Background(), georesolve.Entity{ID: "Q836} UNION { ?x ?y ?z"})
	assert.Error(t, err)
}

func TestEntityParent_RejectsInvalidID(t *testing.T) {
	c := NewClient()
	_, err := c.EntityParent(context.Background(), georesolve.Entity{ID: "not-an-id"})
	assert.Error(t, err)
}

func TestEntityID(t *testing.T) {
	assert.Equal(t, "Q836", entityID("http://www.wikidata.org/entity/Q836"))
	assert.Empty(t, entityID("http://www.wikidata.org/entity/Q836#frag"))
	assert.Empty(t, entityID("Q836} UNION { ?x ?y ?z"))
	assert.Empty(t, entityID(""))
}

func TestQuery_ThrottleIsTransient(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.FindByLabelAndType(context.Background(), "Peru", georesolve.TypeCountry)
	require.Error(t, err)
	assert.True(t, resilience.IsThrottle(err))
}
