package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_record(t *testing.T) {
	m := New()

	m.Mutation("add", "created")
	m.Mutation("add", "created")
	m.Mutation("remove", "error")
	m.StoreError("save")
	m.ResolveFailed()
	m.SetCards(3)
	m.SetReferenceCities(80)
	m.ObserveSave(20 * time.Millisecond)

	body := scrape(t, m)
	for _, line := range []string{
		`figured_mutations_total{op="add",outcome="created"} 2`,
		`figured_mutations_total{op="remove",outcome="error"} 1`,
		`figured_store_errors_total{op="save"} 1`,
		`figured_zone_resolve_failures_total 1`,
		`figured_cards 3`,
		`figured_reference_cities 80`,
		`figured_store_save_duration_seconds_count 1`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestMetrics_nilIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Mutation("add", "created")
		m.StoreError("load")
		m.ResolveFailed()
		m.SetCards(1)
		m.SetReferenceCities(1)
		m.ObserveSave(time.Second)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_handler(t *testing.T) {
	m := New()
	m.SetCards(5)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "figured_cards 5"))
}

// Two instances must not collide on registration.
func TestNew_independentRegistries(t *testing.T) {
	var a, b *Metrics
	assert.NotPanics(t, func() {
		a = New()
		b = New()
	})
	assert.NotSame(t, a.Registry(), b.Registry())

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
