package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	m, err := New(config.Monitoring{URLPrefix: "/screencast", MetricEnabled: true}, logger.Nop())
	require.NoError(t, err)
	defer func() { _ = m.server.Close() }()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screencast/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screencast/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfilingEndpoint(t *testing.T) {
	m, err := New(config.Monitoring{ProfilingEnabled: true}, logger.Nop())
	require.NoError(t, err)
	defer func() { _ = m.server.Close() }()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "monitoring:::0", m.String())
}
