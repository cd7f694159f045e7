package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/accidents-etl/internal/adapter/http"
	"github.com/couchcryptid/accidents-etl/internal/analytics"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockAnalytics struct {
	name   string
	filter analytics.Filter
	opts   analytics.Options
	table  analytics.Table
	err    error
}

func (m *mockAnalytics) Run(_ context.Context, name string, f analytics.Filter, opts analytics.Options) (analytics.Table, error) {
	m.name, m.filter, m.opts = name, f, opts
	if m.err != nil {
		return analytics.Table{}, m.err
	}
	return m.table, nil
}

func (m *mockAnalytics) FilterOptions(_ context.Context) (analytics.FilterOptions, error) {
	if m.err != nil {
		return analytics.FilterOptions{}, m.err
	}
	return analytics.FilterOptions{Years: []int{2019}, Boroughs: []string{"Camden"}, Severities: []string{"Fatal"}}, nil
}

func newTestServer(svc *mockAnalytics, readyErr error) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", svc, &mockReadiness{err: readyErr}, logger)
}

func serve(t *testing.T, srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(t, newTestServer(&mockAnalytics{}, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(t, newTestServer(&mockAnalytics{}, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenDatabaseDown(t *testing.T) {
	rec := serve(t, newTestServer(&mockAnalytics{}, fmt.Errorf("connection refused")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, newTestServer(&mockAnalytics{}, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAnalyticsQuery(t *testing.T) {
	total := int64(15000)
	svc := &mockAnalytics{table: analytics.Table{
		Columns: []string{"lat", "lon"},
		Rows:    [][]any{{51.5, -0.12}},
		Total:   &total,
	}}
	rec := serve(t, newTestServer(svc, nil), "/api/v1/analytics/locations?year=2019&borough=Camden&severity=Fatal")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"columns":["lat","lon"],"rows":[[51.5,-0.12]],"total":15000}`, rec.Body.String())

	assert.Equal(t, analytics.QueryLocations, svc.name)
	assert.Equal(t, `year="2019"&borough="Camden"&severity="Fatal"`, svc.filter.Key())
	assert.False(t, svc.opts.BySeverity)
}

func TestAnalyticsQuery_BySeverity(t *testing.T) {
	svc := &mockAnalytics{table: analytics.Table{Columns: []string{"weather_category"}, Rows: [][]any{}}}
	rec := serve(t, newTestServer(svc, nil), "/api/v1/analytics/weather?by_severity=true")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.opts.BySeverity)
	assert.True(t, svc.filter.Empty())
	assert.JSONEq(t, `{"columns":["weather_category"],"rows":[]}`, rec.Body.String())
}

func TestAnalyticsQuery_BadParams(t *testing.T) {
	for _, target := range []string{
		"/api/v1/analytics/severity?year=last",
		"/api/v1/analytics/weather?by_severity=sometimes",
	} {
		rec := serve(t, newTestServer(&mockAnalytics{}, nil), target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAnalyticsQuery_Unknown(t *testing.T) {
	svc := &mockAnalytics{err: fmt.Errorf("%w: %q", analytics.ErrUnknownQuery, "nope")}
	rec := serve(t, newTestServer(svc, nil), "/api/v1/analytics/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsQuery_Failure(t *testing.T) {
	svc := &mockAnalytics{err: errors.New("relation does not exist")}
	rec := serve(t, newTestServer(svc, nil), "/api/v1/analytics/severity")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation", "internal errors are not leaked")
}

func TestAnalyticsList(t *testing.T) {
	rec := serve(t, newTestServer(&mockAnalytics{}, nil), "/api/v1/analytics")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, analytics.Names(), body["queries"])
}

func TestAnalyticsFilters(t *testing.T) {
	rec := serve(t, newTestServer(&mockAnalytics{}, nil), "/api/v1/analytics/filters")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"years":[2019],"boroughs":["Camden"],"severities":["Fatal"]}`, rec.Body.String())
}
