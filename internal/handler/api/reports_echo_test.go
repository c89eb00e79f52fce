package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/service/ratelimit"
	"RiskPulse/internal/services/analytics"
	"RiskPulse/internal/usecase"
)

var at = time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)

type stubGenerator struct {
	refreshErr error
	refreshes  int
}

func (s *stubGenerator) Catalog(context.Context) []models.CatalogEntry {
	return []models.CatalogEntry{
		{Name: "segment_performance", Title: "Segment Performance", LastGenerated: &at},
		{Name: "broken", Title: "broken", Error: "report broken: keys \"shoe_size\": unknown"},
	}
}

func (s *stubGenerator) Vocabulary(context.Context) map[string][]string {
	return map[string][]string{
		"keys":    {"grade", "state_code"},
		"metrics": {"default_rate_pct", "loan_count"},
		"fields":  {"loan_id"},
		"filters": {"defaulted"},
	}
}

func (s *stubGenerator) Report(_ context.Context, name string) (*models.Report, error) {
	switch name {
	case "segment_performance":
		return &models.Report{
			Name:        name,
			Title:       "Segment Performance",
			RunID:       "run-1",
			GeneratedAt: at,
			Columns: []models.Column{
				{Name: "customer_segment", Kind: models.KindText},
				{Name: "loan_count", Kind: models.KindInt},
			},
			Rows: []models.Row{
				{models.TextValue("Prime"), models.IntValue(40)},
				{models.TextValue("Stretch"), models.IntValue(25)},
				{models.NullValue(models.KindText), models.IntValue(5)},
			},
		}, nil
	case "broken":
		return nil, &analytics.ConfigError{Report: "broken", Field: "keys", Name: "shoe_size", Reason: "unknown"}
	}
	return nil, fmt.Errorf("%w: %s", analytics.ErrUnknownReport, name)
}

func (s *stubGenerator) Refresh(context.Context, string) (models.RunSummary, error) {
	s.refreshes++
	if s.refreshErr != nil {
		return models.RunSummary{}, s.refreshErr
	}
	return models.RunSummary{RunID: "run-2", Trigger: "api", StartedAt: at}, nil
}

type healthStub struct{ err error }

func (h healthStub) Health(context.Context) error { return h.err }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newEcho(gen *stubGenerator, limiter *ratelimit.Limiter, feed *ReportFeed) *echo.Echo {
	e := echo.New()
	NewReportsEchoHandler(nil, gen, healthStub{}, limiter, feed).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestCatalog(t *testing.T) {
	e := newEcho(&stubGenerator{}, nil, nil)
	rec, env := do(t, e, http.MethodGet, "/api/reports")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Rows  []models.CatalogEntry `json:"rows"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "segment_performance", list.Rows[0].Name)
	assert.NotEmpty(t, list.Rows[1].Error)
}

func TestVocabulary(t *testing.T) {
	e := newEcho(&stubGenerator{}, nil, nil)
	rec, env := do(t, e, http.MethodGet, "/api/reports/vocabulary")
	require.Equal(t, http.StatusOK, rec.Code)

	var names map[string][]string
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.Equal(t, []string{"grade", "state_code"}, names["keys"])
	assert.Contains(t, names["metrics"], "default_rate_pct")
}

func TestReportPaged(t *testing.T) {
	e := newEcho(&stubGenerator{}, nil, nil)
	rec, env := do(t, e, http.MethodGet, "/api/reports/segment_performance?page=2&page_size=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var r models.Report
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Page)
	require.Len(t, r.Rows, 1)
	assert.True(t, r.Rows[0][0].IsNull())
	assert.Equal(t, int64(5), r.Rows[0][1].Int())
}

func TestReportCSV(t *testing.T) {
	e := newEcho(&stubGenerator{}, nil, nil)
	rec, _ := do(t, e, http.MethodGet, "/api/reports/segment_performance?format=csv&page_size=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "segment_performance.csv")

	// csv ignores paging and renders null as an empty cell
	assert.Equal(t, "customer_segment,loan_count\nPrime,40\nStretch,25\n,5\n", rec.Body.String())
}

func TestReportErrors(t *testing.T) {
	e := newEcho(&stubGenerator{}, nil, nil)

	rec, _ := do(t, e, http.MethodGet, "/api/reports/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/reports/broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_INVALID_CONFIGURATION")

	rec, _ = do(t, e, http.MethodGet, "/api/reports/segment_performance?page_size=5000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"page_size"`)

	rec, _ = do(t, e, http.MethodGet, "/api/reports/segment_performance?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	gen := &stubGenerator{}
	e := newEcho(gen, ratelimit.PerMinute(1), nil)

	rec, env := do(t, e, http.MethodPost, "/api/reports/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, "run-2", summary.RunID)

	rec, _ = do(t, e, http.MethodPost, "/api/reports/refresh")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, gen.refreshes)
}

func TestRefreshConflict(t *testing.T) {
	e := newEcho(&stubGenerator{refreshErr: usecase.ErrRefreshInProgress}, nil, nil)
	rec, _ := do(t, e, http.MethodPost, "/api/reports/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_CONFLICT")
}

func TestHealth(t *testing.T) {
	e := echo.New()
	NewReportsEchoHandler(nil, &stubGenerator{}, healthStub{err: fmt.Errorf("connection refused")}, nil, nil).RegisterRoutes(e)
	rec, _ := do(t, e, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = do(t, newEcho(&stubGenerator{}, nil, nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFeedBroadcasts(t *testing.T) {
	feed := NewReportFeed(nil)
	srv := httptest.NewServer(newEcho(&stubGenerator{}, nil, feed))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/reports/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	feed.Notify(models.ReportNotice{RunID: "run-1", Report: "segment_performance", Rows: 3, GeneratedAt: at})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string              `json:"type"`
		Payload models.ReportNotice `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "report_generated", msg.Type)
	assert.Equal(t, "segment_performance", msg.Payload.Report)
	assert.Equal(t, 3, msg.Payload.Rows)

	feed.Close()
	assert.Zero(t, feed.Clients())
}
