package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"RiskPulse/internal/domain/models"
	domsvc "RiskPulse/internal/domain/service"
	"RiskPulse/internal/service/metrics"
	"RiskPulse/internal/service/ratelimit"
	"RiskPulse/internal/services/analytics"
	"RiskPulse/internal/usecase"
	xhttp "RiskPulse/pkg/http"
	xlogger "RiskPulse/pkg/logger"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ReportsEchoHandler serves the report catalog over HTTP.
type ReportsEchoHandler struct {
	logger  *xlogger.Logger
	gen     domsvc.ReportGenerator
	store   HealthChecker
	limiter *ratelimit.Limiter
	feed    *ReportFeed
}

func NewReportsEchoHandler(logger *xlogger.Logger, gen domsvc.ReportGenerator, store HealthChecker, limiter *ratelimit.Limiter, feed *ReportFeed) *ReportsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	metrics.Register()
	return &ReportsEchoHandler{logger: logger, gen: gen, store: store, limiter: limiter, feed: feed}
}

func (h *ReportsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api/reports")
	g.GET("", h.Catalog)
	g.GET("/vocabulary", h.Vocabulary)
	g.POST("/refresh", h.Refresh)
	if h.feed != nil {
		g.GET("/feed", h.feed.Serve)
	}
	g.GET("/:name", h.Report)
}

func (h *ReportsEchoHandler) Catalog(c echo.Context) error {
	defer observe("catalog", "json", time.Now())
	entries := h.gen.Catalog(c.Request().Context())
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

// Vocabulary lists the names custom report definitions can use.
func (h *ReportsEchoHandler) Vocabulary(c echo.Context) error {
	defer observe("vocabulary", "json", time.Now())
	return xhttp.SuccessResponse(c, h.gen.Vocabulary(c.Request().Context()))
}

func (h *ReportsEchoHandler) Report(c echo.Context) error {
	req := &models.ReportRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("report", "ERR_BAD_REQUEST").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	defer observe("report", req.Format, time.Now())

	r, err := h.gen.Report(c.Request().Context(), req.Name)
	if err != nil {
		return h.fail(c, "report", reportError(req.Name, err))
	}

	if req.Format == "csv" {
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", r.Name+".csv"))
		c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
		c.Response().WriteHeader(http.StatusOK)
		if err := r.WriteCSV(c.Response()); err != nil {
			h.logger.Error("csv export failed", xlogger.String("report", r.Name), xlogger.Error(err))
		}
		return nil
	}
	return xhttp.SuccessResponse(c, r.Paginate(req.Page, req.PageSize))
}

func (h *ReportsEchoHandler) Refresh(c echo.Context) error {
	defer observe("refresh", "json", time.Now())
	if !h.limiter.Allow(c.RealIP()) {
		return h.fail(c, "refresh", xhttp.TooManyRequestsError("refresh rate limit exceeded"))
	}
	summary, err := h.gen.Refresh(c.Request().Context(), "api")
	if errors.Is(err, usecase.ErrRefreshInProgress) {
		return h.fail(c, "refresh", xhttp.ConflictError(err.Error()))
	}
	if err != nil {
		return h.fail(c, "refresh", xhttp.InternalError("refresh failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *ReportsEchoHandler) Health(c echo.Context) error {
	if h.store != nil {
		if err := h.store.Health(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", xlogger.Error(err))
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"store": err.Error()})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"store": "ok"})
}

func (h *ReportsEchoHandler) fail(c echo.Context, endpoint string, appErr *xhttp.AppError) error {
	metrics.APIErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("request failed", xlogger.String("endpoint", endpoint), xlogger.Error(appErr))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func reportError(name string, err error) *xhttp.AppError {
	switch {
	case errors.Is(err, analytics.ErrUnknownReport):
		return xhttp.NotFoundErrorf("report %s not found", name).WithParam("report", name)
	case errors.Is(err, analytics.ErrInvalidConfiguration):
		return xhttp.InvalidConfigurationError(name, err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.InternalError("report generation timed out").WithParam("report", name).WithError(err)
	default:
		return xhttp.InternalError("report generation failed").WithParam("report", name).WithError(err)
	}
}

func observe(endpoint, format string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint, format).Observe(time.Since(start).Seconds())
}

var _ xhttp.Handler = (*ReportsEchoHandler)(nil)
