package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"RiskPulse/internal/domain/models"
	domrepo "RiskPulse/internal/domain/repository"
	domsvc "RiskPulse/internal/domain/service"
	pkgkafka "RiskPulse/pkg/kafka"
	applogger "RiskPulse/pkg/logger"
)

// SnapshotRefreshHandler regenerates the catalog when the ingestion process
// announces a warehouse reload.
type SnapshotRefreshHandler struct {
	topic   string
	gen     domsvc.ReportGenerator
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewSnapshotRefreshHandler(topic string, gen domsvc.ReportGenerator, metrics domrepo.Metrics, l *applogger.Logger) *SnapshotRefreshHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &SnapshotRefreshHandler{topic: topic, gen: gen, metrics: metrics, l: l}
}

func (h *SnapshotRefreshHandler) Topic() string { return h.topic }

// incoming message schema: {source, loaded_at, loans}
func (h *SnapshotRefreshHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.SnapshotLoaded
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode snapshot event: %w", err)
	}
	if !ev.LoadedAt.IsZero() {
		h.metrics.RecordLatency("snapshot_event_lag", time.Since(ev.LoadedAt))
	}

	summary, err := h.gen.Refresh(ctx, "snapshot:"+ev.Source)
	if errors.Is(err, ErrRefreshInProgress) {
		h.l.Info("snapshot event skipped, refresh running", applogger.String("source", ev.Source))
		return nil
	}
	if err != nil {
		h.metrics.RecordError("consumer_refresh")
		return err
	}
	h.l.Info("snapshot event handled",
		applogger.String("source", ev.Source),
		applogger.Int("loans", ev.Loans),
		applogger.String("run_id", summary.RunID),
		applogger.Int("failed", summary.Failed()))
	return nil
}

var _ pkgkafka.MessageHandler = (*SnapshotRefreshHandler)(nil)

// RefreshScheduler runs Refresh on a cron schedule.
type RefreshScheduler struct {
	cron    *cron.Cron
	gen     domsvc.ReportGenerator
	timeout time.Duration
	l       *applogger.Logger
}

// NewRefreshScheduler accepts standard five-field specs and descriptors
// such as "@every 1h".
func NewRefreshScheduler(spec string, gen domsvc.ReportGenerator, timeout time.Duration, l *applogger.Logger) (*RefreshScheduler, error) {
	if l == nil {
		l = applogger.Nop()
	}
	s := &RefreshScheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		gen:     gen,
		timeout: timeout,
		l:       l,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *RefreshScheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.gen.Refresh(ctx, "schedule"); err != nil && !errors.Is(err, ErrRefreshInProgress) {
		s.l.Error("scheduled refresh failed", applogger.Error(err))
	}
}

func (s *RefreshScheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for a running one within ctx.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
