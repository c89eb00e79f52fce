package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"RiskPulse/internal/domain/models"
	domrepo "RiskPulse/internal/domain/repository"
	domsvc "RiskPulse/internal/domain/service"
	"RiskPulse/internal/services/features"
	applogger "RiskPulse/pkg/logger"
)

// ErrRefreshInProgress is returned when another refresh holds the lock.
var ErrRefreshInProgress = errors.New("refresh already in progress")

const refreshLock = "all"

// ReportService serves reports from memory, then the shared cache, and
// generates on demand when neither has a copy. Refresh regenerates the whole
// catalog from a fresh snapshot and fans the results out.
type ReportService struct {
	store   domrepo.EntityStore
	asm     *ReportAssembler
	cache   domrepo.ReportCache
	pub     domrepo.ReportPublisher
	notify  domrepo.ReportNotifier
	metrics domrepo.Metrics
	l       *applogger.Logger
	lockTTL time.Duration

	sf      singleflight.Group
	running sync.Mutex // one refresh per process, with or without a cache
	mu      sync.RWMutex
	latest  map[string]*models.Report
}

// ServiceOption configures ReportService.
type ServiceOption func(*ReportService)

// WithCache enables the shared report cache and the cross-replica refresh lock.
func WithCache(c domrepo.ReportCache) ServiceOption {
	return func(s *ReportService) { s.cache = c }
}

func WithPublisher(p domrepo.ReportPublisher) ServiceOption {
	return func(s *ReportService) { s.pub = p }
}

func WithNotifier(n domrepo.ReportNotifier) ServiceOption {
	return func(s *ReportService) { s.notify = n }
}

func WithLogger(l *applogger.Logger) ServiceOption {
	return func(s *ReportService) {
		if l != nil {
			s.l = l
		}
	}
}

// WithLockTTL bounds how long a crashed refresh can hold the lock.
func WithLockTTL(d time.Duration) ServiceOption {
	return func(s *ReportService) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func NewReportService(store domrepo.EntityStore, asm *ReportAssembler, metrics domrepo.Metrics, opts ...ServiceOption) *ReportService {
	s := &ReportService{
		store:   store,
		asm:     asm,
		metrics: metrics,
		l:       applogger.Nop(),
		lockTTL: 5 * time.Minute,
		latest:  make(map[string]*models.Report),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ domsvc.ReportGenerator = (*ReportService)(nil)

func (s *ReportService) Vocabulary(_ context.Context) map[string][]string {
	return s.asm.Vocabulary()
}

func (s *ReportService) Catalog(_ context.Context) []models.CatalogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.asm.Names()
	out := make([]models.CatalogEntry, 0, len(names))
	for _, name := range names {
		e := models.CatalogEntry{Name: name, Title: s.asm.Title(name)}
		if r, ok := s.latest[name]; ok {
			at := r.GeneratedAt
			e.LastGenerated = &at
		}
		if err := s.asm.Check(name); err != nil {
			e.Error = err.Error()
		}
		out = append(out, e)
	}
	return out
}

// Report returns the latest generation of name.
func (s *ReportService) Report(ctx context.Context, name string) (*models.Report, error) {
	if err := s.asm.Check(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	r, ok := s.latest[name]
	s.mu.RUnlock()
	if ok {
		return r, nil
	}

	if s.cache != nil {
		r, err := s.cache.Get(ctx, name)
		switch {
		case err == nil:
			s.metrics.RecordCache(true)
			s.remember(r)
			return r, nil
		case errors.Is(err, domrepo.ErrNotCached):
			s.metrics.RecordCache(false)
		default:
			s.metrics.RecordError("cache_get")
			s.l.Warn("report cache read failed", applogger.String("report", name), applogger.Error(err))
		}
	}

	v, err, _ := s.sf.Do(name, func() (interface{}, error) {
		idx, err := s.index(ctx)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		r, err := s.asm.Generate(ctx, name, idx)
		if err != nil {
			s.metrics.RecordReportFailure(name, FailureReason(err))
			return nil, err
		}
		r.RunID = "on-demand"
		s.recordGenerated(r, time.Since(start))
		s.remember(r)
		s.putCache(ctx, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Report), nil
}

// Refresh regenerates every report. trigger names the caller (api,
// schedule, snapshot event, boot) for the logs and the run summary.
func (s *ReportService) Refresh(ctx context.Context, trigger string) (models.RunSummary, error) {
	if !s.running.TryLock() {
		return models.RunSummary{}, ErrRefreshInProgress
	}
	defer s.running.Unlock()

	if s.cache != nil {
		ok, err := s.cache.TryLock(ctx, refreshLock, s.lockTTL)
		if err != nil {
			s.metrics.RecordError("refresh_lock")
			s.l.Warn("refresh lock unavailable, refreshing anyway", applogger.Error(err))
		} else if !ok {
			return models.RunSummary{}, ErrRefreshInProgress
		} else {
			defer func() {
				if err := s.cache.Unlock(context.Background(), refreshLock); err != nil {
					s.l.Warn("refresh unlock failed", applogger.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	idx, err := s.index(ctx)
	if err != nil {
		return models.RunSummary{}, err
	}
	results, summary := s.asm.GenerateAll(ctx, idx, trigger)

	for _, res := range results {
		if res.Err != nil {
			s.metrics.RecordReportFailure(res.Name, FailureReason(res.Err))
			s.l.Error("report generation failed",
				applogger.String("run_id", summary.RunID),
				applogger.String("report", res.Name),
				applogger.Error(res.Err))
			continue
		}
		r := res.Report
		s.recordGenerated(r, res.Took)
		s.remember(r)
		s.putCache(ctx, r)
		if s.pub != nil {
			if err := s.pub.Publish(ctx, r); err != nil {
				s.metrics.RecordError("publish")
				s.l.Warn("report publish failed", applogger.String("report", r.Name), applogger.Error(err))
			} else {
				s.metrics.RecordPublished(r.Name)
			}
		}
		if s.notify != nil {
			s.notify.Notify(models.ReportNotice{RunID: r.RunID, Report: r.Name, Rows: len(r.Rows), GeneratedAt: r.GeneratedAt})
		}
	}

	s.metrics.RecordLatency("refresh", time.Since(start))
	s.l.Info("reports refreshed",
		applogger.String("run_id", summary.RunID),
		applogger.String("trigger", trigger),
		applogger.Int("reports", len(summary.Reports)),
		applogger.Int("failed", summary.Failed()),
		applogger.Duration("duration_ms", time.Since(start)))
	return summary, nil
}

func (s *ReportService) index(ctx context.Context) (*features.Index, error) {
	start := time.Now()
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		s.metrics.RecordError("snapshot")
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	s.metrics.RecordLatency("snapshot", time.Since(start))
	idx := features.NewIndex(snap)
	s.metrics.RecordFlagMismatch(idx.FlagMismatches())
	s.l.Quality("flag_mismatch", "", "loan flags disagree with status", idx.FlagMismatches())
	return idx, nil
}

func (s *ReportService) recordGenerated(r *models.Report, took time.Duration) {
	s.metrics.RecordReport(r.Name, len(r.Rows), r.Stats.Suppressed, r.Stats.Excluded, took)
	for dim, n := range r.Stats.Excluded {
		s.l.Quality("missing_join_target", r.Name, dim, n)
	}
	s.l.Info("report generated",
		applogger.String("report", r.Name),
		applogger.String("run_id", r.RunID),
		applogger.Int("rows", len(r.Rows)),
		applogger.Int("excluded", r.Stats.ExcludedTotal()),
		applogger.Int("suppressed_groups", r.Stats.Suppressed),
		applogger.Duration("duration_ms", took))
}

func (s *ReportService) remember(r *models.Report) {
	s.mu.Lock()
	if cur, ok := s.latest[r.Name]; !ok || !cur.GeneratedAt.After(r.GeneratedAt) {
		s.latest[r.Name] = r
	}
	s.mu.Unlock()
}

func (s *ReportService) putCache(ctx context.Context, r *models.Report) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, r); err != nil {
		s.metrics.RecordError("cache_put")
		s.l.Warn("report cache write failed", applogger.String("report", r.Name), applogger.Error(err))
	}
}
