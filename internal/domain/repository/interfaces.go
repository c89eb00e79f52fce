package repository

import (
	"context"
	"errors"
	"time"

	"RiskPulse/internal/domain/models"
)

// ErrNotCached is returned by a ReportCache that holds no copy of a report.
var ErrNotCached = errors.New("report not cached")

// EntityStore reads the five logical collections as one consistent snapshot.
type EntityStore interface {
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotWriter loads a snapshot into a store. Used to seed a warehouse
// with the synthetic sample.
type SnapshotWriter interface {
	StoreSnapshot(ctx context.Context, s *models.Snapshot) error
}

type ReportCache interface {
	Get(ctx context.Context, name string) (*models.Report, error)
	Put(ctx context.Context, r *models.Report) error
	// TryLock guards a refresh so that only one replica regenerates at a time.
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

// ReportPublisher exports generated reports to downstream consumers.
type ReportPublisher interface {
	Publish(ctx context.Context, r *models.Report) error
	Close() error
}

// ReportNotifier tells live dashboards that a report changed.
type ReportNotifier interface {
	Notify(n models.ReportNotice)
}

type Metrics interface {
	RecordReport(report string, rows, suppressed int, excluded map[string]int, took time.Duration)
	RecordReportFailure(report, reason string)
	RecordFlagMismatch(n int)
	RecordCache(hit bool)
	RecordPublished(report string)
	RecordError(kind string)
	RecordLatency(op string, took time.Duration)
}
