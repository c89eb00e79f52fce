package service

import (
	"context"

	"RiskPulse/internal/domain/models"
)

// ReportGenerator is what the HTTP layer, the scheduler and the refresh
// consumer need from the report use case.
type ReportGenerator interface {
	Catalog(ctx context.Context) []models.CatalogEntry
	Vocabulary(ctx context.Context) map[string][]string
	Report(ctx context.Context, name string) (*models.Report, error)
	Refresh(ctx context.Context, trigger string) (models.RunSummary, error)
}
