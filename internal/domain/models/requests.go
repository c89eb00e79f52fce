package models

// ReportRequest is bound from GET /api/reports/:name.
type ReportRequest struct {
	Name     string `param:"name" validate:"required"`
	Page     int    `query:"page" default:"1" validate:"gte=1"`
	PageSize int    `query:"page_size" default:"100" validate:"gte=1,lte=1000"`
	Format   string `query:"format" default:"json" validate:"oneof=json csv"`
}
