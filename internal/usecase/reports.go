package usecase

import (
	"RiskPulse/internal/services/analytics"
	"RiskPulse/pkg/config"
)

func asc(col string) analytics.SortKey  { return analytics.SortKey{Column: col} }
func desc(col string) analytics.SortKey { return analytics.SortKey{Column: col, Desc: true} }

// BuiltinReports is the fixed catalog of portfolio reports, in display order.
func BuiltinReports() []analytics.Definition {
	return []analytics.Definition{
		{
			Name:  "executive_summary",
			Title: "Executive Summary",
			Joins: []string{"customer"},
			Metrics: []string{
				"total_loans", "total_volume", "total_funded", "avg_loan_amount", "avg_interest_rate",
				"default_count", "npl_ratio_pct", "npl_volume_pct", "current_rate_pct", "payoff_rate_pct",
				"avg_fico", "avg_risk_score", "avg_dti", "portfolio_roi_pct", "total_net_profit_loss", "npl_alert",
			},
		},
		{
			Name:  "risk_monitoring",
			Title: "Risk Monitoring",
			Joins: []string{"product", "customer"},
			Keys:  []string{"grade", "risk_category"},
			Metrics: []string{
				"loan_count", "total_volume", "volume_pct", "default_rate_pct", "avg_risk_score",
				"avg_default_probability_pct", "avg_fico", "avg_interest_rate",
			},
			Sort: []analytics.SortKey{asc("grade"), asc("risk_category")},
		},
		{
			Name:    "monthly_trends",
			Title:   "Monthly Trends",
			Joins:   []string{"time", "customer"},
			Keys:    []string{"year", "month", "month_name", "quarter"},
			Metrics: []string{"loan_count", "total_volume", "avg_loan_amount", "avg_interest_rate", "default_rate_pct", "avg_fico"},
			Sort:    []analytics.SortKey{desc("year"), desc("month")},
		},
		{
			Name:  "segment_performance",
			Title: "Segment Performance",
			Joins: []string{"customer"},
			Keys:  []string{"customer_segment", "risk_category"},
			Metrics: []string{
				"loan_count", "total_volume", "volume_pct", "avg_loan_amount", "default_rate_pct", "avg_fico",
				"avg_annual_income", "avg_dti", "avg_utilization", "avg_employment_years",
			},
			Sort: []analytics.SortKey{desc("total_volume")},
		},
		{
			Name:         "geographic_performance",
			Title:        "Geographic Performance",
			Joins:        []string{"geography", "customer"},
			Keys:         []string{"region", "state_code", "state_name"},
			Metrics:      []string{"loan_count", "total_volume", "volume_pct", "default_rate_pct", "avg_fico", "avg_interest_rate"},
			MinGroupSize: 50,
			Sort:         []analytics.SortKey{desc("total_volume")},
		},
		{
			Name:  "cohort_analysis",
			Title: "Cohort Analysis",
			Joins: []string{"time"},
			Keys:  []string{"vintage_month", "year", "quarter"},
			Metrics: []string{
				"loan_count", "total_volume", "default_rate_pct", "payoff_rate_pct", "current_rate_pct",
				"avg_months_since_issue", "total_payment", "principal_received", "portfolio_roi_pct",
			},
			Sort: []analytics.SortKey{desc("year"), desc("quarter")},
		},
		{
			Name:  "product_performance",
			Title: "Product Performance",
			Joins: []string{"product"},
			Keys:  []string{"grade", "sub_grade", "term_months", "purpose"},
			Metrics: []string{
				"loan_count", "total_volume", "avg_interest_rate", "avg_installment", "default_rate_pct",
				"payoff_rate_pct", "portfolio_roi_pct",
			},
			Sort: []analytics.SortKey{desc("total_volume")},
		},
		{
			Name:  "high_risk_alerts",
			Title: "High-Risk Alerts",
			Joins: []string{"customer", "product"},
			Fields: []string{
				"loan_id", "customer_id", "grade", "sub_grade", "loan_amount", "interest_rate", "risk_score",
				"credit_utilization", "dti_ratio", "delinquencies_2yrs", "fico_score", "customer_segment",
				"priority_score", "alert_tier",
			},
			Filters: []string{"active", "at_risk"},
			Sort:    []analytics.SortKey{desc("priority_score"), desc("loan_amount")},
		},
	}
}

// CatalogDefinitions returns the built-in reports with min group size
// overrides applied, followed by the custom reports.
func CatalogDefinitions(minGroupSize map[string]int, custom []config.ReportDef) []analytics.Definition {
	defs := BuiltinReports()
	for i := range defs {
		if n, ok := minGroupSize[defs[i].Name]; ok {
			defs[i].MinGroupSize = n
		}
	}
	for _, c := range custom {
		defs = append(defs, customDefinition(c))
	}
	return defs
}

// customDefinition keeps an unparsable sort clause as a column name so that
// compiling the report rejects it.
func customDefinition(c config.ReportDef) analytics.Definition {
	def := analytics.Definition{
		Name:         c.Name,
		Title:        c.Title,
		Joins:        c.Joins,
		Keys:         c.Keys,
		Metrics:      c.Metrics,
		Fields:       c.Fields,
		Filters:      c.Filters,
		MinGroupSize: c.MinGroupSize,
	}
	if def.Title == "" {
		def.Title = c.Name
	}
	for _, s := range c.Sort {
		k, err := analytics.ParseSort(s)
		if err != nil {
			k = analytics.SortKey{Column: s}
		}
		def.Sort = append(def.Sort, k)
	}
	return def
}
