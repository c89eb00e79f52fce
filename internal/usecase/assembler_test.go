package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/services/analytics"
	"RiskPulse/internal/services/features"
	"RiskPulse/pkg/config"
)

var fixed = time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixed }

// portfolio has 60 paid-off loans in California and 10 active at-risk loans
// in Vermont.
func portfolio() *models.Snapshot {
	day := time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC)
	td := features.NewTimeDimension(day)
	snap := &models.Snapshot{
		Customers: []models.CustomerProfile{
			{CustomerID: "C1", FicoScore: 640, CreditUtilization: 95, DTIRatio: 20, Segment: "Stretch", RiskCategory: "High Risk"},
			{CustomerID: "C2", FicoScore: 780, CreditUtilization: 10, DTIRatio: 5, Segment: "Prime", RiskCategory: "Low Risk"},
		},
		Products: []models.ProductInfo{{ProductID: "P1", Grade: "A", SubGrade: "A1", TermMonths: 36, Purpose: "car"}},
		Geographies: []models.GeographyInfo{
			{GeographyID: "G1", Region: "West", StateCode: "CA", StateName: "California"},
			{GeographyID: "G2", Region: "Northeast", StateCode: "VT", StateName: "Vermont"},
		},
		Calendar: []models.TimeDimension{td},
	}
	add := func(n int, geo, cust string, status models.LoanStatus) {
		for i := 0; i < n; i++ {
			l := models.LoanRecord{
				LoanID:       fmt.Sprintf("L%03d", len(snap.Loans)+1),
				CustomerID:   cust,
				ProductID:    "P1",
				GeographyID:  geo,
				DateKey:      td.DateKey,
				IssueDate:    day,
				LoanAmount:   1000,
				FundedAmount: 1000,
				InterestRate: 10,
				RiskScore:    50,
				Status:       status,
			}
			l.IsDefault, l.IsCurrent, l.IsPaidOff = features.DeriveFlags(status)
			snap.Loans = append(snap.Loans, l)
		}
	}
	add(60, "G1", "C2", models.StatusFullyPaid)
	add(10, "G2", "C1", models.StatusCurrent)
	return snap
}

func newAssembler(defs []analytics.Definition) *ReportAssembler {
	return NewReportAssembler(analytics.NewRegistry(), defs,
		WithClock(fixedClock), WithRunID(func() string { return "run-1" }), WithWorkers(3))
}

func byName(t *testing.T, results []Result, name string) *models.Report {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			if r.Err != nil {
				t.Fatalf("%s failed: %v", name, r.Err)
			}
			return r.Report
		}
	}
	t.Fatalf("no result for %s", name)
	return nil
}

func TestBuiltinReportsCompile(t *testing.T) {
	a := newAssembler(BuiltinReports())
	want := []string{
		"executive_summary", "risk_monitoring", "monthly_trends", "segment_performance",
		"geographic_performance", "cohort_analysis", "product_performance", "high_risk_alerts",
	}
	got := a.Names()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("names: want %v got %v", want, got)
	}
	for _, n := range want {
		if err := a.Check(n); err != nil {
			t.Fatalf("%s: %v", n, err)
		}
	}
	if err := a.Check("nope"); !errors.Is(err, analytics.ErrUnknownReport) {
		t.Fatalf("want ErrUnknownReport, got %v", err)
	}
}

func TestGenerateAllStampsRun(t *testing.T) {
	a := newAssembler(BuiltinReports())
	results, summary := a.GenerateAll(context.Background(), features.NewIndex(portfolio()), "test")

	if summary.RunID != "run-1" || summary.Trigger != "test" || !summary.StartedAt.Equal(fixed) {
		t.Fatalf("summary header: %+v", summary)
	}
	if len(summary.Reports) != 8 || summary.Failed() != 0 {
		t.Fatalf("summary: %+v", summary.Reports)
	}
	for _, res := range results {
		r := byName(t, results, res.Name)
		if r.RunID != "run-1" || !r.GeneratedAt.Equal(fixed) {
			t.Fatalf("%s: run %q at %v", r.Name, r.RunID, r.GeneratedAt)
		}
		last := r.Columns[len(r.Columns)-1].Name
		if last != analytics.GeneratedAtColumn {
			t.Fatalf("%s: last column %s", r.Name, last)
		}
		for i := range r.Rows {
			v, _ := r.Cell(i, analytics.GeneratedAtColumn)
			if !v.Time().Equal(fixed) {
				t.Fatalf("%s row %d stamped %v", r.Name, i, v.Time())
			}
		}
	}
}

func TestGeographicSuppression(t *testing.T) {
	a := newAssembler(BuiltinReports())
	results, _ := a.GenerateAll(context.Background(), features.NewIndex(portfolio()), "test")
	r := byName(t, results, "geographic_performance")

	if len(r.Rows) != 1 || r.Stats.Suppressed != 1 {
		t.Fatalf("want 1 row and 1 suppressed group, got %d rows %d suppressed", len(r.Rows), r.Stats.Suppressed)
	}
	if v, _ := r.Cell(0, "state_code"); v.Text() != "CA" {
		t.Fatalf("kept state %q", v.Text())
	}
	// share of the whole population, not of the surviving groups
	if v, _ := r.Cell(0, "volume_pct"); v.Format() != "85.71" {
		t.Fatalf("volume_pct %s", v.Format())
	}
}

func TestMinGroupSizeOverride(t *testing.T) {
	defs := CatalogDefinitions(map[string]int{"geographic_performance": 0}, nil)
	a := newAssembler(defs)
	r, err := a.Generate(context.Background(), "geographic_performance", features.NewIndex(portfolio()))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Rows) != 2 || r.Stats.Suppressed != 0 {
		t.Fatalf("want 2 rows, got %d (suppressed %d)", len(r.Rows), r.Stats.Suppressed)
	}
	// total_volume desc
	if v, _ := r.Cell(0, "state_code"); v.Text() != "CA" {
		t.Fatalf("first state %q", v.Text())
	}
}

func TestHighRiskAlerts(t *testing.T) {
	a := newAssembler(BuiltinReports())
	r, err := a.Generate(context.Background(), "high_risk_alerts", features.NewIndex(portfolio()))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Rows) != 10 {
		t.Fatalf("want 10 active at-risk loans, got %d", len(r.Rows))
	}
	score, _ := r.Cell(0, "priority_score")
	tier, _ := r.Cell(0, "alert_tier")
	if score.Format() != "54.50" || tier.Text() != "CRITICAL" {
		t.Fatalf("first alert: %s %s", score.Format(), tier.Text())
	}
	// equal scores and amounts fall back to loan_id ascending
	first, _ := r.Cell(0, "loan_id")
	if first.Text() != "L061" {
		t.Fatalf("first loan %s", first.Text())
	}
}

func TestEmptyPortfolio(t *testing.T) {
	a := newAssembler(BuiltinReports())
	results, summary := a.GenerateAll(context.Background(), features.NewIndex(&models.Snapshot{}), "test")
	if summary.Failed() != 0 {
		t.Fatalf("empty input must not fail: %+v", summary.Reports)
	}
	for _, res := range results {
		r := byName(t, results, res.Name)
		if r.Name == "executive_summary" {
			if len(r.Rows) != 1 {
				t.Fatalf("summary rows %d", len(r.Rows))
			}
			for _, col := range []string{"total_loans", "npl_ratio_pct", "avg_fico", "portfolio_roi_pct"} {
				if v, _ := r.Cell(0, col); !v.IsNull() {
					t.Fatalf("%s should be undefined, got %s", col, v.Format())
				}
			}
			continue
		}
		if len(r.Rows) != 0 {
			t.Fatalf("%s: %d rows on empty input", r.Name, len(r.Rows))
		}
	}
}

func TestInvalidCustomReportIsIsolated(t *testing.T) {
	defs := CatalogDefinitions(nil, []config.ReportDef{
		{Name: "by_income", Joins: []string{"customer"}, Keys: []string{"income_band"}, Metrics: []string{"loan_count"}, Sort: []string{"loan_count desc"}},
		{Name: "broken", Joins: []string{"customer"}, Keys: []string{"shoe_size"}, Metrics: []string{"loan_count"}},
		{Name: "bad_sort", Joins: []string{"customer"}, Keys: []string{"income_band"}, Metrics: []string{"loan_count"}, Sort: []string{"loan_count sideways"}},
	})
	a := newAssembler(defs)

	if err := a.Check("broken"); !errors.Is(err, analytics.ErrInvalidConfiguration) {
		t.Fatalf("broken: %v", err)
	}
	if err := a.Check("bad_sort"); !errors.Is(err, analytics.ErrInvalidConfiguration) {
		t.Fatalf("bad_sort: %v", err)
	}
	if a.Title("by_income") != "by_income" {
		t.Fatalf("title defaults to name, got %q", a.Title("by_income"))
	}

	results, summary := a.GenerateAll(context.Background(), features.NewIndex(portfolio()), "test")
	if summary.Failed() != 2 || len(results) != 11 {
		t.Fatalf("failed %d of %d", summary.Failed(), len(results))
	}
	byName(t, results, "by_income")
	byName(t, results, "executive_summary")
}

func TestDuplicateDefinitionIgnored(t *testing.T) {
	defs := append(BuiltinReports(), analytics.Definition{Name: "risk_monitoring", Metrics: []string{"nope"}})
	a := newAssembler(defs)
	if len(a.Names()) != 8 {
		t.Fatalf("names %v", a.Names())
	}
	if err := a.Check("risk_monitoring"); err != nil {
		t.Fatalf("first definition wins: %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&analytics.ConfigError{Report: "x", Field: "keys", Name: "y", Reason: "unknown"}, "invalid_configuration"},
		{fmt.Errorf("report x: %w", context.DeadlineExceeded), "timeout"},
		{context.Canceled, "canceled"},
		{errors.New("disk on fire"), "error"},
	}
	for _, c := range cases {
		if got := FailureReason(c.err); got != c.want {
			t.Fatalf("%v: want %s got %s", c.err, c.want, got)
		}
	}
}

func TestSlowReportTimesOutAlone(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	reg := analytics.NewRegistry()
	reg.RegisterMetric(analytics.MetricDef{Name: "stalled_count", Kind: models.KindInt,
		Compute: func(s analytics.Scope) models.Value {
			<-release
			return models.IntValue(int64(len(s.Loans)))
		}})
	defs := []analytics.Definition{
		{Name: "stalled", Metrics: []string{"stalled_count"}},
		{Name: "quick", Metrics: []string{"loan_count"}},
		{Name: "quick_too", Metrics: []string{"total_volume"}},
	}
	asm := NewReportAssembler(reg, defs, WithClock(fixedClock), WithRunID(func() string { return "run-1" }),
		WithWorkers(3), WithReportTimeout(200*time.Millisecond))

	results, summary := asm.GenerateAll(context.Background(), features.NewIndex(portfolio()), "test")
	if summary.Failed() != 1 {
		t.Fatalf("expected only the stalled report to fail, summary=%+v", summary)
	}
	for _, res := range results {
		if res.Name == "stalled" {
			if res.Report != nil || FailureReason(res.Err) != "timeout" {
				t.Fatalf("stalled report: report=%v err=%v", res.Report, res.Err)
			}
			continue
		}
		if r := byName(t, results, res.Name); len(r.Rows) != 1 {
			t.Fatalf("%s: expected one row, got %d", res.Name, len(r.Rows))
		}
	}
	n, _ := byName(t, results, "quick").Cell(0, "loan_count")
	if n.Int() != 70 {
		t.Fatalf("quick report counted %d loans", n.Int())
	}
}
