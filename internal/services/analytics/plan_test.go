package analytics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/services/features"
)

var fixedNow = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

// portfolio builds loans over two grades with one loan lacking a grade and
// one loan pointing at a customer that does not exist.
func portfolio() *models.Snapshot {
	s := &models.Snapshot{
		Products: []models.ProductInfo{
			{ProductID: "PA", Grade: "A", SubGrade: "A1", TermMonths: 36, Purpose: "car"},
			{ProductID: "PB", Grade: "B", SubGrade: "B2", TermMonths: 60, Purpose: "debt_consolidation"},
			{ProductID: "PX", Grade: "", SubGrade: "", TermMonths: 36, Purpose: "other"},
		},
		Customers: []models.CustomerProfile{
			{CustomerID: "C1", FicoScore: 720, RiskCategory: "Low Risk", Segment: "Prime", CreditUtilization: 30, DTIRatio: 12},
			{CustomerID: "C2", FicoScore: 610, RiskCategory: "High Risk", Segment: "Stretch", CreditUtilization: 92, DTIRatio: 40, Delinquencies2y: 2},
		},
	}
	add := func(id, cust, prod string, amount float64, status models.LoanStatus, risk float64) {
		d, c, p := features.DeriveFlags(status)
		s.Loans = append(s.Loans, models.LoanRecord{
			LoanID: id, CustomerID: cust, ProductID: prod,
			LoanAmount: amount, FundedAmount: amount, Status: status,
			IsDefault: d, IsCurrent: c, IsPaidOff: p, RiskScore: risk,
		})
	}
	add("L1", "C1", "PA", 10000, models.StatusCurrent, 20)
	add("L2", "C1", "PA", 5000, models.StatusFullyPaid, 15)
	add("L3", "C2", "PB", 20000, models.StatusChargedOff, 88)
	add("L4", "C2", "PB", 15000, models.StatusCurrent, 80)
	add("L5", "C2", "PX", 7000, models.StatusCurrent, 70)
	add("L6", "C404", "PA", 9999, models.StatusCurrent, 99)
	return s
}

func TestPartitionNullKeyFormsGroup(t *testing.T) {
	reg := NewRegistry()
	grade, _ := reg.Key("grade")
	joined, _ := features.NewIndex(portfolio()).Join(models.JoinProduct)
	groups := Partition(joined, []KeyDef{grade})
	if len(groups) != 3 {
		t.Fatalf("expected A, B and a missing-grade group, got %d", len(groups))
	}
	nulls := 0
	total := decimal.Zero
	for _, g := range groups {
		if g.Key[0].IsNull() {
			nulls++
		}
		total = total.Add(Sum(g.Loans, LoanAmount))
	}
	if nulls != 1 {
		t.Fatalf("expected exactly one missing-grade group, got %d", nulls)
	}
	if !total.Equal(Sum(joined, LoanAmount)) {
		t.Fatalf("group volumes %s do not add up to %s", total, Sum(joined, LoanAmount))
	}
}

func TestPartitionWithoutKeys(t *testing.T) {
	groups := Partition(nil, nil)
	if len(groups) != 1 || len(groups[0].Loans) != 0 {
		t.Fatalf("no keys must give one (possibly empty) group")
	}
}

func TestSuppress(t *testing.T) {
	groups := []Group{{Loans: make([]models.JoinedLoan, 3)}, {Loans: make([]models.JoinedLoan, 50)}, {Loans: make([]models.JoinedLoan, 49)}}
	kept, dropped := Suppress(groups, 50)
	if len(kept) != 1 || dropped != 2 {
		t.Fatalf("kept=%d dropped=%d", len(kept), dropped)
	}
	if all, n := Suppress(groups, 0); len(all) != 3 || n != 0 {
		t.Fatalf("min 0 must keep everything")
	}
}

func TestCompileRejectsUnknownNames(t *testing.T) {
	reg := NewRegistry()
	cases := []Definition{
		{Name: "bad_key", Joins: []string{"product"}, Keys: []string{"colour"}, Metrics: []string{"loan_count"}},
		{Name: "bad_metric", Metrics: []string{"happiness_index"}},
		{Name: "missing_join", Keys: []string{"grade"}, Metrics: []string{"loan_count"}},
		{Name: "bad_join", Joins: []string{"weather"}, Metrics: []string{"loan_count"}},
		{Name: "bad_sort", Metrics: []string{"loan_count"}, Sort: []SortKey{{Column: "nope"}}},
		{Name: "bad_filter", Metrics: []string{"loan_count"}, Filters: []string{"at_risk"}},
		{Name: "mixed", Fields: []string{"loan_id"}, Metrics: []string{"loan_count"}},
		{Name: "empty"},
	}
	for _, def := range cases {
		_, err := reg.Compile(def)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("%s: expected invalid configuration, got %v", def.Name, err)
		}
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Report != def.Name {
			t.Fatalf("%s: expected ConfigError naming the report, got %v", def.Name, err)
		}
	}
}

func TestRunGroupedReport(t *testing.T) {
	reg := NewRegistry()
	plan, err := reg.Compile(Definition{
		Name:    "by_grade",
		Joins:   []string{"product", "customer"},
		Keys:    []string{"grade"},
		Metrics: []string{"loan_count", "total_volume", "volume_pct", "default_rate_pct"},
		Sort:    []SortKey{{Column: "total_volume", Desc: true}},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rep := plan.Run(features.NewIndex(portfolio()), fixedNow)

	if rep.Stats.Excluded["customer"] != 1 {
		t.Fatalf("loan with unknown customer must be excluded, stats=%+v", rep.Stats)
	}
	if len(rep.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rep.Rows))
	}
	var order []string
	for i := range rep.Rows {
		g, _ := rep.Cell(i, "grade")
		order = append(order, g.Format())
		ts, _ := rep.Cell(i, GeneratedAtColumn)
		if !ts.Time().Equal(fixedNow) {
			t.Fatalf("row %d: generated_at %v", i, ts.Time())
		}
	}
	if fmt.Sprint(order) != "[B A ]" {
		t.Fatalf("unexpected order %v", order)
	}
	rate, _ := rep.Cell(0, "default_rate_pct")
	if rate.Format() != "50.00" {
		t.Fatalf("grade B default rate: %s", rate.Format())
	}
	vol, _ := rep.Cell(0, "volume_pct")
	if vol.Format() != "40.00" {
		t.Fatalf("grade B volume pct: %s", vol.Format())
	}
}

func TestRunGroupsCoverPopulation(t *testing.T) {
	reg := NewRegistry()
	plan, err := reg.Compile(Definition{
		Name:    "grade_totals",
		Joins:   []string{"product"},
		Keys:    []string{"grade"},
		Metrics: []string{"loan_count", "total_volume"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	idx := features.NewIndex(portfolio())
	rep := plan.Run(idx, fixedNow)

	joined, _ := idx.Join(models.JoinProduct)
	count := int64(0)
	volume := decimal.Zero
	sawNull := false
	for i := range rep.Rows {
		g, _ := rep.Cell(i, "grade")
		sawNull = sawNull || g.IsNull()
		n, _ := rep.Cell(i, "loan_count")
		v, _ := rep.Cell(i, "total_volume")
		count += n.Int()
		volume = volume.Add(v.Decimal())
	}
	if !sawNull {
		t.Fatalf("missing-grade group not reported")
	}
	if count != int64(rep.Stats.Joined) {
		t.Fatalf("group counts add up to %d, joined %d", count, rep.Stats.Joined)
	}
	if want := Sum(joined, LoanAmount); !volume.Equal(want) {
		t.Fatalf("group volumes add up to %s, population %s", volume, want)
	}
}

func TestRunMinGroupSize(t *testing.T) {
	reg := NewRegistry()
	plan, err := reg.Compile(Definition{
		Name: "min", Joins: []string{"product"}, Keys: []string{"grade"},
		Metrics: []string{"loan_count"}, MinGroupSize: 3,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rep := plan.Run(features.NewIndex(portfolio()), fixedNow)
	if len(rep.Rows) != 1 || rep.Stats.Suppressed != 2 {
		t.Fatalf("only grade A has 3 loans; rows=%d suppressed=%d", len(rep.Rows), rep.Stats.Suppressed)
	}
	for i := range rep.Rows {
		n, _ := rep.Cell(i, "loan_count")
		if n.Int() < 3 {
			t.Fatalf("group below minimum size survived")
		}
	}
}

func TestRunDetailReport(t *testing.T) {
	reg := NewRegistry()
	plan, err := reg.Compile(Definition{
		Name:    "alerts",
		Joins:   []string{"customer", "product"},
		Fields:  []string{"loan_id", "loan_amount", "priority_score", "alert_tier"},
		Filters: []string{"active", "at_risk"},
		Sort:    []SortKey{{Column: "priority_score", Desc: true}, {Column: "loan_amount", Desc: true}},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rep := plan.Run(features.NewIndex(portfolio()), fixedNow)
	// L3 is charged off, L1/L2 are low risk, L6 has no customer.
	if len(rep.Rows) != 2 {
		t.Fatalf("expected L4 and L5, got %d rows", len(rep.Rows))
	}
	id, _ := rep.Cell(0, "loan_id")
	tier, _ := rep.Cell(0, "alert_tier")
	if id.Text() != "L4" || tier.Text() != string(TierCritical) {
		t.Fatalf("first row %s/%s", id.Text(), tier.Text())
	}
	score, _ := rep.Cell(0, "priority_score")
	if score.Format() != "71.60" {
		t.Fatalf("L4 priority: %s", score.Format())
	}
}

func TestRunEmptyInput(t *testing.T) {
	reg := NewRegistry()
	summary, err := reg.Compile(Definition{
		Name: "summary", Joins: []string{"customer"},
		Metrics: []string{"total_loans", "default_rate_pct", "avg_fico", "npl_alert"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	grouped, err := reg.Compile(Definition{Name: "g", Joins: []string{"product"}, Keys: []string{"grade"}, Metrics: []string{"loan_count"}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	idx := features.NewIndex(&models.Snapshot{})

	rep := summary.Run(idx, fixedNow)
	if len(rep.Rows) != 1 {
		t.Fatalf("summary must have exactly one row, got %d", len(rep.Rows))
	}
	for i, c := range rep.Columns {
		if c.Name == GeneratedAtColumn {
			continue
		}
		if !rep.Rows[0][i].IsNull() {
			t.Fatalf("%s must be undefined on empty input", c.Name)
		}
	}
	if rows := grouped.Run(idx, fixedNow).Rows; len(rows) != 0 {
		t.Fatalf("grouped report on empty input must have no rows")
	}
}

func TestParseSort(t *testing.T) {
	s, err := ParseSort("total_volume DESC")
	if err != nil || !s.Desc || s.Column != "total_volume" {
		t.Fatalf("got %+v %v", s, err)
	}
	if _, err := ParseSort("a b c"); err == nil {
		t.Fatalf("expected error")
	}
}
