package features

import (
	"errors"
	"testing"
	"time"

	"RiskPulse/internal/domain/models"
)

func TestDeriveFlags(t *testing.T) {
	cases := []struct {
		status        models.LoanStatus
		def, cur, pay bool
	}{
		{models.StatusCurrent, false, true, false},
		{models.StatusFullyPaid, false, false, true},
		{models.StatusChargedOff, true, false, false},
		{models.StatusDefault, true, false, false},
		{models.StatusLate31To120, true, false, false},
		{models.StatusLate16To30, false, false, false},
		{models.StatusInGrace, false, false, false},
	}
	for _, tc := range cases {
		d, c, p := DeriveFlags(tc.status)
		if d != tc.def || c != tc.cur || p != tc.pay {
			t.Fatalf("%s: got (%t,%t,%t) want (%t,%t,%t)", tc.status, d, c, p, tc.def, tc.cur, tc.pay)
		}
	}
}

func TestCheckFlags(t *testing.T) {
	ok := &models.LoanRecord{LoanID: "L1", Status: models.StatusChargedOff, IsDefault: true}
	if err := CheckFlags(ok); err != nil {
		t.Fatalf("unexpected mismatch: %v", err)
	}
	bad := &models.LoanRecord{LoanID: "L2", Status: models.StatusCurrent, IsCurrent: true, IsPaidOff: true}
	err := CheckFlags(bad)
	var fm *FlagMismatchError
	if !errors.As(err, &fm) {
		t.Fatalf("expected FlagMismatchError, got %v", err)
	}
	if fm.Field != "is_paid_off" {
		t.Fatalf("unexpected field %s", fm.Field)
	}
}

func TestBuckets(t *testing.T) {
	if got := FicoCategory(580); got != "Very Poor" {
		t.Fatalf("fico 580: %q", got)
	}
	if got := FicoCategory(581); got != "Poor" {
		t.Fatalf("fico 581: %q", got)
	}
	if got := FicoCategory(300); got != "" {
		t.Fatalf("fico 300 is outside the first bin, got %q", got)
	}
	if got := DTIBucket(35); got != "High" {
		t.Fatalf("dti 35: %q", got)
	}
	if got := IncomeBand(1_000_000); got != "" {
		t.Fatalf("income above range: %q", got)
	}
}

func TestNewTimeDimension(t *testing.T) {
	td := NewTimeDimension(time.Date(2017, time.November, 5, 13, 0, 0, 0, time.UTC))
	if td.DateKey != 20171105 || td.Quarter != 4 || td.MonthName != "November" || td.VintageMonth != "2017-11" {
		t.Fatalf("unexpected calendar row %+v", td)
	}
}

func TestJoinInnerSemantics(t *testing.T) {
	issued := time.Date(2018, 2, 1, 0, 0, 0, 0, time.UTC)
	snap := &models.Snapshot{
		Loans: []models.LoanRecord{
			{LoanID: "A", CustomerID: "C1", ProductID: "P1", GeographyID: "G1", IssueDate: issued, Status: models.StatusCurrent, IsCurrent: true},
			{LoanID: "B", CustomerID: "C404", ProductID: "P1", GeographyID: "G1", IssueDate: issued, Status: models.StatusCurrent, IsCurrent: true},
			{LoanID: "C", CustomerID: "C1", ProductID: "P404", GeographyID: "G1", IssueDate: issued, Status: models.StatusDefault},
		},
		Customers:   []models.CustomerProfile{{CustomerID: "C1"}},
		Products:    []models.ProductInfo{{ProductID: "P1"}},
		Geographies: []models.GeographyInfo{{GeographyID: "G1"}},
		Calendar:    []models.TimeDimension{NewTimeDimension(issued)},
	}
	idx := NewIndex(snap)
	if idx.FlagMismatches() != 1 {
		t.Fatalf("loan C stores is_default=false for a Default status; mismatches=%d", idx.FlagMismatches())
	}

	joined, stats := idx.Join(models.JoinCustomer | models.JoinProduct | models.JoinTime)
	if len(joined) != 1 || joined[0].Loan.LoanID != "A" {
		t.Fatalf("expected only loan A, got %d rows", len(joined))
	}
	if stats.Excluded["customer"] != 1 || stats.Excluded["product"] != 1 || stats.ExcludedTotal() != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if joined[0].Geography != nil {
		t.Fatalf("geography was not requested")
	}

	all, stats := idx.Join(models.JoinNone)
	if len(all) != 3 || stats.ExcludedTotal() != 0 {
		t.Fatalf("fact-only join must keep every loan")
	}
}
