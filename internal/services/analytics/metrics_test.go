package analytics

import (
	"testing"

	"github.com/shopspring/decimal"

	"RiskPulse/internal/domain/models"
)

func loan(id string, amount float64, isDefault bool) models.JoinedLoan {
	status := models.StatusCurrent
	if isDefault {
		status = models.StatusChargedOff
	}
	return models.JoinedLoan{Loan: &models.LoanRecord{
		LoanID:       id,
		LoanAmount:   amount,
		FundedAmount: amount,
		Status:       status,
		IsDefault:    isDefault,
		IsCurrent:    !isDefault,
	}}
}

func mustDec(t *testing.T, r Ratio, places int32, want string) {
	t.Helper()
	got := r.Round(places)
	if !got.Valid {
		t.Fatalf("expected %s, got undefined", want)
	}
	if s := got.Decimal.StringFixed(places); s != want {
		t.Fatalf("expected %s, got %s", want, s)
	}
}

func TestDefaultRateAndNPLVolume(t *testing.T) {
	loans := []models.JoinedLoan{loan("a", 10000, true), loan("b", 20000, false)}
	mustDec(t, DefaultRatePct(loans), 2, "50.00")
	mustDec(t, NPLVolumePct(loans), 2, "33.33")
	mustDec(t, NPLRatioPct(loans), 2, "50.00")
	mustDec(t, CurrentRatePct(loans), 2, "50.00")
	mustDec(t, PayoffRatePct(loans), 2, "0.00")
}

func TestRatesUndefinedOnEmpty(t *testing.T) {
	for name, f := range map[string]func([]models.JoinedLoan) Ratio{
		"default":   DefaultRatePct,
		"payoff":    PayoffRatePct,
		"current":   CurrentRatePct,
		"npl":       NPLRatioPct,
		"nplVolume": NPLVolumePct,
		"roi":       PortfolioROIPct,
	} {
		if got := f(nil); got.Defined() {
			t.Fatalf("%s: expected undefined on empty input, got %s/%s", name, got.Num, got.Den)
		}
	}
	if got := VolumePct(0, 0); got.Defined() {
		t.Fatalf("volume pct of empty population must be undefined")
	}
	if got := Avg(nil, LoanAmount); got.Defined() {
		t.Fatalf("avg of nothing must be undefined")
	}
}

func TestDefaultRateRange(t *testing.T) {
	var loans []models.JoinedLoan
	for i := 0; i < 37; i++ {
		loans = append(loans, loan("x", 1000, i%3 == 0))
		r := DefaultRatePct(loans).Round(2)
		if !r.Valid || r.Decimal.LessThan(decimal.Zero) || r.Decimal.GreaterThan(decimal.NewFromInt(100)) {
			t.Fatalf("rate out of range after %d loans: %v", i+1, r)
		}
	}
}

func TestPortfolioROI(t *testing.T) {
	a := loan("a", 1000, false)
	a.Loan.NetProfitLoss = 150
	b := loan("b", 3000, true)
	b.Loan.NetProfitLoss = -350
	mustDec(t, PortfolioROIPct([]models.JoinedLoan{a, b}), 2, "-5.00")

	zero := loan("z", 0, false)
	if got := PortfolioROIPct([]models.JoinedLoan{zero}); got.Defined() {
		t.Fatalf("roi with zero funded amount must be undefined")
	}
}

func TestAvgSkipsMissingCustomer(t *testing.T) {
	a := loan("a", 1, false)
	a.Customer = &models.CustomerProfile{FicoScore: 700}
	b := loan("b", 1, false)
	mustDec(t, Avg([]models.JoinedLoan{a, b}, FicoScore), 0, "700")
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	loans := []models.JoinedLoan{loan("a", 0.125, false), loan("b", 0.125, false)}
	v := models.DecimalValue(Avg(loans, LoanAmount).Round(2), 2)
	if v.Format() != "0.13" {
		t.Fatalf("expected 0.13, got %s", v.Format())
	}
	neg := models.DecimalValue(decimal.NewNullDecimal(decimal.RequireFromString("-2.5")), 0)
	if neg.Format() != "-3" {
		t.Fatalf("expected -3, got %s", neg.Format())
	}
}

func TestRoundedOnceAtOutputPrecision(t *testing.T) {
	// 37.024999999 must not be lifted to 37.03 by an intermediate rounding step.
	loans := []models.JoinedLoan{loan("a", 37.024999999, false)}
	mustDec(t, Avg(loans, LoanAmount), 2, "37.02")

	// 1/3 of 100 is 33.333..., 2/3 is 66.666...; both settle at two places.
	mustDec(t, VolumePct(1, 3), 2, "33.33")
	mustDec(t, VolumePct(2, 3), 2, "66.67")

	// A quotient whose 8th decimal sits on a half boundary.
	r := Ratio{Num: decimal.RequireFromString("0.004999999995"), Den: decimal.NewFromInt(1)}
	mustDec(t, r, 2, "0.00")
}

func TestRegistryMetricRoundsOnce(t *testing.T) {
	reg := NewRegistry()
	m, ok := reg.Metric("avg_loan_amount")
	if !ok {
		t.Fatalf("avg_loan_amount not registered")
	}
	loans := []models.JoinedLoan{loan("a", 12.344999999, false), loan("b", 12.344999999, false)}
	if got := m.Compute(Scope{Loans: loans, Population: 2}).Format(); got != "12.34" {
		t.Fatalf("expected 12.34, got %s", got)
	}
}
