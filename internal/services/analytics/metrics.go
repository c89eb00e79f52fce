package analytics

import (
	"github.com/shopspring/decimal"

	"RiskPulse/internal/domain/models"
)

// Predicate selects loans for a conditional count.
type Predicate func(l *models.JoinedLoan) bool

// Measure reads one numeric attribute. ok=false means the attribute is not
// available for this loan (dimension not joined) and the loan is skipped.
type Measure func(l *models.JoinedLoan) (v float64, ok bool)

var hundred = decimal.NewFromInt(100)

// Ratio is an unreduced quotient. It is only divided when rounded, so every
// metric is rounded exactly once, at its output precision.
type Ratio struct {
	Num, Den decimal.Decimal
}

// Defined reports whether the denominator is non-zero.
func (r Ratio) Defined() bool { return !r.Den.IsZero() }

// Round divides half away from zero at places, undefined when Den is zero.
func (r Ratio) Round(places int32) decimal.NullDecimal {
	if !r.Defined() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(r.Num.DivRound(r.Den, places))
}

// Scale multiplies the numerator by k.
func (r Ratio) Scale(k decimal.Decimal) Ratio { return Ratio{Num: r.Num.Mul(k), Den: r.Den} }

// Common predicates. Default and current use the stored flags; payoff reads
// the status string the way the portfolio views do.
var (
	IsDefault Predicate = func(l *models.JoinedLoan) bool { return l.Loan.IsDefault }
	IsCurrent Predicate = func(l *models.JoinedLoan) bool { return l.Loan.IsCurrent }
	IsPaidOff Predicate = func(l *models.JoinedLoan) bool { return l.Loan.Status == models.StatusFullyPaid }
)

// CountIf counts loans matching p.
func CountIf(loans []models.JoinedLoan, p Predicate) int {
	n := 0
	for i := range loans {
		if p(&loans[i]) {
			n++
		}
	}
	return n
}

// RatePct is 100 * count(p) / count(loans), undefined for an empty collection.
// Every rate-style metric is built on it.
func RatePct(loans []models.JoinedLoan, p Predicate) Ratio {
	return Percent(decimal.NewFromInt(int64(CountIf(loans, p))), decimal.NewFromInt(int64(len(loans))))
}

// Percent is 100 * num / den, undefined when den is zero.
func Percent(num, den decimal.Decimal) Ratio {
	return Ratio{Num: num.Mul(hundred), Den: den}
}

func DefaultRatePct(loans []models.JoinedLoan) Ratio { return RatePct(loans, IsDefault) }

func PayoffRatePct(loans []models.JoinedLoan) Ratio { return RatePct(loans, IsPaidOff) }

func CurrentRatePct(loans []models.JoinedLoan) Ratio { return RatePct(loans, IsCurrent) }

// NPLRatioPct is the portfolio-level name of the default rate.
func NPLRatioPct(loans []models.JoinedLoan) Ratio { return DefaultRatePct(loans) }

// VolumePct is the group's loan count as a share of the population count.
func VolumePct(group, population int) Ratio {
	return Percent(decimal.NewFromInt(int64(group)), decimal.NewFromInt(int64(population)))
}

// NPLVolumePct is the defaulted loan amount as a share of total loan amount.
func NPLVolumePct(loans []models.JoinedLoan) Ratio {
	all := Sum(loans, LoanAmount)
	bad := SumIf(loans, LoanAmount, IsDefault)
	return Percent(bad, all)
}

// PortfolioROIPct is 100 * sum(net_profit_loss) / sum(funded_amount).
func PortfolioROIPct(loans []models.JoinedLoan) Ratio {
	return Percent(Sum(loans, NetProfitLoss), Sum(loans, FundedAmount))
}

// Sum adds m over loans. Values are converted to decimal before adding.
func Sum(loans []models.JoinedLoan, m Measure) decimal.Decimal {
	return SumIf(loans, m, nil)
}

// SumIf adds m over loans matching p (all loans when p is nil).
func SumIf(loans []models.JoinedLoan, m Measure, p Predicate) decimal.Decimal {
	total := decimal.Zero
	for i := range loans {
		if p != nil && !p(&loans[i]) {
			continue
		}
		if v, ok := m(&loans[i]); ok {
			total = total.Add(decimal.NewFromFloat(v))
		}
	}
	return total
}

// Avg is the mean of m over the loans that carry it, undefined when none do.
func Avg(loans []models.JoinedLoan, m Measure) Ratio {
	total := decimal.Zero
	n := int64(0)
	for i := range loans {
		if v, ok := m(&loans[i]); ok {
			total = total.Add(decimal.NewFromFloat(v))
			n++
		}
	}
	return Ratio{Num: total, Den: decimal.NewFromInt(n)}
}

// Loan measures.
var (
	LoanAmount         Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.LoanAmount, true }
	FundedAmount       Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.FundedAmount, true }
	InterestRate       Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.InterestRate, true }
	Installment        Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.Installment, true }
	TotalPayment       Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.TotalPayment, true }
	PrincipalReceived  Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.PrincipalReceived, true }
	InterestReceived   Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.InterestReceived, true }
	RiskScore          Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.RiskScore, true }
	DefaultProbability Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.DefaultProbability, true }
	MonthsSinceIssue   Measure = func(l *models.JoinedLoan) (float64, bool) { return float64(l.Loan.MonthsSinceIssue), true }
	NetProfitLoss      Measure = func(l *models.JoinedLoan) (float64, bool) { return l.Loan.NetProfitLoss, true }
)

// Customer measures. They are skipped when the customer was not joined.
var (
	FicoScore       = customerMeasure(func(c *models.CustomerProfile) float64 { return float64(c.FicoScore) })
	DTIRatio        = customerMeasure(func(c *models.CustomerProfile) float64 { return c.DTIRatio })
	Utilization     = customerMeasure(func(c *models.CustomerProfile) float64 { return c.CreditUtilization })
	AnnualIncome    = customerMeasure(func(c *models.CustomerProfile) float64 { return c.AnnualIncome })
	EmploymentYears = customerMeasure(func(c *models.CustomerProfile) float64 { return c.EmploymentYears })
)

func customerMeasure(f func(*models.CustomerProfile) float64) Measure {
	return func(l *models.JoinedLoan) (float64, bool) {
		if l.Customer == nil {
			return 0, false
		}
		return f(l.Customer), true
	}
}
