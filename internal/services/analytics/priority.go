package analytics

import (
	"github.com/shopspring/decimal"

	"RiskPulse/internal/domain/models"
)

// AlertTier classifies an at-risk loan.
type AlertTier string

const (
	TierCritical AlertTier = "CRITICAL"
	TierHigh     AlertTier = "HIGH"
	TierMedium   AlertTier = "MEDIUM"
	TierLow      AlertTier = "LOW"
)

// RiskSignals are the inputs of the priority scorer.
type RiskSignals struct {
	RiskScore         float64
	CreditUtilization float64
	DTIRatio          float64
	Delinquencies2y   int
}

var (
	weightRisk        = decimal.RequireFromString("0.4")
	weightUtilization = decimal.RequireFromString("0.3")
	weightDTI         = decimal.RequireFromString("0.3")
)

// SignalsOf reads the signals of a joined loan. ok is false without a customer.
func SignalsOf(l *models.JoinedLoan) (RiskSignals, bool) {
	if l.Customer == nil {
		return RiskSignals{}, false
	}
	return RiskSignals{
		RiskScore:         l.Loan.RiskScore,
		CreditUtilization: l.Customer.CreditUtilization,
		DTIRatio:          l.Customer.DTIRatio,
		Delinquencies2y:   l.Customer.Delinquencies2y,
	}, true
}

// IsAtRisk is the inclusion test of the high-risk report. Its thresholds are
// wider than the tier table below and the two must stay separate.
func IsAtRisk(s RiskSignals) bool {
	return s.RiskScore > 65 ||
		s.CreditUtilization > 70 ||
		s.DTIRatio > 35 ||
		s.Delinquencies2y > 0
}

// PriorityScore = round(risk*0.4 + utilization*0.3 + dti*0.3, 2).
func PriorityScore(s RiskSignals) decimal.Decimal {
	return decimal.NewFromFloat(s.RiskScore).Mul(weightRisk).
		Add(decimal.NewFromFloat(s.CreditUtilization).Mul(weightUtilization)).
		Add(decimal.NewFromFloat(s.DTIRatio).Mul(weightDTI)).
		Round(2)
}

// ClassifyTier applies the tier table; the first match wins.
func ClassifyTier(s RiskSignals) AlertTier {
	switch {
	case s.RiskScore > 85 || s.CreditUtilization > 90:
		return TierCritical
	case s.RiskScore > 75 || s.CreditUtilization > 80:
		return TierHigh
	case s.RiskScore > 65 || s.CreditUtilization > 70:
		return TierMedium
	}
	return TierLow
}
