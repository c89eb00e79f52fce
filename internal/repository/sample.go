package repository

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/services/features"
)

// SampleConfig shapes the synthetic portfolio.
type SampleConfig struct {
	Loans int
	Seed  int64
	AsOf  time.Time // months_since_issue is measured against this date
}

type weighted[T any] struct {
	v T
	p float64
}

var (
	sampleGrades = []weighted[string]{
		{"A", .15}, {"B", .20}, {"C", .25}, {"D", .20}, {"E", .12}, {"F", .06}, {"G", .02},
	}
	sampleStatuses = []weighted[models.LoanStatus]{
		{models.StatusFullyPaid, .65}, {models.StatusCurrent, .20}, {models.StatusChargedOff, .10},
		{models.StatusLate31To120, .03}, {models.StatusDefault, .02},
	}
	// high-DTI borrowers redraw their status from this mix
	stressedStatuses = []weighted[models.LoanStatus]{
		{models.StatusFullyPaid, .5}, {models.StatusChargedOff, .4}, {models.StatusLate31To120, .1},
	}
	samplePurposes = []string{
		"debt_consolidation", "credit_card", "home_improvement", "major_purchase", "medical", "car", "other",
	}
	sampleStates = []weighted[models.GeographyInfo]{
		{models.GeographyInfo{Region: "West", StateCode: "CA", StateName: "California"}, .16},
		{models.GeographyInfo{Region: "Southwest", StateCode: "TX", StateName: "Texas"}, .11},
		{models.GeographyInfo{Region: "Northeast", StateCode: "NY", StateName: "New York"}, .10},
		{models.GeographyInfo{Region: "Southeast", StateCode: "FL", StateName: "Florida"}, .09},
		{models.GeographyInfo{Region: "Midwest", StateCode: "IL", StateName: "Illinois"}, .06},
		{models.GeographyInfo{Region: "Northeast", StateCode: "PA", StateName: "Pennsylvania"}, .06},
		{models.GeographyInfo{Region: "Midwest", StateCode: "OH", StateName: "Ohio"}, .05},
		{models.GeographyInfo{Region: "Southeast", StateCode: "GA", StateName: "Georgia"}, .05},
		{models.GeographyInfo{Region: "Northeast", StateCode: "NJ", StateName: "New Jersey"}, .05},
		{models.GeographyInfo{Region: "Southeast", StateCode: "NC", StateName: "North Carolina"}, .05},
		{models.GeographyInfo{Region: "Midwest", StateCode: "MI", StateName: "Michigan"}, .04},
		{models.GeographyInfo{Region: "West", StateCode: "WA", StateName: "Washington"}, .04},
		{models.GeographyInfo{Region: "Southwest", StateCode: "AZ", StateName: "Arizona"}, .04},
		{models.GeographyInfo{Region: "West", StateCode: "CO", StateName: "Colorado"}, .04},
		{models.GeographyInfo{Region: "Northeast", StateCode: "MA", StateName: "Massachusetts"}, .04},
		{models.GeographyInfo{Region: "Southwest", StateCode: "NM", StateName: "New Mexico"}, .01},
		{models.GeographyInfo{Region: "West", StateCode: "MT", StateName: "Montana"}, .005},
		{models.GeographyInfo{Region: "West", StateCode: "WY", StateName: "Wyoming"}, .003},
		{models.GeographyInfo{Region: "Northeast", StateCode: "VT", StateName: "Vermont"}, .002},
	}
	sampleEpoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
)

// GenerateSample builds a deterministic synthetic portfolio. The same
// config always yields the same snapshot.
func GenerateSample(cfg SampleConfig) *models.Snapshot {
	rng := rand.New(rand.NewSource(cfg.Seed))
	asOf := cfg.AsOf
	if asOf.IsZero() {
		asOf = sampleEpoch.AddDate(5, 0, 0)
	}
	snap := &models.Snapshot{LoadedAt: asOf}

	for i, st := range sampleStates {
		g := st.v
		g.GeographyID = fmt.Sprintf("G%02d", i+1)
		snap.Geographies = append(snap.Geographies, g)
	}

	// roughly one customer in five holds a second loan
	customers := cfg.Loans - cfg.Loans/5
	if customers < 1 && cfg.Loans > 0 {
		customers = 1
	}
	for i := 0; i < customers; i++ {
		snap.Customers = append(snap.Customers, sampleCustomer(rng, i))
	}

	products := make(map[string]models.ProductInfo)
	dates := make(map[int]time.Time)
	for i := 0; i < cfg.Loans; i++ {
		cust := &snap.Customers[rng.Intn(customers)]
		grade := pick(rng, sampleGrades)
		p := models.ProductInfo{
			Grade:      grade,
			SubGrade:   fmt.Sprintf("%s%d", grade, rng.Intn(5)+1),
			TermMonths: []int{36, 60}[rng.Intn(2)],
			Purpose:    samplePurposes[rng.Intn(len(samplePurposes))],
		}
		p.ProductID = fmt.Sprintf("P-%s-%d-%s", p.SubGrade, p.TermMonths, p.Purpose)
		products[p.ProductID] = p

		issued := sampleEpoch.AddDate(0, 0, rng.Intn(1461))
		dk := features.DateKey(issued)
		dates[dk] = issued

		loan := sampleLoan(rng, i, cust, p, issued, asOf)
		loan.GeographyID = snap.Geographies[pickIndex(rng, sampleStates)].GeographyID
		loan.DateKey = dk
		snap.Loans = append(snap.Loans, loan)
	}

	ids := make([]string, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snap.Products = append(snap.Products, products[id])
	}
	keys := make([]int, 0, len(dates))
	for k := range dates {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		snap.Calendar = append(snap.Calendar, features.NewTimeDimension(dates[k]))
	}
	return snap
}

func sampleCustomer(rng *rand.Rand, i int) models.CustomerProfile {
	c := models.CustomerProfile{
		CustomerID:        fmt.Sprintf("C%06d", i+1),
		FicoScore:         600 + rng.Intn(241),
		AnnualIncome:      round2(30000 + rng.Float64()*170000),
		EmploymentYears:   float64(rng.Intn(11)),
		Delinquencies2y:   rng.Intn(5),
		CreditUtilization: round2(rng.Float64() * 100),
		DTIRatio:          round2(rng.Float64() * 40),
	}
	c.FicoCategory = features.FicoCategory(c.FicoScore)
	c.DTIBucket = features.DTIBucket(c.DTIRatio)
	c.Segment = segmentOf(c)
	c.RiskCategory = riskCategory(customerRisk(c))
	return c
}

func segmentOf(c models.CustomerProfile) string {
	switch {
	case c.FicoScore < 640 || c.Delinquencies2y >= 3:
		return "HighRisk"
	case c.FicoScore >= 740 && c.DTIRatio < 20:
		return "Prime"
	case c.EmploymentYears >= 10 && c.FicoScore >= 680:
		return "Established"
	case c.EmploymentYears < 3:
		return "Building"
	default:
		return "Stretch"
	}
}

// customerRisk scores a borrower 0-100 from FICO, DTI, utilization and delinquencies.
func customerRisk(c models.CustomerProfile) float64 {
	score := (840-float64(c.FicoScore))/240*50 + c.DTIRatio/40*20 + c.CreditUtilization/100*20 + float64(c.Delinquencies2y)*2.5
	return clamp(score, 0, 100)
}

func riskCategory(score float64) string {
	switch {
	case score <= 25:
		return "Low Risk"
	case score <= 50:
		return "Medium Risk"
	case score <= 75:
		return "High Risk"
	default:
		return "Very High Risk"
	}
}

func sampleLoan(rng *rand.Rand, i int, c *models.CustomerProfile, p models.ProductInfo, issued, asOf time.Time) models.LoanRecord {
	amount := float64(1000 + rng.Intn(39001))
	rate := 5 + rng.Float64()*20
	if p.Grade == "F" || p.Grade == "G" {
		rate += 5
	}
	if c.FicoScore < 650 {
		rate += 3
	}
	status := pick(rng, sampleStatuses)
	if c.DTIRatio > 30 {
		status = pick(rng, stressedStatuses)
	}

	l := models.LoanRecord{
		LoanID:       fmt.Sprintf("L%07d", i+1),
		CustomerID:   c.CustomerID,
		ProductID:    p.ProductID,
		IssueDate:    issued,
		LoanAmount:   amount,
		FundedAmount: amount - float64(rng.Intn(int(amount/20)+1)),
		InterestRate: round2(rate),
		Installment:  round2(50 + rng.Float64()*1450),
		Status:       status,
		TotalPayment: round2(rng.Float64() * 50000),
	}
	l.IsDefault, l.IsCurrent, l.IsPaidOff = features.DeriveFlags(status)
	l.PrincipalReceived = round2(math.Min(l.TotalPayment, l.FundedAmount))
	l.InterestReceived = round2(l.TotalPayment - l.PrincipalReceived)
	l.NetProfitLoss = round2(l.TotalPayment - l.FundedAmount)
	if l.FundedAmount > 0 {
		l.ROI = round2(l.NetProfitLoss / l.FundedAmount * 100)
	}

	gradeRisk := float64(p.Grade[0]-'A') * 8
	l.RiskScore = round2(clamp(customerRisk(*c)*0.5+gradeRisk+rng.Float64()*15, 0, 100))
	l.DefaultProbability = math.Round(clamp(l.RiskScore/100*0.6, 0, 1)*1e4) / 1e4
	l.MonthsSinceIssue = monthsBetween(issued, asOf)
	return l
}

func monthsBetween(from, to time.Time) int {
	m := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		m--
	}
	if m < 0 {
		return 0
	}
	return m
}

func pick[T any](rng *rand.Rand, choices []weighted[T]) T {
	return choices[pickIndex(rng, choices)].v
}

func pickIndex[T any](rng *rand.Rand, choices []weighted[T]) int {
	total := 0.0
	for _, c := range choices {
		total += c.p
	}
	r := rng.Float64() * total
	for i, c := range choices {
		r -= c.p
		if r < 0 {
			return i
		}
	}
	return len(choices) - 1
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
