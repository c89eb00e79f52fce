package models

import "time"

// LoanStatus is the servicing status string carried on the loan fact.
type LoanStatus string

const (
	StatusCurrent     LoanStatus = "Current"
	StatusFullyPaid   LoanStatus = "Fully Paid"
	StatusChargedOff  LoanStatus = "Charged Off"
	StatusDefault     LoanStatus = "Default"
	StatusLate31To120 LoanStatus = "Late (31-120 days)"
	StatusLate16To30  LoanStatus = "Late (16-30 days)"
	StatusInGrace     LoanStatus = "In Grace Period"
)

// LoanRecord is one originated loan (fact row).
type LoanRecord struct {
	LoanID      string
	CustomerID  string
	ProductID   string
	GeographyID string
	DateKey     int // yyyymmdd of IssueDate, joins TimeDimension
	IssueDate   time.Time

	LoanAmount   float64
	FundedAmount float64
	InterestRate float64
	Installment  float64

	Status    LoanStatus
	IsDefault bool
	IsCurrent bool
	IsPaidOff bool

	TotalPayment      float64
	PrincipalReceived float64
	InterestReceived  float64

	RiskScore          float64 // 0-100
	DefaultProbability float64 // 0-1
	MonthsSinceIssue   int
	NetProfitLoss      float64
	ROI                float64
}

// CustomerProfile is one borrower. A customer may hold several loans.
type CustomerProfile struct {
	CustomerID        string
	FicoScore         int
	FicoCategory      string
	AnnualIncome      float64
	EmploymentYears   float64
	Delinquencies2y   int
	CreditUtilization float64 // 0-100
	DTIRatio          float64
	DTIBucket         string
	Segment           string
	RiskCategory      string
}

// ProductInfo describes the loan product.
type ProductInfo struct {
	ProductID  string
	Grade      string
	SubGrade   string
	TermMonths int
	Purpose    string
}

// GeographyInfo locates a loan.
type GeographyInfo struct {
	GeographyID string
	Region      string
	StateCode   string
	StateName   string
}

// TimeDimension holds calendar attributes for an issue date.
type TimeDimension struct {
	DateKey      int
	Date         time.Time
	Year         int
	Quarter      int
	Month        int
	MonthName    string
	VintageMonth string // stable cohort tag, e.g. "2017-03"
}

// Snapshot is an immutable read of the five logical collections.
type Snapshot struct {
	Loans       []LoanRecord
	Customers   []CustomerProfile
	Products    []ProductInfo
	Geographies []GeographyInfo
	Calendar    []TimeDimension
	LoadedAt    time.Time
}
