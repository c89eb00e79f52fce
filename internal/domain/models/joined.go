package models

import "strings"

// JoinSet is a bitmask of dimensions a report joins to the loan fact.
type JoinSet uint8

const (
	JoinCustomer JoinSet = 1 << iota
	JoinProduct
	JoinGeography
	JoinTime

	JoinNone JoinSet = 0
)

// Has reports whether every dimension in o is part of j.
func (j JoinSet) Has(o JoinSet) bool { return j&o == o }

// Names lists the dimension names contained in j.
func (j JoinSet) Names() []string {
	out := make([]string, 0, 4)
	if j.Has(JoinCustomer) {
		out = append(out, "customer")
	}
	if j.Has(JoinProduct) {
		out = append(out, "product")
	}
	if j.Has(JoinGeography) {
		out = append(out, "geography")
	}
	if j.Has(JoinTime) {
		out = append(out, "time")
	}
	return out
}

func (j JoinSet) String() string {
	if j == JoinNone {
		return "none"
	}
	return strings.Join(j.Names(), ",")
}

// ParseJoin maps a dimension name to its JoinSet bit.
func ParseJoin(name string) (JoinSet, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "customer":
		return JoinCustomer, true
	case "product":
		return JoinProduct, true
	case "geography":
		return JoinGeography, true
	case "time":
		return JoinTime, true
	}
	return JoinNone, false
}

// JoinedLoan is a loan with the dimensions requested by a report.
// Dimensions outside the requested JoinSet are nil.
type JoinedLoan struct {
	Loan      *LoanRecord
	Customer  *CustomerProfile
	Product   *ProductInfo
	Geography *GeographyInfo
	Time      *TimeDimension
}

// JoinStats records what the inner join dropped and what looked inconsistent.
type JoinStats struct {
	Input        int            `json:"input"`
	Joined       int            `json:"joined"`
	Excluded     map[string]int `json:"excluded,omitempty"` // by missing dimension
	FlagMismatch int            `json:"flag_mismatch"`
	Suppressed   int            `json:"suppressed_groups"`
}

// ExcludedTotal is the number of records dropped by the inner join.
func (s JoinStats) ExcludedTotal() int {
	return s.Input - s.Joined
}
