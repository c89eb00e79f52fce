package features

import (
	"RiskPulse/internal/domain/models"
)

// Index holds key lookups over a snapshot. It never mutates the snapshot
// and is safe for concurrent readers once built.
type Index struct {
	snap        *models.Snapshot
	customers   map[string]*models.CustomerProfile
	products    map[string]*models.ProductInfo
	geographies map[string]*models.GeographyInfo
	calendar    map[int]*models.TimeDimension
	mismatches  int
}

// NewIndex builds lookups for every dimension of s.
func NewIndex(s *models.Snapshot) *Index {
	idx := &Index{
		snap:        s,
		customers:   make(map[string]*models.CustomerProfile, len(s.Customers)),
		products:    make(map[string]*models.ProductInfo, len(s.Products)),
		geographies: make(map[string]*models.GeographyInfo, len(s.Geographies)),
		calendar:    make(map[int]*models.TimeDimension, len(s.Calendar)),
	}
	for i := range s.Customers {
		idx.customers[s.Customers[i].CustomerID] = &s.Customers[i]
	}
	for i := range s.Products {
		idx.products[s.Products[i].ProductID] = &s.Products[i]
	}
	for i := range s.Geographies {
		idx.geographies[s.Geographies[i].GeographyID] = &s.Geographies[i]
	}
	for i := range s.Calendar {
		idx.calendar[s.Calendar[i].DateKey] = &s.Calendar[i]
	}
	for i := range s.Loans {
		if CheckFlags(&s.Loans[i]) != nil {
			idx.mismatches++
		}
	}
	return idx
}

// FlagMismatches counts loans whose flags disagree with their status.
func (x *Index) FlagMismatches() int { return x.mismatches }

// Loans is the number of loan facts in the snapshot.
func (x *Index) Loans() int { return len(x.snap.Loans) }

// Join returns the loans that have a match in every requested dimension
// (inner-join semantics) plus a tally of what was dropped and why.
// A loan missing several dimensions is tallied under the first one checked.
func (x *Index) Join(joins models.JoinSet) ([]models.JoinedLoan, models.JoinStats) {
	stats := models.JoinStats{
		Input:        len(x.snap.Loans),
		Excluded:     map[string]int{},
		FlagMismatch: x.mismatches,
	}
	out := make([]models.JoinedLoan, 0, len(x.snap.Loans))
	for i := range x.snap.Loans {
		l := &x.snap.Loans[i]
		jl := models.JoinedLoan{Loan: l}
		if joins.Has(models.JoinCustomer) {
			c, ok := x.customers[l.CustomerID]
			if !ok {
				stats.Excluded["customer"]++
				continue
			}
			jl.Customer = c
		}
		if joins.Has(models.JoinProduct) {
			p, ok := x.products[l.ProductID]
			if !ok {
				stats.Excluded["product"]++
				continue
			}
			jl.Product = p
		}
		if joins.Has(models.JoinGeography) {
			g, ok := x.geographies[l.GeographyID]
			if !ok {
				stats.Excluded["geography"]++
				continue
			}
			jl.Geography = g
		}
		if joins.Has(models.JoinTime) {
			key := l.DateKey
			if key == 0 && !l.IssueDate.IsZero() {
				key = DateKey(l.IssueDate)
			}
			t, ok := x.calendar[key]
			if !ok {
				stats.Excluded["time"]++
				continue
			}
			jl.Time = t
		}
		out = append(out, jl)
	}
	stats.Joined = len(out)
	return out, stats
}
