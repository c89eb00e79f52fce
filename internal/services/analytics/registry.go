package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/services/features"
)

// KeyDef extracts one grouping key from a joined loan.
type KeyDef struct {
	Name     string
	Kind     models.ColumnKind
	Requires models.JoinSet
	Extract  func(l *models.JoinedLoan) models.Value
}

// Scope is what a metric sees: the group and the size of the population the
// group was cut from (after joins and filters, before suppression).
type Scope struct {
	Loans      []models.JoinedLoan
	Population int
}

// MetricDef computes one aggregate column of a grouped report.
type MetricDef struct {
	Name      string
	Kind      models.ColumnKind
	Precision int32
	Requires  models.JoinSet
	Compute   func(s Scope) models.Value
}

// FieldDef reads one per-loan column of a detail report.
type FieldDef struct {
	Name      string
	Kind      models.ColumnKind
	Precision int32
	Requires  models.JoinSet
	Extract   func(l *models.JoinedLoan) models.Value
}

// FilterDef restricts the loans a report looks at.
type FilterDef struct {
	Name     string
	Requires models.JoinSet
	Match    Predicate
}

// Registry holds every key, metric, field and filter a report may name.
type Registry struct {
	keys    map[string]KeyDef
	metrics map[string]MetricDef
	fields  map[string]FieldDef
	filters map[string]FilterDef

	alertThreshold decimal.Decimal
}

// Option configures a Registry.
type Option func(*Registry)

// WithAlertThreshold sets the NPL ratio (percent) above which npl_alert is raised.
func WithAlertThreshold(pct decimal.Decimal) Option {
	return func(r *Registry) { r.alertThreshold = pct }
}

// NewRegistry returns a registry loaded with the built-in definitions.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		keys:           map[string]KeyDef{},
		metrics:        map[string]MetricDef{},
		fields:         map[string]FieldDef{},
		filters:        map[string]FilterDef{},
		alertThreshold: decimal.NewFromInt(5),
	}
	for _, o := range opts {
		o(r)
	}
	r.registerKeys()
	r.registerMetrics()
	r.registerFields()
	r.registerFilters()
	return r
}

func (r *Registry) RegisterKey(k KeyDef)       { r.keys[k.Name] = k }
func (r *Registry) RegisterMetric(m MetricDef) { r.metrics[m.Name] = m }
func (r *Registry) RegisterField(f FieldDef)   { r.fields[f.Name] = f }
func (r *Registry) RegisterFilter(f FilterDef) { r.filters[f.Name] = f }

func (r *Registry) Key(name string) (KeyDef, bool)       { k, ok := r.keys[name]; return k, ok }
func (r *Registry) Metric(name string) (MetricDef, bool) { m, ok := r.metrics[name]; return m, ok }
func (r *Registry) Field(name string) (FieldDef, bool)   { f, ok := r.fields[name]; return f, ok }
func (r *Registry) Filter(name string) (FilterDef, bool) { f, ok := r.filters[name]; return f, ok }

// Names lists registered names per kind, sorted. These are the names a
// custom report definition may reference.
func (r *Registry) Names() map[string][]string {
	return map[string][]string{
		"keys":    sortedNames(r.keys),
		"metrics": sortedNames(r.metrics),
		"fields":  sortedNames(r.fields),
		"filters": sortedNames(r.filters),
	}
}

func sortedNames[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) registerKeys() {
	product := func(name string, kind models.ColumnKind, f func(*models.ProductInfo) models.Value) {
		r.RegisterKey(KeyDef{Name: name, Kind: kind, Requires: models.JoinProduct,
			Extract: func(l *models.JoinedLoan) models.Value {
				if l.Product == nil {
					return models.NullValue(kind)
				}
				return f(l.Product)
			}})
	}
	customer := func(name string, f func(*models.CustomerProfile) models.Value) {
		r.RegisterKey(KeyDef{Name: name, Kind: models.KindText, Requires: models.JoinCustomer,
			Extract: func(l *models.JoinedLoan) models.Value {
				if l.Customer == nil {
					return models.NullValue(models.KindText)
				}
				return f(l.Customer)
			}})
	}
	geo := func(name string, f func(*models.GeographyInfo) string) {
		r.RegisterKey(KeyDef{Name: name, Kind: models.KindText, Requires: models.JoinGeography,
			Extract: func(l *models.JoinedLoan) models.Value {
				if l.Geography == nil {
					return models.NullValue(models.KindText)
				}
				return models.TextOrNull(f(l.Geography))
			}})
	}
	cal := func(name string, kind models.ColumnKind, f func(*models.TimeDimension) models.Value) {
		r.RegisterKey(KeyDef{Name: name, Kind: kind, Requires: models.JoinTime,
			Extract: func(l *models.JoinedLoan) models.Value {
				if l.Time == nil {
					return models.NullValue(kind)
				}
				return f(l.Time)
			}})
	}

	product("grade", models.KindText, func(p *models.ProductInfo) models.Value { return models.TextOrNull(p.Grade) })
	product("sub_grade", models.KindText, func(p *models.ProductInfo) models.Value { return models.TextOrNull(p.SubGrade) })
	product("purpose", models.KindText, func(p *models.ProductInfo) models.Value { return models.TextOrNull(p.Purpose) })
	product("term_months", models.KindInt, func(p *models.ProductInfo) models.Value { return positiveInt(p.TermMonths) })

	customer("risk_category", func(c *models.CustomerProfile) models.Value { return models.TextOrNull(c.RiskCategory) })
	customer("customer_segment", func(c *models.CustomerProfile) models.Value { return models.TextOrNull(c.Segment) })
	customer("fico_category", func(c *models.CustomerProfile) models.Value {
		if c.FicoCategory != "" {
			return models.TextValue(c.FicoCategory)
		}
		return models.TextOrNull(features.FicoCategory(c.FicoScore))
	})
	customer("dti_bucket", func(c *models.CustomerProfile) models.Value {
		if c.DTIBucket != "" {
			return models.TextValue(c.DTIBucket)
		}
		return models.TextOrNull(features.DTIBucket(c.DTIRatio))
	})
	customer("income_band", func(c *models.CustomerProfile) models.Value {
		return models.TextOrNull(features.IncomeBand(c.AnnualIncome))
	})

	geo("region", func(g *models.GeographyInfo) string { return g.Region })
	geo("state_code", func(g *models.GeographyInfo) string { return g.StateCode })
	geo("state_name", func(g *models.GeographyInfo) string { return g.StateName })

	cal("year", models.KindInt, func(t *models.TimeDimension) models.Value { return positiveInt(t.Year) })
	cal("quarter", models.KindInt, func(t *models.TimeDimension) models.Value { return positiveInt(t.Quarter) })
	cal("month", models.KindInt, func(t *models.TimeDimension) models.Value { return positiveInt(t.Month) })
	cal("month_name", models.KindText, func(t *models.TimeDimension) models.Value { return models.TextOrNull(t.MonthName) })
	cal("vintage_month", models.KindText, func(t *models.TimeDimension) models.Value { return models.TextOrNull(t.VintageMonth) })

	r.RegisterKey(KeyDef{Name: "loan_status", Kind: models.KindText,
		Extract: func(l *models.JoinedLoan) models.Value { return models.TextOrNull(string(l.Loan.Status)) }})
}

func (r *Registry) registerMetrics() {
	count := func(name string, p Predicate) {
		r.RegisterMetric(MetricDef{Name: name, Kind: models.KindInt, Compute: func(s Scope) models.Value {
			if len(s.Loans) == 0 {
				return models.NullValue(models.KindInt)
			}
			if p == nil {
				return models.IntValue(int64(len(s.Loans)))
			}
			return models.IntValue(int64(CountIf(s.Loans, p)))
		}})
	}
	dec := func(name string, places int32, req models.JoinSet, f func(Scope) decimal.NullDecimal) {
		r.RegisterMetric(MetricDef{Name: name, Kind: models.KindDecimal, Precision: places, Requires: req,
			Compute: func(s Scope) models.Value { return models.DecimalValue(f(s), places) }})
	}
	sum := func(name string, m Measure) {
		dec(name, 2, models.JoinNone, func(s Scope) decimal.NullDecimal {
			if len(s.Loans) == 0 {
				return decimal.NullDecimal{}
			}
			return decimal.NewNullDecimal(Sum(s.Loans, m))
		})
	}
	avg := func(name string, places int32, req models.JoinSet, m Measure) {
		dec(name, places, req, func(s Scope) decimal.NullDecimal { return Avg(s.Loans, m).Round(places) })
	}
	rate := func(name string, f func([]models.JoinedLoan) Ratio) {
		dec(name, 2, models.JoinNone, func(s Scope) decimal.NullDecimal { return f(s.Loans).Round(2) })
	}

	count("loan_count", nil)
	count("total_loans", nil)
	count("default_count", IsDefault)
	count("current_count", IsCurrent)
	count("paid_off_count", IsPaidOff)

	sum("total_volume", LoanAmount)
	sum("total_funded", FundedAmount)
	sum("total_payment", TotalPayment)
	sum("principal_received", PrincipalReceived)
	sum("interest_received", InterestReceived)
	sum("total_net_profit_loss", NetProfitLoss)

	rate("default_rate_pct", DefaultRatePct)
	rate("npl_ratio_pct", NPLRatioPct)
	rate("payoff_rate_pct", PayoffRatePct)
	rate("current_rate_pct", CurrentRatePct)
	rate("npl_volume_pct", NPLVolumePct)
	rate("portfolio_roi_pct", PortfolioROIPct)
	dec("volume_pct", 2, models.JoinNone, func(s Scope) decimal.NullDecimal {
		return VolumePct(len(s.Loans), s.Population).Round(2)
	})

	avg("avg_loan_amount", 2, models.JoinNone, LoanAmount)
	avg("avg_interest_rate", 2, models.JoinNone, InterestRate)
	avg("avg_installment", 2, models.JoinNone, Installment)
	avg("avg_risk_score", 2, models.JoinNone, RiskScore)
	avg("avg_months_since_issue", 2, models.JoinNone, MonthsSinceIssue)
	avg("avg_fico", 0, models.JoinCustomer, FicoScore)
	avg("avg_dti", 2, models.JoinCustomer, DTIRatio)
	avg("avg_utilization", 2, models.JoinCustomer, Utilization)
	avg("avg_annual_income", 2, models.JoinCustomer, AnnualIncome)
	avg("avg_employment_years", 1, models.JoinCustomer, EmploymentYears)
	dec("avg_default_probability_pct", 2, models.JoinNone, func(s Scope) decimal.NullDecimal {
		return Avg(s.Loans, DefaultProbability).Scale(hundred).Round(2)
	})

	threshold := r.alertThreshold
	r.RegisterMetric(MetricDef{Name: "npl_alert", Kind: models.KindBool, Compute: func(s Scope) models.Value {
		ratio := NPLRatioPct(s.Loans).Round(2)
		if !ratio.Valid {
			return models.NullValue(models.KindBool)
		}
		return models.BoolValue(ratio.Decimal.GreaterThan(threshold))
	}})
}

func (r *Registry) registerFields() {
	loanText := func(name string, f func(*models.LoanRecord) string) {
		r.RegisterField(FieldDef{Name: name, Kind: models.KindText,
			Extract: func(l *models.JoinedLoan) models.Value { return models.TextOrNull(f(l.Loan)) }})
	}
	loanDec := func(name string, m Measure) {
		r.RegisterField(FieldDef{Name: name, Kind: models.KindDecimal, Precision: 2,
			Extract: func(l *models.JoinedLoan) models.Value {
				v, _ := m(l)
				return models.DecimalValue(decimal.NewNullDecimal(decimal.NewFromFloat(v)), 2)
			}})
	}
	custDec := func(name string, m Measure) {
		r.RegisterField(FieldDef{Name: name, Kind: models.KindDecimal, Precision: 2, Requires: models.JoinCustomer,
			Extract: func(l *models.JoinedLoan) models.Value {
				v, ok := m(l)
				if !ok {
					return models.NullValue(models.KindDecimal)
				}
				return models.DecimalValue(decimal.NewNullDecimal(decimal.NewFromFloat(v)), 2)
			}})
	}
	custInt := func(name string, f func(*models.CustomerProfile) int) {
		r.RegisterField(FieldDef{Name: name, Kind: models.KindInt, Requires: models.JoinCustomer,
			Extract: func(l *models.JoinedLoan) models.Value {
				if l.Customer == nil {
					return models.NullValue(models.KindInt)
				}
				return models.IntValue(int64(f(l.Customer)))
			}})
	}
	fromKey := func(name string) {
		k := r.keys[name]
		r.RegisterField(FieldDef{Name: k.Name, Kind: k.Kind, Requires: k.Requires, Extract: k.Extract})
	}

	loanText("loan_id", func(l *models.LoanRecord) string { return l.LoanID })
	loanText("customer_id", func(l *models.LoanRecord) string { return l.CustomerID })
	loanText("status", func(l *models.LoanRecord) string { return string(l.Status) })
	loanDec("loan_amount", LoanAmount)
	loanDec("funded_amount", FundedAmount)
	loanDec("interest_rate", InterestRate)
	loanDec("installment", Installment)
	loanDec("risk_score", RiskScore)
	custDec("credit_utilization", Utilization)
	custDec("dti_ratio", DTIRatio)
	custDec("annual_income", AnnualIncome)
	custInt("delinquencies_2yrs", func(c *models.CustomerProfile) int { return c.Delinquencies2y })
	custInt("fico_score", func(c *models.CustomerProfile) int { return c.FicoScore })
	for _, name := range []string{"grade", "sub_grade", "term_months", "purpose", "customer_segment", "risk_category", "region", "state_code", "vintage_month"} {
		fromKey(name)
	}
	r.RegisterField(FieldDef{Name: "issue_date", Kind: models.KindTime,
		Extract: func(l *models.JoinedLoan) models.Value {
			if l.Loan.IssueDate.IsZero() {
				return models.NullValue(models.KindTime)
			}
			return models.TimeValue(l.Loan.IssueDate)
		}})

	r.RegisterField(FieldDef{Name: "priority_score", Kind: models.KindDecimal, Precision: 2, Requires: models.JoinCustomer,
		Extract: func(l *models.JoinedLoan) models.Value {
			s, ok := SignalsOf(l)
			if !ok {
				return models.NullValue(models.KindDecimal)
			}
			return models.DecimalValue(decimal.NewNullDecimal(PriorityScore(s)), 2)
		}})
	r.RegisterField(FieldDef{Name: "alert_tier", Kind: models.KindText, Requires: models.JoinCustomer,
		Extract: func(l *models.JoinedLoan) models.Value {
			s, ok := SignalsOf(l)
			if !ok {
				return models.NullValue(models.KindText)
			}
			return models.TextValue(string(ClassifyTier(s)))
		}})
}

func (r *Registry) registerFilters() {
	atRisk := func(l *models.JoinedLoan) bool {
		s, ok := SignalsOf(l)
		return ok && IsAtRisk(s)
	}
	r.RegisterFilter(FilterDef{Name: "active", Match: IsCurrent})
	r.RegisterFilter(FilterDef{Name: "defaulted", Match: IsDefault})
	r.RegisterFilter(FilterDef{Name: "paid_off", Match: IsPaidOff})
	r.RegisterFilter(FilterDef{Name: "at_risk", Requires: models.JoinCustomer, Match: atRisk})
}

func positiveInt(n int) models.Value {
	if n <= 0 {
		return models.NullValue(models.KindInt)
	}
	return models.IntValue(int64(n))
}
