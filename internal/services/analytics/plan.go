package analytics

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/services/features"
)

// GeneratedAtColumn is appended to every report row.
const GeneratedAtColumn = "generated_at"

// SortKey orders report rows by one output column.
type SortKey struct {
	Column string
	Desc   bool
}

func (s SortKey) String() string {
	if s.Desc {
		return s.Column + " desc"
	}
	return s.Column + " asc"
}

// ParseSort reads "column", "column asc" or "column desc".
func ParseSort(s string) (SortKey, error) {
	parts := strings.Fields(s)
	switch {
	case len(parts) == 1:
		return SortKey{Column: parts[0]}, nil
	case len(parts) == 2 && strings.EqualFold(parts[1], "asc"):
		return SortKey{Column: parts[0]}, nil
	case len(parts) == 2 && strings.EqualFold(parts[1], "desc"):
		return SortKey{Column: parts[0], Desc: true}, nil
	}
	return SortKey{}, fmt.Errorf("bad sort clause %q", s)
}

// Definition is the static contract of one report. A grouped report names
// Metrics (and optionally Keys); a detail report names Fields instead.
type Definition struct {
	Name         string
	Title        string
	Joins        []string
	Keys         []string
	Metrics      []string
	Fields       []string
	Filters      []string
	MinGroupSize int
	Sort         []SortKey
}

// Plan is a compiled Definition. It is immutable and safe for concurrent Run calls.
type Plan struct {
	def      Definition
	joins    models.JoinSet
	keys     []KeyDef
	metrics  []MetricDef
	fields   []FieldDef
	filters  []FilterDef
	columns  []models.Column
	order    []SortKey
	orderIdx []int
	tiebreak []int
}

func (p *Plan) Name() string             { return p.def.Name }
func (p *Plan) Title() string            { return p.def.Title }
func (p *Plan) Joins() models.JoinSet    { return p.joins }
func (p *Plan) Columns() []models.Column { return p.columns }

// Detail reports emit one row per loan instead of one per group.
func (p *Plan) Detail() bool { return len(p.fields) > 0 }

// Compile resolves every name in def against the registry. Any unknown name,
// or a name whose dimension is not among the declared joins, fails with a
// *ConfigError wrapping ErrInvalidConfiguration.
func (r *Registry) Compile(def Definition) (*Plan, error) {
	fail := func(field, name, reason string) (*Plan, error) {
		return nil, &ConfigError{Report: def.Name, Field: field, Name: name, Reason: reason}
	}
	if strings.TrimSpace(def.Name) == "" {
		return fail("name", "", "report name is empty")
	}
	p := &Plan{def: def}
	for _, j := range def.Joins {
		bit, ok := models.ParseJoin(j)
		if !ok {
			return fail("joins", j, "unknown dimension")
		}
		p.joins |= bit
	}
	missing := func(req models.JoinSet) string {
		return (req &^ p.joins).String()
	}

	switch {
	case len(def.Fields) > 0 && (len(def.Keys) > 0 || len(def.Metrics) > 0):
		return fail("fields", def.Fields[0], "detail reports cannot declare keys or metrics")
	case len(def.Fields) == 0 && len(def.Metrics) == 0:
		return fail("metrics", "", "report declares neither metrics nor fields")
	case def.MinGroupSize < 0:
		return fail("min_group_size", fmt.Sprint(def.MinGroupSize), "must not be negative")
	case len(def.Fields) > 0 && def.MinGroupSize > 0:
		return fail("min_group_size", fmt.Sprint(def.MinGroupSize), "detail reports are not grouped")
	}

	seen := map[string]bool{}
	addColumn := func(field string, c models.Column) error {
		if seen[c.Name] {
			return &ConfigError{Report: def.Name, Field: field, Name: c.Name, Reason: "duplicate column"}
		}
		seen[c.Name] = true
		p.columns = append(p.columns, c)
		return nil
	}

	for _, name := range def.Keys {
		k, ok := r.Key(name)
		if !ok {
			return fail("keys", name, "no such grouping key")
		}
		if !p.joins.Has(k.Requires) {
			return fail("keys", name, "requires join "+missing(k.Requires))
		}
		if err := addColumn("keys", models.Column{Name: k.Name, Kind: k.Kind}); err != nil {
			return nil, err
		}
		p.keys = append(p.keys, k)
	}
	for _, name := range def.Metrics {
		m, ok := r.Metric(name)
		if !ok {
			return fail("metrics", name, "no such metric")
		}
		if !p.joins.Has(m.Requires) {
			return fail("metrics", name, "requires join "+missing(m.Requires))
		}
		if err := addColumn("metrics", models.Column{Name: m.Name, Kind: m.Kind, Precision: m.Precision}); err != nil {
			return nil, err
		}
		p.metrics = append(p.metrics, m)
	}
	for _, name := range def.Fields {
		f, ok := r.Field(name)
		if !ok {
			return fail("fields", name, "no such field")
		}
		if !p.joins.Has(f.Requires) {
			return fail("fields", name, "requires join "+missing(f.Requires))
		}
		if err := addColumn("fields", models.Column{Name: f.Name, Kind: f.Kind, Precision: f.Precision}); err != nil {
			return nil, err
		}
		p.fields = append(p.fields, f)
	}
	for _, name := range def.Filters {
		f, ok := r.Filter(name)
		if !ok {
			return fail("filters", name, "no such filter")
		}
		if !p.joins.Has(f.Requires) {
			return fail("filters", name, "requires join "+missing(f.Requires))
		}
		p.filters = append(p.filters, f)
	}
	if err := addColumn("columns", models.Column{Name: GeneratedAtColumn, Kind: models.KindTime}); err != nil {
		return nil, err
	}

	index := func(name string) int {
		for i, c := range p.columns {
			if c.Name == name {
				return i
			}
		}
		return -1
	}
	for _, s := range def.Sort {
		i := index(s.Column)
		if i < 0 {
			return fail("sort", s.Column, "not an output column")
		}
		p.order = append(p.order, s)
		p.orderIdx = append(p.orderIdx, i)
	}
	// Ties break on the key columns, or on the per-loan columns for detail reports.
	n := len(p.keys)
	if p.Detail() {
		n = len(p.fields)
	}
	for i := 0; i < n; i++ {
		p.tiebreak = append(p.tiebreak, i)
	}
	return p, nil
}

// Run evaluates the plan over one snapshot. It is pure: the same index and
// timestamp always give the same report.
func (p *Plan) Run(idx *features.Index, at time.Time) *models.Report {
	joined, stats := idx.Join(p.joins)
	population := joined
	if len(p.filters) > 0 {
		population = make([]models.JoinedLoan, 0, len(joined))
	next:
		for i := range joined {
			for _, f := range p.filters {
				if !f.Match(&joined[i]) {
					continue next
				}
			}
			population = append(population, joined[i])
		}
	}

	stamp := models.TimeValue(at)
	var rows []models.Row
	if p.Detail() {
		rows = make([]models.Row, 0, len(population))
		for i := range population {
			row := make(models.Row, 0, len(p.columns))
			for _, f := range p.fields {
				row = append(row, f.Extract(&population[i]))
			}
			rows = append(rows, append(row, stamp))
		}
	} else {
		groups := Partition(population, p.keys)
		groups, stats.Suppressed = Suppress(groups, p.def.MinGroupSize)
		rows = make([]models.Row, 0, len(groups))
		for _, g := range groups {
			row := make(models.Row, 0, len(p.columns))
			row = append(row, g.Key...)
			scope := Scope{Loans: g.Loans, Population: len(population)}
			for _, m := range p.metrics {
				row = append(row, m.Compute(scope))
			}
			rows = append(rows, append(row, stamp))
		}
	}

	slices.SortStableFunc(rows, p.compareRows)
	return &models.Report{
		Name:        p.def.Name,
		Title:       p.def.Title,
		GeneratedAt: at.UTC(),
		Columns:     p.columns,
		Rows:        rows,
		Total:       len(rows),
		Stats:       stats,
	}
}

// compareRows applies the declared order, then the tie-break columns
// ascending. Missing values sort last in either direction.
func (p *Plan) compareRows(a, b models.Row) int {
	for k, i := range p.orderIdx {
		c := a[i].Compare(b[i])
		if p.order[k].Desc && !a[i].IsNull() && !b[i].IsNull() {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	for _, i := range p.tiebreak {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}
