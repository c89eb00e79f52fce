package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/services/analytics"
	"RiskPulse/internal/services/features"
	applogger "RiskPulse/pkg/logger"
)

// Clock returns the generation timestamp stamped on report rows.
type Clock func() time.Time

// AssemblerOption configures ReportAssembler.
type AssemblerOption func(*ReportAssembler)

func WithClock(c Clock) AssemblerOption {
	return func(a *ReportAssembler) {
		if c != nil {
			a.now = c
		}
	}
}

// WithWorkers bounds how many reports GenerateAll evaluates at once.
func WithWorkers(n int) AssemblerOption {
	return func(a *ReportAssembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithReportTimeout sets the budget of a single report. Zero disables it.
func WithReportTimeout(d time.Duration) AssemblerOption {
	return func(a *ReportAssembler) { a.timeout = d }
}

func WithAssemblerLogger(l *applogger.Logger) AssemblerOption {
	return func(a *ReportAssembler) {
		if l != nil {
			a.l = l
		}
	}
}

// WithRunID replaces the uuid generator. Tests use it for stable ids.
func WithRunID(f func() string) AssemblerOption {
	return func(a *ReportAssembler) { a.newID = f }
}

// ReportAssembler compiles the report catalog once and evaluates it over
// snapshots. A definition that fails to compile is kept in the catalog with
// its error so that only that report is unavailable.
type ReportAssembler struct {
	reg   *analytics.Registry
	order   []string
	titles  map[string]string
	plans   map[string]*analytics.Plan
	invalid map[string]error

	workers int
	timeout time.Duration
	now     Clock
	newID   func() string
	l       *applogger.Logger
}

// Result is the outcome of one report inside GenerateAll.
type Result struct {
	Name   string
	Report *models.Report
	Err    error
	Took   time.Duration
}

func NewReportAssembler(reg *analytics.Registry, defs []analytics.Definition, opts ...AssemblerOption) *ReportAssembler {
	a := &ReportAssembler{
		reg:     reg,
		titles:  make(map[string]string, len(defs)),
		plans:   make(map[string]*analytics.Plan, len(defs)),
		invalid: make(map[string]error),
		workers: 4,
		timeout: 30 * time.Second,
		now:     time.Now,
		newID:   uuid.NewString,
		l:       applogger.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	for _, def := range defs {
		if _, dup := a.titles[def.Name]; dup {
			a.l.Error("duplicate report definition ignored", applogger.String("report", def.Name))
			continue
		}
		a.order = append(a.order, def.Name)
		a.titles[def.Name] = def.Title
		p, err := reg.Compile(def)
		if err != nil {
			a.invalid[def.Name] = err
			a.l.Error("report definition rejected", applogger.String("report", def.Name), applogger.Error(err))
			continue
		}
		a.plans[def.Name] = p
	}
	return a
}

// Names lists every defined report in catalog order, valid or not.
func (a *ReportAssembler) Names() []string {
	return append([]string(nil), a.order...)
}

func (a *ReportAssembler) Title(name string) string { return a.titles[name] }

// Vocabulary lists the keys, metrics, fields and filters the registry knows.
func (a *ReportAssembler) Vocabulary() map[string][]string { return a.reg.Names() }

// Check reports whether name can be generated: nil, ErrUnknownReport or the
// configuration error of that report.
func (a *ReportAssembler) Check(name string) error {
	if _, ok := a.plans[name]; ok {
		return nil
	}
	if err, ok := a.invalid[name]; ok {
		return err
	}
	return fmt.Errorf("%w: %s", analytics.ErrUnknownReport, name)
}

// Generate evaluates one report. The evaluation itself cannot be interrupted,
// so on timeout its result is discarded and ctx's error returned.
func (a *ReportAssembler) Generate(ctx context.Context, name string, idx *features.Index) (*models.Report, error) {
	return a.generate(ctx, name, idx, a.now())
}

func (a *ReportAssembler) generate(ctx context.Context, name string, idx *features.Index, at time.Time) (*models.Report, error) {
	if err := a.Check(name); err != nil {
		return nil, err
	}
	plan := a.plans[name]
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	done := make(chan *models.Report, 1)
	go func() { done <- plan.Run(idx, at) }()
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("report %s: %w", name, ctx.Err())
	}
}

// GenerateAll evaluates every report over one index with a bounded number of
// workers. All reports of a run share its id and timestamp. A failing report
// never stops the others.
func (a *ReportAssembler) GenerateAll(ctx context.Context, idx *features.Index, trigger string) ([]Result, models.RunSummary) {
	at := a.now().UTC()
	summary := models.RunSummary{RunID: a.newID(), Trigger: trigger, StartedAt: at}
	results := make([]Result, len(a.order))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, name := range a.order {
		i, name := i, name
		g.Go(func() error {
			start := time.Now()
			r, err := a.generate(ctx, name, idx, at)
			if r != nil {
				r.RunID = summary.RunID
			}
			results[i] = Result{Name: name, Report: r, Err: err, Took: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	summary.Reports = make([]models.ReportStatus, 0, len(results))
	for _, res := range results {
		st := models.ReportStatus{Name: res.Name, GeneratedAt: at, DurationMS: res.Took.Milliseconds()}
		if res.Err != nil {
			st.Error = res.Err.Error()
		} else {
			st.Rows = len(res.Report.Rows)
			st.Excluded = res.Report.Stats.ExcludedTotal()
		}
		summary.Reports = append(summary.Reports, st)
	}
	return results, summary
}

// FailureReason buckets a generation error for metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, analytics.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
