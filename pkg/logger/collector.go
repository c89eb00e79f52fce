package logger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct findings before an early flush
	Topic          string
	Publisher      Publisher
	OnError        func(error)
}

// QualityFinding is one aggregated data-quality observation, e.g. loans
// dropped from a report because their customer row is missing.
type QualityFinding struct {
	Kind      string    `json:"kind"`   // missing_join_target, flag_mismatch
	Report    string    `json:"report"` // empty for snapshot-wide findings
	Detail    string    `json:"detail"` // dimension name, flag name
	Count     int       `json:"count"`
	Seen      int       `json:"seen"` // how many runs reported it
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type findingKey struct{ kind, report, detail string }

// QualityCollector aggregates findings and publishes them in batches.
type QualityCollector struct {
	config   *CollectionConfig
	findings map[findingKey]*QualityFinding
	mu       sync.Mutex
	now      func() time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewQualityCollector(config *CollectionConfig) *QualityCollector {
	ctx, cancel := context.WithCancel(context.Background())
	c := &QualityCollector{
		config:   config,
		findings: make(map[findingKey]*QualityFinding),
		now:      time.Now,
		cancel:   cancel,
	}
	if config.TimeInterval > 0 {
		c.wg.Add(1)
		go c.periodicFlush(ctx)
	}
	return c
}

// Add records count occurrences of a finding.
func (c *QualityCollector) Add(kind, report, detail string, count int) {
	now := c.now()
	k := findingKey{kind, report, detail}

	c.mu.Lock()
	f, ok := c.findings[k]
	if !ok {
		f = &QualityFinding{Kind: kind, Report: report, Detail: detail, FirstSeen: now}
		c.findings[k] = f
	}
	f.Count += count
	f.Seen++
	f.LastSeen = now
	var batch []QualityFinding
	if c.config.CountThreshold > 0 && len(c.findings) >= c.config.CountThreshold {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	c.publish(batch)
}

// Flush publishes everything collected so far.
func (c *QualityCollector) Flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	c.publish(batch)
}

func (c *QualityCollector) drainLocked() []QualityFinding {
	if len(c.findings) == 0 {
		return nil
	}
	out := make([]QualityFinding, 0, len(c.findings))
	for _, f := range c.findings {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Report != b.Report {
			return a.Report < b.Report
		}
		return a.Detail < b.Detail
	})
	c.findings = make(map[findingKey]*QualityFinding)
	return out
}

func (c *QualityCollector) publish(batch []QualityFinding) {
	if len(batch) == 0 || c.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil && c.config.OnError != nil {
		c.config.OnError(err)
	}
}

func (c *QualityCollector) periodicFlush(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the flush loop and publishes what is left.
func (c *QualityCollector) Close() {
	c.cancel()
	c.wg.Wait()
	c.Flush()
}
