package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskPulse/internal/domain/models"
	domrepo "RiskPulse/internal/domain/repository"
	"RiskPulse/internal/services/features"
	"RiskPulse/pkg/cache"
	pkgkafka "RiskPulse/pkg/kafka"
)

var at = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func report(name string) *models.Report {
	return &models.Report{
		Name:        name,
		RunID:       "run-1",
		GeneratedAt: at,
		Columns: []models.Column{
			{Name: "grade", Kind: models.KindText},
			{Name: "loan_count", Kind: models.KindInt},
			{Name: "generated_at", Kind: models.KindTime},
		},
		Rows: []models.Row{
			{models.TextValue("A"), models.IntValue(3), models.TimeValue(at)},
			{models.NullValue(models.KindText), models.IntValue(1), models.TimeValue(at)},
		},
	}
}

func TestReportCacheRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := NewReportCache(cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "riskpulse"), time.Hour)

	_, err := rc.Get(ctx, "risk_monitoring")
	require.ErrorIs(t, err, domrepo.ErrNotCached)

	require.NoError(t, rc.Put(ctx, report("risk_monitoring")))
	assert.True(t, mr.Exists("riskpulse:report:risk_monitoring"))

	got, err := rc.Get(ctx, "risk_monitoring")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "A", got.Rows[0][0].Text())
	assert.True(t, got.Rows[1][0].IsNull())

	mr.FastForward(2 * time.Hour)
	_, err = rc.Get(ctx, "risk_monitoring")
	assert.ErrorIs(t, err, domrepo.ErrNotCached)
}

func TestReportCacheLock(t *testing.T) {
	ctx := context.Background()
	rc := NewReportCache(cache.NewMemoryCache(cache.WithMemoryCleanup(0)), time.Minute)

	ok, err := rc.TryLock(ctx, "all", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = rc.TryLock(ctx, "all", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, rc.Unlock(ctx, "all"))
	ok, err = rc.TryLock(ctx, "all", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

type sentMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	sent   []sentMessage
	closed bool
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}, headers ...pkgkafka.Header) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	h := make(map[string]string, len(headers))
	for _, x := range headers {
		h[x.Key] = x.Value
	}
	f.sent = append(f.sent, sentMessage{topic: topic, key: string(key), value: b, headers: h})
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaReportPublisher(t *testing.T) {
	fp := &fakeProducer{}
	p := NewKafkaReportPublisher(fp, "riskpulse.reports")

	require.NoError(t, p.Publish(context.Background(), report("cohort_analysis")))
	require.Len(t, fp.sent, 1)
	msg := fp.sent[0]
	assert.Equal(t, "riskpulse.reports", msg.topic)
	assert.Equal(t, "cohort_analysis", msg.key)
	assert.Equal(t, "run-1", msg.headers["run_id"])
	assert.Equal(t, "2024-06-30T12:00:00Z", msg.headers["generated_at"])

	var back models.Report
	require.NoError(t, json.Unmarshal(msg.value, &back))
	assert.Equal(t, "cohort_analysis", back.Name)
	assert.Len(t, back.Rows, 2)

	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}

func TestGenerateSampleDeterministic(t *testing.T) {
	cfg := SampleConfig{Loans: 500, Seed: 42, AsOf: at}
	a, b := GenerateSample(cfg), GenerateSample(cfg)
	require.Equal(t, a, b)

	c := GenerateSample(SampleConfig{Loans: 500, Seed: 7, AsOf: at})
	assert.NotEqual(t, a.Loans, c.Loans)
}

func TestGenerateSampleIsConsistent(t *testing.T) {
	snap := GenerateSample(SampleConfig{Loans: 2000, Seed: 42, AsOf: at})
	require.Len(t, snap.Loans, 2000)

	idx := features.NewIndex(snap)
	assert.Zero(t, idx.FlagMismatches())

	joined, stats := idx.Join(models.JoinCustomer | models.JoinProduct | models.JoinGeography | models.JoinTime)
	assert.Len(t, joined, 2000)
	assert.Zero(t, stats.ExcludedTotal())

	for _, l := range snap.Loans {
		require.GreaterOrEqual(t, l.LoanAmount, 1000.0)
		require.LessOrEqual(t, l.LoanAmount, 40000.0)
		require.Contains(t, []int{36, 60}, termOf(snap, l.ProductID))
		require.GreaterOrEqual(t, l.RiskScore, 0.0)
		require.LessOrEqual(t, l.RiskScore, 100.0)
		require.False(t, l.IssueDate.Before(sampleEpoch))
		require.GreaterOrEqual(t, l.MonthsSinceIssue, 0)
	}
	for _, c := range snap.Customers {
		require.Contains(t, []string{"Prime", "Stretch", "Building", "HighRisk", "Established"}, c.Segment)
		require.Contains(t, []string{"Low Risk", "Medium Risk", "High Risk", "Very High Risk"}, c.RiskCategory)
		require.NotEmpty(t, c.FicoCategory)
	}
}

func termOf(s *models.Snapshot, productID string) int {
	for _, p := range s.Products {
		if p.ProductID == productID {
			return p.TermMonths
		}
	}
	return 0
}

func TestMonthsBetween(t *testing.T) {
	from := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, monthsBetween(from, time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, monthsBetween(from, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, monthsBetween(from, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Loans)

	next := GenerateSample(SampleConfig{Loans: 10, Seed: 1, AsOf: at})
	require.NoError(t, s.StoreSnapshot(ctx, next))
	got, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, next, got)

	require.NoError(t, s.Close())
	assert.Error(t, s.Health(ctx))
	_, err = s.Snapshot(ctx)
	assert.Error(t, err)
}
