package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identity-wael/neurascale-sub000/internal/quality"
)

func TestObserveRaisesWarningThenCritical(t *testing.T) {
	m := New(DefaultThresholds())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	touched := m.Observe(quality.Metrics{CompositeScore: 0.5, OverallSNRDB: 10}, now)
	require.NotEmpty(t, touched)
	require.Equal(t, SeverityWarning, touched[0].Severity)

	touched = m.Observe(quality.Metrics{CompositeScore: 0.3, OverallSNRDB: 10}, now.Add(time.Second))
	var sawCritical bool
	for _, a := range touched {
		if a.Metric == "composite_score" && a.Severity == SeverityCritical {
			sawCritical = true
		}
	}
	require.True(t, sawCritical)
	require.Len(t, m.ActiveAlerts(), 1)
}

func TestObserveResolvesAlertWhenMetricRecovers(t *testing.T) {
	m := New(DefaultThresholds())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Observe(quality.Metrics{CompositeScore: 0.3, OverallSNRDB: 10}, now)
	require.Len(t, m.ActiveAlerts(), 1)

	m.Observe(quality.Metrics{CompositeScore: 0.9, OverallSNRDB: 10}, now.Add(time.Second))
	require.Empty(t, m.ActiveAlerts())
}

func TestCooldownSuppressesDuplicateAlertCreation(t *testing.T) {
	m := New(DefaultThresholds())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Observe(quality.Metrics{CompositeScore: 0.3, OverallSNRDB: 10}, now)
	m.Observe(quality.Metrics{CompositeScore: 0.9, OverallSNRDB: 10}, now.Add(time.Second))
	require.Empty(t, m.ActiveAlerts())

	// Re-crossing within the cooldown window should not mint a brand new
	// alert with a fresh CreatedAt; it should reuse the last one's identity.
	before := m.lastAlert("composite_score", SeverityCritical).CreatedAt
	m.Observe(quality.Metrics{CompositeScore: 0.3, OverallSNRDB: 10}, now.Add(2*time.Second))
	after := m.lastAlert("composite_score", SeverityCritical)
	require.Equal(t, before, after.CreatedAt)
}

func TestTrendStatsComputesMeanAndBounds(t *testing.T) {
	m := New(DefaultThresholds())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m.Observe(quality.Metrics{CompositeScore: 0.8, OverallSNRDB: 10}, now.Add(time.Duration(i)*time.Second))
	}
	stats := m.TrendStats("overall")
	require.Equal(t, 5, stats.Samples)
	require.InDelta(t, 0.8, stats.Mean, 1e-9)
	require.InDelta(t, 0, stats.Std, 1e-9)
}

func TestStableFlagsAfterTenLowVarianceSamples(t *testing.T) {
	m := New(DefaultThresholds())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		m.Observe(quality.Metrics{CompositeScore: 0.85, OverallSNRDB: 10}, now.Add(time.Duration(i)*time.Second))
	}
	require.True(t, m.Stable())
}

func TestBadChannelCountDeduplicatesOverlappingFlags(t *testing.T) {
	count := badChannelCount(quality.Metrics{
		FlatlineChannels:      []int{1, 2},
		ClippingChannels:      []int{2, 3},
		HighImpedanceChannels: []int{3},
	})
	require.Equal(t, 3, count)
}
