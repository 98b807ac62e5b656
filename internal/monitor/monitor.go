// Package monitor implements the Quality Monitor of spec.md §4.G: a
// per-session wrapper around Assessor output that keeps a rolling window
// history, bounded per-metric trend series, and a threshold-driven alert
// lifecycle with cooldown and resolution.
package monitor

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/identity-wael/neurascale-sub000/internal/quality"
)

const (
	historyLimit = 60
	trendLimit   = 100
	stabilityN   = 10
	stabilityMaxVariance = 0.04
)

// Severity is an alert's urgency, per spec.md §4.G's two-tier thresholds.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Thresholds carries the warning/critical boundaries for each monitored
// metric, defaulted per spec.md §4.G.
type Thresholds struct {
	CompositeScoreWarn, CompositeScoreCrit float64
	SNRWarnDB, SNRCritDB                   float64
	NoiseRMSWarn, NoiseRMSCrit             float64
	ArtifactPctWarn, ArtifactPctCrit       float64
	BadChannelCountWarn, BadChannelCountCrit int
}

// DefaultThresholds matches the table in spec.md §4.G.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CompositeScoreWarn: 0.6, CompositeScoreCrit: 0.4,
		SNRWarnDB: 5, SNRCritDB: 3,
		NoiseRMSWarn: 50, NoiseRMSCrit: 100,
		ArtifactPctWarn: 10, ArtifactPctCrit: 20,
		BadChannelCountWarn: 2, BadChannelCountCrit: 4,
	}
}

// Alert is a single threshold-crossing event and its lifecycle.
type Alert struct {
	Metric              string
	Severity             Severity
	CreatedAt            time.Time
	LastSeenAt           time.Time
	ResolvedAt           time.Time
	Resolved             bool
	AccumulatedDuration  time.Duration
}

// TrendStats summarizes a bounded trend series.
type TrendStats struct {
	Mean, Std, Min, Max float64
	SlopeTendency       float64 // tanh-normalized linear-regression slope, in (-1,1)
	Samples             int
}

// Monitor tracks one session's rolling quality history and active alerts.
type Monitor struct {
	mu         sync.Mutex
	thresholds Thresholds
	cooldown   time.Duration

	history []quality.Metrics
	trends  map[string][]float64

	alerts []*Alert

	stableStreak []float64
}

// New creates a Monitor with the given thresholds. A zero-value Thresholds
// falls back to DefaultThresholds.
func New(thresholds Thresholds) *Monitor {
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Monitor{
		thresholds: thresholds,
		cooldown:   5 * time.Minute,
		trends:     make(map[string][]float64),
	}
}

// Observe ingests one window's Metrics at time now, updates history/trend
// series, evaluates thresholds, and returns the set of alerts touched by
// this observation (newly created, extended, or resolved).
func (m *Monitor) Observe(metrics quality.Metrics, now time.Time) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, metrics)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}

	badChannels := badChannelCount(metrics)
	m.pushTrend("overall", metrics.CompositeScore)
	m.pushTrend("snr", metrics.OverallSNRDB)
	m.pushTrend("noise", metrics.NoiseRMS)
	m.pushTrend("artifact_rate", metrics.ArtifactFractionPct)

	m.stableStreak = append(m.stableStreak, metrics.CompositeScore)
	if len(m.stableStreak) > stabilityN {
		m.stableStreak = m.stableStreak[len(m.stableStreak)-stabilityN:]
	}

	var touched []Alert
	touched = append(touched, m.evaluate("composite_score", metrics.CompositeScore, m.thresholds.CompositeScoreWarn, m.thresholds.CompositeScoreCrit, belowIsBad, now)...)
	touched = append(touched, m.evaluate("snr_db", metrics.OverallSNRDB, m.thresholds.SNRWarnDB, m.thresholds.SNRCritDB, belowIsBad, now)...)
	touched = append(touched, m.evaluate("noise_rms", metrics.NoiseRMS, m.thresholds.NoiseRMSWarn, m.thresholds.NoiseRMSCrit, aboveIsBad, now)...)
	touched = append(touched, m.evaluate("artifact_pct", metrics.ArtifactFractionPct, m.thresholds.ArtifactPctWarn, m.thresholds.ArtifactPctCrit, aboveIsBad, now)...)
	touched = append(touched, m.evaluate("bad_channel_count", float64(badChannels), float64(m.thresholds.BadChannelCountWarn), float64(m.thresholds.BadChannelCountCrit), aboveIsBad, now)...)
	return touched
}

func badChannelCount(m quality.Metrics) int {
	seen := make(map[int]bool)
	for _, ch := range m.FlatlineChannels {
		seen[ch] = true
	}
	for _, ch := range m.ClippingChannels {
		seen[ch] = true
	}
	for _, ch := range m.HighImpedanceChannels {
		seen[ch] = true
	}
	return len(seen)
}

func (m *Monitor) pushTrend(name string, value float64) {
	series := append(m.trends[name], value)
	if len(series) > trendLimit {
		series = series[len(series)-trendLimit:]
	}
	m.trends[name] = series
}

type badDirection int

const (
	belowIsBad badDirection = iota
	aboveIsBad
)

// evaluate checks value against warn/crit thresholds in the given
// direction, creating/extending/resolving alerts as needed, and returns a
// snapshot of every alert whose state changed this call.
func (m *Monitor) evaluate(metric string, value, warnThreshold, critThreshold float64, dir badDirection, now time.Time) []Alert {
	crit := crossed(value, critThreshold, dir)
	warn := !crit && crossed(value, warnThreshold, dir)

	var touched []Alert
	if crit {
		touched = append(touched, *m.raiseOrExtend(metric, SeverityCritical, now))
	} else {
		m.resolveIfActive(metric, SeverityCritical, now, &touched)
	}
	if warn {
		touched = append(touched, *m.raiseOrExtend(metric, SeverityWarning, now))
	} else {
		m.resolveIfActive(metric, SeverityWarning, now, &touched)
	}
	return touched
}

func crossed(value, threshold float64, dir badDirection) bool {
	if dir == belowIsBad {
		return value < threshold
	}
	return value > threshold
}

func (m *Monitor) findUnresolved(metric string, sev Severity) *Alert {
	for _, a := range m.alerts {
		if a.Metric == metric && a.Severity == sev && !a.Resolved {
			return a
		}
	}
	return nil
}

func (m *Monitor) raiseOrExtend(metric string, sev Severity, now time.Time) *Alert {
	if existing := m.findUnresolved(metric, sev); existing != nil {
		existing.AccumulatedDuration += now.Sub(existing.LastSeenAt)
		existing.LastSeenAt = now
		return existing
	}
	if last := m.lastAlert(metric, sev); last != nil && now.Sub(last.CreatedAt) < m.cooldown {
		last.LastSeenAt = now
		return last
	}
	alert := &Alert{Metric: metric, Severity: sev, CreatedAt: now, LastSeenAt: now}
	m.alerts = append(m.alerts, alert)
	return alert
}

func (m *Monitor) lastAlert(metric string, sev Severity) *Alert {
	var last *Alert
	for _, a := range m.alerts {
		if a.Metric == metric && a.Severity == sev {
			if last == nil || a.CreatedAt.After(last.CreatedAt) {
				last = a
			}
		}
	}
	return last
}

func (m *Monitor) resolveIfActive(metric string, sev Severity, now time.Time, touched *[]Alert) {
	if existing := m.findUnresolved(metric, sev); existing != nil {
		existing.Resolved = true
		existing.ResolvedAt = now
		existing.AccumulatedDuration += now.Sub(existing.LastSeenAt)
		existing.LastSeenAt = now
		*touched = append(*touched, *existing)
	}
}

// ActiveAlerts returns all currently-unresolved alerts.
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alert
	for _, a := range m.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// History returns a copy of the rolling window-metrics history.
func (m *Monitor) History() []quality.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]quality.Metrics, len(m.history))
	copy(out, m.history)
	return out
}

// TrendStats computes mean/std/min/max and a tanh-normalized linear
// regression slope tendency over the named metric's bounded series. Valid
// names: "overall", "snr", "noise", "artifact_rate".
func (m *Monitor) TrendStats(name string) TrendStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	series := m.trends[name]
	if len(series) == 0 {
		return TrendStats{}
	}
	mean, variance := stat.MeanVariance(series, nil)
	lo, hi := series[0], series[0]
	for _, v := range series {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	xs := make([]float64, len(series))
	for i := range xs {
		xs[i] = float64(i)
	}
	var slope float64
	if len(series) >= 2 {
		_, slope = stat.LinearRegression(xs, series, nil, false)
	}

	return TrendStats{
		Mean: mean, Std: math.Sqrt(variance), Min: lo, Max: hi,
		SlopeTendency: math.Tanh(slope),
		Samples:       len(series),
	}
}

// Stable reports whether the last stabilityN composite scores have
// variance below stabilityMaxVariance, per spec.md §4.G.
func (m *Monitor) Stable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stableStreak) < stabilityN {
		return false
	}
	_, variance := stat.MeanVariance(m.stableStreak, nil)
	return variance < stabilityMaxVariance
}
