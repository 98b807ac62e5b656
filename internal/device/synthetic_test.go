package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyntheticAdapterLifecycle(t *testing.T) {
	a := NewSynthetic("synth-1", 4, 250)
	ctx := context.Background()

	require.Equal(t, StateDisconnected, a.State())
	require.NoError(t, a.Connect(ctx))
	require.Equal(t, StateConnected, a.State())

	require.NoError(t, a.Configure(map[string]any{"signal": "sine", "base_frequency_hz": 12.0, "noise_rms": 1.0}))
	require.NoError(t, a.StartStreaming(ctx))
	require.Equal(t, StateStreaming, a.State())

	select {
	case s := <-a.Frames():
		require.Len(t, s.Channels, 4)
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one sample frame")
	}

	require.NoError(t, a.StopStreaming())
	require.Equal(t, StateConnected, a.State())
	require.NoError(t, a.Close())
	require.Equal(t, StateDisconnected, a.State())
}

func TestSyntheticAdapterRejectsBadConfig(t *testing.T) {
	a := NewSynthetic("synth-2", 2, 250)
	require.Error(t, a.Configure(map[string]any{"base_frequency_hz": "not-a-number"}))
}

func TestTransientContributionMuscleBurstIsNonZero(t *testing.T) {
	cfg := SyntheticConfig{MuscleBurstProb: 1.0}
	// roll=0 guarantees u=cdfApprox(0)=0.5 < MuscleBurstProb=1.0, so the
	// muscle-burst branch always fires; t must be nonzero for the 65Hz
	// burst oscillation to contribute.
	v := transientContribution(cfg, 0.01, 0)
	require.NotZero(t, v)
}

func TestSyntheticAdapterSelfTestReportsDataFlow(t *testing.T) {
	a := NewSynthetic("synth-3", 2, 250)
	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, a.StartStreaming(ctx))
	defer a.StopStreaming()

	report, err := a.SelfTest(ctx)
	require.NoError(t, err)
	require.True(t, report.DataFlowOK)
	require.True(t, report.Passed())
}
