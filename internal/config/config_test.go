package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyProcessorRejectsBadBandpass(t *testing.T) {
	base := DefaultProcessor()
	_, _, err := ApplyProcessor(base, Map{"bandpass_low": 0.0, "bandpass_high": 40.0})
	require.Error(t, err)

	_, _, err = ApplyProcessor(base, Map{"bandpass_high": base.SamplingRate})
	require.Error(t, err)
}

func TestApplyProcessorIsIdempotent(t *testing.T) {
	base := DefaultProcessor()
	once, updated1, err := ApplyProcessor(base, Map{"filter_order": 6})
	require.NoError(t, err)
	require.Contains(t, updated1, "filter_order")

	twice, updated2, err := ApplyProcessor(once, Map{"filter_order": 6})
	require.NoError(t, err)
	require.Equal(t, once, twice)
	require.Contains(t, updated2, "filter_order")
}

func TestApplyProcessorParsesElectrodePositions(t *testing.T) {
	base := DefaultProcessor()
	out, updated, err := ApplyProcessor(base, Map{
		"electrode_positions": []any{
			map[string]any{"channel": 0.0, "x": 1.5, "y": -2.0},
			map[string]any{"channel": 1.0, "x": 0.0, "y": 0.0},
		},
	})
	require.NoError(t, err)
	require.Contains(t, updated, "electrode_positions")
	require.Equal(t, []ElectrodePosition{{Channel: 0, X: 1.5, Y: -2.0}, {Channel: 1, X: 0, Y: 0}}, out.Electrodes)
}

func TestApplyProcessorRejectsMalformedElectrodePositions(t *testing.T) {
	base := DefaultProcessor()
	_, _, err := ApplyProcessor(base, Map{"electrode_positions": []any{"not-an-object"}})
	require.Error(t, err)
}

func TestApplyStreamRejectsOutOfRangeOverlap(t *testing.T) {
	_, _, err := ApplyStream(DefaultStream(), Map{"window_overlap": 1.0})
	require.Error(t, err)
}

func TestApplyQualityUpdatesOnlyGivenKeys(t *testing.T) {
	base := DefaultQuality()
	out, updated, err := ApplyQuality(base, Map{"snr_warning": 6.0})
	require.NoError(t, err)
	require.Equal(t, []string{"snr_warning"}, updated)
	require.Equal(t, 6.0, out.SNRWarn)
	require.Equal(t, base.SNRCritical, out.SNRCritical)
}
