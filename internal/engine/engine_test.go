package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identity-wael/neurascale-sub000/internal/device"
	"github.com/identity-wael/neurascale-sub000/internal/stream"
)

func TestConnectDeviceUnknownIDReturnsDeviceNotFound(t *testing.T) {
	e := New(nil)
	err := e.ConnectDevice(context.Background(), "missing", 0)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	require.Equal(t, DeviceNotFound, engErr.Kind)
}

func TestListDevicesFiltersByStateAndKind(t *testing.T) {
	e := New(nil)
	e.RegisterDevice(device.NewSynthetic("synth-1", 4, 250))

	all := e.ListDevices("", "")
	require.Len(t, all, 1)

	none := e.ListDevices(device.StateStreaming, "")
	require.Empty(t, none)

	byKind := e.ListDevices("", device.KindSynthetic)
	require.Len(t, byKind, 1)
}

func TestConnectAndStreamSyntheticDeviceRoutesFramesIntoSession(t *testing.T) {
	e := New(nil)
	e.RegisterDevice(device.NewSynthetic("synth-1", 2, 250))

	ctx := context.Background()
	require.NoError(t, e.ConnectDevice(ctx, "synth-1", time.Second))

	cfg := stream.DefaultConfig()
	cfg.WindowSeconds = 0.2
	cfg.ProcessTick = 5 * time.Millisecond
	cfg.MinSamplesToProcess = 16
	require.NoError(t, e.StartStreamSession(ctx, "synth-1", 2, 250, cfg))

	require.NoError(t, e.StartStreaming(ctx, "synth-1"))
	defer e.StopStreaming("synth-1")

	deadline := time.After(2 * time.Second)
	for {
		status, err := e.GetStreamStatus("synth-1")
		require.NoError(t, err)
		if status.WindowsEmitted > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected at least one processed window within the deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	snapshot, err := e.CheckQuality("synth-1")
	require.NoError(t, err)
	require.NotEmpty(t, snapshot.History)

	metrics, err := e.StopStreamSession("synth-1")
	require.NoError(t, err)
	require.Greater(t, metrics.SamplesProcessed, uint64(0))
}

func TestProcessBatchRejectsMismatchedChannelShape(t *testing.T) {
	e := New(nil)
	ctx := context.Background()
	require.NoError(t, e.StartStreamSession(ctx, "manual-1", 4, 250, stream.DefaultConfig()))
	defer e.StopStreamSession("manual-1")

	err := e.ProcessBatch("manual-1", [][]float32{{1, 2, 3}}, 0)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	require.Equal(t, BadShape, engErr.Kind)
}

func TestProcessBatchUnknownSessionReturnsUnknownSession(t *testing.T) {
	e := New(nil)
	err := e.ProcessBatch("nope", [][]float32{{1}}, 0)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	require.Equal(t, UnknownSession, engErr.Kind)
}

func TestUpdateConfigRejectsUnknownComponent(t *testing.T) {
	e := New(nil)
	_, err := e.UpdateConfig("bogus", nil)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	require.Equal(t, UnknownComponent, engErr.Kind)
}

func TestUpdateConfigProcessorAppliesAndReturnsChangedKeys(t *testing.T) {
	e := New(nil)
	updated, err := e.UpdateConfig("processor", map[string]any{"quality_threshold": 0.75})
	require.NoError(t, err)
	require.Contains(t, updated, "quality_threshold")
	require.InDelta(t, 0.75, e.procCfg.QualityThreshold, 1e-9)
}

func TestStopStreamSessionOnUnknownSessionIsNoop(t *testing.T) {
	e := New(nil)
	metrics, err := e.StopStreamSession("never-started")
	require.NoError(t, err)
	require.Equal(t, uint64(0), metrics.SamplesProcessed)
}

func TestDisconnectDeviceStopsLiveSession(t *testing.T) {
	e := New(nil)
	e.RegisterDevice(device.NewSynthetic("synth-2", 2, 250))
	ctx := context.Background()
	require.NoError(t, e.ConnectDevice(ctx, "synth-2", time.Second))
	require.NoError(t, e.StartStreamSession(ctx, "synth-2", 2, 250, stream.DefaultConfig()))

	require.NoError(t, e.DisconnectDevice("synth-2"))

	_, err := e.GetStreamStatus("synth-2")
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	require.Equal(t, UnknownSession, engErr.Kind)
}
