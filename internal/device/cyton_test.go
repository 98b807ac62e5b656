package device

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identity-wael/neurascale-sub000/internal/wireproto"
)

type pipeTransport struct {
	io.ReadCloser
	io.Writer
}

func (p pipeTransport) Close() error { return p.ReadCloser.Close() }

func TestCytonAdapterDecodesStreamedFrames(t *testing.T) {
	serverRead, clientWrite := io.Pipe()
	transport := pipeTransport{ReadCloser: serverRead, Writer: io.Discard}

	a := NewCyton("cyton-1", func() (Transport, error) { return transport, nil })
	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, a.StartStreaming(ctx))
	defer a.StopStreaming()

	var mv [8]float64
	for i := range mv {
		mv[i] = float64(i) * 10
	}
	encoded, err := wireproto.EncodeCytonFrame(3, mv, [3]int16{1, 2, 3})
	require.NoError(t, err)

	go func() {
		_, _ = clientWrite.Write(encoded)
	}()

	select {
	case s := <-a.Frames():
		require.Len(t, s.Channels, 8)
		require.InDelta(t, 0, s.Channels[0], 1e-6)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a decoded frame")
	}
}

func TestCytonConfigureRejectsBadSamplingRate(t *testing.T) {
	a := NewCyton("cyton-2", func() (Transport, error) { return nil, nil })
	err := a.Configure(map[string]any{"sampling_rate": 300.0})
	require.ErrorIs(t, err, ErrBadParameter)
}

func TestCytonConfigureSamplingRateRequiresReconnect(t *testing.T) {
	a := NewCyton("cyton-3", func() (Transport, error) { return nil, nil })
	err := a.Configure(map[string]any{"sampling_rate": 500.0})
	require.ErrorIs(t, err, ErrRequiresReconnect)
}

func TestCytonReadImpedanceIsUnsupportedWhenConnected(t *testing.T) {
	a := NewCyton("cyton-4", func() (Transport, error) { return pipeTransport{ReadCloser: io.NopCloser(new(emptyReader)), Writer: io.Discard}, nil })
	require.NoError(t, a.Connect(context.Background()))
	_, err := a.ReadImpedance(context.Background())
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestCytonReadImpedanceRequiresConnection(t *testing.T) {
	a := NewCyton("cyton-5", func() (Transport, error) { return nil, nil })
	_, err := a.ReadImpedance(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }
