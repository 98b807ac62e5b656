package device

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/identity-wael/neurascale-sub000/internal/config"
	"github.com/identity-wael/neurascale-sub000/internal/frame"
	"github.com/identity-wael/neurascale-sub000/internal/wireproto"
)

var cytonValidSamplingRates = map[int]bool{250: true, 500: true, 1000: true, 2000: true, 4000: true, 8000: true, 16000: true}

// CytonAdapter streams from an OpenBCI Cyton board over a byte Transport,
// decoding frames with wireproto.CytonDecoder. Structurally this follows
// a PlutoSDR-style adapter: a Transport opened in Connect, a read goroutine
// started in StartStreaming, and reconnect-on-param-change semantics.
type CytonAdapter struct {
	*baseAdapter

	mu            sync.Mutex
	transport     Transport
	openTransport func() (Transport, error)
	decoder       *wireproto.CytonDecoder
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	samplingRate int
	testSignal   bool
}

// NewCyton builds a Cyton adapter. openTransport is invoked on Connect and
// on every reconnect triggered by a connection-parameter change.
func NewCyton(id string, openTransport func() (Transport, error)) *CytonAdapter {
	d := Descriptor{ID: id, Kind: KindCyton, Name: "OpenBCI Cyton", Channels: 8, SamplingRate: 250, State: StateDisconnected}
	return &CytonAdapter{
		baseAdapter:   newBaseAdapter(d, 2048),
		openTransport: openTransport,
		decoder:       wireproto.NewCytonDecoder(),
		samplingRate:  250,
	}
}

func (c *CytonAdapter) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	t, err := c.openTransport()
	if err != nil {
		c.setError(err)
		return fmt.Errorf("cyton connect: %w", err)
	}
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
	c.setState(StateConnected)
	return nil
}

func (c *CytonAdapter) Configure(params config.Map) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	requiresReconnect := false

	if v, ok := params["sampling_rate"]; ok {
		rate, ok := v.(float64)
		if !ok || !cytonValidSamplingRates[int(rate)] {
			return fmt.Errorf("%w: sampling_rate must be one of the Cyton-supported enum values", ErrBadParameter)
		}
		if int(rate) != c.samplingRate {
			c.samplingRate = int(rate)
			c.descriptor.SamplingRate = rate
			requiresReconnect = true
		}
	}
	if v, ok := params["test_signal"]; ok {
		enabled, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: test_signal must be a bool", ErrBadParameter)
		}
		c.testSignal = enabled
	}
	if _, ok := params["serial.port"]; ok {
		requiresReconnect = true
	}
	if _, ok := params["connection.port"]; ok {
		requiresReconnect = true
	}

	if requiresReconnect {
		return fmt.Errorf("%w", ErrRequiresReconnect)
	}
	return nil
}

func (c *CytonAdapter) StartStreaming(ctx context.Context) error {
	if err := c.requireState(StateConnected); err != nil {
		if err2 := c.requireState(StateStreaming); err2 == nil {
			return nil
		}
		return fmt.Errorf("%w", ErrNotConnected)
	}
	c.setState(StateStreaming)

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	transport := c.transport
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(runCtx, transport)
	return nil
}

func (c *CytonAdapter) readLoop(ctx context.Context, t Transport) {
	defer c.wg.Done()
	reader := bufio.NewReaderSize(t, 4096)
	buf := make([]byte, 512)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := reader.Read(buf)
		if err != nil {
			c.setError(fmt.Errorf("cyton read: %w", err))
			return
		}
		if n == 0 {
			continue
		}
		c.mu.Lock()
		frames := c.decoder.Feed(buf[:n])
		rate := float64(c.samplingRate)
		c.mu.Unlock()

		for _, f := range frames {
			ch := make([]float32, len(f.EEGMicrovolts))
			for i, v := range f.EEGMicrovolts {
				ch[i] = float32(v)
			}
			aux := make([]float32, len(f.Aux))
			for i, v := range f.Aux {
				aux[i] = float32(v)
			}
			c.push(frame.Sample{
				TimestampSeconds: float64(f.SampleCounter) / rate,
				Channels:         ch,
				Aux:              aux,
				Index:            uint32(f.SampleCounter),
			})
		}
	}
}

func (c *CytonAdapter) StopStreaming() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	c.wg.Wait()
	c.setState(StateConnected)
	return nil
}

// ReadImpedance is unsupported on the Cyton adapter: the board's lead-off
// impedance check works by injecting a test current on a channel and
// computing impedance from the amplitude of the resulting signal in the
// normal EEG data stream, which wireproto.CytonDecoder has no decode path
// for (unlike the Ganglion's dedicated type-206 impedance packets). Rather
// than report a fabricated value, this reports the device as unable to
// service the request.
func (c *CytonAdapter) ReadImpedance(ctx context.Context) (map[string]float64, error) {
	if c.State() == StateDisconnected || c.State() == StateError {
		return nil, fmt.Errorf("%w", ErrNotConnected)
	}
	return nil, fmt.Errorf("%w: cyton impedance requires amplitude analysis of an injected test signal, not implemented", ErrUnsupported)
}

func (c *CytonAdapter) SelfTest(ctx context.Context) (SelfTestReport, error) {
	if c.State() == StateDisconnected || c.State() == StateError {
		return SelfTestReport{}, fmt.Errorf("%w", ErrNotConnected)
	}
	start := time.Now()
	before := c.decoder.FramesDecoded()
	timer := time.NewTimer(1 * time.Second)
	defer timer.Stop()
	<-timer.C
	after := c.decoder.FramesDecoded()
	dropped := c.decoder.DroppedPackets()
	received := after - before
	total := received + dropped
	lossPct := 0.0
	if total > 0 {
		lossPct = 100 * float64(dropped) / float64(total)
	}
	return SelfTestReport{
		Connectivity:   true,
		ChannelControl: true,
		DataFlowOK:     received > 0,
		PacketLossPct:  lossPct,
		Duration:       time.Since(start),
	}, nil
}

func (c *CytonAdapter) Close() error {
	_ = c.StopStreaming()
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.mu.Unlock()
	c.setState(StateDisconnected)
	if t != nil {
		return t.Close()
	}
	return nil
}
