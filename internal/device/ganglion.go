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

// GanglionAdapter streams from an OpenBCI Ganglion board, decoding the
// type-tagged packet stream with wireproto.GanglionDecoder.
type GanglionAdapter struct {
	*baseAdapter

	mu            sync.Mutex
	transport     Transport
	openTransport func() (Transport, error)
	decoder       *wireproto.GanglionDecoder
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	lastImpedance map[string]float64
}

// NewGanglion builds a Ganglion adapter.
func NewGanglion(id string, openTransport func() (Transport, error)) *GanglionAdapter {
	d := Descriptor{ID: id, Kind: KindGanglion, Name: "OpenBCI Ganglion", Channels: 4, SamplingRate: 200, State: StateDisconnected}
	return &GanglionAdapter{
		baseAdapter:   newBaseAdapter(d, 2048),
		openTransport: openTransport,
		decoder:       wireproto.NewGanglionDecoder(),
		lastImpedance: make(map[string]float64),
	}
}

func (g *GanglionAdapter) Connect(_ context.Context) error {
	g.setState(StateConnecting)
	t, err := g.openTransport()
	if err != nil {
		g.setError(err)
		return fmt.Errorf("ganglion connect: %w", err)
	}
	g.mu.Lock()
	g.transport = t
	g.mu.Unlock()
	g.setState(StateConnected)
	return nil
}

func (g *GanglionAdapter) Configure(params config.Map) error {
	if _, ok := params["connection.mac"]; ok {
		return fmt.Errorf("%w", ErrRequiresReconnect)
	}
	return nil
}

func (g *GanglionAdapter) StartStreaming(ctx context.Context) error {
	if err := g.requireState(StateConnected); err != nil {
		if err2 := g.requireState(StateStreaming); err2 == nil {
			return nil
		}
		return fmt.Errorf("%w", ErrNotConnected)
	}
	g.setState(StateStreaming)

	runCtx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	transport := g.transport
	g.mu.Unlock()

	g.wg.Add(1)
	go g.readLoop(runCtx, transport)
	return nil
}

func (g *GanglionAdapter) readLoop(ctx context.Context, t Transport) {
	defer g.wg.Done()
	reader := bufio.NewReaderSize(t, 4096)
	buf := make([]byte, 512)
	var sampleIndex uint32

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := reader.Read(buf)
		if err != nil {
			g.setError(fmt.Errorf("ganglion read: %w", err))
			return
		}
		if n == 0 {
			continue
		}
		g.mu.Lock()
		packets := g.decoder.Feed(buf[:n])
		g.mu.Unlock()
		fs := g.Descriptor().SamplingRate

		for _, p := range packets {
			switch p.Kind {
			case wireproto.GanglionKindSamples:
				ch := make([]float32, len(p.Microvolts))
				for i, v := range p.Microvolts {
					ch[i] = float32(v)
				}
				g.push(frame.Sample{
					TimestampSeconds: float64(sampleIndex) / fs,
					Channels:         ch,
					Index:            sampleIndex,
				})
				sampleIndex++
			case wireproto.GanglionKindImpedance:
				g.mu.Lock()
				for i, b := range p.ImpedanceRaw {
					g.lastImpedance[fmt.Sprintf("ch%d", i)] = float64(b)
				}
				g.mu.Unlock()
			}
		}
	}
}

func (g *GanglionAdapter) StopStreaming() error {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	g.wg.Wait()
	g.setState(StateConnected)
	return nil
}

func (g *GanglionAdapter) ReadImpedance(_ context.Context) (map[string]float64, error) {
	if g.State() == StateDisconnected || g.State() == StateError {
		return nil, fmt.Errorf("%w", ErrNotConnected)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.lastImpedance))
	for k, v := range g.lastImpedance {
		out[k] = v
	}
	return out, nil
}

func (g *GanglionAdapter) SelfTest(_ context.Context) (SelfTestReport, error) {
	if g.State() == StateDisconnected || g.State() == StateError {
		return SelfTestReport{}, fmt.Errorf("%w", ErrNotConnected)
	}
	start := time.Now()
	before := g.decoder.PacketsDecoded()
	timer := time.NewTimer(1 * time.Second)
	defer timer.Stop()
	<-timer.C
	after := g.decoder.PacketsDecoded()
	return SelfTestReport{
		Connectivity:   true,
		ChannelControl: true,
		DataFlowOK:     after > before,
		PacketLossPct:  0,
		Duration:       time.Since(start),
	}, nil
}

func (g *GanglionAdapter) Close() error {
	_ = g.StopStreaming()
	g.mu.Lock()
	t := g.transport
	g.transport = nil
	g.mu.Unlock()
	g.setState(StateDisconnected)
	if t != nil {
		return t.Close()
	}
	return nil
}
