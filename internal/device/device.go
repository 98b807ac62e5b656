// Package device implements the Device Adapter contract of spec.md §4.A:
// a uniform capability surface (connect/configure/stream/impedance/self-test)
// over heterogeneous acquisition hardware and synthetic generators, each
// variant pushing decoded Sample Frames to its manager. The shape follows
// a small radio-adapter interface and its Mock/Pluto variants: one small
// capability interface, several concrete backends, Config passed by value.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/identity-wael/neurascale-sub000/internal/config"
	"github.com/identity-wael/neurascale-sub000/internal/frame"
)

// State is the device lifecycle state machine of spec.md §4.A.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateStreaming    State = "streaming"
	StateError        State = "error"
)

// Kind identifies a device variant.
type Kind string

const (
	KindCyton     Kind = "openbci_cyton"
	KindGanglion  Kind = "openbci_ganglion"
	KindSynthetic Kind = "synthetic"
	KindLSL       Kind = "lsl"
	KindBrainFlow Kind = "brainflow"
)

// Descriptor summarizes a device for discovery/listing responses.
type Descriptor struct {
	ID           string
	Kind         Kind
	Name         string
	State        State
	Channels     int
	SamplingRate float64
}

// Failure reasons, returned as part of wrapped errors so callers can
// discriminate with errors.Is without string matching.
var (
	ErrRequiresReconnect = errors.New("device: configuration change requires reconnect")
	ErrNotConnected      = errors.New("device: not connected")
	ErrNotStreaming      = errors.New("device: not streaming")
	ErrTimeout           = errors.New("device: operation timed out")
	ErrBadParameter      = errors.New("device: bad configuration parameter")
	ErrUnsupported       = errors.New("device: operation not supported by this adapter")
)

// SelfTestReport is the result of Adapter.SelfTest.
type SelfTestReport struct {
	Connectivity   bool
	ChannelControl bool
	DataFlowOK     bool
	PacketLossPct  float64
	Duration       time.Duration
	Notes          []string
}

// Passed reports whether the self test met spec.md §4.A's bar: connectivity,
// channel control, data flow observed within 1s, and packet loss under 5%.
func (r SelfTestReport) Passed() bool {
	return r.Connectivity && r.ChannelControl && r.DataFlowOK && r.PacketLossPct < 5.0
}

// Adapter is the capability contract every device variant implements.
type Adapter interface {
	Descriptor() Descriptor
	State() State
	Connect(ctx context.Context) error
	Configure(params config.Map) error
	StartStreaming(ctx context.Context) error
	StopStreaming() error
	ReadImpedance(ctx context.Context) (map[string]float64, error)
	SelfTest(ctx context.Context) (SelfTestReport, error)
	Frames() <-chan frame.Sample
	Close() error
}

// baseAdapter centralizes the state machine and channel management shared
// by every Adapter implementation,
// mirroring how MockSDR/PlutoSDR-style variants share a Config
// struct and mutex-guarded state rather than duplicating bookkeeping.
type baseAdapter struct {
	mu          sync.RWMutex
	descriptor  Descriptor
	state       State
	frames      chan frame.Sample
	lastErr     error
	connectedAt time.Time
}

func newBaseAdapter(d Descriptor, frameBuffer int) *baseAdapter {
	if frameBuffer <= 0 {
		frameBuffer = 256
	}
	return &baseAdapter{
		descriptor: d,
		state:      StateDisconnected,
		frames:     make(chan frame.Sample, frameBuffer),
	}
}

func (b *baseAdapter) Descriptor() Descriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.descriptor
}

func (b *baseAdapter) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *baseAdapter) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.descriptor.State = s
	b.mu.Unlock()
}

func (b *baseAdapter) setError(err error) {
	b.mu.Lock()
	b.state = StateError
	b.descriptor.State = StateError
	b.lastErr = err
	b.mu.Unlock()
}

func (b *baseAdapter) Frames() <-chan frame.Sample { return b.frames }

// push sends a frame without blocking indefinitely; a full channel means the
// manager is not draining fast enough, which spec.md treats as the
// manager's backpressure problem, not the adapter's, so the frame is
// dropped rather than stalling acquisition.
func (b *baseAdapter) push(s frame.Sample) {
	select {
	case b.frames <- s:
	default:
	}
}

func (b *baseAdapter) requireState(want State) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != want {
		return fmt.Errorf("device %s: expected state %s, have %s", b.descriptor.ID, want, b.state)
	}
	return nil
}
