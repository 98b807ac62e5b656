// Package devicemgr implements the Device Manager of SPEC_FULL.md §4.H: a
// global registry routing Sample Frames from each connected Adapter and
// answering the device-oriented control operations of spec.md §6. It is
// modeled on a RWMutex-guarded-map registry (RWMutex-guarded maps,
// Config-validated mutation, subscriber fan-out) generalized from a single
// tracking session to an arbitrary set of managed devices.
package devicemgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/identity-wael/neurascale-sub000/internal/config"
	"github.com/identity-wael/neurascale-sub000/internal/device"
	"github.com/identity-wael/neurascale-sub000/internal/discovery"
	"github.com/identity-wael/neurascale-sub000/internal/frame"
	"github.com/identity-wael/neurascale-sub000/internal/logging"
)

var (
	ErrDeviceNotFound = errors.New("devicemgr: device not found")
	ErrNotConnected   = errors.New("devicemgr: device not connected")
	ErrNotStreaming   = errors.New("devicemgr: device not streaming")
)

type entry struct {
	adapter device.Adapter
	cancel  context.CancelFunc
}

// Manager owns the device routing table: device_id → Adapter, guarded by a
// global lock per spec.md §5 ("Device Manager tables ... guarded by a
// global lock; reads take shared access").
type Manager struct {
	mu      sync.RWMutex
	devices map[string]*entry
	logger  logging.Logger

	onFrame func(deviceID string, s frame.Sample)
}

// New creates an empty device manager. onFrame, if non-nil, is invoked for
// every frame routed from any managed device (typically wiring into the
// Stream Processor's append_chunk path).
func New(logger logging.Logger, onFrame func(deviceID string, s frame.Sample)) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		devices: make(map[string]*entry),
		logger:  logger.With(logging.Field{Key: "subsystem", Value: "devicemgr"}),
		onFrame: onFrame,
	}
}

// Register adds an adapter under its descriptor ID and starts routing its
// frame channel. It does not connect the adapter.
func (m *Manager) Register(a device.Adapter) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{adapter: a, cancel: cancel}

	m.mu.Lock()
	m.devices[a.Descriptor().ID] = e
	m.mu.Unlock()

	go m.route(ctx, a)
}

func (m *Manager) route(ctx context.Context, a device.Adapter) {
	id := a.Descriptor().ID
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-a.Frames():
			if !ok {
				return
			}
			if m.onFrame != nil {
				m.onFrame(id, s)
			}
		}
	}
}

// Unregister stops routing and removes a device from the table, closing it
// first if still connected.
func (m *Manager) Unregister(deviceID string) error {
	m.mu.Lock()
	e, ok := m.devices[deviceID]
	if ok {
		delete(m.devices, deviceID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	e.cancel()
	return e.adapter.Close()
}

func (m *Manager) lookup(deviceID string) (device.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return e.adapter, nil
}

// ListDevices returns descriptors for every managed device, optionally
// filtered by state and kind.
func (m *Manager) ListDevices(stateFilter device.State, kindFilter device.Kind) []device.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]device.Descriptor, 0, len(m.devices))
	for _, e := range m.devices {
		d := e.adapter.Descriptor()
		if stateFilter != "" && d.State != stateFilter {
			continue
		}
		if kindFilter != "" && d.Kind != kindFilter {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DiscoverDevices performs an mDNS sweep and merges newly-found hosts into
// descriptors without registering them as managed adapters; callers decide
// whether to ConnectDevice on a discovered ID.
func (m *Manager) DiscoverDevices(ctx context.Context, timeout time.Duration, methods []string) ([]device.Descriptor, error) {
	found, err := discovery.Discover(ctx, timeout, methods)
	if err != nil {
		return nil, err
	}
	out := make([]device.Descriptor, 0, len(found))
	for _, f := range found {
		out = append(out, device.Descriptor{
			ID:    f.Hostname,
			Kind:  f.Kind,
			Name:  f.Instance,
			State: device.StateDisconnected,
		})
	}
	return out, nil
}

// ConnectDevice connects a managed device, bounded by connectionTimeout per
// spec.md §5.
func (m *Manager) ConnectDevice(ctx context.Context, deviceID string, connectionTimeout time.Duration) error {
	a, err := m.lookup(deviceID)
	if err != nil {
		return err
	}
	if connectionTimeout <= 0 {
		connectionTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	return a.Connect(ctx)
}

// DisconnectDevice stops streaming and closes a device but keeps it
// registered in the routing table.
func (m *Manager) DisconnectDevice(deviceID string) error {
	a, err := m.lookup(deviceID)
	if err != nil {
		return err
	}
	return a.Close()
}

// ConfigureDevice applies a ConfigMap to a managed device.
func (m *Manager) ConfigureDevice(deviceID string, params config.Map) error {
	a, err := m.lookup(deviceID)
	if err != nil {
		return err
	}
	return a.Configure(params)
}

// StartStreaming starts a managed device's stream.
func (m *Manager) StartStreaming(ctx context.Context, deviceID string) error {
	a, err := m.lookup(deviceID)
	if err != nil {
		return err
	}
	return a.StartStreaming(ctx)
}

// StopStreaming stops a managed device's stream.
func (m *Manager) StopStreaming(deviceID string) error {
	a, err := m.lookup(deviceID)
	if err != nil {
		return err
	}
	return a.StopStreaming()
}

// ReadImpedance proxies to the managed device.
func (m *Manager) ReadImpedance(ctx context.Context, deviceID string) (map[string]float64, error) {
	a, err := m.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	return a.ReadImpedance(ctx)
}

// SelfTest proxies to the managed device.
func (m *Manager) SelfTest(ctx context.Context, deviceID string) (device.SelfTestReport, error) {
	a, err := m.lookup(deviceID)
	if err != nil {
		return device.SelfTestReport{}, err
	}
	return a.SelfTest(ctx)
}

// HealthPoll runs a periodic self-test across every streaming device until
// ctx is cancelled, supplementing spec.md with the health-check loop found
// in original_source/neural-engine's devices/health_monitor.py. Failing
// devices are logged; callers may subscribe via onUnhealthy for alerting.
func (m *Manager) HealthPoll(ctx context.Context, interval time.Duration, onUnhealthy func(deviceID string, report device.SelfTestReport)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			snapshot := make(map[string]device.Adapter, len(m.devices))
			for id, e := range m.devices {
				if e.adapter.State() == device.StateStreaming {
					snapshot[id] = e.adapter
				}
			}
			m.mu.RUnlock()

			for id, a := range snapshot {
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				report, err := a.SelfTest(checkCtx)
				cancel()
				if err != nil || !report.Passed() {
					logging.WithDevice(m.logger, id).Warn("device health check failed")
					if onUnhealthy != nil {
						onUnhealthy(id, report)
					}
				}
			}
		}
	}
}
