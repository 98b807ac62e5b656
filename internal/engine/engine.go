// Package engine implements the control surface of spec.md §6: the single
// entry point that resolves operation names (list_devices, connect_device,
// start_stream_session, process_batch, update_config, ...) against a
// device registry, per-session stream processors, and quality monitors. It
// follows a RWMutex-guarded map of state plus Config-validated mutation,
// generalized from a single config namespace to a session-keyed map of
// stream processors, with the discriminated error taxonomy spec.md §5
// demands in place of a single undifferentiated error path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/identity-wael/neurascale-sub000/internal/config"
	"github.com/identity-wael/neurascale-sub000/internal/device"
	"github.com/identity-wael/neurascale-sub000/internal/devicemgr"
	"github.com/identity-wael/neurascale-sub000/internal/features"
	"github.com/identity-wael/neurascale-sub000/internal/frame"
	"github.com/identity-wael/neurascale-sub000/internal/logging"
	"github.com/identity-wael/neurascale-sub000/internal/monitor"
	"github.com/identity-wael/neurascale-sub000/internal/preprocessing"
	"github.com/identity-wael/neurascale-sub000/internal/quality"
	"github.com/identity-wael/neurascale-sub000/internal/stream"
)

// Kind discriminates control-surface failures per spec.md §5, so callers
// can branch on errors.Is rather than string-matching messages.
type Kind string

const (
	BadParameter     Kind = "bad_parameter"
	DeviceNotFound   Kind = "device_not_found"
	ConnectionFailed Kind = "connection_failed"
	RequiresReconnect Kind = "requires_reconnect"
	NotConnected     Kind = "not_connected"
	NotStreaming     Kind = "not_streaming"
	UnknownSession   Kind = "unknown_session"
	UnknownComponent Kind = "unknown_component"
	BadShape         Kind = "bad_shape"
	ProcessingFailed Kind = "processing_failed"
	DiscoveryFailed  Kind = "discovery_failed"
	Unsupported      Kind = "unsupported"
)

// Error wraps an engine failure with its discriminant Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// classifyDeviceErr maps the device/devicemgr sentinel error set onto the
// engine's Kind taxonomy.
func classifyDeviceErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, devicemgr.ErrDeviceNotFound):
		return wrap(DeviceNotFound, err)
	case errors.Is(err, device.ErrRequiresReconnect):
		return wrap(RequiresReconnect, err)
	case errors.Is(err, device.ErrNotConnected):
		return wrap(NotConnected, err)
	case errors.Is(err, device.ErrNotStreaming):
		return wrap(NotStreaming, err)
	case errors.Is(err, device.ErrBadParameter):
		return wrap(BadParameter, err)
	case errors.Is(err, device.ErrUnsupported):
		return wrap(Unsupported, err)
	default:
		return wrap(ConnectionFailed, err)
	}
}

// session bundles the per-session Stream Processor with the Quality
// Monitor observing its output, and the goroutine draining processed
// windows into the monitor.
type session struct {
	proc    *stream.Processor
	mon     *monitor.Monitor
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	channels int
	fs      float64
}

// Engine resolves every spec.md §6 operation. It owns the device registry
// and a session-keyed map of Stream Processors, both guarded by their own
// locks, the same shape devicemgr.Manager uses.
type Engine struct {
	logger logging.Logger

	devices *devicemgr.Manager

	procCfg    config.Processor
	streamCfg  config.Stream
	qualityCfg config.Quality

	mu       sync.RWMutex
	sessions map[string]*session
}

// New builds an Engine with the documented default configuration. Frames
// routed from any registered device are appended to that device's session
// buffer if one exists under the same ID.
func New(logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		logger:     logger.With(logging.Field{Key: "subsystem", Value: "engine"}),
		procCfg:    config.DefaultProcessor(),
		streamCfg:  config.DefaultStream(),
		qualityCfg: config.DefaultQuality(),
		sessions:   make(map[string]*session),
	}
	e.devices = devicemgr.New(logger, e.onFrame)
	return e
}

// RegisterDevice adds an adapter to the managed registry without
// connecting it, per spec.md §4.H.
func (e *Engine) RegisterDevice(a device.Adapter) {
	e.devices.Register(a)
}

func (e *Engine) onFrame(deviceID string, s frame.Sample) {
	e.mu.RLock()
	sess, ok := e.sessions[deviceID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	block := make([][]float32, len(s.Channels))
	for i, v := range s.Channels {
		block[i] = []float32{v}
	}
	if err := sess.proc.AppendChunk(block, s.TimestampSeconds); err != nil {
		logging.WithSession(e.logger, deviceID).Warn("dropped frame on session append", logging.Field{Key: "error", Value: err.Error()})
	}
}

// ListDevices implements list_devices.
func (e *Engine) ListDevices(stateFilter device.State, kindFilter device.Kind) []device.Descriptor {
	return e.devices.ListDevices(stateFilter, kindFilter)
}

// DiscoverDevices implements discover_devices.
func (e *Engine) DiscoverDevices(ctx context.Context, timeout time.Duration, methods []string) ([]device.Descriptor, error) {
	out, err := e.devices.DiscoverDevices(ctx, timeout, methods)
	if err != nil {
		return nil, wrap(DiscoveryFailed, err)
	}
	return out, nil
}

// ConnectDevice implements connect_device.
func (e *Engine) ConnectDevice(ctx context.Context, deviceID string, connectionTimeout time.Duration) error {
	return classifyDeviceErr(e.devices.ConnectDevice(ctx, deviceID, connectionTimeout))
}

// DisconnectDevice implements disconnect_device. Any live session for the
// device is stopped first, so streaming state never outlives the device
// connection.
func (e *Engine) DisconnectDevice(deviceID string) error {
	_, _ = e.StopStreamSession(deviceID)
	return classifyDeviceErr(e.devices.DisconnectDevice(deviceID))
}

// ConfigureDevice implements configure_device.
func (e *Engine) ConfigureDevice(deviceID string, params config.Map) error {
	return classifyDeviceErr(e.devices.ConfigureDevice(deviceID, params))
}

// StartStreaming implements start_streaming (device-level acquisition,
// distinct from the session-level start_stream_session).
func (e *Engine) StartStreaming(ctx context.Context, deviceID string) error {
	return classifyDeviceErr(e.devices.StartStreaming(ctx, deviceID))
}

// StopStreaming implements stop_streaming.
func (e *Engine) StopStreaming(deviceID string) error {
	return classifyDeviceErr(e.devices.StopStreaming(deviceID))
}

// ReadImpedance implements read_impedance.
func (e *Engine) ReadImpedance(ctx context.Context, deviceID string) (map[string]float64, error) {
	out, err := e.devices.ReadImpedance(ctx, deviceID)
	return out, classifyDeviceErr(err)
}

// SelfTest implements self_test.
func (e *Engine) SelfTest(ctx context.Context, deviceID string) (device.SelfTestReport, error) {
	out, err := e.devices.SelfTest(ctx, deviceID)
	return out, classifyDeviceErr(err)
}

// StartStreamSession implements start_stream_session: it creates a Stream
// Processor and Quality Monitor for sessionID (by convention the device
// ID, though any caller-chosen key works for process_batch-only use), and
// starts its driver goroutine plus a consumer goroutine feeding the
// monitor from the processor's output channel.
func (e *Engine) StartStreamSession(ctx context.Context, sessionID string, channels int, fs float64, cfg stream.Config) error {
	if channels <= 0 {
		return wrap(BadParameter, fmt.Errorf("channels must be positive, got %d", channels))
	}
	if fs <= 0 {
		return wrap(BadParameter, fmt.Errorf("sampling_rate must be positive, got %f", fs))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sessions[sessionID]; exists {
		return nil
	}

	pcfg := e.procCfg
	pcfg.NumChannels = channels
	pcfg.SamplingRate = fs

	pipeline := preprocessing.New(pcfg)
	extractor := features.NewExtractor()
	assessor := quality.NewAssessor(quality.DefaultConfig())
	mon := monitor.New(thresholdsFromConfig(e.qualityCfg))

	proc := stream.New(channels, fs, cfg, pipeline, extractor, assessor, e.logger)

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{proc: proc, mon: mon, cancel: cancel, channels: channels, fs: fs}
	e.sessions[sessionID] = sess

	proc.Start(sessCtx)
	sess.wg.Add(1)
	go e.drainSession(sessCtx, sess)

	return nil
}

func (e *Engine) drainSession(ctx context.Context, sess *session) {
	defer sess.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pw, ok := <-sess.proc.Output():
			if !ok {
				return
			}
			sess.mon.Observe(pw.Quality, pw.EmittedAt)
		}
	}
}

// ProcessBatch implements process_batch: appends one chunk to a session's
// buffer. The chunk must carry the session's configured channel count.
func (e *Engine) ProcessBatch(sessionID string, block [][]float32, startTimestamp float64) error {
	sess, err := e.lookupSession(sessionID)
	if err != nil {
		return err
	}
	if len(block) != sess.channels {
		return wrap(BadShape, fmt.Errorf("session %s expects %d channels, got %d", sessionID, sess.channels, len(block)))
	}
	if err := sess.proc.AppendChunk(block, startTimestamp); err != nil {
		return wrap(ProcessingFailed, err)
	}
	return nil
}

// StopStreamSession implements stop_stream_session: halts the driver,
// drains the final short window, and tears the session down, returning
// its final cumulative metrics. Stopping a session that never existed is
// a no-op, not an error, so DisconnectDevice can call this unconditionally.
func (e *Engine) StopStreamSession(sessionID string) (stream.StreamMetrics, error) {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return stream.StreamMetrics{}, nil
	}

	metrics := sess.proc.Stop()
	sess.cancel()
	sess.wg.Wait()
	return metrics, nil
}

// GetStreamStatus implements get_stream_status.
func (e *Engine) GetStreamStatus(sessionID string) (stream.StreamMetrics, error) {
	sess, err := e.lookupSession(sessionID)
	if err != nil {
		return stream.StreamMetrics{}, err
	}
	return sess.proc.Status(), nil
}

// CheckQuality implements check_quality: the session's Quality Monitor
// snapshot (active alerts, rolling history, trend stats, stability flag).
type QualitySnapshot struct {
	ActiveAlerts []monitor.Alert
	History      []quality.Metrics
	Stable       bool
	CompositeTrend monitor.TrendStats
	SNRTrend       monitor.TrendStats
	NoiseTrend     monitor.TrendStats
	ArtifactTrend  monitor.TrendStats
}

func (e *Engine) CheckQuality(sessionID string) (QualitySnapshot, error) {
	sess, err := e.lookupSession(sessionID)
	if err != nil {
		return QualitySnapshot{}, err
	}
	return QualitySnapshot{
		ActiveAlerts:   sess.mon.ActiveAlerts(),
		History:        sess.mon.History(),
		Stable:         sess.mon.Stable(),
		CompositeTrend: sess.mon.TrendStats("overall"),
		SNRTrend:       sess.mon.TrendStats("snr"),
		NoiseTrend:     sess.mon.TrendStats("noise"),
		ArtifactTrend:  sess.mon.TrendStats("artifact_rate"),
	}, nil
}

// UpdateConfig implements update_config: component is one of "processor",
// "stream", or "quality" per spec.md §6. Updates apply to future sessions;
// sessions already running keep the configuration they started with,
// since a Stream Processor's window/buffer geometry cannot change under a
// live buffer.
func (e *Engine) UpdateConfig(component string, params config.Map) ([]string, error) {
	switch component {
	case "processor":
		out, updated, err := config.ApplyProcessor(e.procCfg, params)
		if err != nil {
			return nil, wrap(BadParameter, err)
		}
		e.mu.Lock()
		e.procCfg = out
		e.mu.Unlock()
		return updated, nil
	case "stream":
		out, updated, err := config.ApplyStream(e.streamCfg, params)
		if err != nil {
			return nil, wrap(BadParameter, err)
		}
		e.mu.Lock()
		e.streamCfg = out
		e.mu.Unlock()
		return updated, nil
	case "quality":
		out, updated, err := config.ApplyQuality(e.qualityCfg, params)
		if err != nil {
			return nil, wrap(BadParameter, err)
		}
		e.mu.Lock()
		e.qualityCfg = out
		e.mu.Unlock()
		return updated, nil
	default:
		return nil, wrap(UnknownComponent, fmt.Errorf("unknown config component %q", component))
	}
}

// HealthPoll runs the device registry's periodic self-test sweep until ctx
// is cancelled, per spec.md's supplemented device health-check loop.
func (e *Engine) HealthPoll(ctx context.Context, interval time.Duration, onUnhealthy func(deviceID string, report device.SelfTestReport)) {
	e.devices.HealthPoll(ctx, interval, onUnhealthy)
}

// thresholdsFromConfig translates the control surface's update_config
// "quality" namespace onto the Quality Monitor's Thresholds, so a prior
// update_config call is honored by every session started after it.
func thresholdsFromConfig(q config.Quality) monitor.Thresholds {
	return monitor.Thresholds{
		CompositeScoreWarn: q.CompositeWarn, CompositeScoreCrit: q.CompositeCritical,
		SNRWarnDB: q.SNRWarn, SNRCritDB: q.SNRCritical,
		NoiseRMSWarn: q.NoiseWarn, NoiseRMSCrit: q.NoiseCritical,
		ArtifactPctWarn: q.ArtifactWarn, ArtifactPctCrit: q.ArtifactCritical,
		BadChannelCountWarn: q.BadChannelWarn, BadChannelCountCrit: q.BadChannelCrit,
	}
}

func (e *Engine) lookupSession(sessionID string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		return nil, wrap(UnknownSession, fmt.Errorf("unknown session %q", sessionID))
	}
	return sess, nil
}

// StreamDefaults returns the engine's current default Stream Processor
// config, for callers of StartStreamSession that want spec.md §6 defaults
// rather than bespoke tunables.
func (e *Engine) StreamDefaults() stream.Config {
	e.mu.RLock()
	cfg := e.streamCfg
	e.mu.RUnlock()
	return stream.Config{
		BufferSeconds:       cfg.BufferSizeSeconds,
		WindowSeconds:       cfg.WindowSizeSeconds,
		Overlap:             cfg.WindowOverlap,
		ProcessTick:         time.Duration(cfg.ProcessIntervalMs) * time.Millisecond,
		MinSamplesToProcess: cfg.MinSamplesToProcess,
		QueueBound:          5,
		DropOnOverflow:      cfg.DropOnOverflow,
	}
}
