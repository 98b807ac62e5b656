// Package config implements the ConfigMap validation and defaulting for the
// three updatable namespaces of the control surface: processor, stream, and
// quality (spec.md §6), generalized from a single
// telemetry.Config/validateConfig pattern into one function pair per
// namespace.
package config

import (
	"fmt"
	"sort"
)

// Map is a loosely-typed bag of configuration keys, as received over the
// control surface's update_config / configure_device operations.
type Map map[string]any

func (m Map) has(key string) bool {
	_, ok := m[key]
	return ok
}

func (m Map) float(key string, def float64) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return def, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return def, false
}

func (m Map) int(key string, def int) (int, bool) {
	f, ok := m.float(key, float64(def))
	return int(f), ok
}

func (m Map) boolean(key string, def bool) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return def, false
	}
	b, ok := v.(bool)
	if !ok {
		return def, false
	}
	return b, true
}

func (m Map) stringSlice(key string) ([]string, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	}
	return nil, false
}

// ElectrodePosition is a channel's 2-D projected scalp position in
// centimeters, supplied via update_config("processor", {"electrode_positions": ...})
// when the montage is known. Spatial filtering and channel repair use these
// positions for distance-weighted neighbour selection instead of falling
// back to channel-index adjacency.
type ElectrodePosition struct {
	Channel int
	X, Y    float64
}

// Processor holds the preprocessing/feature-extraction configuration
// surface (spec.md §6 "processor").
type Processor struct {
	SamplingRate        float64
	NumChannels          int
	PreprocessingSteps   []string
	FeatureTypes         []string
	QualityThreshold     float64
	NotchFrequencies     []float64
	BandpassLow          float64
	BandpassHigh         float64
	FilterOrder          int
	ArtifactMethods      []string
	ICAComponents        int
	EOGChannels          []int
	SpatialFilterType    string
	LaplacianRadiusCm    float64
	Electrodes           []ElectrodePosition
}

// DefaultProcessor returns the documented default processor configuration.
func DefaultProcessor() Processor {
	return Processor{
		SamplingRate:       250,
		NumChannels:        8,
		PreprocessingSteps: []string{"notch", "bandpass", "artifact_removal", "channel_repair", "spatial_filter"},
		FeatureTypes:       []string{"time_domain", "frequency_domain", "time_frequency", "spatial", "connectivity"},
		QualityThreshold:   0.6,
		NotchFrequencies:   []float64{50, 100},
		BandpassLow:        0.5,
		BandpassHigh:       100,
		FilterOrder:        4,
		ArtifactMethods:    []string{"ica", "regression"},
		ICAComponents:      20,
		SpatialFilterType:  "car",
		LaplacianRadiusCm:  3,
	}
}

// ApplyProcessor validates params against base and returns the merged
// config plus every key supplied in params, whether or not its value
// differs from base.
func ApplyProcessor(base Processor, params Map) (Processor, []string, error) {
	out := base
	var updated []string

	if v, ok := params.float("sampling_rate", 0); ok {
		if v <= 0 {
			return Processor{}, nil, fmt.Errorf("sampling_rate must be positive")
		}
		out.SamplingRate = v
		updated = append(updated, "sampling_rate")
	}
	if v, ok := params.int("num_channels", 0); ok {
		if v <= 0 {
			return Processor{}, nil, fmt.Errorf("num_channels must be positive")
		}
		out.NumChannels = v
		updated = append(updated, "num_channels")
	}
	if v, ok := params.stringSlice("preprocessing_steps"); ok {
		for _, step := range v {
			if !isValidStage(step) {
				return Processor{}, nil, fmt.Errorf("unknown preprocessing step %q", step)
			}
		}
		out.PreprocessingSteps = v
		updated = append(updated, "preprocessing_steps")
	}
	if v, ok := params.stringSlice("feature_types"); ok {
		out.FeatureTypes = v
		updated = append(updated, "feature_types")
	}
	if v, ok := params.float("quality_threshold", 0); ok {
		if v < 0 || v > 1 {
			return Processor{}, nil, fmt.Errorf("quality_threshold must be in [0,1]")
		}
		out.QualityThreshold = v
		updated = append(updated, "quality_threshold")
	}
	if raw, present := params["notch_frequencies"]; present {
		freqs, err := toFloatSlice(raw)
		if err != nil {
			return Processor{}, nil, err
		}
		out.NotchFrequencies = freqs
		updated = append(updated, "notch_frequencies")
	}
	loSet, hiSet := false, false
	if v, ok := params.float("bandpass_low", 0); ok {
		out.BandpassLow = v
		loSet = true
	}
	if v, ok := params.float("bandpass_high", 0); ok {
		out.BandpassHigh = v
		hiSet = true
	}
	if loSet || hiSet {
		if out.BandpassLow <= 0 {
			return Processor{}, nil, fmt.Errorf("bandpass_low must be > 0")
		}
		if out.BandpassHigh >= out.SamplingRate/2 {
			return Processor{}, nil, fmt.Errorf("bandpass_high must be < nyquist (%.2f)", out.SamplingRate/2)
		}
		if loSet {
			updated = append(updated, "bandpass_low")
		}
		if hiSet {
			updated = append(updated, "bandpass_high")
		}
	}
	if v, ok := params.int("filter_order", 0); ok {
		if v < 1 {
			return Processor{}, nil, fmt.Errorf("filter_order must be >= 1")
		}
		out.FilterOrder = v
		updated = append(updated, "filter_order")
	}
	if v, ok := params.stringSlice("artifact_methods"); ok {
		for _, m := range v {
			if m != "ica" && m != "regression" {
				return Processor{}, nil, fmt.Errorf("unknown artifact method %q", m)
			}
		}
		out.ArtifactMethods = v
		updated = append(updated, "artifact_methods")
	}
	if v, ok := params.int("ica_components", 0); ok {
		if v < 1 {
			return Processor{}, nil, fmt.Errorf("ica_components must be >= 1")
		}
		out.ICAComponents = v
		updated = append(updated, "ica_components")
	}
	if raw, present := params["eog_channels"]; present {
		idx, err := toIntSlice(raw)
		if err != nil {
			return Processor{}, nil, err
		}
		out.EOGChannels = idx
		updated = append(updated, "eog_channels")
	}
	if v, ok := params["spatial_filter_type"]; ok {
		s, _ := v.(string)
		if s != "car" && s != "laplacian" {
			return Processor{}, nil, fmt.Errorf("unknown spatial_filter_type %q", s)
		}
		out.SpatialFilterType = s
		updated = append(updated, "spatial_filter_type")
	}
	if v, ok := params.float("laplacian_radius", 0); ok {
		if v <= 0 {
			return Processor{}, nil, fmt.Errorf("laplacian_radius must be > 0")
		}
		out.LaplacianRadiusCm = v
		updated = append(updated, "laplacian_radius")
	}
	if raw, present := params["electrode_positions"]; present {
		electrodes, err := toElectrodePositions(raw)
		if err != nil {
			return Processor{}, nil, err
		}
		out.Electrodes = electrodes
		updated = append(updated, "electrode_positions")
	}

	sort.Strings(updated)
	return out, updated, nil
}

func isValidStage(s string) bool {
	switch s {
	case "notch", "bandpass", "artifact_removal", "channel_repair", "spatial_filter":
		return true
	}
	return false
}

func toFloatSlice(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []any:
		out := make([]float64, 0, len(v))
		for _, e := range v {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("expected numeric array")
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected numeric array")
}

// toElectrodePositions parses a JSON-decoded array of
// {"channel": int, "x": float, "y": float} entries into ElectrodePositions.
func toElectrodePositions(raw any) ([]ElectrodePosition, error) {
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array of electrode positions")
	}
	out := make([]ElectrodePosition, 0, len(entries))
	for _, e := range entries {
		fields, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected electrode position object")
		}
		chRaw, ok := fields["channel"]
		if !ok {
			return nil, fmt.Errorf("electrode position missing channel")
		}
		ch, ok := Map(fields).int("channel", 0)
		if !ok {
			return nil, fmt.Errorf("electrode channel must be numeric, got %T", chRaw)
		}
		x, ok := Map(fields).float("x", 0)
		if !ok {
			return nil, fmt.Errorf("electrode x must be numeric")
		}
		y, ok := Map(fields).float("y", 0)
		if !ok {
			return nil, fmt.Errorf("electrode y must be numeric")
		}
		out = append(out, ElectrodePosition{Channel: ch, X: x, Y: y})
	}
	return out, nil
}

func toIntSlice(raw any) ([]int, error) {
	fs, err := toFloatSlice(raw)
	if err != nil {
		if v, ok := raw.([]int); ok {
			return v, nil
		}
		return nil, err
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		out[i] = int(f)
	}
	return out, nil
}

// Stream holds the Stream Processor configuration surface (spec.md §6
// "stream").
type Stream struct {
	BufferSizeSeconds   float64
	WindowSizeSeconds   float64
	WindowOverlap       float64
	ProcessIntervalMs   int
	MinSamplesToProcess int
	DropOnOverflow      bool
}

// DefaultStream returns the documented default stream configuration.
func DefaultStream() Stream {
	return Stream{
		BufferSizeSeconds:   10,
		WindowSizeSeconds:   2,
		WindowOverlap:       0.5,
		ProcessIntervalMs:   100,
		MinSamplesToProcess: 256,
		DropOnOverflow:      true,
	}
}

// ApplyStream validates params against base and returns the merged config
// plus every key supplied in params, whether or not its value differs
// from base.
func ApplyStream(base Stream, params Map) (Stream, []string, error) {
	out := base
	var updated []string

	if v, ok := params.float("buffer_size_seconds", 0); ok {
		if v <= 0 {
			return Stream{}, nil, fmt.Errorf("buffer_size_seconds must be > 0")
		}
		out.BufferSizeSeconds = v
		updated = append(updated, "buffer_size_seconds")
	}
	if v, ok := params.float("window_size_seconds", 0); ok {
		if v <= 0 {
			return Stream{}, nil, fmt.Errorf("window_size_seconds must be > 0")
		}
		out.WindowSizeSeconds = v
		updated = append(updated, "window_size_seconds")
	}
	if v, ok := params.float("window_overlap", -1); ok {
		if v < 0 || v >= 1 {
			return Stream{}, nil, fmt.Errorf("window_overlap must be in [0,1)")
		}
		out.WindowOverlap = v
		updated = append(updated, "window_overlap")
	}
	if v, ok := params.int("process_interval_ms", 0); ok {
		if v <= 0 {
			return Stream{}, nil, fmt.Errorf("process_interval_ms must be > 0")
		}
		out.ProcessIntervalMs = v
		updated = append(updated, "process_interval_ms")
	}
	if v, ok := params.int("min_samples_to_process", 0); ok {
		if v < 0 {
			return Stream{}, nil, fmt.Errorf("min_samples_to_process must be >= 0")
		}
		out.MinSamplesToProcess = v
		updated = append(updated, "min_samples_to_process")
	}
	if v, ok := params.boolean("drop_on_overflow", out.DropOnOverflow); ok {
		out.DropOnOverflow = v
		updated = append(updated, "drop_on_overflow")
	}

	sort.Strings(updated)
	return out, updated, nil
}

// Quality holds the Quality Monitor's configurable thresholds (spec.md
// §4.G / §6 "quality").
type Quality struct {
	CompositeWarn, CompositeCritical float64
	SNRWarn, SNRCritical             float64
	NoiseWarn, NoiseCritical         float64
	ArtifactWarn, ArtifactCritical   float64
	BadChannelWarn, BadChannelCrit   int
}

// DefaultQuality returns the thresholds table from spec.md §4.G.
func DefaultQuality() Quality {
	return Quality{
		CompositeWarn: 0.6, CompositeCritical: 0.4,
		SNRWarn: 5, SNRCritical: 3,
		NoiseWarn: 50, NoiseCritical: 100,
		ArtifactWarn: 10, ArtifactCritical: 20,
		BadChannelWarn: 2, BadChannelCrit: 4,
	}
}

// ApplyQuality validates params against base and returns the merged config
// plus every key supplied in params, whether or not its value differs
// from base.
func ApplyQuality(base Quality, params Map) (Quality, []string, error) {
	out := base
	var updated []string

	fields := []struct {
		key string
		dst *float64
	}{
		{"composite_warning", &out.CompositeWarn},
		{"composite_critical", &out.CompositeCritical},
		{"snr_warning", &out.SNRWarn},
		{"snr_critical", &out.SNRCritical},
		{"noise_warning", &out.NoiseWarn},
		{"noise_critical", &out.NoiseCritical},
		{"artifact_warning", &out.ArtifactWarn},
		{"artifact_critical", &out.ArtifactCritical},
	}
	for _, f := range fields {
		if v, ok := params.float(f.key, 0); ok {
			*f.dst = v
			updated = append(updated, f.key)
		}
	}
	if v, ok := params.int("bad_channel_warning", 0); ok {
		out.BadChannelWarn = v
		updated = append(updated, "bad_channel_warning")
	}
	if v, ok := params.int("bad_channel_critical", 0); ok {
		out.BadChannelCrit = v
		updated = append(updated, "bad_channel_critical")
	}

	sort.Strings(updated)
	return out, updated, nil
}
