// Package features implements the Feature Extractor of spec.md §4.D: five
// selectable, independently-parallelizable groups (time, frequency,
// time-frequency, spatial, connectivity) gated by a window's quality_score
// and channel count. Groups are built on internal/dsp
// (Welch PSD, FFT, windowing) plus gonum/stat and gonum/mat for the
// statistics and eigen/covariance work an RF-only package would never
// needed.
package features

import (
	"sync"

	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

// Group names are stable identifiers per spec.md §4.D.
type Group string

const (
	GroupTime           Group = "time"
	GroupFrequency      Group = "frequency"
	GroupTimeFrequency  Group = "time_frequency"
	GroupSpatial        Group = "spatial"
	GroupConnectivity   Group = "connectivity"
)

// Bundle is the dense float32 feature output of one extraction pass,
// keyed first by group then by stable feature name, then optionally by
// channel index for per-channel features.
type Bundle struct {
	PerChannel map[Group]map[string][]float32 // [group][feature][channel]
	Global     map[Group]map[string]float32    // [group][feature]
	Errors     map[Group]string
}

func newBundle() *Bundle {
	return &Bundle{
		PerChannel: make(map[Group]map[string][]float32),
		Global:     make(map[Group]map[string]float32),
		Errors:     make(map[Group]string),
	}
}

// Extractor runs the configured feature groups over a preprocessed window.
type Extractor struct {
	Groups           map[Group]bool
	QualityScore     float64
	spectral         *dsp.CachedSpectral
	connectFreqs     []float64
	cwtFrequencies   []float64
}

// NewExtractor builds an Extractor with every group enabled by default.
func NewExtractor() *Extractor {
	return &Extractor{
		Groups: map[Group]bool{
			GroupTime: true, GroupFrequency: true, GroupTimeFrequency: true,
			GroupSpatial: true, GroupConnectivity: true,
		},
		cwtFrequencies: []float64{10, 20, 30},
	}
}

// Extract runs every enabled, quality-gated group concurrently over block
// (channels×samples) at sampling rate fs, per spec.md §4.D's "groups run
// concurrently; exceptions in one group do not abort others".
func (e *Extractor) Extract(block [][]float64, fs, qualityScore float64) *Bundle {
	bundle := newBundle()
	nCh := len(block)

	type job struct {
		group Group
		run   func() (map[string][]float32, map[string]float32)
	}
	var jobs []job

	if e.Groups[GroupTime] {
		jobs = append(jobs, job{GroupTime, func() (map[string][]float32, map[string]float32) {
			return timeDomainFeatures(block, fs, qualityScore), nil
		}})
	}
	if e.Groups[GroupFrequency] {
		jobs = append(jobs, job{GroupFrequency, func() (map[string][]float32, map[string]float32) {
			return frequencyDomainFeatures(block, fs, qualityScore), nil
		}})
	}
	if e.Groups[GroupTimeFrequency] {
		jobs = append(jobs, job{GroupTimeFrequency, func() (map[string][]float32, map[string]float32) {
			return timeFrequencyFeatures(block, fs, qualityScore, e.cwtFrequencies), nil
		}})
	}
	if e.Groups[GroupSpatial] && nCh >= 4 && qualityScore > 0.6 {
		jobs = append(jobs, job{GroupSpatial, func() (map[string][]float32, map[string]float32) {
			perCh, global := spatialFeatures(block)
			return perCh, global
		}})
	}
	if e.Groups[GroupConnectivity] && nCh >= 8 && qualityScore > 0.8 {
		jobs = append(jobs, job{GroupConnectivity, func() (map[string][]float32, map[string]float32) {
			perCh, global := connectivityFeatures(block, fs)
			return perCh, global
		}})
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					bundle.Errors[j.group] = "panic during extraction"
					mu.Unlock()
				}
			}()
			perCh, global := j.run()
			mu.Lock()
			if perCh != nil {
				bundle.PerChannel[j.group] = perCh
			}
			if global != nil {
				bundle.Global[j.group] = global
			}
			mu.Unlock()
		}(j)
	}
	wg.Wait()
	return bundle
}
