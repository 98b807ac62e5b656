// Command neurasignal drives a local smoke-test session against the
// engine's control surface: register a synthetic device, connect it,
// start a stream session, run it for a fixed duration, and print the
// final quality/stream summary. It follows the testable
// run(args, out, getenv) shape so the wiring can be exercised without a
// live acquisition device.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/identity-wael/neurascale-sub000/internal/device"
	"github.com/identity-wael/neurascale-sub000/internal/engine"
	"github.com/identity-wael/neurascale-sub000/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("neurasignal", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	defaultChannels := envInt(getenv("NEURASIGNAL_CHANNELS"), 8)
	defaultRate := envFloat(getenv("NEURASIGNAL_SAMPLING_RATE"), 250)
	defaultDuration := envDuration(getenv("NEURASIGNAL_DURATION"), 3*time.Second)

	channels := fs.Int("channels", defaultChannels, "synthetic device channel count")
	samplingRate := fs.Float64("sampling-rate", defaultRate, "synthetic device sampling rate in Hz")
	duration := fs.Duration("duration", defaultDuration, "how long to stream before stopping")
	signal := fs.String("signal", "alpha", "synthetic signal: sine|alpha|beta|theta|delta|erp_p300|ssvep|realistic_eeg")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := logging.Default()
	eng := engine.New(logger)

	const deviceID = "synthetic-0"
	synth := device.NewSynthetic(deviceID, *channels, *samplingRate)
	if err := synth.Configure(map[string]any{"signal": *signal}); err != nil {
		return fmt.Errorf("configure synthetic device: %w", err)
	}
	eng.RegisterDevice(synth)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+5*time.Second)
	defer cancel()

	if err := eng.ConnectDevice(ctx, deviceID, 5*time.Second); err != nil {
		return fmt.Errorf("connect device: %w", err)
	}

	cfg := eng.StreamDefaults()
	if err := eng.StartStreamSession(ctx, deviceID, *channels, *samplingRate, cfg); err != nil {
		return fmt.Errorf("start stream session: %w", err)
	}

	if err := eng.StartStreaming(ctx, deviceID); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	time.Sleep(*duration)

	if err := eng.StopStreaming(deviceID); err != nil {
		return fmt.Errorf("stop streaming: %w", err)
	}

	snapshot, err := eng.CheckQuality(deviceID)
	if err != nil {
		return fmt.Errorf("check quality: %w", err)
	}
	metrics, err := eng.StopStreamSession(deviceID)
	if err != nil {
		return fmt.Errorf("stop stream session: %w", err)
	}

	_, err = fmt.Fprintf(out,
		"windows=%d samples_processed=%d samples_dropped=%d last_latency_ms=%.2f stable=%t active_alerts=%d\n",
		metrics.WindowsEmitted, metrics.SamplesProcessed, metrics.SamplesDropped, metrics.LastLatencyMs,
		snapshot.Stable, len(snapshot.ActiveAlerts),
	)
	return err
}

func envInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(raw string, def float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}
