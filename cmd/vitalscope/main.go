// Command vitalscope captures camera frames, runs them through the GPU
// compute pipeline, and reports capture and processing statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	vitalscope "github.com/vitalscope/vitalscope"
	"github.com/vitalscope/vitalscope/analysis"
	"github.com/vitalscope/vitalscope/capture"
	"github.com/vitalscope/vitalscope/gpu"
)

func main() {
	var (
		device      = flag.String("device", "", "capture device ID (default: first available)")
		list        = flag.Bool("list", false, "list capture devices and exit")
		width       = flag.Int("width", capture.DefaultWidth, "capture width")
		height      = flag.Int("height", capture.DefaultHeight, "capture height")
		displayRate = flag.Int("display-rate", capture.DefaultDisplayRate, "display tick rate (Hz)")
		captureRate = flag.Int("capture-rate", capture.DefaultTargetCaptureRate, "target capture rate (Hz)")
		backend     = flag.String("backend", "", "GPU backend (default: best available)")
		duration    = flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	vitalscope.SetLogger(logger)

	if err := run(*device, *list, *width, *height, *displayRate, *captureRate, *backend, *duration, logger); err != nil {
		logger.Error("vitalscope failed", "error", err)
		os.Exit(1)
	}
}

func run(device string, list bool, width, height, displayRate, captureRate int, backend string, duration time.Duration, logger *slog.Logger) error {
	if list {
		devices, err := capture.ListDevices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		for _, d := range devices {
			fmt.Printf("%s\t%s\n", d.ID, d.Name)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	constraints := capture.Constraints{
		Width:             width,
		Height:            height,
		DisplayRate:       displayRate,
		TargetCaptureRate: captureRate,
	}

	if device == "" {
		devices, err := capture.ListDevices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		if len(devices) == 0 {
			return errors.New("no capture devices available")
		}
		device = devices[0].ID
	}

	handle, err := capture.Open(device, constraints)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer handle.Close()
	logger.Info("capture opened", "device", device, "width", width, "height", height)

	gctx := gpu.NewContext()
	if backend != "" {
		err = gctx.InitBackend(ctx, backend)
	} else {
		err = gctx.Init(ctx)
	}
	if err != nil {
		return fmt.Errorf("gpu init: %w", err)
	}
	defer gctx.Release()
	logger.Info("gpu ready", "backend", gctx.Backend())

	engine, err := gpu.NewEngine(gctx, "", "")
	if err != nil {
		return fmt.Errorf("gpu engine: %w", err)
	}
	defer engine.Close()

	bus := vitalscope.NewFrameBus()
	stats := analysis.NewStats()
	loop := capture.NewLoop(handle, bus, stats, constraints)

	// Processing goroutine: drain the latest frame from the bus through the
	// GPU round trip. Frames the capture side overwrote are simply gone.
	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		ticker := time.NewTicker(constraints.TickInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame := bus.Take()
				if frame == nil {
					continue
				}
				if _, err := engine.ProcessFrame(ctx, frame); err != nil {
					continue // logged by the engine, next frame starts clean
				}
			}
		}
	}()

	err = loop.Run(ctx)
	<-procDone

	loopStats := loop.Stats()
	engineStats := engine.Stats()
	snap := stats.Snapshot()
	logger.Info("shutdown",
		"captured", loopStats.Captured,
		"skipped", loopStats.Skipped,
		"capture_failed", loopStats.Failed,
		"processed", engineStats.Processed,
		"process_failed", engineStats.Failed,
		"effective_fps", fmt.Sprintf("%.1f", snap.EffectiveFPS),
		"bus", fmt.Sprintf("%+v", bus.Stats()))

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
