package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vocalsnr/cmd"
	"vocalsnr/internal/audio"
	"vocalsnr/internal/log"
	"vocalsnr/pkg/build"
)

// main is the entry point for the vocal SNR meter.
// The program flow is divided into three phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Initialize PortAudio
//   - Parse command line arguments
//
// 2. Session Phase:
//   - Load configuration and acquire a capture source on demand
//   - Run the selected command (meter, baseline, test, serve)
//
// 3. Shutdown Phase:
//   - Handle termination signals
//   - Release the capture device and drain pending events
func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE ====================

	// Missing ldflags only affect the version string.
	if err := build.Initialize(); err != nil {
		log.Debugf("Build: %v", err)
	}

	// Without PortAudio the raw and microphone sources fail to open and
	// acquisition falls through to miniaudio or a replayed file.
	if err := audio.Initialize(); err != nil {
		log.Warnf("Audio: %v", err)
	} else {
		defer audio.Terminate()
	}

	opts, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		return err
	}
	if opts.Exit {
		return nil
	}

	// ==================== SESSION PHASE ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==================== SHUTDOWN PHASE ====================
	// Cancelling ctx stops the running session. Execute returns once the
	// device is released and pending events are drained.
	return cmd.Execute(ctx, opts, os.Stdout)
}
