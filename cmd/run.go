package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"vocalsnr/internal/analysis"
	"vocalsnr/internal/audio"
	"vocalsnr/internal/config"
	"vocalsnr/internal/dispatch"
	"vocalsnr/internal/engine"
	"vocalsnr/internal/history"
	"vocalsnr/internal/log"
	"vocalsnr/internal/observe"
	"vocalsnr/internal/transport"
	"vocalsnr/internal/transport/udp"
	"vocalsnr/internal/tui"
	"vocalsnr/pkg/build"
)

// ApplyOptions folds command line overrides into cfg.
func ApplyOptions(cfg *config.Config, opts *Options) {
	if opts.DeviceSet {
		cfg.Audio.InputDevice = opts.DeviceID
	}
	if opts.InputFile != "" {
		cfg.Audio.InputFile = opts.InputFile
	}
	if opts.DurationSet {
		cfg.Session.TestDuration = opts.Duration
	}
	if opts.Verbose {
		cfg.Debug = true
	}
}

// Candidates builds the acquisition order from cfg. A configured input file
// is tried first even when "wav" is not listed.
func Candidates(a config.AudioConfig, paced bool) []audio.Candidate {
	var out []audio.Candidate
	if a.InputFile != "" && !slices.Contains(a.Sources, config.SourceWAV) {
		out = append(out, audio.WAVCandidate(a.InputFile, paced))
	}
	for _, name := range a.Sources {
		switch name {
		case config.SourceRaw:
			out = append(out, audio.RawCandidate())
		case config.SourceMicrophone:
			out = append(out, audio.MicrophoneCandidate())
		case config.SourceMiniaudio:
			out = append(out, audio.MiniaudioCandidate())
		case config.SourceWAV:
			if a.InputFile == "" {
				log.Warnf("Config: wav source listed without input_file, skipping")
				continue
			}
			out = append(out, audio.WAVCandidate(a.InputFile, paced))
		}
	}
	return out
}

// App wires the engine to its dispatcher, tracker and history.
type App struct {
	Config     *config.Config
	Engine     *engine.Engine
	Dispatcher *dispatch.Dispatcher
	Tracker    *history.Tracker
	Store      *history.Store
}

// NewApp builds and starts the session stack. Close releases it.
func NewApp(cfg *config.Config, paced bool, engineOpts ...engine.Option) *App {
	capture := config.DefaultCapture()
	params := audio.NewParams(capture, audio.PlatformMinBuffer(capture.SampleRate), cfg.Audio.InputDevice)
	acq := audio.NewAcquirer(params,
		audio.StaticPermission(cfg.Audio.MicrophonePermission),
		Candidates(cfg.Audio, paced)...)
	log.Debugf("App: window %d samples, buffer %d samples", acq.Params().WindowSize, acq.Params().BufferSize)

	dopts := []dispatch.Option{dispatch.WithQueueSize(cfg.Session.DispatchQueue)}
	if cfg.Session.DedupMicrophoneState {
		dopts = append(dopts, dispatch.WithDedupMicrophoneState())
	}
	d := dispatch.New(dopts...)
	tracker := history.NewTracker()
	d.Subscribe(tracker.Handle)

	engineOpts = append([]engine.Option{engine.WithJoinTimeout(cfg.Session.JoinTimeout)}, engineOpts...)
	eng := engine.New(acq, d.Testing(), d.Calibration(), engineOpts...)

	app := &App{Config: cfg, Engine: eng, Dispatcher: d, Tracker: tracker}
	if cfg.History.Path != "" {
		app.Store = history.NewStore(cfg.History.Path)
		app.wireHistory()
	}
	d.Start()
	return app
}

func (a *App) wireHistory() {
	if a.Config.History.RestoreBaseline {
		b, ok, err := a.Store.Baseline()
		switch {
		case err != nil:
			log.Warnf("App: reading stored baseline: %v", err)
		case ok:
			if err := a.Engine.SetBaseline(b.NoisePower); err != nil {
				log.Warnf("App: restoring baseline: %v", err)
			} else {
				log.Infof("App: restored baseline %.2f from %s", b.NoisePower, b.Time.Format(time.DateTime))
			}
		}
	}

	a.Dispatcher.Subscribe(func(ev dispatch.Event) {
		if ev.Kind != dispatch.KindBaselineRecorded {
			return
		}
		b := history.Baseline{Time: ev.Time, NoisePower: a.Engine.BaselineNoisePower(), Quality: a.Tracker.Snapshot().Quality}
		if err := a.Store.SaveBaseline(b); err != nil {
			log.Warnf("App: saving baseline: %v", err)
		}
	})
	a.Tracker.OnSessionEnd(func(s history.Summary) {
		e := history.Entry{
			Time:               s.End,
			MaxSNR:             s.Max,
			BaselineNoisePower: a.Engine.BaselineNoisePower(),
			Quality:            a.Tracker.Snapshot().Quality,
		}
		if err := a.Store.Append(e); err != nil {
			log.Warnf("App: saving session: %v", err)
		}
	})
}

// Close releases the device and drains pending events.
func (a *App) Close() {
	a.Engine.Release()
	a.Dispatcher.Close()
}

// waitMicrophoneOff returns a channel that receives once ch reports the
// microphone inactive.
func (a *App) waitMicrophoneOff(ch dispatch.Channel) <-chan struct{} {
	done := make(chan struct{}, 1)
	a.Dispatcher.Subscribe(func(ev dispatch.Event) {
		if ev.Kind == dispatch.KindMicrophone && ev.Channel == ch && !ev.Active {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	return done
}

// RunBaseline records one baseline and prints the result.
func RunBaseline(ctx context.Context, app *App, out io.Writer) error {
	var failure error
	app.Dispatcher.Subscribe(func(ev dispatch.Event) {
		if ev.Kind == dispatch.KindBaselineFailed {
			failure = ev.Err
		}
	})
	done := app.waitMicrophoneOff(dispatch.ChannelCalibration)

	before := app.Engine.BaselineNoisePower()
	app.Tracker.Reset()
	if err := app.Engine.StartBaselineRecording(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Recording background noise for %v, keep quiet...\n", config.CalibrationDuration)

	select {
	case <-done:
	case <-ctx.Done():
		app.Engine.Release()
		return ctx.Err()
	}

	snap := app.Tracker.Snapshot()
	if !snap.Baseline {
		if failure == nil {
			failure = engine.ErrNoWindows
		}
		return fmt.Errorf("baseline not recorded (kept %.2f): %w", before, failure)
	}
	fmt.Fprintf(out, "Baseline noise power %.2f: %s (level %d)\n",
		app.Engine.BaselineNoisePower(), snap.Quality, snap.QualityLevel)
	return nil
}

// RunTest measures SNR until d elapses (d <= 0 runs until ctx ends) and
// prints each reading and the session maximum.
func RunTest(ctx context.Context, app *App, d time.Duration, out io.Writer) error {
	app.Dispatcher.Subscribe(func(ev dispatch.Event) {
		if ev.Kind == dispatch.KindSNR {
			fmt.Fprintf(out, "SNR %6.2f dB  %s\n", ev.SNR, analysis.Rating(ev.SNR))
		}
	})
	done := app.waitMicrophoneOff(dispatch.ChannelTesting)

	if err := app.Engine.StartTest(); err != nil {
		if errors.Is(err, engine.ErrNoBaseline) {
			return fmt.Errorf("%w: run the baseline command first", err)
		}
		return err
	}

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
	case <-timeout:
		app.stopAndWait(done)
	case <-ctx.Done():
		app.stopAndWait(done)
	}

	// Let the dispatcher deliver the readings queued before the stop.
	app.Dispatcher.Close()
	snap := app.Tracker.Snapshot()
	fmt.Fprintf(out, "Session max %.2f dB over %d readings (%s)\n",
		snap.Max, snap.Readings, analysis.Rating(snap.Max))
	return nil
}

// stopAndWait ends the running loop, releasing the device if the loop does
// not finish within one window plus the join timeout.
func (a *App) stopAndWait(done <-chan struct{}) {
	a.Engine.Stop()
	select {
	case <-done:
	case <-time.After(config.WindowDuration + a.Config.Session.JoinTimeout):
		a.Engine.Release()
	}
}

// commandFunc maps websocket commands onto the engine.
func commandFunc(eng *engine.Engine) transport.CommandFunc {
	return func(command string) error {
		switch command {
		case transport.CommandBaseline:
			return eng.StartBaselineRecording()
		case transport.CommandTest:
			return eng.StartTest()
		case transport.CommandStop:
			eng.Stop()
			return nil
		}
		return fmt.Errorf("unknown command %q", command)
	}
}

// statusFunc reports the session for UDP status packets.
func statusFunc(app *App) udp.StatusFunc {
	return func() udp.Status {
		snap := app.Tracker.Snapshot()
		st := udp.Status{
			SNR:                float32(snap.Latest),
			MaxSNR:             float32(snap.Max),
			BaselineNoisePower: float32(app.Engine.BaselineNoisePower()),
			Readings:           uint32(snap.Readings),
			QualityLevel:       uint8(snap.QualityLevel),
		}
		if snap.Testing {
			st.Flags |= udp.FlagTesting
		}
		if snap.Calibrating {
			st.Flags |= udp.FlagCalibrating
		}
		if st.BaselineNoisePower > 0 {
			st.Flags |= udp.FlagBaseline
		}
		return st
	}
}

// Serve runs headless until ctx ends: events go to websocket clients (or
// the log), status packets go over UDP, and metrics are served for
// Prometheus.
func Serve(ctx context.Context, cfg *config.Config, paced bool) error {
	g, ctx := errgroup.WithContext(ctx)

	var provider *observe.Provider
	if cfg.Metrics.Enabled {
		p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: build.GetBuildFlags().Version})
		if err != nil {
			return fmt.Errorf("metrics provider: %w", err)
		}
		provider = p
	}

	app := NewApp(cfg, paced)
	defer app.Close()

	var t transport.Transport
	if addr := cfg.Transport.WebSocketAddress; addr != "" {
		wst := transport.NewWebSocketTransport(addr, commandFunc(app.Engine))
		g.Go(func() error { return wst.ListenAndServe(ctx) })
		t = wst
	} else {
		t = transport.NewLoggingTransport()
	}
	defer t.Close()
	app.Dispatcher.Subscribe(transport.Forward(t))

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, statusFunc(app))
		if err != nil {
			return err
		}
		pub.Start()
		defer pub.Close()
	}

	if provider != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Infof("Metrics: serving /metrics on %s", cfg.Metrics.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return provider.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		app.Engine.Release()
		return nil
	})

	log.Infof("Serve: ready")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Execute runs the selected command.
func Execute(ctx context.Context, opts *Options, out io.Writer) error {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	ApplyOptions(cfg, opts)
	if cfg.Debug {
		log.SetLevel(log.LevelDebug)
	} else if lvl, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(lvl)
	}

	switch opts.Command {
	case CommandList:
		if opts.Interactive {
			id, err := tui.PickDevice()
			if err != nil {
				return err
			}
			if id >= 0 {
				fmt.Fprintf(out, "input_device: %d\n", id)
			}
			return nil
		}
		return audio.ListDevices(out)

	case CommandBaseline:
		app := NewApp(cfg, opts.Paced)
		defer app.Close()
		return RunBaseline(ctx, app, out)

	case CommandTest:
		app := NewApp(cfg, opts.Paced)
		defer app.Close()
		return RunTest(ctx, app, cfg.Session.TestDuration, out)

	case CommandServe:
		return Serve(ctx, cfg, opts.Paced)

	default:
		return runMeter(cfg, opts.Paced)
	}
}

func runMeter(cfg *config.Config, paced bool) error {
	// The alt screen owns the terminal; logs go to a file instead.
	f, err := os.OpenFile("vocalsnr.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()
	log.SetOutput(f)
	defer log.SetOutput(os.Stderr)

	app := NewApp(cfg, paced)
	defer app.Close()
	return tui.RunMeter(app.Engine, app.Tracker, app.Dispatcher)
}
