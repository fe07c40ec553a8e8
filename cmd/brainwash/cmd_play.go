package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/oto"
	"github.com/brainwash-synth/brainwash/tracker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// midiContext is the MIDI input feeding the player.
type midiContext interface {
	tracker.PlayerProcessContext
	Open(prefix string) (string, error)
	Inputs() ([]string, error)
	Close()
}

var (
	playPreset   string
	playMIDI     string
	playWatch    bool
	playMetrics  string
	playVoices   int
	playDuration time.Duration
	playRecover  bool

	playCmd = &cobra.Command{
		Use:   "play [file.bw]",
		Short: "Play a patch on the audio device until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPlay,
	}
)

const recoveryInterval = 10 * time.Second

func init() {
	f := playCmd.Flags()
	f.StringVar(&playPreset, "preset", "", "play a preset instead of a file")
	f.StringVar(&playMIDI, "midi-input", "", "open the MIDI input whose name starts with this prefix")
	f.BoolVar(&playWatch, "watch", false, "reload the file when it changes")
	f.StringVar(&playMetrics, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	f.IntVar(&playVoices, "voices", 0, "size of the voice pool (default from the config)")
	f.DurationVar(&playDuration, "duration", 0, "stop after this long (default is until interrupted)")
	f.BoolVar(&playRecover, "recover", false, "play the patch of the recovery file")
}

func runPlay(cmd *cobra.Command, args []string) error {
	patch, path, err := resolvePatch(args, playPreset)
	if err != nil {
		return err
	}
	if playWatch && path == "" {
		return errors.New("--watch needs a file")
	}
	opts := cfg.SynthOptions()
	if playVoices > 0 {
		opts.Voices = playVoices
	}
	if cmd.Flags().Changed("midi-input") {
		cfg.MIDIInput = playMIDI
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = playMetrics
	}

	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	model, err := tracker.NewModel(broker, player, opts, patch, cfg.RecoveryFile)
	if err != nil {
		return err
	}
	model.SetFilePath(path)
	if playRecover {
		found, err := model.LoadRecovery()
		if err != nil {
			return err
		}
		if !found {
			logger.Warn("no recovery file", "path", cfg.RecoveryFile)
		}
	}
	logRejected(model)

	midi := newMIDIContext()
	defer midi.Close()
	if cfg.MIDIInput != "" {
		name, err := midi.Open(cfg.MIDIInput)
		if err != nil {
			logger.Warn("could not open MIDI input", "prefix", cfg.MIDIInput, "err", err)
		} else {
			logger.Info("MIDI input open", "name", name)
		}
	}

	audioContext, err := oto.NewContext(cfg.BufferSize)
	if err != nil {
		return err
	}
	audio := audioContext.Play(func(buf brainwash.AudioBuffer) error {
		player.Process(buf, midi)
		return nil
	})
	defer audio.Close()
	model.Play()
	logger.Info("playing", "file", path, "bpm", model.Patch().BPM, "voices", opts.Voices)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if playDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, playDuration)
		defer cancel()
	}
	g, ctx := errgroup.WithContext(ctx)

	detector := tracker.NewDetector(broker)
	go detector.Run()
	g.Go(func() error {
		<-ctx.Done()
		broker.CloseDetector <- struct{}{}
		<-broker.FinishedDetector
		return nil
	})

	var metrics *tracker.Metrics
	if cfg.MetricsAddr != "" {
		metrics = tracker.NewMetrics()
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(metrics), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if playWatch {
		w, err := tracker.NewWatcher(path, broker, tracker.DefaultDebounce)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error {
		return runModel(ctx, model, broker, metrics)
	})

	err = g.Wait()
	model.Stop()
	if rerr := model.SaveRecovery(); rerr != nil && !errors.Is(rerr, tracker.ErrNoRecoveryFile) {
		logger.Warn("could not save recovery file", "err", rerr)
	}
	return err
}

// runModel feeds the model the messages of the other actors until the context
// is done.
func runModel(ctx context.Context, model *tracker.Model, broker *tracker.Broker, metrics *tracker.Metrics) error {
	recovery := time.NewTicker(recoveryInterval)
	defer recovery.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-broker.ToModel:
			reloads := model.Reloads()
			model.ProcessMsg(msg)
			if metrics != nil {
				metrics.Observe(msg)
			}
			switch e := msg.Data.(type) {
			case tracker.ReloadMsg:
				if model.Reloads() > reloads {
					logger.Info("reloaded", "file", e.Path)
					logRejected(model)
				} else {
					logger.Error("reload failed, keeping the old patch", "file", e.Path, "err", alertMessage(model, "Reload"))
				}
			case tracker.Alert:
				logger.Warn(e.Message, "alert", e.Name)
			}
		case <-recovery.C:
			if err := model.SaveRecovery(); err != nil && !errors.Is(err, tracker.ErrNoRecoveryFile) {
				logger.Warn("could not save recovery file", "err", err)
			}
		}
	}
}

func alertMessage(model *tracker.Model, name string) string {
	for _, a := range model.Alerts().Active(time.Now()) {
		if a.Name == name {
			return a.Message
		}
	}
	return ""
}

func logRejected(model *tracker.Model) {
	for _, r := range model.Rejected() {
		logger.Warn("connection ignored", "err", r.Error())
	}
}

func metricsMux(m *tracker.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
