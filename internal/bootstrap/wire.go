package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"resumechat/internal/audio"
	"resumechat/internal/backend"
	"resumechat/internal/clock"
	"resumechat/internal/config"
	"resumechat/internal/domain"
	"resumechat/internal/logger"
	"resumechat/internal/metrics"
	"resumechat/internal/ports"
	"resumechat/internal/providers/deepgram"
	"resumechat/internal/recognizer"
	"resumechat/internal/textproc"
	"resumechat/internal/usecase"
)

// ErrBackendNotConfigured is returned by hosts that need the chat backend
// when backend.url is empty.
var ErrBackendNotConfigured = errors.New("backend url is not configured")

// Options selects where dictation output goes.
type Options struct {
	Config      config.Options
	Transcripts ports.TranscriptSink
	Events      ports.EventSink
	// Scheduler defaults to the wall clock.
	Scheduler ports.Scheduler
	// Logger overrides the configured logger.
	Logger *logger.Logger
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Logger     *logger.Logger
	Metrics    *metrics.Recorder
	Processor  *textproc.Processor
	Controller *usecase.DictationController
	// Backend is nil when no backend url is configured.
	Backend *backend.Client

	events ports.EventSink
}

// Build wires all dependencies for the current runtime.
func Build(opts Options) (Services, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return Services{}, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Log, "resumechat")
	}
	recorder := metrics.New()

	engine, err := textproc.NewEngine(cfg.Rules.Path)
	if err != nil {
		return Services{}, err
	}
	processor := textproc.NewProcessor(engine)

	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = clock.Real()
	}

	speech := recognizer.New(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}),
		opts.Events,
		recognizer.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize:    cfg.Dictation.ChunkSize,
			DrainTimeout: cfg.Dictation.StreamingGrace,
			Logger:       log,
		},
	)

	controller := usecase.NewDictationController(
		speech,
		scheduler,
		processor,
		opts.Transcripts,
		opts.Events,
		usecase.Config{
			Pauses: usecase.PauseConfig{
				Short:      cfg.Dictation.ShortPause,
				Medium:     cfg.Dictation.MediumPause,
				Long:       cfg.Dictation.LongPause,
				ResetGrace: cfg.Dictation.ResetGrace,
			},
			OverlapWindow: cfg.Dictation.OverlapWindow,
			Recognizer: ports.RecognizerOptions{
				Continuous: cfg.Dictation.Continuous,
				Language:   cfg.Deepgram.Language,
			},
			Logger:  log,
			Metrics: recorder,
		},
	)

	services := Services{
		Config:     cfg,
		Logger:     log,
		Metrics:    recorder,
		Processor:  processor,
		Controller: controller,
		events:     opts.Events,
	}

	if cfg.Backend.BaseURL != "" {
		client, err := backend.New(cfg.Backend, log, recorder)
		if err != nil {
			return Services{}, err
		}
		services.Backend = client
	}

	return services, nil
}

// RequireBackend returns the backend client or ErrBackendNotConfigured.
func (s Services) RequireBackend() (*backend.Client, error) {
	if s.Backend == nil {
		return nil, ErrBackendNotConfigured
	}
	return s.Backend, nil
}

// WatchRules reloads corrections until ctx is done. Reload failures keep the
// previous rules and are reported as rules errors. Without a rules directory
// there is nothing to watch and WatchRules just waits.
func (s Services) WatchRules(ctx context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.Config.Rules.Path)); err != nil {
		<-ctx.Done()
		return nil
	}
	watcher, err := textproc.NewWatcher(s.Config.Rules.Path, s.Processor, s.Logger)
	if err != nil {
		return err
	}
	watcher.OnReload(func(_ *textproc.Engine, err error) {
		if err != nil && s.events != nil {
			s.events.SessionError(domain.ErrorCodeRules, err.Error())
		}
	})
	return watcher.Run(ctx)
}
