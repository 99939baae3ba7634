package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"resumechat/internal/bootstrap"
	"resumechat/internal/config"
	"resumechat/internal/logger"
	"resumechat/internal/ports"
)

// Builder assembles the runtime graph for a command.
type Builder func(opts bootstrap.Options) (bootstrap.Services, error)

type rootOptions struct {
	configFile  string
	envFile     string
	metricsAddr string
	build       Builder
}

// Execute runs the resumechat command line.
func Execute(ctx context.Context) error {
	return NewRootCommand(bootstrap.Build).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. build is called once per command
// that needs dictation or the backend.
func NewRootCommand(build Builder) *cobra.Command {
	opts := &rootOptions{build: build}

	root := &cobra.Command{
		Use:   "resumechat",
		Short: "Dictate questions and chat about your resume",
		Long: `resumechat uploads a resume to the chat backend and answers questions
about it. Questions can be typed or dictated; dictation streams microphone
audio to Deepgram and stops on its own after a long pause.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./config.yaml or ~/.config/resumechat/config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "env file to load before reading the environment (default: ./.env)")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(
		newDictateCommand(opts),
		newChatCommand(opts),
		newResumeCommand(opts),
		newVersionCommand(),
	)
	return root
}

// services builds the runtime for cmd and starts the metrics endpoint and the
// rules watcher. They stop with the command's context.
func (o *rootOptions) services(cmd *cobra.Command, transcripts ports.TranscriptSink, events ports.EventSink) (bootstrap.Services, error) {
	services, err := o.build(bootstrap.Options{
		Config:      config.Options{ConfigFile: o.configFile, EnvFile: o.envFile},
		Transcripts: transcripts,
		Events:      events,
	})
	if err != nil {
		return bootstrap.Services{}, err
	}

	ctx := cmd.Context()
	go func() {
		if err := services.WatchRules(ctx); err != nil {
			services.Logger.WithError(err).Warn("corrections will not be reloaded")
		}
	}()

	addr := o.metricsAddr
	if addr == "" {
		addr = services.Config.Metrics.Addr
	}
	if addr != "" {
		if err := serveMetrics(ctx, addr, services.Metrics.Handler(), services.Logger); err != nil {
			return bootstrap.Services{}, err
		}
	}
	return services, nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, log *logger.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", logger.Fields("addr", listener.Addr().String()))
	return nil
}
