package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"resumechat/internal/domain"
	"resumechat/internal/feed"
	"resumechat/internal/ports"
	"resumechat/internal/usecase"
)

func newDictateCommand(opts *rootOptions) *cobra.Command {
	var initial string

	cmd := &cobra.Command{
		Use:   "dictate",
		Short: "Dictate text from the microphone",
		Long: `Dictate text from the microphone and print it as it is recognized.
Press Enter to stop. Dictation also stops after six seconds of silence.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			transcripts := feed.New()
			services, err := opts.services(cmd, transcripts, newConsoleEvents(cmd, transcripts))
			if err != nil {
				return err
			}
			text, err := dictate(cmd, services.Controller, transcripts, initial)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&initial, "initial", "", "text to continue from")
	return cmd
}

// dictate runs one session and returns the final composed text. Live updates
// are written to stderr.
func dictate(cmd *cobra.Command, controller *usecase.DictationController, transcripts *feed.Feed, initial string) (string, error) {
	defer func() { _ = controller.Close() }()

	ctx := cmd.Context()
	stream := transcripts.Open()
	defer func() { _ = stream.Close() }()

	if err := controller.Start(ctx, initial); err != nil {
		return "", startError(err)
	}

	go stopOnEnter(ctx, cmd.InOrStdin(), controller)

	text := initial
	live := cmd.ErrOrStderr()
	for {
		value, ok, err := stream.Next(ctx)
		if err != nil {
			fmt.Fprintln(live)
			if errors.Is(err, context.Canceled) {
				_ = controller.Stop()
				return text, nil
			}
			return text, err
		}
		if !ok {
			break
		}
		text = value
		fmt.Fprintf(live, "\r\033[K%s", value)
	}
	fmt.Fprintln(live)
	return text, nil
}

func stopOnEnter(ctx context.Context, in io.Reader, controller *usecase.DictationController) {
	lines := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(in).ReadString('\n')
		close(lines)
	}()
	select {
	case <-ctx.Done():
	case <-lines:
		_ = controller.Stop()
	}
}

// startError maps a refused start to the message a user should see.
func startError(err error) error {
	var startErr *domain.StartError
	switch {
	case errors.As(err, &startErr):
		return errors.New(domain.ErrorMessage(startErr.Code, errorDetail(startErr.Err)))
	case errors.Is(err, usecase.ErrUnsupported):
		return errors.New(domain.ErrorMessage(domain.ErrorCodeUnsupported, ""))
	case errors.Is(err, usecase.ErrInsecureContext):
		return errors.New(domain.ErrorMessage(domain.ErrorCodeInsecureContext, ""))
	default:
		return err
	}
}

func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// consoleEvents prints session status lines and forwards every event.
// Errors outside a session are left to the command's return value.
type consoleEvents struct {
	out  io.Writer
	next ports.EventSink

	mu     sync.Mutex
	active bool
}

func newConsoleEvents(cmd *cobra.Command, next ports.EventSink) *consoleEvents {
	return &consoleEvents{out: cmd.ErrOrStderr(), next: next}
}

func (c *consoleEvents) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	c.mu.Lock()
	c.active = state != domain.SessionStateIdle
	if message := domain.SessionReasonMessage(reason); message != "" && reason != domain.SessionReasonSessionCleared {
		fmt.Fprintf(c.out, "\r\033[K[%s]\n", message)
	}
	c.mu.Unlock()
	c.next.SessionStateChanged(state, reason)
}

func (c *consoleEvents) SessionError(code domain.ErrorCode, detail string) {
	c.mu.Lock()
	if c.active {
		fmt.Fprintf(c.out, "\r\033[K[%s]\n", domain.ErrorMessage(code, detail))
	}
	c.mu.Unlock()
	c.next.SessionError(code, detail)
}
