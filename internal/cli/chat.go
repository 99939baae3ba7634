package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"resumechat/internal/backend"
	"resumechat/internal/domain"
	"resumechat/internal/feed"
)

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		voice     bool
	)

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask a question about the uploaded resume",
		Long: `Ask the backend a question about the uploaded resume. Without --session
the session of the latest resume is used. With --voice the question is
dictated first; any text given as arguments is the start of the question.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if !voice && question == "" {
				return errors.New("a question is required")
			}

			transcripts := feed.New()
			services, err := opts.services(cmd, transcripts, newConsoleEvents(cmd, transcripts))
			if err != nil {
				return err
			}
			client, err := services.RequireBackend()
			if err != nil {
				return err
			}

			if voice {
				question, err = dictate(cmd, services.Controller, transcripts, question)
				if err != nil {
					return err
				}
				if strings.TrimSpace(question) == "" {
					return errors.New("no question was dictated")
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Q: %s\n", question)
			}

			if sessionID == "" {
				resume, err := client.LatestResume(cmd.Context())
				if err != nil {
					return backendError(err)
				}
				if resume == nil {
					return errors.New("no resume has been uploaded; run 'resumechat resume upload' first")
				}
				sessionID = resume.SessionID
			}

			answer, err := client.Ask(cmd.Context(), sessionID, question)
			if err != nil {
				return backendError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "chat session id (default: the latest resume's session)")
	cmd.Flags().BoolVar(&voice, "voice", false, "dictate the question")
	return cmd
}

func backendError(err error) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", domain.ErrorMessage(domain.ErrorCodeBackend, ""), err)
	}
	return err
}
