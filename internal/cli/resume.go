package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"resumechat/internal/backend"
	"resumechat/internal/feed"
)

func newResumeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Manage the uploaded resume",
	}

	withClient := func(run func(cmd *cobra.Command, client *backend.Client, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			sink := feed.New()
			services, err := opts.services(cmd, sink, sink)
			if err != nil {
				return err
			}
			client, err := services.RequireBackend()
			if err != nil {
				return err
			}
			return run(cmd, client, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "upload <file>",
			Short: "Upload a PDF, DOC, DOCX or TXT resume",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(cmd *cobra.Command, client *backend.Client, args []string) error {
				resume, err := client.UploadResume(cmd.Context(), args[0])
				if err != nil {
					return backendError(err)
				}
				if resume == nil {
					return errors.New("the resume was uploaded but is not available yet")
				}
				printResume(cmd.OutOrStdout(), resume)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "latest",
			Short: "Show the latest uploaded resume",
			Args:  cobra.NoArgs,
			RunE: withClient(func(cmd *cobra.Command, client *backend.Client, _ []string) error {
				resume, err := client.LatestResume(cmd.Context())
				if err != nil {
					return backendError(err)
				}
				if resume == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No resume uploaded.")
					return nil
				}
				printResume(cmd.OutOrStdout(), resume)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete [id]",
			Short: "Delete a resume and its chat session (default: the latest)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withClient(func(cmd *cobra.Command, client *backend.Client, args []string) error {
				id := ""
				if len(args) == 1 {
					id = args[0]
				} else {
					resume, err := client.LatestResume(cmd.Context())
					if err != nil {
						return backendError(err)
					}
					if resume != nil {
						id = resume.ID
					}
				}
				if err := client.DeleteResume(cmd.Context(), id); err != nil {
					return backendError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted resume %s.\n", id)
				return nil
			}),
		},
	)
	return cmd
}

func printResume(w io.Writer, resume *backend.Resume) {
	fmt.Fprintf(w, "id:      %s\n", resume.ID)
	fmt.Fprintf(w, "session: %s\n", resume.SessionID)
	fmt.Fprintf(w, "file:    %s (%d bytes)\n", resume.Metadata.FileName, resume.Metadata.FileSize)
}
