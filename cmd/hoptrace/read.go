package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newReadCmd(root *rootOptions) *cobra.Command {
	var (
		lines int
		token string
	)
	cmd := &cobra.Command{
		Use:   "read <id|label|host> <path>",
		Short: "Read the head of a remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			profile, err := findProfile(root.app, args[0])
			if err != nil {
				return err
			}

			content, err := root.app.service.ReadFile(ctx, profile, args[1], token, lines)
			if err != nil {
				return err
			}
			fmt.Print(content.Text)
			if content.Truncated {
				fmt.Fprintln(os.Stderr, dimStyle.Render("(truncated)"))
			}
			if token != "" {
				fmt.Fprintf(os.Stderr, "%s\n", dimStyle.Render(fmt.Sprintf("%d lines match %q", content.Matches, token)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 0, "maximum lines to fetch (settings default when 0)")
	cmd.Flags().StringVar(&token, "token", "", "count lines containing this token")
	return cmd
}
