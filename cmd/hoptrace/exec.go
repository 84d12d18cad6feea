package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newExecCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <id|label|host> <command> [args...]",
		Short: "Run a one-shot command on a host",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			profile, err := findProfile(root.app, args[0])
			if err != nil {
				return err
			}
			command := strings.Join(args[1:], " ")

			out, err := root.app.service.Exec(ctx, profile, command)
			if err != nil {
				return err
			}
			fmt.Print(out.Text)
			if out.Text != "" && !strings.HasSuffix(out.Text, "\n") {
				fmt.Println()
			}
			if out.Truncated {
				fmt.Fprintln(os.Stderr, dimStyle.Render("(output truncated)"))
			}
			return nil
		},
	}
}
