package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newTestCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <id|label|host>",
		Short: "Probe a profile and record its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			profile, err := findProfile(root.app, args[0])
			if err != nil {
				return err
			}

			start := time.Now()
			if err := root.app.service.TestConnection(ctx, profile); err != nil {
				fmt.Printf("%s %s: %v\n", errorStyle.Render("✗"), profile.Addr(), err)
				return err
			}
			fmt.Printf("%s %s reachable in %s\n",
				successStyle.Render("✓"), profile.Addr(), time.Since(start).Truncate(time.Millisecond))
			return nil
		},
	}
}
