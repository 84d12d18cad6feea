package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		environment string
		hosts       []string
	)
	cmd := &cobra.Command{
		Use:   "search <path> <token>",
		Short: "Search log directories across hosts",
		Long: "Search scans *log* files in the given directory on every selected host and\n" +
			"counts lines matching the token. Per-host results stream in as hosts finish;\n" +
			"one unreachable host never blocks the others.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			profiles, err := selectProfiles(root.app, hosts, environment)
			if err != nil {
				return err
			}
			path, token := args[0], args[1]

			fmt.Printf("%s %q in %s on %d hosts\n", titleStyle.Render("searching"), token, path, len(profiles))
			run := root.app.service.SearchLogs(ctx, profiles, path, token)
			for outcome := range run.Outcomes() {
				fmt.Print(renderOutcome(outcome))
			}

			summary := run.Summary()
			fmt.Printf("\n%d/%d hosts ok, %d files, %d matches, %s\n",
				summary.Hosts-summary.FailedHosts, summary.Hosts,
				summary.TotalFiles, summary.TotalMatches,
				summary.Duration.Truncate(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "only search hosts tagged with this environment")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "search only these profiles (repeatable)")
	return cmd
}
