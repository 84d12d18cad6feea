package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newTraceCmd(root *rootOptions) *cobra.Command {
	var (
		logPath     string
		environment string
		candidates  []string
		quiet       bool
	)
	cmd := &cobra.Command{
		Use:   "trace <trace-id>",
		Short: "Follow a request chain across hosts",
		Long: "Trace scans the log directory on each candidate host for the trace id and\n" +
			"follows the recorded hops from host to host until the chain ends. Candidates\n" +
			"are tried in order; the first one with results decides the chain.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			profiles, err := selectProfiles(root.app, candidates, environment)
			if err != nil {
				return err
			}

			result, traceErr := root.app.service.TraceChain(ctx, profiles, args[0], logPath)
			if result != nil && !quiet {
				for _, line := range result.Log {
					fmt.Println(dimStyle.Render(line))
				}
			}
			if traceErr != nil {
				return traceErr
			}

			fmt.Println()
			fmt.Print(renderTree(result.Nodes, 0))
			fmt.Printf("\n%s %d hops, %s\n",
				titleStyle.Render("chain:"), result.TotalHops, result.Duration.Truncate(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log-path", "", "remote log directory to scan")
	cmd.Flags().StringVar(&environment, "env", "", "only try candidates tagged with this environment")
	cmd.Flags().StringSliceVar(&candidates, "candidate", nil, "candidate root profiles, tried in order (repeatable)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the step-by-step narration")
	_ = cmd.MarkFlagRequired("log-path")
	return cmd
}
