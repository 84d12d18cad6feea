package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAttachCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id|label|host>",
		Short: "Open an interactive shell on a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			profile, err := findProfile(root.app, args[0])
			if err != nil {
				return err
			}

			stdinFd := int(os.Stdin.Fd())
			if !term.IsTerminal(stdinFd) {
				return fmt.Errorf("attach needs an interactive terminal")
			}

			cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
			if err != nil {
				cols, rows = 80, 24
			}

			id, events, err := root.app.service.OpenTerminal(ctx, profile, cols, rows)
			if err != nil {
				return err
			}
			defer root.app.service.CloseTerminal(id)

			rawState, err := term.MakeRaw(stdinFd)
			if err != nil {
				return fmt.Errorf("failed to set raw terminal: %v", err)
			}
			defer func() {
				if err := term.Restore(stdinFd, rawState); err != nil {
					fmt.Fprintf(os.Stderr, "failed to restore terminal state: %v\n", err)
				}
			}()

			go pumpStdin(root, id)
			go watchResize(ctx, func() {
				if c, r, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					_ = root.app.service.ResizeTerminal(id, c, r)
				}
			})

			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if len(ev.Data) > 0 {
						os.Stdout.Write(ev.Data)
					}
				case <-ctx.Done():
					root.app.service.CloseTerminal(id)
					for ev := range events {
						if len(ev.Data) > 0 {
							os.Stdout.Write(ev.Data)
						}
					}
					return nil
				}
			}
		},
	}
}

// pumpStdin forwards local keystrokes to the session until stdin ends or
// the session goes away. Reads on os.Stdin cannot be interrupted, so the
// pump simply dies with the process.
func pumpStdin(root *rootOptions, sessionID string) {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if sendErr := root.app.service.SendInput(sessionID, buf[:n]); sendErr != nil {
				return
			}
		}
		if err != nil {
			root.app.service.CloseTerminal(sessionID)
			return
		}
	}
}
