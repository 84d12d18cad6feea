//go:build !windows
// +build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchResize invokes apply whenever the controlling terminal changes size.
func watchResize(ctx context.Context, apply func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			apply()
		case <-ctx.Done():
			return
		}
	}
}
