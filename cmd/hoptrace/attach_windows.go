//go:build windows
// +build windows

package main

import (
	"context"
	"time"
)

// watchResize polls for size changes; Windows has no SIGWINCH. The remote
// side only sees a window-change request when the size actually differs.
func watchResize(ctx context.Context, apply func()) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			apply()
		case <-ctx.Done():
			return
		}
	}
}
