//go:build unix

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchResume calls fn whenever the process is continued after being
// suspended, since sockets and peer connections rarely survive a stop.
func watchResume(ctx context.Context, fn func()) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGCONT)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sig:
				fn()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}
