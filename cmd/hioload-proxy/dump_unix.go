//go:build !windows
// +build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/hioload-proxy/control"
	"go.uber.org/zap"
)

// dumpOnSignal logs every probe value on SIGUSR1 until ctx ends.
func dumpOnSignal(ctx context.Context, log *zap.Logger, probes *control.DebugProbes) func() {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				log.Info("debug state", zap.Any("state", probes.DumpState()))
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		cancel()
		<-done
	}
}
