//go:build windows
// +build windows

package main

import (
	"context"

	"github.com/momentics/hioload-proxy/control"
	"go.uber.org/zap"
)

func dumpOnSignal(context.Context, *zap.Logger, *control.DebugProbes) func() {
	return func() {}
}
