// File: cmd/hioload-proxy/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-proxy forwards every inbound TCP connection to one fixed
// destination.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/hioload-proxy/control"
	"github.com/momentics/hioload-proxy/internal/logging"
	"github.com/momentics/hioload-proxy/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	flags      control.Config
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hioload-proxy",
		Short: "Transparent TCP forwarding proxy",
		Long: `hioload-proxy accepts TCP connections and relays each one, byte for byte,
to a single fixed destination using one non-blocking event loop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			// past this point failures are runtime, not usage
			cmd.SilenceUsage = true
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file")
	f.StringVar(&opts.flags.ListenAddress, "listen-address", "0.0.0.0", "Local address to accept client connections on")
	f.IntVarP(&opts.flags.ListenPort, "listen-port", "l", 8443, "Listen port")
	f.StringVarP(&opts.flags.Destination, "destination", "H", "", "Destination host")
	f.IntVarP(&opts.flags.DestinationPort, "destination-port", "p", 443, "Destination port")
	f.IntVarP(&opts.flags.SelectInterval, "select-interval", "s", 25, "Select loop timeout in ms")
	f.IntVarP(&opts.flags.ConnectTimeout, "connect-timeout", "c", 500, "Downstream connect timeout in ms")
	f.IntVarP(&opts.flags.BufferSize, "buffer-size", "b", 8192, "Bytes to read per readiness event")
	f.IntVar(&opts.flags.MaxQueuedBytes, "max-queued-bytes", 4<<20, "Per-connection queue high-water mark in bytes, 0 disables")
	f.IntVar(&opts.flags.IdleTimeout, "idle-timeout", 0, "Close connections idle longer than this many ms, 0 disables")
	f.StringVar(&opts.flags.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.flags.LogFormat, "log-format", "console", "Log format (console, json)")
	f.StringVar(&opts.flags.LogFilePath, "log-file", "", "Rotating log file path")
	for _, hidden := range []string{"select-interval", "connect-timeout", "buffer-size"} {
		_ = f.MarkHidden(hidden)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + "\nEnvironment:\n" + control.Description() + "\n")
	return cmd
}

// loadConfig layers file or env, then explicitly set flags, and validates.
func loadConfig(cmd *cobra.Command, opts *options) (*control.Config, error) {
	cfg, err := control.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg, &opts.flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, dst, src *control.Config) {
	set := func(name string, fn func()) {
		if cmd.Flags().Changed(name) {
			fn()
		}
	}
	set("listen-address", func() { dst.ListenAddress = src.ListenAddress })
	set("listen-port", func() { dst.ListenPort = src.ListenPort })
	set("destination", func() { dst.Destination = src.Destination })
	set("destination-port", func() { dst.DestinationPort = src.DestinationPort })
	set("select-interval", func() { dst.SelectInterval = src.SelectInterval })
	set("connect-timeout", func() { dst.ConnectTimeout = src.ConnectTimeout })
	set("buffer-size", func() { dst.BufferSize = src.BufferSize })
	set("max-queued-bytes", func() { dst.MaxQueuedBytes = src.MaxQueuedBytes })
	set("idle-timeout", func() { dst.IdleTimeout = src.IdleTimeout })
	set("log-level", func() { dst.LogLevel = src.LogLevel })
	set("log-format", func() { dst.LogFormat = src.LogFormat })
	set("log-file", func() { dst.LogFilePath = src.LogFilePath })
}

func run(parent context.Context, cfg *control.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log, closeLog, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		FilePath: cfg.LogFilePath,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scfg, err := cfg.Resolve(ctx, net.DefaultResolver)
	if err != nil {
		log.Error("failed to start proxy", zap.Error(err))
		return err
	}
	log.Info("starting proxy", zap.Stringer("route", cfg))

	srv, err := server.New(scfg, log.Named("reactor"))
	if err != nil {
		log.Error("failed to start proxy", zap.Error(err))
		return fmt.Errorf("start proxy: %w", err)
	}

	probes := control.NewDebugProbes()
	control.RegisterRuntimeProbes(probes)
	control.RegisterServerProbes(probes, srv)
	stopDump := dumpOnSignal(ctx, log, probes)
	defer stopDump()

	err = srv.Run(ctx)
	log.Info("proxy stopped", zap.Any("state", probes.DumpState()))
	return err
}
