// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Proxy configuration: YAML file and environment via cleanenv, validation,
// and one-shot resolution into the engine's server.Config.

package control

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/server"
)

// Config holds every externally supplied option. Durations are in
// milliseconds to keep the file and env formats plain integers.
type Config struct {
	ListenAddress   string `yaml:"ListenAddress" env:"PROXY_LISTEN_ADDRESS" env-default:"0.0.0.0" env-description:"Local address to accept client connections on"`
	ListenPort      int    `yaml:"ListenPort" env:"PROXY_LISTEN_PORT" env-default:"8443" env-description:"Local port to accept client connections on"`
	Destination     string `yaml:"Destination" env:"PROXY_DESTINATION" env-description:"Backend host name or address (required)"`
	DestinationPort int    `yaml:"DestinationPort" env:"PROXY_DESTINATION_PORT" env-default:"443" env-description:"Backend port"`
	SelectInterval  int    `yaml:"SelectInterval" env:"PROXY_SELECT_INTERVAL" env-default:"25" env-description:"Readiness wait per tick in ms"`
	ConnectTimeout  int    `yaml:"ConnectTimeout" env:"PROXY_CONNECT_TIMEOUT" env-default:"500" env-description:"Backend connect timeout in ms"`
	BufferSize      int    `yaml:"BufferSize" env:"PROXY_BUFFER_SIZE" env-default:"8192" env-description:"Bytes read per readiness event"`
	MaxQueuedBytes  int    `yaml:"MaxQueuedBytes" env:"PROXY_MAX_QUEUED_BYTES" env-default:"4194304" env-description:"Per-half queue high-water mark in bytes, 0 disables"`
	IdleTimeout     int    `yaml:"IdleTimeout" env:"PROXY_IDLE_TIMEOUT" env-default:"0" env-description:"Close pairs idle longer than this many ms, 0 disables"`

	LogLevel    string `yaml:"LogLevel" env:"LOG_LEVEL" env-default:"info" env-description:"Defines logger's log level"`
	LogFormat   string `yaml:"LogFormat" env:"LOG_FORMAT" env-default:"console" env-description:"Defines logger's encoding, valid values are 'json' and 'console'"`
	LogFilePath string `yaml:"LogFilePath" env:"LOG_FILE_PATH" env-description:"Defines a file path to write logs into"`
}

// Load reads path when given, otherwise the environment alone. Defaults
// come from the env-default tags either way.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

// Description renders the env variable help for usage output.
func Description() string {
	text, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return text
}

// Validate checks ranges before anything is resolved or bound.
func (c *Config) Validate() error {
	if err := validPort("listen port", c.ListenPort); err != nil {
		return err
	}
	if err := validPort("destination port", c.DestinationPort); err != nil {
		return err
	}
	if c.Destination == "" {
		return fmt.Errorf("%w: destination host is required", api.ErrInvalidConfig)
	}
	for _, v := range []struct {
		name string
		val  int
	}{
		{"select interval", c.SelectInterval},
		{"connect timeout", c.ConnectTimeout},
		{"buffer size", c.BufferSize},
	} {
		if v.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", api.ErrInvalidConfig, v.name, v.val)
		}
	}
	if c.MaxQueuedBytes < 0 {
		return fmt.Errorf("%w: max queued bytes must not be negative", api.ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", api.ErrInvalidConfig)
	}
	return nil
}

func validPort(name string, p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("%w: invalid %s %d", api.ErrInvalidConfig, name, p)
	}
	return nil
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Resolve validates c and turns it into the engine configuration. Host
// names are resolved once here; the first address returned wins.
func (c *Config) Resolve(ctx context.Context, r Resolver) (*server.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		r = net.DefaultResolver
	}
	listen, err := lookup(ctx, r, c.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: listen address: %w", api.ErrInvalidConfig, err)
	}
	dest, err := lookup(ctx, r, c.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: could not resolve hostname %s: %w", api.ErrInvalidConfig, c.Destination, err)
	}

	out := server.DefaultConfig()
	out.ListenAddr = netip.AddrPortFrom(listen, uint16(c.ListenPort))
	out.Destination = netip.AddrPortFrom(dest, uint16(c.DestinationPort))
	out.TickInterval = ms(c.SelectInterval)
	out.ConnectTimeout = ms(c.ConnectTimeout)
	out.ReadChunkSize = c.BufferSize
	out.MaxQueuedBytes = c.MaxQueuedBytes
	out.IdleTimeout = ms(c.IdleTimeout)
	return out, nil
}

func lookup(ctx context.Context, r Resolver, host string) (netip.Addr, error) {
	if host == "" {
		return netip.IPv4Unspecified(), nil
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap(), nil
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no addresses for %s", host)
	}
	return addrs[0].Unmap(), nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// String renders the endpoints for the startup log line.
func (c *Config) String() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.ListenPort)) + " -> " +
		net.JoinHostPort(c.Destination, strconv.Itoa(c.DestinationPort))
}
