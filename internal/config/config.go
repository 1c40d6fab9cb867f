// Package config holds the link configuration and its environment loader.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/1ureka/simlink/internal/protocol"
)

// Role represents the user's chosen role (host or client).
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// Config stores every tunable of both roles. Environment variables seed it,
// CLI flags and interactive prompts override individual fields afterwards.
type Config struct {
	Role Role `env:"-"`

	// Shared secret compared, zero-trimmed, against Hello.Token.
	Token string `env:"SIMLINK_TOKEN" envDefault:"demo-token-123456"`

	// Host: interface to bind. Client: host name or address of the host.
	BindAddr   string `env:"SIMLINK_BIND"`
	ServerHost string `env:"SIMLINK_SERVER" envDefault:"127.0.0.1"`

	TCPPort       uint16 `env:"SIMLINK_TCP_PORT"        envDefault:"9000"`
	UDPPortServer uint16 `env:"SIMLINK_UDP_PORT_SERVER" envDefault:"9001"`
	UDPPortClient uint16 `env:"SIMLINK_UDP_PORT_CLIENT" envDefault:"9002"`

	// Rates in Hz.
	SimTickRate int `env:"SIMLINK_SIM_TICK_RATE" envDefault:"50"`
	InputRate   int `env:"SIMLINK_INPUT_RATE"    envDefault:"60"`
	StateRate   int `env:"SIMLINK_STATE_RATE"    envDefault:"25"`

	ConnectTimeout    time.Duration `env:"SIMLINK_CONNECT_TIMEOUT" envDefault:"10s"`
	IOTimeout         time.Duration `env:"SIMLINK_IO_TIMEOUT"      envDefault:"30s"`
	KeepaliveInterval time.Duration `env:"SIMLINK_KEEPALIVE"       envDefault:"3s"`
	JoinTimeout       time.Duration `env:"SIMLINK_JOIN_TIMEOUT"    envDefault:"2s"`

	QueueCapacity int     `env:"SIMLINK_QUEUE_CAPACITY" envDefault:"128"`
	DropRate      float64 `env:"SIMLINK_DROP_RATE"      envDefault:"0"`

	CarID       uint8  `env:"SIMLINK_CAR_ID" envDefault:"1"`
	DisplayName string `env:"SIMLINK_NAME"   envDefault:"controller"`

	// Address of the diagnostics HTTP server; empty disables it.
	MonitorAddr string `env:"SIMLINK_MONITOR"`

	StatsInterval time.Duration `env:"SIMLINK_STATS_INTERVAL" envDefault:"10s"`
	Debug         bool          `env:"SIMLINK_DEBUG"`
}

// Load returns the configuration with defaults applied and SIMLINK_*
// environment overrides parsed.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in defaults, ignoring the environment.
func Default() *Config {
	var cfg Config
	// Only envDefault tags apply here, so an error is a broken tag.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

// Validate reports every inconsistent value, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	ports := []struct {
		name string
		port uint16
	}{{"tcp", c.TCPPort}, {"udp server", c.UDPPortServer}, {"udp client", c.UDPPortClient}}
	for _, p := range ports {
		if p.port == 0 {
			errs = append(errs, fmt.Errorf("%s port must be in [1,65535]", p.name))
		}
	}
	if c.Token == "" || len(c.Token) > protocol.TokenSize {
		errs = append(errs, fmt.Errorf("token must be 1..%d bytes, got %d", protocol.TokenSize, len(c.Token)))
	}
	rates := []struct {
		name string
		hz   int
	}{{"sim tick", c.SimTickRate}, {"input", c.InputRate}, {"state", c.StateRate}}
	for _, r := range rates {
		if r.hz < 1 || r.hz > 255 {
			errs = append(errs, fmt.Errorf("%s rate %d out of range [1,255]", r.name, r.hz))
		}
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		errs = append(errs, fmt.Errorf("drop rate %v out of range [0,1]", c.DropRate))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue capacity %d must be positive", c.QueueCapacity))
	}
	if len(c.DisplayName) > protocol.MaxPayloadSize-protocol.TokenSize-4 {
		errs = append(errs, errors.New("display name too long"))
	}
	if c.Role == RoleClient && c.ServerHost == "" {
		errs = append(errs, errors.New("server host is required"))
	}
	return errors.Join(errs...)
}

// TickInterval converts a rate in Hz to a ticker period.
func TickInterval(hz int) time.Duration {
	if hz <= 0 {
		hz = 1
	}
	return time.Second / time.Duration(hz)
}
