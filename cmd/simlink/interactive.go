package main

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/util"
)

// runInteractive asks for the role and the few values that have no sensible
// default, then runs that role.
func runInteractive(ctx context.Context, cfg *config.Config) error {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host   — Run the car simulation", "Client — Drive a remote car"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		cfg.Role = config.RoleHost
		cfg.TCPPort = askPort("TCP port to listen on", cfg.TCPPort)
		return runHost(ctx, cfg)
	}

	cfg.Role = config.RoleClient
	cfg.ServerHost, cfg.TCPPort = askServer(cfg.TCPPort)
	cfg.Token = askText("Session token", cfg.Token)
	return runClient(ctx, cfg, protocol.Input{})
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string, def uint16) uint16 {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			WithDefaultValue(strconv.Itoa(int(def))).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return uint16(port)
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askServer prompts for "host" or "host:port" until it parses.
func askServer(defPort uint16) (string, uint16) {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host address (e.g. 192.168.1.20 or sim.local:9000)").
			Show()

		raw = strings.TrimSpace(raw)
		if raw == "" {
			util.LogWarning("invalid input: please enter a host")
			continue
		}
		if h, p, err := net.SplitHostPort(raw); err == nil {
			if port, err := strconv.Atoi(p); err == nil && port >= 1 && port <= 65535 && h != "" {
				pterm.Println()
				return h, uint16(port)
			}
			util.LogWarning("invalid input: bad port in %q", raw)
			continue
		}
		pterm.Println()
		return raw, defPort
	}
}

func askText(prompt, def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		WithDefaultValue(def).
		Show()
	pterm.Println()
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return def
}
