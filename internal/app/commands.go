package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/session"
)

// controlClient is the part of session.Client the command set drives.
type controlClient interface {
	SetGear(int8) error
	ToggleHeadlights(bool) error
	SetIndicator(protocol.IndicatorMode) error
	SetCameraFocus(protocol.CameraPart) error
	ResetCar() error
	SetDropRate(float64)
}

var _ controlClient = (*session.Client)(nil)

// controller is the mutable state commands act on. It is owned by the client
// loop goroutine.
type controller struct {
	client controlClient
	input  protocol.Input
	quit   bool
}

type command func(*controller) error

// commandHelp lists the accepted console commands.
const commandHelp = `commands:
  gear N                          select gear -1..6
  lights on|off                   headlights
  indicator off|left|right|hazard turn signals
  camera PART                     fl-wheel fr-wheel rl-wheel rr-wheel engine
                                  exhaust steering brake-caliper suspension dashboard
  reset                           put the car back at the start
  steer X | throttle X | brake X  change the driving input
  handbrake on|off
  drop P                          simulated State loss, 0..1
  quit`

// parseCommand turns one console line into a command. Blank lines and
// comments yield a nil command and no error.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil, nil
	}
	name, args := fields[0], fields[1:]

	arg := func() (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("%s: expected one argument", name)
		}
		return args[0], nil
	}

	switch name {
	case "quit", "exit":
		return func(c *controller) error { c.quit = true; return nil }, nil

	case "reset":
		return func(c *controller) error { return c.client.ResetCar() }, nil

	case "help":
		return func(*controller) error { fmt.Println(commandHelp); return nil }, nil

	case "gear":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		g, err := strconv.ParseInt(a, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("gear: %q is not a number", a)
		}
		m := protocol.SetGear{Gear: int8(g)}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return func(c *controller) error { return c.client.SetGear(m.Gear) }, nil

	case "lights", "handbrake":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		on, err := parseOnOff(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if name == "lights" {
			return func(c *controller) error { return c.client.ToggleHeadlights(on) }, nil
		}
		return func(c *controller) error {
			c.input.Handbrake = 0
			if on {
				c.input.Handbrake = 1
			}
			return nil
		}, nil

	case "indicator":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		mode, err := protocol.ParseIndicator(a)
		if err != nil {
			return nil, err
		}
		return func(c *controller) error { return c.client.SetIndicator(mode) }, nil

	case "camera":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		part, err := protocol.ParseCameraPart(a)
		if err != nil {
			return nil, err
		}
		return func(c *controller) error { return c.client.SetCameraFocus(part) }, nil

	case "steer", "throttle", "brake":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", name, a)
		}
		return func(c *controller) error {
			next := c.input
			switch name {
			case "steer":
				next.Steer = float32(v)
			case "throttle":
				next.Throttle = float32(v)
			case "brake":
				next.Brake = float32(v)
			}
			if err := next.Validate(); err != nil {
				return err
			}
			c.input = next
			return nil
		}, nil

	case "drop":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		p, err := strconv.ParseFloat(a, 64)
		if err != nil || p < 0 || p > 1 {
			return nil, fmt.Errorf("drop: %q must be a number in [0,1]", a)
		}
		return func(c *controller) error { c.client.SetDropRate(p); return nil }, nil
	}

	return nil, fmt.Errorf("unknown command %q (try help)", name)
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
