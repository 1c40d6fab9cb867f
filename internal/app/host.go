// Package app contains the top-level orchestration for host and client roles.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/monitor"
	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/session"
	"github.com/1ureka/simlink/internal/sim"
	"github.com/1ureka/simlink/internal/util"
)

const statusInterval = 5 * time.Second

// RunHost orchestrates the full host lifecycle:
//  1. Bind the stream listener and the Input datagram socket
//  2. Start the optional diagnostics server
//  3. Step the car model at the simulation rate, draining the channels first
//  4. Send State at the telemetry rate while a session is authenticated
//  5. Return when ctx is cancelled
func RunHost(ctx context.Context, cfg *config.Config) error {
	car := sim.NewCar()
	host := session.NewHost(cfg, car, protocol.NewStopwatch())
	if err := host.Start(); err != nil {
		return err
	}
	defer host.Close()

	host.Subscribe(logHostEvent)
	stopMonitor, err := startMonitor(cfg, "host", host.State, &host.Observers)
	if err != nil {
		return err
	}
	defer stopMonitor()

	util.StartStatsReporter(ctx, cfg.StatsInterval)
	util.LogSuccess("host ready (tcp :%d, udp :%d, sim %dHz, state %dHz, drop %.0f%%)",
		cfg.TCPPort, cfg.UDPPortServer, cfg.SimTickRate, cfg.StateRate, cfg.DropRate*100)

	simTicker := time.NewTicker(config.TickInterval(cfg.SimTickRate))
	defer simTicker.Stop()
	stateTicker := time.NewTicker(config.TickInterval(cfg.StateRate))
	defer stateTicker.Stop()
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	dt := config.TickInterval(cfg.SimTickRate).Seconds()
	for {
		select {
		case <-simTicker.C:
			host.Tick()
			car.Step(dt)

		case <-stateTicker.C:
			if err := host.SendState(); err != nil && !errors.Is(err, session.ErrNotConnected) {
				util.LogWarning("send state: %v", err)
			}

		case <-statusTicker.C:
			if info, ok := host.Session(); ok {
				st := car.Snapshot()
				util.LogInfo("session %d %q | %5.1f km/h | %4.0f rpm | gear %d | input seq %d",
					info.ID, info.DisplayName, st.SpeedKmh, st.RPM, st.Gear, st.LastProcessedInputSeq)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func logHostEvent(e session.Event) {
	switch e.Kind {
	case session.EventAuthFailed:
		util.LogWarning("rejected controller %s: %v", e.Remote, e.Err)
	case session.EventDisconnected:
		if e.Session.ID != 0 {
			util.LogInfo("session %d ended", e.Session.ID)
		}
	}
}

// startMonitor starts the diagnostics server when an address is configured
// and subscribes it to events. The returned func stops it.
func startMonitor(cfg *config.Config, role string, state func() session.State, events *session.Observers) (func(), error) {
	if cfg.MonitorAddr == "" {
		return func() {}, nil
	}
	mon := monitor.New(role, state)
	if _, err := mon.Start(cfg.MonitorAddr); err != nil {
		return nil, err
	}
	events.Subscribe(mon.Publish)
	return func() { mon.Close() }, nil
}
