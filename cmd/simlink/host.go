package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/1ureka/simlink/internal/app"
	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/util"
)

func hostCmd(ctx context.Context, cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the simulation host",
		Long: `Run the simulation host with the built-in car model.

The host accepts one controller at a time; a new connection replaces the
current one. Input is applied at the simulation rate and telemetry is sent
at the state rate.

Examples:
  simlink host
  simlink host --port 9000 --udp-port 9001 --token demo-token-123456
  simlink host --drop 0.1 --monitor 127.0.0.1:9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleHost
			return runHost(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "Interface to bind (default all)")
	cmd.Flags().IntVar(&cfg.SimTickRate, "tick", cfg.SimTickRate, "Simulation rate in Hz")
	cmd.Flags().IntVar(&cfg.StateRate, "state-rate", cfg.StateRate, "Telemetry rate in Hz")
	cmd.Flags().Uint8Var(&cfg.CarID, "car", cfg.CarID, "Car id announced in Welcome")

	return cmd
}

// runHost executes the host-side loop.
func runHost(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := app.RunHost(ctx, cfg); err != nil {
		return err
	}
	util.LogInfo("host stopped")
	return nil
}
