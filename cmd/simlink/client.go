package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/1ureka/simlink/internal/app"
	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/util"
)

func clientCmd(ctx context.Context, cfg *config.Config) *cobra.Command {
	var steer, throttle, brake float32

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run a controller",
		Long: `Connect to a simulation host and drive.

A steady input is sent at the input rate; change it and issue discrete
commands on stdin (type "help" for the list).

Examples:
  simlink client --server 192.168.1.20
  simlink client --server sim.local --name wheel-1 --throttle 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleClient
			input := protocol.Input{Steer: steer, Throttle: throttle, Brake: brake}
			return runClient(ctx, cfg, input)
		},
	}

	cmd.Flags().StringVarP(&cfg.ServerHost, "server", "s", cfg.ServerHost, "Host name or address of the simulation host")
	cmd.Flags().StringVarP(&cfg.DisplayName, "name", "n", cfg.DisplayName, "Display name sent in Hello")
	cmd.Flags().IntVar(&cfg.InputRate, "rate", cfg.InputRate, "Input send rate in Hz")
	cmd.Flags().Float32Var(&steer, "steer", 0, "Initial steering, -1..1")
	cmd.Flags().Float32Var(&throttle, "throttle", 0, "Initial throttle, 0..1")
	cmd.Flags().Float32Var(&brake, "brake", 0, "Initial brake, 0..1")

	return cmd
}

// runClient executes the controller loop with stdin as the command source.
func runClient(ctx context.Context, cfg *config.Config, input protocol.Input) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := app.RunClient(ctx, cfg, input, os.Stdin); err != nil {
		return err
	}
	util.LogInfo("controller stopped")
	return nil
}
