// Command simlink runs the remote car controller link as host or client.
//
// This tool links a remote controller to a car simulation host over two
// channels: a TCP stream for the handshake and discrete commands, and UDP
// datagrams for high-rate input and telemetry.
//
// It can be launched interactively (no subcommand) or non-interactively via
// the host and client subcommands. Every flag default can also be set through
// a SIMLINK_* environment variable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "simlink",
		Short: "Remote controller link for a car simulation",
		Long: `Simlink connects a remote controller to a simulation host.

The controller authenticates over TCP, then streams driving input over UDP
while the host streams vehicle telemetry back. Discrete commands (gear,
lights, indicator, camera, reset) travel on the reliable TCP channel.

Run without a subcommand for interactive prompts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Debug {
				util.EnableDebug()
			}
			pterm.Info.Println(fmt.Sprintf("Simlink — v%s", version))
			pterm.Println()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(ctx, cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "Shared session token (max 16 bytes)")
	flags.Uint16Var(&cfg.TCPPort, "port", cfg.TCPPort, "Host TCP port")
	flags.Uint16Var(&cfg.UDPPortServer, "udp-port", cfg.UDPPortServer, "Host UDP port (input)")
	flags.Uint16Var(&cfg.UDPPortClient, "callback-port", cfg.UDPPortClient, "Controller UDP port (telemetry)")
	flags.Float64Var(&cfg.DropRate, "drop", cfg.DropRate, "Simulated datagram loss on receive, 0..1")
	flags.StringVar(&cfg.MonitorAddr, "monitor", cfg.MonitorAddr, "Serve /healthz, /metrics and /events on this address")
	flags.DurationVar(&cfg.StatsInterval, "stats", cfg.StatsInterval, "Traffic report interval")

	rootCmd.AddCommand(
		hostCmd(ctx, cfg),
		clientCmd(ctx, cfg),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("simlink %s\n", version)
		},
	}
}
