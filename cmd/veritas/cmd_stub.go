package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"veritas/internal/stubserver"
)

var (
	stubAddr    string
	stubSeed    int64
	stubLatency time.Duration
)

// stubServerCmd runs an in-process stand-in for the analysis service
var stubServerCmd = &cobra.Command{
	Use:   "stub-server",
	Short: "Run a local stand-in for the analysis service",
	Long: `Serves the analysis API with generated results so the console and the
headless commands can be exercised without the real service.

Example:
  veritas stub-server --addr 127.0.0.1:8000 --seed 7
  veritas --base-url http://127.0.0.1:8000 scan --text "..." --escalate`,
	RunE: runStubServer,
}

func init() {
	stubServerCmd.Flags().StringVar(&stubAddr, "addr", "", "Listen address (default: stub_server.addr)")
	stubServerCmd.Flags().Int64Var(&stubSeed, "seed", 0, "RNG seed for reproducible results (default: stub_server.seed)")
	stubServerCmd.Flags().DurationVar(&stubLatency, "latency", 0, "Delay added to adjudication and reconstruction (default: stub_server.latency)")
}

func runStubServer(cmd *cobra.Command, args []string) error {
	opts := stubserver.Options{Seed: cfg.StubServer.Seed, Latency: cfg.GetStubLatency()}
	if cmd.Flags().Changed("seed") {
		opts.Seed = stubSeed
	}
	if cmd.Flags().Changed("latency") {
		opts.Latency = stubLatency
	}
	addr := cfg.StubServer.Addr
	if stubAddr != "" {
		addr = stubAddr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	srv := stubserver.New(opts)
	return srv.Serve(ctx, addr, func(a net.Addr) {
		fmt.Fprintf(cmd.OutOrStdout(), "stub backend listening on http://%s (ctrl+c to stop)\n", a)
	})
}
