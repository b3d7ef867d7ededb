package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"veritas/cmd/veritas/console"
	"veritas/internal/backend"
	"veritas/internal/config"
	"veritas/internal/logging"
	"veritas/internal/workflow"
)

var (
	// Global flags
	verbose    bool
	configPath string
	baseURL    string
	jsonOutput bool

	// Console flags
	openScanID string

	// cfg is resolved once per invocation in PersistentPreRunE.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "VERITAS - forensic content analysis console",
	Long: `VERITAS is a terminal client for the VERITAS analysis service.

A scan moves through four stages:
  1. Triage: submit text or a file, receive a deception score and routing
  2. Deep-Dive: inspect the forensic findings for a scan
  3. Adjudication: escalate a routed scan for a final verdict
  4. Reconstruction: revert content judged manipulated

Run without arguments to start the interactive console.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runConsole,
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		// The console owns the terminal; everything else logs to stderr.
		sink := logging.SinkStderr
		if cmd == rootCmd {
			sink = logging.SinkFile
		}
		if err := logging.Initialize(cfg.Logging, sink); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.Boot("config resolved (base_url=%s)", cfg.Backend.BaseURL)
		return nil
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Analysis service base URL (overrides config and VERITAS_BASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON (headless commands)")

	rootCmd.Flags().StringVar(&openScanID, "scan", "", "Open the deep-dive panel for this scan id at startup")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(deepDiveCmd)
	rootCmd.AddCommand(adjudicateCmd)
	rootCmd.AddCommand(reconstructCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(stubServerCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies env and flag overrides.
func loadConfig() (*config.Config, error) {
	config.LoadDotEnv()
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return c, nil
}

func applyFlagOverrides(c *config.Config) {
	if baseURL != "" {
		c.Backend.BaseURL = baseURL
	}
	if verbose {
		c.Logging.Level = "debug"
	}
}

func newBackend(c *config.Config) (workflow.Backend, error) {
	return backend.NewFromConfig(c)
}

// runConsole starts the interactive console with config hot-reload.
func runConsole(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	opts := console.Options{
		Config:     cfg,
		NewBackend: newBackend,
		ScanID:     openScanID,
	}

	watcher, err := config.NewWatcher(configPath, func(err error) {
		logging.Get(logging.CategoryConfig).Warn("config reload failed: %v", err)
	})
	if err == nil {
		if err := watcher.Start(ctx); err != nil {
			logging.Get(logging.CategoryConfig).Warn("config watch disabled: %v", err)
		} else {
			defer watcher.Stop()
			opts.Reloads = withOverrides(ctx, watcher.Reloads())
		}
	} else {
		logging.Get(logging.CategoryConfig).Warn("config watch disabled: %v", err)
	}

	return console.Run(opts)
}

// withOverrides re-applies command-line overrides to reloaded configs so a
// file edit never undoes --base-url.
func withOverrides(ctx context.Context, in <-chan *config.Config) <-chan *config.Config {
	out := make(chan *config.Config, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-in:
				if !ok {
					return
				}
				applyFlagOverrides(c)
				if err := c.Validate(); err != nil {
					logging.Get(logging.CategoryConfig).Warn("ignoring reloaded config: %v", err)
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
