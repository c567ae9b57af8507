package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"zgrid/internal/client"
	"zgrid/internal/config"
)

var (
	cfgPath string
	verbose bool
	jsonOut bool
	version = config.Version
)

var rootCmd = &cobra.Command{
	Use:     "zgrid",
	Short:   "zgrid — grid coordinator and versioned table store",
	Long:    "zgrid queues compute jobs, dispatches them to pull-based workers weighted by priority, and serves point-in-time reads over versioned, userspace-layered tables.",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output JSON")
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

// resolveConfigPath determines which config file to use.
// Priority: --config flag > ./zgrid.toml > ~/.config/zgrid/config.toml.
// Returns "" when no file exists, in which case defaults apply.
func resolveConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	if _, err := os.Stat("zgrid.toml"); err == nil {
		return "zgrid.toml"
	}
	globalPath, err := config.GlobalConfigPath()
	if err == nil {
		if _, err := os.Stat(globalPath); err == nil {
			return globalPath
		}
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func coordinatorClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Worker.CoordinatorURL)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
