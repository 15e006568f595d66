package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"oft-bridge/config"
	"oft-bridge/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "oft-bridge",
	Short: "A CLI for moving omnichain fungible tokens between chains",
	Long: `oft-bridge moves an omnichain fungible token (OFT) between EVM chains. It probes
the executor gas budget the destination accepts, pays the quoted messaging fee plus
a safety margin, waits for the source receipt and keeps a local transfer history.

Examples:
  oft-bridge balance --chain amoy
  oft-bridge quote 100 OFT from bsc-testnet to amoy
  oft-bridge send 100 OFT to amoy --recipient 0x123...
  oft-bridge history --pending
  oft-bridge status <tx-hash>
  oft-bridge chains`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		flagAddr, _ := cmd.Flags().GetString("metrics-addr")
		// A broken config is reported by the command itself
		cfg, _ := config.Load()
		if addr := metricsAddr(flagAddr, cfg); addr != "" {
			metrics.Serve(cmd.Context(), addr, newLogger(cmd, "info"))
		}
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

// metricsAddr prefers the flag over the metrics_addr config key
func metricsAddr(flagAddr string, cfg *config.Config) string {
	if flagAddr != "" || cfg == nil {
		return flagAddr
	}
	return cfg.MetricsAddr
}

// newLogger builds a console logger at level, or debug with --verbose
func newLogger(cmd *cobra.Command, level string) *zap.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		level = "debug"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = !verbose
	zc.OutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return cfg
}

func printJSON(v any) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
