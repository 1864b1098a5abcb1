package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"market_pulse/internal/app"
	"market_pulse/internal/domain"
	"market_pulse/internal/infra"

	"github.com/spf13/cobra"

	_ "net/http/pprof" // For pprof profiling
)

var (
	configPath string
	envPath    string
	pprofAddr  string
)

var rootCmd = &cobra.Command{
	Use:   "market-pulse",
	Short: "Market data service with synthetic fallback",
	Long: `Market Pulse serves stock, crypto and forex series over REST and pushes
market snapshots to websocket subscribers. When a provider is unavailable
the service answers with synthetic data of the same shape.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the real-time broadcaster",
	RunE:  runServe,
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Seed and print the asset catalog",
	RunE:  runAssets,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", infra.DefaultConfigPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to an optional .env file")
	serveCmd.Flags().StringVar(&pprofAddr, "pprof", "", "listen address for pprof (e.g. localhost:6060), disabled when empty")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd, assetsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newBootstrap() *app.Bootstrap {
	b := app.NewBootstrap(configPath)
	b.EnvPath = envPath
	return b
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", pprofAddr))
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	bootstrap := newBootstrap()
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return err
	}
	defer bootstrap.Close()

	return bootstrap.Run(ctx)
}

func runAssets(cmd *cobra.Command, _ []string) error {
	bootstrap := newBootstrap()
	if err := bootstrap.Initialize(cmd.Context()); err != nil {
		return err
	}
	defer bootstrap.Close()

	out := cmd.OutOrStdout()
	for _, class := range domain.Classes {
		assets, err := bootstrap.Storage.ListAssets(class)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%d)\n", class, len(assets))
		for _, a := range assets {
			if a.ProviderID != "" {
				fmt.Fprintf(out, "  %-10s %-20s %s\n", a.Symbol, a.Name, a.ProviderID)
			} else {
				fmt.Fprintf(out, "  %-10s %s\n", a.Symbol, a.Name)
			}
		}
	}
	return nil
}
