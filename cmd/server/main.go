package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linechat/linechat-server/internal/app"
	"github.com/linechat/linechat-server/internal/config"
	"github.com/linechat/linechat-server/internal/log"
)

const banner = `
 _    _ _  _ ____ ____ _  _ ____ ___
 |    | |\ | |___ |    |__| |__|  |
 |___ | | \| |___ |___ |  | |  |  |
`

func main() {
	var (
		configPath  string
		listenAddr  string
		bridgeAddr  string
		dbPath      string
		adminSecret string
		logLevel    string
	)

	root := &cobra.Command{
		Use:           "linechat-server",
		Short:         "Line-oriented TCP chat relay with a WebSocket bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := log.New("info")
			cfg, path, err := config.Load(bootLog, configPath)
			if err != nil {
				return err
			}

			// Flags beat the config file and env vars.
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("bridge-addr") {
				cfg.BridgeAddr = bridgeAddr
			}
			if cmd.Flags().Changed("database") {
				cfg.DatabasePath = dbPath
			}
			if cmd.Flags().Changed("admin-secret") {
				cfg.AdminSecret = adminSecret
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			fmt.Print(banner + "\n")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().
				Str("listen", cfg.ListenAddr).
				Str("bridge", cfg.BridgeAddr).
				Msg("starting linechat server")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config.yaml")
	root.Flags().StringVar(&listenAddr, "listen-addr", "", "native TCP listen address")
	root.Flags().StringVar(&bridgeAddr, "bridge-addr", "", "WebSocket bridge listen address")
	root.Flags().StringVar(&dbPath, "database", "", "path to the SQLite database")
	root.Flags().StringVar(&adminSecret, "admin-secret", "", "secret accepted by /admin")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "linechat-server: %v\n", err)
		os.Exit(1)
	}
}
