package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/parley/internal/app"
	"github.com/vovakirdan/parley/internal/config"
	applog "github.com/vovakirdan/parley/internal/log"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	root := &cobra.Command{
		Use:           "parley",
		Short:         "Real-time chat server with rooms, presence and call signaling",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath, addr)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default is ./config.yaml)")
	root.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath, addr)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")

	root.AddCommand(serveCmd, newUseraddCmd(&configPath))
	return root
}

func loadConfig(configPath string) (config.Config, error) {
	bootLog := applog.New("info", "console")
	cfg, path, err := config.Load(bootLog, configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func serve(parent context.Context, configPath, addr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.JWTSecret == config.Default().JWTSecret {
		logger.Warn().Msg("jwt_secret is the default value; set PARLEY_JWT_SECRET in production")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
