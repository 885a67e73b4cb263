package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/config"
	"github.com/tokligence/chatrelay/internal/health"
	"github.com/tokligence/chatrelay/internal/httpserver"
	"github.com/tokligence/chatrelay/internal/logging"
	"github.com/tokligence/chatrelay/internal/metrics"
	"github.com/tokligence/chatrelay/internal/version"
)

var rootFlags struct {
	configRoot string
	addr       string
	logLevel   string
	check      bool
}

var rootCmd = &cobra.Command{
	Use:   "chatrelayd",
	Short: "Streaming chat relay in front of an LLM provider",
	Long: `chatrelayd accepts a conversation on POST /chat, validates it and relays
the model's reply back as it is generated.

Configuration is read from config/setting.ini and config/<env>/chatrelay.ini
under the config root, then CHATRELAY_* environment variables.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configRoot, "config-root", ".", "directory containing config/")
	rootCmd.Flags().StringVarP(&rootFlags.addr, "addr", "a", "", "override listen address")
	rootCmd.Flags().StringVar(&rootFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&rootFlags.check, "check", false, "validate configuration and exit")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootFlags.configRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if rootFlags.addr != "" {
		cfg.HTTPAddress = rootFlags.addr
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	completer, provider, err := newCompleter(cfg)
	if err != nil {
		return err
	}
	logger.Info("chatrelay.config", append(version.LogAttrs(),
		"environment", cfg.Environment,
		"provider", provider,
		"model", cfg.Model,
		"mode", string(cfg.ValidationMode),
		"framing", string(cfg.Framing),
		"smoothing", cfg.SmoothingEnabled,
	)...)
	if rootFlags.check {
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: provider=%s model=%s\n", provider, cfg.Model)
		return nil
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
	}
	httpSrv, err := httpserver.New(httpserver.Options{
		Completer:    completer,
		Mode:         cfg.ValidationMode,
		Framing:      cfg.Framing,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
		Metrics:      collector,
		Health:       health.New(version.Info()),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      httpSrv.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatrelay.listening", "addr", cfg.HTTPAddress)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("chatrelay.shutdown", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("chatrelay.shutdown_failed", "error", err)
		return err
	}
	return nil
}

// newCompleter resolves the provider for the configured model and builds the
// per-deployment completer around it.
func newCompleter(cfg config.Config) (*adapter.Completer, string, error) {
	r, err := newProviderRouter(cfg)
	if err != nil {
		return nil, "", err
	}
	factory, provider, err := r.Select(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, "", err
	}
	completer, err := adapter.NewCompleter(adapter.CompleterConfig{
		Factory:        factory,
		Model:          cfg.Model,
		Mode:           cfg.ValidationMode,
		SystemPrompt:   cfg.SystemPrompt,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Smoothing:      cfg.SmoothingEnabled,
		SmoothingDelay: cfg.SmoothingDelay,
	})
	if err != nil {
		return nil, "", err
	}
	return completer, provider, nil
}
