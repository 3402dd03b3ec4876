package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "provas",
	Short:         "provas extracts exam questions from the question bank into JSON.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $PROVAS_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	// SIGINT/SIGTERM cancel the context; deferred closes in the pipeline
	// then kill the browser.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration, then sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	initLogger(cfg.Log)
	return cfg, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	slog.SetDefault(slog.New(handler))
}

// describe turns err into the one-line message printed before exiting.
func describe(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		if msg := err.Error(); msg != context.Canceled.Error() {
			return "interrupted: " + msg
		}
		return "interrupted"
	case models.IsAuth(err):
		return "login failed: " + err.Error()
	case models.IsStructural(err):
		return "the site did not look as expected (a debug dump was saved): " + err.Error()
	case models.HasCode(err, models.ErrCodeNoExamsFound):
		return "no exams are available: " + err.Error()
	case models.HasCode(err, models.ErrCodeNoQuestions):
		return "no questions were captured: " + err.Error()
	}
	return "error: " + err.Error()
}
