package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/provas/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cached images and produced JSON for local review.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		router := api.NewRouter(cfg, time.Now())
		srv := &http.Server{
			Addr:    cfg.Preview.Addr(),
			Handler: router,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("preview server listening",
				"addr", srv.Addr,
				"images", cfg.Images.ServePrefix,
				"outputs", cfg.Output.Dir,
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
			slog.Info("shutdown signal received")
		}

		// Give in-flight requests 5 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
			return err
		}
		slog.Info("preview server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
