package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	opshttp "github.com/stratops/stratroll/internal/interfaces/http"
)

func runServe(cmd *cobra.Command, args []string) error {
	registry := prometheus.NewRegistry()
	hub := opshttp.NewSignalHub()

	rt, err := newRuntime(cmd, registry, hub)
	if err != nil {
		hub.Close()
		return err
	}
	defer rt.Close()

	handlers := opshttp.NewHandlers(rt.manager, version)
	server, err := opshttp.NewServer(rt.cfg.HTTP, handlers, hub, registry)
	if err != nil {
		hub.Close()
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Address()).
			Str("health", fmt.Sprintf("http://%s/health", server.Address())).
			Str("rollout", fmt.Sprintf("http://%s/rollout", server.Address())).
			Str("routing", fmt.Sprintf("http://%s/routing", server.Address())).
			Str("metrics", fmt.Sprintf("http://%s/metrics", server.Address())).
			Str("signals", fmt.Sprintf("ws://%s/ws/signals", server.Address())).
			Msg("ops server listening")

		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("ops server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown error")
		return err
	}

	log.Info().Msg("ops server shutdown complete")
	return nil
}
