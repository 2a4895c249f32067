// Command simbackend serves the simulated attendance backend on its own, for
// driving a console or the API by hand without sensor hardware.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fpconsole/internal/auth"
	"fpconsole/internal/config"
	"fpconsole/internal/logger"
	"fpconsole/internal/simulation"
)

func main() {
	logger.Init()
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := simulation.Options{CompleteAfter: cfg.SimCompleteAfter, Seed: true}
	if cfg.JWTSigningKey != "" {
		opts.Issuer = auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	}
	sim := simulation.New(opts)

	port := cfg.SimPort
	if port == "0" {
		port = "8000"
	}
	url, shutdown, err := sim.Listen(":" + port)
	if err != nil {
		logger.LogError("simulated backend failed", err)
		os.Exit(1)
	}
	logger.LogInfo("simulated backend listening", "url", url, "sensor", simulation.SensorType)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		logger.LogError("simulated backend forced shutdown", err)
	}
}
