// migrate applies the gateway's embedded SQL migrations (session_entries, onboarding_flows,
// gateway_events) to DATABASE_URL.
//
//	go run ./cmd/migrate -direction up
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"brokerage-gateway/internal/config"
	"brokerage-gateway/internal/db/migrate"
	"brokerage-gateway/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set; the gateway only needs migrations when it runs on Postgres")
	}
	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		logger.Fatal("migrate", zap.String("direction", *direction), zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("direction", *direction))
}
