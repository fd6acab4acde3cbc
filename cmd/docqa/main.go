package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa-service/internal/bootstrap"
	"docqa-service/internal/cli"
	"docqa-service/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	cli.SetJWT(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
	cli.SetServiceFactory(func(ctx context.Context) (cli.QAService, func() error, error) {
		app, err := bootstrap.NewWithConfig(ctx, cfg, bootstrap.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap failed: %w", err)
		}
		return app.QA, app.Close, nil
	})

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
