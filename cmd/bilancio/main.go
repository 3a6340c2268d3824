package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	applog "bilancio/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.BootstrapLogger())
	logger := cli.SetupLogger(cfg)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	notifier, closeNotifier := cli.InitNotifier(logger, cfg)
	defer closeNotifier()

	engine := cli.NewEngine(logger, cfg, repo, notifier)

	srv := apphttp.NewServer(":"+cfg.Port, engine, repo, repo, apphttp.Options{
		AutoRollover: cfg.AutoRollover,
		Logger:       logger.WithComponent(applog.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting bilancio server",
		"port", cfg.Port,
		"sqlite_db", cfg.SQLiteDBPath,
		"period_start_day", cfg.PeriodStartDay,
		"horizon_months", cfg.HorizonMonths,
		"auto_rollover", cfg.AutoRollover,
		"events", cfg.EventsEnabled(),
		applog.FieldOperation, applog.OpStartup)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
