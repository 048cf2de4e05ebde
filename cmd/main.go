package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"power_monitor/internal/config"
	"power_monitor/internal/device"
	"power_monitor/internal/logger"
	"power_monitor/internal/repository"
	"power_monitor/internal/repository/db"
	"power_monitor/internal/service"
)

func main() {
	configDir := flag.String("config", "", "directory containing config.yml")
	flag.Parse()

	// load config.yml
	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	// open event store
	repos, closeStore, err := openStore(cfg.Storage, log)
	if err != nil {
		log.Fatalw("failed to open event log", "err", err)
	}
	defer closeStore()

	// stop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// open hardware
	dev, err := device.Open(ctx, *cfg, log)
	if err != nil {
		log.Fatalw("failed to init hardware", "err", err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			log.Warnw("failed to release hardware", "err", cerr)
		}
	}()

	// wire dependencies
	services := service.NewService(repos, dev.Devices(), settingsFrom(cfg.Sampling), log)
	checkEventLog(ctx, services, dev.Devices().Display, log)

	log.Infow("power monitor started", "storage", cfg.Storage.Driver, "hardware", cfg.Hardware.Enabled)
	runErr := services.Run(ctx, dev.Signals())

	st := services.Status()
	log.Infow("power monitor stopped", "mode", st.Mode, "last_watts", st.LastWatts, "log_corrupted", st.LogCorrupted)

	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
	default:
		log.Errorw("controller failed", "err", runErr)
		closeStore()
		os.Exit(1)
	}
}

func settingsFrom(s config.SamplingConfig) service.Settings {
	return service.Settings{
		NormalInterval:       s.NormalInterval,
		LowPowerInterval:     s.LowPowerInterval,
		ShutdownGrace:        s.ShutdownGrace,
		OutageThresholdWatts: s.OutageThresholdWatts,
	}
}

// openStore builds the repository for the configured driver.
func openStore(cfg config.StorageConfig, log *logger.Logger) (*repository.Repository, func(), error) {
	if cfg.Driver != config.DriverSQLite {
		log.Infow("using json event log", "path", cfg.JSONPath)
		return repository.NewJSONRepository(cfg.JSONPath), func() {}, nil
	}

	conn, err := db.InitDB(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	log.Infow("using sqlite event log", "path", cfg.SQLitePath)
	closed := false
	return repository.NewSQLiteRepository(conn), func() {
		if closed {
			return
		}
		closed = true
		if cerr := conn.Close(); cerr != nil {
			log.Warnw("failed to close sqlite", "err", cerr)
		}
	}, nil
}

// checkEventLog reads the existing timeline once so corruption is reported
// before the first append.
func checkEventLog(ctx context.Context, svc *service.Service, display service.Display, log *logger.Logger) {
	sum, err := svc.Summarize(ctx)
	switch {
	case errors.Is(err, repository.ErrCorruptLog):
		log.Errorw("event_log_corrupt", "err", err)
		if derr := display.Show("Log corrupted"); derr != nil {
			log.Warnw("display_failed", "err", derr)
		}
	case err != nil:
		log.Errorw("event_log_unreadable", "err", err)
	default:
		log.Infow("event_log_loaded",
			"samples", sum.Samples,
			"outages", sum.Outages,
			"total_outage_s", sum.TotalOutageSeconds,
			"last", sum.Last,
		)
	}
}
