package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/config"
	"fundingflow/internal/dashboard"
	"fundingflow/internal/metrics"
	"fundingflow/internal/notify"
	"fundingflow/internal/pipeline"
	"fundingflow/logger"
	"fundingflow/reader"
	"fundingflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	once := flag.Bool("once", false, "Run a single cycle and exit")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":    cfg.App.Name,
		"version":    cfg.App.Version,
		"env":        config.CurrentEnvironment(),
		"interval":   cfg.Fetch.Interval,
		"min_spread": cfg.Arbitrage.MinSpread,
	}).Info("starting fundingflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}
	metrics.Init()
	logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)

	client := reader.NewHTTPClient(cfg.Fetch.ConnectTimeout, cfg.Fetch.RequestTimeout)
	sources := reader.NewRegistry(cfg, client)
	coordinator := pipeline.NewCoordinator(sources, cfg.Fetch.RequestTimeout)

	store := dashboard.NewStore()
	hub := dashboard.NewHub(log)
	publishers := []pipeline.Publisher{store, hub}

	var closers []func() error
	if cfg.Redis.Enabled {
		rw, err := writer.NewRedisWriter(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Error("failed to create redis writer")
			os.Exit(1)
		}
		publishers = append(publishers, rw)
		closers = append(closers, rw.Close)
	}
	if cfg.Storage.S3.Enabled {
		sw, err := writer.NewS3Writer(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("failed to create S3 writer")
			os.Exit(1)
		}
		publishers = append(publishers, sw)
	} else {
		log.WithComponent("main").Debug("S3 storage disabled; skipping writer")
	}

	telegram := notify.NewTelegramSender(cfg.Alert, nil)
	if !telegram.Configured() {
		log.WithComponent("main").Info("telegram not configured; alerts disabled")
	}
	throttle := notify.NewThrottle(cfg.Alert, telegram)

	scheduler := pipeline.NewScheduler(coordinator, cfg.Fetch.Interval, cfg.Arbitrage.MinSpread, throttle, publishers...)

	if *once {
		snap := scheduler.RunOnce(ctx)
		log.WithFields(logger.Fields{
			"opportunities": len(snap.Opportunities),
			"pairs":         snap.Metadata.TotalPairsScanned,
		}).Info("single cycle complete")
		closeAll(log, closers)
		return
	}

	server, err := dashboard.NewServer(cfg.Dashboard, log, store, hub)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				log.WithError(err).Error("dashboard server stopped")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scheduler.Run(ctx); err != nil {
			log.WithError(err).Error("scheduler stopped")
		}
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	closeAll(log, closers)
	log.Info("fundingflow stopped")
}

func closeAll(log *logger.Log, closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			log.WithError(err).Warn("failed to close writer")
		}
	}
}
