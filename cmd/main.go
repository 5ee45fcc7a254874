package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ackinacki-farmer/internal/accounts"
	"github.com/ackinacki-farmer/internal/ackinacki"
	"github.com/ackinacki-farmer/internal/api"
	"github.com/ackinacki-farmer/internal/config"
	"github.com/ackinacki-farmer/internal/gateway"
	"github.com/ackinacki-farmer/internal/logging"
	"github.com/ackinacki-farmer/internal/metrics"
	"github.com/ackinacki-farmer/internal/proxy"
	"github.com/ackinacki-farmer/internal/scheduler"
	"github.com/ackinacki-farmer/internal/snapshot"
	"github.com/ackinacki-farmer/internal/storage"
	"github.com/ackinacki-farmer/internal/task"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to load .env: %v", err)
	}

	configPath := os.Getenv("FARMER_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log.Infof("Starting Ackinacki farmer v%s", version)

	accts, err := accounts.LoadAccounts(cfg.Files.Accounts)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	if len(accts) == 0 {
		log.Fatalf("No accounts found in %s", cfg.Files.Accounts)
	}
	logging.Print(nil, logging.KindSuccess, "Loaded %d accounts from %s", len(accts), cfg.Files.Accounts)

	proxies, err := accounts.LoadProxies(cfg.Files.Proxies)
	if err != nil {
		log.Fatalf("Failed to load proxies: %v", err)
	}
	logging.Print(nil, logging.KindSuccess, "Loaded %d proxies from %s", len(proxies), cfg.Files.Proxies)

	errorLog, err := logging.OpenErrorLog(cfg.Files.ErrorLog)
	if err != nil {
		log.Fatalf("Failed to open error log: %v", err)
	}
	defer errorLog.Close()

	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	store, err := storage.NewStorage(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	snapshotMgr := snapshot.NewManager(store)
	defer snapshotMgr.Close()
	if err := snapshotMgr.LoadFromStorage(); err != nil {
		log.Warnf("Failed to load previous round status: %v (starting fresh)", err)
	}

	timeout := time.Duration(cfg.Client.TimeoutMs) * time.Millisecond
	backoff := gateway.Backoff{
		Attempts: cfg.Client.MaxAttempts,
		MinDelay: time.Duration(cfg.Client.MinRetryDelayMs) * time.Millisecond,
		MaxDelay: time.Duration(cfg.Client.MaxRetryDelayMs) * time.Millisecond,
	}

	var limiter *rate.Limiter
	if cfg.Client.RequestsPerSecond > 0 {
		burst := int(cfg.Client.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Client.RequestsPerSecond), burst)
	}

	gw := gateway.New(gateway.Options{
		Timeout:  timeout,
		Backoff:  backoff,
		Limiter:  limiter,
		ErrorLog: errorLog,
		Metrics:  metricsCollector,
	})

	resolver := proxy.NewResolver(proxies, proxy.Options{
		Timeout:    timeout,
		Backoff:    backoff,
		IPCheckURL: cfg.Proxy.IPCheckURL,
	})

	client := ackinacki.NewClient(gw, cfg.Client.BaseURL, *cfg.Client.RetryReads)
	runner := task.NewRunner(client, resolver, errorLog, metricsCollector, task.Options{
		PopcoinSymbol: cfg.Tasks.PopcoinSymbol,
		TaskDelay:     time.Duration(cfg.Tasks.TaskDelayMs) * time.Millisecond,
		VerifyIP:      *cfg.Proxy.VerifyIP,
	})

	sched := scheduler.New(runner, snapshotMgr, metricsCollector, scheduler.Options{
		MaxConcurrency:     cfg.Scheduler.MaxConcurrency,
		DefaultWaitSeconds: cfg.Scheduler.DefaultWaitSeconds,
		MaxWaitSeconds:     cfg.Scheduler.MaxWaitSeconds,
		WaitPaddingSeconds: cfg.Scheduler.WaitPaddingSeconds,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, snapshotMgr, metricsCollector)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Status API failed: %v", err)
			}
		}()
	}

	if err := sched.RunForever(ctx, accts); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Scheduler stopped: %v", err)
	}

	log.Info("Shutting down gracefully...")

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Status API shutdown error: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
