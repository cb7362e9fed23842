package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"time"

	"zetafin/internal/backend"
	"zetafin/internal/cache"
	"zetafin/internal/cli"
	"zetafin/internal/config"
	"zetafin/internal/core"
	apphttp "zetafin/internal/http"
	"zetafin/internal/log"
	"zetafin/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger)
	categories, err := cfg.LoadCategories()
	if err != nil {
		logger.Error("Failed to load categories", "error", err, "file", cfg.CategoriesFile)
		os.Exit(1)
	}
	bc := cli.BackendConfig(logger, cfg)
	factory := backend.NewFactory(nil)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	store := cli.OpenStore(startCtx, logger, factory, bc, cfg.SeedUsers)
	defer store.Close()

	files, closeFiles, err := factory.CreateFiles(startCtx, bc)
	if err != nil {
		logger.Error("Failed to initialize file storage", "error", err, "backend", bc.Blob.String())
		store.Close()
		os.Exit(1)
	}
	defer closeFiles()

	provider, err := factory.CreateOCR(startCtx, bc, files)
	if err != nil {
		logger.Error("Failed to initialize OCR provider", "error", err, "provider", bc.OCR.String())
		store.Close()
		os.Exit(1)
	}

	dispatch, err := factory.CreateDispatch(bc)
	if err != nil {
		logger.Error("Failed to initialize OCR dispatch", "error", err, "dispatch", bc.Dispatch.String())
		store.Close()
		os.Exit(1)
	}
	if dispatch.AMQP != nil {
		defer dispatch.AMQP.Close()
	}

	clock := core.SystemClock{}
	users := cache.NewUserDirectory(services.UserDirectoryFunc(store.UserExists), 1000, 10*time.Minute)
	caches := cache.NewManager()
	caches.Register(users)
	caches.StartCleanup(5 * time.Minute)

	ledger := services.NewLedgerService(store, users, files, clock)
	queries := services.NewQueryService(store, categories)
	receipts := services.NewReceiptService(store, store, files, provider, dispatch.Dispatcher, clock,
		services.ReceiptServiceConfig{OCRTimeout: cfg.OCRTimeout})
	promoter := services.NewPromoter(store, clock)
	goals := services.NewGoalService(store, users, clock)

	// The API process sweeps only when it also runs the OCR jobs; with AMQP
	// the worker owns recovery.
	var sweeper *services.OCRSweeper
	if dispatch.Queue != nil {
		sweeper = services.NewOCRSweeper(store, dispatch.Dispatcher, clock, services.SweeperConfig{
			PollInterval: cfg.SweepInterval,
			Age:          cfg.SweepAge,
			BatchSize:    cfg.SweepBatchSize,
			MaxAttempts:  cfg.SweepMaxAttempts,
		})
	}

	srv := apphttp.NewServer(serverConfig(cfg), apphttp.Services{
		Ledger:   ledger,
		Queries:  queries,
		Receipts: receipts,
		Promoter: promoter,
		Goals:    goals,
		Ready:    store.Ping,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if sweeper != nil {
			if err := sweeper.Stop(ctx); err != nil {
				logger.Warn("Sweeper shutdown error", "error", err)
			}
		}
		if dispatch.Queue != nil {
			if err := dispatch.Queue.Stop(ctx); err != nil {
				logger.Warn("OCR queue shutdown error", "error", err)
			}
		}
		caches.Stop()
	})

	if dispatch.Queue != nil {
		if err := dispatch.Queue.Start(ctx, receipts.HandleOCRJob); err != nil {
			logger.Error("Failed to start OCR queue", "error", err)
			os.Exit(1)
		}
	}
	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("Failed to start OCR sweeper", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Starting zetafin server",
		"port", cfg.Port,
		"store", bc.Store.String(),
		"blob", bc.Blob.String(),
		"ocr", bc.OCR.String(),
		"dispatch", bc.Dispatch.String(),
		"categories", categories.Len(),
		"token_auth", cfg.JWTSecret != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// serverConfig maps the app configuration onto the HTTP shell. Local receipt
// files are served under the path of LOCAL_STORAGE_BASE_URL.
func serverConfig(cfg *config.Config) apphttp.ServerConfig {
	sc := apphttp.ServerConfig{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		JWTSecret:          cfg.JWTSecret,
		JWTIssuer:          "zetafin",
	}
	if backend.BlobType(cfg.BlobBackend) == backend.LocalBlob {
		if u, err := url.Parse(cfg.LocalStorageBaseURL); err == nil && u.Path != "" && u.Path != "/" {
			sc.FilesDir = cfg.LocalStoragePath
			sc.FilesPath = u.Path
		}
	}
	return sc
}
