package main

import (
	"context"
	"errors"
	"os"
	"time"

	"zetafin/internal/backend"
	"zetafin/internal/cli"
	"zetafin/internal/core"
	"zetafin/internal/log"
	"zetafin/internal/services"
	"zetafin/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting zetafin-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	bc := cli.BackendConfig(logger, cfg)
	if bc.Dispatch != backend.AMQPDispatch {
		logger.Error("The worker consumes OCR requests from AMQP; set OCR_DISPATCH=amqp",
			"dispatch", bc.Dispatch.String())
		os.Exit(1)
	}
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
		logger.Error("Failed to initialize AMQP client", "error", err)
		store.Close()
		os.Exit(1)
	}
	defer dispatch.AMQP.Close()

	clock := core.SystemClock{}
	receipts := services.NewReceiptService(store, store, files, provider, dispatch.Dispatcher, clock,
		services.ReceiptServiceConfig{OCRTimeout: cfg.OCRTimeout})
	sweeper := services.NewOCRSweeper(store, dispatch.Dispatcher, clock, services.SweeperConfig{
		PollInterval: cfg.SweepInterval,
		Age:          cfg.SweepAge,
		BatchSize:    cfg.SweepBatchSize,
		MaxAttempts:  cfg.SweepMaxAttempts,
	})
	ocrWorker := worker.NewOCRWorker(receipts, sweeper)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := sweeper.Stop(ctx); err != nil {
			logger.Warn("Sweeper shutdown error", "error", err)
		}
	})

	// Recover receipts whose requests were lost while no worker was running.
	if err := ocrWorker.StartupSweep(ctx); err != nil {
		logger.Error("Startup sweep failed", "error", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("Failed to start OCR sweeper", "error", err)
		os.Exit(1)
	}

	go func() {
		err := dispatch.AMQP.ConsumeOCRRequests(ctx, ocrWorker.HandleOCRMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("Worker ready",
		"queue", cfg.AMQPQueue,
		"ocr", bc.OCR.String(),
		"sweep_interval", cfg.SweepInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
