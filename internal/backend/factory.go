package backend

import (
	"context"
	"fmt"

	"zetafin/internal/amqp"
	"zetafin/internal/blob"
	"zetafin/internal/log"
	"zetafin/internal/ocr"
	"zetafin/internal/queue"
	"zetafin/internal/services"
	"zetafin/internal/storage"
	"zetafin/internal/storage/memory"
	"zetafin/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateStore opens the configured ledger store, applying migrations for the
// SQL backends.
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (Store, error) {
	switch config.Store {
	case SQLiteStore:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil

	case PostgresStore:
		repo, err := postgres.New(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres store")
		return repo, nil

	case MemoryStore:
		f.logger.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", config.Store)
	}
}

// CreateFiles builds the receipt file storage. The cleanup func is never nil.
func (f *DefaultFactory) CreateFiles(ctx context.Context, config Config) (services.FileStorage, CleanupFunc, error) {
	noop := func() error { return nil }

	switch config.Blob {
	case LocalBlob:
		local, err := blob.NewLocal(config.LocalStoragePath, config.LocalStorageBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		f.logger.Info("Initialized local file storage", "path", config.LocalStoragePath)
		return local, noop, nil

	case S3Blob:
		s3, err := blob.NewS3(ctx, config.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		f.logger.Info("Initialized S3 file storage", "bucket", config.S3.Bucket, "endpoint", config.S3.Endpoint)
		return s3, noop, nil

	case GCSBlob:
		gcs, err := blob.NewGCS(ctx, config.GCSBucket, config.GCSCredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize GCS storage: %w", err)
		}
		f.logger.Info("Initialized GCS file storage", "bucket", config.GCSBucket)
		return gcs, gcs.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported blob backend: %s", config.Blob)
	}
}

// CreateOCR builds the extraction provider. Gemini reads receipt files back
// through files.
func (f *DefaultFactory) CreateOCR(ctx context.Context, config Config, files services.FileStorage) (services.OCRProvider, error) {
	switch config.OCR {
	case GeminiOCR:
		g, err := ocr.NewGemini(ctx, config.GeminiAPIKey, config.GeminiModel, files)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini OCR: %w", err)
		}
		f.logger.Info("Initialized Gemini OCR provider", "model", config.GeminiModel)
		return g, nil

	case MockOCR:
		f.logger.Info("Initialized mock OCR provider")
		return ocr.NewMock(config.MockSeed, nil), nil

	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", config.OCR)
	}
}

// CreateDispatch builds the OCR job transport. The in-memory queue is
// returned unstarted; the caller starts it once the job handler exists.
func (f *DefaultFactory) CreateDispatch(config Config) (*Dispatch, error) {
	switch config.Dispatch {
	case AMQPDispatch:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Info("Initialized AMQP client",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return &Dispatch{Dispatcher: client, AMQP: client}, nil

	case InMemoryDispatch:
		q := queue.New(config.Queue)
		return &Dispatch{Dispatcher: q, Queue: q}, nil

	default:
		return nil, fmt.Errorf("unsupported OCR dispatch: %s", config.Dispatch)
	}
}
