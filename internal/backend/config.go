package backend

import (
	"fmt"
	"time"

	"zetafin/internal/blob"
	"zetafin/internal/config"
	"zetafin/internal/queue"
)

// Config holds configuration for backend creation
type Config struct {
	Store    StoreType
	Blob     BlobType
	OCR      OCRType
	Dispatch DispatchType

	// Ledger store
	SQLiteDBPath string
	DatabaseURL  string

	// Receipt files
	LocalStoragePath    string
	LocalStorageBaseURL string
	S3                  blob.S3Config
	GCSBucket           string
	GCSCredentialsFile  string

	// OCR
	GeminiAPIKey string
	GeminiModel  string
	MockSeed     uint64

	// Dispatch
	Queue        queue.Config
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	c := Config{
		Store:    StoreType(appConfig.DataBackend),
		Blob:     BlobType(appConfig.BlobBackend),
		OCR:      OCRType(appConfig.OCRProvider),
		Dispatch: DispatchType(appConfig.OCRDispatch),

		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,

		LocalStoragePath:    appConfig.LocalStoragePath,
		LocalStorageBaseURL: appConfig.LocalStorageBaseURL,
		S3: blob.S3Config{
			Bucket:          appConfig.S3Bucket,
			Region:          appConfig.S3Region,
			Endpoint:        appConfig.S3Endpoint,
			AccessKeyID:     appConfig.S3AccessKeyID,
			SecretAccessKey: appConfig.S3SecretAccessKey,
		},
		GCSBucket:          appConfig.GCSBucket,
		GCSCredentialsFile: appConfig.GCSCredentialsFile,

		GeminiAPIKey: appConfig.GeminiAPIKey,
		GeminiModel:  appConfig.GeminiModel,
		MockSeed:     uint64(time.Now().UnixNano()),

		Queue: queue.Config{
			Workers:    appConfig.OCRWorkers,
			BufferSize: 100,
			MaxRetries: appConfig.OCRMaxRetries,
			RetryDelay: time.Second,
		},
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Store.IsValid() {
		return fmt.Errorf("invalid store backend: %s", c.Store)
	}
	if !c.Blob.IsValid() {
		return fmt.Errorf("invalid blob backend: %s", c.Blob)
	}
	if !c.OCR.IsValid() {
		return fmt.Errorf("invalid OCR provider: %s", c.OCR)
	}
	if !c.Dispatch.IsValid() {
		return fmt.Errorf("invalid OCR dispatch: %s", c.Dispatch)
	}

	switch c.Store {
	case SQLiteStore:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresStore:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	}

	switch c.Blob {
	case LocalBlob:
		if c.LocalStoragePath == "" || c.LocalStorageBaseURL == "" {
			return fmt.Errorf("local storage path and base URL are required for local blob backend")
		}
	case S3Blob:
		if c.S3.Bucket == "" {
			return fmt.Errorf("bucket is required for s3 blob backend")
		}
	case GCSBlob:
		if c.GCSBucket == "" {
			return fmt.Errorf("bucket is required for gcs blob backend")
		}
	}

	if c.OCR == GeminiOCR && c.GeminiAPIKey == "" {
		return fmt.Errorf("API key is required for gemini OCR provider")
	}
	if c.Dispatch == AMQPDispatch && (c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP URL, exchange and queue are required for amqp dispatch")
	}
	return nil
}

// StoreTypes returns all valid store backends
func StoreTypes() []StoreType {
	return []StoreType{MemoryStore, SQLiteStore, PostgresStore}
}
