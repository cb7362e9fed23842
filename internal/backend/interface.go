package backend

import (
	"context"

	"github.com/google/uuid"

	"zetafin/internal/amqp"
	"zetafin/internal/queue"
	"zetafin/internal/services"
)

// Store is everything a ledger backend provides to the services.
type Store interface {
	services.TransactionStore
	services.ReceiptStore
	services.GoalStore
	EnsureUser(ctx context.Context, id uuid.UUID) error
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Dispatch is the OCR transport chosen by configuration. Exactly one of
// Queue and AMQP is set.
type Dispatch struct {
	Dispatcher services.OCRDispatcher
	Queue      *queue.Queue
	AMQP       *amqp.Client
}

// Factory creates backends based on configuration
type Factory interface {
	CreateStore(ctx context.Context, config Config) (Store, error)
	CreateFiles(ctx context.Context, config Config) (services.FileStorage, CleanupFunc, error)
	CreateOCR(ctx context.Context, config Config, files services.FileStorage) (services.OCRProvider, error)
	CreateDispatch(config Config) (*Dispatch, error)
}

// StoreType selects the ledger store
type StoreType string

const (
	MemoryStore   StoreType = "memory"
	SQLiteStore   StoreType = "sqlite"
	PostgresStore StoreType = "postgres"
)

func (t StoreType) String() string { return string(t) }

func (t StoreType) IsValid() bool {
	switch t {
	case MemoryStore, SQLiteStore, PostgresStore:
		return true
	default:
		return false
	}
}

// BlobType selects where receipt files live
type BlobType string

const (
	LocalBlob BlobType = "local"
	S3Blob    BlobType = "s3"
	GCSBlob   BlobType = "gcs"
)

func (t BlobType) String() string { return string(t) }

func (t BlobType) IsValid() bool {
	switch t {
	case LocalBlob, S3Blob, GCSBlob:
		return true
	default:
		return false
	}
}

// OCRType selects the extraction provider
type OCRType string

const (
	MockOCR   OCRType = "mock"
	GeminiOCR OCRType = "gemini"
)

func (t OCRType) String() string { return string(t) }

func (t OCRType) IsValid() bool {
	return t == MockOCR || t == GeminiOCR
}

// DispatchType selects how background OCR jobs travel
type DispatchType string

const (
	InMemoryDispatch DispatchType = "inmemory"
	AMQPDispatch     DispatchType = "amqp"
)

func (t DispatchType) String() string { return string(t) }

func (t DispatchType) IsValid() bool {
	return t == InMemoryDispatch || t == AMQPDispatch
}
