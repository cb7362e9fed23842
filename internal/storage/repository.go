// Package storage is the SQLite-backed ledger and receipt store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets summary reads run alongside writes; busy_timeout queues
	// concurrent writers instead of failing them. SQLite enforces foreign
	// keys only when asked to, per connection.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn inside one database transaction, rolling back on error.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) EnsureUser(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.InsertUser(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := r.queries.UserExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return ok, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	seq, err := r.queries.InsertTransaction(ctx, *t)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	t.Seq = seq

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"seq", seq,
		"value_cents", t.Value.Cents)
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	t, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	n, err := r.queries.UpdateTransaction(ctx, t)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return core.NotFound("transaction", t.ID)
	}
	return nil
}

// DeleteTransaction removes the entry together with its linked receipt.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.inTx(ctx, func(q *Queries) error {
		if err := q.DeleteTransactionReceipts(ctx, id); err != nil {
			return fmt.Errorf("delete linked receipt: %w", err)
		}
		var err error
		if n, err = q.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter, offset, limit int) ([]core.Transaction, error) {
	items, err := r.queries.ListTransactions(ctx, userID, f, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter) (int, error) {
	n, err := r.queries.CountTransactions(ctx, userID, f)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) AggregateTransactions(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]core.AggregateRow, error) {
	rows, err := r.queries.AggregateTransactions(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	return rows, nil
}

func (r *SQLiteRepository) CreateReceipt(ctx context.Context, rc *core.Receipt) error {
	if err := r.queries.InsertReceipt(ctx, *rc); err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetReceipt(ctx context.Context, id uuid.UUID) (core.Receipt, error) {
	rc, err := r.queries.GetReceipt(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Receipt{}, core.NotFound("receipt", id)
	}
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	return rc, nil
}

func (r *SQLiteRepository) ListReceipts(ctx context.Context, userID uuid.UUID) ([]core.Receipt, error) {
	rs, err := r.queries.ListReceipts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return rs, nil
}

func (r *SQLiteRepository) DeleteReceipt(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := r.queries.DeleteReceipt(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete receipt: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) SaveOCRResult(ctx context.Context, id uuid.UUID, data core.OcrExtraction, at time.Time) error {
	return r.inTx(ctx, func(q *Queries) error {
		n, err := q.SaveOCRResult(ctx, id, data, at)
		if err != nil {
			return fmt.Errorf("save ocr result: %w", err)
		}
		if n == 0 {
			return core.NotFound("receipt", id)
		}
		if err := q.RefreshTransactionOCR(ctx, id, &data); err != nil {
			return fmt.Errorf("refresh transaction ocr: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) RecordOCRAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := r.queries.RecordOCRAttempt(ctx, id, at)
	if err != nil {
		return fmt.Errorf("record ocr attempt: %w", err)
	}
	if n == 0 {
		return core.NotFound("receipt", id)
	}
	return nil
}

func (r *SQLiteRepository) ListPendingOCR(ctx context.Context, olderThan time.Time, maxAttempts, limit int) ([]core.Receipt, error) {
	rs, err := r.queries.ListPendingOCR(ctx, olderThan, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending ocr: %w", err)
	}
	return rs, nil
}

func (r *SQLiteRepository) AttachReceipt(ctx context.Context, rc *core.Receipt, txID uuid.UUID) error {
	return r.inTx(ctx, func(q *Queries) error {
		n, err := q.MarkTransactionReceipt(ctx, txID, rc.ID, rc.FileURL, rc.OcrData)
		if err != nil {
			return fmt.Errorf("mark transaction receipt: %w", err)
		}
		if n == 0 {
			if _, err := q.GetTransaction(ctx, txID); errors.Is(err, sql.ErrNoRows) {
				return core.NotFound("transaction", txID)
			}
			return core.Conflict("transaction already has a receipt")
		}

		id := txID
		rc.TransactionID = &id
		if err := q.InsertReceipt(ctx, *rc); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) PromoteReceipt(ctx context.Context, receiptID uuid.UUID, t *core.Transaction) error {
	var seq int64
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		seq, err = q.InsertTransaction(ctx, *t)
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		n, err := q.LinkReceipt(ctx, receiptID, t.ID, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("link receipt: %w", err)
		}
		if n == 0 {
			if _, err := q.GetReceipt(ctx, receiptID); errors.Is(err, sql.ErrNoRows) {
				return core.NotFound("receipt", receiptID)
			}
			return core.Conflict("receipt already linked to a transaction")
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.Seq = seq
	return nil
}
