package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

// Ports for outbound adapters. Stores report missing rows with core.NotFound
// and lost link races with core.Conflict; any other error is a storage failure.
type (
	TransactionStore interface {
		// CreateTransaction persists t and assigns t.Seq.
		CreateTransaction(ctx context.Context, t *core.Transaction) error
		GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		// DeleteTransaction reports whether a row was removed. A linked
		// receipt is removed in the same commit.
		DeleteTransaction(ctx context.Context, id uuid.UUID) (bool, error)

		// ListTransactions returns one page ordered by date descending, then
		// creation order.
		ListTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter, offset, limit int) ([]core.Transaction, error)
		CountTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter) (int, error)
		// AggregateTransactions groups a user's entries in [start, end] by type,
		// category and expense type. nil bounds are open.
		AggregateTransactions(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]core.AggregateRow, error)
	}

	ReceiptStore interface {
		CreateReceipt(ctx context.Context, r *core.Receipt) error
		GetReceipt(ctx context.Context, id uuid.UUID) (core.Receipt, error)
		ListReceipts(ctx context.Context, userID uuid.UUID) ([]core.Receipt, error)
		DeleteReceipt(ctx context.Context, id uuid.UUID) (bool, error)

		// SaveOCRResult marks the receipt processed and refreshes the OCR copy
		// held by a linked transaction, in one commit.
		SaveOCRResult(ctx context.Context, id uuid.UUID, data core.OcrExtraction, at time.Time) error
		RecordOCRAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
		// ListPendingOCR returns unprocessed receipts last touched at or before
		// olderThan with fewer than maxAttempts attempts.
		ListPendingOCR(ctx context.Context, olderThan time.Time, maxAttempts, limit int) ([]core.Receipt, error)

		// AttachReceipt inserts r already linked to txID and marks the
		// transaction as having a receipt, in one commit. A transaction that
		// already has a receipt yields core.Conflict.
		AttachReceipt(ctx context.Context, r *core.Receipt, txID uuid.UUID) error
		// PromoteReceipt inserts t and links the receipt to it, in one commit.
		// A receipt linked in the meantime yields core.Conflict.
		PromoteReceipt(ctx context.Context, receiptID uuid.UUID, t *core.Transaction) error
	}

	// GoalStore keeps savings goals, their deposits and their members.
	GoalStore interface {
		// CreateGoal inserts g with owner as its first member, in one commit.
		CreateGoal(ctx context.Context, g *core.Goal, owner core.GoalMember) error
		GetGoal(ctx context.Context, id uuid.UUID) (core.Goal, error)
		// ListGoals returns the goals userID belongs to, newest first.
		ListGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error)

		// AddDeposit inserts d and raises the goal's current amount by
		// d.Amount, in one commit, returning the updated goal. An amount the
		// current total cannot hold yields core.InvalidState.
		AddDeposit(ctx context.Context, d *core.Deposit) (core.Goal, error)
		// ListDeposits returns a goal's deposits, latest date first.
		ListDeposits(ctx context.Context, goalID uuid.UUID) ([]core.Deposit, error)

		// AddGoalMember yields core.Conflict when the user already belongs
		// to the goal.
		AddGoalMember(ctx context.Context, m core.GoalMember) error
		GetGoalMember(ctx context.Context, goalID, userID uuid.UUID) (core.GoalMember, error)
		UpdateGoalMember(ctx context.Context, m core.GoalMember) error
		// ListGoalMembers returns members in the order they joined.
		ListGoalMembers(ctx context.Context, goalID uuid.UUID) ([]core.GoalMember, error)
	}

	UserDirectory interface {
		Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	}

	// FileStorage keeps receipt files and hands back durable URLs.
	FileStorage interface {
		Upload(ctx context.Context, data []byte, name, mimeType, folder string) (url string, err error)
		Download(ctx context.Context, url string) ([]byte, error)
		Delete(ctx context.Context, url string) (bool, error)
	}

	OCRProvider interface {
		Extract(ctx context.Context, fileURL string) (core.OcrExtraction, error)
	}

	// OCRDispatcher schedules background extraction. It must not block on the
	// extraction itself.
	OCRDispatcher interface {
		DispatchOCR(ctx context.Context, job core.OCRJob) error
	}
)

// UserDirectoryFunc adapts a lookup function to UserDirectory.
type UserDirectoryFunc func(ctx context.Context, userID uuid.UUID) (bool, error)

func (f UserDirectoryFunc) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f(ctx, userID)
}

// OCRDispatcherFunc adapts a function to OCRDispatcher.
type OCRDispatcherFunc func(ctx context.Context, job core.OCRJob) error

func (f OCRDispatcherFunc) DispatchOCR(ctx context.Context, job core.OCRJob) error {
	return f(ctx, job)
}
