package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

// CreateTransactionInput carries the fields of a new ledger entry. Date is
// normalized to UTC before validation.
type CreateTransactionInput struct {
	UserID      uuid.UUID
	Type        core.TransactionType
	Value       core.Money
	Description string
	Category    string
	Date        time.Time
	ExpenseType core.ExpenseType
}

// UpdateTransactionInput carries the mutable fields of an entry. Type,
// expense type and owner never change.
type UpdateTransactionInput struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Value       core.Money
	Description string
	Category    string
	Date        time.Time
}

// LedgerService validates and commits ledger entries.
type LedgerService struct {
	store  TransactionStore
	users  UserDirectory
	files  FileStorage
	clock  core.Clock
	logger *log.Logger
}

// NewLedgerService wires the ledger. files receives the receipt files of
// deleted entries and may be nil.
func NewLedgerService(store TransactionStore, users UserDirectory, files FileStorage, clock core.Clock) *LedgerService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &LedgerService{
		store:  store,
		users:  users,
		files:  files,
		clock:  clock,
		logger: log.Default(log.ComponentLedger),
	}
}

// Create validates every entry invariant, checks that the owner exists and
// commits the entry in a single write.
func (s *LedgerService) Create(ctx context.Context, in CreateTransactionInput) (core.Transaction, error) {
	now := s.clock.Now()
	tx := core.Transaction{
		ID:          uuid.New(),
		UserID:      in.UserID,
		Type:        in.Type,
		Value:       in.Value,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		ExpenseType: in.ExpenseType,
		Date:        core.Normalize(in.Date),
		CreatedAt:   now,
	}
	if err := core.ValidateTransaction(tx, now); err != nil {
		return core.Transaction{}, err
	}

	ok, err := s.users.Exists(ctx, in.UserID)
	if err != nil {
		return core.Transaction{}, core.QueryFailed("resolve user", err)
	}
	if !ok {
		return core.Transaction{}, core.NotFound("user", in.UserID)
	}

	if err := s.store.CreateTransaction(ctx, &tx); err != nil {
		return core.Transaction{}, storeError("create transaction", err)
	}

	log.NewStructuredLogger(s.logger).LogTransactionCreated(ctx,
		tx.ID.String(), tx.UserID.String(), string(tx.Type), tx.Value.Cents, tx.Category)
	return tx, nil
}

// Get returns an entry owned by userID.
func (s *LedgerService) Get(ctx context.Context, id, userID uuid.UUID) (core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, readError("get transaction", err)
	}
	if tx.UserID != userID {
		return core.Transaction{}, core.Unauthorized("transaction", id)
	}
	return tx, nil
}

// Update re-validates value, description, category and date against the
// entry's existing type, then bumps updatedAt.
func (s *LedgerService) Update(ctx context.Context, in UpdateTransactionInput) (core.Transaction, error) {
	tx, err := s.Get(ctx, in.ID, in.UserID)
	if err != nil {
		return core.Transaction{}, err
	}

	now := s.clock.Now()
	date := core.Normalize(in.Date)
	description := strings.TrimSpace(in.Description)
	category := strings.TrimSpace(in.Category)
	if err := core.ValidateEntry(tx.Type, in.Value, description, category, date, now); err != nil {
		return core.Transaction{}, err
	}

	tx.Value = in.Value
	tx.Description = description
	tx.Category = category
	tx.Date = date
	tx.UpdatedAt = &now

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, storeError("update transaction", err)
	}

	s.logger.InfoContext(ctx, "Transaction updated",
		log.FieldTransactionID, tx.ID,
		log.FieldUserID, tx.UserID)
	return tx, nil
}

// Delete hard-deletes an entry and the receipt linked to it. A missing id
// reports false without error. The receipt file is removed after the commit
// and a failure there is only logged.
func (s *LedgerService) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, readError("get transaction", err)
	}
	if tx.UserID != userID {
		return false, core.Unauthorized("transaction", id)
	}

	deleted, err := s.store.DeleteTransaction(ctx, id)
	if err != nil {
		return false, storeError("delete transaction", err)
	}
	if !deleted {
		return false, nil
	}
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldTransactionID, id,
		log.FieldUserID, userID,
		"had_receipt", tx.HasReceipt)

	if tx.HasReceipt && tx.ReceiptURL != "" && s.files != nil {
		if _, err := s.files.Delete(ctx, tx.ReceiptURL); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete receipt file",
				log.FieldTransactionID, id,
				log.FieldFileURL, tx.ReceiptURL,
				log.FieldError, err)
		}
	}
	return true, nil
}

// storeError keeps classified store errors and reports anything else as an
// upstream failure.
func storeError(op string, err error) error {
	if core.KindOf(err) != nil {
		return err
	}
	return core.UpstreamFailed(op, err)
}

// readError keeps classified store errors and reports anything else as a
// query failure.
func readError(op string, err error) error {
	if core.KindOf(err) != nil {
		return err
	}
	return core.QueryFailed(op, err)
}
