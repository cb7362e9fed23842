// Package postgres is the PostgreSQL ledger and receipt store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"zetafin/internal/core"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and applies migrations.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) EnsureUser(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (r *Repository) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

const transactionColumns = `seq, id, user_id, type, value_cents, description, category, expense_type, date,
	has_receipt, receipt_id, receipt_url, receipt_ocr, created_at, updated_at`

const receiptColumns = `id, user_id, transaction_id, file_name, file_url, file_size, mime_type,
	ocr_processed, ocr_data, ocr_attempts, created_at, updated_at`

func insertTransaction(ctx context.Context, q querier, t *core.Transaction) error {
	ocr, err := encodeOCR(t.ReceiptOCR)
	if err != nil {
		return err
	}
	return q.QueryRow(ctx, `INSERT INTO transactions (
		id, user_id, type, value_cents, description, category, expense_type, date,
		has_receipt, receipt_id, receipt_url, receipt_ocr, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING seq`,
		t.ID, t.UserID, string(t.Type), t.Value.Cents, t.Description, t.Category,
		optionalString(string(t.ExpenseType)), t.Date.UTC(), t.HasReceipt, t.ReceiptID,
		optionalString(t.ReceiptURL), ocr, t.CreatedAt.UTC(), t.UpdatedAt,
	).Scan(&t.Seq)
}

func (r *Repository) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	if err := insertTransaction(ctx, r.pool, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	tag, err := r.pool.Exec(ctx, `UPDATE transactions
		SET value_cents = $1, description = $2, category = $3, date = $4, updated_at = $5
		WHERE id = $6`,
		t.Value.Cents, t.Description, t.Category, t.Date.UTC(), t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("transaction", t.ID)
	}
	return nil
}

// DeleteTransaction removes the entry together with its linked receipt.
func (r *Repository) DeleteTransaction(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.inTx(ctx, func(q querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM receipts WHERE transaction_id = $1`, id); err != nil {
			return fmt.Errorf("delete linked receipt: %w", err)
		}
		tag, err := q.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// filterClause renders the WHERE clause shared by listing, counting and
// aggregation, numbering placeholders from 1.
func filterClause(userID uuid.UUID, f core.TransactionFilter) (string, []any) {
	args := []any{userID}
	conds := []string{"user_id = $1"}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Start != nil {
		add("date >= $%d", f.Start.UTC())
	}
	if f.End != nil {
		add("date <= $%d", f.End.UTC())
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.ExpenseType != "" {
		add("expense_type = $%d", string(f.ExpenseType))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter, offset, limit int) ([]core.Transaction, error) {
	where, args := filterClause(userID, f)
	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY date DESC, seq ASC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	items := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return items, nil
}

func (r *Repository) CountTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter) (int, error) {
	where, args := filterClause(userID, f)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *Repository) AggregateTransactions(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]core.AggregateRow, error) {
	where, args := filterClause(userID, core.TransactionFilter{Start: start, End: end})
	rows, err := r.pool.Query(ctx, `SELECT type, category, COALESCE(expense_type, ''), SUM(value_cents)::BIGINT, COUNT(*)
		FROM transactions`+where+`
		GROUP BY type, category, expense_type
		ORDER BY type, category, expense_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	defer rows.Close()

	var out []core.AggregateRow
	for rows.Next() {
		var (
			row     core.AggregateRow
			typ, et string
			cents   int64
			count   int64
		)
		if err := rows.Scan(&typ, &row.Category, &et, &cents, &count); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		row.Type = core.TransactionType(typ)
		row.ExpenseType = core.ExpenseType(et)
		row.Total = core.Money{Cents: cents}
		row.Count = int(count)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate transactions: %w", err)
	}
	return out, nil
}

func insertReceipt(ctx context.Context, q querier, rc core.Receipt) error {
	ocr, err := encodeOCR(rc.OcrData)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `INSERT INTO receipts (
		id, user_id, transaction_id, file_name, file_url, file_size, mime_type,
		ocr_processed, ocr_data, ocr_attempts, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rc.ID, rc.UserID, rc.TransactionID, rc.FileName, rc.FileURL, rc.FileSize, rc.MimeType,
		rc.OcrProcessed, ocr, rc.OcrAttempts, rc.CreatedAt.UTC(), rc.UpdatedAt)
	return err
}

func (r *Repository) CreateReceipt(ctx context.Context, rc *core.Receipt) error {
	if err := insertReceipt(ctx, r.pool, *rc); err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	return nil
}

func (r *Repository) GetReceipt(ctx context.Context, id uuid.UUID) (core.Receipt, error) {
	rc, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Receipt{}, core.NotFound("receipt", id)
	}
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	return rc, nil
}

func (r *Repository) ListReceipts(ctx context.Context, userID uuid.UUID) ([]core.Receipt, error) {
	rs, err := r.queryReceipts(ctx, `SELECT `+receiptColumns+` FROM receipts
		WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return rs, nil
}

func (r *Repository) ListPendingOCR(ctx context.Context, olderThan time.Time, maxAttempts, limit int) ([]core.Receipt, error) {
	rs, err := r.queryReceipts(ctx, `SELECT `+receiptColumns+` FROM receipts
		WHERE NOT ocr_processed AND ocr_attempts < $1 AND COALESCE(updated_at, created_at) <= $2
		ORDER BY created_at
		LIMIT $3`, maxAttempts, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending ocr: %w", err)
	}
	return rs, nil
}

func (r *Repository) queryReceipts(ctx context.Context, query string, args ...any) ([]core.Receipt, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Receipt{}
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteReceipt(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM receipts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete receipt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SaveOCRResult(ctx context.Context, id uuid.UUID, data core.OcrExtraction, at time.Time) error {
	encoded, err := encodeOCR(&data)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, `UPDATE receipts SET ocr_processed = TRUE, ocr_data = $1, updated_at = $2 WHERE id = $3`,
			encoded, at.UTC(), id)
		if err != nil {
			return fmt.Errorf("save ocr result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.NotFound("receipt", id)
		}
		if _, err := q.Exec(ctx, `UPDATE transactions SET receipt_ocr = $1 WHERE receipt_id = $2`, encoded, id); err != nil {
			return fmt.Errorf("refresh transaction ocr: %w", err)
		}
		return nil
	})
}

func (r *Repository) RecordOCRAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE receipts SET ocr_attempts = ocr_attempts + 1, updated_at = $1 WHERE id = $2`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record ocr attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("receipt", id)
	}
	return nil
}

func (r *Repository) AttachReceipt(ctx context.Context, rc *core.Receipt, txID uuid.UUID) error {
	ocr, err := encodeOCR(rc.OcrData)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(q querier) error {
		tag, err := q.Exec(ctx, `UPDATE transactions
			SET has_receipt = TRUE, receipt_id = $1, receipt_url = $2, receipt_ocr = $3
			WHERE id = $4 AND NOT has_receipt`, rc.ID, rc.FileURL, ocr, txID)
		if err != nil {
			return fmt.Errorf("mark transaction receipt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, txID).Scan(&exists); err != nil {
				return fmt.Errorf("check transaction: %w", err)
			}
			if !exists {
				return core.NotFound("transaction", txID)
			}
			return core.Conflict("transaction already has a receipt")
		}

		id := txID
		rc.TransactionID = &id
		if err := insertReceipt(ctx, q, *rc); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		return nil
	})
}

func (r *Repository) PromoteReceipt(ctx context.Context, receiptID uuid.UUID, t *core.Transaction) error {
	return r.inTx(ctx, func(q querier) error {
		if err := insertTransaction(ctx, q, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		tag, err := q.Exec(ctx, `UPDATE receipts SET transaction_id = $1, updated_at = $2
			WHERE id = $3 AND transaction_id IS NULL`, t.ID, t.CreatedAt.UTC(), receiptID)
		if err != nil {
			return fmt.Errorf("link receipt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM receipts WHERE id = $1)`, receiptID).Scan(&exists); err != nil {
				return fmt.Errorf("check receipt: %w", err)
			}
			if !exists {
				return core.NotFound("receipt", receiptID)
			}
			return core.Conflict("receipt already linked to a transaction")
		}
		return nil
	})
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t           core.Transaction
		typ         string
		cents       int64
		expenseType *string
		receiptID   uuid.NullUUID
		receiptURL  *string
		receiptOCR  []byte
	)
	err := row.Scan(&t.Seq, &t.ID, &t.UserID, &typ, &cents, &t.Description, &t.Category, &expenseType, &t.Date,
		&t.HasReceipt, &receiptID, &receiptURL, &receiptOCR, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Type = core.TransactionType(typ)
	t.Value = core.Money{Cents: cents}
	if expenseType != nil {
		t.ExpenseType = core.ExpenseType(*expenseType)
	}
	if receiptID.Valid {
		id := receiptID.UUID
		t.ReceiptID = &id
	}
	if receiptURL != nil {
		t.ReceiptURL = *receiptURL
	}
	if t.ReceiptOCR, err = decodeOCR(receiptOCR); err != nil {
		return core.Transaction{}, err
	}
	t.Date = t.Date.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if t.UpdatedAt != nil {
		u := t.UpdatedAt.UTC()
		t.UpdatedAt = &u
	}
	return t, nil
}

func scanReceipt(row pgx.Row) (core.Receipt, error) {
	var (
		rc            core.Receipt
		transactionID uuid.NullUUID
		ocrData       []byte
	)
	err := row.Scan(&rc.ID, &rc.UserID, &transactionID, &rc.FileName, &rc.FileURL, &rc.FileSize, &rc.MimeType,
		&rc.OcrProcessed, &ocrData, &rc.OcrAttempts, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		return core.Receipt{}, err
	}
	if transactionID.Valid {
		id := transactionID.UUID
		rc.TransactionID = &id
	}
	if rc.OcrData, err = decodeOCR(ocrData); err != nil {
		return core.Receipt{}, err
	}
	rc.CreatedAt = rc.CreatedAt.UTC()
	if rc.UpdatedAt != nil {
		u := rc.UpdatedAt.UTC()
		rc.UpdatedAt = &u
	}
	return rc, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeOCR(o *core.OcrExtraction) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode ocr data: %w", err)
	}
	return data, nil
}

func decodeOCR(data []byte) (*core.OcrExtraction, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var o core.OcrExtraction
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode ocr data: %w", err)
	}
	if o.LineItems == nil {
		o.LineItems = []core.OcrLineItem{}
	}
	return &o, nil
}
