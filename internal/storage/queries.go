package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

// timeLayout is fixed-width so TEXT comparison orders instants correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const transactionColumns = `seq, id, user_id, type, value_cents, description, category, expense_type, date,
	has_receipt, receipt_id, receipt_url, receipt_ocr, created_at, updated_at`

const receiptColumns = `id, user_id, transaction_id, file_name, file_url, file_size, mime_type,
	ocr_processed, ocr_data, ocr_attempts, created_at, updated_at`

const insertUser = `INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`

func (q *Queries) InsertUser(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := q.db.ExecContext(ctx, insertUser, id.String(), formatTime(at))
	return err
}

const userExists = `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`

func (q *Queries) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, userExists, id.String()).Scan(&exists)
	return exists, err
}

const insertTransaction = `INSERT INTO transactions (
	id, user_id, type, value_cents, description, category, expense_type, date,
	has_receipt, receipt_id, receipt_url, receipt_ocr, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertTransaction returns the assigned creation sequence.
func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	ocr, err := encodeOCR(t.ReceiptOCR)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, insertTransaction,
		t.ID.String(),
		t.UserID.String(),
		string(t.Type),
		t.Value.Cents,
		t.Description,
		t.Category,
		nullString(string(t.ExpenseType)),
		formatTime(t.Date),
		t.HasReceipt,
		nullUUID(t.ReceiptID),
		nullString(t.ReceiptURL),
		ocr,
		formatTime(t.CreatedAt),
		nullTime(t.UpdatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id.String()))
}

const updateTransaction = `UPDATE transactions
SET value_cents = ?, description = ?, category = ?, date = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		t.Value.Cents, t.Description, t.Category, formatTime(t.Date), nullTime(t.UpdatedAt), t.ID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// filterClause renders the WHERE clause shared by listing and counting.
func filterClause(userID uuid.UUID, f core.TransactionFilter) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{userID.String()}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Start != nil {
		conds = append(conds, "date >= ?")
		args = append(args, formatTime(*f.Start))
	}
	if f.End != nil {
		conds = append(conds, "date <= ?")
		args = append(args, formatTime(*f.End))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.ExpenseType != "" {
		conds = append(conds, "expense_type = ?")
		args = append(args, string(f.ExpenseType))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q *Queries) ListTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter, offset, limit int) ([]core.Transaction, error) {
	where, args := filterClause(userID, f)
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		` ORDER BY date DESC, seq ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (q *Queries) CountTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter) (int, error) {
	where, args := filterClause(userID, f)
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&n)
	return n, err
}

func (q *Queries) AggregateTransactions(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]core.AggregateRow, error) {
	where, args := filterClause(userID, core.TransactionFilter{Start: start, End: end})
	query := `SELECT type, category, COALESCE(expense_type, ''), SUM(value_cents), COUNT(*)
FROM transactions` + where + `
GROUP BY type, category, expense_type
ORDER BY type, category, expense_type`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.AggregateRow
	for rows.Next() {
		var (
			r       core.AggregateRow
			typ, et string
			cents   int64
		)
		if err := rows.Scan(&typ, &r.Category, &et, &cents, &r.Count); err != nil {
			return nil, err
		}
		r.Type = core.TransactionType(typ)
		r.ExpenseType = core.ExpenseType(et)
		r.Total = core.Money{Cents: cents}
		out = append(out, r)
	}
	return out, rows.Err()
}

const markTransactionReceipt = `UPDATE transactions
SET has_receipt = 1, receipt_id = ?, receipt_url = ?, receipt_ocr = ?
WHERE id = ? AND has_receipt = 0`

func (q *Queries) MarkTransactionReceipt(ctx context.Context, txID, receiptID uuid.UUID, url string, ocr *core.OcrExtraction) (int64, error) {
	data, err := encodeOCR(ocr)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, markTransactionReceipt, receiptID.String(), url, data, txID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const refreshTransactionOCR = `UPDATE transactions SET receipt_ocr = ? WHERE receipt_id = ?`

func (q *Queries) RefreshTransactionOCR(ctx context.Context, receiptID uuid.UUID, ocr *core.OcrExtraction) error {
	data, err := encodeOCR(ocr)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, refreshTransactionOCR, data, receiptID.String())
	return err
}

const insertReceipt = `INSERT INTO receipts (
	id, user_id, transaction_id, file_name, file_url, file_size, mime_type,
	ocr_processed, ocr_data, ocr_attempts, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertReceipt(ctx context.Context, r core.Receipt) error {
	ocr, err := encodeOCR(r.OcrData)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, insertReceipt,
		r.ID.String(),
		r.UserID.String(),
		nullUUID(r.TransactionID),
		r.FileName,
		r.FileURL,
		r.FileSize,
		r.MimeType,
		r.OcrProcessed,
		ocr,
		r.OcrAttempts,
		formatTime(r.CreatedAt),
		nullTime(r.UpdatedAt),
	)
	return err
}

const getReceipt = `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

func (q *Queries) GetReceipt(ctx context.Context, id uuid.UUID) (core.Receipt, error) {
	return scanReceipt(q.db.QueryRowContext(ctx, getReceipt, id.String()))
}

const listReceipts = `SELECT ` + receiptColumns + ` FROM receipts WHERE user_id = ? ORDER BY created_at DESC, id`

func (q *Queries) ListReceipts(ctx context.Context, userID uuid.UUID) ([]core.Receipt, error) {
	return q.queryReceipts(ctx, listReceipts, userID.String())
}

const listPendingOCR = `SELECT ` + receiptColumns + ` FROM receipts
WHERE ocr_processed = 0 AND ocr_attempts < ? AND COALESCE(updated_at, created_at) <= ?
ORDER BY created_at
LIMIT ?`

func (q *Queries) ListPendingOCR(ctx context.Context, olderThan time.Time, maxAttempts, limit int) ([]core.Receipt, error) {
	return q.queryReceipts(ctx, listPendingOCR, maxAttempts, formatTime(olderThan), limit)
}

func (q *Queries) queryReceipts(ctx context.Context, query string, args ...any) ([]core.Receipt, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Receipt{}
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteTransactionReceipts = `DELETE FROM receipts WHERE transaction_id = ?`

func (q *Queries) DeleteTransactionReceipts(ctx context.Context, txID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteTransactionReceipts, txID.String())
	return err
}

const deleteReceipt = `DELETE FROM receipts WHERE id = ?`

func (q *Queries) DeleteReceipt(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteReceipt, id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const saveOCRResult = `UPDATE receipts SET ocr_processed = 1, ocr_data = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SaveOCRResult(ctx context.Context, id uuid.UUID, data core.OcrExtraction, at time.Time) (int64, error) {
	encoded, err := encodeOCR(&data)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, saveOCRResult, encoded, formatTime(at), id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const recordOCRAttempt = `UPDATE receipts SET ocr_attempts = ocr_attempts + 1, updated_at = ? WHERE id = ?`

func (q *Queries) RecordOCRAttempt(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, recordOCRAttempt, formatTime(at), id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const linkReceipt = `UPDATE receipts SET transaction_id = ?, updated_at = ? WHERE id = ? AND transaction_id IS NULL`

func (q *Queries) LinkReceipt(ctx context.Context, receiptID, txID uuid.UUID, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, linkReceipt, txID.String(), formatTime(at), receiptID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                      core.Transaction
		id, userID, typ        string
		cents                  int64
		expenseType, receiptID sql.NullString
		receiptURL, receiptOCR sql.NullString
		date, createdAt        string
		updatedAt              sql.NullString
	)
	err := s.Scan(&t.Seq, &id, &userID, &typ, &cents, &t.Description, &t.Category, &expenseType, &date,
		&t.HasReceipt, &receiptID, &receiptURL, &receiptOCR, &createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, err
	}

	if t.ID, err = uuid.Parse(id); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}
	if t.UserID, err = uuid.Parse(userID); err != nil {
		return core.Transaction{}, fmt.Errorf("parse user id: %w", err)
	}
	t.Type = core.TransactionType(typ)
	t.Value = core.Money{Cents: cents}
	t.ExpenseType = core.ExpenseType(expenseType.String)
	if t.Date, err = parseTime(date); err != nil {
		return core.Transaction{}, err
	}
	if t.ReceiptID, err = parseNullUUID(receiptID); err != nil {
		return core.Transaction{}, err
	}
	t.ReceiptURL = receiptURL.String
	if t.ReceiptOCR, err = decodeOCR(receiptOCR); err != nil {
		return core.Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = parseNullTime(updatedAt); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func scanReceipt(s scanner) (core.Receipt, error) {
	var (
		r                  core.Receipt
		id, userID         string
		transactionID      sql.NullString
		ocrData, updatedAt sql.NullString
		createdAt          string
	)
	err := s.Scan(&id, &userID, &transactionID, &r.FileName, &r.FileURL, &r.FileSize, &r.MimeType,
		&r.OcrProcessed, &ocrData, &r.OcrAttempts, &createdAt, &updatedAt)
	if err != nil {
		return core.Receipt{}, err
	}

	if r.ID, err = uuid.Parse(id); err != nil {
		return core.Receipt{}, fmt.Errorf("parse receipt id: %w", err)
	}
	if r.UserID, err = uuid.Parse(userID); err != nil {
		return core.Receipt{}, fmt.Errorf("parse user id: %w", err)
	}
	if r.TransactionID, err = parseNullUUID(transactionID); err != nil {
		return core.Receipt{}, err
	}
	if r.OcrData, err = decodeOCR(ocrData); err != nil {
		return core.Receipt{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Receipt{}, err
	}
	if r.UpdatedAt, err = parseNullTime(updatedAt); err != nil {
		return core.Receipt{}, err
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("parse stored id %q: %w", s.String, err)
	}
	return &id, nil
}

func encodeOCR(o *core.OcrExtraction) (sql.NullString, error) {
	if o == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode ocr data: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeOCR(s sql.NullString) (*core.OcrExtraction, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var o core.OcrExtraction
	if err := json.Unmarshal([]byte(s.String), &o); err != nil {
		return nil, fmt.Errorf("decode ocr data: %w", err)
	}
	if o.LineItems == nil {
		o.LineItems = []core.OcrLineItem{}
	}
	return &o, nil
}
