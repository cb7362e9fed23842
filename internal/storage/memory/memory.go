// Package memory is a process-local store for development and tests. Every
// write happens under one lock, so readers never observe a half-applied
// change.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

type Store struct {
	mu       sync.RWMutex
	seq      int64
	users    map[uuid.UUID]struct{}
	txs      map[uuid.UUID]core.Transaction
	receipts map[uuid.UUID]core.Receipt
	goals    map[uuid.UUID]core.Goal
	deposits map[uuid.UUID][]core.Deposit
	members  map[uuid.UUID][]core.GoalMember
}

func New(users ...uuid.UUID) *Store {
	s := &Store{
		users:    make(map[uuid.UUID]struct{}),
		txs:      make(map[uuid.UUID]core.Transaction),
		receipts: make(map[uuid.UUID]core.Receipt),
		goals:    make(map[uuid.UUID]core.Goal),
		deposits: make(map[uuid.UUID][]core.Deposit),
		members:  make(map[uuid.UUID][]core.GoalMember),
	}
	for _, u := range users {
		s.users[u] = struct{}{}
	}
	return s
}

func (s *Store) EnsureUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
	return nil
}

func (s *Store) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *Store) CreateTransaction(_ context.Context, t *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertTx(t)
	return nil
}

func (s *Store) insertTx(t *core.Transaction) {
	s.seq++
	t.Seq = s.seq
	s.txs[t.ID] = cloneTx(*t)
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return cloneTx(t), nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[t.ID]
	if !ok {
		return core.NotFound("transaction", t.ID)
	}
	cur.Value = t.Value
	cur.Description = t.Description
	cur.Category = t.Category
	cur.Date = t.Date
	cur.UpdatedAt = t.UpdatedAt
	s.txs[t.ID] = cloneTx(cur)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return false, nil
	}
	delete(s.txs, id)
	for rid, r := range s.receipts {
		if r.TransactionID != nil && *r.TransactionID == id {
			delete(s.receipts, rid)
		}
	}
	return true, nil
}

func (s *Store) ListTransactions(_ context.Context, userID uuid.UUID, f core.TransactionFilter, offset, limit int) ([]core.Transaction, error) {
	s.mu.RLock()
	matched := s.filter(userID, f)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].Seq < matched[j].Seq
	})

	if offset >= len(matched) {
		return []core.Transaction{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *Store) CountTransactions(_ context.Context, userID uuid.UUID, f core.TransactionFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filter(userID, f)), nil
}

func (s *Store) AggregateTransactions(_ context.Context, userID uuid.UUID, start, end *time.Time) ([]core.AggregateRow, error) {
	s.mu.RLock()
	matched := s.filter(userID, core.TransactionFilter{Start: start, End: end})
	s.mu.RUnlock()

	type key struct {
		typ core.TransactionType
		cat string
		et  core.ExpenseType
	}
	groups := map[key]*core.AggregateRow{}
	var order []key
	for _, t := range matched {
		k := key{t.Type, t.Category, t.ExpenseType}
		row, ok := groups[k]
		if !ok {
			row = &core.AggregateRow{Type: t.Type, Category: t.Category, ExpenseType: t.ExpenseType}
			groups[k] = row
			order = append(order, k)
		}
		row.Total = row.Total.Add(t.Value)
		row.Count++
	}
	out := make([]core.AggregateRow, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

// filter must be called with the lock held.
func (s *Store) filter(userID uuid.UUID, f core.TransactionFilter) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.txs {
		if t.UserID != userID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Start != nil && t.Date.Before(*f.Start) {
			continue
		}
		if f.End != nil && t.Date.After(*f.End) {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.ExpenseType != "" && t.ExpenseType != f.ExpenseType {
			continue
		}
		out = append(out, cloneTx(t))
	}
	return out
}

func (s *Store) CreateReceipt(_ context.Context, r *core.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[r.ID] = cloneReceipt(*r)
	return nil
}

func (s *Store) GetReceipt(_ context.Context, id uuid.UUID) (core.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return core.Receipt{}, core.NotFound("receipt", id)
	}
	return cloneReceipt(r), nil
}

func (s *Store) ListReceipts(_ context.Context, userID uuid.UUID) ([]core.Receipt, error) {
	s.mu.RLock()
	out := []core.Receipt{}
	for _, r := range s.receipts {
		if r.UserID == userID {
			out = append(out, cloneReceipt(r))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) DeleteReceipt(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[id]; !ok {
		return false, nil
	}
	delete(s.receipts, id)
	return true, nil
}

func (s *Store) SaveOCRResult(_ context.Context, id uuid.UUID, data core.OcrExtraction, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return core.NotFound("receipt", id)
	}
	r.OcrProcessed = true
	r.OcrData = cloneOCR(&data)
	r.UpdatedAt = &at
	s.receipts[id] = r

	if r.TransactionID != nil {
		if t, ok := s.txs[*r.TransactionID]; ok {
			t.ReceiptOCR = cloneOCR(&data)
			s.txs[t.ID] = t
		}
	}
	return nil
}

func (s *Store) RecordOCRAttempt(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return core.NotFound("receipt", id)
	}
	r.OcrAttempts++
	r.UpdatedAt = &at
	s.receipts[id] = r
	return nil
}

func (s *Store) ListPendingOCR(_ context.Context, olderThan time.Time, maxAttempts, limit int) ([]core.Receipt, error) {
	s.mu.RLock()
	var out []core.Receipt
	for _, r := range s.receipts {
		if r.OcrProcessed || r.OcrAttempts >= maxAttempts {
			continue
		}
		touched := r.CreatedAt
		if r.UpdatedAt != nil {
			touched = *r.UpdatedAt
		}
		if touched.After(olderThan) {
			continue
		}
		out = append(out, cloneReceipt(r))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AttachReceipt(_ context.Context, r *core.Receipt, txID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[txID]
	if !ok {
		return core.NotFound("transaction", txID)
	}
	if t.HasReceipt {
		return core.Conflict("transaction already has a receipt")
	}
	id := txID
	r.TransactionID = &id
	s.receipts[r.ID] = cloneReceipt(*r)

	rid := r.ID
	t.HasReceipt = true
	t.ReceiptID = &rid
	t.ReceiptURL = r.FileURL
	t.ReceiptOCR = cloneOCR(r.OcrData)
	s.txs[txID] = t
	return nil
}

func (s *Store) PromoteReceipt(_ context.Context, receiptID uuid.UUID, t *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[receiptID]
	if !ok {
		return core.NotFound("receipt", receiptID)
	}
	if r.TransactionID != nil {
		return core.Conflict("receipt already linked to a transaction")
	}
	s.insertTx(t)

	id := t.ID
	r.TransactionID = &id
	updated := t.CreatedAt
	r.UpdatedAt = &updated
	s.receipts[receiptID] = r
	return nil
}

func cloneTx(t core.Transaction) core.Transaction {
	if t.ReceiptID != nil {
		id := *t.ReceiptID
		t.ReceiptID = &id
	}
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		t.UpdatedAt = &u
	}
	t.ReceiptOCR = cloneOCR(t.ReceiptOCR)
	return t
}

func cloneReceipt(r core.Receipt) core.Receipt {
	if r.TransactionID != nil {
		id := *r.TransactionID
		r.TransactionID = &id
	}
	if r.UpdatedAt != nil {
		u := *r.UpdatedAt
		r.UpdatedAt = &u
	}
	r.OcrData = cloneOCR(r.OcrData)
	return r
}

func cloneOCR(o *core.OcrExtraction) *core.OcrExtraction {
	if o == nil {
		return nil
	}
	c := *o
	if o.ExtractedDate != nil {
		d := *o.ExtractedDate
		c.ExtractedDate = &d
	}
	if o.ExtractedValue != nil {
		v := *o.ExtractedValue
		c.ExtractedValue = &v
	}
	if o.Confidence != nil {
		f := *o.Confidence
		c.Confidence = &f
	}
	c.LineItems = make([]core.OcrLineItem, len(o.LineItems))
	copy(c.LineItems, o.LineItems)
	return &c
}

// Close is a no-op; it lets the store satisfy the same lifecycle as the
// durable backends.
func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }
