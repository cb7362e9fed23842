package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/storage/memory"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func testClock() core.Clock { return core.FixedClock{T: testNow} }

// fakeFiles keeps uploaded files in a map keyed by URL.
type fakeFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	failErr error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: map[string][]byte{}}
}

func (f *fakeFiles) Upload(_ context.Context, data []byte, name, _, folder string) (string, error) {
	if f.failErr != nil {
		return "", f.failErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url := fmt.Sprintf("mem://%s/%s-%s", folder, uuid.NewString(), name)
	f.files[url] = append([]byte(nil), data...)
	return url, nil
}

func (f *fakeFiles) Download(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[url]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (f *fakeFiles) Delete(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[url]
	delete(f.files, url)
	return ok, nil
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// fakeOCR returns a fixed extraction, or err when set.
type fakeOCR struct {
	mu    sync.Mutex
	data  core.OcrExtraction
	err   error
	calls int
	delay time.Duration
}

func (o *fakeOCR) Extract(ctx context.Context, _ string) (core.OcrExtraction, error) {
	o.mu.Lock()
	o.calls++
	data, err, delay := o.data, o.err, o.delay
	o.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return core.OcrExtraction{}, ctx.Err()
		}
	}
	return data, err
}

func (o *fakeOCR) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// goDispatcher runs each job on its own goroutine, like a fire-and-forget task.
type goDispatcher struct {
	handle func(context.Context, core.OCRJob) error
	wg     sync.WaitGroup
	mu     sync.Mutex
	jobs   []core.OCRJob
}

func (d *goDispatcher) DispatchOCR(_ context.Context, job core.OCRJob) error {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
	if d.handle == nil {
		return nil
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.handle(context.Background(), job)
	}()
	return nil
}

func (d *goDispatcher) dispatched() []core.OCRJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.OCRJob(nil), d.jobs...)
}

// failingStore breaks every read the query engine issues.
type failingStore struct {
	*memory.Store
	failList  bool
	failCount bool
	failAgg   bool
}

var errDiskIO = errors.New("disk I/O error")

func (s *failingStore) ListTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter, offset, limit int) ([]core.Transaction, error) {
	if s.failList {
		return nil, errDiskIO
	}
	return s.Store.ListTransactions(ctx, userID, f, offset, limit)
}

func (s *failingStore) CountTransactions(ctx context.Context, userID uuid.UUID, f core.TransactionFilter) (int, error) {
	if s.failCount {
		return 0, errDiskIO
	}
	return s.Store.CountTransactions(ctx, userID, f)
}

func (s *failingStore) AggregateTransactions(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]core.AggregateRow, error) {
	if s.failAgg {
		return nil, errDiskIO
	}
	return s.Store.AggregateTransactions(ctx, userID, start, end)
}

type fixture struct {
	user     uuid.UUID
	store    *memory.Store
	files    *fakeFiles
	ocr      *fakeOCR
	dispatch *goDispatcher
	ledger   *LedgerService
	query    *QueryService
	receipts *ReceiptService
	promoter *Promoter
}

func newFixture() *fixture {
	user := uuid.New()
	store := memory.New(user)
	value := core.Money{Cents: 8990}
	date := testNow.AddDate(0, 0, -2)
	conf := 0.93
	f := &fixture{
		user:  user,
		store: store,
		files: newFakeFiles(),
		ocr: &fakeOCR{data: core.OcrExtraction{
			MerchantName:   "Supermercado Central",
			ExtractedDate:  &date,
			ExtractedValue: &value,
			Currency:       "BRL",
			LineItems: []core.OcrLineItem{
				{Name: "Arroz", Quantity: 1, UnitPrice: core.Money{Cents: 2990}, TotalPrice: core.Money{Cents: 2990}},
				{Name: "Café", Quantity: 2, UnitPrice: core.Money{Cents: 3000}, TotalPrice: core.Money{Cents: 6000}},
			},
			Confidence: &conf,
		}},
		dispatch: &goDispatcher{},
	}
	f.ledger = NewLedgerService(store, UserDirectoryFunc(store.UserExists), f.files, testClock())
	f.query = NewQueryService(store, core.NewCategories(core.DefaultExpenseCategories()))
	f.receipts = NewReceiptService(store, store, f.files, f.ocr, f.dispatch, testClock(), ReceiptServiceConfig{OCRTimeout: time.Second})
	f.promoter = NewPromoter(store, testClock())
	f.dispatch.handle = f.receipts.HandleOCRJob
	return f
}

func (f *fixture) mustCreate(in CreateTransactionInput) core.Transaction {
	if in.UserID == uuid.Nil {
		in.UserID = f.user
	}
	tx, err := f.ledger.Create(context.Background(), in)
	if err != nil {
		panic(fmt.Sprintf("create: %v", err))
	}
	return tx
}

func expenseInput(cents int64, category string, et core.ExpenseType, date time.Time) CreateTransactionInput {
	return CreateTransactionInput{
		Type:        core.Expense,
		Value:       core.Money{Cents: cents},
		Description: "expense",
		Category:    category,
		Date:        date,
		ExpenseType: et,
	}
}

func incomeInput(cents int64, category string, date time.Time) CreateTransactionInput {
	return CreateTransactionInput{
		Type:        core.Income,
		Value:       core.Money{Cents: cents},
		Description: "income",
		Category:    category,
		Date:        date,
	}
}

// waitProcessed polls until the receipt reports ocrProcessed.
func waitProcessed(svc *ReceiptService, id, user uuid.UUID) (core.Receipt, error) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, err := svc.GetReceipt(context.Background(), id, user)
		if err != nil {
			return core.Receipt{}, err
		}
		if r.OcrProcessed {
			return r, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return core.Receipt{}, errors.New("ocr did not complete")
}
