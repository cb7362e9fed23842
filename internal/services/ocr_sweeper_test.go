package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/storage/memory"
)

func TestDefaultSweeperConfig(t *testing.T) {
	config := DefaultSweeperConfig()

	if config.PollInterval != 1*time.Minute {
		t.Errorf("expected PollInterval 1m, got %v", config.PollInterval)
	}
	if config.Age != 5*time.Minute {
		t.Errorf("expected Age 5m, got %v", config.Age)
	}
	if config.BatchSize != 20 {
		t.Errorf("expected BatchSize 20, got %d", config.BatchSize)
	}
	if config.MaxAttempts != 5 {
		t.Errorf("expected MaxAttempts 5, got %d", config.MaxAttempts)
	}
}

func TestOCRSweeper_IsRunning(t *testing.T) {
	sweeper := NewOCRSweeper(memory.New(), &goDispatcher{}, nil, DefaultSweeperConfig())

	if sweeper.IsRunning() {
		t.Error("sweeper should not be running initially")
	}
}

func TestOCRSweeper_StartTwice(t *testing.T) {
	config := DefaultSweeperConfig()
	config.PollInterval = 10 * time.Millisecond
	sweeper := NewOCRSweeper(memory.New(), &goDispatcher{}, nil, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := sweeper.Start(ctx); err == nil {
		t.Error("expected error when starting already running sweeper")
	}
	if err := sweeper.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sweeper.IsRunning() {
		t.Error("sweeper should not be running after Stop")
	}
}

func TestOCRSweeper_StopNotRunning(t *testing.T) {
	sweeper := NewOCRSweeper(memory.New(), &goDispatcher{}, nil, DefaultSweeperConfig())

	if err := sweeper.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestOCRSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	store := memory.New(user)

	old := testNow.Add(-time.Hour)
	stale := &core.Receipt{ID: uuid.New(), UserID: user, FileURL: "mem://a", CreatedAt: old}
	recent := &core.Receipt{ID: uuid.New(), UserID: user, FileURL: "mem://b", CreatedAt: testNow.Add(-time.Minute)}
	done := &core.Receipt{ID: uuid.New(), UserID: user, FileURL: "mem://c", CreatedAt: old, OcrProcessed: true}
	exhausted := &core.Receipt{ID: uuid.New(), UserID: user, FileURL: "mem://d", CreatedAt: old, OcrAttempts: 5}
	for _, r := range []*core.Receipt{stale, recent, done, exhausted} {
		_ = store.CreateReceipt(ctx, r)
	}

	dispatch := &goDispatcher{}
	sweeper := NewOCRSweeper(store, dispatch, testClock(), DefaultSweeperConfig())
	n, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	jobs := dispatch.dispatched()
	if n != 1 || len(jobs) != 1 || jobs[0].ReceiptID != stale.ID || jobs[0].FileURL != "mem://a" {
		t.Fatalf("expected only the stale receipt, got n=%d jobs=%+v", n, jobs)
	}
}

func TestOCRSweeper_DispatchFailureContinues(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	store := memory.New(user)
	for i := 0; i < 3; i++ {
		_ = store.CreateReceipt(ctx, &core.Receipt{ID: uuid.New(), UserID: user, CreatedAt: testNow.Add(-time.Hour)})
	}

	calls := 0
	dispatch := OCRDispatcherFunc(func(context.Context, core.OCRJob) error {
		calls++
		if calls == 1 {
			return errors.New("broker unavailable")
		}
		return nil
	})
	sweeper := NewOCRSweeper(store, dispatch, testClock(), DefaultSweeperConfig())
	n, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 || n != 2 {
		t.Fatalf("calls=%d dispatched=%d", calls, n)
	}
}

func TestOCRSweeper_StopAfterTimeout(t *testing.T) {
	user := uuid.New()
	store := memory.New(user)
	_ = store.CreateReceipt(context.Background(), &core.Receipt{ID: uuid.New(), UserID: user, CreatedAt: testNow.Add(-time.Hour)})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	dispatch := OCRDispatcherFunc(func(context.Context, core.OCRJob) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	})

	config := DefaultSweeperConfig()
	config.PollInterval = time.Millisecond
	sweeper := NewOCRSweeper(store, dispatch, testClock(), config)
	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-entered

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 2; i++ {
		if err := sweeper.Stop(expired); !errors.Is(err, context.Canceled) {
			t.Fatalf("stop %d: expected context.Canceled, got %v", i, err)
		}
		if !sweeper.IsRunning() {
			t.Fatalf("stop %d: sweeper should still count as running", i)
		}
	}

	close(release)
	if err := sweeper.Stop(context.Background()); err != nil {
		t.Fatalf("final stop: %v", err)
	}
	if sweeper.IsRunning() {
		t.Error("sweeper should not be running after Stop")
	}
}
