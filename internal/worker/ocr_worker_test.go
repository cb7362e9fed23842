package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"zetafin/internal/amqp"
	"zetafin/internal/core"
)

type fakeJobs struct {
	got []core.OCRJob
	err error
}

func (f *fakeJobs) HandleOCRJob(_ context.Context, job core.OCRJob) error {
	f.got = append(f.got, job)
	return f.err
}

type fakeSweeper struct {
	n   int
	err error
}

func (f fakeSweeper) Sweep(context.Context) (int, error) { return f.n, f.err }

func TestHandleOCRMessage(t *testing.T) {
	jobs := &fakeJobs{}
	w := NewOCRWorker(jobs, nil)

	msg := &amqp.OCRRequestMessage{JobID: "j1", ReceiptID: uuid.New(), UserID: uuid.New(), FileURL: "s3://b/k"}
	if err := w.HandleOCRMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(jobs.got) != 1 || jobs.got[0].ReceiptID != msg.ReceiptID || jobs.got[0].FileURL != msg.FileURL {
		t.Fatalf("unexpected jobs: %+v", jobs.got)
	}

	jobs.err = errors.New("ocr failed")
	if err := w.HandleOCRMessage(context.Background(), msg); !errors.Is(err, jobs.err) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
}

func TestStartupSweep(t *testing.T) {
	tests := []struct {
		name    string
		sweeper Sweeper
		wantErr bool
	}{
		{"no sweeper", nil, false},
		{"nothing pending", fakeSweeper{}, false},
		{"some pending", fakeSweeper{n: 3}, false},
		{"store failure", fakeSweeper{err: errors.New("db locked")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewOCRWorker(&fakeJobs{}, tt.sweeper)
			err := w.StartupSweep(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
