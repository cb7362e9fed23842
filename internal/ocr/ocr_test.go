package ocr

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"google.golang.org/genai"

	"zetafin/internal/core"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func TestMock_Invariants(t *testing.T) {
	m := NewMock(42, core.FixedClock{T: testNow})
	earliest := core.StartOfDay(testNow).AddDate(0, 0, -29)

	for i := 0; i < 50; i++ {
		got, err := m.Extract(context.Background(), "mem://r.jpg")
		if err != nil {
			t.Fatal(err)
		}
		if n := len(got.LineItems); n < 2 || n > 5 {
			t.Fatalf("line items = %d, want 2..5", n)
		}
		var sum int64
		for _, it := range got.LineItems {
			if it.TotalPrice.Cents != it.UnitPrice.Cents*int64(it.Quantity) {
				t.Errorf("item %+v: total != unit*qty", it)
			}
			sum += it.TotalPrice.Cents
		}
		if got.ExtractedValue == nil || got.ExtractedValue.Cents != sum {
			t.Errorf("value %v does not equal item sum %d", got.ExtractedValue, sum)
		}
		if c := *got.Confidence; c < 0.85 || c > 1.0 {
			t.Errorf("confidence %v out of range", c)
		}
		if d := *got.ExtractedDate; d.After(testNow) || d.Before(earliest) {
			t.Errorf("date %v outside the last 30 days", d)
		}
		if got.MerchantName == "" || got.Currency != "BRL" {
			t.Errorf("unexpected merchant/currency: %q %q", got.MerchantName, got.Currency)
		}
	}
}

func TestMock_DeterministicUnderSeed(t *testing.T) {
	a := NewMock(7, core.FixedClock{T: testNow})
	b := NewMock(7, core.FixedClock{T: testNow})
	for i := 0; i < 5; i++ {
		x, _ := a.Extract(context.Background(), "u")
		y, _ := b.Extract(context.Background(), "u")
		if !reflect.DeepEqual(x, y) {
			t.Fatalf("call %d differs:\n%+v\n%+v", i, x, y)
		}
	}
}

func TestMock_DelayHonoursContext(t *testing.T) {
	m := NewMock(1, nil).WithDelay(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := m.Extract(ctx, "u"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type fakeDownloader struct {
	data []byte
	err  error
}

func (f fakeDownloader) Download(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

type fakeGenerator struct {
	text     string
	err      error
	model    string
	mimeType string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	for _, p := range contents[0].Parts {
		if p.InlineData != nil {
			f.mimeType = p.InlineData.MIMEType
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}}},
	}, nil
}

func TestGemini_Extract(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n" + `{
		"merchantName": " Padaria São José ",
		"date": "2025-03-14",
		"total": 23.5,
		"currency": "brl",
		"items": [{"name": "Pão", "quantity": 2, "unitPrice": 4.25, "totalPrice": 8.5},
		          {"name": "Café", "quantity": 1, "unitPrice": 15, "totalPrice": 15}],
		"confidence": 1.2
	}` + "\n```"}
	g := newGemini(gen, fakeDownloader{data: []byte("%PDF-1.7")}, "")

	got, err := g.Extract(context.Background(), "s3://bucket/receipts/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if gen.model != DefaultGeminiModel || gen.mimeType != "application/pdf" {
		t.Errorf("model=%q mime=%q", gen.model, gen.mimeType)
	}
	if got.MerchantName != "Padaria São José" || got.Currency != "BRL" {
		t.Errorf("merchant/currency = %q %q", got.MerchantName, got.Currency)
	}
	if got.ExtractedValue == nil || got.ExtractedValue.Cents != 2350 {
		t.Errorf("value = %v", got.ExtractedValue)
	}
	wantDate := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	if got.ExtractedDate == nil || !got.ExtractedDate.Equal(wantDate) {
		t.Errorf("date = %v", got.ExtractedDate)
	}
	if len(got.LineItems) != 2 || got.LineItems[0].UnitPrice.Cents != 425 {
		t.Errorf("items = %+v", got.LineItems)
	}
	if got.Confidence == nil || *got.Confidence != 1 {
		t.Errorf("confidence should be clamped to 1, got %v", got.Confidence)
	}
}

func TestGemini_Failures(t *testing.T) {
	tests := []struct {
		name  string
		files fakeDownloader
		gen   *fakeGenerator
	}{
		{"download", fakeDownloader{err: errors.New("gone")}, &fakeGenerator{text: "{}"}},
		{"model", fakeDownloader{data: []byte("x")}, &fakeGenerator{err: errors.New("quota")}},
		{"empty", fakeDownloader{data: []byte("x")}, &fakeGenerator{text: ""}},
		{"garbage", fakeDownloader{data: []byte("x")}, &fakeGenerator{text: "I cannot read this receipt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGemini(tt.gen, tt.files, "gemini-test")
			if _, err := g.Extract(context.Background(), "file:///r.jpg"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGemini_SparseResponse(t *testing.T) {
	gen := &fakeGenerator{text: `{"merchantName": null, "date": "not a date", "total": null, "items": []}`}
	g := newGemini(gen, fakeDownloader{data: []byte{0xff, 0xd8, 0xff}}, "m")

	got, err := g.Extract(context.Background(), "http://localhost/files/receipts/blob")
	if err != nil {
		t.Fatal(err)
	}
	if got.ExtractedValue != nil || got.ExtractedDate != nil || got.MerchantName != "" {
		t.Errorf("expected empty optional fields, got %+v", got)
	}
	if got.LineItems == nil {
		t.Error("line items must be an empty slice, not nil")
	}
	if gen.mimeType != "image/jpeg" {
		t.Errorf("sniffed mime = %q", gen.mimeType)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                      `{"a":1}`,
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"Here you go: {\"a\":1} thanks": `{"a":1}`,
	}
	for in, want := range tests {
		if got := cleanModelJSON(in); got != want {
			t.Errorf("cleanModelJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
