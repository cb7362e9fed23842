// Package ocr holds the receipt extraction providers.
package ocr

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"zetafin/internal/core"
)

var mockMerchants = []string{
	"Supermercado Extra",
	"Padaria São José",
	"Restaurante Bom Gosto",
	"Farmácia Saúde",
	"Posto de Gasolina Shell",
	"Loja de Roupas Fashion",
	"Livraria Cultura",
	"Cafeteria Central",
}

var mockItems = []struct {
	name      string
	basePrice int64 // cents
}{
	{"Arroz", 1500},
	{"Feijão", 1200},
	{"Café", 1800},
	{"Leite", 500},
	{"Pão", 800},
	{"Carne", 3500},
	{"Frango", 2200},
	{"Frutas", 1000},
}

// Mock fabricates plausible extractions for development and tests.
// Output depends only on the seed, the call order and the clock.
type Mock struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock core.Clock
	delay time.Duration
}

func NewMock(seed uint64, clock core.Clock) *Mock {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Mock{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		clock: clock,
	}
}

// WithDelay makes every Extract call take at least d, honouring ctx.
func (m *Mock) WithDelay(d time.Duration) *Mock {
	m.delay = d
	return m
}

func (m *Mock) Extract(ctx context.Context, fileURL string) (core.OcrExtraction, error) {
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return core.OcrExtraction{}, ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 2 + m.rng.IntN(4)
	items := make([]core.OcrLineItem, 0, count)
	var total core.Money
	for i := 0; i < count; i++ {
		it := mockItems[m.rng.IntN(len(mockItems))]
		qty := 1 + m.rng.IntN(3)
		unit := it.basePrice + m.rng.Int64N(501) - 250
		if unit < 100 {
			unit = 100
		}
		line := core.Money{Cents: unit * int64(qty)}
		items = append(items, core.OcrLineItem{
			Name:       it.name,
			Quantity:   qty,
			UnitPrice:  core.Money{Cents: unit},
			TotalPrice: line,
		})
		total = total.Add(line)
	}

	date := core.StartOfDay(m.clock.Now()).AddDate(0, 0, -m.rng.IntN(30))
	confidence := 0.85 + m.rng.Float64()*0.15

	return core.OcrExtraction{
		MerchantName:   mockMerchants[m.rng.IntN(len(mockMerchants))],
		ExtractedDate:  &date,
		ExtractedValue: &total,
		Currency:       "BRL",
		LineItems:      items,
		Confidence:     &confidence,
	}, nil
}
