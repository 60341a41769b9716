package usecase_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_market_table/internal/domain"
)

func dec(f float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(f), Valid: true}
}

func coin(id, name, symbol string, price, ath, marketCap float64) domain.CoinRecord {
	return domain.CoinRecord{
		ID:           id,
		Name:         name,
		Symbol:       symbol,
		CurrentPrice: dec(price),
		ATH:          dec(ath),
		ATHDate:      "2024-01-01T00:00:00.000Z",
		MarketCap:    dec(marketCap),
		Image:        "https://example.com/" + id + ".png",
	}
}

// MockProvider is a MarketDataProvider with call accounting.
type MockProvider struct {
	mu      sync.Mutex
	records []domain.CoinRecord
	err     error
	delay   time.Duration
	starts  []time.Time
	ends    []time.Time

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *MockProvider) Set(records []domain.CoinRecord, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.err = err
}

func (m *MockProvider) FetchTopCoins(ctx context.Context) ([]domain.CoinRecord, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.starts = append(m.starts, time.Now())
	delay, records, err := m.delay, m.records, m.err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &domain.FetchError{Op: "markets", Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	m.ends = append(m.ends, time.Now())
	m.mu.Unlock()
	return records, err
}

func (m *MockProvider) Timeline() (starts, ends []time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.starts...), append([]time.Time(nil), m.ends...)
}

// MockJournal records saved refreshes in memory.
type MockJournal struct {
	mu      sync.Mutex
	records []domain.RefreshRecord
}

func (j *MockJournal) SaveRefresh(ctx context.Context, rec *domain.RefreshRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, *rec)
	return nil
}

func (j *MockJournal) ListRefreshes(ctx context.Context, limit int) ([]*domain.RefreshRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*domain.RefreshRecord
	for i := len(j.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := j.records[i]
		out = append(out, &r)
	}
	return out, nil
}

func (j *MockJournal) Records() []domain.RefreshRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.RefreshRecord(nil), j.records...)
}
