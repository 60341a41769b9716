package domain

import (
	"context"
	"time"
)

// MarketDataProvider returns the current top-N market snapshot.
// Any failure is reported as a *FetchError.
type MarketDataProvider interface {
	FetchTopCoins(ctx context.Context) ([]CoinRecord, error)
}

// RefreshRecord is the outcome of one refresh cycle.
type RefreshRecord struct {
	Cycle      uint64    `json:"cycle"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	OK         bool      `json:"ok"`
	Rows       int       `json:"rows"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
}

// RefreshJournal keeps the history of refresh cycles for observability.
type RefreshJournal interface {
	SaveRefresh(ctx context.Context, rec *RefreshRecord) error
	ListRefreshes(ctx context.Context, limit int) ([]*RefreshRecord, error)
}
