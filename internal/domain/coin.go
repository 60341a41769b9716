package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoinRecord is one entry of a market snapshot as delivered by the provider.
// Monetary fields are nullable so that missing values can be told apart from zero.
type CoinRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Symbol       string              `json:"symbol"`
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	ATH          decimal.NullDecimal `json:"ath"`
	ATHDate      string              `json:"ath_date"`
	MarketCap    decimal.NullDecimal `json:"market_cap"`
	Image        string              `json:"image"`

	// DecodeErr is set by the provider when the entry could not be decoded.
	// Such records carry at most an ID and are dropped by the transformer.
	DecodeErr error `json:"-"`
}

// Row is a display-ready coin. Every formatted field has a numeric twin
// which is what the comparator reads.
type Row struct {
	ID    string `json:"id"`
	Image string `json:"image"`

	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Coin   string `json:"coin"` // "<name> (<symbol>)"

	Price        float64 `json:"price_value"`
	PriceDisplay string  `json:"price"`

	ATH        float64   `json:"ath_value"`
	ATHDisplay string    `json:"ath"`
	ATHDate    time.Time `json:"ath_date"`

	DaysSinceATH int `json:"days_since_ath"`

	MarketCap        float64 `json:"market_cap_value"`
	MarketCapDisplay string  `json:"market_cap"`

	MarketShare        float64 `json:"market_share_value"`
	MarketShareDisplay string  `json:"market_share"`
}

// Dataset is the published, ordered view of the latest snapshot.
type Dataset struct {
	Rows      []Row     `json:"rows"`
	Sort      SortSpec  `json:"sort"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
