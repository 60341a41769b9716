package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/crypto_market_table/internal/domain"
	"go.uber.org/zap"
)

const (
	BaseURL = "https://api.coingecko.com/api/v3"

	// PageSize bounds the snapshot; the provider orders by market cap desc.
	PageSize   = 100
	VsCurrency = "usd"

	opMarkets = "markets"
)

type Config struct {
	BaseURL string
	APIKey  string // optional demo key
	Timeout time.Duration
	Retry   RetryConfig
}

// Client fetches the top coins by market capitalisation from CoinGecko.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetry
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

func (c *Client) marketsURL() string {
	q := url.Values{}
	q.Set("vs_currency", VsCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(PageSize))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/coins/markets?" + q.Encode()
}

// FetchTopCoins performs one request for the current market snapshot.
func (c *Client) FetchTopCoins(ctx context.Context) ([]domain.CoinRecord, error) {
	u := c.marketsURL()
	resp, err := do(ctx, c.httpClient, c.cfg.Retry, c.logger, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.cfg.APIKey)
		}
		return req, nil
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, &domain.FetchError{Op: opMarkets, StatusCode: se.StatusCode, Err: errors.New(strings.TrimSpace(se.Body))}
		}
		return nil, &domain.FetchError{Op: opMarkets, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.FetchError{
			Op:         opMarkets,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &domain.FetchError{Op: opMarkets, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}

	records := make([]domain.CoinRecord, 0, len(raw))
	malformed := 0
	for i, item := range raw {
		records = append(records, decodeRecord(i, item))
		if records[i].DecodeErr != nil {
			malformed++
		}
	}

	if malformed > 0 {
		c.logger.Warn("Snapshot contains malformed records", zap.Int("malformed", malformed), zap.Int("records", len(records)))
	}
	c.logger.Debug("Fetched market snapshot", zap.Int("records", len(records)))
	return records, nil
}

// decodeRecord decodes one array element. A bad element is returned with
// DecodeErr set so the rest of the snapshot survives.
func decodeRecord(i int, item json.RawMessage) domain.CoinRecord {
	var rec domain.CoinRecord
	err := json.Unmarshal(item, &rec)
	if err == nil {
		return rec
	}

	var ident struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(item, &ident)
	return domain.CoinRecord{ID: ident.ID, DecodeErr: fmt.Errorf("element %d: %w", i, err)}
}
