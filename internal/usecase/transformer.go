package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_market_table/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const day = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Transform derives display rows from a snapshot. Output order is input
// order. Records missing a required field are dropped and reported in
// skipped; the market total only includes the records that were kept.
func Transform(records []domain.CoinRecord, now time.Time) (rows []domain.Row, skipped []error) {
	type accepted struct {
		rec     domain.CoinRecord
		athDate time.Time
	}

	valid := make([]accepted, 0, len(records))
	total := decimal.Zero
	for _, rec := range records {
		athDate, err := validateRecord(rec)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		valid = append(valid, accepted{rec: rec, athDate: athDate})
		total = total.Add(rec.MarketCap.Decimal)
	}

	p := message.NewPrinter(language.English)
	rows = make([]domain.Row, 0, len(valid))
	for _, a := range valid {
		rec := a.rec

		share := decimal.Zero
		if !total.IsZero() {
			share = rec.MarketCap.Decimal.Div(total).Mul(hundred)
		}

		rows = append(rows, domain.Row{
			ID:     rec.ID,
			Image:  rec.Image,
			Name:   rec.Name,
			Symbol: rec.Symbol,
			Coin:   fmt.Sprintf("%s (%s)", rec.Name, rec.Symbol),

			Price:        rec.CurrentPrice.Decimal.InexactFloat64(),
			PriceDisplay: formatUSD(p, rec.CurrentPrice.Decimal),

			ATH:        rec.ATH.Decimal.InexactFloat64(),
			ATHDisplay: formatUSD(p, rec.ATH.Decimal),
			ATHDate:    a.athDate,

			DaysSinceATH: DaysSince(a.athDate, now),

			MarketCap:        rec.MarketCap.Decimal.InexactFloat64(),
			MarketCapDisplay: formatUSD(p, rec.MarketCap.Decimal),

			MarketShare:        share.InexactFloat64(),
			MarketShareDisplay: share.StringFixed(3) + "%",
		})
	}
	return rows, skipped
}

// DaysSince returns the whole number of days from t to now, rounded to the
// nearest day. Future dates give negative values.
func DaysSince(t, now time.Time) int {
	return int(math.Round(float64(now.Sub(t)) / float64(day)))
}

func validateRecord(rec domain.CoinRecord) (time.Time, error) {
	switch {
	case rec.DecodeErr != nil:
		return time.Time{}, fmt.Errorf("malformed record %q: %w", rec.ID, rec.DecodeErr)
	case rec.ID == "":
		return time.Time{}, fmt.Errorf("missing id")
	case rec.Name == "" || rec.Symbol == "":
		return time.Time{}, fmt.Errorf("%s: missing name or symbol", rec.ID)
	case !rec.CurrentPrice.Valid:
		return time.Time{}, fmt.Errorf("%s: missing current_price", rec.ID)
	case !rec.ATH.Valid:
		return time.Time{}, fmt.Errorf("%s: missing ath", rec.ID)
	case !rec.MarketCap.Valid || rec.MarketCap.Decimal.IsNegative():
		return time.Time{}, fmt.Errorf("%s: missing market_cap", rec.ID)
	}
	t, err := parseATHDate(rec.ATHDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: bad ath_date: %w", rec.ID, err)
	}
	return t, nil
}

func parseATHDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// formatUSD renders d as "$1,234.50" without going through float64, so
// large values keep their cents.
func formatUSD(p *message.Printer, d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	return sign + "$" + p.Sprintf("%d", d.IntPart()) + fixed[strings.IndexByte(fixed, '.'):]
}
