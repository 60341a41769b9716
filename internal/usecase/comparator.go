package usecase

import (
	"cmp"
	"sort"
	"strings"

	"github.com/vitos/crypto_market_table/internal/domain"
)

// SortRows returns a new slice ordered by spec. Ties keep their relative
// input order in both directions. An unsorted spec returns input order.
func SortRows(rows []domain.Row, spec domain.SortSpec) []domain.Row {
	out := make([]domain.Row, len(rows))
	copy(out, rows)
	if spec.Unsorted() {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compareRows(out[i], out[j], spec.Column)
		if spec.Direction == domain.DirectionDescending {
			return c > 0
		}
		return c < 0
	})
	return out
}

// compareRows compares on the numeric value behind each formatted field.
func compareRows(a, b domain.Row, col domain.Column) int {
	switch col {
	case domain.ColumnName:
		return strings.Compare(a.Name, b.Name)
	case domain.ColumnPrice:
		return cmp.Compare(a.Price, b.Price)
	case domain.ColumnATH:
		return cmp.Compare(a.ATH, b.ATH)
	case domain.ColumnDaysSinceATH:
		return cmp.Compare(a.DaysSinceATH, b.DaysSinceATH)
	case domain.ColumnMarketCap:
		return cmp.Compare(a.MarketCap, b.MarketCap)
	case domain.ColumnMarketShare:
		return cmp.Compare(a.MarketShare, b.MarketShare)
	default:
		return 0
	}
}
