package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Column identifies a sortable table column.
type Column string

const (
	ColumnName         Column = "name"
	ColumnPrice        Column = "price"
	ColumnATH          Column = "ath"
	ColumnDaysSinceATH Column = "days_since_ath"
	ColumnMarketCap    Column = "market_cap"
	ColumnMarketShare  Column = "market_share"
)

// ColumnInfo describes a column for the rendering layer.
type ColumnInfo struct {
	ID     Column `json:"id"`
	Header string `json:"header"`
}

// Columns lists the table columns in display order.
var Columns = []ColumnInfo{
	{ID: ColumnName, Header: "Coin (symbol)"},
	{ID: ColumnPrice, Header: "Price"},
	{ID: ColumnATH, Header: "All Time High"},
	{ID: ColumnDaysSinceATH, Header: "Days Since ATH"},
	{ID: ColumnMarketCap, Header: "Market Cap"},
	{ID: ColumnMarketShare, Header: "Market Share"},
}

var ErrUnknownColumn = errors.New("unknown column")

// ParseColumn validates a column identifier coming from outside the process.
func ParseColumn(s string) (Column, error) {
	for _, c := range Columns {
		if string(c.ID) == s {
			return c.ID, nil
		}
	}
	return "", ErrUnknownColumn
}

type Direction int

const (
	DirectionNone Direction = iota
	DirectionDescending
	DirectionAscending
)

func (d Direction) String() string {
	switch d {
	case DirectionDescending:
		return "desc"
	case DirectionAscending:
		return "asc"
	default:
		return "none"
	}
}

// SortSpec is the active single-column sort. The zero value is unsorted.
type SortSpec struct {
	Column    Column
	Direction Direction
}

// Unsorted reports whether rows are shown in provider order.
func (s SortSpec) Unsorted() bool {
	return s.Direction == DirectionNone || s.Column == ""
}

func (s SortSpec) MarshalJSON() ([]byte, error) {
	if s.Unsorted() {
		return json.Marshal(struct {
			Column    *Column `json:"column"`
			Direction string  `json:"direction"`
		}{nil, DirectionNone.String()})
	}
	return json.Marshal(struct {
		Column    Column `json:"column"`
		Direction string `json:"direction"`
	}{s.Column, s.Direction.String()})
}

func (s *SortSpec) UnmarshalJSON(b []byte) error {
	var raw struct {
		Column    *Column `json:"column"`
		Direction string  `json:"direction"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = SortSpec{}
	if raw.Column == nil || *raw.Column == "" {
		return nil
	}
	col, err := ParseColumn(string(*raw.Column))
	if err != nil {
		return err
	}
	switch raw.Direction {
	case "desc":
		*s = SortSpec{Column: col, Direction: DirectionDescending}
	case "asc":
		*s = SortSpec{Column: col, Direction: DirectionAscending}
	case "none", "":
	default:
		return fmt.Errorf("unknown sort direction %q", raw.Direction)
	}
	return nil
}

// Toggle advances the sort state for a header click on clicked.
// Per column the cycle is descending -> ascending -> unsorted; clicking a
// different column always restarts at descending.
func Toggle(current SortSpec, clicked Column) SortSpec {
	if current.Unsorted() || current.Column != clicked {
		return SortSpec{Column: clicked, Direction: DirectionDescending}
	}
	if current.Direction == DirectionDescending {
		return SortSpec{Column: clicked, Direction: DirectionAscending}
	}
	return SortSpec{}
}
