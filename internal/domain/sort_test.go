package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_market_table/internal/domain"
)

func TestToggle(t *testing.T) {
	tests := []struct {
		name    string
		current domain.SortSpec
		clicked domain.Column
		want    domain.SortSpec
	}{
		{"Unsorted -> Desc", domain.SortSpec{}, domain.ColumnPrice,
			domain.SortSpec{Column: domain.ColumnPrice, Direction: domain.DirectionDescending}},
		{"Desc -> Asc", domain.SortSpec{Column: domain.ColumnPrice, Direction: domain.DirectionDescending}, domain.ColumnPrice,
			domain.SortSpec{Column: domain.ColumnPrice, Direction: domain.DirectionAscending}},
		{"Asc -> Unsorted", domain.SortSpec{Column: domain.ColumnPrice, Direction: domain.DirectionAscending}, domain.ColumnPrice,
			domain.SortSpec{}},
		{"Other column Asc -> Desc", domain.SortSpec{Column: domain.ColumnName, Direction: domain.DirectionAscending}, domain.ColumnMarketCap,
			domain.SortSpec{Column: domain.ColumnMarketCap, Direction: domain.DirectionDescending}},
		{"Other column Desc -> Desc", domain.SortSpec{Column: domain.ColumnName, Direction: domain.DirectionDescending}, domain.ColumnMarketCap,
			domain.SortSpec{Column: domain.ColumnMarketCap, Direction: domain.DirectionDescending}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Toggle(tt.current, tt.clicked))
		})
	}
}

func TestToggle_ThreeCycleEveryColumn(t *testing.T) {
	for _, c := range domain.Columns {
		spec := domain.Toggle(domain.Toggle(domain.Toggle(domain.SortSpec{}, c.ID), c.ID), c.ID)
		assert.True(t, spec.Unsorted(), "column %s", c.ID)
		assert.Equal(t, domain.SortSpec{}, spec)
	}
}

func TestParseColumn(t *testing.T) {
	c, err := domain.ParseColumn("market_share")
	require.NoError(t, err)
	assert.Equal(t, domain.ColumnMarketShare, c)

	_, err = domain.ParseColumn("volume")
	assert.ErrorIs(t, err, domain.ErrUnknownColumn)
}

func TestSortSpec_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(domain.SortSpec{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"column":null,"direction":"none"}`, string(b))

	b, err = json.Marshal(domain.SortSpec{Column: domain.ColumnATH, Direction: domain.DirectionAscending})
	require.NoError(t, err)
	assert.JSONEq(t, `{"column":"ath","direction":"asc"}`, string(b))
}

func TestSortSpec_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.SortSpec
		wantErr bool
	}{
		{`{"column":null,"direction":"none"}`, domain.SortSpec{}, false},
		{`{"column":"price","direction":"desc"}`, domain.SortSpec{Column: domain.ColumnPrice, Direction: domain.DirectionDescending}, false},
		{`{"column":"market_share","direction":"asc"}`, domain.SortSpec{Column: domain.ColumnMarketShare, Direction: domain.DirectionAscending}, false},
		{`{"column":"volume","direction":"asc"}`, domain.SortSpec{}, true},
		{`{"column":"price","direction":"sideways"}`, domain.SortSpec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got domain.SortSpec
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
