package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierCap(t *testing.T) {
	cases := []struct {
		outcomes uint8
		want     int64
	}{
		{1, 100},
		{2, 70},
		{3, 25},
		{4, 25},
		{5, 15},
		{8, 15},
		{9, 12},
		{16, 12},
		{17, 10},
		{64, 10},
		{65, 5},
		{255, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierCap(tc.outcomes), "outcomes=%d", tc.outcomes)
	}
}

func TestNewVerseClampsLeverage(t *testing.T) {
	params := DefaultParams
	params.MaxLeverage = 500

	v, err := NewVerse("v1", "binary", 2, params)
	require.NoError(t, err)
	assert.Equal(t, int64(70), v.MaxLeverage, "leverage above the 2-outcome tier cap is clamped")

	params.MaxLeverage = 10
	v, err = NewVerse("v2", "binary", 2, params)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.MaxLeverage, "leverage under the cap is kept")
}

func TestNewVerseValidation(t *testing.T) {
	_, err := NewVerse("", "no id", 2, DefaultParams)
	assert.Error(t, err)

	_, err = NewVerse("v1", "one outcome", 1, DefaultParams)
	assert.Error(t, err)

	bad := DefaultParams
	bad.TickSize = 0
	_, err = NewVerse("v1", "zero tick", 2, bad)
	assert.Error(t, err)

	bad = DefaultParams
	bad.TickSize = PriceScale
	_, err = NewVerse("v1", "tick too wide", 2, bad)
	assert.Error(t, err)

	bad = DefaultParams
	bad.MinOrderQty = 100
	bad.MaxOrderQty = 10
	_, err = NewVerse("v1", "min above max", 2, bad)
	assert.Error(t, err)
}

func TestValidPrice(t *testing.T) {
	v, err := NewVerse("v1", "binary", 2, Params{TickSize: 10, LotSize: 1})
	require.NoError(t, err)

	assert.True(t, v.ValidPrice(5000))
	assert.True(t, v.ValidPrice(10))
	assert.True(t, v.ValidPrice(9990))

	assert.False(t, v.ValidPrice(0), "zero probability is outside the band")
	assert.False(t, v.ValidPrice(PriceScale), "certainty is outside the band")
	assert.False(t, v.ValidPrice(5005), "off-tick price")
	assert.False(t, v.ValidPrice(-10))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	v, err := NewVerse("v1", "binary", 2, DefaultParams)
	require.NoError(t, err)

	require.NoError(t, r.Register(v))
	assert.Error(t, r.Register(v), "duplicate id")
	assert.True(t, r.Exists("v1"))
	assert.Equal(t, 1, r.Count())

	got, err := r.Get("v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.ID)

	_, err = r.Get("missing")
	assert.Error(t, err)

	require.NoError(t, r.UpdateStatus("v1", Resolved))
	assert.Error(t, r.UpdateStatus("v1", Active), "resolved is terminal")
}
