package order

import "github.com/versemarket/versex/pkg/exchange/market"

// Trade is an immutable record of a match. Created only by the matching
// core; never mutated after creation.
type Trade struct {
	ID           string
	VerseID      string
	Outcome      uint8
	MakerOrderID string
	TakerOrderID string
	MakerAccount string
	TakerAccount string
	TakerSide    Side
	Price        int64 // resting order's price, ticks
	Qty          int64
	MakerFee     int64 // negative for rebates
	TakerFee     int64
	Timestamp    int64 // unix ms
}

// Notional returns the trade value in quote cents
func (t *Trade) Notional() int64 {
	return t.Qty * t.Price / market.PriceScale
}

// FeeFor computes a bps fee on a fill's notional
func FeeFor(qty, price, bps int64) int64 {
	return qty * price / market.PriceScale * bps / 10_000
}
