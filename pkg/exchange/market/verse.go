package market

import (
	"fmt"
)

// VerseStatus defines the trading status of a verse (prediction market)
type VerseStatus int8

const (
	Active   VerseStatus = iota // Trading enabled
	Paused                      // Trading halted (emergency)
	Resolving                   // Outcome resolution in progress
	Resolved                    // Verse closed, outcome final
)

func (vs VerseStatus) String() string {
	switch vs {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Resolving:
		return "Resolving"
	case Resolved:
		return "Resolved"
	default:
		return "Unknown"
	}
}

// PriceScale is the fixed-point scale for probability prices.
// All prices are integer ticks where 10000 = probability 1.0,
// so a price of 5000 means 0.50.
const PriceScale int64 = 10000

// Verse defines all parameters for one prediction market.
// Each outcome of a verse has its own order book; prices quote the
// probability of that outcome in integer ticks.
type Verse struct {
	// Identity
	ID       string // catalog id, e.g. "verse-btc-100k-2026"
	Title    string
	Status   VerseStatus
	Outcomes uint8 // number of mutually exclusive outcomes (>= 2)

	// Price & Size Precision
	// TickSize: minimum price increment in probability ticks.
	TickSize int64
	// LotSize: minimum quantity increment in units.
	LotSize int64

	// Order Limits
	MinOrderQty int64
	MaxOrderQty int64

	// MaxLeverage is capped by the outcome-count tier (see TierCap).
	MaxLeverage int64

	// Fees
	MakerFeeBps int64 // can be negative for rebates
	TakerFeeBps int64

	// Metadata
	CreatedAt int64 // unix milliseconds
}

// TierCap returns the maximum leverage allowed for a verse with n outcomes.
// Wider verses get tighter caps.
func TierCap(n uint8) int64 {
	switch {
	case n <= 1:
		return 100
	case n == 2:
		return 70
	case n <= 4:
		return 25
	case n <= 8:
		return 15
	case n <= 16:
		return 12
	case n <= 64:
		return 10
	default:
		return 5
	}
}

// NewVerse creates a verse with validation. MaxLeverage above the outcome
// tier cap is clamped down to it.
func NewVerse(id, title string, outcomes uint8, params Params) (*Verse, error) {
	v := &Verse{
		ID:          id,
		Title:       title,
		Status:      Active,
		Outcomes:    outcomes,
		TickSize:    params.TickSize,
		LotSize:     params.LotSize,
		MinOrderQty: params.MinOrderQty,
		MaxOrderQty: params.MaxOrderQty,
		MaxLeverage: params.MaxLeverage,
		MakerFeeBps: params.MakerFeeBps,
		TakerFeeBps: params.TakerFeeBps,
	}

	if cap := TierCap(outcomes); v.MaxLeverage > cap || v.MaxLeverage <= 0 {
		v.MaxLeverage = cap
	}

	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verse params: %w", err)
	}
	return v, nil
}

// Validate checks verse parameter sanity
func (v *Verse) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("verse id cannot be empty")
	}
	if v.Outcomes < 2 {
		return fmt.Errorf("verse must have at least 2 outcomes, got %d", v.Outcomes)
	}
	if v.TickSize <= 0 {
		return fmt.Errorf("tick size must be positive")
	}
	if v.TickSize >= PriceScale {
		return fmt.Errorf("tick size %d must be below price scale %d", v.TickSize, PriceScale)
	}
	if v.LotSize <= 0 {
		return fmt.Errorf("lot size must be positive")
	}
	if v.MinOrderQty < 0 || v.MaxOrderQty < 0 {
		return fmt.Errorf("order size limits cannot be negative")
	}
	if v.MaxOrderQty > 0 && v.MinOrderQty > v.MaxOrderQty {
		return fmt.Errorf("min order qty %d exceeds max %d", v.MinOrderQty, v.MaxOrderQty)
	}
	return nil
}

// ValidPrice reports whether p is a positive tick-aligned price strictly
// inside the (0, 1.0) probability band.
func (v *Verse) ValidPrice(p int64) bool {
	return p > 0 && p < PriceScale && p%v.TickSize == 0
}

// Params holds the tunable knobs for NewVerse
type Params struct {
	TickSize    int64
	LotSize     int64
	MinOrderQty int64
	MaxOrderQty int64
	MaxLeverage int64
	MakerFeeBps int64
	TakerFeeBps int64
}

// DefaultParams is a sane binary-verse configuration: 0.0001 ticks,
// whole-unit lots, dust floor of 1 unit.
var DefaultParams = Params{
	TickSize:    1,
	LotSize:     1,
	MinOrderQty: 1,
	MaxOrderQty: 10_000_000,
	MaxLeverage: 0, // clamped to tier cap
	MakerFeeBps: -2,
	TakerFeeBps: 10,
}
