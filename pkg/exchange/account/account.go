package account

import (
	"fmt"

	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/exchange/order"
)

// Account tracks one trader's positions and cumulative statistics.
// Authentication and balances live with the wallet collaborator; here an
// account is just its id and its exposure.
type Account struct {
	ID string

	// Open positions per verse/outcome
	Positions map[string]*Position // positionKey(verse, outcome) -> position

	// Cumulative statistics (quote cents)
	RealizedPnL   int64
	FeesPaid      int64
	FeesEarned    int64 // maker rebates
	Volume        int64 // lifetime traded notional
	TradeCount    int64
}

// Position is a signed exposure to one verse outcome
type Position struct {
	VerseID string
	Outcome uint8

	// Size: positive = long the outcome, negative = short
	Size int64

	// Volume-weighted average entry price in ticks, maintained on each
	// fill that grows the position
	EntryPrice int64

	// Leverage applied when the position was opened/last grown
	Leverage int64
}

// NewAccount creates an empty account
func NewAccount(id string) *Account {
	return &Account{
		ID:        id,
		Positions: make(map[string]*Position),
	}
}

// Notional returns the position's current notional exposure in quote
// cents, leverage applied, always non-negative.
func (p *Position) Notional() int64 {
	size := p.Size
	if size < 0 {
		size = -size
	}
	lev := p.Leverage
	if lev < 1 {
		lev = 1
	}
	return size * p.EntryPrice / market.PriceScale * lev
}

// Exposure sums the notional of all open positions
func (a *Account) Exposure() int64 {
	var total int64
	for _, p := range a.Positions {
		total += p.Notional()
	}
	return total
}

// applyFill mutates the position for a fill and returns realized PnL.
// Growing the position re-weights the entry price; shrinking realizes PnL
// at the fill price; flipping through zero re-opens at the fill price.
func (p *Position) applyFill(side order.Side, qty, price, leverage int64) int64 {
	signed := qty * int64(side)
	oldSize := p.Size
	newSize := oldSize + signed

	// Same direction (or flat): grow and re-weight entry
	if oldSize == 0 || (oldSize > 0) == (signed > 0) {
		p.EntryPrice = (p.EntryPrice*abs(oldSize) + price*qty) / abs(newSize)
		p.Size = newSize
		if leverage > p.Leverage {
			p.Leverage = leverage
		}
		return 0
	}

	// Opposite direction: realize PnL on the closed portion
	closeQty := qty
	if closeQty > abs(oldSize) {
		closeQty = abs(oldSize)
	}
	var pnl int64
	if oldSize > 0 {
		pnl = (price - p.EntryPrice) * closeQty / market.PriceScale
	} else {
		pnl = (p.EntryPrice - price) * closeQty / market.PriceScale
	}

	p.Size = newSize
	switch {
	case newSize == 0:
		p.EntryPrice = 0
	case (newSize > 0) != (oldSize > 0):
		p.EntryPrice = price // flipped through zero
	}
	return pnl
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func positionKey(verseID string, outcome uint8) string {
	return fmt.Sprintf("%s/%d", verseID, outcome)
}
