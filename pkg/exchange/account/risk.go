package account

import (
	"github.com/pkg/errors"

	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/exchange/order"
)

// RiskGate is the default pre-trade risk collaborator: it caps each
// account's total leveraged notional. The engine consults it before
// accepting any submission that would increase exposure.
type RiskGate struct {
	manager     *Manager
	maxExposure int64 // quote cents; 0 disables the cap
}

// NewRiskGate creates a gate over the position manager
func NewRiskGate(manager *Manager, maxExposure int64) *RiskGate {
	return &RiskGate{manager: manager, maxExposure: maxExposure}
}

// CheckOrder vetoes submissions whose worst-case added exposure would
// push the account past its cap.
func (g *RiskGate) CheckOrder(o *order.Order) error {
	if g.maxExposure <= 0 {
		return nil
	}

	// Worst-case price for the added exposure: the limit price where one
	// exists, otherwise full probability.
	price := o.Price
	if price == 0 {
		price = market.PriceScale
	}
	added := o.Qty * price / market.PriceScale * o.Leverage

	if g.manager.Exposure(o.Account)+added > g.maxExposure {
		return errors.Wrapf(order.ErrRiskLimitExceeded,
			"account %s exposure cap %d would be exceeded by %d", o.Account, g.maxExposure, added)
	}
	return nil
}
