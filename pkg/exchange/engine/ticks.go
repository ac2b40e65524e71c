package engine

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/order"
)

// OnPriceTick feeds one market price observation into the engine: it
// updates the last price, sweeps expired resting orders, evaluates armed
// triggers and matches whatever fired. Volume feeds the execution
// scheduler's participation model.
//
// Firing is once-only: a trigger removed from the monitor here never
// fires again, even if its promoted order is refused by the book.
func (e *Engine) OnPriceTick(verseID string, outcome uint8, price, volume int64) error {
	v, err := e.verses.Get(verseID)
	if err != nil {
		return err
	}
	if outcome >= v.Outcomes {
		return errors.Wrapf(order.ErrInvalidParameters,
			"outcome %d out of range for %d-outcome verse", outcome, v.Outcomes)
	}
	if !v.ValidPrice(price) {
		return errors.Wrapf(order.ErrInvalidParameters, "tick price %d", price)
	}
	vs := e.stateFor(v, outcome)
	ev := &events{}

	vs.mu.Lock()
	now := e.now()
	vs.lastPrice = price
	e.expireRestingLocked(vs, ev, now)

	fired, expired := vs.triggers.Evaluate(price, now)

	for _, o := range expired {
		o.State = order.StateExpired
		o.UpdatedAt = now
		ev.state(o, now)
		e.propagateLocked(vs, o, ev, now)
	}

	for _, o := range fired {
		ev.state(o, now) // Triggered

		// Activation resolves the linked group first, so an OCO sibling
		// is cancelled before the fired order can touch the book.
		e.propagateLocked(vs, o, ev, now)

		promote(o)
		if err := e.matchLocked(vs, o, ev); err != nil {
			o.State = order.StateRejected
			o.RejectReason = err.Error()
			o.UpdatedAt = now
			ev.state(o, now)
			e.log.Warn("fired order rejected",
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}
	vs.mu.Unlock()

	e.flush(ev)
	if e.scheduler != nil && volume > 0 {
		e.scheduler.ObserveVolume(verseID, outcome, volume)
	}
	return nil
}

// promote rewrites a fired conditional as the order it executes as:
// stop-limit becomes a limit at its stated price, everything else
// becomes an IOC market order so it takes whatever liquidity exists
// instead of being refused whole by the market-GTC precheck.
func promote(o *order.Order) {
	if o.Kind == order.StopLimit {
		o.Kind = order.Limit
		return
	}
	o.Kind = order.Market
	o.Price = 0
	o.TIF = order.IOC
}
