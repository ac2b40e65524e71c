// Package trigger evaluates resting conditional orders against price ticks
// and promotes them to active orders when their condition fires.
//
// State machine per order: Dormant -> Armed -> Fired. Firing is once-only
// per order id: an order leaves the armed set the moment it fires, so rapid
// repeated ticks can never promote it twice. A Monitor belongs to one
// (verse, outcome) pair and is serialized by that market's writer lock.
package trigger

import (
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/exchange/order"
)

// armed is one conditional order plus its trailing bookkeeping
type armed struct {
	o *order.Order

	// watermark is the most favorable price seen since arming
	// (highest for trailing sells, lowest for trailing buys).
	watermark int64
	// effective is the current trigger level. For trailing stops it
	// ratchets with the watermark: it only ever tightens.
	effective int64
}

// Monitor holds the armed conditional orders for one (verse, outcome) pair.
// Not internally locked; the owning market's writer serializes access.
type Monitor struct {
	log   *zap.Logger
	byID  map[string]*armed
	queue []string // arming order, for deterministic evaluation
}

// NewMonitor creates an empty monitor
func NewMonitor(log *zap.Logger) *Monitor {
	return &Monitor{
		log:  log.Named("trigger"),
		byID: make(map[string]*armed),
	}
}

// Arm registers a conditional order. refPrice is the market price at
// arming time (0 if none has printed yet); trailing stops seed their
// watermark from it.
func (m *Monitor) Arm(o *order.Order, refPrice int64) {
	a := &armed{o: o}
	if o.Kind == order.TrailingStop && refPrice > 0 {
		a.watermark = refPrice
		a.effective = trailLevel(o, refPrice)
	}
	m.byID[o.ID] = a
	m.queue = append(m.queue, o.ID)
	m.log.Debug("armed conditional order",
		zap.String("order_id", o.ID),
		zap.Stringer("kind", o.Kind),
		zap.Int64("trigger", o.TriggerPrice))
}

// Disarm removes an armed order (cancellation). Returns false if the
// order is not armed, e.g. it already fired.
func (m *Monitor) Disarm(id string) bool {
	if _, ok := m.byID[id]; !ok {
		return false
	}
	delete(m.byID, id)
	return true
}

// IsArmed reports whether the order id is currently armed
func (m *Monitor) IsArmed(id string) bool {
	_, ok := m.byID[id]
	return ok
}

// Len returns the number of armed orders
func (m *Monitor) Len() int { return len(m.byID) }

// Evaluate feeds one price tick to every armed order, in arming order,
// and returns the orders whose condition fired. Fired orders are removed
// from the armed set before being returned, which makes firing idempotent.
// Armed GTD orders past their deadline are expired instead of fired and
// returned separately.
func (m *Monitor) Evaluate(price, nowMs int64) (fired, expired []*order.Order) {
	var keep []string
	for _, id := range m.queue {
		a, ok := m.byID[id]
		if !ok {
			continue // disarmed or already fired
		}
		if a.o.Expired(nowMs) {
			delete(m.byID, id)
			expired = append(expired, a.o)
			continue
		}
		if m.shouldFire(a, price) {
			delete(m.byID, id)
			a.o.State = order.StateTriggered
			a.o.UpdatedAt = nowMs
			fired = append(fired, a.o)
			continue
		}
		keep = append(keep, id)
	}
	m.queue = keep
	return fired, expired
}

// shouldFire evaluates one armed order against a tick, updating trailing
// state as a side effect.
func (m *Monitor) shouldFire(a *armed, price int64) bool {
	o := a.o
	switch o.Kind {
	case order.StopLoss, order.StopLimit:
		// Fires when price crosses the trigger against the position:
		// a sell stop protects a long and fires on the way down.
		if o.Side == order.Sell {
			return price <= o.TriggerPrice
		}
		return price >= o.TriggerPrice

	case order.TakeProfit:
		// Fires when price crosses in the position's favor
		if o.Side == order.Sell {
			return price >= o.TriggerPrice
		}
		return price <= o.TriggerPrice

	case order.TrailingStop:
		return m.evalTrailing(a, price)

	default:
		// Non-conditional kinds never belong here
		m.log.Error("non-conditional order in trigger set",
			zap.String("order_id", o.ID),
			zap.Stringer("kind", o.Kind))
		return false
	}
}

// evalTrailing ratchets the effective trigger on favorable moves and
// fires once price reverses past the trailed level. The trail only
// tightens, never loosens.
func (m *Monitor) evalTrailing(a *armed, price int64) bool {
	o := a.o
	if a.watermark == 0 {
		// first observed price seeds the watermark
		a.watermark = price
		a.effective = trailLevel(o, price)
		return false
	}

	if o.Side == order.Sell {
		if price > a.watermark {
			a.watermark = price
			if lvl := trailLevel(o, price); lvl > a.effective {
				a.effective = lvl
			}
			return false
		}
		return price <= a.effective
	}

	// buy-side trailing stop: trails a falling market from above
	if price < a.watermark {
		a.watermark = price
		if lvl := trailLevel(o, price); lvl < a.effective || a.effective == 0 {
			a.effective = lvl
		}
		return false
	}
	return price >= a.effective
}

// trailLevel computes the trigger level implied by a watermark price
func trailLevel(o *order.Order, watermark int64) int64 {
	offset := o.TrailAmount
	if o.TrailBps > 0 {
		offset = watermark * o.TrailBps / 10_000
	}
	if o.Side == order.Sell {
		lvl := watermark - offset
		if lvl < 0 {
			lvl = 0
		}
		return lvl
	}
	lvl := watermark + offset
	if lvl > market.PriceScale {
		lvl = market.PriceScale
	}
	return lvl
}

// EffectiveTrigger exposes the current trigger level for an armed order,
// for API surfaces. Returns false if not armed.
func (m *Monitor) EffectiveTrigger(id string) (int64, bool) {
	a, ok := m.byID[id]
	if !ok {
		return 0, false
	}
	if a.o.Kind == order.TrailingStop {
		return a.effective, true
	}
	return a.o.TriggerPrice, true
}
