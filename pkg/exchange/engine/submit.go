package engine

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/linked"
	"github.com/versemarket/versex/pkg/exchange/order"
)

// Submit validates, risk-checks and dispatches a client order request.
// Immediate kinds are matched before returning; conditional kinds are
// armed with the trigger monitor; OCO/bracket requests are expanded into
// their legs; algorithmic kinds are handed to the execution scheduler.
//
// The returned order is the primary leg (limit leg for OCO, entry leg for
// a bracket). All fill and state side effects are delivered to the
// collaborators before Submit returns.
func (e *Engine) Submit(req order.Request) (order.Order, error) {
	v, err := e.verses.Get(req.VerseID)
	if err != nil {
		return order.Order{}, errors.Wrapf(order.ErrInvalidParameters, "unknown verse %q", req.VerseID)
	}

	now := e.now()
	o, err := order.New(req, v, now)
	if err != nil {
		return order.Order{}, err
	}

	// Pre-trade risk check: every new order increases exposure
	if e.risk != nil {
		if err := e.risk.CheckOrder(o); err != nil {
			e.log.Info("risk check declined order",
				zap.String("account", o.Account),
				zap.Stringer("kind", o.Kind),
				zap.Error(err))
			return order.Order{}, err
		}
	}

	vs := e.stateFor(v, o.Outcome)

	// Dispatch is exhaustive over Kind
	switch o.Kind {
	case order.Market, order.Limit:
		return e.submitActive(vs, o)

	case order.StopLoss, order.TakeProfit, order.StopLimit, order.TrailingStop:
		return e.armConditional(vs, o)

	case order.OCO:
		return e.expandOCO(vs, o)

	case order.Bracket:
		return e.expandBracket(vs, o)

	case order.Iceberg, order.TWAP, order.VWAP:
		return e.startAlgo(vs, o)

	default:
		return order.Order{}, errors.Wrapf(order.ErrInvalidParameters, "unhandled kind %s", o.Kind)
	}
}

// submitActive matches a market/limit order and rests any GTC/GTD limit
// remainder.
func (e *Engine) submitActive(vs *verseState, o *order.Order) (order.Order, error) {
	ev := &events{}
	vs.mu.Lock()
	err := e.matchLocked(vs, o, ev)
	cp := *o
	vs.mu.Unlock()

	if err != nil {
		// the expiry sweep may have retired resting orders even though
		// the incoming order was refused
		e.flush(ev)
		return order.Order{}, err
	}
	e.register(o, vs)
	e.flush(ev)
	return cp, nil
}

// armConditional registers a stop/take-profit/trailing order with the
// trigger monitor. It rests off-book until its condition fires.
func (e *Engine) armConditional(vs *verseState, o *order.Order) (order.Order, error) {
	ev := &events{}
	vs.mu.Lock()
	vs.triggers.Arm(o, vs.lastPrice)
	ev.state(o, e.now()) // Pending
	cp := *o
	vs.mu.Unlock()

	e.register(o, vs)
	e.flush(ev)
	return cp, nil
}

// expandOCO splits an OCO request into a resting limit leg and an armed
// stop leg sharing one group. The limit leg is the primary order.
func (e *Engine) expandOCO(vs *verseState, o *order.Order) (order.Order, error) {
	now := e.now()

	limitLeg := *o
	limitLeg.ID = o.ID + "-limit"
	limitLeg.Kind = order.Limit

	stopLeg := *o
	stopLeg.ID = o.ID + "-stop"
	stopLeg.Kind = order.StopLoss
	stopLeg.TriggerPrice = o.StopPrice
	stopLeg.Price = 0

	// Legs must be findable before matching: an immediate fill of the
	// limit leg cancels the stop leg through the group.
	e.register(&limitLeg, vs)
	e.register(&stopLeg, vs)

	ev := &events{}
	vs.mu.Lock()
	if err := vs.groups.AddOCO(o.ID, &limitLeg, &stopLeg); err != nil {
		vs.mu.Unlock()
		e.unregister(limitLeg.ID, stopLeg.ID)
		return order.Order{}, err
	}
	vs.triggers.Arm(&stopLeg, vs.lastPrice)
	ev.state(&stopLeg, now)
	err := e.matchLocked(vs, &limitLeg, ev)
	if err != nil {
		// limit leg refused outright: unwind the stop leg too
		vs.triggers.Disarm(stopLeg.ID)
		vs.groups.Forget(o.ID)
		vs.mu.Unlock()
		e.unregister(limitLeg.ID, stopLeg.ID)
		return order.Order{}, err
	}
	cp := limitLeg
	vs.mu.Unlock()

	e.flush(ev)
	return cp, nil
}

// expandBracket splits a bracket request into an entry limit leg plus
// dormant stop and target exits. The exits arm as a nested OCO pair only
// once the entry fully fills. The entry leg is the primary order.
func (e *Engine) expandBracket(vs *verseState, o *order.Order) (order.Order, error) {
	entry := *o
	entry.ID = o.ID + "-entry"
	entry.Kind = order.Limit

	// Exits close the position entry opens, so they take the other side
	stop := *o
	stop.ID = o.ID + "-sl"
	stop.Kind = order.StopLoss
	stop.Side = o.Side.Opposite()
	stop.TriggerPrice = o.StopPrice
	stop.Price = 0

	target := *o
	target.ID = o.ID + "-tp"
	target.Kind = order.TakeProfit
	target.Side = o.Side.Opposite()
	target.TriggerPrice = o.TargetPrice
	target.Price = 0

	// Exits must be findable before matching: an immediate full fill of
	// the entry arms them through the group.
	e.register(&entry, vs)
	e.register(&stop, vs)
	e.register(&target, vs)

	ev := &events{}
	vs.mu.Lock()
	if err := vs.groups.AddBracket(o.ID, &entry, &stop, &target); err != nil {
		vs.mu.Unlock()
		e.unregister(entry.ID, stop.ID, target.ID)
		return order.Order{}, err
	}
	err := e.matchLocked(vs, &entry, ev)
	if err != nil {
		vs.groups.Forget(o.ID)
		vs.mu.Unlock()
		e.unregister(entry.ID, stop.ID, target.ID)
		return order.Order{}, err
	}
	cp := entry
	vs.mu.Unlock()

	e.flush(ev)
	return cp, nil
}

// startAlgo registers an algorithmic parent with the execution scheduler
func (e *Engine) startAlgo(vs *verseState, o *order.Order) (order.Order, error) {
	if e.scheduler == nil {
		return order.Order{}, errors.Wrap(order.ErrInvalidParameters, "no execution scheduler attached")
	}

	o.State = order.StateOpen
	e.register(o, vs)

	ev := &events{}
	ev.state(o, e.now())
	e.flush(ev)

	if err := e.scheduler.Start(o); err != nil {
		rej := &events{}
		vs.mu.Lock()
		o.State = order.StateRejected
		o.RejectReason = err.Error()
		rej.state(o, e.now())
		vs.mu.Unlock()
		e.flush(rej)
		return order.Order{}, err
	}

	vs.mu.Lock()
	cp := *o
	vs.mu.Unlock()
	return cp, nil
}

// matchLocked runs the price-time priority match pass for an incoming
// order. Caller holds vs.mu. Errors mean the order was refused whole and
// no state changed (self-trade, insufficient liquidity).
func (e *Engine) matchLocked(vs *verseState, o *order.Order, ev *events) error {
	now := e.now()
	e.expireRestingLocked(vs, ev, now)

	makerSide := o.Side.Opposite()
	takerLimit := int64(0) // 0 = market taker
	if o.Kind == order.Limit {
		takerLimit = o.Price
	}

	// Self-trade rejection happens pre-match so neither order mutates
	if vs.book.HasAccount(makerSide, takerLimit, o.Account) {
		return errors.Wrapf(order.ErrSelfTradeRejected,
			"account %s is resting on the opposite side", o.Account)
	}

	// Fill-or-kill: all or nothing, decided before any fill
	if o.TIF == order.FOK {
		if vs.book.Depth(makerSide, takerLimit) < o.Qty {
			o.State = order.StateCancelled
			o.UpdatedAt = now
			ev.state(o, now)
			return nil
		}
	}

	// A market order never rests, so a good-till-cancelled market order
	// that cannot fill completely is refused whole rather than reposted.
	if o.Kind == order.Market && o.TIF == order.GTC {
		if vs.book.Depth(makerSide, 0) < o.Qty {
			return errors.Wrapf(order.ErrInsufficientLiquidity,
				"market GTC order needs %d, book has %d", o.Qty, vs.book.Depth(makerSide, 0))
		}
	}

	for o.Remaining() > 0 {
		maker := vs.book.Front(makerSide)
		if maker == nil {
			break
		}
		if maker.Expired(now) {
			vs.book.Remove(maker.ID)
			maker.State = order.StateExpired
			maker.UpdatedAt = now
			ev.state(maker, now)
			continue
		}
		if takerLimit != 0 {
			crossed := (o.Side == order.Buy && maker.Price <= takerLimit) ||
				(o.Side == order.Sell && maker.Price >= takerLimit)
			if !crossed {
				break
			}
		}

		qty := o.Remaining()
		if r := maker.Remaining(); r < qty {
			qty = r
		}
		price := maker.Price

		makerFee := order.FeeFor(qty, price, vs.verse.MakerFeeBps)
		takerFee := order.FeeFor(qty, price, vs.verse.TakerFeeBps)

		maker.ApplyFill(qty, price, makerFee, now)
		o.ApplyFill(qty, price, takerFee, now)
		vs.lastPrice = price

		t := &order.Trade{
			ID:           uuid.NewString(),
			VerseID:      vs.key.verse,
			Outcome:      vs.key.outcome,
			MakerOrderID: maker.ID,
			TakerOrderID: o.ID,
			MakerAccount: maker.Account,
			TakerAccount: o.Account,
			TakerSide:    o.Side,
			Price:        price,
			Qty:          qty,
			MakerFee:     makerFee,
			TakerFee:     takerFee,
			Timestamp:    now,
		}
		vs.pushTrade(t)
		ev.trades = append(ev.trades, tradeEvent{
			trade:         t,
			makerLeverage: maker.Leverage,
			takerLeverage: o.Leverage,
		})

		if maker.Remaining() == 0 {
			vs.book.PopFront(makerSide)
		}
		ev.state(maker, now)

		e.applyParentFillLocked(maker, qty, price, makerFee, now, ev)
		e.applyParentFillLocked(o, qty, price, takerFee, now, ev)
		e.propagateLocked(vs, maker, ev, now)
		e.noteChildSettled(maker, ev)
	}

	// Remainder handling by kind/TIF
	if o.Remaining() > 0 {
		switch {
		case o.Kind == order.Limit && (o.TIF == order.GTC || o.TIF == order.GTD):
			vs.book.Insert(o)
			if o.Filled == 0 {
				o.State = order.StateOpen
			}
			o.UpdatedAt = now
		default:
			// IOC limit remainder, FOK already handled, market remainder
			o.State = order.StateCancelled
			o.UpdatedAt = now
		}
	}
	ev.state(o, now)

	e.propagateLocked(vs, o, ev, now)
	e.noteChildSettled(o, ev)
	return nil
}

// expireRestingLocked sweeps GTD orders past their deadline off the book
func (e *Engine) expireRestingLocked(vs *verseState, ev *events, now int64) {
	for _, o := range vs.book.CollectExpired(now) {
		o.State = order.StateExpired
		o.UpdatedAt = now
		ev.state(o, now)
		e.propagateLocked(vs, o, ev, now)
	}
}

// applyParentFillLocked mirrors a child slice's fill onto its algo parent
func (e *Engine) applyParentFillLocked(o *order.Order, qty, price, fee, now int64, ev *events) {
	if o.ParentID == "" {
		return
	}
	s, ok := e.lookup(o.ParentID)
	if !ok {
		return
	}
	parent := s.o
	if parent.State.Terminal() {
		return
	}
	parent.ApplyFill(qty, price, fee, now)
	ev.state(parent, now)
}

// noteChildSettled queues scheduler feedback once a child slice goes
// terminal: its fills plus any quantity returned to the hidden pool.
func (e *Engine) noteChildSettled(o *order.Order, ev *events) {
	if o.ParentID == "" || !o.State.Terminal() {
		return
	}
	ev.slices = append(ev.slices, sliceEvent{
		parentID: o.ParentID,
		filled:   o.Filled,
		returned: o.Remaining(),
	})
}

// propagateLocked applies linked-group semantics after a fill, activation,
// expiry or cancellation of a group member. Sibling cancellations happen
// here, under the same market lock, before control returns to the caller.
func (e *Engine) propagateLocked(vs *verseState, o *order.Order, ev *events, now int64) {
	if o.GroupID == "" {
		return
	}

	var dec linked.Decision
	switch o.State {
	case order.StatePartiallyFilled, order.StateFilled, order.StateTriggered:
		d, err := vs.groups.OnExecution(o.ID, o.State == order.StateFilled)
		if err != nil {
			// Invariant violation: log and fail safe by force-cancelling
			e.log.Error("linked group inconsistent",
				zap.String("group_id", o.GroupID),
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
		dec = d
	case order.StateCancelled, order.StateExpired:
		dec = vs.groups.OnCancelled(o.ID)
	default:
		return
	}

	for _, id := range dec.Cancel {
		e.cancelMemberLocked(vs, id, ev, now)
	}
	for _, id := range dec.Arm {
		e.armMemberLocked(vs, id, ev, now)
	}

	// resolved groups have no further decisions to make; drop the
	// bookkeeping so the coordinator stays bounded
	if g, ok := vs.groups.GroupOf(o.ID); ok && g.Done() {
		vs.groups.Forget(g.ID)
	}
}

// cancelMemberLocked cancels a linked sibling wherever it currently lives
func (e *Engine) cancelMemberLocked(vs *verseState, id string, ev *events, now int64) {
	s, ok := e.lookup(id)
	if !ok {
		return
	}
	o := s.o
	if o.State.Terminal() {
		return
	}
	vs.book.Remove(id)
	vs.triggers.Disarm(id)
	o.State = order.StateCancelled
	o.UpdatedAt = now
	ev.state(o, now)
}

// armMemberLocked arms a dormant bracket exit with the trigger monitor
func (e *Engine) armMemberLocked(vs *verseState, id string, ev *events, now int64) {
	s, ok := e.lookup(id)
	if !ok {
		return
	}
	o := s.o
	if o.State.Terminal() {
		return
	}
	vs.triggers.Arm(o, vs.lastPrice)
	o.UpdatedAt = now
	ev.state(o, now)
}

// pushTrade appends to the bounded recent-trades ring
func (vs *verseState) pushTrade(t *order.Trade) {
	vs.recent = append(vs.recent, t)
	if vs.recentCap > 0 && len(vs.recent) > vs.recentCap {
		vs.recent = vs.recent[len(vs.recent)-vs.recentCap:]
	}
}
