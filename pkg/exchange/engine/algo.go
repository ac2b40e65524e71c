package engine

import (
	"github.com/pkg/errors"

	"github.com/versemarket/versex/pkg/exchange/algo"
	"github.com/versemarket/versex/pkg/exchange/order"
)

// SubmitSlice builds and matches a child order for one scheduler slice.
// The child inherits the parent's account, side and leverage; a priced
// slice rests as a limit child, an unpriced one sweeps as IOC market.
// Fills are mirrored onto the parent inside the match pass.
func (e *Engine) SubmitSlice(parent *order.Order, sl algo.Slice) error {
	s, ok := e.lookup(parent.ID)
	if !ok {
		return order.ErrOrderNotFound
	}
	vs := s.vs
	now := e.now()

	child := &order.Order{
		ID:        algo.SliceID(parent.ID, sl.Seq),
		Account:   parent.Account,
		VerseID:   parent.VerseID,
		Outcome:   parent.Outcome,
		Side:      parent.Side,
		Qty:       sl.Qty,
		Leverage:  parent.Leverage,
		ParentID:  parent.ID,
		SliceSeq:  sl.Seq,
		State:     order.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch {
	case sl.Price > 0:
		child.Kind = order.Limit
		child.Price = sl.Price
		child.TIF = order.GTC
	default:
		child.Kind = order.Market
		child.TIF = order.IOC
	}
	if !sl.Rest {
		child.TIF = order.IOC
	}

	ev := &events{}
	vs.mu.Lock()
	// A cancel may have won the lock after the scheduler collected this
	// slice; a terminal parent must not print new trades.
	if s.o.State.Terminal() {
		vs.mu.Unlock()
		ev.slices = append(ev.slices, sliceEvent{parentID: parent.ID, returned: sl.Qty})
		e.flush(ev)
		return errors.Wrapf(order.ErrAlreadyTerminal, "parent %s is %s", parent.ID, s.o.State)
	}
	e.register(child, vs)
	err := e.matchLocked(vs, child, ev)
	if err != nil {
		child.State = order.StateRejected
		child.RejectReason = err.Error()
		child.UpdatedAt = now
		ev.state(child, now)
		// refused slices hand their quantity straight back to the pool
		ev.slices = append(ev.slices, sliceEvent{parentID: parent.ID, returned: child.Qty})
	}
	vs.mu.Unlock()

	e.flush(ev)
	return err
}

// FinishParent marks an algo parent terminal once its strategy is done:
// Filled if the whole quantity executed, Cancelled otherwise.
func (e *Engine) FinishParent(parent *order.Order) {
	s, ok := e.lookup(parent.ID)
	if !ok {
		return
	}
	vs := s.vs
	ev := &events{}

	vs.mu.Lock()
	now := e.now()
	o := s.o
	if !o.State.Terminal() {
		if o.Remaining() == 0 {
			o.State = order.StateFilled
		} else {
			o.State = order.StateCancelled
		}
		o.UpdatedAt = now
		ev.state(o, now)
	}
	vs.mu.Unlock()

	e.flush(ev)
}
