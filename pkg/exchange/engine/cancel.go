package engine

import (
	"github.com/pkg/errors"

	"github.com/versemarket/versex/pkg/exchange/order"
)

// Cancel cancels an order wherever it currently lives: resting in the
// book, armed with the trigger monitor, dormant in a bracket, or running
// as an algorithmic parent. Linked-group semantics propagate before
// Cancel returns: cancelling one OCO leg cancels the other, cancelling a
// bracket entry before it fills cancels the whole group.
func (e *Engine) Cancel(id string) error {
	s, ok := e.lookup(id)
	if !ok {
		return errors.Wrapf(order.ErrOrderNotFound, "order %s", id)
	}
	vs := s.vs
	o := s.o

	ev := &events{}
	vs.mu.Lock()
	if o.State.Terminal() {
		vs.mu.Unlock()
		return errors.Wrapf(order.ErrAlreadyTerminal, "order %s is %s", id, o.State)
	}
	now := e.now()

	vs.book.Remove(id)
	vs.triggers.Disarm(id)

	// Algorithmic parents stop their strategy and pull any resting child
	if o.Kind.Algorithmic() && e.scheduler != nil {
		if childID, ok := e.scheduler.ActiveChild(id); ok {
			e.cancelMemberLocked(vs, childID, ev, now)
		}
		e.scheduler.Cancel(id)
	}

	o.State = order.StateCancelled
	o.UpdatedAt = now
	ev.state(o, now)

	e.propagateLocked(vs, o, ev, now)
	vs.mu.Unlock()

	e.flush(ev)
	return nil
}
