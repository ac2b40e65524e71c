// Package linked manages OCO pairs and bracket groups, deciding which
// sibling orders to cancel or arm when a member fills, activates, or is
// cancelled. The coordinator holds no order state beyond membership and
// performs no cancellation itself; the engine applies its decisions under
// the market lock, so siblings are never both live.
package linked

import (
	"github.com/pkg/errors"

	"github.com/versemarket/versex/pkg/exchange/order"
)

// GroupKind distinguishes the two linked-order semantics
type GroupKind int8

const (
	// OCO: one member's fill or activation cancels all siblings
	OCO GroupKind = iota
	// Bracket: entry + stop + target; exits arm as a nested OCO pair
	// only once the entry fully fills
	Bracket
)

func (k GroupKind) String() string {
	if k == OCO {
		return "oco"
	}
	return "bracket"
}

type groupState int8

const (
	stateLive groupState = iota
	stateArmed            // bracket only: entry filled, exits live
	stateDone             // all members terminal
)

// Group is a set of 2-3 linked order ids
type Group struct {
	ID      string
	Kind    GroupKind
	Members []string

	// bracket legs
	Entry  string
	Stop   string
	Target string

	state    groupState
	resolved string // the member that won (filled/activated), if any
}

// Decision is what the engine must apply after a group event
type Decision struct {
	Cancel []string // cancel these members now, before returning to the caller
	Arm    []string // bracket exits to arm with the trigger monitor
}

// Coordinator tracks all linked groups for one (verse, outcome) pair.
// Not internally locked; serialized by the market's writer lock.
type Coordinator struct {
	groups  map[string]*Group
	byOrder map[string]string // member order id -> group id
}

// NewCoordinator creates an empty coordinator
func NewCoordinator() *Coordinator {
	return &Coordinator{
		groups:  make(map[string]*Group),
		byOrder: make(map[string]string),
	}
}

// AddOCO registers a two-member one-cancels-other pair
func (c *Coordinator) AddOCO(groupID string, a, b *order.Order) error {
	if a.ID == b.ID {
		return errors.Wrap(order.ErrGroupInconsistent, "OCO legs must be distinct orders")
	}
	g := &Group{
		ID:      groupID,
		Kind:    OCO,
		Members: []string{a.ID, b.ID},
	}
	c.track(g)
	a.GroupID = groupID
	b.GroupID = groupID
	return nil
}

// AddBracket registers an entry leg with dormant stop and target exits
func (c *Coordinator) AddBracket(groupID string, entry, stop, target *order.Order) error {
	if entry.ID == stop.ID || entry.ID == target.ID || stop.ID == target.ID {
		return errors.Wrap(order.ErrGroupInconsistent, "bracket legs must be distinct orders")
	}
	g := &Group{
		ID:      groupID,
		Kind:    Bracket,
		Members: []string{entry.ID, stop.ID, target.ID},
		Entry:   entry.ID,
		Stop:    stop.ID,
		Target:  target.ID,
	}
	c.track(g)
	entry.GroupID = groupID
	stop.GroupID = groupID
	target.GroupID = groupID
	return nil
}

func (c *Coordinator) track(g *Group) {
	c.groups[g.ID] = g
	for _, id := range g.Members {
		c.byOrder[id] = g.ID
	}
}

// Group returns a group by id
func (c *Coordinator) Group(id string) (*Group, bool) {
	g, ok := c.groups[id]
	return g, ok
}

// GroupOf returns the group containing an order id, if any
func (c *Coordinator) GroupOf(orderID string) (*Group, bool) {
	gid, ok := c.byOrder[orderID]
	if !ok {
		return nil, false
	}
	return c.Group(gid)
}

// ExitsArmed reports whether a bracket group's exit legs are live
func (g *Group) ExitsArmed() bool { return g.state == stateArmed }

// Done reports whether the group has fully resolved
func (g *Group) Done() bool { return g.state == stateDone }

// OnExecution handles a fill or activation event for a member. fullyFilled
// matters only for a bracket entry leg: partial entry fills arm nothing.
// The returned decision must be applied before control returns to the
// submitter, closing the window in which two exclusive legs are both live.
func (c *Coordinator) OnExecution(orderID string, fullyFilled bool) (Decision, error) {
	g, ok := c.GroupOf(orderID)
	if !ok || g.state == stateDone {
		return Decision{}, nil
	}

	switch g.Kind {
	case OCO:
		return c.resolveOCO(g, orderID)

	case Bracket:
		if orderID == g.Entry {
			if !fullyFilled {
				return Decision{}, nil
			}
			// Entry filled: arm stop and target as a nested OCO pair
			g.state = stateArmed
			return Decision{Arm: []string{g.Stop, g.Target}}, nil
		}
		// A bracket exit executing before the entry filled is an
		// invariant violation: fail safe by cancelling the group.
		if g.state != stateArmed {
			g.state = stateDone
			return Decision{Cancel: c.others(g, "")},
				errors.Wrapf(order.ErrGroupInconsistent,
					"bracket %s exit %s executed before entry filled", g.ID, orderID)
		}
		return c.resolveOCO(g, orderID)
	}
	return Decision{}, nil
}

// resolveOCO marks orderID the surviving member and cancels the rest
func (c *Coordinator) resolveOCO(g *Group, orderID string) (Decision, error) {
	if g.resolved != "" && g.resolved != orderID {
		// Two members executed: should be impossible under the market
		// lock. Force-cancel whatever is left.
		g.state = stateDone
		return Decision{Cancel: c.others(g, "")},
			errors.Wrapf(order.ErrGroupInconsistent,
				"group %s members %s and %s both executed", g.ID, g.resolved, orderID)
	}
	g.resolved = orderID
	g.state = stateDone
	return Decision{Cancel: c.others(g, orderID)}, nil
}

// OnCancelled handles an explicit cancellation of a member. Cancelling a
// bracket entry before it fills cancels the whole group; cancelling one
// OCO leg cancels the other.
func (c *Coordinator) OnCancelled(orderID string) Decision {
	g, ok := c.GroupOf(orderID)
	if !ok || g.state == stateDone {
		return Decision{}
	}

	if g.Kind == Bracket && orderID != g.Entry && g.state == stateLive {
		// Exit leg cancelled while still dormant; entry keeps working.
		// Drop the sibling exit too: a one-legged bracket is just a limit.
		g.state = stateDone
		return Decision{Cancel: c.others(g, g.Entry)}
	}

	g.state = stateDone
	return Decision{Cancel: c.others(g, orderID)}
}

// others lists members except the survivor (empty survivor = all)
func (c *Coordinator) others(g *Group, survivor string) []string {
	out := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if id != survivor {
			out = append(out, id)
		}
	}
	return out
}

// Forget drops bookkeeping for a resolved group's members
func (c *Coordinator) Forget(groupID string) {
	g, ok := c.groups[groupID]
	if !ok {
		return
	}
	for _, id := range g.Members {
		delete(c.byOrder, id)
	}
	delete(c.groups, groupID)
}
