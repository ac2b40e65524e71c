// Package algo drives iceberg, TWAP and VWAP parent orders by emitting
// child slices against the matching core. Each strategy is an explicit
// task holding its next-fire time and remaining state, driven by an
// external clock; there are no background goroutines per order. The
// scheduler holds no matching logic: every slice goes through the
// submitter's contract.
package algo

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/order"
)

// Slice is one child emission on behalf of a parent order
type Slice struct {
	Seq   int
	Qty   int64
	Price int64 // 0 = market child
	Rest  bool  // iceberg slices rest in the book; timed slices are IOC
}

// Submitter is the matching-core contract the scheduler emits against
type Submitter interface {
	// SubmitSlice builds and matches a child order for the slice.
	// Fills are applied to the parent by the submitter.
	SubmitSlice(parent *order.Order, s Slice) error
	// FinishParent marks the parent terminal once its strategy completes
	// (fully emitted and settled, or cancelled).
	FinishParent(parent *order.Order)
}

type task struct {
	parent *order.Order
	kind   order.Kind

	cancelled bool

	// emission accounting: emitted counts quantity currently committed to
	// children; returned (unfilled IOC remainders) flows back via
	// OnSliceSettled. Invariant: emitted never exceeds the parent's
	// requested quantity.
	emitted int64
	filled  int64
	seq     int

	// timed strategies
	interval   time.Duration
	nextFire   time.Time
	slicesLeft int

	// iceberg
	activeChild string

	// vwap volume window
	volKey      string
	prevVol     int64
	sumVol      int64
	volPeriods  int64
}

// Scheduler owns all live algo tasks. Safe for concurrent use.
type Scheduler struct {
	log    *zap.Logger
	clock  clock.Clock
	submit Submitter

	mu      sync.Mutex
	tasks   map[string]*task // parent order id -> task
	volumes map[string]int64 // verse/outcome -> volume in current interval
}

// NewScheduler creates a scheduler. Pass clock.NewMock in tests.
func NewScheduler(log *zap.Logger, clk clock.Clock, submit Submitter) *Scheduler {
	return &Scheduler{
		log:     log.Named("algo"),
		clock:   clk,
		submit:  submit,
		tasks:   make(map[string]*task),
		volumes: make(map[string]int64),
	}
}

// Start registers a parent order and emits its first slice where the
// strategy calls for one. Dispatch is exhaustive over the algo kinds.
func (s *Scheduler) Start(parent *order.Order) error {
	t := &task{
		parent: parent,
		kind:   parent.Kind,
		volKey: volumeKey(parent.VerseID, parent.Outcome),
	}

	var first *Slice
	switch parent.Kind {
	case order.Iceberg:
		t.seq = 1
		qty := minInt64(parent.VisibleQty, parent.Qty)
		t.emitted = qty
		first = &Slice{Seq: 1, Qty: qty, Price: parent.Price, Rest: true}

	case order.TWAP, order.VWAP:
		t.slicesLeft = parent.Intervals
		t.interval = parent.Duration / time.Duration(parent.Intervals)
		if t.interval <= 0 {
			return errors.Wrap(order.ErrInvalidParameters, "slice interval rounds to zero")
		}
		t.nextFire = s.clock.Now()

	default:
		return errors.Wrapf(order.ErrInvalidParameters, "kind %s is not scheduler-driven", parent.Kind)
	}

	s.mu.Lock()
	s.tasks[parent.ID] = t
	s.mu.Unlock()

	s.log.Info("algo parent started",
		zap.String("order_id", parent.ID),
		zap.Stringer("kind", parent.Kind),
		zap.Int64("qty", parent.Qty))

	if first != nil {
		if err := s.emit(t, *first); err != nil {
			// first slice refused: the strategy never got off the ground,
			// so the task must not survive as a live entry
			s.mu.Lock()
			delete(s.tasks, parent.ID)
			s.mu.Unlock()
			return err
		}
	}
	// timed strategies release their first slice on the next Tick
	return nil
}

// Run drives the scheduler until ctx is done, evaluating due tasks at the
// given resolution.
func (s *Scheduler) Run(ctx context.Context, resolution time.Duration) {
	ticker := s.clock.Ticker(resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick releases every due timed slice. Exposed so tests can step the
// scheduler deterministically.
func (s *Scheduler) Tick(now time.Time) {
	type due struct {
		t     *task
		slice Slice
	}
	var out []due

	s.mu.Lock()
	for _, t := range s.tasks {
		if t.cancelled || t.slicesLeft <= 0 || t.kind == order.Iceberg {
			continue
		}
		if now.Before(t.nextFire) {
			continue
		}
		qty := s.nextSliceLocked(t)
		t.nextFire = t.nextFire.Add(t.interval)
		t.slicesLeft--
		if qty <= 0 {
			continue
		}
		t.seq++
		t.emitted += qty
		out = append(out, due{t: t, slice: Slice{Seq: t.seq, Qty: qty, Price: t.parent.Price}})
	}
	s.mu.Unlock()

	for _, d := range out {
		if err := s.emit(d.t, d.slice); err != nil {
			s.log.Warn("slice submission failed",
				zap.String("parent_id", d.t.parent.ID),
				zap.Int("seq", d.slice.Seq),
				zap.Error(err))
		}
	}
	s.reap()
}

// nextSliceLocked sizes the next timed slice. TWAP slices equally; VWAP
// weights by the previous interval's observed volume, falling back to
// equal slicing when no volume has printed.
func (s *Scheduler) nextSliceLocked(t *task) int64 {
	remaining := t.parent.Qty - t.emitted
	if remaining <= 0 {
		return 0
	}
	if t.slicesLeft <= 1 {
		return remaining // final interval sweeps the remainder
	}
	base := remaining / int64(t.slicesLeft)
	if base <= 0 {
		base = remaining
	}

	if t.kind == order.TWAP {
		return base
	}

	// VWAP: roll the observed volume window forward
	vol := s.volumes[t.volKey]
	s.volumes[t.volKey] = 0
	t.prevVol = vol
	t.sumVol += vol
	t.volPeriods++

	if t.sumVol == 0 {
		return base // no volume data: equal slicing
	}

	avg := t.sumVol / t.volPeriods
	qty := base
	if avg > 0 {
		qty = base * t.prevVol / avg
	}
	// participation cap against observed volume
	if capQty := t.prevVol * t.parent.MaxParticipationBps / 10_000; qty > capQty {
		qty = capQty
	}
	if qty > remaining {
		qty = remaining
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}

func (s *Scheduler) emit(t *task, sl Slice) error {
	if t.kind == order.Iceberg {
		// remember the live visible slice for replenishment
		s.mu.Lock()
		t.activeChild = SliceID(t.parent.ID, sl.Seq)
		s.mu.Unlock()
	}
	return s.submit.SubmitSlice(t.parent, sl)
}

// SliceID names child slices deterministically so the engine and the
// scheduler agree on the resting iceberg child's id.
func SliceID(parentID string, seq int) string {
	return fmt.Sprintf("%s-slice-%d", parentID, seq)
}

// OnSliceSettled reports a child's outcome back: filled quantity plus any
// quantity returned to the pool (IOC remainder, cancelled slice).
// Iceberg parents replenish their visible slice here the moment it fills.
func (s *Scheduler) OnSliceSettled(parentID string, filled, returned int64) {
	s.mu.Lock()
	t, ok := s.tasks[parentID]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.filled += filled
	t.emitted -= returned
	if t.emitted < t.filled {
		t.emitted = t.filled
	}

	var replenish *Slice
	if t.kind == order.Iceberg && !t.cancelled {
		hidden := t.parent.Qty - t.emitted
		if hidden > 0 && filled > 0 {
			qty := minInt64(t.parent.VisibleQty, hidden)
			t.seq++
			t.emitted += qty
			replenish = &Slice{Seq: t.seq, Qty: qty, Price: t.parent.Price, Rest: true}
		}
	}
	s.mu.Unlock()

	if replenish != nil {
		if err := s.emit(t, *replenish); err != nil {
			s.log.Warn("iceberg replenishment failed",
				zap.String("parent_id", parentID), zap.Error(err))
		}
	}
	s.reap()
}

// Cancel stops a strategy. The cancellation flag is checked before every
// emission, so a cancel racing an in-flight tick is safe.
func (s *Scheduler) Cancel(parentID string) bool {
	s.mu.Lock()
	t, ok := s.tasks[parentID]
	if ok {
		t.cancelled = true
		delete(s.tasks, parentID)
	}
	s.mu.Unlock()
	return ok
}

// ActiveChild returns the id of an iceberg parent's resting visible slice
func (s *Scheduler) ActiveChild(parentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[parentID]
	if !ok || t.activeChild == "" {
		return "", false
	}
	return t.activeChild, true
}

// ObserveVolume accumulates traded volume from the tick feed for VWAP
// interval accounting.
func (s *Scheduler) ObserveVolume(verseID string, outcome uint8, qty int64) {
	if qty <= 0 {
		return
	}
	s.mu.Lock()
	s.volumes[volumeKey(verseID, outcome)] += qty
	s.mu.Unlock()
}

// Tasks returns the number of live strategies
func (s *Scheduler) Tasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// reap finishes tasks whose strategy has run its course
func (s *Scheduler) reap() {
	var done []*task
	s.mu.Lock()
	for id, t := range s.tasks {
		switch t.kind {
		case order.Iceberg:
			if t.filled >= t.parent.Qty {
				done = append(done, t)
				delete(s.tasks, id)
			}
		default:
			if t.slicesLeft <= 0 || t.emitted >= t.parent.Qty {
				done = append(done, t)
				delete(s.tasks, id)
			}
		}
	}
	s.mu.Unlock()

	for _, t := range done {
		s.submit.FinishParent(t.parent)
	}
}

func volumeKey(verseID string, outcome uint8) string {
	return verseID + "/" + strconv.Itoa(int(outcome))
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
