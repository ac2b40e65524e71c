package algo

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/order"
)

// fakeSubmitter records emitted slices and can auto-fill them
type fakeSubmitter struct {
	slices   []Slice
	parents  []string
	finished []string

	// fillWith, when set, reports each slice settled with this fraction
	// of its quantity filled (the rest returned), via the scheduler.
	scheduler *Scheduler
	fillAll   bool
	refuse    error // refuse every slice with this error
}

func (f *fakeSubmitter) SubmitSlice(parent *order.Order, s Slice) error {
	if f.refuse != nil {
		if f.scheduler != nil {
			f.scheduler.OnSliceSettled(parent.ID, 0, s.Qty)
		}
		return f.refuse
	}
	f.slices = append(f.slices, s)
	f.parents = append(f.parents, parent.ID)
	if f.fillAll && f.scheduler != nil {
		f.scheduler.OnSliceSettled(parent.ID, s.Qty, 0)
	}
	return nil
}

func (f *fakeSubmitter) FinishParent(parent *order.Order) {
	f.finished = append(f.finished, parent.ID)
}

func newScheduler(t *testing.T) (*Scheduler, *fakeSubmitter, *clock.Mock) {
	t.Helper()
	sub := &fakeSubmitter{}
	mock := clock.NewMock()
	s := NewScheduler(zap.NewNop(), mock, sub)
	sub.scheduler = s
	return s, sub, mock
}

func twapParent(qty int64, intervals int) *order.Order {
	return &order.Order{
		ID:        "parent-1",
		VerseID:   "v1",
		Side:      order.Buy,
		Kind:      order.TWAP,
		Qty:       qty,
		Duration:  4 * time.Minute,
		Intervals: intervals,
		State:     order.StateOpen,
	}
}

func TestTWAPSlicesEqually(t *testing.T) {
	s, sub, mock := newScheduler(t)
	sub.fillAll = true

	require.NoError(t, s.Start(twapParent(100, 4)))
	assert.Empty(t, sub.slices, "timed strategies wait for the first tick")

	for i := 0; i < 4; i++ {
		s.Tick(mock.Now())
		mock.Add(time.Minute)
	}

	require.Len(t, sub.slices, 4)
	for _, sl := range sub.slices {
		assert.Equal(t, int64(25), sl.Qty)
		assert.False(t, sl.Rest, "timed slices sweep, they do not rest")
	}
	assert.Equal(t, []string{"parent-1"}, sub.finished)
	assert.Zero(t, s.Tasks())
}

func TestTWAPFinalIntervalSweepsRemainder(t *testing.T) {
	s, sub, mock := newScheduler(t)

	// nothing fills, so unfilled IOC quantity flows back each interval
	require.NoError(t, s.Start(twapParent(100, 3)))
	for i := 0; i < 3; i++ {
		s.Tick(mock.Now())
		// report the slice fully returned
		last := sub.slices[len(sub.slices)-1]
		s.OnSliceSettled("parent-1", 0, last.Qty)
		mock.Add(80 * time.Second)
	}

	require.Len(t, sub.slices, 3)
	assert.Equal(t, int64(33), sub.slices[0].Qty)
	assert.Equal(t, int64(50), sub.slices[1].Qty, "returned quantity re-enters the pool")
	assert.Equal(t, int64(100), sub.slices[2].Qty, "final interval sweeps everything still unfilled")
}

func TestTWAPSliceIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, "parent-1-slice-3", SliceID("parent-1", 3))
}

func TestIcebergEmitsVisibleSliceAndReplenishes(t *testing.T) {
	s, sub, _ := newScheduler(t)

	parent := &order.Order{
		ID: "ice-1", VerseID: "v1", Side: order.Sell, Kind: order.Iceberg,
		Qty: 100, VisibleQty: 30, Price: 5200, State: order.StateOpen,
	}
	require.NoError(t, s.Start(parent))

	require.Len(t, sub.slices, 1)
	assert.Equal(t, Slice{Seq: 1, Qty: 30, Price: 5200, Rest: true}, sub.slices[0])

	child, ok := s.ActiveChild("ice-1")
	require.True(t, ok)
	assert.Equal(t, "ice-1-slice-1", child)

	// visible slice fills: the next 30 units surface
	s.OnSliceSettled("ice-1", 30, 0)
	require.Len(t, sub.slices, 2)
	assert.Equal(t, int64(30), sub.slices[1].Qty)

	s.OnSliceSettled("ice-1", 30, 0)
	s.OnSliceSettled("ice-1", 30, 0)
	require.Len(t, sub.slices, 4)
	assert.Equal(t, int64(10), sub.slices[3].Qty, "hidden pool exhausts")

	s.OnSliceSettled("ice-1", 10, 0)
	assert.Equal(t, []string{"ice-1"}, sub.finished)
	assert.Zero(t, s.Tasks())
}

func TestIcebergCancelStopsReplenishment(t *testing.T) {
	s, sub, _ := newScheduler(t)

	parent := &order.Order{
		ID: "ice-1", VerseID: "v1", Side: order.Sell, Kind: order.Iceberg,
		Qty: 100, VisibleQty: 30, Price: 5200, State: order.StateOpen,
	}
	require.NoError(t, s.Start(parent))
	require.True(t, s.Cancel("ice-1"))

	s.OnSliceSettled("ice-1", 30, 0)
	assert.Len(t, sub.slices, 1, "no replenishment after cancel")
	assert.False(t, s.Cancel("ice-1"), "already cancelled")
}

func TestVWAPFallsBackToEqualSlicing(t *testing.T) {
	s, sub, mock := newScheduler(t)
	sub.fillAll = true

	parent := twapParent(100, 4)
	parent.Kind = order.VWAP
	parent.MaxParticipationBps = 10_000

	require.NoError(t, s.Start(parent))

	// no volume observed: every interval falls back to an equal slice
	for i := 0; i < 4; i++ {
		s.Tick(mock.Now())
		mock.Add(time.Minute)
	}
	require.Len(t, sub.slices, 4)
	for _, sl := range sub.slices {
		assert.Equal(t, int64(25), sl.Qty)
	}
}

func TestVWAPWeightsByObservedVolume(t *testing.T) {
	s, sub, mock := newScheduler(t)
	sub.fillAll = true

	parent := twapParent(100, 4)
	parent.Kind = order.VWAP
	parent.MaxParticipationBps = 10_000

	require.NoError(t, s.Start(parent))

	// first interval prints heavy volume, second prints none
	s.ObserveVolume("v1", 0, 1000)
	s.Tick(mock.Now())
	mock.Add(time.Minute)

	s.Tick(mock.Now())
	mock.Add(time.Minute)

	require.GreaterOrEqual(t, len(sub.slices), 1)
	first := sub.slices[0]
	assert.Equal(t, int64(25), first.Qty, "first interval has only its own volume as history")
	if len(sub.slices) > 1 {
		assert.LessOrEqual(t, sub.slices[1].Qty, first.Qty, "zero-volume interval slices no larger")
	}
}

func TestVWAPParticipationCap(t *testing.T) {
	s, sub, mock := newScheduler(t)
	sub.fillAll = true

	parent := twapParent(100, 2)
	parent.Kind = order.VWAP
	parent.MaxParticipationBps = 100 // 1% of observed volume

	require.NoError(t, s.Start(parent))

	s.ObserveVolume("v1", 0, 1000)
	s.Tick(mock.Now())

	require.Len(t, sub.slices, 1)
	assert.LessOrEqual(t, sub.slices[0].Qty, int64(10), "capped at 1% of 1000")
}

func TestStartRejectsNonAlgoKinds(t *testing.T) {
	s, _, _ := newScheduler(t)
	err := s.Start(&order.Order{ID: "x", Kind: order.Limit})
	assert.Error(t, err)
}

func TestStartUnwindsTaskWhenFirstSliceRefused(t *testing.T) {
	s, sub, _ := newScheduler(t)
	sub.refuse = errors.New("book refused the slice")

	parent := &order.Order{
		ID: "ice-1", VerseID: "v1", Side: order.Sell, Kind: order.Iceberg,
		Qty: 100, VisibleQty: 30, Price: 5200, State: order.StateOpen,
	}
	err := s.Start(parent)
	require.Error(t, err)
	assert.Zero(t, s.Tasks(), "refused strategy must not leave a live task")
	assert.False(t, s.Cancel("ice-1"))
}
