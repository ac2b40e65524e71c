package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/account"
	"github.com/versemarket/versex/pkg/exchange/algo"
	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/exchange/order"
)

type harness struct {
	eng       *Engine
	scheduler *algo.Scheduler
	accounts  *account.Manager
	clock     *clock.Mock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	verses := market.NewRegistry()
	v, err := market.NewVerse("v1", "test verse", 2, market.Params{
		TickSize: 1, LotSize: 1, MaxOrderQty: 1_000_000,
		MakerFeeBps: -2, TakerFeeBps: 10,
	})
	require.NoError(t, err)
	require.NoError(t, verses.Register(v))

	accounts, err := account.NewManager(zap.NewNop(), "")
	require.NoError(t, err)
	t.Cleanup(func() { accounts.Close() })

	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	opts.Clock = mock

	eng := New(zap.NewNop(), verses, accounts, opts)
	scheduler := algo.NewScheduler(zap.NewNop(), mock, eng)
	eng.AttachScheduler(scheduler)

	return &harness{eng: eng, scheduler: scheduler, accounts: accounts, clock: mock}
}

func req(account string, side order.Side, kind order.Kind, qty, price int64) order.Request {
	return order.Request{
		Account: account, VerseID: "v1", Outcome: 0,
		Side: side, Kind: kind, Qty: qty, Price: price, Leverage: 1,
	}
}

func (h *harness) rest(t *testing.T, account string, side order.Side, qty, price int64) order.Order {
	t.Helper()
	o, err := h.eng.Submit(req(account, side, order.Limit, qty, price))
	require.NoError(t, err)
	return o
}

func (h *harness) state(t *testing.T, id string) order.State {
	t.Helper()
	o, err := h.eng.Order(id)
	require.NoError(t, err)
	return o.State
}

func TestLimitRestsThenMarketFills(t *testing.T) {
	h := newHarness(t, Options{})

	bid := h.rest(t, "alice", order.Buy, 10, 5000)
	assert.Equal(t, order.StateOpen, bid.State)

	taker, err := h.eng.Submit(req("bob", order.Sell, order.Market, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, order.StateFilled, taker.State)
	assert.Equal(t, int64(5000), taker.AvgFillPrice)

	assert.Equal(t, order.StateFilled, h.state(t, bid.ID))

	trades, err := h.eng.RecentTrades("v1", 0, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(10), trades[0].Qty)
	assert.Equal(t, int64(5000), trades[0].Price)
	assert.Equal(t, order.Sell, trades[0].TakerSide)

	// positions settle both sides
	long := h.accounts.Position("alice", "v1", 0)
	require.NotNil(t, long)
	assert.Equal(t, int64(10), long.Size)
	short := h.accounts.Position("bob", "v1", 0)
	require.NotNil(t, short)
	assert.Equal(t, int64(-10), short.Size)
}

func TestPriceTimePriority(t *testing.T) {
	h := newHarness(t, Options{})

	first := h.rest(t, "alice", order.Sell, 10, 5000)
	second := h.rest(t, "carol", order.Sell, 10, 5000)
	better := h.rest(t, "dave", order.Sell, 10, 4900)

	_, err := h.eng.Submit(req("bob", order.Buy, order.Market, 15, 0))
	require.NoError(t, err)

	assert.Equal(t, order.StateFilled, h.state(t, better.ID), "best price fills first")
	assert.Equal(t, order.StatePartiallyFilled, h.state(t, first.ID), "then earliest arrival")
	assert.Equal(t, order.StateOpen, h.state(t, second.ID))
}

func TestPartialFillRests(t *testing.T) {
	h := newHarness(t, Options{})

	bid := h.rest(t, "alice", order.Buy, 10, 5000)
	taker, err := h.eng.Submit(req("bob", order.Sell, order.Market, 4, 0))
	require.NoError(t, err)
	assert.Equal(t, order.StateFilled, taker.State)

	resting, err := h.eng.Order(bid.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatePartiallyFilled, resting.State)
	assert.Equal(t, int64(6), resting.Remaining())
}

func TestSelfTradeRejected(t *testing.T) {
	h := newHarness(t, Options{})

	bid := h.rest(t, "alice", order.Buy, 10, 5000)

	_, err := h.eng.Submit(req("alice", order.Sell, order.Market, 5, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrSelfTradeRejected)

	// neither order mutated
	assert.Equal(t, order.StateOpen, h.state(t, bid.ID))
	snap, err := h.eng.BookSnapshot("v1", 0)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(10), snap.Bids[0].Qty)
}

func TestMarketGTCInsufficientLiquidity(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "alice", order.Buy, 5, 5000)

	_, err := h.eng.Submit(req("bob", order.Sell, order.Market, 10, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrInsufficientLiquidity)

	// refused whole: nothing filled, book untouched
	snap, err := h.eng.BookSnapshot("v1", 0)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(5), snap.Bids[0].Qty)
}

func TestFOKKillsWithoutDepth(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "alice", order.Sell, 5, 5000)

	r := req("bob", order.Buy, order.Limit, 10, 5000)
	r.TIF = order.FOK
	o, err := h.eng.Submit(r)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, o.State)
	assert.Zero(t, o.Filled, "all or nothing")

	r.Qty = 5
	o, err = h.eng.Submit(r)
	require.NoError(t, err)
	assert.Equal(t, order.StateFilled, o.State)
}

func TestIOCCancelsRemainder(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "alice", order.Buy, 10, 5000)

	r := req("bob", order.Sell, order.Limit, 25, 5000)
	r.TIF = order.IOC
	o, err := h.eng.Submit(r)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, o.State)
	assert.Equal(t, int64(10), o.Filled, "fills what it can, cancels the rest")
}

func TestLimitRespectsPrice(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "alice", order.Sell, 10, 5200)

	o, err := h.eng.Submit(req("bob", order.Buy, order.Limit, 10, 5000))
	require.NoError(t, err)
	assert.Equal(t, order.StateOpen, o.State, "uncrossed limit rests")

	snap, err := h.eng.BookSnapshot("v1", 0)
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 1)
}

func TestCancelRoundTrip(t *testing.T) {
	h := newHarness(t, Options{})

	o := h.rest(t, "alice", order.Buy, 10, 5000)
	require.NoError(t, h.eng.Cancel(o.ID))
	assert.Equal(t, order.StateCancelled, h.state(t, o.ID))

	// cancelled order is out of the book
	snap, err := h.eng.BookSnapshot("v1", 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)

	err = h.eng.Cancel(o.ID)
	assert.ErrorIs(t, err, order.ErrAlreadyTerminal)

	err = h.eng.Cancel("no-such-order")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestGTDExpiresOnTick(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Buy, order.Limit, 10, 5000)
	r.TIF = order.GTD
	r.ExpireAt = h.clock.Now().UnixMilli() + 1000
	o, err := h.eng.Submit(r)
	require.NoError(t, err)
	assert.Equal(t, order.StateOpen, o.State)

	h.clock.Add(2 * time.Second)
	require.NoError(t, h.eng.OnPriceTick("v1", 0, 5000, 0))

	assert.Equal(t, order.StateExpired, h.state(t, o.ID))
	snap, _ := h.eng.BookSnapshot("v1", 0)
	assert.Empty(t, snap.Bids)
}

func TestStopLossFiresAndExecutes(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "carol", order.Buy, 10, 4400)

	r := req("alice", order.Sell, order.StopLoss, 10, 0)
	r.TriggerPrice = 4500
	stop, err := h.eng.Submit(r)
	require.NoError(t, err)
	assert.Equal(t, order.StatePending, stop.State)

	// above the trigger: still dormant
	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4600, 0))
	assert.Equal(t, order.StatePending, h.state(t, stop.ID))

	// through the trigger: fires and sweeps the book
	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4500, 0))

	fired, err := h.eng.Order(stop.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateFilled, fired.State)
	assert.Equal(t, int64(4400), fired.AvgFillPrice)
}

func TestFiredStopWithoutLiquidityCancels(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Sell, order.StopLoss, 10, 0)
	r.TriggerPrice = 4500
	stop, err := h.eng.Submit(r)
	require.NoError(t, err)

	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4400, 0))

	// fires as IOC: nothing to take, so it cancels with zero fills
	cancelled, err := h.eng.Order(stop.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, cancelled.State)
	assert.Zero(t, cancelled.Filled)

	// once-only: no resurrection on the next tick
	h.rest(t, "carol", order.Buy, 10, 4300)
	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4300, 0))
	assert.Equal(t, order.StateCancelled, h.state(t, stop.ID))
}

func TestFiredStopTakesPartialLiquidity(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "carol", order.Buy, 4, 4400)

	r := req("alice", order.Sell, order.StopLoss, 10, 0)
	r.TriggerPrice = 4500
	stop, err := h.eng.Submit(r)
	require.NoError(t, err)

	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4400, 0))

	got, err := h.eng.Order(stop.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, got.State, "IOC remainder cancelled")
	assert.Equal(t, int64(4), got.Filled, "takes what the book has")
}

func TestFiredStopSelfTradeRejected(t *testing.T) {
	h := newHarness(t, Options{})

	bid := h.rest(t, "alice", order.Buy, 10, 4400)

	r := req("alice", order.Sell, order.StopLoss, 10, 0)
	r.TriggerPrice = 4500
	stop, err := h.eng.Submit(r)
	require.NoError(t, err)

	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4400, 0))

	rejected, err := h.eng.Order(stop.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateRejected, rejected.State)
	assert.NotEmpty(t, rejected.RejectReason)
	assert.Equal(t, order.StateOpen, h.state(t, bid.ID), "resting bid untouched")
}

func TestStopLimitPromotesToLimit(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Sell, order.StopLimit, 10, 4300)
	r.TriggerPrice = 4500
	stop, err := h.eng.Submit(r)
	require.NoError(t, err)

	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4500, 0))

	promoted, err := h.eng.Order(stop.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Limit, promoted.Kind)
	assert.Equal(t, order.StateOpen, promoted.State, "no crossable depth, rests at its limit")

	snap, _ := h.eng.BookSnapshot("v1", 0)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(4300), snap.Asks[0].Price)
}

func TestTrailingStopRatchetsThenFires(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "carol", order.Buy, 10, 6500)

	r := req("alice", order.Sell, order.TrailingStop, 10, 0)
	r.TrailAmount = 500
	ts, err := h.eng.Submit(r)
	require.NoError(t, err)

	require.NoError(t, h.eng.OnPriceTick("v1", 0, 6000, 0)) // seeds watermark
	require.NoError(t, h.eng.OnPriceTick("v1", 0, 7000, 0)) // ratchets trail to 6500
	assert.Equal(t, order.StatePending, h.state(t, ts.ID))

	require.NoError(t, h.eng.OnPriceTick("v1", 0, 6500, 0)) // reversal fires
	assert.Equal(t, order.StateFilled, h.state(t, ts.ID))
}

func TestOCOLimitFillCancelsStop(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Sell, order.OCO, 10, 6000)
	r.StopPrice = 4500
	primary, err := h.eng.Submit(r)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(primary.ID, "-limit"))
	stopID := strings.TrimSuffix(primary.ID, "-limit") + "-stop"
	assert.Equal(t, order.StateOpen, primary.State)

	// buyer lifts the limit leg
	_, err = h.eng.Submit(req("bob", order.Buy, order.Limit, 10, 6000))
	require.NoError(t, err)

	assert.Equal(t, order.StateFilled, h.state(t, primary.ID))
	assert.Equal(t, order.StateCancelled, h.state(t, stopID), "sibling cancelled on fill")

	// resolved group bookkeeping is dropped once the decision is applied
	vs := h.eng.states[bookKey{verse: "v1", outcome: 0}]
	_, ok := vs.groups.GroupOf(primary.ID)
	assert.False(t, ok)
}

func TestOCOStopActivationCancelsLimit(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "carol", order.Buy, 10, 4400)

	r := req("alice", order.Sell, order.OCO, 10, 6000)
	r.StopPrice = 4500
	primary, err := h.eng.Submit(r)
	require.NoError(t, err)
	stopID := strings.TrimSuffix(primary.ID, "-limit") + "-stop"

	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4500, 0))

	assert.Equal(t, order.StateCancelled, h.state(t, primary.ID),
		"activation cancels the limit leg before the stop touches the book")
	assert.Equal(t, order.StateFilled, h.state(t, stopID))
}

func TestOCOCancelPropagates(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Sell, order.OCO, 10, 6000)
	r.StopPrice = 4500
	primary, err := h.eng.Submit(r)
	require.NoError(t, err)
	stopID := strings.TrimSuffix(primary.ID, "-limit") + "-stop"

	require.NoError(t, h.eng.Cancel(primary.ID))
	assert.Equal(t, order.StateCancelled, h.state(t, stopID))
}

func TestBracketLifecycle(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Buy, order.Bracket, 10, 5000)
	r.StopPrice = 4000
	r.TargetPrice = 6000
	entry, err := h.eng.Submit(r)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(entry.ID, "-entry"))
	base := strings.TrimSuffix(entry.ID, "-entry")
	slID, tpID := base+"-sl", base+"-tp"

	assert.Equal(t, order.StateOpen, entry.State)
	assert.Equal(t, order.StatePending, h.state(t, slID))
	assert.Equal(t, order.StatePending, h.state(t, tpID))

	// entry fills: exits arm as an OCO pair on the opposite side
	_, err = h.eng.Submit(req("bob", order.Sell, order.Limit, 10, 5000))
	require.NoError(t, err)
	assert.Equal(t, order.StateFilled, h.state(t, entry.ID))

	// stop side fires and closes the position against resting bids
	h.rest(t, "carol", order.Buy, 10, 4000)
	require.NoError(t, h.eng.OnPriceTick("v1", 0, 4000, 0))

	assert.Equal(t, order.StateFilled, h.state(t, slID))
	assert.Equal(t, order.StateCancelled, h.state(t, tpID), "surviving exit cancelled")
}

func TestBracketEntryCancelKillsExits(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Buy, order.Bracket, 10, 5000)
	r.StopPrice = 4000
	r.TargetPrice = 6000
	entry, err := h.eng.Submit(r)
	require.NoError(t, err)
	base := strings.TrimSuffix(entry.ID, "-entry")

	require.NoError(t, h.eng.Cancel(entry.ID))
	assert.Equal(t, order.StateCancelled, h.state(t, base+"-sl"))
	assert.Equal(t, order.StateCancelled, h.state(t, base+"-tp"))
}

func TestIcebergShowsOnlyVisibleQty(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Sell, order.Iceberg, 100, 5200)
	r.VisibleQty = 30
	parent, err := h.eng.Submit(r)
	require.NoError(t, err)
	assert.Equal(t, order.StateOpen, parent.State)

	snap, _ := h.eng.BookSnapshot("v1", 0)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(30), snap.Asks[0].Qty, "only the visible slice shows")

	// lifting the visible slice surfaces the next one
	_, err = h.eng.Submit(req("bob", order.Buy, order.Limit, 30, 5200))
	require.NoError(t, err)

	snap, _ = h.eng.BookSnapshot("v1", 0)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(30), snap.Asks[0].Qty, "replenished from the hidden pool")

	got, err := h.eng.Order(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.Filled, "parent mirrors child fills")
}

func TestIcebergCancelPullsChild(t *testing.T) {
	h := newHarness(t, Options{})

	r := req("alice", order.Sell, order.Iceberg, 100, 5200)
	r.VisibleQty = 30
	parent, err := h.eng.Submit(r)
	require.NoError(t, err)

	require.NoError(t, h.eng.Cancel(parent.ID))
	assert.Equal(t, order.StateCancelled, h.state(t, parent.ID))

	snap, _ := h.eng.BookSnapshot("v1", 0)
	assert.Empty(t, snap.Asks, "resting child pulled with the parent")
}

func TestTWAPExecutesAcrossIntervals(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "bob", order.Sell, 100, 5000)

	r := req("alice", order.Buy, order.TWAP, 100, 0)
	r.Duration = 4 * time.Minute
	r.Intervals = 4
	parent, err := h.eng.Submit(r)
	require.NoError(t, err)
	assert.Equal(t, order.StateOpen, parent.State)

	for i := 0; i < 4; i++ {
		h.scheduler.Tick(h.clock.Now())
		h.clock.Add(time.Minute)
	}

	got, err := h.eng.Order(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateFilled, got.State)
	assert.Equal(t, int64(100), got.Filled)
	assert.Equal(t, int64(5000), got.AvgFillPrice)

	pos := h.accounts.Position("alice", "v1", 0)
	require.NotNil(t, pos)
	assert.Equal(t, int64(100), pos.Size)
}

func TestAlgoCancelStopsEmission(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "bob", order.Sell, 100, 5000)

	r := req("alice", order.Buy, order.TWAP, 100, 0)
	r.Duration = 4 * time.Minute
	r.Intervals = 4
	parent, err := h.eng.Submit(r)
	require.NoError(t, err)

	h.scheduler.Tick(h.clock.Now()) // one slice executes
	require.NoError(t, h.eng.Cancel(parent.ID))

	h.clock.Add(time.Minute)
	h.scheduler.Tick(h.clock.Now())

	got, err := h.eng.Order(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, got.State)
	assert.Equal(t, int64(25), got.Filled, "fills before cancel are kept")
}

func TestRiskGateBlocksSubmission(t *testing.T) {
	accounts, err := account.NewManager(zap.NewNop(), "")
	require.NoError(t, err)
	t.Cleanup(func() { accounts.Close() })

	h := newHarness(t, Options{Risk: account.NewRiskGate(accounts, 10)})

	_, err = h.eng.Submit(req("alice", order.Buy, order.Limit, 1000, 5000))
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrRiskLimitExceeded)
}

func TestSubmitUnknownVerse(t *testing.T) {
	h := newHarness(t, Options{})
	r := req("alice", order.Buy, order.Limit, 10, 5000)
	r.VerseID = "missing"
	_, err := h.eng.Submit(r)
	assert.ErrorIs(t, err, order.ErrInvalidParameters)
}

func TestOnPriceTickValidation(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Error(t, h.eng.OnPriceTick("missing", 0, 5000, 0))
	assert.ErrorIs(t, h.eng.OnPriceTick("v1", 0, market.PriceScale, 0), order.ErrInvalidParameters)
}

func TestCancelledParentRefusesLateSlice(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "bob", order.Sell, 100, 5000)

	r := req("alice", order.Buy, order.TWAP, 100, 0)
	r.Duration = 4 * time.Minute
	r.Intervals = 4
	parent, err := h.eng.Submit(r)
	require.NoError(t, err)
	require.NoError(t, h.eng.Cancel(parent.ID))

	// a slice collected before the cancel won the market lock must not
	// execute on behalf of the terminal parent
	err = h.eng.SubmitSlice(&parent, algo.Slice{Seq: 1, Qty: 25})
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrAlreadyTerminal)

	trades, err := h.eng.RecentTrades("v1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, trades, "no trade prints for a cancelled parent")
	assert.Zero(t, h.accounts.Exposure("alice"))
}

func TestRefusedFirstSliceLeavesNoTask(t *testing.T) {
	h := newHarness(t, Options{})

	h.rest(t, "alice", order.Buy, 10, 5200)

	r := req("alice", order.Sell, order.Iceberg, 100, 5200)
	r.VisibleQty = 30
	_, err := h.eng.Submit(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrSelfTradeRejected)

	assert.Zero(t, h.scheduler.Tasks(), "dead strategy must not linger")
}

func TestFillAppliesEachSidesLeverage(t *testing.T) {
	h := newHarness(t, Options{})

	maker := req("alice", order.Buy, order.Limit, 10, 5000)
	maker.Leverage = 5
	_, err := h.eng.Submit(maker)
	require.NoError(t, err)

	taker := req("bob", order.Sell, order.Market, 10, 0)
	taker.Leverage = 2
	_, err = h.eng.Submit(taker)
	require.NoError(t, err)

	long := h.accounts.Position("alice", "v1", 0)
	require.NotNil(t, long)
	assert.Equal(t, int64(5), long.Leverage, "maker keeps its own leverage")
	short := h.accounts.Position("bob", "v1", 0)
	require.NotNil(t, short)
	assert.Equal(t, int64(2), short.Leverage)
}

func TestOutcomeOutOfRange(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.eng.BookSnapshot("v1", 200)
	assert.ErrorIs(t, err, order.ErrInvalidParameters)

	_, err = h.eng.RecentTrades("v1", 200, 0)
	assert.ErrorIs(t, err, order.ErrInvalidParameters)

	err = h.eng.OnPriceTick("v1", 200, 5000, 0)
	assert.ErrorIs(t, err, order.ErrInvalidParameters)
}

func TestTerminalOrdersAgeOut(t *testing.T) {
	h := newHarness(t, Options{TerminalRetention: 2})

	first := h.rest(t, "alice", order.Buy, 10, 5000)
	_, err := h.eng.Submit(req("bob", order.Sell, order.Market, 10, 0))
	require.NoError(t, err)

	second := h.rest(t, "alice", order.Buy, 10, 5000)
	taker, err := h.eng.Submit(req("bob", order.Sell, order.Market, 10, 0))
	require.NoError(t, err)

	// the earliest terminal pair has aged out of the index
	_, err = h.eng.Order(first.ID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	// the newest pair is still queryable
	assert.Equal(t, order.StateFilled, h.state(t, second.ID))
	assert.Equal(t, order.StateFilled, h.state(t, taker.ID))
}

func TestJournalReceivesEvents(t *testing.T) {
	j := &recordingJournal{}
	h := newHarness(t, Options{Journal: j})

	h.rest(t, "alice", order.Buy, 10, 5000)
	_, err := h.eng.Submit(req("bob", order.Sell, order.Market, 10, 0))
	require.NoError(t, err)

	assert.Equal(t, 1, j.trades)
	assert.GreaterOrEqual(t, j.events, 3, "open, then both fills")
}

type recordingJournal struct {
	trades int
	events int
}

func (j *recordingJournal) RecordTrade(*order.Trade) error { j.trades++; return nil }
func (j *recordingJournal) RecordOrderEvent(string, order.State, int64) error {
	j.events++
	return nil
}
