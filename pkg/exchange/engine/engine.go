// Package engine is the matching core: it consumes validated orders,
// matches them against per-(verse, outcome) books by price-time priority,
// produces fills, and drives the trigger monitor, linked-order coordinator
// and execution scheduler.
//
// Concurrency model: each (verse, outcome) pair owns a single writer lock
// guarding its book, trigger set and linked groups, so a match pass and a
// trigger-fired submission can never interleave mid-update. Collaborator
// I/O (positions, journal, notifications, scheduler feedback) is flushed
// after the lock is released but before the call returns, so callers
// observe a consistent post-state.
package engine

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/account"
	"github.com/versemarket/versex/pkg/exchange/algo"
	"github.com/versemarket/versex/pkg/exchange/book"
	"github.com/versemarket/versex/pkg/exchange/linked"
	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/exchange/order"
	"github.com/versemarket/versex/pkg/exchange/trigger"
)

// StateChange is the order-state-changed event consumed by the
// notification collaborator.
type StateChange struct {
	OrderID string
	State   order.State
	At      int64 // unix ms
}

// Notifier is the real-time notification collaborator
type Notifier interface {
	OrderStateChanged(sc StateChange)
	TradeExecuted(t *order.Trade)
}

// RiskChecker is the pre-trade risk collaborator, consulted synchronously
// before any submission that increases exposure.
type RiskChecker interface {
	CheckOrder(o *order.Order) error
}

// Journal records fills and order events durably
type Journal interface {
	RecordTrade(t *order.Trade) error
	RecordOrderEvent(orderID string, state order.State, tsMs int64) error
}

// NopNotifier discards events
type NopNotifier struct{}

func (NopNotifier) OrderStateChanged(StateChange)   {}
func (NopNotifier) TradeExecuted(*order.Trade)      {}

// NopJournal discards records
type NopJournal struct{}

func (NopJournal) RecordTrade(*order.Trade) error                  { return nil }
func (NopJournal) RecordOrderEvent(string, order.State, int64) error { return nil }

// bookKey identifies one order book
type bookKey struct {
	verse   string
	outcome uint8
}

// verseState is the arena for one (verse, outcome) pair: book, triggers
// and linked groups live behind one writer lock, never behind globals.
type verseState struct {
	mu sync.Mutex

	key       bookKey
	verse     *market.Verse
	book      *book.Book
	triggers  *trigger.Monitor
	groups    *linked.Coordinator
	lastPrice int64

	// recent trades ring for API snapshots
	recent    []*order.Trade
	recentCap int
}

const (
	defaultRecentTrades = 128

	// terminal orders stay queryable for a while, then age out of the
	// index so a long-running process does not grow without bound
	defaultTerminalRetention = 4096
)

// Engine is the order management and matching core
type Engine struct {
	log       *zap.Logger
	clock     clock.Clock
	verses    *market.Registry
	positions *account.Manager
	risk      RiskChecker
	notifier  Notifier
	journal   Journal
	scheduler *algo.Scheduler

	recentCap int
	retainCap int

	mu      sync.RWMutex
	states  map[bookKey]*verseState
	orders  map[string]*slot
	retired []string // terminal order ids, oldest first
}

type slot struct {
	o  *order.Order
	vs *verseState
}

// Options are the engine's optional collaborators
type Options struct {
	Risk     RiskChecker
	Notifier Notifier
	Journal  Journal
	Clock    clock.Clock
	// RecentTrades bounds the per-book trade ring (default 128)
	RecentTrades int
	// TerminalRetention bounds how many terminal orders stay queryable
	// before aging out of the index (default 4096)
	TerminalRetention int
}

// New creates an engine over the verse catalog and position manager.
// Attach the execution scheduler with AttachScheduler before submitting
// algorithmic orders.
func New(log *zap.Logger, verses *market.Registry, positions *account.Manager, opts Options) *Engine {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Journal == nil {
		opts.Journal = NopJournal{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.RecentTrades <= 0 {
		opts.RecentTrades = defaultRecentTrades
	}
	if opts.TerminalRetention <= 0 {
		opts.TerminalRetention = defaultTerminalRetention
	}
	return &Engine{
		log:       log.Named("engine"),
		clock:     opts.Clock,
		verses:    verses,
		positions: positions,
		risk:      opts.Risk,
		notifier:  opts.Notifier,
		journal:   opts.Journal,
		recentCap: opts.RecentTrades,
		retainCap: opts.TerminalRetention,
		states:    make(map[bookKey]*verseState),
		orders:    make(map[string]*slot),
	}
}

// AttachScheduler wires the execution scheduler. The scheduler submits
// slices back through the engine, so the two are constructed in tandem.
func (e *Engine) AttachScheduler(s *algo.Scheduler) { e.scheduler = s }

// AttachNotifier replaces the notification collaborator. Call before the
// engine starts producing events.
func (e *Engine) AttachNotifier(n Notifier) { e.notifier = n }

func (e *Engine) now() int64 { return e.clock.Now().UnixMilli() }

// stateFor returns (creating on first use) the arena for a book key
func (e *Engine) stateFor(v *market.Verse, outcome uint8) *verseState {
	key := bookKey{verse: v.ID, outcome: outcome}

	e.mu.RLock()
	vs, ok := e.states[key]
	e.mu.RUnlock()
	if ok {
		return vs
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if vs, ok = e.states[key]; ok {
		return vs
	}
	vs = &verseState{
		key:       key,
		verse:     v,
		book:      book.New(),
		triggers:  trigger.NewMonitor(e.log),
		groups:    linked.NewCoordinator(),
		recentCap: e.recentCap,
	}
	e.states[key] = vs
	return vs
}

// register makes an order findable for cancellation and queries.
// Lock ordering: e.mu may be taken while holding a verseState lock,
// never the other way around.
func (e *Engine) register(o *order.Order, vs *verseState) {
	e.mu.Lock()
	e.orders[o.ID] = &slot{o: o, vs: vs}
	e.mu.Unlock()
}

func (e *Engine) unregister(ids ...string) {
	e.mu.Lock()
	for _, id := range ids {
		delete(e.orders, id)
	}
	e.mu.Unlock()
}

func (e *Engine) lookup(id string) (*slot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.orders[id]
	return s, ok
}

// Order returns a copy of an order's current state
func (e *Engine) Order(id string) (order.Order, error) {
	s, ok := e.lookup(id)
	if !ok {
		return order.Order{}, errors.Wrapf(order.ErrOrderNotFound, "order %s", id)
	}
	s.vs.mu.Lock()
	cp := *s.o
	s.vs.mu.Unlock()
	return cp, nil
}

// Snapshot is an orderbook view for the API surface
type Snapshot struct {
	VerseID   string
	Outcome   uint8
	Bids      []book.PriceLevel
	Asks      []book.PriceLevel
	LastPrice int64
	Sequence  uint64
	At        int64
}

// BookSnapshot returns the aggregated book for one (verse, outcome)
func (e *Engine) BookSnapshot(verseID string, outcome uint8) (Snapshot, error) {
	v, err := e.verses.Get(verseID)
	if err != nil {
		return Snapshot{}, err
	}
	if outcome >= v.Outcomes {
		return Snapshot{}, errors.Wrapf(order.ErrInvalidParameters,
			"outcome %d out of range for %d-outcome verse", outcome, v.Outcomes)
	}
	vs := e.stateFor(v, outcome)
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return Snapshot{
		VerseID:   verseID,
		Outcome:   outcome,
		Bids:      vs.book.Levels(order.Buy),
		Asks:      vs.book.Levels(order.Sell),
		LastPrice: vs.lastPrice,
		Sequence:  vs.book.Sequence(),
		At:        e.now(),
	}, nil
}

// RecentTrades returns up to limit recent trades, newest last
func (e *Engine) RecentTrades(verseID string, outcome uint8, limit int) ([]*order.Trade, error) {
	v, err := e.verses.Get(verseID)
	if err != nil {
		return nil, err
	}
	if outcome >= v.Outcomes {
		return nil, errors.Wrapf(order.ErrInvalidParameters,
			"outcome %d out of range for %d-outcome verse", outcome, v.Outcomes)
	}
	vs := e.stateFor(v, outcome)
	vs.mu.Lock()
	defer vs.mu.Unlock()
	trades := vs.recent
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	out := make([]*order.Trade, len(trades))
	copy(out, trades)
	return out, nil
}

// events buffers collaborator side effects produced under a verse lock;
// they are flushed after the lock is released, before the call returns.
type events struct {
	states []StateChange
	trades []tradeEvent
	slices []sliceEvent
}

type tradeEvent struct {
	trade         *order.Trade
	makerLeverage int64
	takerLeverage int64
}

type sliceEvent struct {
	parentID string
	filled   int64
	returned int64
}

func (ev *events) state(o *order.Order, at int64) {
	ev.states = append(ev.states, StateChange{OrderID: o.ID, State: o.State, At: at})
}

func (e *Engine) flush(ev *events) {
	for _, te := range ev.trades {
		e.positions.ApplyTrade(te.trade, te.makerLeverage, te.takerLeverage)
		if err := e.journal.RecordTrade(te.trade); err != nil {
			e.log.Warn("journal trade failed", zap.String("trade_id", te.trade.ID), zap.Error(err))
		}
		e.notifier.TradeExecuted(te.trade)
	}
	var terminal []string
	for _, sc := range ev.states {
		if err := e.journal.RecordOrderEvent(sc.OrderID, sc.State, sc.At); err != nil {
			e.log.Warn("journal order event failed", zap.String("order_id", sc.OrderID), zap.Error(err))
		}
		e.notifier.OrderStateChanged(sc)
		if sc.State.Terminal() {
			terminal = append(terminal, sc.OrderID)
		}
	}
	if len(terminal) > 0 {
		e.retire(terminal)
	}
	for _, sl := range ev.slices {
		if e.scheduler != nil {
			e.scheduler.OnSliceSettled(sl.parentID, sl.filled, sl.returned)
		}
	}
}

// retire queues terminal orders for eviction from the index. The newest
// retainCap stay queryable (Order, Cancel's AlreadyTerminal answer);
// older ones are dropped so the index stays bounded.
func (e *Engine) retire(ids []string) {
	e.mu.Lock()
	e.retired = append(e.retired, ids...)
	for len(e.retired) > e.retainCap {
		delete(e.orders, e.retired[0])
		e.retired = e.retired[1:]
	}
	e.mu.Unlock()
}
