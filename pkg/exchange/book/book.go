// Package book holds the resting limit orders for one (verse, outcome)
// pair, sorted by price then arrival, realizing price-time priority.
//
// The book exposes no mutation beyond Insert/Remove/PopFront, so callers
// cannot corrupt the ordering. It is not internally locked: all access is
// serialized by the owning market's single-writer lock in the engine.
package book

import (
	"container/heap"
	"sort"

	"github.com/versemarket/versex/pkg/exchange/order"
)

// PriceLevel aggregates resting quantity at one price
type PriceLevel struct {
	Price int64
	Qty   int64
}

// Book is the matching substrate for one (verse, outcome) pair.
//
// Best-price tracking uses heaps for O(1) peek; each price level is a FIFO
// slice so earlier arrivals fill first; an order-id index gives O(1)
// cancellation lookup.
type Book struct {
	bidHeap *maxPriceHeap
	askHeap *minPriceHeap

	bids map[int64][]*order.Order // price -> FIFO queue
	asks map[int64][]*order.Order

	index map[string]indexEntry // order id -> location

	sequence uint64 // bumped on every mutation, for snapshots
}

type indexEntry struct {
	price int64
	side  order.Side
}

// New creates an empty book
func New() *Book {
	bidHeap := &maxPriceHeap{}
	askHeap := &minPriceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)

	return &Book{
		bidHeap: bidHeap,
		askHeap: askHeap,
		bids:    make(map[int64][]*order.Order),
		asks:    make(map[int64][]*order.Order),
		index:   make(map[string]indexEntry),
	}
}

// Insert places a resting limit-class order at its price level, preserving
// time priority (appended behind earlier arrivals at the same price).
func (b *Book) Insert(o *order.Order) {
	p := o.Price
	switch o.Side {
	case order.Buy:
		if len(b.bids[p]) == 0 {
			heap.Push(b.bidHeap, p)
		}
		b.bids[p] = append(b.bids[p], o)
	case order.Sell:
		if len(b.asks[p]) == 0 {
			heap.Push(b.askHeap, p)
		}
		b.asks[p] = append(b.asks[p], o)
	}
	b.index[o.ID] = indexEntry{price: p, side: o.Side}
	b.sequence++
}

// Remove excises a resting order by id (cancellation or expiry).
// Returns the order and true if it was resting.
func (b *Book) Remove(id string) (*order.Order, bool) {
	loc, ok := b.index[id]
	if !ok {
		return nil, false
	}

	queue := b.queueFor(loc.side)
	arr := queue[loc.price]
	for i, o := range arr {
		if o.ID == id {
			queue[loc.price] = append(arr[:i], arr[i+1:]...)
			if len(queue[loc.price]) == 0 {
				delete(queue, loc.price)
				b.dropLevel(loc.side, loc.price)
			}
			delete(b.index, id)
			b.sequence++
			return o, true
		}
	}
	return nil, false
}

// Contains reports whether an order id is resting in the book
func (b *Book) Contains(id string) bool {
	_, ok := b.index[id]
	return ok
}

// BestBid returns the top-of-book bid price, or false if the side is empty
func (b *Book) BestBid() (int64, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

// BestAsk returns the top-of-book ask price, or false if the side is empty
func (b *Book) BestAsk() (int64, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// Best returns the top-of-book price for one side
func (b *Book) Best(side order.Side) (int64, bool) {
	if side == order.Buy {
		return b.BestBid()
	}
	return b.BestAsk()
}

// Front returns the earliest resting order at the best price on side,
// or nil if the side is empty.
func (b *Book) Front(side order.Side) *order.Order {
	best, ok := b.Best(side)
	if !ok {
		return nil
	}
	arr := b.queueFor(side)[best]
	if len(arr) == 0 {
		return nil
	}
	return arr[0]
}

// PopFront removes the earliest resting order at the best price on side.
// Used by the matching core when a maker fills completely.
func (b *Book) PopFront(side order.Side) (*order.Order, bool) {
	best, ok := b.Best(side)
	if !ok {
		return nil, false
	}
	queue := b.queueFor(side)
	arr := queue[best]
	if len(arr) == 0 {
		return nil, false
	}
	o := arr[0]
	queue[best] = arr[1:]
	if len(queue[best]) == 0 {
		delete(queue, best)
		b.dropLevel(side, best)
	}
	delete(b.index, o.ID)
	b.sequence++
	return o, true
}

// satisfies reports whether a resting price on side would match a taker
// with the given limit (limit == 0 means a market taker).
func satisfies(side order.Side, restingPrice, takerLimit int64) bool {
	if takerLimit == 0 {
		return true
	}
	if side == order.Sell { // taker is buying against asks
		return restingPrice <= takerLimit
	}
	return restingPrice >= takerLimit // taker is selling against bids
}

// Depth sums resting quantity on side at prices satisfying takerLimit
// (0 for a market taker). Used for fill-or-kill and market-GTC prechecks.
func (b *Book) Depth(side order.Side, takerLimit int64) int64 {
	var total int64
	for price, arr := range b.queueFor(side) {
		if !satisfies(side, price, takerLimit) {
			continue
		}
		for _, o := range arr {
			total += o.Remaining()
		}
	}
	return total
}

// HasAccount reports whether any resting order on side at a price
// satisfying takerLimit belongs to account. Used for pre-match self-trade
// rejection.
func (b *Book) HasAccount(side order.Side, takerLimit int64, account string) bool {
	for price, arr := range b.queueFor(side) {
		if !satisfies(side, price, takerLimit) {
			continue
		}
		for _, o := range arr {
			if o.Account == account {
				return true
			}
		}
	}
	return false
}

// CollectExpired removes and returns all resting GTD orders past nowMs
func (b *Book) CollectExpired(nowMs int64) []*order.Order {
	var expired []*order.Order
	for _, queue := range []map[int64][]*order.Order{b.bids, b.asks} {
		for _, arr := range queue {
			for _, o := range arr {
				if o.Expired(nowMs) {
					expired = append(expired, o)
				}
			}
		}
	}
	for _, o := range expired {
		b.Remove(o.ID)
	}
	return expired
}

// Levels returns the aggregated price levels for one side, best first
func (b *Book) Levels(side order.Side) []PriceLevel {
	queue := b.queueFor(side)
	levels := make([]PriceLevel, 0, len(queue))
	for price, arr := range queue {
		if len(arr) == 0 {
			continue
		}
		var qty int64
		for _, o := range arr {
			qty += o.Remaining()
		}
		levels = append(levels, PriceLevel{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if side == order.Buy {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}

// Len returns the number of resting orders
func (b *Book) Len() int { return len(b.index) }

// Sequence returns the mutation counter for snapshot versioning
func (b *Book) Sequence() uint64 { return b.sequence }

func (b *Book) queueFor(side order.Side) map[int64][]*order.Order {
	if side == order.Buy {
		return b.bids
	}
	return b.asks
}

// dropLevel removes an emptied price level from its heap
// (O(N) worst case, but levels empty rarely relative to matches)
func (b *Book) dropLevel(side order.Side, price int64) {
	if side == order.Buy {
		for i := 0; i < b.bidHeap.Len(); i++ {
			if (*b.bidHeap)[i] == price {
				heap.Remove(b.bidHeap, i)
				return
			}
		}
		return
	}
	for i := 0; i < b.askHeap.Len(); i++ {
		if (*b.askHeap)[i] == price {
			heap.Remove(b.askHeap, i)
			return
		}
	}
}
