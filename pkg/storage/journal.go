// Package storage persists the exchange's durable state on pebble:
// the trade/event journal plus helpers the API uses to read history
// back out.
package storage

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/versemarket/versex/pkg/exchange/order"
)

// Journal records every fill and order state transition. Trades are
// keyed by (verse, outcome, timestamp, trade id) so history reads are a
// single range scan; order events carry a process-wide sequence so
// replays preserve ordering between orders.
type Journal struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// OrderEvent is one journaled state transition
type OrderEvent struct {
	OrderID   string
	State     order.State
	Timestamp int64 // unix ms
	Seq       uint64
}

func OpenJournal(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	j := &Journal{db: db}
	if err := j.restoreSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// keys: t:<verse>:<outcome>:<8-byte-ts>:<trade-id>, e:<order-id>:<8-byte-seq>
func kTrade(t *order.Trade) []byte {
	k := append([]byte("t:"), t.VerseID...)
	k = append(k, ':', t.Outcome, ':')
	k = append(k, be64(uint64(t.Timestamp))...)
	k = append(k, ':')
	return append(k, t.ID...)
}

func kOrderEvent(orderID string, seq uint64) []byte {
	k := append([]byte("e:"), orderID...)
	k = append(k, ':')
	return append(k, be64(seq)...)
}

func kTradePrefix(verseID string, outcome uint8) []byte {
	k := append([]byte("t:"), verseID...)
	return append(k, ':', outcome, ':')
}

func (j *Journal) RecordTrade(t *order.Trade) error {
	val, err := encodeGob(t)
	if err != nil {
		return errors.Wrap(err, "encode trade")
	}
	return j.db.Set(kTrade(t), val, pebble.NoSync)
}

func (j *Journal) RecordOrderEvent(orderID string, state order.State, tsMs int64) error {
	seq := j.seq.Add(1)
	val, err := encodeGob(OrderEvent{
		OrderID:   orderID,
		State:     state,
		Timestamp: tsMs,
		Seq:       seq,
	})
	if err != nil {
		return errors.Wrap(err, "encode order event")
	}
	return j.db.Set(kOrderEvent(orderID, seq), val, pebble.NoSync)
}

// Trades scans journaled fills for one book, newest last, up to limit
// (0 = all).
func (j *Journal) Trades(verseID string, outcome uint8, limit int) ([]*order.Trade, error) {
	prefix := kTradePrefix(verseID, outcome)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*order.Trade
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var t order.Trade
		if err := decodeGob(iter.Value(), &t); err != nil {
			continue
		}
		out = append(out, &t)
	}
	// reverse to newest-last
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// OrderEvents returns the journaled lifecycle of one order, oldest first
func (j *Journal) OrderEvents(orderID string) ([]OrderEvent, error) {
	prefix := append([]byte("e:"), orderID...)
	prefix = append(prefix, ':')
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []OrderEvent
	for iter.First(); iter.Valid(); iter.Next() {
		var ev OrderEvent
		if err := decodeGob(iter.Value(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// restoreSeq resumes the event sequence after a restart by scanning the
// event keyspace for the highest recorded value.
func (j *Journal) restoreSeq() error {
	prefix := []byte("e:")
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	var max uint64
	for iter.First(); iter.Valid(); iter.Next() {
		var ev OrderEvent
		if err := decodeGob(iter.Value(), &ev); err != nil {
			continue
		}
		if ev.Seq > max {
			max = ev.Seq
		}
	}
	j.seq.Store(max)
	return nil
}
