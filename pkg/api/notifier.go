package api

import (
	"fmt"

	"github.com/versemarket/versex/pkg/exchange/engine"
	"github.com/versemarket/versex/pkg/exchange/order"
)

// WSNotifier adapts the hub to the engine's notification contract:
// order transitions go to the "orders" channel, fills to the per-book
// trades channel.
type WSNotifier struct {
	hub *Hub
}

func NewWSNotifier(hub *Hub) *WSNotifier { return &WSNotifier{hub: hub} }

func (n *WSNotifier) OrderStateChanged(sc engine.StateChange) {
	n.hub.BroadcastToChannel("orders", OrderUpdate{
		Type:      "order",
		OrderID:   sc.OrderID,
		State:     sc.State.String(),
		Timestamp: sc.At,
	})
}

func (n *WSNotifier) TradeExecuted(t *order.Trade) {
	n.hub.BroadcastToChannel(tradesChannel(t.VerseID, t.Outcome), TradeUpdate{
		Type:      "trade",
		VerseID:   t.VerseID,
		Outcome:   t.Outcome,
		Price:     t.Price,
		Size:      t.Qty,
		TakerSide: t.TakerSide.String(),
		Timestamp: t.Timestamp,
	})
}

func tradesChannel(verseID string, outcome uint8) string {
	return fmt.Sprintf("trades:%s:%d", verseID, outcome)
}

var _ engine.Notifier = (*WSNotifier)(nil)
