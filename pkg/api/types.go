package api

// Wire types for the REST endpoints and websocket feed

// VerseInfo is a verse's static configuration
type VerseInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Outcomes    uint8  `json:"outcomes"`
	TickSize    int64  `json:"tickSize"`
	LotSize     int64  `json:"lotSize"`
	MinOrderQty int64  `json:"minOrderQty"`
	MaxOrderQty int64  `json:"maxOrderQty"`
	MaxLeverage int64  `json:"maxLeverage"`
	MakerFeeBps int64  `json:"makerFeeBps"`
	TakerFeeBps int64  `json:"takerFeeBps"`
}

// PriceLevel is a [price, size] tuple in probability ticks / units
type PriceLevel struct {
	Price int64 `json:"price"`
	Size  int64 `json:"size"`
}

// OrderbookSnapshot is the aggregated book for one (verse, outcome)
type OrderbookSnapshot struct {
	VerseID   string       `json:"verseId"`
	Outcome   uint8        `json:"outcome"`
	Bids      []PriceLevel `json:"bids"` // high to low
	Asks      []PriceLevel `json:"asks"` // low to high
	LastPrice int64        `json:"lastPrice"`
	Sequence  uint64       `json:"sequence"`
	Timestamp int64        `json:"timestamp"` // unix ms
}

// TradeInfo is one executed fill
type TradeInfo struct {
	ID        string `json:"id"`
	VerseID   string `json:"verseId"`
	Outcome   uint8  `json:"outcome"`
	Price     int64  `json:"price"`
	Size      int64  `json:"size"`
	TakerSide string `json:"takerSide"`
	Timestamp int64  `json:"timestamp"`
}

// SubmitOrderRequest is the payload for POST /api/v1/orders.
// Field use depends on kind, mirroring the order parameters.
type SubmitOrderRequest struct {
	Account string `json:"account"`
	VerseID string `json:"verseId"`
	Outcome uint8  `json:"outcome"`
	Side    string `json:"side"` // "buy" | "sell"
	Kind    string `json:"kind"` // "market", "limit", "stop_loss", ...
	Qty     int64  `json:"qty"`

	Price        int64 `json:"price,omitempty"`
	TriggerPrice int64 `json:"triggerPrice,omitempty"`
	TrailAmount  int64 `json:"trailAmount,omitempty"`
	TrailBps     int64 `json:"trailBps,omitempty"`
	StopPrice    int64 `json:"stopPrice,omitempty"`
	TargetPrice  int64 `json:"targetPrice,omitempty"`

	VisibleQty          int64 `json:"visibleQty,omitempty"`
	DurationMs          int64 `json:"durationMs,omitempty"`
	Intervals           int   `json:"intervals,omitempty"`
	MaxParticipationBps int64 `json:"maxParticipationBps,omitempty"`

	Leverage int64  `json:"leverage"`
	TIF      string `json:"tif,omitempty"` // "GTC" (default), "IOC", "FOK", "GTD"
	ExpireAt int64  `json:"expireAt,omitempty"`
}

// SubmitOrderResponse echoes the accepted order's post-match state
type SubmitOrderResponse struct {
	OrderID      string `json:"orderId"`
	State        string `json:"state"`
	Filled       int64  `json:"filled"`
	Remaining    int64  `json:"remaining"`
	AvgFillPrice int64  `json:"avgFillPrice"`
	Fees         int64  `json:"fees"`
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel
type CancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

// OrderInfo is an order's current state
type OrderInfo struct {
	ID           string `json:"id"`
	Account      string `json:"account"`
	VerseID      string `json:"verseId"`
	Outcome      uint8  `json:"outcome"`
	Side         string `json:"side"`
	Kind         string `json:"kind"`
	TIF          string `json:"tif"`
	Price        int64  `json:"price"`
	Qty          int64  `json:"qty"`
	Filled       int64  `json:"filled"`
	Remaining    int64  `json:"remaining"`
	State        string `json:"state"`
	RejectReason string `json:"rejectReason,omitempty"`
	AvgFillPrice int64  `json:"avgFillPrice"`
	Fees         int64  `json:"fees"`
	GroupID      string `json:"groupId,omitempty"`
	ParentID     string `json:"parentId,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// OrderEventInfo is one journaled lifecycle transition
type OrderEventInfo struct {
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
	Seq       uint64 `json:"seq"`
}

// PositionInfo is one open position
type PositionInfo struct {
	VerseID    string `json:"verseId"`
	Outcome    uint8  `json:"outcome"`
	Size       int64  `json:"size"` // +ve long, -ve short
	EntryPrice int64  `json:"entryPrice"`
	Leverage   int64  `json:"leverage"`
	Notional   int64  `json:"notional"`
}

// AccountInfo is account-level aggregates
type AccountInfo struct {
	ID          string `json:"id"`
	RealizedPnL int64  `json:"realizedPnl"`
	FeesPaid    int64  `json:"feesPaid"`
	FeesEarned  int64  `json:"feesEarned"`
	Volume      int64  `json:"volume"`
	TradeCount  int64  `json:"tradeCount"`
	Exposure    int64  `json:"exposure"`
}

// PriceTickRequest is the payload for POST /api/v1/ticks: one mark price
// observation for a (verse, outcome) book.
type PriceTickRequest struct {
	VerseID string `json:"verseId"`
	Outcome uint8  `json:"outcome"`
	Price   int64  `json:"price"`
	Volume  int64  `json:"volume,omitempty"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest subscribes a websocket client to channels, e.g.
// ["orderbook:verse-1:0", "trades:verse-1:0", "orders"]
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is broadcast on channel trades:<verse>:<outcome>
type TradeUpdate struct {
	Type      string `json:"type"` // "trade"
	VerseID   string `json:"verseId"`
	Outcome   uint8  `json:"outcome"`
	Price     int64  `json:"price"`
	Size      int64  `json:"size"`
	TakerSide string `json:"takerSide"`
	Timestamp int64  `json:"timestamp"`
}

// OrderUpdate is broadcast on channel orders for every state transition
type OrderUpdate struct {
	Type      string `json:"type"` // "order"
	OrderID   string `json:"orderId"`
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
}
