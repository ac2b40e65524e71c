package order

import (
	"time"
)

// Side of an order relative to the outcome: Buy takes the outcome long.
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the counter side
func (s Side) Opposite() Side { return -s }

// Kind is the closed set of supported order types. Dispatch on Kind is an
// exhaustive switch at validation and at scheduler-dispatch time.
type Kind int8

const (
	Market Kind = iota
	Limit
	StopLoss
	TakeProfit
	StopLimit
	TrailingStop
	OCO
	Bracket
	Iceberg
	TWAP
	VWAP
)

func (k Kind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case StopLoss:
		return "stop_loss"
	case TakeProfit:
		return "take_profit"
	case StopLimit:
		return "stop_limit"
	case TrailingStop:
		return "trailing_stop"
	case OCO:
		return "oco"
	case Bracket:
		return "bracket"
	case Iceberg:
		return "iceberg"
	case TWAP:
		return "twap"
	case VWAP:
		return "vwap"
	default:
		return "unknown"
	}
}

// Conditional reports whether the kind rests with the trigger monitor
// rather than the book.
func (k Kind) Conditional() bool {
	switch k {
	case StopLoss, TakeProfit, StopLimit, TrailingStop:
		return true
	default:
		return false
	}
}

// Algorithmic reports whether the kind is driven by the execution scheduler.
func (k Kind) Algorithmic() bool {
	switch k {
	case Iceberg, TWAP, VWAP:
		return true
	default:
		return false
	}
}

// TimeInForce controls how long an order stays working
type TimeInForce int8

const (
	GTC TimeInForce = iota // good till cancelled
	IOC                    // immediate or cancel
	FOK                    // fill or kill
	GTD                    // good till date (ExpireAt)
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTD:
		return "GTD"
	default:
		return "unknown"
	}
}

// State is the order lifecycle state
type State int8

const (
	StatePending         State = iota // accepted, waiting on trigger/scheduler
	StateOpen                         // resting in the book
	StatePartiallyFilled              // resting with fills
	StateTriggered                    // condition fired, promoted to matching
	StateFilled                       // terminal
	StateCancelled                    // terminal
	StateRejected                     // terminal
	StateExpired                      // terminal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateOpen:
		return "Open"
	case StatePartiallyFilled:
		return "PartiallyFilled"
	case StateTriggered:
		return "Triggered"
	case StateFilled:
		return "Filled"
	case StateCancelled:
		return "Cancelled"
	case StateRejected:
		return "Rejected"
	case StateExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state admits no further mutation
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected, StateExpired:
		return true
	default:
		return false
	}
}

// Order is the engine's unit of intent. Prices are integer probability
// ticks (market.PriceScale = 1.0), quantities are integer units.
//
// Mutated only by the matching core (fills), the trigger monitor
// (promotion), or explicit cancellation. Once State is terminal no field
// may change.
type Order struct {
	ID      string
	Account string
	VerseID string
	Outcome uint8
	Side    Side
	Kind    Kind
	Qty     int64 // requested quantity
	Filled  int64 // filled so far; invariant Filled <= Qty

	// Price parameters, by kind:
	// Limit/Iceberg: Price is the limit.
	// StopLoss/TakeProfit: TriggerPrice.
	// StopLimit: TriggerPrice fires, Price is the promoted limit.
	// TrailingStop: TrailAmount (ticks) or TrailBps, never both.
	// OCO: Price is the limit leg, StopPrice the stop leg.
	// Bracket: Price is entry, StopPrice/TargetPrice the exit legs.
	Price        int64
	TriggerPrice int64
	TrailAmount  int64
	TrailBps     int64
	StopPrice    int64
	TargetPrice  int64

	// Execution strategy parameters
	VisibleQty         int64         // iceberg visible slice cap
	Duration           time.Duration // TWAP/VWAP horizon
	Intervals          int           // TWAP/VWAP slice count
	MaxParticipationBps int64        // VWAP cap per interval, (0, 10000]

	Leverage int64
	TIF      TimeInForce
	ExpireAt int64 // unix ms, GTD only

	// GroupID links OCO/bracket members; ParentID links algo child slices.
	GroupID  string
	ParentID string
	SliceSeq int

	State        State
	RejectReason string

	AvgFillPrice int64 // quantity-weighted, in ticks
	Fees         int64 // accrued, in quote cents

	CreatedAt int64 // unix ms
	UpdatedAt int64
}

// Remaining returns the unfilled quantity
func (o *Order) Remaining() int64 { return o.Qty - o.Filled }

// Expired reports whether a GTD order is past its deadline
func (o *Order) Expired(nowMs int64) bool {
	return o.TIF == GTD && o.ExpireAt > 0 && nowMs >= o.ExpireAt
}

// ApplyFill records a fill of qty at price and moves state accordingly.
// Keeps AvgFillPrice quantity-weighted and Filled monotonic.
func (o *Order) ApplyFill(qty, price, fee, nowMs int64) {
	if qty <= 0 || o.State.Terminal() {
		return
	}
	if qty > o.Remaining() {
		qty = o.Remaining()
	}
	prevNotional := o.AvgFillPrice * o.Filled
	o.Filled += qty
	o.AvgFillPrice = (prevNotional + price*qty) / o.Filled
	o.Fees += fee
	o.UpdatedAt = nowMs
	if o.Remaining() == 0 {
		o.State = StateFilled
	} else {
		o.State = StatePartiallyFilled
	}
}
