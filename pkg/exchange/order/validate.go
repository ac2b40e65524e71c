package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/versemarket/versex/pkg/exchange/market"
)

// Request carries raw client order parameters. Field use depends on Kind;
// see the Order doc comment for the mapping.
type Request struct {
	Account string
	VerseID string
	Outcome uint8
	Side    Side
	Kind    Kind
	Qty     int64

	Price        int64
	TriggerPrice int64
	TrailAmount  int64
	TrailBps     int64
	StopPrice    int64
	TargetPrice  int64

	VisibleQty          int64
	Duration            time.Duration
	Intervals           int
	MaxParticipationBps int64

	Leverage int64
	TIF      TimeInForce
	ExpireAt int64
}

// New validates a request against its verse and constructs the Order.
// Pure and synchronous; no side effects beyond building the record.
// Fails with ErrInvalidParameters.
func New(req Request, v *market.Verse, nowMs int64) (*Order, error) {
	if err := validate(req, v, nowMs); err != nil {
		return nil, err
	}

	o := &Order{
		ID:                  uuid.NewString(),
		Account:             req.Account,
		VerseID:             req.VerseID,
		Outcome:             req.Outcome,
		Side:                req.Side,
		Kind:                req.Kind,
		Qty:                 req.Qty,
		Price:               req.Price,
		TriggerPrice:        req.TriggerPrice,
		TrailAmount:         req.TrailAmount,
		TrailBps:            req.TrailBps,
		StopPrice:           req.StopPrice,
		TargetPrice:         req.TargetPrice,
		VisibleQty:          req.VisibleQty,
		Duration:            req.Duration,
		Intervals:           req.Intervals,
		MaxParticipationBps: req.MaxParticipationBps,
		Leverage:            req.Leverage,
		TIF:                 req.TIF,
		ExpireAt:            req.ExpireAt,
		State:               StatePending,
		CreatedAt:           nowMs,
		UpdatedAt:           nowMs,
	}
	return o, nil
}

func validate(req Request, v *market.Verse, nowMs int64) error {
	if req.Account == "" {
		return errors.Wrap(ErrInvalidParameters, "account is required")
	}
	if req.VerseID == "" || req.VerseID != v.ID {
		return errors.Wrapf(ErrInvalidParameters, "verse id %q does not match catalog entry %q", req.VerseID, v.ID)
	}
	if v.Status != market.Active {
		return errors.Wrapf(ErrInvalidParameters, "verse %s is %s", v.ID, v.Status)
	}
	if req.Outcome >= v.Outcomes {
		return errors.Wrapf(ErrInvalidParameters, "outcome %d out of range for %d-outcome verse", req.Outcome, v.Outcomes)
	}
	if req.Side != Buy && req.Side != Sell {
		return errors.Wrap(ErrInvalidParameters, "side must be buy or sell")
	}
	if req.Qty <= 0 {
		return errors.Wrap(ErrInvalidParameters, "quantity must be positive")
	}
	if req.Qty%v.LotSize != 0 {
		return errors.Wrapf(ErrInvalidParameters, "quantity %d not a multiple of lot size %d", req.Qty, v.LotSize)
	}
	if v.MinOrderQty > 0 && req.Qty < v.MinOrderQty {
		return errors.Wrapf(ErrInvalidParameters, "quantity %d below minimum %d", req.Qty, v.MinOrderQty)
	}
	if v.MaxOrderQty > 0 && req.Qty > v.MaxOrderQty {
		return errors.Wrapf(ErrInvalidParameters, "quantity %d above maximum %d", req.Qty, v.MaxOrderQty)
	}
	if req.Leverage < 1 || req.Leverage > v.MaxLeverage {
		return errors.Wrapf(ErrInvalidParameters, "leverage %dx outside [1, %d] for %d-outcome verse",
			req.Leverage, v.MaxLeverage, v.Outcomes)
	}
	if req.TIF == GTD {
		if req.ExpireAt <= nowMs {
			return errors.Wrap(ErrInvalidParameters, "GTD order requires a future expiry")
		}
	} else if req.ExpireAt != 0 {
		return errors.Wrapf(ErrInvalidParameters, "expiry only valid with GTD, got %s", req.TIF)
	}

	price := func(p int64, what string) error {
		if !v.ValidPrice(p) {
			return errors.Wrapf(ErrInvalidParameters, "%s %d not a valid tick-aligned probability price", what, p)
		}
		return nil
	}

	// Per-kind parameter constraints. The switch is exhaustive over Kind.
	switch req.Kind {
	case Market:
		// no price required

	case Limit:
		return price(req.Price, "limit price")

	case StopLoss, TakeProfit:
		return price(req.TriggerPrice, "trigger price")

	case StopLimit:
		if err := price(req.TriggerPrice, "trigger price"); err != nil {
			return err
		}
		return price(req.Price, "limit price")

	case TrailingStop:
		hasAmt, hasBps := req.TrailAmount > 0, req.TrailBps > 0
		if hasAmt == hasBps {
			return errors.Wrap(ErrInvalidParameters, "trailing stop requires exactly one of trail amount or trail bps")
		}
		if hasAmt && req.TrailAmount >= market.PriceScale {
			return errors.Wrap(ErrInvalidParameters, "trail amount exceeds price range")
		}
		if hasBps && req.TrailBps >= 10_000 {
			return errors.Wrap(ErrInvalidParameters, "trail bps must be below 10000")
		}

	case OCO:
		if err := price(req.Price, "limit leg price"); err != nil {
			return err
		}
		return price(req.StopPrice, "stop leg price")

	case Bracket:
		if err := price(req.Price, "entry price"); err != nil {
			return err
		}
		if err := price(req.StopPrice, "stop price"); err != nil {
			return err
		}
		if err := price(req.TargetPrice, "target price"); err != nil {
			return err
		}
		switch req.Side {
		case Buy:
			if req.StopPrice >= req.Price {
				return errors.Wrap(ErrInvalidParameters, "bracket stop must be below entry for buys")
			}
			if req.TargetPrice <= req.Price {
				return errors.Wrap(ErrInvalidParameters, "bracket target must be above entry for buys")
			}
		case Sell:
			if req.StopPrice <= req.Price {
				return errors.Wrap(ErrInvalidParameters, "bracket stop must be above entry for sells")
			}
			if req.TargetPrice >= req.Price {
				return errors.Wrap(ErrInvalidParameters, "bracket target must be below entry for sells")
			}
		}

	case Iceberg:
		if err := price(req.Price, "limit price"); err != nil {
			return err
		}
		if req.VisibleQty <= 0 || req.VisibleQty > req.Qty {
			return errors.Wrapf(ErrInvalidParameters, "iceberg visible qty %d must be in (0, %d]", req.VisibleQty, req.Qty)
		}

	case TWAP:
		if req.Duration <= 0 || req.Intervals <= 0 {
			return errors.Wrap(ErrInvalidParameters, "TWAP requires positive duration and interval count")
		}
		if req.Price != 0 {
			return price(req.Price, "TWAP limit price")
		}

	case VWAP:
		if req.Duration <= 0 || req.Intervals <= 0 {
			return errors.Wrap(ErrInvalidParameters, "VWAP requires positive duration and interval count")
		}
		if req.MaxParticipationBps <= 0 || req.MaxParticipationBps > 10_000 {
			return errors.Wrap(ErrInvalidParameters, "VWAP max participation must be in (0, 10000] bps")
		}
		if req.Price != 0 {
			return price(req.Price, "VWAP limit price")
		}

	default:
		return errors.Wrapf(ErrInvalidParameters, "unknown order kind %d", req.Kind)
	}

	return nil
}
