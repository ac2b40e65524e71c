// Package api is the HTTP surface: REST order entry and queries over
// gorilla/mux plus a websocket feed for books, trades and order states.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/versemarket/versex/pkg/exchange/account"
	"github.com/versemarket/versex/pkg/exchange/book"
	"github.com/versemarket/versex/pkg/exchange/engine"
	"github.com/versemarket/versex/pkg/exchange/market"
	"github.com/versemarket/versex/pkg/exchange/order"
	"github.com/versemarket/versex/pkg/storage"
)

// Server handles REST and websocket connections
type Server struct {
	log      *zap.Logger
	router   *mux.Router
	hub      *Hub
	engine   *engine.Engine
	verses   *market.Registry
	accounts *account.Manager
	journal  *storage.Journal // nil when journaling is off

	allowOrigins []string
}

func NewServer(log *zap.Logger, eng *engine.Engine, verses *market.Registry,
	accounts *account.Manager, journal *storage.Journal, allowOrigins []string) *Server {

	s := &Server{
		log:          log.Named("api"),
		router:       mux.NewRouter(),
		hub:          NewHub(log),
		engine:       eng,
		verses:       verses,
		accounts:     accounts,
		journal:      journal,
		allowOrigins: allowOrigins,
	}
	s.setupRoutes()
	return s
}

// Hub exposes the websocket hub so the notifier can be wired before the
// engine starts producing events.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/verses", s.handleListVerses).Methods("GET")
	api.HandleFunc("/verses/{id}", s.handleGetVerse).Methods("GET")
	api.HandleFunc("/verses/{id}/outcomes/{outcome}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/verses/{id}/outcomes/{outcome}/trades", s.handleGetTrades).Methods("GET")

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/events", s.handleGetOrderEvents).Methods("GET")

	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/positions", s.handleGetPositions).Methods("GET")

	api.HandleFunc("/ticks", s.handlePriceTick).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the websocket hub and serves HTTP until the listener fails
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Info("server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleListVerses(w http.ResponseWriter, r *http.Request) {
	verses := s.verses.List()
	out := make([]VerseInfo, len(verses))
	for i, v := range verses {
		out[i] = verseInfo(v)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetVerse(w http.ResponseWriter, r *http.Request) {
	v, err := s.verses.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "verse not found", err.Error())
		return
	}
	respondJSON(w, verseInfo(v))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	outcome, err := parseOutcome(vars["outcome"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid outcome", err.Error())
		return
	}

	snap, err := s.engine.BookSnapshot(vars["id"], outcome)
	if err != nil {
		respondError(w, http.StatusNotFound, "orderbook not found", err.Error())
		return
	}

	respondJSON(w, OrderbookSnapshot{
		VerseID:   snap.VerseID,
		Outcome:   snap.Outcome,
		Bids:      priceLevels(snap.Bids),
		Asks:      priceLevels(snap.Asks),
		LastPrice: snap.LastPrice,
		Sequence:  snap.Sequence,
		Timestamp: snap.At,
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	outcome, err := parseOutcome(vars["outcome"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid outcome", err.Error())
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		limit, _ = strconv.Atoi(q)
	}

	var trades []*order.Trade
	if s.journal != nil {
		trades, err = s.journal.Trades(vars["id"], outcome, limit)
	} else {
		trades, err = s.engine.RecentTrades(vars["id"], outcome, limit)
	}
	if err != nil {
		respondError(w, http.StatusNotFound, "trades not found", err.Error())
		return
	}

	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = TradeInfo{
			ID:        t.ID,
			VerseID:   t.VerseID,
			Outcome:   t.Outcome,
			Price:     t.Price,
			Size:      t.Qty,
			TakerSide: t.TakerSide.String(),
			Timestamp: t.Timestamp,
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	oreq, err := toOrderRequest(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	o, err := s.engine.Submit(oreq)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.log.Info("order submitted",
		zap.String("order_id", o.ID),
		zap.String("verse", o.VerseID),
		zap.String("kind", o.Kind.String()),
		zap.String("state", o.State.String()))

	respondJSON(w, SubmitOrderResponse{
		OrderID:      o.ID,
		State:        o.State.String(),
		Filled:       o.Filled,
		Remaining:    o.Remaining(),
		AvgFillPrice: o.AvgFillPrice,
		Fees:         o.Fees,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return
	}

	if err := s.engine.Cancel(req.OrderID); err != nil {
		respondEngineError(w, err)
		return
	}

	s.log.Info("order cancelled", zap.String("order_id", req.OrderID))
	respondJSON(w, map[string]string{"status": "cancelled", "orderId": req.OrderID})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.Order(mux.Vars(r)["id"])
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, orderInfo(&o))
}

func (s *Server) handleGetOrderEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		respondError(w, http.StatusNotFound, "journal disabled", "")
		return
	}
	events, err := s.journal.OrderEvents(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal read failed", err.Error())
		return
	}
	out := make([]OrderEventInfo, len(events))
	for i, ev := range events {
		out[i] = OrderEventInfo{State: ev.State.String(), Timestamp: ev.Timestamp, Seq: ev.Seq}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	acc := s.accounts.Get(id)
	respondJSON(w, AccountInfo{
		ID:          acc.ID,
		RealizedPnL: acc.RealizedPnL,
		FeesPaid:    acc.FeesPaid,
		FeesEarned:  acc.FeesEarned,
		Volume:      acc.Volume,
		TradeCount:  acc.TradeCount,
		Exposure:    s.accounts.Exposure(id),
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.accounts.Positions(mux.Vars(r)["id"])
	out := make([]PositionInfo, 0, len(positions))
	for _, p := range positions {
		if p.Size == 0 {
			continue
		}
		out = append(out, PositionInfo{
			VerseID:    p.VerseID,
			Outcome:    p.Outcome,
			Size:       p.Size,
			EntryPrice: p.EntryPrice,
			Leverage:   p.Leverage,
			Notional:   p.Notional(),
		})
	}
	respondJSON(w, out)
}

func (s *Server) handlePriceTick(w http.ResponseWriter, r *http.Request) {
	var req PriceTickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.engine.OnPriceTick(req.VerseID, req.Outcome, req.Price, req.Volume); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func verseInfo(v *market.Verse) VerseInfo {
	return VerseInfo{
		ID:          v.ID,
		Title:       v.Title,
		Status:      v.Status.String(),
		Outcomes:    v.Outcomes,
		TickSize:    v.TickSize,
		LotSize:     v.LotSize,
		MinOrderQty: v.MinOrderQty,
		MaxOrderQty: v.MaxOrderQty,
		MaxLeverage: v.MaxLeverage,
		MakerFeeBps: v.MakerFeeBps,
		TakerFeeBps: v.TakerFeeBps,
	}
}

func orderInfo(o *order.Order) OrderInfo {
	return OrderInfo{
		ID:           o.ID,
		Account:      o.Account,
		VerseID:      o.VerseID,
		Outcome:      o.Outcome,
		Side:         o.Side.String(),
		Kind:         o.Kind.String(),
		TIF:          o.TIF.String(),
		Price:        o.Price,
		Qty:          o.Qty,
		Filled:       o.Filled,
		Remaining:    o.Remaining(),
		State:        o.State.String(),
		RejectReason: o.RejectReason,
		AvgFillPrice: o.AvgFillPrice,
		Fees:         o.Fees,
		GroupID:      o.GroupID,
		ParentID:     o.ParentID,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func priceLevels(levels []book.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price, Size: l.Qty}
	}
	return out
}

func parseOutcome(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Wrap(err, "outcome must be 0-255")
	}
	return uint8(n), nil
}

func toOrderRequest(req SubmitOrderRequest) (order.Request, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return order.Request{}, err
	}
	kind, err := parseKind(req.Kind)
	if err != nil {
		return order.Request{}, err
	}
	tif, err := parseTIF(req.TIF)
	if err != nil {
		return order.Request{}, err
	}

	return order.Request{
		Account:             req.Account,
		VerseID:             req.VerseID,
		Outcome:             req.Outcome,
		Side:                side,
		Kind:                kind,
		Qty:                 req.Qty,
		Price:               req.Price,
		TriggerPrice:        req.TriggerPrice,
		TrailAmount:         req.TrailAmount,
		TrailBps:            req.TrailBps,
		StopPrice:           req.StopPrice,
		TargetPrice:         req.TargetPrice,
		VisibleQty:          req.VisibleQty,
		Duration:            time.Duration(req.DurationMs) * time.Millisecond,
		Intervals:           req.Intervals,
		MaxParticipationBps: req.MaxParticipationBps,
		Leverage:            req.Leverage,
		TIF:                 tif,
		ExpireAt:            req.ExpireAt,
	}, nil
}

func parseSide(s string) (order.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return order.Buy, nil
	case "sell":
		return order.Sell, nil
	default:
		return 0, errors.Errorf("unknown side %q", s)
	}
}

func parseKind(s string) (order.Kind, error) {
	switch strings.ToLower(s) {
	case "market":
		return order.Market, nil
	case "limit":
		return order.Limit, nil
	case "stop_loss":
		return order.StopLoss, nil
	case "take_profit":
		return order.TakeProfit, nil
	case "stop_limit":
		return order.StopLimit, nil
	case "trailing_stop":
		return order.TrailingStop, nil
	case "oco":
		return order.OCO, nil
	case "bracket":
		return order.Bracket, nil
	case "iceberg":
		return order.Iceberg, nil
	case "twap":
		return order.TWAP, nil
	case "vwap":
		return order.VWAP, nil
	default:
		return 0, errors.Errorf("unknown order kind %q", s)
	}
}

func parseTIF(s string) (order.TimeInForce, error) {
	switch strings.ToUpper(s) {
	case "", "GTC":
		return order.GTC, nil
	case "IOC":
		return order.IOC, nil
	case "FOK":
		return order.FOK, nil
	case "GTD":
		return order.GTD, nil
	default:
		return 0, errors.Errorf("unknown time in force %q", s)
	}
}

// respondEngineError maps the error taxonomy onto HTTP statuses
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, order.ErrInvalidParameters):
		status = http.StatusBadRequest
	case errors.Is(err, order.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, order.ErrAlreadyTerminal),
		errors.Is(err, order.ErrGroupInconsistent):
		status = http.StatusConflict
	case errors.Is(err, order.ErrSelfTradeRejected),
		errors.Is(err, order.ErrInsufficientLiquidity),
		errors.Is(err, order.ErrRiskLimitExceeded):
		status = http.StatusUnprocessableEntity
	}
	respondError(w, status, errors.Cause(err).Error(), err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}
