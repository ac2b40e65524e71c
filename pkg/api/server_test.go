package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versemarket/versex/pkg/exchange/order"
)

func TestParseKindCoversAllKinds(t *testing.T) {
	cases := map[string]order.Kind{
		"market": order.Market, "limit": order.Limit,
		"stop_loss": order.StopLoss, "take_profit": order.TakeProfit,
		"stop_limit": order.StopLimit, "trailing_stop": order.TrailingStop,
		"oco": order.OCO, "bracket": order.Bracket,
		"iceberg": order.Iceberg, "twap": order.TWAP, "vwap": order.VWAP,
	}
	for s, want := range cases {
		got, err := parseKind(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	got, err := parseKind("LIMIT")
	require.NoError(t, err)
	assert.Equal(t, order.Limit, got)

	_, err = parseKind("stop")
	assert.Error(t, err)
}

func TestParseTIFDefaultsToGTC(t *testing.T) {
	tif, err := parseTIF("")
	require.NoError(t, err)
	assert.Equal(t, order.GTC, tif)

	tif, err = parseTIF("ioc")
	require.NoError(t, err)
	assert.Equal(t, order.IOC, tif)

	_, err = parseTIF("GFD")
	assert.Error(t, err)
}

func TestToOrderRequest(t *testing.T) {
	req, err := toOrderRequest(SubmitOrderRequest{
		Account: "alice", VerseID: "v1", Outcome: 1,
		Side: "sell", Kind: "twap", Qty: 100,
		DurationMs: 60_000, Intervals: 4, Leverage: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, order.Sell, req.Side)
	assert.Equal(t, order.TWAP, req.Kind)
	assert.Equal(t, time.Minute, req.Duration)
	assert.Equal(t, 4, req.Intervals)

	_, err = toOrderRequest(SubmitOrderRequest{Side: "long", Kind: "limit"})
	assert.Error(t, err)
}

func TestRespondEngineErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{order.ErrInvalidParameters, 400},
		{order.ErrOrderNotFound, 404},
		{order.ErrAlreadyTerminal, 409},
		{order.ErrGroupInconsistent, 409},
		{order.ErrSelfTradeRejected, 422},
		{order.ErrInsufficientLiquidity, 422},
		{order.ErrRiskLimitExceeded, 422},
		{errors.New("internal"), 500},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		respondEngineError(w, errors.Wrap(tc.err, "context"))
		assert.Equal(t, tc.status, w.Code, tc.err.Error())

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.NotEmpty(t, body.Error)
	}
}

func TestParseOutcome(t *testing.T) {
	n, err := parseOutcome("7")
	require.NoError(t, err)
	assert.Equal(t, uint8(7), n)

	_, err = parseOutcome("300")
	assert.Error(t, err)
	_, err = parseOutcome("-1")
	assert.Error(t, err)
}
