package book

import (
	"testing"

	"clobcore/internal/prng"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBook(t *testing.T, symbol string) *OrderBook {
	t.Helper()
	return New(Config{
		Symbol:   symbol,
		TickSize: 1,
		LotSize:  1,
		Source:   prng.New(1),
		Logger:   zap.NewNop(),
	})
}

func price(p int64) *int64 { return &p }

func limitSubmit(symbol string, side Side, qty, px int64, userID string) SubmitRequest {
	return SubmitRequest{Symbol: symbol, UserID: userID, Side: side, Kind: Limit, Quantity: qty, Price: price(px)}
}

func marketSubmit(symbol string, side Side, qty int64, userID string) SubmitRequest {
	return SubmitRequest{Symbol: symbol, UserID: userID, Side: side, Kind: Market, Quantity: qty}
}

// scenario 1: two resting sells matched by a market IOC buy of 6.
func TestScenario_MarketIOCSweepsTwoMakers(t *testing.T) {
	b := newTestBook(t, "ETH-USD")

	ra := b.SubmitOrder(limitSubmit("ETH-USD", Sell, 5, 101, "maker-a"), 1)
	require.Equal(t, StatusNew, ra.Order.Status)
	rb := b.SubmitOrder(limitSubmit("ETH-USD", Sell, 5, 101, "maker-b"), 2)
	require.Equal(t, StatusNew, rb.Order.Status)

	taker := b.SubmitOrder(marketSubmit("ETH-USD", Buy, 6, "taker"), 3)

	require.Len(t, taker.Trades, 2)
	assert.Equal(t, ra.Order.ID, taker.Trades[0].MakerOrderID)
	assert.Equal(t, int64(5), taker.Trades[0].Quantity)
	assert.Equal(t, int64(101), taker.Trades[0].Price)
	assert.Equal(t, rb.Order.ID, taker.Trades[1].MakerOrderID)
	assert.Equal(t, int64(1), taker.Trades[1].Quantity)
	assert.Equal(t, int64(101), taker.Trades[1].Price)
	assert.Equal(t, StatusFilled, taker.Order.Status)

	_, asks := b.Depth(0)
	require.Len(t, asks, 1)
	assert.Equal(t, int64(101), asks[0].Price)
	assert.Equal(t, int64(4), asks[0].Quantity)
}

// scenario 2: limit IOC partial fill against a larger resting sell.
func TestScenario_LimitIOCPartialFill(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	b.SubmitOrder(limitSubmit("ETH-USD", Sell, 10, 120, "maker"), 1)

	tif := IOC
	req := limitSubmit("ETH-USD", Buy, 3, 130, "taker")
	req.TimeInForce = &tif
	res := b.SubmitOrder(req, 2)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(3), res.Trades[0].Quantity)
	assert.Equal(t, int64(120), res.Trades[0].Price)
	assert.Equal(t, StatusFilled, res.Order.Status)

	_, asks := b.Depth(0)
	require.Len(t, asks, 1)
	assert.Equal(t, int64(7), asks[0].Quantity)
}

// scenario 3: FOK rejected when visible liquidity is insufficient.
func TestScenario_FOKRejectedOnInsufficientLiquidity(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	b.SubmitOrder(limitSubmit("ETH-USD", Sell, 4, 100, "maker"), 1)

	beforeBids, beforeAsks := b.Depth(0)

	tif := FOK
	req := limitSubmit("ETH-USD", Buy, 5, 100, "taker")
	req.TimeInForce = &tif
	res := b.SubmitOrder(req, 2)

	assert.Empty(t, res.Trades)
	assert.Equal(t, StatusRejected, res.Order.Status)
	assert.Equal(t, ReasonInsufficientLiquidityForFOK, res.Order.Reason)

	afterBids, afterAsks := b.Depth(0)
	assert.Equal(t, beforeBids, afterBids)
	assert.Equal(t, beforeAsks, afterAsks)
}

// scenario 4: iceberg replenishment across two trades.
func TestScenario_IcebergReplenishment(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	req := limitSubmit("ETH-USD", Sell, 10, 100, "maker")
	display := int64(3)
	req.IcebergDisplayQuantity = &display
	makerRes := b.SubmitOrder(req, 1)
	require.Equal(t, int64(3), makerRes.Order.DisplayedRemainingQuantity)
	require.Equal(t, int64(7), makerRes.Order.ReserveRemainingQuantity)

	res := b.SubmitOrder(marketSubmit("ETH-USD", Buy, 4, "taker"), 2)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, int64(3), res.Trades[0].Quantity)
	assert.Equal(t, int64(1), res.Trades[1].Quantity)
	assert.Equal(t, StatusFilled, res.Order.Status)

	_, asks := b.Depth(0)
	require.Len(t, asks, 1)
	assert.Equal(t, int64(2), asks[0].Quantity)

	maker := b.ordersByID[makerRes.Order.ID].order
	assert.Equal(t, int64(2), maker.DisplayedRemainingQuantity)
	assert.Equal(t, int64(4), maker.ReserveRemainingQuantity)
	assert.Equal(t, int64(6), maker.RemainingQuantity)
	assert.Equal(t, StatusPartiallyFilled, maker.Status)
}

// scenario 5: same-user STP cancel_oldest leaves the maker canceled and the
// taker expired with no trades.
func TestScenario_STPCancelOldest(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	stp := STPCancelOldest
	makerReq := limitSubmit("ETH-USD", Sell, 5, 101, "same-user")
	makerReq.STP = &stp
	makerRes := b.SubmitOrder(makerReq, 1)

	tif := IOC
	takerReq := limitSubmit("ETH-USD", Buy, 5, 101, "same-user")
	takerReq.TimeInForce = &tif
	takerReq.STP = &stp
	takerRes := b.SubmitOrder(takerReq, 2)

	assert.Empty(t, takerRes.Trades)
	assert.Equal(t, StatusExpired, takerRes.Order.Status)
	assert.Equal(t, ReasonTimeInForceUnfilledRemainder, takerRes.Order.Reason)

	maker := makerRes.Order
	assert.Equal(t, StatusCanceled, maker.Status)
	assert.Equal(t, ReasonSTPCancelOldest, maker.Reason)

	_, asks := b.Depth(0)
	assert.Empty(t, asks)
}

func TestScenario_STPCancelNewestStopsImmediately(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	stp := STPCancelNewest
	makerReq := limitSubmit("ETH-USD", Sell, 5, 101, "same-user")
	b.SubmitOrder(makerReq, 1)

	tif := IOC
	takerReq := limitSubmit("ETH-USD", Buy, 5, 101, "same-user")
	takerReq.TimeInForce = &tif
	takerReq.STP = &stp
	takerRes := b.SubmitOrder(takerReq, 2)

	assert.Empty(t, takerRes.Trades)
	assert.Equal(t, StatusCanceled, takerRes.Order.Status)
	assert.Equal(t, ReasonSTPCancelNewest, takerRes.Order.Reason)

	_, asks := b.Depth(0)
	require.Len(t, asks, 1)
	assert.Equal(t, int64(5), asks[0].Quantity)
}

func TestScenario_STPCancelBothExcludesMakerEventFromReturnedEvents(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	stp := STPCancelBoth
	makerReq := limitSubmit("ETH-USD", Sell, 5, 101, "same-user")
	makerRes := b.SubmitOrder(makerReq, 1)

	tif := IOC
	takerReq := limitSubmit("ETH-USD", Buy, 5, 101, "same-user")
	takerReq.TimeInForce = &tif
	takerReq.STP = &stp
	takerRes := b.SubmitOrder(takerReq, 2)

	assert.Equal(t, StatusCanceled, takerRes.Order.Status)
	assert.Equal(t, ReasonSTPCancelBoth, takerRes.Order.Reason)

	maker := makerRes.Order
	assert.Equal(t, StatusCanceled, maker.Status)
	assert.Equal(t, ReasonSTPCancelBoth, maker.Reason)

	// Events[] carries only the taker's own event; AllEvents carries both.
	require.Len(t, takerRes.Events, 1)
	assert.Equal(t, takerRes.Order.ID, takerRes.Events[0].OrderID)
	require.Len(t, takerRes.AllEvents, 2)
}

func TestCancelRoundTrip(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	beforeBids, beforeAsks := b.Depth(0)

	res := b.SubmitOrder(limitSubmit("ETH-USD", Buy, 5, 100, "trader"), 1)
	require.Equal(t, StatusNew, res.Order.Status)

	cancel := b.CancelOrder(res.Order.ID, nil, 2)
	require.True(t, cancel.Canceled)
	assert.Equal(t, ReasonCanceledByUser, cancel.Reason)

	afterBids, afterAsks := b.Depth(0)
	assert.Equal(t, beforeBids, afterBids)
	assert.Equal(t, beforeAsks, afterAsks)
	assert.Equal(t, 0, b.ActiveOrderCount())
}

func TestCancelUnknownOrder(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	cancel := b.CancelOrder("does-not-exist", nil, 1)
	assert.False(t, cancel.Canceled)
	assert.Equal(t, ReasonOrderNotFound, cancel.Reason)
}

func TestCancelUserMismatch(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	res := b.SubmitOrder(limitSubmit("ETH-USD", Buy, 5, 100, "trader"), 1)

	other := "someone-else"
	cancel := b.CancelOrder(res.Order.ID, &other, 2)
	assert.False(t, cancel.Canceled)
	assert.Equal(t, ReasonUserMismatch, cancel.Reason)
}

// zero-fill purity: a rejected submission leaves depth and active order
// count unchanged.
func TestZeroFillPurityOnRejection(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	b.SubmitOrder(limitSubmit("ETH-USD", Buy, 5, 100, "trader"), 1)
	beforeBids, beforeAsks := b.Depth(0)
	beforeCount := b.ActiveOrderCount()

	res := b.SubmitOrder(limitSubmit("OTHER-USD", Buy, 5, 100, "trader"), 2)
	assert.Equal(t, StatusRejected, res.Order.Status)
	assert.Equal(t, ReasonSymbolMismatch, res.Order.Reason)

	afterBids, afterAsks := b.Depth(0)
	assert.Equal(t, beforeBids, afterBids)
	assert.Equal(t, beforeAsks, afterAsks)
	assert.Equal(t, beforeCount, b.ActiveOrderCount())
}

func TestValidationOrderedChecks(t *testing.T) {
	b := newTestBook(t, "ETH-USD")

	cases := []struct {
		name   string
		req    SubmitRequest
		reason Reason
	}{
		{"symbol mismatch", limitSubmit("WRONG", Buy, 5, 100, "u"), ReasonSymbolMismatch},
		{"missing user", limitSubmit("ETH-USD", Buy, 5, 100, ""), ReasonMissingUserID},
		{"invalid quantity", limitSubmit("ETH-USD", Buy, 0, 100, "u"), ReasonInvalidQuantity},
		{"invalid limit price", SubmitRequest{Symbol: "ETH-USD", UserID: "u", Side: Buy, Kind: Limit, Quantity: 5}, ReasonInvalidLimitPrice},
		{"market with price", SubmitRequest{Symbol: "ETH-USD", UserID: "u", Side: Buy, Kind: Market, Quantity: 5, Price: price(100)}, ReasonMarketOrderCannotHavePrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := b.SubmitOrder(tc.req, 1)
			assert.Equal(t, StatusRejected, res.Order.Status)
			assert.Equal(t, tc.reason, res.Order.Reason)
		})
	}
}

func TestQuantityMustBeLotMultiple(t *testing.T) {
	b := New(Config{Symbol: "ETH-USD", TickSize: 1, LotSize: 5, Source: prng.New(1), Logger: zap.NewNop()})
	res := b.SubmitOrder(limitSubmit("ETH-USD", Buy, 7, 100, "u"), 1)
	assert.Equal(t, StatusRejected, res.Order.Status)
	assert.Equal(t, ReasonQuantityNotLotMultiple, res.Order.Reason)
}

func TestEmptyBookMarketIOCExpiresImmediately(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	res := b.SubmitOrder(marketSubmit("ETH-USD", Buy, 5, "taker"), 1)
	assert.Empty(t, res.Trades)
	assert.Equal(t, StatusExpired, res.Order.Status)
	assert.Equal(t, ReasonMarketOrderUnfilledRemainder, res.Order.Reason)
}

// sequence discipline: every event from an earlier submission has a strictly
// lower sequence than every event from a later one.
func TestSequenceStrictlyIncreasesAcrossSubmissions(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	first := b.SubmitOrder(limitSubmit("ETH-USD", Sell, 5, 100, "maker"), 1)
	second := b.SubmitOrder(marketSubmit("ETH-USD", Buy, 5, "taker"), 2)

	maxFirst := uint64(0)
	for _, e := range first.AllEvents {
		if e.Sequence > maxFirst {
			maxFirst = e.Sequence
		}
	}
	for _, tr := range first.Trades {
		if tr.Sequence > maxFirst {
			maxFirst = tr.Sequence
		}
	}
	minSecond := second.AllEvents[0].Sequence
	for _, e := range second.AllEvents {
		if e.Sequence < minSecond {
			minSecond = e.Sequence
		}
	}
	for _, tr := range second.Trades {
		if tr.Sequence < minSecond {
			minSecond = tr.Sequence
		}
	}
	assert.Less(t, maxFirst, minSecond)
}

// invariant: level.total_visible_quantity = sum of displayed_remaining over
// its resting orders.
func TestLevelVisibleQuantityMatchesQueueSum(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	b.SubmitOrder(limitSubmit("ETH-USD", Sell, 3, 100, "a"), 1)
	b.SubmitOrder(limitSubmit("ETH-USD", Sell, 4, 100, "b"), 2)

	lvl := b.asks.Find(100)
	require.NotNil(t, lvl)
	assert.Equal(t, int64(7), lvl.TotalVisibleQuantity)
	assert.Equal(t, 2, lvl.OrderCount)
}

func TestMinQuantityValidation(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	mq := int64(10)
	req := limitSubmit("ETH-USD", Buy, 5, 100, "u")
	req.MinQuantity = &mq
	res := b.SubmitOrder(req, 1)
	assert.Equal(t, StatusRejected, res.Order.Status)
	assert.Equal(t, ReasonInvalidMinQuantity, res.Order.Reason)
}

func TestIcebergRequiresLimitOrder(t *testing.T) {
	b := newTestBook(t, "ETH-USD")
	disp := int64(1)
	req := marketSubmit("ETH-USD", Buy, 5, "u")
	req.IcebergDisplayQuantity = &disp
	res := b.SubmitOrder(req, 1)
	assert.Equal(t, StatusRejected, res.Order.Status)
	assert.Equal(t, ReasonIcebergRequiresLimitOrder, res.Order.Reason)
}
