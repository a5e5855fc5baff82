package book

// Reason is one of the stable reason strings from spec.md §6. These
// travel in order events and results; they are data, not Go errors —
// a rejected or expired order is a valid outcome, not a failure of the
// call that produced it.
type Reason string

const (
	ReasonNone Reason = ""

	// Validation failures (spec.md §4.3), checked in this order; the
	// first one that matches wins.
	ReasonSymbolMismatch            Reason = "symbol_mismatch"
	ReasonMissingUserID             Reason = "missing_user_id"
	ReasonInvalidQuantity           Reason = "invalid_quantity"
	ReasonQuantityNotLotMultiple    Reason = "quantity_not_lot_multiple"
	ReasonQuantityBelowMinimum      Reason = "quantity_below_minimum"
	ReasonInvalidLimitPrice         Reason = "invalid_limit_price"
	ReasonPriceNotTickMultiple      Reason = "price_not_tick_multiple"
	ReasonMarketOrderCannotHavePrice Reason = "market_order_cannot_have_price"
	ReasonInvalidMinQuantity        Reason = "invalid_min_quantity"
	ReasonMinQuantityNotLotMultiple Reason = "min_quantity_not_lot_multiple"
	ReasonIcebergRequiresLimitOrder Reason = "iceberg_requires_limit_order"
	ReasonInvalidIcebergDisplayQuantity Reason = "invalid_iceberg_display_quantity"

	// Matching-policy outcomes (spec.md §7 item 2).
	ReasonInsufficientLiquidityForFOK   Reason = "insufficient_liquidity_for_fok"
	ReasonSTPCancelNewest               Reason = "self_trade_prevention_cancel_newest"
	ReasonSTPCancelOldest               Reason = "self_trade_prevention_cancel_oldest"
	ReasonSTPCancelBoth                 Reason = "self_trade_prevention_cancel_both"
	ReasonMarketOrderUnfilledRemainder  Reason = "market_order_unfilled_remainder"
	ReasonTimeInForceUnfilledRemainder  Reason = "time_in_force_unfilled_remainder"

	// Cancel outcomes.
	ReasonOrderNotFound      Reason = "order_not_found"
	ReasonUserMismatch       Reason = "user_mismatch"
	ReasonOrderSymbolNotFound Reason = "order_symbol_not_found"
	ReasonCanceledByUser     Reason = "canceled_by_user"
)
