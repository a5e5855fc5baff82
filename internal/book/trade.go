package book

// Trade is an immutable record of one match. Price is always the
// maker's price per price-time priority (spec.md §4.3 step 4).
type Trade struct {
	TradeID      string
	Symbol       string
	Price        int64
	Quantity     int64
	TakerSide    Side
	TakerOrderID string
	MakerOrderID string
	BuyOrderID   string
	SellOrderID  string
	BuyUserID    string
	SellUserID   string
	TimestampMs  int64
	Sequence     uint64
}

func newTrade(id, symbol string, price, qty int64, taker, maker *Order, nowMs int64, seq uint64) *Trade {
	t := &Trade{
		TradeID:      id,
		Symbol:       symbol,
		Price:        price,
		Quantity:     qty,
		TakerSide:    taker.Side,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		TimestampMs:  nowMs,
		Sequence:     seq,
	}
	if taker.Side == Buy {
		t.BuyOrderID, t.BuyUserID = taker.ID, taker.UserID
		t.SellOrderID, t.SellUserID = maker.ID, maker.UserID
	} else {
		t.SellOrderID, t.SellUserID = taker.ID, taker.UserID
		t.BuyOrderID, t.BuyUserID = maker.ID, maker.UserID
	}
	return t
}
