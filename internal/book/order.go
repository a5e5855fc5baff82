package book

// Side is which side of the book an order rests on or aggresses against.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Kind distinguishes limit orders (which may rest) from market orders
// (which never do).
type Kind int

const (
	Limit Kind = iota
	Market
)

// TimeInForce controls what happens to an order's unfilled remainder.
type TimeInForce int

const (
	GTC TimeInForce = iota
	IOC
	FOK
)

// SelfTradePrevention is the policy applied when a taker would trade
// against its own resting order.
type SelfTradePrevention int

const (
	STPNone SelfTradePrevention = iota
	STPCancelNewest
	STPCancelOldest
	STPCancelBoth
)

// Status is an order's lifecycle state. Once an order reaches a
// terminal status (Filled, Canceled, Rejected, Expired) it is removed
// from the book and never mutated again.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Order is a mutable entity owned by the book it rests in. Field names
// follow spec.md §3 exactly.
type Order struct {
	ID            string
	ClientOrderID string
	Sequence      uint64

	Symbol string
	UserID string
	Side   Side
	Kind   Kind
	TIF    TimeInForce

	Status Status
	Reason Reason

	OriginalQuantity           int64
	RemainingQuantity          int64
	DisplayQuantity            int64
	DisplayedRemainingQuantity int64
	ReserveRemainingQuantity   int64
	MinQuantity                int64

	Price *int64

	STP SelfTradePrevention

	CreatedAtMs int64
	UpdatedAtMs int64

	// queue linkage, valid only while the order is resting.
	next *Order
	prev *Order
}

// Iceberg reports whether the order shows only a slice of its quantity.
func (o *Order) Iceberg() bool {
	return o.DisplayQuantity > 0 && o.DisplayQuantity < o.OriginalQuantity
}

// Whether an order is currently resting is tracked by the book's
// ordersByID map, not by the order itself — see OrderBook.ordersByID.
