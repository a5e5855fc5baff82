package book

// OrderEvent is an immutable record emitted for every status change,
// including terminal transitions reached mid-match (spec.md §3).
type OrderEvent struct {
	EventID           string
	OrderID           string
	Status            Status
	Reason            Reason
	RemainingQuantity int64
	TimestampMs       int64
	Sequence          uint64
}

func newOrderEvent(id string, o *Order, nowMs int64, seq uint64) *OrderEvent {
	return &OrderEvent{
		EventID:           id,
		OrderID:           o.ID,
		Status:            o.Status,
		Reason:            o.Reason,
		RemainingQuantity: o.RemainingQuantity,
		TimestampMs:       nowMs,
		Sequence:          seq,
	}
}
