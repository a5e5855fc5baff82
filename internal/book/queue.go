package book

// PriceLevel is a doubly-linked FIFO of orders resting at one price, on
// one side of one book (spec.md §3, §4.2). TotalVisibleQuantity is kept
// in sync incrementally — it is always the sum of DisplayedRemaining
// across the queue, never the hidden reserve.
type PriceLevel struct {
	Price                int64
	head                 *Order
	tail                 *Order
	OrderCount           int
	TotalVisibleQuantity int64
}

// Head returns the order at the front of the queue, or nil.
func (p *PriceLevel) Head() *Order { return p.head }

// IsEmpty reports whether the level currently holds no orders.
func (p *PriceLevel) IsEmpty() bool { return p.head == nil }

// Append adds o to the tail of the queue — used both for new resting
// orders and, via MoveToTail, for iceberg replenishment.
func (p *PriceLevel) Append(o *Order) {
	o.prev = p.tail
	o.next = nil
	if p.tail != nil {
		p.tail.next = o
	} else {
		p.head = o
	}
	p.tail = o
	p.OrderCount++
	p.TotalVisibleQuantity += o.DisplayedRemainingQuantity
}

// Remove unlinks o from the queue in O(1), repairing head/tail if o was
// at either end.
func (p *PriceLevel) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next, o.prev = nil, nil
	p.OrderCount--
	p.TotalVisibleQuantity -= o.DisplayedRemainingQuantity
	if p.TotalVisibleQuantity < 0 {
		p.TotalVisibleQuantity = 0
	}
}

// MoveToTail removes and re-appends o, used after iceberg
// replenishment — the refreshed slice loses time priority (spec.md
// §4.2, §4.3 step 7).
func (p *PriceLevel) MoveToTail(o *Order) {
	p.Remove(o)
	p.Append(o)
}

// ReduceVisibleQuantity decrements the level's visible total by delta,
// called when a maker's displayed slice is consumed by a trade.
func (p *PriceLevel) ReduceVisibleQuantity(delta int64) {
	p.TotalVisibleQuantity -= delta
	if p.TotalVisibleQuantity < 0 {
		p.TotalVisibleQuantity = 0
	}
}

// IncreaseVisibleQuantity increments the level's visible total by
// delta, called on iceberg replenishment.
func (p *PriceLevel) IncreaseVisibleQuantity(delta int64) {
	p.TotalVisibleQuantity += delta
}
