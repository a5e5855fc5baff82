package matching

import (
	"sync"

	"clobcore/internal/book"

	"go.uber.org/zap"
)

// EventKind names one of the fan-out events of spec.md §4.4's emitted-events
// table. These are design-level names, not wire/RPC identifiers.
type EventKind string

const (
	EventTrade        EventKind = "trade"
	EventOrderbook     EventKind = "orderbook"
	EventOrderResult   EventKind = "order_result"
	EventCancelResult  EventKind = "cancel_result"
)

// Event is one message on the engine's fan-out bus. Only the field
// matching Kind is populated.
type Event struct {
	Kind         EventKind
	Symbol       string
	Trade        *book.Trade
	Snapshot     *book.Snapshot
	SubmitResult *book.SubmitResult
	CancelResult *book.CancelResult
}

// Bus is a broadcast fan-out of Events to any number of subscribers. A
// slow or abandoned subscriber never blocks publication — its channel is
// skipped and the drop logged, per spec.md §9's "bounded channels or
// broadcast queues" design freedom.
type Bus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	logger *zap.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{subs: make(map[chan Event]struct{}), logger: logger}
}

// Subscribe returns a new channel that receives every future published
// event, buffered so a burst of matches from one submission does not
// require the subscriber to keep pace in real time.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 256)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Safe to call more than once.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping fan-out event, subscriber channel full", zap.String("kind", string(ev.Kind)))
		}
	}
}
