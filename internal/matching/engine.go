// Package matching implements the multi-symbol orchestration layer of
// spec.md §4.4: it owns one book.OrderBook per symbol, a secondary
// order-id index for cancel-without-symbol, the fan-out event bus, the
// cumulative counters and latency window, and command-log-backed replay.
//
// It is grounded on the write-entry-point discipline of the teacher
// codebase's service.OrderService — a single object every command and
// query passes through, wiring the domain (book), the durability layer
// (commandlog) and the outward-facing broadcast (Bus) without letting
// any of those three know about each other.
package matching

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clobcore/internal/book"
	"clobcore/internal/commandlog"
	"clobcore/internal/ringbuffer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnknownSymbolError is returned by read paths and by SubmitOrder when the
// engine has no book for the requested symbol — the fixed set of symbols
// is bound at construction (spec.md §3 "Symbol").
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("matching: unknown symbol %q", e.Symbol)
}

// SubmitRequest is the engine-level submit contract (spec.md §6 "Engine
// submit input"), JSON-tagged so it can round-trip through the command
// log unchanged.
type SubmitRequest struct {
	ID                     string                    `json:"id,omitempty"`
	ClientOrderID          string                    `json:"client_order_id,omitempty"`
	Symbol                 string                    `json:"symbol"`
	UserID                 string                    `json:"user_id"`
	Side                   book.Side                 `json:"side"`
	Kind                   book.Kind                 `json:"kind"`
	Quantity               int64                     `json:"quantity"`
	Price                  *int64                    `json:"price,omitempty"`
	TimeInForce            *book.TimeInForce         `json:"time_in_force,omitempty"`
	MinQuantity            *int64                    `json:"min_quantity,omitempty"`
	IcebergDisplayQuantity *int64                    `json:"iceberg_display_quantity,omitempty"`
	STP                    *book.SelfTradePrevention `json:"self_trade_prevention,omitempty"`
}

func (r SubmitRequest) toBookRequest() book.SubmitRequest {
	return book.SubmitRequest{
		ID:                     r.ID,
		ClientOrderID:          r.ClientOrderID,
		Symbol:                 r.Symbol,
		UserID:                 r.UserID,
		Side:                   r.Side,
		Kind:                   r.Kind,
		Quantity:               r.Quantity,
		Price:                  r.Price,
		TimeInForce:            r.TimeInForce,
		MinQuantity:            r.MinQuantity,
		IcebergDisplayQuantity: r.IcebergDisplayQuantity,
		STP:                    r.STP,
	}
}

// CancelRequest is the engine-level cancel contract (spec.md §6 "Engine
// cancel input").
type CancelRequest struct {
	OrderID string  `json:"order_id"`
	UserID  *string `json:"user_id,omitempty"`
	Symbol  *string `json:"symbol,omitempty"`
}

// Config configures a new Engine. Books is the fixed set of per-symbol
// books; the engine never creates a book it wasn't given at construction.
type Config struct {
	Books          []book.Config
	CommandLogPath string // empty disables durability/replay
	LatencyWindow  int    // ring capacity; defaults to 2000
	Logger         *zap.Logger
}

// Engine is the multi-symbol matching orchestrator. All mutating calls
// serialize on mu, satisfying spec.md §5's "must not interleave a
// partial match with another submission" requirement with the simplest
// permitted implementation: one mutex guarding all engine state.
type Engine struct {
	mu sync.Mutex

	books       map[string]*book.OrderBook
	orderSymbol map[string]string

	log    *commandlog.Log
	bus    *Bus
	logger *zap.Logger

	ordersSubmitted atomic.Uint64
	ordersCanceled  atomic.Uint64
	tradesExecuted  atomic.Uint64
	rejectedOrders  atomic.Uint64
	expiredOrders   atomic.Uint64

	latency *ringbuffer.Ring[float64]
}

// New constructs an engine over cfg.Books. If cfg.CommandLogPath is set,
// every submission and cancellation is durably logged before it applies.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = 2000
	}

	books := make(map[string]*book.OrderBook, len(cfg.Books))
	for _, bc := range cfg.Books {
		books[bc.Symbol] = book.New(bc)
	}

	var l *commandlog.Log
	if cfg.CommandLogPath != "" {
		var err error
		l, err = commandlog.Open(cfg.CommandLogPath, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("matching: opening command log: %w", err)
		}
	}

	e := &Engine{
		books:       books,
		orderSymbol: make(map[string]string),
		log:         l,
		bus:         NewBus(cfg.Logger),
		logger:      cfg.Logger,
		latency:     ringbuffer.New[float64](cfg.LatencyWindow),
	}
	e.logger.Info("matching engine constructed", zap.Int("symbols", len(books)))
	return e, nil
}

// Subscribe returns a channel of every fan-out event the engine emits.
func (e *Engine) Subscribe() chan Event { return e.bus.Subscribe() }

// Unsubscribe stops and closes a channel previously returned by Subscribe.
func (e *Engine) Unsubscribe(ch chan Event) { e.bus.Unsubscribe(ch) }

// SupportedSymbols returns the engine's fixed symbol set.
func (e *Engine) SupportedSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	return out
}

// Close flushes and closes the command log, if one is configured.
func (e *Engine) Close() error {
	if e.log == nil {
		return nil
	}
	return e.log.Close()
}

// SubmitOrder validates, matches, durably logs (if configured), and
// broadcasts req against its symbol's book.
func (e *Engine) SubmitOrder(req SubmitRequest, nowMs int64) (*book.SubmitResult, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.books[req.Symbol]
	if !ok {
		return nil, &UnknownSymbolError{Symbol: req.Symbol}
	}

	// Assign the order id before logging so replay recreates the same id
	// and later logged cancels still resolve against it.
	if req.ID == "" {
		req.ID = "ord-" + uuid.NewString()
	}

	var commandID string
	if e.log != nil {
		id, err := e.log.AppendCommand(commandlog.CommandSubmitOrder, req, nowMs)
		if err != nil {
			return nil, fmt.Errorf("matching: appending submit command: %w", err)
		}
		commandID = id
	}

	res := b.SubmitOrder(req.toBookRequest(), nowMs)
	e.afterSubmit(b, req.Symbol, res, commandID, nowMs, start, true)
	return res, nil
}

// applySubmitReplay re-applies a logged submit_order command during
// replay: it skips re-persisting to the command log but still updates
// counters, the order-symbol index, and the fan-out bus (spec.md §9
// "Replay order").
func (e *Engine) applySubmitReplay(req SubmitRequest, nowMs int64) error {
	b, ok := e.books[req.Symbol]
	if !ok {
		return &UnknownSymbolError{Symbol: req.Symbol}
	}
	res := b.SubmitOrder(req.toBookRequest(), nowMs)
	e.afterSubmit(b, req.Symbol, res, "", nowMs, time.Time{}, false)
	return nil
}

func (e *Engine) afterSubmit(b *book.OrderBook, symbol string, res *book.SubmitResult, commandID string, nowMs int64, start time.Time, persist bool) {
	e.ordersSubmitted.Add(1)
	switch res.Order.Status {
	case book.StatusRejected:
		e.rejectedOrders.Add(1)
	case book.StatusExpired:
		e.expiredOrders.Add(1)
	}
	e.tradesExecuted.Add(uint64(len(res.Trades)))

	if !res.Order.Status.Terminal() {
		e.orderSymbol[res.Order.ID] = symbol
	}

	for _, trade := range res.Trades {
		e.bus.publish(Event{Kind: EventTrade, Symbol: symbol, Trade: trade})
	}
	snap := b.Snapshot(0)
	e.bus.publish(Event{Kind: EventOrderbook, Symbol: symbol, Snapshot: &snap})
	e.bus.publish(Event{Kind: EventOrderResult, Symbol: symbol, SubmitResult: res})

	if persist && e.log != nil {
		if body, err := json.Marshal(res); err == nil {
			_ = e.log.AppendEvent(commandID, json.RawMessage(body), nowMs)
		}
	}
	if !start.IsZero() {
		e.latency.Push(float64(time.Since(start).Microseconds()) / 1000.0)
	}
}

// CancelOrder resolves the owning symbol (from the request or the
// secondary order-id index) and delegates to that symbol's book.
func (e *Engine) CancelOrder(req CancelRequest, nowMs int64) (*book.CancelResult, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	symbol := ""
	if req.Symbol != nil {
		symbol = *req.Symbol
	} else if s, ok := e.orderSymbol[req.OrderID]; ok {
		symbol = s
	}
	if symbol == "" {
		return &book.CancelResult{Canceled: false, Reason: book.ReasonOrderSymbolNotFound}, nil
	}
	b, ok := e.books[symbol]
	if !ok {
		return &book.CancelResult{Canceled: false, Reason: book.ReasonOrderSymbolNotFound}, nil
	}

	var commandID string
	if e.log != nil {
		id, err := e.log.AppendCommand(commandlog.CommandCancelOrder, req, nowMs)
		if err != nil {
			return nil, fmt.Errorf("matching: appending cancel command: %w", err)
		}
		commandID = id
	}

	res := b.CancelOrder(req.OrderID, req.UserID, nowMs)
	e.afterCancel(symbol, res, commandID, nowMs, start, true)
	return res, nil
}

func (e *Engine) applyCancelReplay(req CancelRequest, nowMs int64) error {
	symbol := ""
	if req.Symbol != nil {
		symbol = *req.Symbol
	} else if s, ok := e.orderSymbol[req.OrderID]; ok {
		symbol = s
	}
	b, ok := e.books[symbol]
	if !ok {
		return &UnknownSymbolError{Symbol: symbol}
	}
	res := b.CancelOrder(req.OrderID, req.UserID, nowMs)
	e.afterCancel(symbol, res, "", nowMs, time.Time{}, false)
	return nil
}

func (e *Engine) afterCancel(symbol string, res *book.CancelResult, commandID string, nowMs int64, start time.Time, persist bool) {
	if res.Canceled {
		e.ordersCanceled.Add(1)
		delete(e.orderSymbol, res.Order.ID)
	}
	e.bus.publish(Event{Kind: EventCancelResult, Symbol: symbol, CancelResult: res})
	if persist && e.log != nil {
		if body, err := json.Marshal(res); err == nil {
			_ = e.log.AppendEvent(commandID, json.RawMessage(body), nowMs)
		}
	}
	if !start.IsZero() {
		e.latency.Push(float64(time.Since(start).Microseconds()) / 1000.0)
	}
}

// ReplayResult reports how many logged commands applied cleanly.
type ReplayResult struct {
	Applied int
	Skipped int
}

// ReplayFromCommandLog re-applies every command in the engine's command
// log, in file order, without re-persisting. A command that fails to
// apply increments Skipped and does not halt the replay (spec.md §7
// "Corrupt command-log lines on replay are silently skipped and
// counted; they never abort replay").
func (e *Engine) ReplayFromCommandLog() (ReplayResult, error) {
	if e.log == nil {
		return ReplayResult{}, fmt.Errorf("matching: no command log configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.log.Path()
	records, corrupt, err := commandlog.ReadCommands(path)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("matching: reading command log: %w", err)
	}

	result := ReplayResult{Skipped: corrupt}
	for _, rec := range records {
		var applyErr error
		switch rec.Kind {
		case commandlog.CommandSubmitOrder:
			var req SubmitRequest
			if err := json.Unmarshal(rec.Payload, &req); err != nil {
				applyErr = err
			} else {
				applyErr = e.applySubmitReplay(req, rec.TimestampMs)
			}
		case commandlog.CommandCancelOrder:
			var req CancelRequest
			if err := json.Unmarshal(rec.Payload, &req); err != nil {
				applyErr = err
			} else {
				applyErr = e.applyCancelReplay(req, rec.TimestampMs)
			}
		default:
			applyErr = fmt.Errorf("unknown command kind %q", rec.Kind)
		}

		if applyErr != nil {
			result.Skipped++
			e.logger.Warn("skipping command during replay", zap.Error(applyErr))
			continue
		}
		result.Applied++
	}
	return result, nil
}

// Snapshot returns a depth-capped snapshot of symbol's book.
func (e *Engine) Snapshot(symbol string, depth int) (book.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		return book.Snapshot{}, &UnknownSymbolError{Symbol: symbol}
	}
	return b.Snapshot(depth), nil
}

// Depth returns the bare bid/ask rows of symbol's book.
func (e *Engine) Depth(symbol string, depth int) (bids, asks []book.LevelRow, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		return nil, nil, &UnknownSymbolError{Symbol: symbol}
	}
	bids, asks = b.Depth(depth)
	return bids, asks, nil
}

// Trades returns up to limit recent trades for symbol, newest first.
func (e *Engine) Trades(symbol string, limit int) ([]*book.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		return nil, &UnknownSymbolError{Symbol: symbol}
	}
	return b.Trades(limit), nil
}

// Stats returns the engine's cumulative counters and latency percentiles.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	samples := e.latency.All()
	e.mu.Unlock()

	avg, p95 := latencyPercentiles(samples)
	return Stats{
		OrdersSubmitted: e.ordersSubmitted.Load(),
		OrdersCanceled:  e.ordersCanceled.Load(),
		TradesExecuted:  e.tradesExecuted.Load(),
		RejectedOrders:  e.rejectedOrders.Load(),
		ExpiredOrders:   e.expiredOrders.Load(),
		AvgLatencyMs:    avg,
		P95LatencyMs:    p95,
		LatencySamples:  len(samples),
	}
}
