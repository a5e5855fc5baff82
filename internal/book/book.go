// Package book implements the per-symbol order book described in
// spec.md §4.3: validation, the matching loop, iceberg replenishment,
// self-trade prevention, and time-in-force semantics. A book is not
// safe for concurrent mutation by itself — spec.md §5 places that
// guarantee on the matching engine, which serializes all calls into a
// book.
package book

import (
	"fmt"

	"clobcore/internal/prng"
	"clobcore/internal/ringbuffer"
	"clobcore/internal/skiplist"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config configures a new OrderBook. The core never loads these values
// from the environment itself (spec.md §1) — callers (the engine,
// tests, cmd/engine) construct Config explicitly.
type Config struct {
	Symbol           string
	TickSize         int64
	LotSize          int64
	MinOrderQuantity int64 // defaults to LotSize if zero
	TradeWindow      int   // ring capacity for Trades(); defaults to 1024
	EventWindow      int   // ring capacity for the book's own event history; defaults to 4096
	Source           *prng.Source
	Logger           *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MinOrderQuantity <= 0 {
		c.MinOrderQuantity = c.LotSize
	}
	if c.TradeWindow <= 0 {
		c.TradeWindow = 1024
	}
	if c.EventWindow <= 0 {
		c.EventWindow = 4096
	}
	if c.Source == nil {
		c.Source = prng.New(0)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type orderRef struct {
	order *Order
	level *PriceLevel
}

// OrderBook is a two-sided price-time-priority book for one symbol.
type OrderBook struct {
	symbol           string
	tickSize         int64
	lotSize          int64
	minOrderQuantity int64

	bids *sideIndex
	asks *sideIndex

	ordersByID map[string]*orderRef

	trades *ringbuffer.Ring[*Trade]
	events *ringbuffer.Ring[*OrderEvent]

	seq uint64

	logger *zap.Logger
}

// New constructs an empty order book.
func New(cfg Config) *OrderBook {
	cfg = cfg.withDefaults()
	bidSL := skiplist.New[*PriceLevel](cfg.Source.Derive(cfg.Symbol + ":bids"))
	askSL := skiplist.New[*PriceLevel](cfg.Source.Derive(cfg.Symbol + ":asks"))
	return &OrderBook{
		symbol:           cfg.Symbol,
		tickSize:         cfg.TickSize,
		lotSize:          cfg.LotSize,
		minOrderQuantity: cfg.MinOrderQuantity,
		bids:             newSideIndex(bidSL, true),
		asks:             newSideIndex(askSL, false),
		ordersByID:       make(map[string]*orderRef),
		trades:           ringbuffer.New[*Trade](cfg.TradeWindow),
		events:           ringbuffer.New[*OrderEvent](cfg.EventWindow),
		logger:           cfg.Logger.With(zap.String("symbol", cfg.Symbol)),
	}
}

// Symbol returns the book's symbol.
func (b *OrderBook) Symbol() string { return b.symbol }

// Sequence returns the book's current monotonic sequence counter.
func (b *OrderBook) Sequence() uint64 { return b.seq }

// SubmitRequest is the book-level submission contract (spec.md §6
// "Engine submit input", minus the symbol-routing the engine performs
// before it reaches a book).
type SubmitRequest struct {
	ID                     string
	ClientOrderID          string
	Symbol                 string
	UserID                 string
	Side                   Side
	Kind                   Kind
	Quantity               int64
	Price                  *int64
	TimeInForce            *TimeInForce
	MinQuantity            *int64
	IcebergDisplayQuantity *int64
	STP                    *SelfTradePrevention
}

// SubmitResult is the book-level submission outcome. Events is the
// external-facing subset described in spec.md §6 ("the first event ...
// reflects the order's terminal status ..."); AllEvents is every event
// this submission generated, including maker-side events excluded from
// Events by the open question in spec.md §9 about STP's cancel_both
// maker event — the matching engine's fan-out bus reads AllEvents.
type SubmitResult struct {
	Order     *Order
	Trades    []*Trade
	Events    []*OrderEvent
	AllEvents []*OrderEvent
}

// SubmitOrder validates, matches, and (if applicable) rests req against
// the book, per spec.md §4.3.
func (b *OrderBook) SubmitOrder(req SubmitRequest, nowMs int64) *SubmitResult {
	id := req.ID
	if id == "" {
		id = genID("ord")
	}

	o := &Order{
		ID:               id,
		ClientOrderID:    req.ClientOrderID,
		Symbol:           b.symbol,
		UserID:           req.UserID,
		Side:             req.Side,
		Kind:             req.Kind,
		TIF:              defaultTIF(req),
		OriginalQuantity: req.Quantity,
		RemainingQuantity: req.Quantity,
		Price:            req.Price,
		CreatedAtMs:      nowMs,
		UpdatedAtMs:      nowMs,
	}
	if req.STP != nil {
		o.STP = *req.STP
	}
	o.DisplayQuantity = req.Quantity
	if req.IcebergDisplayQuantity != nil {
		o.DisplayQuantity = *req.IcebergDisplayQuantity
	}
	if req.MinQuantity != nil {
		o.MinQuantity = *req.MinQuantity
	}

	if reason := b.validate(req); reason != ReasonNone {
		o.Status = StatusRejected
		o.Reason = reason
		ev := b.recordEvent(o, nowMs)
		b.logger.Debug("order rejected", zap.String("order_id", o.ID), zap.String("reason", string(reason)))
		return &SubmitResult{Order: o, Events: []*OrderEvent{ev}, AllEvents: []*OrderEvent{ev}}
	}

	if o.TIF == FOK && !b.hasSufficientLiquidityForFOK(o) {
		o.Status = StatusRejected
		o.Reason = ReasonInsufficientLiquidityForFOK
		ev := b.recordEvent(o, nowMs)
		return &SubmitResult{Order: o, Events: []*OrderEvent{ev}, AllEvents: []*OrderEvent{ev}}
	}

	o.Sequence = b.nextSeq()

	trades, makerEvents, stpStopped := b.match(o, nowMs)

	var takerEvent *OrderEvent
	if stpStopped {
		// o.Status/Reason already set by match() (cancel_newest / cancel_both).
		takerEvent = b.recordEvent(o, nowMs)
	} else if o.RemainingQuantity > 0 && o.Kind == Limit && o.TIF == GTC {
		if len(trades) == 0 {
			o.Status = StatusNew
		} else {
			o.Status = StatusPartiallyFilled
		}
		o.DisplayedRemainingQuantity = min64(o.DisplayQuantity, o.RemainingQuantity)
		o.ReserveRemainingQuantity = o.RemainingQuantity - o.DisplayedRemainingQuantity
		b.postToBook(o)
		takerEvent = b.recordEvent(o, nowMs)
	} else if o.RemainingQuantity > 0 {
		o.Status = StatusExpired
		if o.Kind == Market {
			o.Reason = ReasonMarketOrderUnfilledRemainder
		} else {
			o.Reason = ReasonTimeInForceUnfilledRemainder
		}
		takerEvent = b.recordEvent(o, nowMs)
	} else {
		o.Status = StatusFilled
		takerEvent = b.recordEvent(o, nowMs)
	}

	allEvents := append([]*OrderEvent{takerEvent}, makerEvents...)
	// Events[] excludes maker STP-cancellation events per the open
	// question in spec.md §9; it keeps maker FILLED events, which are a
	// direct, unambiguous consequence of this submission.
	returned := []*OrderEvent{takerEvent}
	for _, e := range makerEvents {
		if e.Status == StatusFilled {
			returned = append(returned, e)
		}
	}

	return &SubmitResult{Order: o, Trades: trades, Events: returned, AllEvents: allEvents}
}

// validate runs the ordered checks of spec.md §4.3; the first failing
// check determines the rejection reason.
func (b *OrderBook) validate(req SubmitRequest) Reason {
	if req.Symbol != b.symbol {
		return ReasonSymbolMismatch
	}
	if req.UserID == "" {
		return ReasonMissingUserID
	}
	if req.Quantity <= 0 {
		return ReasonInvalidQuantity
	}
	if req.Quantity%b.lotSize != 0 {
		return ReasonQuantityNotLotMultiple
	}
	if req.Quantity < b.minOrderQuantity {
		return ReasonQuantityBelowMinimum
	}
	switch req.Kind {
	case Limit:
		if req.Price == nil || *req.Price <= 0 {
			return ReasonInvalidLimitPrice
		}
		if *req.Price%b.tickSize != 0 {
			return ReasonPriceNotTickMultiple
		}
	case Market:
		if req.Price != nil {
			return ReasonMarketOrderCannotHavePrice
		}
	}
	if req.MinQuantity != nil {
		mq := *req.MinQuantity
		if mq <= 0 || mq > req.Quantity {
			return ReasonInvalidMinQuantity
		}
		if mq%b.lotSize != 0 {
			return ReasonMinQuantityNotLotMultiple
		}
	}
	if req.IcebergDisplayQuantity != nil {
		if req.Kind != Limit {
			return ReasonIcebergRequiresLimitOrder
		}
		d := *req.IcebergDisplayQuantity
		if d <= 0 || d > req.Quantity || d%b.lotSize != 0 {
			return ReasonInvalidIcebergDisplayQuantity
		}
	}
	return ReasonNone
}

// hasSufficientLiquidityForFOK sums visible (not reserve) quantity over
// crossing levels on the opposite side, stopping at the first
// non-crossing level since levels are stored best-first (spec.md §4.3
// "FOK pre-check", §9 open question on reserves).
func (b *OrderBook) hasSufficientLiquidityForFOK(o *Order) bool {
	opposite := b.opposite(o.Side)
	var sum int64
	for _, lvl := range opposite.Levels(0) {
		if !crosses(o.Side, o.Price, lvl.Price) {
			break
		}
		sum += lvl.TotalVisibleQuantity
		if sum >= o.RemainingQuantity {
			return true
		}
	}
	return sum >= o.RemainingQuantity
}

// match runs the matching loop of spec.md §4.3 against the opposite
// side, mutating o in place. It returns executed trades, any
// maker-side order events generated, and whether self-trade prevention
// terminated the taker early.
func (b *OrderBook) match(o *Order, nowMs int64) (trades []*Trade, makerEvents []*OrderEvent, stopped bool) {
	opposite := b.opposite(o.Side)

	for o.RemainingQuantity > 0 {
		level := opposite.Best()
		if level == nil || !crosses(o.Side, o.Price, level.Price) {
			break
		}
		maker := level.Head()
		if maker == nil {
			opposite.Delete(level.Price)
			continue
		}

		if o.UserID == maker.UserID && o.STP != STPNone {
			switch o.STP {
			case STPCancelOldest:
				makerEvents = append(makerEvents, b.cancelMakerForSTP(maker, level, opposite, ReasonSTPCancelOldest, nowMs))
				continue
			case STPCancelNewest:
				o.Status = StatusCanceled
				o.Reason = ReasonSTPCancelNewest
				return trades, makerEvents, true
			case STPCancelBoth:
				makerEvents = append(makerEvents, b.cancelMakerForSTP(maker, level, opposite, ReasonSTPCancelBoth, nowMs))
				o.Status = StatusCanceled
				o.Reason = ReasonSTPCancelBoth
				return trades, makerEvents, true
			}
		}

		executable := min64(o.RemainingQuantity, maker.DisplayedRemainingQuantity)
		if executable <= 0 {
			break
		}

		trade := newTrade(genID("trd"), b.symbol, level.Price, executable, o, maker, nowMs, b.nextSeq())
		trades = append(trades, trade)
		b.trades.Push(trade)

		o.RemainingQuantity -= executable
		maker.RemainingQuantity -= executable
		maker.DisplayedRemainingQuantity -= executable
		level.ReduceVisibleQuantity(executable)
		maker.UpdatedAtMs = nowMs
		o.UpdatedAtMs = nowMs

		switch {
		case maker.RemainingQuantity == 0:
			level.Remove(maker)
			delete(b.ordersByID, maker.ID)
			if level.IsEmpty() {
				opposite.Delete(level.Price)
			}
			maker.Status = StatusFilled
			makerEvents = append(makerEvents, b.recordEvent(maker, nowMs))
		case maker.DisplayedRemainingQuantity == 0 && maker.ReserveRemainingQuantity > 0:
			refill := min64(maker.DisplayQuantity, maker.ReserveRemainingQuantity)
			maker.DisplayedRemainingQuantity = refill
			maker.ReserveRemainingQuantity -= refill
			level.IncreaseVisibleQuantity(refill)
			level.MoveToTail(maker)
			maker.Status = StatusPartiallyFilled
		default:
			maker.Status = StatusPartiallyFilled
		}
	}

	return trades, makerEvents, false
}

// cancelMakerForSTP removes maker from the book and marks it canceled.
// Its event is recorded in the book's own history but — per the open
// question in spec.md §9 — is not part of the submission's returned
// Events[].
func (b *OrderBook) cancelMakerForSTP(maker *Order, level *PriceLevel, side *sideIndex, reason Reason, nowMs int64) *OrderEvent {
	level.Remove(maker)
	delete(b.ordersByID, maker.ID)
	if level.IsEmpty() {
		side.Delete(level.Price)
	}
	maker.Status = StatusCanceled
	maker.Reason = reason
	maker.UpdatedAtMs = nowMs
	return b.recordEvent(maker, nowMs)
}

func (b *OrderBook) postToBook(o *Order) {
	idx := b.sideOf(o.Side)
	level := idx.GetOrCreate(*o.Price)
	level.Append(o)
	b.ordersByID[o.ID] = &orderRef{order: o, level: level}
}

func (b *OrderBook) sideOf(s Side) *sideIndex {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) opposite(s Side) *sideIndex {
	if s == Buy {
		return b.asks
	}
	return b.bids
}

func (b *OrderBook) nextSeq() uint64 {
	b.seq++
	return b.seq
}

func (b *OrderBook) recordEvent(o *Order, nowMs int64) *OrderEvent {
	ev := newOrderEvent(genID("evt"), o, nowMs, b.nextSeq())
	b.events.Push(ev)
	return ev
}

// CancelResult is the book-level cancel outcome (spec.md §6).
type CancelResult struct {
	Canceled bool
	Order    *Order
	Reason   Reason
	Event    *OrderEvent
}

// CancelOrder cancels a resting order by id, optionally checking it
// belongs to userID (spec.md §4.3 "Cancel").
func (b *OrderBook) CancelOrder(orderID string, userID *string, nowMs int64) *CancelResult {
	ref, ok := b.ordersByID[orderID]
	if !ok {
		return &CancelResult{Canceled: false, Reason: ReasonOrderNotFound}
	}
	if userID != nil && *userID != ref.order.UserID {
		return &CancelResult{Canceled: false, Reason: ReasonUserMismatch}
	}

	o := ref.order
	ref.level.Remove(o)
	delete(b.ordersByID, o.ID)
	idx := b.sideOf(o.Side)
	if ref.level.IsEmpty() {
		idx.Delete(ref.level.Price)
	}

	o.Status = StatusCanceled
	o.Reason = ReasonCanceledByUser
	o.UpdatedAtMs = nowMs
	ev := b.recordEvent(o, nowMs)

	return &CancelResult{Canceled: true, Order: o, Reason: ReasonCanceledByUser, Event: ev}
}

// LevelRow is one depth-capped row of a book side.
type LevelRow struct {
	Price      int64
	Quantity   int64
	OrderCount int
}

// Snapshot is a depth-capped, hidden-reserve-free projection of both
// sides (spec.md §4.3 "Snapshots").
type Snapshot struct {
	Symbol   string
	Sequence uint64
	Bids     []LevelRow
	Asks     []LevelRow
}

func levelRows(idx *sideIndex, depth int) []LevelRow {
	levels := idx.Levels(depth)
	rows := make([]LevelRow, len(levels))
	for i, lvl := range levels {
		rows[i] = LevelRow{Price: lvl.Price, Quantity: lvl.TotalVisibleQuantity, OrderCount: lvl.OrderCount}
	}
	return rows
}

// Snapshot returns a depth-capped view of the book, wrapped with
// symbol/sequence metadata for external consumers (e.g. the state
// snapshotter).
func (b *OrderBook) Snapshot(depth int) Snapshot {
	return Snapshot{
		Symbol:   b.symbol,
		Sequence: b.seq,
		Bids:     levelRows(b.bids, depth),
		Asks:     levelRows(b.asks, depth),
	}
}

// Depth returns the same depth-capped rows as Snapshot without the
// wrapping metadata — the bare read most callers want on a hot path.
func (b *OrderBook) Depth(depth int) (bids, asks []LevelRow) {
	return levelRows(b.bids, depth), levelRows(b.asks, depth)
}

// Trades returns up to limit most-recent trades, newest first. limit
// <= 0 returns the whole window.
func (b *OrderBook) Trades(limit int) []*Trade {
	return b.trades.Last(limit)
}

// ActiveOrderCount returns the number of orders currently resting.
func (b *OrderBook) ActiveOrderCount() int {
	return len(b.ordersByID)
}

func defaultTIF(req SubmitRequest) TimeInForce {
	if req.TimeInForce != nil {
		return *req.TimeInForce
	}
	if req.Kind == Market {
		return IOC
	}
	return GTC
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func genID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
