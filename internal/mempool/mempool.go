// Package mempool implements the virtual transaction pool of spec.md
// §4.5: submissions pay a simulated gas price, queue until a block tick
// includes them in effective-gas order, execute against the matching
// engine, and confirm probabilistically after a minimum depth.
package mempool

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"clobcore/internal/matching"
	"clobcore/internal/prng"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config configures a new Mempool.
type Config struct {
	BlockIntervalMs                 int64
	MaxTransactionsPerBlock         int
	DefaultConfirmations            uint64
	ConfirmationProbabilityPerBlock float64
	// StoreDir is where the durable tx ledger lives. Required: the
	// mempool's pending/included/confirmed/failed state machine is
	// always backed by the pebble store (spec.md §3 "Lifecycle
	// ownership" — the mempool owns transactions and the pending queue).
	StoreDir string
	Source   *prng.Source
	Logger   *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxTransactionsPerBlock <= 0 {
		c.MaxTransactionsPerBlock = 1
	}
	if c.Source == nil {
		c.Source = prng.New(0)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Mempool is the virtual tx pool described in spec.md §4.5. Tick is
// reentrancy-guarded: if a tick is still running when called again, the
// later call is a no-op (spec.md §5 "Block ticks are reentrancy-guarded").
type Mempool struct {
	cfg    Config
	engine *matching.Engine
	store  *store
	logger *zap.Logger

	mu          sync.Mutex
	blockNumber uint64
	pending     []*Tx
	included    []*Tx
	all         map[string]*Tx
	handles     map[string]*Handle
	nextSeq     uint64

	ticking atomic.Bool
}

// New constructs a mempool over engine, opening (and restoring from) its
// durable tx store.
func New(cfg Config, engine *matching.Engine) (*Mempool, error) {
	cfg = cfg.withDefaults()
	if cfg.StoreDir == "" {
		return nil, fmt.Errorf("mempool: StoreDir is required")
	}
	st, err := openStore(cfg.StoreDir)
	if err != nil {
		return nil, err
	}

	m := &Mempool{
		cfg:     cfg,
		engine:  engine,
		store:   st,
		logger:  cfg.Logger,
		all:     make(map[string]*Tx),
		handles: make(map[string]*Handle),
	}
	if err := m.restore(); err != nil {
		return nil, fmt.Errorf("mempool: restoring from store: %w", err)
	}
	m.logger.Info("mempool constructed", zap.Int("restored_pending", len(m.pending)), zap.Int("restored_included", len(m.included)))
	return m, nil
}

// restore rebuilds the in-memory pending/included queues from the
// durable store. Restored transactions get fresh handles (the original
// caller, if any, is gone) and a submitSeq reassigned by ascending
// submission time, since the unexported field is not itself persisted.
func (m *Mempool) restore() error {
	var recovered []*Tx
	if err := m.store.scanAll(func(tx *Tx) error {
		recovered = append(recovered, tx)
		return nil
	}); err != nil {
		return err
	}
	sort.Slice(recovered, func(i, j int) bool { return recovered[i].SubmittedAtMs < recovered[j].SubmittedAtMs })

	var maxBlock uint64
	for _, tx := range recovered {
		tx.submitSeq = m.nextSeq
		m.nextSeq++
		m.all[tx.TxID] = tx
		m.handles[tx.TxID] = newHandle(tx.TxID)

		switch tx.Status {
		case StatusPending:
			m.pending = append(m.pending, tx)
		case StatusIncluded:
			m.included = append(m.included, tx)
		}
		if tx.IncludedBlockNumber != nil && *tx.IncludedBlockNumber > maxBlock {
			maxBlock = *tx.IncludedBlockNumber
		}
		if tx.ConfirmedBlockNumber != nil && *tx.ConfirmedBlockNumber > maxBlock {
			maxBlock = *tx.ConfirmedBlockNumber
		}
	}
	m.blockNumber = maxBlock
	return nil
}

// Close closes the durable store.
func (m *Mempool) Close() error {
	return m.store.close()
}

// Submit enqueues payload as a pending transaction and returns a handle
// that completes once the tx reaches confirmed or failed.
func (m *Mempool) Submit(payload Payload, gasPrice, maxPriorityFeePerGas *uint256.Int, confirmations *uint64, nowMs int64) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	required := m.cfg.DefaultConfirmations
	if confirmations != nil {
		required = *confirmations
	}

	tx := &Tx{
		TxID:                  "tx-" + uuid.NewString(),
		Status:                StatusPending,
		SubmittedAtMs:         nowMs,
		GasPrice:              gasPrice,
		MaxPriorityFeePerGas:  maxPriorityFeePerGas,
		RequiredConfirmations: required,
		Payload:               payload,
		submitSeq:             m.nextSeq,
	}
	m.nextSeq++

	if err := m.store.put(tx); err != nil {
		return nil, fmt.Errorf("mempool: persisting new tx: %w", err)
	}

	m.all[tx.TxID] = tx
	m.pending = append(m.pending, tx)
	h := newHandle(tx.TxID)
	m.handles[tx.TxID] = h
	return h, nil
}

// Tick runs one block: include phase then confirm phase (spec.md §4.5).
// A tick that overlaps a still-running one is skipped entirely.
func (m *Mempool) Tick(nowMs int64) error {
	if !m.ticking.CompareAndSwap(false, true) {
		return nil
	}
	defer m.ticking.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blockNumber++
	if err := m.includePhase(nowMs); err != nil {
		return err
	}
	m.confirmPhase()
	return nil
}

func (m *Mempool) includePhase(nowMs int64) error {
	sort.SliceStable(m.pending, func(i, j int) bool {
		gi, gj := m.pending[i].EffectiveGas(), m.pending[j].EffectiveGas()
		if cmp := gi.Cmp(gj); cmp != 0 {
			return cmp > 0 // higher effective gas first
		}
		if m.pending[i].SubmittedAtMs != m.pending[j].SubmittedAtMs {
			return m.pending[i].SubmittedAtMs < m.pending[j].SubmittedAtMs
		}
		return m.pending[i].submitSeq < m.pending[j].submitSeq
	})

	take := len(m.pending)
	if take > m.cfg.MaxTransactionsPerBlock {
		take = m.cfg.MaxTransactionsPerBlock
	}
	included, rest := m.pending[:take], m.pending[take:]
	m.pending = append([]*Tx(nil), rest...)

	for _, tx := range included {
		blockNumber := m.blockNumber
		tx.Status = StatusIncluded
		tx.IncludedBlockNumber = &blockNumber
		if err := m.store.put(tx); err != nil {
			return fmt.Errorf("mempool: persisting included tx %s: %w", tx.TxID, err)
		}

		result, err := m.execute(tx.Payload, nowMs)
		if err != nil {
			tx.Status = StatusFailed
			tx.Error = err.Error()
			if perr := m.store.put(tx); perr != nil {
				m.logger.Error("persisting failed tx", zap.String("tx_id", tx.TxID), zap.Error(perr))
			}
			m.settle(tx)
			continue
		}
		tx.Result = result
		m.included = append(m.included, tx)
		if err := m.store.put(tx); err != nil {
			return fmt.Errorf("mempool: persisting executed tx %s: %w", tx.TxID, err)
		}
	}
	return nil
}

func (m *Mempool) execute(payload Payload, nowMs int64) (any, error) {
	switch payload.Kind {
	case PayloadSubmitOrder:
		if payload.SubmitOrder == nil {
			return nil, fmt.Errorf("mempool: submit_order payload missing request")
		}
		return m.engine.SubmitOrder(*payload.SubmitOrder, nowMs)
	case PayloadCancelOrder:
		if payload.CancelOrder == nil {
			return nil, fmt.Errorf("mempool: cancel_order payload missing request")
		}
		return m.engine.CancelOrder(*payload.CancelOrder, nowMs)
	default:
		return nil, fmt.Errorf("mempool: unknown payload kind %q", payload.Kind)
	}
}

func (m *Mempool) confirmPhase() {
	var stillIncluded []*Tx
	for _, tx := range m.included {
		elapsed := m.blockNumber - *tx.IncludedBlockNumber + 1
		if elapsed < tx.RequiredConfirmations {
			stillIncluded = append(stillIncluded, tx)
			continue
		}
		// Forced-confirmation floor prevents stalls when the
		// probability is low or zero (spec.md §4.5, §9).
		confirmed := m.cfg.Source.Bool(m.cfg.ConfirmationProbabilityPerBlock) || elapsed >= tx.RequiredConfirmations+5
		if !confirmed {
			stillIncluded = append(stillIncluded, tx)
			continue
		}
		blockNumber := m.blockNumber
		tx.Status = StatusConfirmed
		tx.ConfirmedBlockNumber = &blockNumber
		if err := m.store.put(tx); err != nil {
			m.logger.Error("persisting confirmed tx", zap.String("tx_id", tx.TxID), zap.Error(err))
		}
		m.settle(tx)
	}
	m.included = stillIncluded
}

func (m *Mempool) settle(tx *Tx) {
	if h, ok := m.handles[tx.TxID]; ok {
		h.resolve(tx.clone())
		delete(m.handles, tx.TxID)
	}
}

// Get returns an immutable clone of the named transaction.
func (m *Mempool) Get(txID string) (*Tx, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.all[txID]
	if !ok {
		return nil, false
	}
	return tx.clone(), true
}

// List returns up to limit transactions, newest submitted first. limit
// <= 0 returns all.
func (m *Mempool) List(limit int) []*Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tx, 0, len(m.all))
	for _, tx := range m.all {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAtMs != out[j].SubmittedAtMs {
			return out[i].SubmittedAtMs > out[j].SubmittedAtMs
		}
		return out[i].submitSeq > out[j].submitSeq
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	clones := make([]*Tx, len(out))
	for i, tx := range out {
		clones[i] = tx.clone()
	}
	return clones
}

// PendingCount returns the number of transactions not yet included.
func (m *Mempool) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
