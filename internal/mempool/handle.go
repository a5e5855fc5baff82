package mempool

import "context"

// Handle is the completion primitive returned by Submit (spec.md §9
// "Promise-based mempool handles become a completion primitive of the
// implementation's choice"). It is a buffered, GC-safe channel rather
// than a registered callback: dropping a Handle without calling Wait
// never poisons the mempool, since resolving a tx is always a
// non-blocking send into a channel nothing is required to drain.
type Handle struct {
	TxID string
	done chan *Tx
}

func newHandle(txID string) *Handle {
	return &Handle{TxID: txID, done: make(chan *Tx, 1)}
}

// Wait blocks until the transaction reaches confirmed or failed, or ctx
// is done. The returned Tx is an immutable clone.
func (h *Handle) Wait(ctx context.Context) (*Tx, error) {
	select {
	case tx := <-h.done:
		return tx, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) resolve(tx *Tx) {
	select {
	case h.done <- tx:
	default:
	}
}
