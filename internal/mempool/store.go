package mempool

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// store is the durable virtual-tx ledger backing the mempool, grounded
// on the teacher codebase's pebble-backed exit WAL
// (infra/wal/exit/wal.go): same key-prefix-and-scan shape, adapted from
// a fixed binary record (state/retries/lastAttempt) to whole
// JSON-encoded transactions, since a virtual tx carries far more state
// than a send-acknowledgement outbox entry.
type store struct {
	db *pebble.DB
}

func openStore(dir string) (*store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("mempool: opening tx store at %q: %w", dir, err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error {
	return s.db.Close()
}

func (s *store) put(tx *Tx) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return s.db.Set(keyFor(tx.TxID), body, pebble.Sync)
}

// scanAll visits every persisted transaction, used to rebuild in-memory
// pending/included state after a restart.
func (s *store) scanAll(fn func(*Tx) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("tx/"),
		UpperBound: []byte("tx/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var tx Tx
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return err
		}
		if err := fn(&tx); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(txID string) []byte {
	return []byte("tx/" + txID)
}
