// Package actionqueue defines the contract for the optional onchain
// action translator named in spec.md §1 and §2 item 10. The translator
// itself — a sidecar decoding a separate onchain action queue into
// engine or mempool commands — is out of scope: "named as external
// collaborators, whose only contract is the interfaces listed in §6".
// This package exists so a real sidecar can be plugged into a running
// engine/mempool without either depending on it.
package actionqueue

import (
	"context"

	"clobcore/internal/matching"
)

// Action is one decoded onchain action, already translated into an
// engine-level command.
type Action struct {
	Submit *matching.SubmitRequest
	Cancel *matching.CancelRequest
}

// Decoder decodes a raw action from the queue's wire representation.
// Implemented by the out-of-scope sidecar, not by the core.
type Decoder interface {
	Decode(raw []byte) (Action, error)
}

// Source streams decoded actions until ctx is canceled or the source is
// exhausted. The core only ever consumes this interface; it never opens
// a queue connection itself.
type Source interface {
	Next(ctx context.Context) (Action, error)
}
