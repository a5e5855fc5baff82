// Package snapshotstore implements the periodic state-snapshot writer of
// spec.md §4.8 and the "Snapshot file" contract of §6: a single JSON
// document capturing engine stats and a depth-capped view of every
// book, written atomically so a reader never observes a half-written
// file.
//
// It is grounded on the teacher codebase's snapshot.Writer/Load pair
// (snapshot/writer.go, snapshot/loader.go), adapted from a single-book
// gob-encoded blob to a multi-symbol JSON document per spec.md §6.
package snapshotstore

import (
	"sort"

	"clobcore/internal/book"
	"clobcore/internal/matching"
)

// Document is the full contents of a snapshot file.
type Document struct {
	SyncedAt            string         `json:"syncedAt"`
	UpstreamBlockNumber  *uint64        `json:"upstreamBlockNumber,omitempty"`
	Stats                matching.Stats `json:"stats"`
	Books                []book.Snapshot `json:"books"`
}

// BuildDocument assembles a Document from the engine's current state.
// syncedAt is the caller-supplied ISO-8601 timestamp (BuildDocument does
// not read the clock itself); upstreamBlockNumber is optional, supplied by
// the out-of-scope onchain observer.
func BuildDocument(engine *matching.Engine, depth int, syncedAt string, upstreamBlockNumber *uint64) (Document, error) {
	symbols := engine.SupportedSymbols()
	sort.Strings(symbols)

	books := make([]book.Snapshot, 0, len(symbols))
	for _, symbol := range symbols {
		snap, err := engine.Snapshot(symbol, depth)
		if err != nil {
			return Document{}, err
		}
		books = append(books, snap)
	}

	return Document{
		SyncedAt:            syncedAt,
		UpstreamBlockNumber:  upstreamBlockNumber,
		Stats:                engine.Stats(),
		Books:                books,
	}, nil
}
