package book

import "clobcore/internal/skiplist"

// sideIndex wraps a skip list keyed on a sort key that encodes side
// direction, so First() always returns the best opposite level
// regardless of whether this index holds bids or asks (spec.md §3
// "Side index", §4.1).
type sideIndex struct {
	sl  *skiplist.SkipList[*PriceLevel]
	bid bool // true for the bids index, false for asks
}

func newSideIndex(sl *skiplist.SkipList[*PriceLevel], bid bool) *sideIndex {
	return &sideIndex{sl: sl, bid: bid}
}

// sortKey maps a price to this index's sort key: +price for asks,
// -price for bids, so ascending key order always means "best first".
func (s *sideIndex) sortKey(price int64) int64 {
	if s.bid {
		return -price
	}
	return price
}

// GetOrCreate returns the level at price, creating an empty one if
// absent.
func (s *sideIndex) GetOrCreate(price int64) *PriceLevel {
	return s.sl.GetOrInsert(s.sortKey(price), func() *PriceLevel {
		return &PriceLevel{Price: price}
	})
}

// Find returns the level at price, or nil.
func (s *sideIndex) Find(price int64) *PriceLevel {
	v, ok := s.sl.Get(s.sortKey(price))
	if !ok {
		return nil
	}
	return v
}

// Best returns the best (lowest sort key) level, or nil if empty.
func (s *sideIndex) Best() *PriceLevel {
	e, ok := s.sl.First()
	if !ok {
		return nil
	}
	return e.Value
}

// Delete removes the level at price.
func (s *sideIndex) Delete(price int64) bool {
	return s.sl.Delete(s.sortKey(price))
}

// Len returns the number of non-empty price levels.
func (s *sideIndex) Len() int { return s.sl.Len() }

// Levels returns up to limit levels in best-first order.
func (s *sideIndex) Levels(limit int) []*PriceLevel {
	entries := s.sl.Entries(limit)
	out := make([]*PriceLevel, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// crosses reports whether a resting level at levelPrice would match an
// incoming order of side takerSide priced at takerPrice (nil price
// means market: always crosses).
func crosses(takerSide Side, takerPrice *int64, levelPrice int64) bool {
	if takerPrice == nil {
		return true // market order crosses any level
	}
	if takerSide == Buy {
		// incoming buy crosses resting asks priced at or below its limit
		return levelPrice <= *takerPrice
	}
	// incoming sell crosses resting bids priced at or above its limit
	return levelPrice >= *takerPrice
}
