package exchange

// ExchangeSystemDiff is the change set between two []PoolView snapshots.
type ExchangeSystemDiff struct {
	Additions []PoolView `json:"additions,omitempty"`
	Updates   []PoolView `json:"updates,omitempty"`
	Deletions []uint64   `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d ExchangeSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two snapshots of the exchanges.
// Both lists are indexed by pool ID, then the new map is walked for additions and
// updates and the old map for deletions.
func Differ(old, new []PoolView) ExchangeSystemDiff {
	oldPoolsMap := make(map[uint64]PoolView, len(old))
	for _, pool := range old {
		oldPoolsMap[pool.ID] = pool
	}

	newPoolsMap := make(map[uint64]PoolView, len(new))
	for _, pool := range new {
		newPoolsMap[pool.ID] = pool
	}

	var additions []PoolView
	var updates []PoolView
	var deletions []uint64

	for newID, newPool := range newPoolsMap {
		oldPool, exists := oldPoolsMap[newID]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		// Only reserves, supply and holders move once a pool exists.
		if !eq(oldPool.BaseReserve, newPool.BaseReserve) ||
			!eq(oldPool.AssetReserve, newPool.AssetReserve) ||
			!eq(oldPool.ShareSupply, newPool.ShareSupply) ||
			oldPool.Holders != newPool.Holders {
			updates = append(updates, newPool)
		}
	}

	for oldID := range oldPoolsMap {
		if _, exists := newPoolsMap[oldID]; !exists {
			deletions = append(deletions, oldID)
		}
	}

	return ExchangeSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
