package exchange

import (
	"cmp"
	"slices"

	"github.com/holiman/uint256"
)

func eq(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}

func copyInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

// Clone returns a PoolView with its own memory for the reserve values.
func (p PoolView) Clone() PoolView {
	newPool := p
	newPool.BaseReserve = copyInt(p.BaseReserve)
	newPool.AssetReserve = copyInt(p.AssetReserve)
	newPool.ShareSupply = copyInt(p.ShareSupply)
	return newPool
}

// Patcher constructs the next []PoolView by applying diff to prevState. prevState is
// not modified. The result is ordered by pool ID.
func Patcher(prevState []PoolView, diff ExchangeSystemDiff) ([]PoolView, error) {
	newStateMap := make(map[uint64]PoolView, len(prevState))
	for _, pool := range prevState {
		newStateMap[pool.ID] = pool.Clone()
	}

	for _, poolIDToDelete := range diff.Deletions {
		delete(newStateMap, poolIDToDelete)
	}

	for _, updatedPool := range diff.Updates {
		newStateMap[updatedPool.ID] = updatedPool.Clone()
	}

	for _, addedPool := range diff.Additions {
		newStateMap[addedPool.ID] = addedPool.Clone()
	}

	finalState := make([]PoolView, 0, len(newStateMap))
	for _, pool := range newStateMap {
		finalState = append(finalState, pool)
	}
	slices.SortFunc(finalState, func(a, b PoolView) int { return cmp.Compare(a.ID, b.ID) })

	return finalState, nil
}
