package tokenregistry

import (
	"cmp"
	"slices"

	"github.com/holiman/uint256"
)

// Clone returns a Token with its own memory for the supply.
func (t Token) Clone() Token {
	if t.TotalSupply != nil {
		t.TotalSupply = new(uint256.Int).Set(t.TotalSupply)
	}
	return t
}

// Patcher constructs a new state for the token system by applying a diff to a
// previous state. prevState is not modified. The result is ordered by token ID.
func Patcher(prevState []Token, diff TokenSystemDiff) ([]Token, error) {
	newStateMap := make(map[uint64]Token, len(prevState))
	for _, token := range prevState {
		newStateMap[token.ID] = token.Clone()
	}

	for _, tokenIDToDelete := range diff.Deletions {
		delete(newStateMap, tokenIDToDelete)
	}

	for _, updatedToken := range diff.Updates {
		newStateMap[updatedToken.ID] = updatedToken.Clone()
	}

	for _, addedToken := range diff.Additions {
		newStateMap[addedToken.ID] = addedToken.Clone()
	}

	finalState := make([]Token, 0, len(newStateMap))
	for _, token := range newStateMap {
		finalState = append(finalState, token)
	}
	slices.SortFunc(finalState, func(a, b Token) int { return cmp.Compare(a.ID, b.ID) })

	return finalState, nil
}
