package tokenregistry

import "github.com/holiman/uint256"

type TokenSystemDiff struct {
	Additions []Token  `json:"additions,omitempty"`
	Updates   []Token  `json:"updates,omitempty"`
	Deletions []uint64 `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of the token system.
// The logic uses maps for O(1) average time complexity lookups.
func Differ(old, new []Token) TokenSystemDiff {
	oldTokensMap := make(map[uint64]Token, len(old))
	for _, token := range old {
		oldTokensMap[token.ID] = token
	}

	newTokensMap := make(map[uint64]Token, len(new))
	for _, token := range new {
		newTokensMap[token.ID] = token
	}

	var additions []Token
	var updates []Token
	var deletions []uint64

	for newID, newToken := range newTokensMap {
		oldToken, exists := oldTokensMap[newID]
		if !exists {
			additions = append(additions, newToken)
			continue
		}
		// Metadata is fixed at deployment; only supply and holders move.
		if !supplyEq(oldToken.TotalSupply, newToken.TotalSupply) ||
			oldToken.Holders != newToken.Holders {
			updates = append(updates, newToken)
		}
	}

	for oldID := range oldTokensMap {
		if _, exists := newTokensMap[oldID]; !exists {
			deletions = append(deletions, oldID)
		}
	}

	return TokenSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}

func supplyEq(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}
