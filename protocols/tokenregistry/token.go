// Package tokenregistry carries snapshots of the deployed asset tokens and the base
// currency through the state stream.
package tokenregistry

import (
	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Schema is the decode contract for a []Token.
const Schema engine.ProtocolSchema = "sandman/tokenregistry/Token@v1"

// Token is a safe, structured representation of a token's data for external use.
type Token struct {
	ID          uint64         `json:"id"`
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
	Holders     int            `json:"holders"`
}

// FromLedger snapshots t. id is the token's position in deployment order.
func FromLedger(id uint64, t *ledger.Token) Token {
	return Token{
		ID:          id,
		Address:     t.Address(),
		Name:        t.Name(),
		Symbol:      t.Symbol(),
		Decimals:    t.Decimals(),
		TotalSupply: t.TotalSupply(),
		Holders:     t.Holders(),
	}
}
