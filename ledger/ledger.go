// Package ledger provides the fungible asset ledgers the exchanges settle against.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeAddress is the conventional identifier of the base currency.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// AssetLedger is the authoritative balance map for one fungible asset.
//
// Amount arguments are never retained and returned amounts are copies; callers may
// mutate either freely. A failed call leaves the ledger untouched.
type AssetLedger interface {
	Address() common.Address
	BalanceOf(account common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int

	// Transfer moves amount from one account to another.
	Transfer(from, to common.Address, amount *uint256.Int) error
	// TransferFrom moves amount on behalf of from, consuming spender's allowance.
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	// Approve sets spender's allowance over owner's balance.
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

// Metadata is the display information of a token.
type Metadata struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// NativeMetadata describes the base currency.
var NativeMetadata = Metadata{Name: "Ether", Symbol: "ETH", Decimals: 18}
