package exchange

import (
	"github.com/defistate/sandman-swap/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Schema is the decode contract for a []PoolView.
const Schema engine.ProtocolSchema = "sandman/exchange/PoolView@v1"

// PoolView is a safe, structured snapshot of one exchange for external use.
type PoolView struct {
	ID           uint64         `json:"id"`
	Exchange     common.Address `json:"exchange"`
	Asset        common.Address `json:"asset"`
	BaseReserve  *uint256.Int   `json:"baseReserve"`
	AssetReserve *uint256.Int   `json:"assetReserve"`
	ShareSupply  *uint256.Int   `json:"shareSupply"`
	Holders      int            `json:"holders"`
}

// View returns a snapshot of the exchange. id is the exchange's position in its registry.
func (e *Exchange) View(id uint64) PoolView {
	return PoolView{
		ID:           id,
		Exchange:     e.address,
		Asset:        e.Asset(),
		BaseReserve:  e.BaseReserve(),
		AssetReserve: e.AssetReserve(),
		ShareSupply:  e.TotalSupply(),
		Holders:      e.Holders(),
	}
}
