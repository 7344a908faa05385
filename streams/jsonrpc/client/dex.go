package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/protocols/tokenregistry"
	"github.com/defistate/sandman-swap/streams/jsonrpc/server"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// DexClient is a typed client of the dex namespace. Rejections carry their kind
// across the wire, so errors.Is works against the types sentinels.
type DexClient struct {
	rpc *rpc.Client
}

// DialDex connects to a dex endpoint over HTTP, websocket or IPC.
func DialDex(ctx context.Context, url string) (*DexClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewDexClient(c), nil
}

// NewDexClient wraps an existing connection.
func NewDexClient(c *rpc.Client) *DexClient {
	return &DexClient{rpc: c}
}

// Close closes the underlying connection.
func (d *DexClient) Close() { d.rpc.Close() }

func (d *DexClient) call(ctx context.Context, result any, method string, args ...any) error {
	return decodeError(d.rpc.CallContext(ctx, result, server.RpcNamespace+"_"+method, args...))
}

// decodeError restores the sentinel of a rejection from its error data.
func decodeError(err error) error {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}
	kind, ok := dataErr.ErrorData().(string)
	if !ok {
		return err
	}
	sentinel := types.FromKind(kind)
	if sentinel == nil {
		return err
	}
	return fmt.Errorf("%w (remote: %w)", sentinel, err)
}

// --- Ledgers ---

func (d *DexClient) Fund(ctx context.Context, account common.Address, amount *uint256.Int) error {
	return d.call(ctx, nil, "fund", account, amount)
}

func (d *DexClient) DeployToken(ctx context.Context, deployer common.Address, meta ledger.Metadata, supply *uint256.Int) (common.Address, error) {
	var addr common.Address
	err := d.call(ctx, &addr, "deployToken", deployer, meta, supply)
	return addr, err
}

func (d *DexClient) TransferBase(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return d.call(ctx, nil, "transferBase", from, to, amount)
}

func (d *DexClient) TransferAsset(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	return d.call(ctx, nil, "transferAsset", asset, from, to, amount)
}

func (d *DexClient) Approve(ctx context.Context, asset, owner, spender common.Address, amount *uint256.Int) error {
	return d.call(ctx, nil, "approve", asset, owner, spender, amount)
}

func (d *DexClient) BaseBalance(ctx context.Context, account common.Address) (*uint256.Int, error) {
	var bal uint256.Int
	if err := d.call(ctx, &bal, "baseBalance", account); err != nil {
		return nil, err
	}
	return &bal, nil
}

func (d *DexClient) AssetBalance(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	var bal uint256.Int
	if err := d.call(ctx, &bal, "assetBalance", asset, account); err != nil {
		return nil, err
	}
	return &bal, nil
}

func (d *DexClient) Allowance(ctx context.Context, asset, owner, spender common.Address) (*uint256.Int, error) {
	var a uint256.Int
	if err := d.call(ctx, &a, "allowance", asset, owner, spender); err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DexClient) Tokens(ctx context.Context) ([]tokenregistry.Token, error) {
	var tokens []tokenregistry.Token
	err := d.call(ctx, &tokens, "tokens")
	return tokens, err
}

// --- Exchanges ---

func (d *DexClient) CreateExchange(ctx context.Context, asset common.Address) (common.Address, error) {
	var addr common.Address
	err := d.call(ctx, &addr, "createExchange", asset)
	return addr, err
}

func (d *DexClient) GetExchange(ctx context.Context, asset common.Address) (common.Address, error) {
	var addr common.Address
	err := d.call(ctx, &addr, "getExchange", asset)
	return addr, err
}

func (d *DexClient) GetAsset(ctx context.Context, exchangeAddr common.Address) (common.Address, error) {
	var addr common.Address
	err := d.call(ctx, &addr, "getAsset", exchangeAddr)
	return addr, err
}

func (d *DexClient) Pool(ctx context.Context, asset common.Address) (exchange.PoolView, error) {
	var pool exchange.PoolView
	err := d.call(ctx, &pool, "pool", asset)
	return pool, err
}

func (d *DexClient) Pools(ctx context.Context) ([]exchange.PoolView, error) {
	var pools []exchange.PoolView
	err := d.call(ctx, &pools, "pools")
	return pools, err
}

func (d *DexClient) AddLiquidity(ctx context.Context, caller, asset common.Address, baseIn, maxAssetIn *uint256.Int) (*uint256.Int, error) {
	var minted uint256.Int
	if err := d.call(ctx, &minted, "addLiquidity", caller, asset, baseIn, maxAssetIn); err != nil {
		return nil, err
	}
	return &minted, nil
}

func (d *DexClient) RemoveLiquidity(ctx context.Context, caller, asset common.Address, shares *uint256.Int) (baseOut, assetOut *uint256.Int, err error) {
	var res server.LiquidityRemoved
	if err := d.call(ctx, &res, "removeLiquidity", caller, asset, shares); err != nil {
		return nil, nil, err
	}
	return res.BaseOut, res.AssetOut, nil
}

// SwapBaseForAsset pays the bought asset to recipient, or to caller when recipient
// is nil.
func (d *DexClient) SwapBaseForAsset(ctx context.Context, caller, asset common.Address, baseIn, minAssetOut *uint256.Int, recipient *common.Address) (*uint256.Int, error) {
	var out uint256.Int
	if err := d.call(ctx, &out, "swapBaseForAsset", caller, asset, baseIn, minAssetOut, recipient); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DexClient) SwapAssetForBase(ctx context.Context, caller, asset common.Address, assetIn, minBaseOut *uint256.Int, recipient *common.Address) (*uint256.Int, error) {
	var out uint256.Int
	if err := d.call(ctx, &out, "swapAssetForBase", caller, asset, assetIn, minBaseOut, recipient); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DexClient) SwapAssetForAsset(ctx context.Context, caller, asset, otherAsset common.Address, assetIn, minOtherOut *uint256.Int, recipient *common.Address) (*uint256.Int, error) {
	var out uint256.Int
	if err := d.call(ctx, &out, "swapAssetForAsset", caller, asset, otherAsset, assetIn, minOtherOut, recipient); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DexClient) quote(ctx context.Context, method string, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var q uint256.Int
	if err := d.call(ctx, &q, method, asset, amount); err != nil {
		return nil, err
	}
	return &q, nil
}

func (d *DexClient) QuoteBaseToAsset(ctx context.Context, asset common.Address, baseIn *uint256.Int) (*uint256.Int, error) {
	return d.quote(ctx, "quoteBaseToAsset", asset, baseIn)
}

func (d *DexClient) QuoteAssetToBase(ctx context.Context, asset common.Address, assetIn *uint256.Int) (*uint256.Int, error) {
	return d.quote(ctx, "quoteAssetToBase", asset, assetIn)
}

func (d *DexClient) QuoteBaseInForAssetOut(ctx context.Context, asset common.Address, assetOut *uint256.Int) (*uint256.Int, error) {
	return d.quote(ctx, "quoteBaseInForAssetOut", asset, assetOut)
}

func (d *DexClient) QuoteAssetInForBaseOut(ctx context.Context, asset common.Address, baseOut *uint256.Int) (*uint256.Int, error) {
	return d.quote(ctx, "quoteAssetInForBaseOut", asset, baseOut)
}

// --- Share tokens ---

func (d *DexClient) ShareBalance(ctx context.Context, exchangeAddr, account common.Address) (*uint256.Int, error) {
	var bal uint256.Int
	if err := d.call(ctx, &bal, "shareBalance", exchangeAddr, account); err != nil {
		return nil, err
	}
	return &bal, nil
}

func (d *DexClient) ShareAllowance(ctx context.Context, exchangeAddr, owner, spender common.Address) (*uint256.Int, error) {
	var a uint256.Int
	if err := d.call(ctx, &a, "shareAllowance", exchangeAddr, owner, spender); err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DexClient) TransferShares(ctx context.Context, exchangeAddr, from, to common.Address, amount *uint256.Int) error {
	return d.call(ctx, nil, "transferShares", exchangeAddr, from, to, amount)
}

func (d *DexClient) ApproveShares(ctx context.Context, exchangeAddr, owner, spender common.Address, amount *uint256.Int) error {
	return d.call(ctx, nil, "approveShares", exchangeAddr, owner, spender, amount)
}

func (d *DexClient) TransferSharesFrom(ctx context.Context, exchangeAddr, spender, from, to common.Address, amount *uint256.Int) error {
	return d.call(ctx, nil, "transferSharesFrom", exchangeAddr, spender, from, to, amount)
}

// Sequence returns the number of committed operations.
func (d *DexClient) Sequence(ctx context.Context) (uint64, error) {
	var seq uint64
	err := d.call(ctx, &seq, "sequence")
	return seq, err
}
