// Package server exposes the exchange over JSON-RPC under the "dex" namespace,
// including the full-then-diff state stream subscription.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/defistate/sandman-swap/dex"
	"github.com/defistate/sandman-swap/differ"
	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/protocols/tokenregistry"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

const (
	// RpcNamespace is the namespace every method is registered under.
	RpcNamespace                  = "dex"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Backend is the execution environment served over RPC.
type Backend interface {
	DeployToken(deployer common.Address, meta ledger.Metadata, supply *uint256.Int) (common.Address, error)
	Fund(account common.Address, amount *uint256.Int) error
	TransferBase(from, to common.Address, amount *uint256.Int) error
	TransferAsset(asset, from, to common.Address, amount *uint256.Int) error
	Approve(asset, owner, spender common.Address, amount *uint256.Int) error
	CreateExchange(asset common.Address) (common.Address, error)
	AddLiquidity(caller, asset common.Address, baseIn, maxAssetIn *uint256.Int) (*uint256.Int, error)
	RemoveLiquidity(caller, asset common.Address, shares *uint256.Int) (baseOut, assetOut *uint256.Int, err error)
	SwapBaseForAsset(caller, recipient, asset common.Address, baseIn, minAssetOut *uint256.Int) (*uint256.Int, error)
	SwapAssetForBase(caller, recipient, asset common.Address, assetIn, minBaseOut *uint256.Int) (*uint256.Int, error)
	SwapAssetForAsset(caller, recipient, asset, otherAsset common.Address, assetIn, minOtherOut *uint256.Int) (*uint256.Int, error)
	TransferShares(exchangeAddr, from, to common.Address, amount *uint256.Int) error
	ApproveShares(exchangeAddr, owner, spender common.Address, amount *uint256.Int) error
	TransferSharesFrom(exchangeAddr, spender, from, to common.Address, amount *uint256.Int) error

	BaseBalance(account common.Address) *uint256.Int
	AssetBalance(asset, account common.Address) (*uint256.Int, error)
	Allowance(asset, owner, spender common.Address) (*uint256.Int, error)
	ShareBalance(exchangeAddr, account common.Address) (*uint256.Int, error)
	ShareAllowance(exchangeAddr, owner, spender common.Address) (*uint256.Int, error)
	GetExchange(asset common.Address) (common.Address, error)
	GetAsset(exchangeAddr common.Address) (common.Address, error)
	Pool(asset common.Address) (exchange.PoolView, error)
	Pools() []exchange.PoolView
	Tokens() []tokenregistry.Token
	QuoteBaseToAsset(asset common.Address, baseIn *uint256.Int) (*uint256.Int, error)
	QuoteAssetToBase(asset common.Address, assetIn *uint256.Int) (*uint256.Int, error)
	QuoteBaseInForAssetOut(asset common.Address, assetOut *uint256.Int) (*uint256.Int, error)
	QuoteAssetInForBaseOut(asset common.Address, baseOut *uint256.Int) (*uint256.Int, error)
	Sequence() uint64
	SubscribeState(ch chan<- *engine.State) (*engine.State, event.Subscription)
}

// StateDiffer computes the delta between two committed states.
type StateDiffer interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// Config holds the dependencies of the RPC service.
type Config struct {
	Backend Backend
	Differ  StateDiffer
	Logger  Logger
	// BufferSize is the number of committed states queued per stream subscriber.
	BufferSize uint
	// Faucet registers dex_fund, which mints base currency on request.
	Faucet bool
}

func (c *Config) validate() error {
	if c.Backend == nil {
		return errors.New("config: Backend is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	return nil
}

// NewServer returns an rpc.Server with the dex namespace registered. The caller
// serves it over HTTP or websocket and stops it on shutdown.
func NewServer(cfg *Config) (*rpc.Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	srv := rpc.NewServer()
	api := &API{
		backend:    cfg.Backend,
		differ:     cfg.Differ,
		logger:     cfg.Logger,
		bufferSize: cfg.BufferSize,
	}
	if err := srv.RegisterName(RpcNamespace, api); err != nil {
		return nil, err
	}
	if cfg.Faucet {
		if err := srv.RegisterName(RpcNamespace, &FaucetAPI{backend: cfg.Backend}); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

// Error carries the kind of a rejected operation across the wire: the JSON-RPC error
// code identifies it numerically and the error data holds its name.
type Error struct {
	err error
}

func (e *Error) Error() string  { return e.err.Error() }
func (e *Error) Unwrap() error  { return e.err }
func (e *Error) ErrorCode() int { return types.Code(e.err) }
func (e *Error) ErrorData() any { return types.Kind(e.err) }

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &Error{err: err}
}

// SubscriptionEvent is the envelope of every state stream notification.
type SubscriptionEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"`
}

// LiquidityRemoved is the result of dex_removeLiquidity.
type LiquidityRemoved struct {
	BaseOut  *uint256.Int `json:"baseOut"`
	AssetOut *uint256.Int `json:"assetOut"`
}

// API is the dex namespace. Callers are identified by an explicit address.
type API struct {
	backend    Backend
	differ     StateDiffer
	logger     Logger
	bufferSize uint
}

// FaucetAPI adds dex_fund to the namespace on development deployments.
type FaucetAPI struct {
	backend Backend
}

func (f *FaucetAPI) Fund(account common.Address, amount *uint256.Int) error {
	return wrap(f.backend.Fund(account, amount))
}

func recipientOr(caller common.Address, recipient *common.Address) common.Address {
	if recipient == nil {
		return caller
	}
	return *recipient
}

// --- Ledgers ---

func (api *API) DeployToken(deployer common.Address, meta ledger.Metadata, supply *uint256.Int) (common.Address, error) {
	addr, err := api.backend.DeployToken(deployer, meta, supply)
	return addr, wrap(err)
}

func (api *API) TransferBase(from, to common.Address, amount *uint256.Int) error {
	return wrap(api.backend.TransferBase(from, to, amount))
}

func (api *API) TransferAsset(asset, from, to common.Address, amount *uint256.Int) error {
	return wrap(api.backend.TransferAsset(asset, from, to, amount))
}

func (api *API) Approve(asset, owner, spender common.Address, amount *uint256.Int) error {
	return wrap(api.backend.Approve(asset, owner, spender, amount))
}

func (api *API) BaseBalance(account common.Address) *uint256.Int {
	return api.backend.BaseBalance(account)
}

func (api *API) AssetBalance(asset, account common.Address) (*uint256.Int, error) {
	bal, err := api.backend.AssetBalance(asset, account)
	return bal, wrap(err)
}

func (api *API) Allowance(asset, owner, spender common.Address) (*uint256.Int, error) {
	a, err := api.backend.Allowance(asset, owner, spender)
	return a, wrap(err)
}

func (api *API) Tokens() []tokenregistry.Token {
	return api.backend.Tokens()
}

// --- Exchanges ---

func (api *API) CreateExchange(asset common.Address) (common.Address, error) {
	addr, err := api.backend.CreateExchange(asset)
	return addr, wrap(err)
}

func (api *API) GetExchange(asset common.Address) (common.Address, error) {
	addr, err := api.backend.GetExchange(asset)
	return addr, wrap(err)
}

func (api *API) GetAsset(exchangeAddr common.Address) (common.Address, error) {
	addr, err := api.backend.GetAsset(exchangeAddr)
	return addr, wrap(err)
}

func (api *API) Pool(asset common.Address) (*exchange.PoolView, error) {
	pool, err := api.backend.Pool(asset)
	if err != nil {
		return nil, wrap(err)
	}
	return &pool, nil
}

func (api *API) Pools() []exchange.PoolView {
	return api.backend.Pools()
}

func (api *API) AddLiquidity(caller, asset common.Address, baseIn, maxAssetIn *uint256.Int) (*uint256.Int, error) {
	minted, err := api.backend.AddLiquidity(caller, asset, baseIn, maxAssetIn)
	return minted, wrap(err)
}

func (api *API) RemoveLiquidity(caller, asset common.Address, shares *uint256.Int) (*LiquidityRemoved, error) {
	baseOut, assetOut, err := api.backend.RemoveLiquidity(caller, asset, shares)
	if err != nil {
		return nil, wrap(err)
	}
	return &LiquidityRemoved{BaseOut: baseOut, AssetOut: assetOut}, nil
}

// SwapBaseForAsset pays the bought asset to recipient, or to caller when omitted.
func (api *API) SwapBaseForAsset(caller, asset common.Address, baseIn, minAssetOut *uint256.Int, recipient *common.Address) (*uint256.Int, error) {
	out, err := api.backend.SwapBaseForAsset(caller, recipientOr(caller, recipient), asset, baseIn, minAssetOut)
	return out, wrap(err)
}

func (api *API) SwapAssetForBase(caller, asset common.Address, assetIn, minBaseOut *uint256.Int, recipient *common.Address) (*uint256.Int, error) {
	out, err := api.backend.SwapAssetForBase(caller, recipientOr(caller, recipient), asset, assetIn, minBaseOut)
	return out, wrap(err)
}

func (api *API) SwapAssetForAsset(caller, asset, otherAsset common.Address, assetIn, minOtherOut *uint256.Int, recipient *common.Address) (*uint256.Int, error) {
	out, err := api.backend.SwapAssetForAsset(caller, recipientOr(caller, recipient), asset, otherAsset, assetIn, minOtherOut)
	return out, wrap(err)
}

func (api *API) QuoteBaseToAsset(asset common.Address, baseIn *uint256.Int) (*uint256.Int, error) {
	q, err := api.backend.QuoteBaseToAsset(asset, baseIn)
	return q, wrap(err)
}

func (api *API) QuoteAssetToBase(asset common.Address, assetIn *uint256.Int) (*uint256.Int, error) {
	q, err := api.backend.QuoteAssetToBase(asset, assetIn)
	return q, wrap(err)
}

func (api *API) QuoteBaseInForAssetOut(asset common.Address, assetOut *uint256.Int) (*uint256.Int, error) {
	q, err := api.backend.QuoteBaseInForAssetOut(asset, assetOut)
	return q, wrap(err)
}

func (api *API) QuoteAssetInForBaseOut(asset common.Address, baseOut *uint256.Int) (*uint256.Int, error) {
	q, err := api.backend.QuoteAssetInForBaseOut(asset, baseOut)
	return q, wrap(err)
}

// --- Share tokens ---

func (api *API) ShareBalance(exchangeAddr, account common.Address) (*uint256.Int, error) {
	bal, err := api.backend.ShareBalance(exchangeAddr, account)
	return bal, wrap(err)
}

func (api *API) ShareAllowance(exchangeAddr, owner, spender common.Address) (*uint256.Int, error) {
	a, err := api.backend.ShareAllowance(exchangeAddr, owner, spender)
	return a, wrap(err)
}

func (api *API) TransferShares(exchangeAddr, from, to common.Address, amount *uint256.Int) error {
	return wrap(api.backend.TransferShares(exchangeAddr, from, to, amount))
}

func (api *API) ApproveShares(exchangeAddr, owner, spender common.Address, amount *uint256.Int) error {
	return wrap(api.backend.ApproveShares(exchangeAddr, owner, spender, amount))
}

func (api *API) TransferSharesFrom(exchangeAddr, spender, from, to common.Address, amount *uint256.Int) error {
	return wrap(api.backend.TransferSharesFrom(exchangeAddr, spender, from, to, amount))
}

// Sequence returns the number of committed operations.
func (api *API) Sequence() uint64 {
	return api.backend.Sequence()
}

// --- State stream ---

// SubscribeStateStream sends the current state as a "full" event, then one "diff"
// event per committed operation.
func (api *API) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	ch := make(chan *engine.State, api.bufferSize)
	last, sub := api.backend.SubscribeState(ch)
	go api.stream(notifier, rpcSub, ch, sub, last)

	return rpcSub, nil
}

func (api *API) stream(notifier *rpc.Notifier, rpcSub *rpc.Subscription, ch <-chan *engine.State, sub event.Subscription, last *engine.State) {
	defer sub.Unsubscribe()

	logger := api.logger
	if err := notify(notifier, rpcSub, EventTypeFull, last); err != nil {
		logger.Error("failed to send full state", "subscription", rpcSub.ID, "error", err)
		return
	}
	logger.Debug("state stream started", "subscription", rpcSub.ID, "sequence", last.Sequence.Number)

	for {
		select {
		case state := <-ch:
			diff, err := api.differ.Diff(last, state)
			if err != nil {
				// The subscriber resynchronizes from a full state.
				logger.Error("failed to diff state, sending full state", "sequence", state.Sequence.Number, "error", err)
				err = notify(notifier, rpcSub, EventTypeFull, state)
			} else {
				err = notify(notifier, rpcSub, EventTypeDiff, diff)
			}
			if err != nil {
				logger.Error("failed to send state", "subscription", rpcSub.ID, "error", err)
				return
			}
			last = state
		case err := <-sub.Err():
			if errors.Is(err, dex.ErrSubscriberLagging) {
				logger.Warn("state stream fell behind, closing", "subscription", rpcSub.ID, "sequence", last.Sequence.Number)
			} else if err != nil {
				logger.Error("state feed failed", "subscription", rpcSub.ID, "error", err)
			}
			return
		case <-rpcSub.Err():
			logger.Debug("state stream closed", "subscription", rpcSub.ID)
			return
		}
	}
}

func notify(notifier *rpc.Notifier, rpcSub *rpc.Subscription, eventType string, payload any) error {
	return notifier.Notify(rpcSub.ID, SubscriptionEvent{
		Type:    eventType,
		Payload: payload,
		SentAt:  time.Now().UnixNano(),
	})
}
