package exchange

import (
	"errors"
	"fmt"

	"github.com/defistate/sandman-swap/journal"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/protocols/exchange/calculator"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Display information of every exchange's liquidity share token.
const (
	ShareName     = "Sandman Swap"
	ShareSymbol   = "DREAM"
	ShareDecimals = 18
)

// Registry resolves the peer exchange of an asset for asset-to-asset swaps.
type Registry interface {
	Address() common.Address
	Lookup(asset common.Address) (*Exchange, error)
}

// Config holds the dependencies of an Exchange.
type Config struct {
	// Address is the exchange's own account. It also identifies its share token.
	Address common.Address
	// Asset is the ledger of the asset traded against the base currency.
	Asset ledger.AssetLedger
	// Base is the base currency ledger.
	Base     ledger.AssetLedger
	Registry Registry
	Journal  *journal.Journal
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address cannot be zero")
	}
	if c.Asset == nil {
		return errors.New("config: Asset cannot be nil")
	}
	if c.Base == nil {
		return errors.New("config: Base cannot be nil")
	}
	if c.Asset.Address() == c.Base.Address() {
		return errors.New("config: Asset and Base must differ")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Journal == nil {
		return errors.New("config: Journal cannot be nil")
	}
	return nil
}

// Exchange is a constant-product pool of one asset against the base currency. It
// issues liquidity shares, which are themselves a fungible token.
//
// The asset reserve is whatever the asset ledger reports for the exchange's account.
// The base reserve is tracked here: base deposited minus base withdrawn through pool
// operations.
//
// Every public mutation is all-or-nothing: on error the exchange reverts the journal
// to the position it had on entry. Exchange is NOT safe for concurrent use; callers
// serialize access to every ledger and exchange sharing the journal.
type Exchange struct {
	address  common.Address
	asset    ledger.AssetLedger
	base     ledger.AssetLedger
	registry Registry
	journal  *journal.Journal

	shares      *ledger.Token
	baseReserve *uint256.Int
}

// New creates an empty exchange.
func New(cfg *Config) (*Exchange, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Exchange{
		address:  cfg.Address,
		asset:    cfg.Asset,
		base:     cfg.Base,
		registry: cfg.Registry,
		journal:  cfg.Journal,
		shares: ledger.NewToken(cfg.Address, ledger.Metadata{
			Name:     ShareName,
			Symbol:   ShareSymbol,
			Decimals: ShareDecimals,
		}, cfg.Journal),
		baseReserve: new(uint256.Int),
	}, nil
}

// atomic reverts the journal to the current position if *err is set when the
// returned function runs. Use as: defer e.atomic(&err)()
func (e *Exchange) atomic(err *error) func() {
	snap := e.journal.Snapshot()
	return func() {
		if *err != nil {
			e.journal.RevertToSnapshot(snap)
		}
	}
}

// Asset returns the identifier of the traded asset.
func (e *Exchange) Asset() common.Address { return e.asset.Address() }

// Registry returns the address of the registry that created this exchange.
func (e *Exchange) Registry() common.Address { return e.registry.Address() }

// BaseReserve returns a copy of the base currency reserve.
func (e *Exchange) BaseReserve() *uint256.Int {
	return new(uint256.Int).Set(e.baseReserve)
}

// AssetReserve returns the asset ledger's balance of the exchange.
func (e *Exchange) AssetReserve() *uint256.Int {
	return e.asset.BalanceOf(e.address)
}

// Reserves returns copies of the base and asset reserves.
func (e *Exchange) Reserves() (base, asset *uint256.Int) {
	return e.BaseReserve(), e.AssetReserve()
}

func (e *Exchange) isEmpty() bool {
	return e.shares.TotalSupply().IsZero()
}

func (e *Exchange) setBaseReserve(v *uint256.Int) {
	prev := e.baseReserve
	e.baseReserve = v
	e.journal.Append(journal.RevertFunc(func() { e.baseReserve = prev }))
}

// checkPayer rejects the exchange's own account as a source of funds. Its balances
// back the reserves and move only through pool operations.
func (e *Exchange) checkPayer(payer common.Address) error {
	if payer == e.address {
		return fmt.Errorf("%w: exchange %s cannot act as its own payer", types.ErrInvalidRecipient, e.address)
	}
	return nil
}

func requirePositive(name string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: %s must be greater than zero", types.ErrInvalidAmount, name)
	}
	return nil
}

// --- Liquidity ---

// AddLiquidity deposits baseIn base currency and at most maxAssetIn of the asset from
// caller and mints liquidity shares to caller. The asset is pulled with a delegated
// transfer, so caller must have approved the exchange beforehand.
//
// The first deposit sets the price: exactly maxAssetIn is pulled and baseIn shares are
// minted, so maxAssetIn must be positive. Later deposits pull the asset amount that
// keeps the reserve ratio and fail with ErrSlippageExceeded if that amount exceeds
// maxAssetIn.
func (e *Exchange) AddLiquidity(caller common.Address, baseIn, maxAssetIn *uint256.Int) (minted *uint256.Int, err error) {
	defer e.atomic(&err)()

	if err := e.checkPayer(caller); err != nil {
		return nil, err
	}
	if err := requirePositive("baseIn", baseIn); err != nil {
		return nil, err
	}
	if maxAssetIn == nil {
		return nil, fmt.Errorf("%w: maxAssetIn is required", types.ErrInvalidAmount)
	}

	var (
		assetIn     *uint256.Int
		baseReserve *uint256.Int
		supply      = e.shares.TotalSupply()
	)

	if supply.IsZero() {
		if err := requirePositive("maxAssetIn", maxAssetIn); err != nil {
			return nil, err
		}
		assetIn = new(uint256.Int).Set(maxAssetIn)
		baseReserve = new(uint256.Int).Set(baseIn)
		minted = new(uint256.Int).Set(baseIn)
	} else {
		assetReserve := e.AssetReserve()
		assetIn, err = calculator.RequiredAsset(baseIn, e.baseReserve, assetReserve)
		if err != nil {
			return nil, err
		}
		if assetIn.Gt(maxAssetIn) {
			return nil, fmt.Errorf("%w: deposit requires %s asset, max is %s", types.ErrSlippageExceeded, assetIn, maxAssetIn)
		}
		minted, err = calculator.SharesToMint(baseIn, e.baseReserve, supply)
		if err != nil {
			return nil, err
		}
		if assetIn.IsZero() || minted.IsZero() {
			return nil, fmt.Errorf("%w: deposit of %s base is too small for reserves (%s, %s)", types.ErrInvalidAmount, baseIn, e.baseReserve, assetReserve)
		}
		var overflow bool
		baseReserve, overflow = new(uint256.Int).AddOverflow(e.baseReserve, baseIn)
		if overflow {
			return nil, fmt.Errorf("%w: base reserve", types.ErrArithmeticOverflow)
		}
	}

	if err = e.base.Transfer(caller, e.address, baseIn); err != nil {
		return nil, err
	}
	if err = e.asset.TransferFrom(e.address, caller, e.address, assetIn); err != nil {
		return nil, err
	}
	if err = e.shares.Mint(caller, minted); err != nil {
		return nil, err
	}
	e.setBaseReserve(baseReserve)
	return minted, nil
}

// RemoveLiquidity burns shares from caller and pays out the pro-rata part of both
// reserves. Redeeming every outstanding share empties the pool.
func (e *Exchange) RemoveLiquidity(caller common.Address, shares *uint256.Int) (baseOut, assetOut *uint256.Int, err error) {
	defer e.atomic(&err)()

	if err := e.checkPayer(caller); err != nil {
		return nil, nil, err
	}
	if err := requirePositive("shares", shares); err != nil {
		return nil, nil, err
	}
	balance := e.shares.BalanceOf(caller)
	if shares.Gt(balance) {
		return nil, nil, fmt.Errorf("%w: %s holds %s, redeeming %s", types.ErrInsufficientShares, caller, balance, shares)
	}

	supply := e.shares.TotalSupply()
	assetReserve := e.AssetReserve()
	if baseOut, err = calculator.ProRata(shares, e.baseReserve, supply); err != nil {
		return nil, nil, err
	}
	if assetOut, err = calculator.ProRata(shares, assetReserve, supply); err != nil {
		return nil, nil, err
	}

	if err = e.shares.Burn(caller, shares); err != nil {
		return nil, nil, err
	}
	e.setBaseReserve(new(uint256.Int).Sub(e.baseReserve, baseOut))
	if err = e.base.Transfer(e.address, caller, baseOut); err != nil {
		return nil, nil, err
	}
	if err = e.asset.Transfer(e.address, caller, assetOut); err != nil {
		return nil, nil, err
	}
	return baseOut, assetOut, nil
}

// --- Quotes ---

// QuoteBaseToAsset returns the asset bought by baseIn at current reserves.
func (e *Exchange) QuoteBaseToAsset(baseIn *uint256.Int) (*uint256.Int, error) {
	if e.isEmpty() {
		return nil, fmt.Errorf("%w: exchange %s", types.ErrEmptyPool, e.address)
	}
	return calculator.GetAmountOut(baseIn, e.baseReserve, e.AssetReserve())
}

// QuoteAssetToBase returns the base currency bought by assetIn at current reserves.
func (e *Exchange) QuoteAssetToBase(assetIn *uint256.Int) (*uint256.Int, error) {
	if e.isEmpty() {
		return nil, fmt.Errorf("%w: exchange %s", types.ErrEmptyPool, e.address)
	}
	return calculator.GetAmountOut(assetIn, e.AssetReserve(), e.baseReserve)
}

// QuoteBaseInForAssetOut returns the base currency needed to buy exactly assetOut.
func (e *Exchange) QuoteBaseInForAssetOut(assetOut *uint256.Int) (*uint256.Int, error) {
	if e.isEmpty() {
		return nil, fmt.Errorf("%w: exchange %s", types.ErrEmptyPool, e.address)
	}
	return calculator.GetAmountIn(assetOut, e.baseReserve, e.AssetReserve())
}

// QuoteAssetInForBaseOut returns the asset needed to buy exactly baseOut.
func (e *Exchange) QuoteAssetInForBaseOut(baseOut *uint256.Int) (*uint256.Int, error) {
	if e.isEmpty() {
		return nil, fmt.Errorf("%w: exchange %s", types.ErrEmptyPool, e.address)
	}
	return calculator.GetAmountIn(baseOut, e.AssetReserve(), e.baseReserve)
}

// --- Swaps ---

// SwapBaseForAsset sells baseIn base currency from caller for the asset.
func (e *Exchange) SwapBaseForAsset(caller common.Address, baseIn, minAssetOut *uint256.Int) (*uint256.Int, error) {
	return e.SwapBaseForAssetTo(caller, caller, baseIn, minAssetOut)
}

// SwapBaseForAssetTo sells baseIn base currency from payer and sends the bought asset
// to recipient. It fails with ErrSlippageExceeded when less than minAssetOut would be
// bought.
func (e *Exchange) SwapBaseForAssetTo(payer, recipient common.Address, baseIn, minAssetOut *uint256.Int) (assetOut *uint256.Int, err error) {
	defer e.atomic(&err)()

	if err := e.checkSwap(payer, recipient, baseIn, minAssetOut); err != nil {
		return nil, err
	}
	baseReserve, assetReserve := e.Reserves()

	if err = e.base.Transfer(payer, e.address, baseIn); err != nil {
		return nil, err
	}
	if assetOut, err = calculator.GetAmountOut(baseIn, baseReserve, assetReserve); err != nil {
		return nil, err
	}
	if assetOut.Lt(minAssetOut) {
		return nil, fmt.Errorf("%w: would buy %s asset, min is %s", types.ErrSlippageExceeded, assetOut, minAssetOut)
	}
	newBaseReserve, overflow := new(uint256.Int).AddOverflow(baseReserve, baseIn)
	if overflow {
		return nil, fmt.Errorf("%w: base reserve", types.ErrArithmeticOverflow)
	}
	if err = e.asset.Transfer(e.address, recipient, assetOut); err != nil {
		return nil, err
	}
	e.setBaseReserve(newBaseReserve)
	return assetOut, nil
}

// SwapAssetForBase sells assetIn of the asset from caller for base currency. The asset
// is pulled with a delegated transfer.
func (e *Exchange) SwapAssetForBase(caller common.Address, assetIn, minBaseOut *uint256.Int) (*uint256.Int, error) {
	return e.SwapAssetForBaseTo(caller, caller, assetIn, minBaseOut)
}

// SwapAssetForBaseTo sells assetIn of the asset from payer and sends the bought base
// currency to recipient.
func (e *Exchange) SwapAssetForBaseTo(payer, recipient common.Address, assetIn, minBaseOut *uint256.Int) (baseOut *uint256.Int, err error) {
	defer e.atomic(&err)()

	if err := e.checkSwap(payer, recipient, assetIn, minBaseOut); err != nil {
		return nil, err
	}
	if baseOut, err = e.sellAsset(payer, assetIn); err != nil {
		return nil, err
	}
	if baseOut.Lt(minBaseOut) {
		return nil, fmt.Errorf("%w: would buy %s base, min is %s", types.ErrSlippageExceeded, baseOut, minBaseOut)
	}
	if err = e.base.Transfer(e.address, recipient, baseOut); err != nil {
		return nil, err
	}
	return baseOut, nil
}

// SwapAssetForAsset sells assetIn of this exchange's asset from caller for otherAsset,
// routing the bought base currency through otherAsset's exchange.
func (e *Exchange) SwapAssetForAsset(caller common.Address, assetIn, minOtherOut *uint256.Int, otherAsset common.Address) (*uint256.Int, error) {
	return e.SwapAssetForAssetTo(caller, caller, assetIn, minOtherOut, otherAsset)
}

// SwapAssetForAssetTo sells assetIn from payer and has the peer exchange of otherAsset
// send the bought asset to recipient. Both legs commit or neither does; an error from
// the peer leg is returned unchanged.
func (e *Exchange) SwapAssetForAssetTo(payer, recipient common.Address, assetIn, minOtherOut *uint256.Int, otherAsset common.Address) (otherOut *uint256.Int, err error) {
	defer e.atomic(&err)()

	if otherAsset == (common.Address{}) || otherAsset == e.Asset() {
		return nil, fmt.Errorf("%w: cannot route %s through itself or the null asset (%s)", types.ErrInvalidAsset, e.Asset(), otherAsset)
	}
	peer, err := e.registry.Lookup(otherAsset)
	if err != nil {
		return nil, err
	}
	if err := e.checkSwap(payer, recipient, assetIn, minOtherOut); err != nil {
		return nil, err
	}

	baseBought, err := e.sellAsset(payer, assetIn)
	if err != nil {
		return nil, err
	}
	return peer.SwapBaseForAssetTo(e.address, recipient, baseBought, minOtherOut)
}

func (e *Exchange) checkSwap(payer, recipient common.Address, amountIn, minOut *uint256.Int) error {
	if err := e.checkPayer(payer); err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: swap output to the zero address", types.ErrInvalidRecipient)
	}
	if err := requirePositive("amountIn", amountIn); err != nil {
		return err
	}
	if minOut == nil {
		return fmt.Errorf("%w: minimum output is required", types.ErrInvalidAmount)
	}
	if e.isEmpty() {
		return fmt.Errorf("%w: exchange %s", types.ErrEmptyPool, e.address)
	}
	return nil
}

// sellAsset pulls assetIn from payer, prices it against the pre-trade reserves and
// takes the bought base out of the base reserve without paying it out.
func (e *Exchange) sellAsset(payer common.Address, assetIn *uint256.Int) (*uint256.Int, error) {
	baseReserve, assetReserve := e.Reserves()

	if err := e.asset.TransferFrom(e.address, payer, e.address, assetIn); err != nil {
		return nil, err
	}
	baseOut, err := calculator.GetAmountOut(assetIn, assetReserve, baseReserve)
	if err != nil {
		return nil, err
	}
	e.setBaseReserve(new(uint256.Int).Sub(baseReserve, baseOut))
	return baseOut, nil
}

// --- Share token ---

func (e *Exchange) Address() common.Address { return e.address }
func (e *Exchange) Name() string            { return e.shares.Name() }
func (e *Exchange) Symbol() string          { return e.shares.Symbol() }
func (e *Exchange) Decimals() uint8         { return e.shares.Decimals() }

// TotalSupply returns the outstanding liquidity shares.
func (e *Exchange) TotalSupply() *uint256.Int { return e.shares.TotalSupply() }

// BalanceOf returns account's liquidity shares.
func (e *Exchange) BalanceOf(account common.Address) *uint256.Int {
	return e.shares.BalanceOf(account)
}

func (e *Exchange) Allowance(owner, spender common.Address) *uint256.Int {
	return e.shares.Allowance(owner, spender)
}

func (e *Exchange) Transfer(from, to common.Address, amount *uint256.Int) error {
	return e.shares.Transfer(from, to, amount)
}

func (e *Exchange) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	return e.shares.TransferFrom(spender, from, to, amount)
}

func (e *Exchange) Approve(owner, spender common.Address, amount *uint256.Int) error {
	return e.shares.Approve(owner, spender, amount)
}

// Holders returns the number of accounts holding shares.
func (e *Exchange) Holders() int { return e.shares.Holders() }

var _ ledger.AssetLedger = (*Exchange)(nil)
