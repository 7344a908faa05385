// Package factory implements the exchange registry: at most one exchange per asset,
// created on request and never removed.
package factory

import (
	"errors"
	"fmt"

	"github.com/defistate/sandman-swap/journal"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LedgerResolver finds the ledger of an asset.
type LedgerResolver interface {
	Ledger(asset common.Address) (ledger.AssetLedger, bool)
}

// LedgerResolverFunc adapts a function to the LedgerResolver interface.
type LedgerResolverFunc func(asset common.Address) (ledger.AssetLedger, bool)

func (f LedgerResolverFunc) Ledger(asset common.Address) (ledger.AssetLedger, bool) { return f(asset) }

// Config holds the dependencies of a Factory.
type Config struct {
	// Address is the factory's account; exchange addresses derive from it.
	Address common.Address
	// Base is the base currency every exchange trades against.
	Base    ledger.AssetLedger
	Ledgers LedgerResolver
	Journal *journal.Journal
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address cannot be zero")
	}
	if c.Base == nil {
		return errors.New("config: Base cannot be nil")
	}
	if c.Ledgers == nil {
		return errors.New("config: Ledgers cannot be nil")
	}
	if c.Journal == nil {
		return errors.New("config: Journal cannot be nil")
	}
	return nil
}

// Factory is an arena of exchanges in creation order, indexed by asset and by
// exchange address. It is NOT safe for concurrent use.
type Factory struct {
	address common.Address
	base    ledger.AssetLedger
	ledgers LedgerResolver
	journal *journal.Journal

	exchanges       []*exchange.Exchange
	assetToIndex    map[common.Address]int
	exchangeToIndex map[common.Address]int
}

// New creates an empty factory.
func New(cfg *Config) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Factory{
		address:         cfg.Address,
		base:            cfg.Base,
		ledgers:         cfg.Ledgers,
		journal:         cfg.Journal,
		assetToIndex:    make(map[common.Address]int),
		exchangeToIndex: make(map[common.Address]int),
	}, nil
}

// Address returns the factory's account.
func (f *Factory) Address() common.Address { return f.address }

// Register creates the exchange for asset. The exchange's address is derived from the
// factory address and the number of exchanges created before it.
func (f *Factory) Register(asset common.Address) (*exchange.Exchange, error) {
	if asset == (common.Address{}) {
		return nil, fmt.Errorf("%w: null asset", types.ErrInvalidAsset)
	}
	if asset == f.base.Address() {
		return nil, fmt.Errorf("%w: %s is the base currency", types.ErrInvalidAsset, asset)
	}
	if _, exists := f.assetToIndex[asset]; exists {
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyRegistered, asset)
	}
	assetLedger, ok := f.ledgers.Ledger(asset)
	if !ok {
		return nil, fmt.Errorf("%w: no ledger for %s", types.ErrInvalidAsset, asset)
	}

	index := len(f.exchanges)
	ex, err := exchange.New(&exchange.Config{
		Address:  crypto.CreateAddress(f.address, uint64(index)),
		Asset:    assetLedger,
		Base:     f.base,
		Registry: f,
		Journal:  f.journal,
	})
	if err != nil {
		return nil, err
	}

	f.exchanges = append(f.exchanges, ex)
	f.assetToIndex[asset] = index
	f.exchangeToIndex[ex.Address()] = index
	f.journal.Append(journal.RevertFunc(func() {
		f.exchanges[index] = nil
		f.exchanges = f.exchanges[:index]
		delete(f.assetToIndex, asset)
		delete(f.exchangeToIndex, ex.Address())
	}))
	return ex, nil
}

// Lookup returns the exchange of asset.
func (f *Factory) Lookup(asset common.Address) (*exchange.Exchange, error) {
	index, ok := f.assetToIndex[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotRegistered, asset)
	}
	return f.exchanges[index], nil
}

// AssetOf returns the asset traded by the exchange at exchangeAddr.
func (f *Factory) AssetOf(exchangeAddr common.Address) (common.Address, error) {
	index, ok := f.exchangeToIndex[exchangeAddr]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: no exchange at %s", types.ErrNotRegistered, exchangeAddr)
	}
	return f.exchanges[index].Asset(), nil
}

// ExchangeAt returns the exchange at position index, if any.
func (f *Factory) ExchangeAt(index int) (*exchange.Exchange, bool) {
	if index < 0 || index >= len(f.exchanges) {
		return nil, false
	}
	return f.exchanges[index], true
}

// IndexOf returns the position of the exchange at exchangeAddr.
func (f *Factory) IndexOf(exchangeAddr common.Address) (int, bool) {
	index, ok := f.exchangeToIndex[exchangeAddr]
	return index, ok
}

// ExchangeCount returns the number of registered exchanges.
func (f *Factory) ExchangeCount() int { return len(f.exchanges) }

// Exchanges returns the exchanges in creation order.
func (f *Factory) Exchanges() []*exchange.Exchange {
	out := make([]*exchange.Exchange, len(f.exchanges))
	copy(out, f.exchanges)
	return out
}

// Views returns a snapshot of every exchange, ordered by ID.
func (f *Factory) Views() []exchange.PoolView {
	views := make([]exchange.PoolView, len(f.exchanges))
	for i, ex := range f.exchanges {
		views[i] = ex.View(uint64(i))
	}
	return views
}

var _ exchange.Registry = (*Factory)(nil)
