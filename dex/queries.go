package dex

import (
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BaseAddress returns the address of the base currency.
func (s *System) BaseAddress() common.Address { return s.base.Address() }

// FactoryAddress returns the account exchange addresses are derived from.
func (s *System) FactoryAddress() common.Address { return s.factory.Address() }

// BaseBalance returns account's base currency balance.
func (s *System) BaseBalance(account common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.BalanceOf(account)
}

// AssetBalance returns account's balance of asset.
func (s *System) AssetBalance(asset, account common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, err := s.token(asset)
	if err != nil {
		return nil, err
	}
	return tok.BalanceOf(account), nil
}

// Allowance returns spender's allowance over owner's balance of asset.
func (s *System) Allowance(asset, owner, spender common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, err := s.token(asset)
	if err != nil {
		return nil, err
	}
	return tok.Allowance(owner, spender), nil
}

// ShareBalance returns account's liquidity shares in the exchange at exchangeAddr.
func (s *System) ShareBalance(exchangeAddr, account common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, err := s.exchangeAt(exchangeAddr)
	if err != nil {
		return nil, err
	}
	return ex.BalanceOf(account), nil
}

// ShareAllowance returns spender's allowance over owner's shares.
func (s *System) ShareAllowance(exchangeAddr, owner, spender common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, err := s.exchangeAt(exchangeAddr)
	if err != nil {
		return nil, err
	}
	return ex.Allowance(owner, spender), nil
}

// GetExchange returns the address of asset's exchange.
func (s *System) GetExchange(asset common.Address) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, err := s.factory.Lookup(asset)
	if err != nil {
		return common.Address{}, err
	}
	return ex.Address(), nil
}

// GetAsset returns the asset traded by the exchange at exchangeAddr.
func (s *System) GetAsset(exchangeAddr common.Address) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.factory.AssetOf(exchangeAddr)
}

// Pool returns a snapshot of asset's exchange.
func (s *System) Pool(asset common.Address) (exchange.PoolView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, err := s.factory.Lookup(asset)
	if err != nil {
		return exchange.PoolView{}, err
	}
	index, _ := s.factory.IndexOf(ex.Address())
	return ex.View(uint64(index)), nil
}

// Pools returns the exchanges as of the last committed operation, ordered by ID.
func (s *System) Pools() []exchange.PoolView {
	pools, _ := s.State().Protocols[ProtocolExchanges].Data.([]exchange.PoolView)
	out := make([]exchange.PoolView, len(pools))
	for i, p := range pools {
		out[i] = p.Clone()
	}
	return out
}

// Tokens returns the base currency followed by every deployed token, as of the last
// committed operation.
func (s *System) Tokens() []tokenregistry.Token {
	tokens, _ := s.State().Protocols[ProtocolTokens].Data.([]tokenregistry.Token)
	out := make([]tokenregistry.Token, len(tokens))
	for i, t := range tokens {
		out[i] = t.Clone()
	}
	return out
}

type quoteFunc func(ex *exchange.Exchange, amount *uint256.Int) (*uint256.Int, error)

func (s *System) quote(asset common.Address, amount *uint256.Int, fn quoteFunc) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	ex, err := s.factory.Lookup(asset)
	if err != nil {
		return nil, err
	}
	return fn(ex, amount)
}

// QuoteBaseToAsset prices selling baseIn base currency for asset.
func (s *System) QuoteBaseToAsset(asset common.Address, baseIn *uint256.Int) (*uint256.Int, error) {
	return s.quote(asset, baseIn, (*exchange.Exchange).QuoteBaseToAsset)
}

// QuoteAssetToBase prices selling assetIn of asset for base currency.
func (s *System) QuoteAssetToBase(asset common.Address, assetIn *uint256.Int) (*uint256.Int, error) {
	return s.quote(asset, assetIn, (*exchange.Exchange).QuoteAssetToBase)
}

// QuoteBaseInForAssetOut returns the base currency needed to buy exactly assetOut.
func (s *System) QuoteBaseInForAssetOut(asset common.Address, assetOut *uint256.Int) (*uint256.Int, error) {
	return s.quote(asset, assetOut, (*exchange.Exchange).QuoteBaseInForAssetOut)
}

// QuoteAssetInForBaseOut returns the asset needed to buy exactly baseOut.
func (s *System) QuoteAssetInForBaseOut(asset common.Address, baseOut *uint256.Int) (*uint256.Int, error) {
	return s.quote(asset, baseOut, (*exchange.Exchange).QuoteAssetInForBaseOut)
}
