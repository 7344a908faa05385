package dex

import (
	"fmt"

	"github.com/defistate/sandman-swap/journal"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Operation names, recorded in engine.SequenceSummary.Operation.
const (
	OpFund               = "fund"
	OpDeployToken        = "deployToken"
	OpTransferBase       = "transferBase"
	OpTransferAsset      = "transferAsset"
	OpApprove            = "approve"
	OpCreateExchange     = "createExchange"
	OpAddLiquidity       = "addLiquidity"
	OpRemoveLiquidity    = "removeLiquidity"
	OpSwapBaseForAsset   = "swapBaseForAsset"
	OpSwapAssetForBase   = "swapAssetForBase"
	OpSwapAssetForAsset  = "swapAssetForAsset"
	OpTransferShares     = "transferShares"
	OpApproveShares      = "approveShares"
	OpTransferSharesFrom = "transferSharesFrom"
)

func requireAmount(name string, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: %s is required", types.ErrInvalidAmount, name)
	}
	return nil
}

func requirePositive(name string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: %s must be greater than zero", types.ErrInvalidAmount, name)
	}
	return nil
}

// requireAccount rejects an exchange account acting as role. Exchange balances back
// pool reserves and move only through pool operations. It MUST be called with mu
// held.
func (s *System) requireAccount(role string, account common.Address) error {
	if _, ok := s.factory.IndexOf(account); ok {
		return fmt.Errorf("%w: %s %s is an exchange account", types.ErrInvalidRecipient, role, account)
	}
	return nil
}

// exchangeAt resolves a share token by its exchange address. It MUST be called with
// mu held.
func (s *System) exchangeAt(exchangeAddr common.Address) (*exchange.Exchange, error) {
	index, ok := s.factory.IndexOf(exchangeAddr)
	if !ok {
		return nil, fmt.Errorf("%w: no exchange at %s", types.ErrNotRegistered, exchangeAddr)
	}
	ex, _ := s.factory.ExchangeAt(index)
	return ex, nil
}

// --- Ledgers ---

// Fund mints amount base currency to account. It stands in for the genesis
// allocation and for a development faucet.
func (s *System) Fund(account common.Address, amount *uint256.Int) error {
	return s.execute(OpFund, func() error {
		if err := requirePositive("amount", amount); err != nil {
			return err
		}
		return s.base.Mint(account, amount)
	})
}

// DeployToken creates a new asset ledger owned by deployer and mints supply to it.
// The token's address is derived from deployer and the number of tokens deployer
// created before.
func (s *System) DeployToken(deployer common.Address, meta ledger.Metadata, supply *uint256.Int) (common.Address, error) {
	var addr common.Address
	err := s.execute(OpDeployToken, func() error {
		if deployer == (common.Address{}) {
			return fmt.Errorf("%w: deployer cannot be the zero address", types.ErrInvalidRecipient)
		}
		if err := s.requireAccount("deployer", deployer); err != nil {
			return err
		}
		if err := requireAmount("supply", supply); err != nil {
			return err
		}

		nonce := s.nonces[deployer]
		addr = crypto.CreateAddress(deployer, nonce)
		if _, exists := s.tokenIndex[addr]; exists || addr == s.base.Address() {
			return fmt.Errorf("%w: token address %s is taken", types.ErrAlreadyRegistered, addr)
		}
		if _, exists := s.factory.IndexOf(addr); exists {
			return fmt.Errorf("%w: token address %s is taken", types.ErrAlreadyRegistered, addr)
		}

		s.nonces[deployer] = nonce + 1
		index := len(s.tokens)
		s.tokens = append(s.tokens, ledger.NewToken(addr, meta, s.journal))
		s.tokenIndex[addr] = index
		s.journal.Append(journal.RevertFunc(func() {
			s.tokens[index] = nil
			s.tokens = s.tokens[:index]
			delete(s.tokenIndex, addr)
			if nonce == 0 {
				delete(s.nonces, deployer)
			} else {
				s.nonces[deployer] = nonce
			}
		}))

		if supply.IsZero() {
			return nil
		}
		return s.tokens[index].Mint(deployer, supply)
	})
	if err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// TransferBase moves amount base currency from from to to.
func (s *System) TransferBase(from, to common.Address, amount *uint256.Int) error {
	return s.execute(OpTransferBase, func() error {
		if err := requireAmount("amount", amount); err != nil {
			return err
		}
		if err := s.requireAccount("sender", from); err != nil {
			return err
		}
		return s.base.Transfer(from, to, amount)
	})
}

// TransferAsset moves amount of asset from from to to.
func (s *System) TransferAsset(asset, from, to common.Address, amount *uint256.Int) error {
	return s.execute(OpTransferAsset, func() error {
		if err := requireAmount("amount", amount); err != nil {
			return err
		}
		if err := s.requireAccount("sender", from); err != nil {
			return err
		}
		tok, err := s.token(asset)
		if err != nil {
			return err
		}
		return tok.Transfer(from, to, amount)
	})
}

// Approve sets spender's allowance over owner's balance of asset.
func (s *System) Approve(asset, owner, spender common.Address, amount *uint256.Int) error {
	return s.execute(OpApprove, func() error {
		if err := requireAmount("amount", amount); err != nil {
			return err
		}
		if err := s.requireAccount("owner", owner); err != nil {
			return err
		}
		tok, err := s.token(asset)
		if err != nil {
			return err
		}
		return tok.Approve(owner, spender, amount)
	})
}

// --- Exchanges ---

// CreateExchange registers the exchange of asset and returns its address.
func (s *System) CreateExchange(asset common.Address) (common.Address, error) {
	var addr common.Address
	err := s.execute(OpCreateExchange, func() error {
		ex, err := s.factory.Register(asset)
		if err != nil {
			return err
		}
		addr = ex.Address()
		return nil
	})
	if err != nil {
		return common.Address{}, err
	}
	s.logger.Info("exchange created", "asset", asset, "exchange", addr)
	return addr, nil
}

// AddLiquidity deposits baseIn base currency and at most maxAssetIn of asset from
// caller into the exchange of asset and returns the shares minted.
func (s *System) AddLiquidity(caller, asset common.Address, baseIn, maxAssetIn *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := s.execute(OpAddLiquidity, func() error {
		if err := s.requireAccount("caller", caller); err != nil {
			return err
		}
		ex, err := s.factory.Lookup(asset)
		if err != nil {
			return err
		}
		minted, err = ex.AddLiquidity(caller, baseIn, maxAssetIn)
		return err
	})
	return minted, err
}

// RemoveLiquidity burns shares of caller in the exchange of asset and pays out the
// pro-rata reserves.
func (s *System) RemoveLiquidity(caller, asset common.Address, shares *uint256.Int) (baseOut, assetOut *uint256.Int, err error) {
	err = s.execute(OpRemoveLiquidity, func() error {
		if err := s.requireAccount("caller", caller); err != nil {
			return err
		}
		ex, err := s.factory.Lookup(asset)
		if err != nil {
			return err
		}
		baseOut, assetOut, err = ex.RemoveLiquidity(caller, shares)
		return err
	})
	return baseOut, assetOut, err
}

// SwapBaseForAsset sells baseIn base currency of caller for asset, paid to recipient.
func (s *System) SwapBaseForAsset(caller, recipient, asset common.Address, baseIn, minAssetOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.execute(OpSwapBaseForAsset, func() error {
		if err := s.requireAccount("caller", caller); err != nil {
			return err
		}
		ex, err := s.factory.Lookup(asset)
		if err != nil {
			return err
		}
		out, err = ex.SwapBaseForAssetTo(caller, recipient, baseIn, minAssetOut)
		return err
	})
	return out, err
}

// SwapAssetForBase sells assetIn of caller's asset for base currency, paid to
// recipient.
func (s *System) SwapAssetForBase(caller, recipient, asset common.Address, assetIn, minBaseOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.execute(OpSwapAssetForBase, func() error {
		if err := s.requireAccount("caller", caller); err != nil {
			return err
		}
		ex, err := s.factory.Lookup(asset)
		if err != nil {
			return err
		}
		out, err = ex.SwapAssetForBaseTo(caller, recipient, assetIn, minBaseOut)
		return err
	})
	return out, err
}

// SwapAssetForAsset sells assetIn of caller's asset for otherAsset through both
// exchanges, paid to recipient. Either both legs apply or neither does.
func (s *System) SwapAssetForAsset(caller, recipient, asset, otherAsset common.Address, assetIn, minOtherOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.execute(OpSwapAssetForAsset, func() error {
		if err := s.requireAccount("caller", caller); err != nil {
			return err
		}
		ex, err := s.factory.Lookup(asset)
		if err != nil {
			return err
		}
		out, err = ex.SwapAssetForAssetTo(caller, recipient, assetIn, minOtherOut, otherAsset)
		return err
	})
	return out, err
}

// --- Share tokens ---

// TransferShares moves amount liquidity shares of the exchange at exchangeAddr.
func (s *System) TransferShares(exchangeAddr, from, to common.Address, amount *uint256.Int) error {
	return s.execute(OpTransferShares, func() error {
		if err := requireAmount("amount", amount); err != nil {
			return err
		}
		if err := s.requireAccount("sender", from); err != nil {
			return err
		}
		ex, err := s.exchangeAt(exchangeAddr)
		if err != nil {
			return err
		}
		return ex.Transfer(from, to, amount)
	})
}

// ApproveShares sets spender's allowance over owner's shares of the exchange at
// exchangeAddr.
func (s *System) ApproveShares(exchangeAddr, owner, spender common.Address, amount *uint256.Int) error {
	return s.execute(OpApproveShares, func() error {
		if err := requireAmount("amount", amount); err != nil {
			return err
		}
		if err := s.requireAccount("owner", owner); err != nil {
			return err
		}
		ex, err := s.exchangeAt(exchangeAddr)
		if err != nil {
			return err
		}
		return ex.Approve(owner, spender, amount)
	})
}

// TransferSharesFrom moves amount shares of from, spending spender's allowance.
func (s *System) TransferSharesFrom(exchangeAddr, spender, from, to common.Address, amount *uint256.Int) error {
	return s.execute(OpTransferSharesFrom, func() error {
		if err := requireAmount("amount", amount); err != nil {
			return err
		}
		if err := s.requireAccount("spender", spender); err != nil {
			return err
		}
		if err := s.requireAccount("sender", from); err != nil {
			return err
		}
		ex, err := s.exchangeAt(exchangeAddr)
		if err != nil {
			return err
		}
		return ex.TransferFrom(spender, from, to, amount)
	})
}
