package ledger

import (
	"fmt"

	"github.com/defistate/sandman-swap/journal"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is an in-memory fungible token whose every mutation is recorded in a journal.
// It is NOT safe for concurrent use.
type Token struct {
	address common.Address
	meta    Metadata
	journal *journal.Journal

	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

// NewToken creates an empty token. All mutations are recorded in j.
func NewToken(address common.Address, meta Metadata, j *journal.Journal) *Token {
	return &Token{
		address:     address,
		meta:        meta,
		journal:     j,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// NewNative creates the base currency ledger.
func NewNative(j *journal.Journal) *Token {
	return NewToken(NativeAddress, NativeMetadata, j)
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.meta.Name }
func (t *Token) Symbol() string          { return t.meta.Symbol }
func (t *Token) Decimals() uint8         { return t.meta.Decimals }
func (t *Token) Metadata() Metadata      { return t.meta }

// TotalSupply returns a copy of the outstanding supply.
func (t *Token) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(t.totalSupply)
}

// BalanceOf returns a copy of the account's balance.
func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Allowance returns a copy of spender's allowance over owner's balance.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

// Holders returns the number of accounts with a non-zero balance.
func (t *Token) Holders() int {
	return len(t.balances)
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer of %s to the zero address", types.ErrInvalidRecipient, t.meta.Symbol)
	}
	fromBalance := t.balanceRef(from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", types.ErrInsufficientBalance, from, fromBalance, t.meta.Symbol, amount)
	}
	if from == to {
		return nil
	}
	toBalance, overflow := new(uint256.Int).AddOverflow(t.balanceRef(to), amount)
	if overflow {
		return fmt.Errorf("%w: balance of %s", types.ErrArithmeticOverflow, to)
	}
	t.setBalance(from, new(uint256.Int).Sub(fromBalance, amount))
	t.setBalance(to, toBalance)
	return nil
}

func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	allowance := t.allowanceRef(from, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s may spend %s %s of %s, needs %s", types.ErrInsufficientAllowance, spender, allowance, t.meta.Symbol, from, amount)
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	// An allowance of 2^256-1 is unlimited and never decremented.
	if !allowance.Eq(maxUint256) {
		t.setAllowance(from, spender, new(uint256.Int).Sub(allowance, amount))
	}
	return nil
}

func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("%w: approval of the zero address", types.ErrInvalidRecipient)
	}
	t.setAllowance(owner, spender, new(uint256.Int).Set(amount))
	return nil
}

// Mint creates amount new units owned by to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint of %s to the zero address", types.ErrInvalidRecipient, t.meta.Symbol)
	}
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return fmt.Errorf("%w: total supply of %s", types.ErrArithmeticOverflow, t.meta.Symbol)
	}
	// balance <= supply, so the balance cannot overflow once the supply did not.
	t.setSupply(supply)
	t.setBalance(to, new(uint256.Int).Add(t.balanceRef(to), amount))
	return nil
}

// Burn destroys amount units owned by from.
func (t *Token) Burn(from common.Address, amount *uint256.Int) error {
	balance := t.balanceRef(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, burning %s", types.ErrInsufficientBalance, from, balance, t.meta.Symbol, amount)
	}
	t.setSupply(new(uint256.Int).Sub(t.totalSupply, amount))
	t.setBalance(from, new(uint256.Int).Sub(balance, amount))
	return nil
}

var maxUint256 = new(uint256.Int).SetAllOne()

// balanceRef returns the stored balance without copying. Callers must not mutate it.
func (t *Token) balanceRef(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return zero
}

func (t *Token) allowanceRef(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return zero
}

var zero = new(uint256.Int)

// setBalance stores v (taking ownership) and journals the previous value.
// Zero balances are removed so Holders stays accurate.
func (t *Token) setBalance(account common.Address, v *uint256.Int) {
	prev, existed := t.balances[account]
	if v.IsZero() {
		delete(t.balances, account)
	} else {
		t.balances[account] = v
	}
	t.journal.Append(journal.RevertFunc(func() {
		if existed {
			t.balances[account] = prev
		} else {
			delete(t.balances, account)
		}
	}))
}

func (t *Token) setAllowance(owner, spender common.Address, v *uint256.Int) {
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = spenders
	}
	prev, existed := spenders[spender]
	spenders[spender] = v
	t.journal.Append(journal.RevertFunc(func() {
		if existed {
			spenders[spender] = prev
		} else {
			delete(spenders, spender)
		}
	}))
}

func (t *Token) setSupply(v *uint256.Int) {
	prev := t.totalSupply
	t.totalSupply = v
	t.journal.Append(journal.RevertFunc(func() { t.totalSupply = prev }))
}
