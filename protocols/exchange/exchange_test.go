package exchange

import (
	"fmt"
	"testing"

	"github.com/defistate/sandman-swap/journal"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	provider = common.HexToAddress("0x1000000000000000000000000000000000000001")
	trader   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	other    = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func ether(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(1_000_000_000_000_000_000))
}

func mustDec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

var unlimited = new(uint256.Int).SetAllOne()

// mapRegistry is a minimal Registry backed by a map.
type mapRegistry struct {
	exchanges map[common.Address]*Exchange
}

func (r *mapRegistry) Address() common.Address {
	return common.HexToAddress("0xFAC7000000000000000000000000000000000000")
}

func (r *mapRegistry) Lookup(asset common.Address) (*Exchange, error) {
	ex, ok := r.exchanges[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotRegistered, asset)
	}
	return ex, nil
}

type testEnv struct {
	journal  *journal.Journal
	base     *ledger.Token
	registry *mapRegistry
	count    int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	j := journal.New()
	env := &testEnv{
		journal:  j,
		base:     ledger.NewNative(j),
		registry: &mapRegistry{exchanges: make(map[common.Address]*Exchange)},
	}
	for _, acct := range []common.Address{provider, trader, other} {
		require.NoError(t, env.base.Mint(acct, ether(1_000_000)))
	}
	j.Commit()
	return env
}

// newExchange deploys a token, funds the test accounts with it, approves the new
// exchange for everyone and registers it.
func (env *testEnv) newExchange(t *testing.T, symbol string) (*Exchange, *ledger.Token) {
	t.Helper()
	env.count++
	tokenAddr := common.BigToAddress(uint256.NewInt(uint64(0x7000 + env.count)).ToBig())
	exAddr := common.BigToAddress(uint256.NewInt(uint64(0xE000 + env.count)).ToBig())

	token := ledger.NewToken(tokenAddr, ledger.Metadata{Name: symbol, Symbol: symbol, Decimals: 18}, env.journal)
	ex, err := New(&Config{
		Address:  exAddr,
		Asset:    token,
		Base:     env.base,
		Registry: env.registry,
		Journal:  env.journal,
	})
	require.NoError(t, err)

	for _, acct := range []common.Address{provider, trader, other} {
		require.NoError(t, token.Mint(acct, ether(1_000_000)))
		require.NoError(t, token.Approve(acct, exAddr, unlimited))
	}
	env.registry.exchanges[tokenAddr] = ex
	env.journal.Commit()
	return ex, token
}

// snapshot captures every balance an operation could touch.
type snapshot struct {
	baseReserve, assetReserve, supply string
	balances                          map[string]string
}

func takeSnapshot(env *testEnv, exchanges []*Exchange, tokens []*ledger.Token) snapshot {
	s := snapshot{balances: make(map[string]string)}
	accounts := []common.Address{provider, trader, other}
	for _, ex := range exchanges {
		accounts = append(accounts, ex.Address())
		s.baseReserve += ex.BaseReserve().Dec() + "/"
		s.assetReserve += ex.AssetReserve().Dec() + "/"
		s.supply += ex.TotalSupply().Dec() + "/"
	}
	for _, acct := range accounts {
		s.balances["base:"+acct.Hex()] = env.base.BalanceOf(acct).Dec()
		for _, tok := range tokens {
			s.balances[tok.Symbol()+":"+acct.Hex()] = tok.BalanceOf(acct).Dec()
			for _, ex := range exchanges {
				s.balances[tok.Symbol()+":allowance:"+acct.Hex()+":"+ex.Address().Hex()] = tok.Allowance(acct, ex.Address()).Dec()
			}
		}
		for _, ex := range exchanges {
			s.balances["shares:"+ex.Address().Hex()+":"+acct.Hex()] = ex.BalanceOf(acct).Dec()
		}
	}
	return s
}

func TestNew_Config(t *testing.T) {
	env := newTestEnv(t)
	token := ledger.NewToken(common.HexToAddress("0x77"), ledger.Metadata{Symbol: "T"}, env.journal)

	testCases := []struct {
		name string
		cfg  Config
	}{
		{"zero address", Config{Asset: token, Base: env.base, Registry: env.registry, Journal: env.journal}},
		{"nil asset", Config{Address: other, Base: env.base, Registry: env.registry, Journal: env.journal}},
		{"nil base", Config{Address: other, Asset: token, Registry: env.registry, Journal: env.journal}},
		{"asset is base", Config{Address: other, Asset: env.base, Base: env.base, Registry: env.registry, Journal: env.journal}},
		{"nil registry", Config{Address: other, Asset: token, Base: env.base, Journal: env.journal}},
		{"nil journal", Config{Address: other, Asset: token, Base: env.base, Registry: env.registry}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(&tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestExchange_ShareTokenMetadata(t *testing.T) {
	env := newTestEnv(t)
	ex, token := env.newExchange(t, "SMPL1")

	assert.Equal(t, "Sandman Swap", ex.Name())
	assert.Equal(t, "DREAM", ex.Symbol())
	assert.Equal(t, uint8(18), ex.Decimals())
	assert.True(t, ex.TotalSupply().IsZero())
	assert.Equal(t, token.Address(), ex.Asset())
	assert.Equal(t, env.registry.Address(), ex.Registry())
}

func TestExchange_AddLiquidity(t *testing.T) {
	t.Run("initial deposit sets the price", func(t *testing.T) {
		env := newTestEnv(t)
		ex, token := env.newExchange(t, "SMPL1")

		minted, err := ex.AddLiquidity(provider, u(10), u(20))
		require.NoError(t, err)

		assert.Equal(t, uint64(10), minted.Uint64())
		assert.Equal(t, uint64(10), ex.TotalSupply().Uint64())
		assert.Equal(t, uint64(10), ex.BalanceOf(provider).Uint64())
		assert.Equal(t, uint64(10), ex.BaseReserve().Uint64())
		assert.Equal(t, uint64(20), ex.AssetReserve().Uint64())
		assert.Equal(t, uint64(10), env.base.BalanceOf(ex.Address()).Uint64())
		assert.Equal(t, uint64(20), token.BalanceOf(ex.Address()).Uint64())
	})

	t.Run("proportional second deposit", func(t *testing.T) {
		env := newTestEnv(t)
		ex, _ := env.newExchange(t, "SMPL1")

		_, err := ex.AddLiquidity(provider, u(10), u(20))
		require.NoError(t, err)

		minted, err := ex.AddLiquidity(provider, u(5), u(10))
		require.NoError(t, err)

		assert.Equal(t, uint64(5), minted.Uint64())
		assert.Equal(t, uint64(15), ex.TotalSupply().Uint64())
		assert.Equal(t, uint64(15), ex.BaseReserve().Uint64())
		assert.Equal(t, uint64(30), ex.AssetReserve().Uint64())
	})

	t.Run("second provider pulls only the required asset", func(t *testing.T) {
		env := newTestEnv(t)
		ex, token := env.newExchange(t, "SMPL1")

		_, err := ex.AddLiquidity(provider, u(10), u(20))
		require.NoError(t, err)

		before := token.BalanceOf(other)
		minted, err := ex.AddLiquidity(other, u(5), u(1000))
		require.NoError(t, err)

		assert.Equal(t, uint64(5), minted.Uint64())
		spent := new(uint256.Int).Sub(before, token.BalanceOf(other))
		assert.Equal(t, uint64(10), spent.Uint64(), "maxAssetIn is a bound, not the amount pulled")
	})

	testCases := []struct {
		name        string
		seed        bool
		caller      common.Address
		baseIn      *uint256.Int
		maxAssetIn  *uint256.Int
		expectedErr error
	}{
		{"zero base", false, provider, u(0), u(20), types.ErrInvalidAmount},
		{"nil base", false, provider, nil, u(20), types.ErrInvalidAmount},
		{"zero asset on empty pool", false, provider, u(10), u(0), types.ErrInvalidAmount},
		{"required asset above bound", true, provider, u(5), u(9), types.ErrSlippageExceeded},
		{"zero bound on seeded pool", true, provider, u(5), u(0), types.ErrSlippageExceeded},
		{"nil bound on seeded pool", true, provider, u(5), nil, types.ErrInvalidAmount},
		{"zero base on seeded pool", true, provider, u(0), u(9), types.ErrInvalidAmount},
		{"caller without base", false, common.HexToAddress("0xDEAD"), u(10), u(20), types.ErrInsufficientBalance},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ex, token := env.newExchange(t, "SMPL1")
			if tc.seed {
				_, err := ex.AddLiquidity(provider, u(10), u(20))
				require.NoError(t, err)
				env.journal.Commit()
			}
			before := takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token})

			_, err := ex.AddLiquidity(tc.caller, tc.baseIn, tc.maxAssetIn)
			require.ErrorIs(t, err, tc.expectedErr)

			assert.Equal(t, before, takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token}))
			assert.Equal(t, 0, env.journal.Len())
		})
	}

	t.Run("missing allowance reverts the base transfer", func(t *testing.T) {
		env := newTestEnv(t)
		ex, token := env.newExchange(t, "SMPL1")
		require.NoError(t, token.Approve(provider, ex.Address(), u(19)))
		env.journal.Commit()
		before := takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token})

		_, err := ex.AddLiquidity(provider, u(10), u(20))
		require.ErrorIs(t, err, types.ErrInsufficientAllowance)

		assert.Equal(t, before, takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token}))
	})
}

func TestExchange_RemoveLiquidity(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, *Exchange, *ledger.Token) {
		env := newTestEnv(t)
		ex, token := env.newExchange(t, "SMPL1")
		_, err := ex.AddLiquidity(provider, u(10), u(20))
		require.NoError(t, err)
		_, err = ex.AddLiquidity(provider, u(5), u(10))
		require.NoError(t, err)
		env.journal.Commit()
		return env, ex, token
	}

	t.Run("partial withdrawal", func(t *testing.T) {
		env, ex, token := setup(t)
		baseBefore := env.base.BalanceOf(provider)
		assetBefore := token.BalanceOf(provider)

		baseOut, assetOut, err := ex.RemoveLiquidity(provider, u(5))
		require.NoError(t, err)

		assert.Equal(t, uint64(5), baseOut.Uint64())
		assert.Equal(t, uint64(10), assetOut.Uint64())
		assert.Equal(t, uint64(10), ex.TotalSupply().Uint64())
		assert.Equal(t, uint64(10), ex.BaseReserve().Uint64())
		assert.Equal(t, uint64(20), ex.AssetReserve().Uint64())
		assert.Equal(t, new(uint256.Int).Add(baseBefore, u(5)), env.base.BalanceOf(provider))
		assert.Equal(t, new(uint256.Int).Add(assetBefore, u(10)), token.BalanceOf(provider))
	})

	t.Run("full withdrawal empties the pool", func(t *testing.T) {
		env, ex, _ := setup(t)

		baseOut, assetOut, err := ex.RemoveLiquidity(provider, u(15))
		require.NoError(t, err)

		assert.Equal(t, uint64(15), baseOut.Uint64())
		assert.Equal(t, uint64(30), assetOut.Uint64())
		assert.True(t, ex.TotalSupply().IsZero())
		assert.True(t, ex.BaseReserve().IsZero())
		assert.True(t, ex.AssetReserve().IsZero())
		assert.True(t, env.base.BalanceOf(ex.Address()).IsZero())

		_, err = ex.QuoteBaseToAsset(u(1))
		assert.ErrorIs(t, err, types.ErrEmptyPool)
	})

	t.Run("floors leave the remainder in the pool", func(t *testing.T) {
		env := newTestEnv(t)
		ex, _ := env.newExchange(t, "SMPL1")
		_, err := ex.AddLiquidity(provider, u(3), u(10))
		require.NoError(t, err)

		baseOut, assetOut, err := ex.RemoveLiquidity(provider, u(1))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), baseOut.Uint64())
		assert.Equal(t, uint64(3), assetOut.Uint64(), "floor(1*10/3)")
		assert.Equal(t, uint64(2), ex.BaseReserve().Uint64())
		assert.Equal(t, uint64(7), ex.AssetReserve().Uint64())

		baseOut, assetOut, err = ex.RemoveLiquidity(provider, u(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), baseOut.Uint64())
		assert.Equal(t, uint64(7), assetOut.Uint64())
		assert.True(t, ex.AssetReserve().IsZero())
	})

	testCases := []struct {
		name        string
		caller      common.Address
		shares      *uint256.Int
		expectedErr error
	}{
		{"zero shares", provider, u(0), types.ErrInvalidAmount},
		{"more than held", provider, u(16), types.ErrInsufficientShares},
		{"non holder", trader, u(1), types.ErrInsufficientShares},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, ex, token := setup(t)
			before := takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token})

			_, _, err := ex.RemoveLiquidity(tc.caller, tc.shares)
			require.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, before, takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token}))
		})
	}

	t.Run("empty pool", func(t *testing.T) {
		env := newTestEnv(t)
		ex, _ := env.newExchange(t, "SMPL1")
		_, _, err := ex.RemoveLiquidity(provider, u(1))
		assert.ErrorIs(t, err, types.ErrInsufficientShares)
	})
}

// seededExchange returns an exchange holding (base, asset) reserves in whole units.
func seededExchange(t *testing.T, env *testEnv, symbol string, base, asset uint64) (*Exchange, *ledger.Token) {
	t.Helper()
	ex, token := env.newExchange(t, symbol)
	_, err := ex.AddLiquidity(provider, ether(base), ether(asset))
	require.NoError(t, err)
	env.journal.Commit()
	return ex, token
}

func TestExchange_Quotes(t *testing.T) {
	env := newTestEnv(t)
	ex, _ := seededExchange(t, env, "SMPL1", 10, 500)

	assetOut, err := ex.QuoteBaseToAsset(ether(1))
	require.NoError(t, err)
	assert.Equal(t, "45330544694007456579", assetOut.Dec())

	baseOut, err := ex.QuoteAssetToBase(ether(100))
	require.NoError(t, err)
	assert.Equal(t, "1662497915624478906", baseOut.Dec())

	assetIn, err := ex.QuoteAssetInForBaseOut(ether(1))
	require.NoError(t, err)
	assert.Equal(t, "55722723726735762845", assetIn.Dec())

	baseIn, err := ex.QuoteBaseInForAssetOut(mustDec("45330544694007456579"))
	require.NoError(t, err)
	assert.Equal(t, ether(1).Dec(), baseIn.Dec())

	_, err = ex.QuoteBaseInForAssetOut(ether(500))
	assert.ErrorIs(t, err, types.ErrInsufficientLiquidity)

	empty, _ := env.newExchange(t, "EMPTY")
	for name, quote := range map[string]func(*uint256.Int) (*uint256.Int, error){
		"baseToAsset":    empty.QuoteBaseToAsset,
		"assetToBase":    empty.QuoteAssetToBase,
		"baseInForAsset": empty.QuoteBaseInForAssetOut,
		"assetInForBase": empty.QuoteAssetInForBaseOut,
	} {
		_, err := quote(u(1))
		assert.ErrorIs(t, err, types.ErrEmptyPool, name)
	}
}

func TestExchange_SwapBaseForAsset(t *testing.T) {
	t.Run("buys the quoted amount", func(t *testing.T) {
		env := newTestEnv(t)
		ex, token := seededExchange(t, env, "SMPL1", 10, 500)
		assetBefore := token.BalanceOf(trader)
		baseBefore := env.base.BalanceOf(trader)

		assetOut, err := ex.SwapBaseForAsset(trader, ether(1), mustDec("45330544694007456579"))
		require.NoError(t, err)

		assert.Equal(t, "45330544694007456579", assetOut.Dec())
		assert.Equal(t, ether(11).Dec(), ex.BaseReserve().Dec())
		assert.Equal(t, "454669455305992543421", ex.AssetReserve().Dec())
		assert.Equal(t, new(uint256.Int).Add(assetBefore, assetOut), token.BalanceOf(trader))
		assert.Equal(t, new(uint256.Int).Sub(baseBefore, ether(1)), env.base.BalanceOf(trader))
	})

	t.Run("recipient variant pays someone else", func(t *testing.T) {
		env := newTestEnv(t)
		ex, token := seededExchange(t, env, "SMPL1", 10, 500)
		otherBefore := token.BalanceOf(other)

		assetOut, err := ex.SwapBaseForAssetTo(trader, other, ether(1), u(0))
		require.NoError(t, err)
		assert.Equal(t, new(uint256.Int).Add(otherBefore, assetOut), token.BalanceOf(other))
	})

	testCases := []struct {
		name        string
		seed        bool
		recipient   common.Address
		baseIn      *uint256.Int
		minOut      *uint256.Int
		expectedErr error
	}{
		{"empty pool", false, trader, ether(1), u(0), types.ErrEmptyPool},
		{"zero input", true, trader, u(0), u(0), types.ErrInvalidAmount},
		{"slippage", true, trader, ether(1), mustDec("45330544694007456580"), types.ErrSlippageExceeded},
		{"zero recipient", true, common.Address{}, ether(1), u(0), types.ErrInvalidRecipient},
		{"insufficient base", true, trader, ether(2_000_000), u(0), types.ErrInsufficientBalance},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			var ex *Exchange
			var token *ledger.Token
			if tc.seed {
				ex, token = seededExchange(t, env, "SMPL1", 10, 500)
			} else {
				ex, token = env.newExchange(t, "SMPL1")
			}
			before := takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token})

			_, err := ex.SwapBaseForAssetTo(trader, tc.recipient, tc.baseIn, tc.minOut)
			require.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, before, takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token}))
		})
	}
}

func TestExchange_SwapAssetForBase(t *testing.T) {
	t.Run("sells at pre-trade reserves", func(t *testing.T) {
		env := newTestEnv(t)
		ex, _ := seededExchange(t, env, "SMPL1", 10, 500)
		baseBefore := env.base.BalanceOf(trader)

		baseOut, err := ex.SwapAssetForBase(trader, ether(100), u(0))
		require.NoError(t, err)

		assert.Equal(t, "1662497915624478906", baseOut.Dec())
		assert.Equal(t, "8337502084375521094", ex.BaseReserve().Dec())
		assert.Equal(t, ether(600).Dec(), ex.AssetReserve().Dec())
		assert.Equal(t, new(uint256.Int).Add(baseBefore, baseOut), env.base.BalanceOf(trader))
		assert.Equal(t, ex.BaseReserve(), env.base.BalanceOf(ex.Address()))
	})

	t.Run("exact output from the harness", func(t *testing.T) {
		env := newTestEnv(t)
		ex, _ := seededExchange(t, env, "SMPL1", 10, 500)

		baseOut, err := ex.SwapAssetForBase(trader, mustDec("55722723726735762845"), ether(1))
		require.NoError(t, err)
		assert.Equal(t, ether(1).Dec(), baseOut.Dec())
	})

	testCases := []struct {
		name        string
		seed        bool
		assetIn     *uint256.Int
		minOut      *uint256.Int
		expectedErr error
	}{
		{"empty pool", false, ether(1), u(0), types.ErrEmptyPool},
		{"zero input", true, u(0), u(0), types.ErrInvalidAmount},
		{"nil bound", true, ether(1), nil, types.ErrInvalidAmount},
		{"slippage", true, ether(100), mustDec("1662497915624478907"), types.ErrSlippageExceeded},
		{"insufficient asset", true, ether(2_000_000), u(0), types.ErrInsufficientBalance},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			var ex *Exchange
			var token *ledger.Token
			if tc.seed {
				ex, token = seededExchange(t, env, "SMPL1", 10, 500)
			} else {
				ex, token = env.newExchange(t, "SMPL1")
			}
			before := takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token})

			_, err := ex.SwapAssetForBase(trader, tc.assetIn, tc.minOut)
			require.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, before, takeSnapshot(env, []*Exchange{ex}, []*ledger.Token{token}))
		})
	}

	t.Run("revoked allowance", func(t *testing.T) {
		env := newTestEnv(t)
		ex, token := seededExchange(t, env, "SMPL1", 10, 500)
		require.NoError(t, token.Approve(trader, ex.Address(), u(0)))
		env.journal.Commit()

		_, err := ex.SwapAssetForBase(trader, ether(1), u(0))
		assert.ErrorIs(t, err, types.ErrInsufficientAllowance)
	})
}

func TestExchange_SwapAssetForAsset(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, *Exchange, *ledger.Token, *Exchange, *ledger.Token) {
		env := newTestEnv(t)
		exA, tokenA := seededExchange(t, env, "SMPL1", 10, 500)
		exB, tokenB := seededExchange(t, env, "SMPL2", 10, 20)
		return env, exA, tokenA, exB, tokenB
	}

	t.Run("routes through the base currency", func(t *testing.T) {
		env, exA, tokenA, exB, tokenB := setup(t)
		traderBase := env.base.BalanceOf(trader)
		traderA := tokenA.BalanceOf(trader)
		traderB := tokenB.BalanceOf(trader)

		out, err := exA.SwapAssetForAsset(trader, ether(100), u(0), tokenB.Address())
		require.NoError(t, err)

		assert.Equal(t, "2843678215834080602", out.Dec())
		assert.Equal(t, "8337502084375521094", exA.BaseReserve().Dec())
		assert.Equal(t, ether(600).Dec(), exA.AssetReserve().Dec())
		assert.Equal(t, "11662497915624478906", exB.BaseReserve().Dec())
		assert.Equal(t, new(uint256.Int).Sub(ether(20), out).Dec(), exB.AssetReserve().Dec())

		assert.Equal(t, traderBase, env.base.BalanceOf(trader), "the base leg never reaches the trader")
		assert.Equal(t, new(uint256.Int).Sub(traderA, ether(100)), tokenA.BalanceOf(trader))
		assert.Equal(t, new(uint256.Int).Add(traderB, out), tokenB.BalanceOf(trader))
		assert.Equal(t, exA.BaseReserve(), env.base.BalanceOf(exA.Address()))
		assert.Equal(t, exB.BaseReserve(), env.base.BalanceOf(exB.Address()))
	})

	t.Run("recipient variant", func(t *testing.T) {
		_, exA, _, _, tokenB := setup(t)
		otherB := tokenB.BalanceOf(other)

		out, err := exA.SwapAssetForAssetTo(trader, other, ether(100), u(0), tokenB.Address())
		require.NoError(t, err)
		assert.Equal(t, new(uint256.Int).Add(otherB, out), tokenB.BalanceOf(other))
	})

	t.Run("failing second leg reverts the first", func(t *testing.T) {
		env, exA, tokenA, exB, tokenB := setup(t)
		before := takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB})

		_, err := exA.SwapAssetForAsset(trader, ether(100), mustDec("2843678215834080603"), tokenB.Address())
		require.ErrorIs(t, err, types.ErrSlippageExceeded)

		assert.Equal(t, before, takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB}))
		assert.Equal(t, 0, env.journal.Len())
	})

	t.Run("empty peer reverts the first leg", func(t *testing.T) {
		env := newTestEnv(t)
		exA, tokenA := seededExchange(t, env, "SMPL1", 10, 500)
		exB, tokenB := env.newExchange(t, "SMPL2")
		before := takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB})

		_, err := exA.SwapAssetForAsset(trader, ether(100), u(0), tokenB.Address())
		require.ErrorIs(t, err, types.ErrEmptyPool)

		assert.Equal(t, before, takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB}))
	})

	t.Run("invalid routes", func(t *testing.T) {
		env, exA, tokenA, exB, tokenB := setup(t)
		before := takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB})

		_, err := exA.SwapAssetForAsset(trader, ether(1), u(0), tokenA.Address())
		assert.ErrorIs(t, err, types.ErrInvalidAsset)

		_, err = exA.SwapAssetForAsset(trader, ether(1), u(0), common.Address{})
		assert.ErrorIs(t, err, types.ErrInvalidAsset)

		_, err = exA.SwapAssetForAsset(trader, ether(1), u(0), common.HexToAddress("0xBEEF"))
		assert.ErrorIs(t, err, types.ErrNotRegistered)

		assert.Equal(t, before, takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB}))
	})
}

func TestExchange_OwnAccountCannotPay(t *testing.T) {
	env := newTestEnv(t)
	exA, tokenA := seededExchange(t, env, "SMPL1", 10, 500)
	exB, tokenB := seededExchange(t, env, "SMPL2", 10, 20)
	self := exA.Address()
	before := takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB})

	calls := map[string]func() error{
		"swap base for asset": func() error { _, err := exA.SwapBaseForAssetTo(self, trader, ether(10), u(0)); return err },
		"swap asset for base": func() error { _, err := exA.SwapAssetForBaseTo(self, trader, ether(1), u(0)); return err },
		"swap asset for asset": func() error {
			_, err := exA.SwapAssetForAssetTo(self, trader, ether(1), u(0), tokenB.Address())
			return err
		},
		"add liquidity":    func() error { _, err := exA.AddLiquidity(self, ether(1), ether(100)); return err },
		"remove liquidity": func() error { _, _, err := exA.RemoveLiquidity(self, u(1)); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), types.ErrInvalidRecipient)
			assert.Equal(t, before, takeSnapshot(env, []*Exchange{exA, exB}, []*ledger.Token{tokenA, tokenB}))
		})
	}

	// The reserves still back every share.
	baseOut, assetOut, err := exA.RemoveLiquidity(provider, exA.TotalSupply())
	require.NoError(t, err)
	assert.Equal(t, ether(10), baseOut)
	assert.Equal(t, ether(500), assetOut)
	assert.True(t, env.base.BalanceOf(self).IsZero())
	assert.True(t, exA.BaseReserve().IsZero())
}

func TestExchange_ShareTransfers(t *testing.T) {
	env := newTestEnv(t)
	ex, token := env.newExchange(t, "SMPL1")
	_, err := ex.AddLiquidity(provider, u(10), u(20))
	require.NoError(t, err)

	require.NoError(t, ex.Transfer(provider, trader, u(4)))
	assert.Equal(t, uint64(6), ex.BalanceOf(provider).Uint64())
	assert.Equal(t, uint64(4), ex.BalanceOf(trader).Uint64())
	assert.Equal(t, 2, ex.Holders())

	require.NoError(t, ex.Approve(trader, other, u(2)))
	require.NoError(t, ex.TransferFrom(other, trader, other, u(2)))
	assert.Equal(t, uint64(0), ex.Allowance(trader, other).Uint64())
	assert.ErrorIs(t, ex.TransferFrom(other, trader, other, u(1)), types.ErrInsufficientAllowance)

	// Transferred shares redeem like any others.
	assetBefore := token.BalanceOf(other)
	baseOut, assetOut, err := ex.RemoveLiquidity(other, u(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), baseOut.Uint64())
	assert.Equal(t, uint64(4), assetOut.Uint64())
	assert.Equal(t, new(uint256.Int).Add(assetBefore, u(4)), token.BalanceOf(other))
	assert.Equal(t, uint64(8), ex.TotalSupply().Uint64())
}

func TestExchange_View(t *testing.T) {
	env := newTestEnv(t)
	ex, token := seededExchange(t, env, "SMPL1", 10, 500)

	view := ex.View(7)
	assert.Equal(t, uint64(7), view.ID)
	assert.Equal(t, ex.Address(), view.Exchange)
	assert.Equal(t, token.Address(), view.Asset)
	assert.Equal(t, ether(10).Dec(), view.BaseReserve.Dec())
	assert.Equal(t, ether(500).Dec(), view.AssetReserve.Dec())
	assert.Equal(t, ether(10).Dec(), view.ShareSupply.Dec())
	assert.Equal(t, 1, view.Holders)

	// The view is detached from the live exchange.
	view.BaseReserve.SetUint64(0)
	assert.Equal(t, ether(10).Dec(), ex.BaseReserve().Dec())
}
