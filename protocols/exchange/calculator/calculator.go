package calculator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/sandman-swap/types"
	"github.com/holiman/uint256"
)

var (
	// feeNumerator / feeDenominator is the share of the input that reaches the pool (0.3% fee).
	feeNumerator   = uint256.NewInt(997)
	feeDenominator = uint256.NewInt(1000)

	one = uint256.NewInt(1)

	// ErrNilAmount is returned when a nil pointer is passed for an amount or reserve.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
)

// Calculator holds reusable scratch values to avoid allocations during calculations.
// Instances are NOT safe for concurrent use by themselves; they are managed by calculatorPool.
type Calculator struct {
	amountInWithFee uint256.Int
	numerator       uint256.Int
	denominator     uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{}
	},
}

// GetAmountOut returns the output of a constant-product swap of amountIn against the
// given pre-trade reserves, net of the 0.3% input fee:
//
//	amountOut = amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, reserveIn, reserveOut)
}

// GetAmountIn returns the smallest input that yields at least amountOut against the
// given reserves.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, reserveIn, reserveOut)
}

func (c *Calculator) getAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: reserves (%s, %s)", types.ErrEmptyPool, reserveIn, reserveOut)
	}

	if _, overflow := c.amountInWithFee.MulOverflow(amountIn, feeNumerator); overflow {
		return nil, fmt.Errorf("%w: amountIn*997 (amountIn=%s)", types.ErrArithmeticOverflow, amountIn)
	}
	if _, overflow := c.numerator.MulOverflow(&c.amountInWithFee, reserveOut); overflow {
		return nil, fmt.Errorf("%w: amountIn*997*reserveOut (reserveOut=%s)", types.ErrArithmeticOverflow, reserveOut)
	}
	if _, overflow := c.denominator.MulOverflow(reserveIn, feeDenominator); overflow {
		return nil, fmt.Errorf("%w: reserveIn*1000 (reserveIn=%s)", types.ErrArithmeticOverflow, reserveIn)
	}
	if _, overflow := c.denominator.AddOverflow(&c.denominator, &c.amountInWithFee); overflow {
		return nil, fmt.Errorf("%w: swap denominator", types.ErrArithmeticOverflow)
	}

	return new(uint256.Int).Div(&c.numerator, &c.denominator), nil
}

func (c *Calculator) getAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: reserves (%s, %s)", types.ErrEmptyPool, reserveIn, reserveOut)
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", types.ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	if _, overflow := c.numerator.MulOverflow(reserveIn, amountOut); overflow {
		return nil, fmt.Errorf("%w: reserveIn*amountOut", types.ErrArithmeticOverflow)
	}
	if _, overflow := c.numerator.MulOverflow(&c.numerator, feeDenominator); overflow {
		return nil, fmt.Errorf("%w: reserveIn*amountOut*1000", types.ErrArithmeticOverflow)
	}
	c.denominator.Sub(reserveOut, amountOut)
	if _, overflow := c.denominator.MulOverflow(&c.denominator, feeNumerator); overflow {
		return nil, fmt.Errorf("%w: (reserveOut-amountOut)*997", types.ErrArithmeticOverflow)
	}

	// amountIn = (reserveIn * amountOut * 1000) / ((reserveOut - amountOut) * 997) + 1
	amountIn := new(uint256.Int).Div(&c.numerator, &c.denominator)
	if _, overflow := amountIn.AddOverflow(amountIn, one); overflow {
		return nil, fmt.Errorf("%w: amountIn", types.ErrArithmeticOverflow)
	}
	return amountIn, nil
}

// MulDiv returns floor(x*y/d), failing when x*y does not fit in 256 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if x == nil || y == nil || d == nil {
		return nil, ErrNilAmount
	}
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidState)
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s*%s", types.ErrArithmeticOverflow, x, y)
	}
	return product.Div(product, d), nil
}

// RequiredAsset returns the asset deposit that keeps the reserve ratio when baseIn is
// added to a non-empty pool.
func RequiredAsset(baseIn, baseReserve, assetReserve *uint256.Int) (*uint256.Int, error) {
	return MulDiv(baseIn, assetReserve, baseReserve)
}

// SharesToMint returns the liquidity shares owed for baseIn added to a non-empty pool.
func SharesToMint(baseIn, baseReserve, shareSupply *uint256.Int) (*uint256.Int, error) {
	return MulDiv(baseIn, shareSupply, baseReserve)
}

// ProRata returns the part of reserve that shares out of shareSupply are entitled to.
func ProRata(shares, reserve, shareSupply *uint256.Int) (*uint256.Int, error) {
	return MulDiv(shares, reserve, shareSupply)
}
