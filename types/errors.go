// Package types defines the error kinds shared by the ledger, the exchanges and the
// RPC surface.
package types

import "errors"

var (
	// Registry errors
	ErrInvalidAsset      = errors.New("invalid asset")
	ErrAlreadyRegistered = errors.New("asset already registered")
	ErrNotRegistered     = errors.New("asset not registered")

	// Pool errors
	ErrEmptyPool             = errors.New("pool is empty")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientShares    = errors.New("insufficient liquidity shares")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")

	// Ledger errors
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrUnknownAsset          = errors.New("unknown asset")

	// Arithmetic errors
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// KindUnknown is reported for errors that are not one of the sentinels above.
const KindUnknown = "Unknown"

// Application error codes live below the reserved JSON-RPC range.
const (
	CodeUnknown = -32000 - iota
	CodeInvalidAsset
	CodeAlreadyRegistered
	CodeNotRegistered
	CodeEmptyPool
	CodeInvalidAmount
	CodeInsufficientShares
	CodeSlippageExceeded
	CodeInsufficientLiquidity
	CodeInsufficientAllowance
	CodeInsufficientBalance
	CodeInvalidRecipient
	CodeUnknownAsset
	CodeArithmeticOverflow
)

type errorKind struct {
	name string
	code int
	err  error
}

var errorKinds = []errorKind{
	{"InvalidAsset", CodeInvalidAsset, ErrInvalidAsset},
	{"AlreadyRegistered", CodeAlreadyRegistered, ErrAlreadyRegistered},
	{"NotRegistered", CodeNotRegistered, ErrNotRegistered},
	{"EmptyPool", CodeEmptyPool, ErrEmptyPool},
	{"InvalidAmount", CodeInvalidAmount, ErrInvalidAmount},
	{"InsufficientShares", CodeInsufficientShares, ErrInsufficientShares},
	{"SlippageExceeded", CodeSlippageExceeded, ErrSlippageExceeded},
	{"InsufficientLiquidity", CodeInsufficientLiquidity, ErrInsufficientLiquidity},
	{"InsufficientAllowance", CodeInsufficientAllowance, ErrInsufficientAllowance},
	{"InsufficientBalance", CodeInsufficientBalance, ErrInsufficientBalance},
	{"InvalidRecipient", CodeInvalidRecipient, ErrInvalidRecipient},
	{"UnknownAsset", CodeUnknownAsset, ErrUnknownAsset},
	{"ArithmeticOverflow", CodeArithmeticOverflow, ErrArithmeticOverflow},
}

func lookup(err error) (errorKind, bool) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return errorKind{}, false
}

// Kind returns the stable name of the first sentinel wrapped by err.
func Kind(err error) string {
	if k, ok := lookup(err); ok {
		return k.name
	}
	return KindUnknown
}

// Code returns the JSON-RPC error code for err.
func Code(err error) int {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return CodeUnknown
}

// FromKind maps a kind name back to its sentinel. It returns nil for unknown kinds.
func FromKind(kind string) error {
	for _, k := range errorKinds {
		if k.name == kind {
			return k.err
		}
	}
	return nil
}
