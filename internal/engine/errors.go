package engine

import (
	"errors"
	"fmt"
)

// Engine failure kinds. Every failed operation leaves the ledger untouched;
// the dispatcher decides whether the enclosing transaction retries or aborts.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrImbalancedDeposit     = errors.New("deposit does not match pool ratio")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrPriceLimitExceeded    = errors.New("price limit exceeded")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidFeeConfig      = errors.New("invalid fee configuration")
	ErrPoolNotEmpty          = errors.New("pool not empty")
	ErrFarmNotDrained        = errors.New("farm not drained")
	ErrNothingToClaim        = errors.New("nothing to claim")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	ErrStateExists      = errors.New("global state already created")
	ErrStateNotFound    = errors.New("global state not created")
	ErrPoolExists       = errors.New("pool already exists for token pair")
	ErrPoolNotFound     = errors.New("pool not found")
	ErrProviderExists   = errors.New("provider already registered")
	ErrProviderNotFound = errors.New("provider not found")
	ErrFarmExists       = errors.New("farm already attached to pool")
	ErrFarmNotFound     = errors.New("no farm attached to pool")
	ErrIdenticalMints   = errors.New("pool tokens must differ")
)

// PriceLimitError carries the limit the trader supplied and the spot price
// the swap would have produced, both scaled by PriceScale.
type PriceLimitError struct {
	Limit       uint64
	ResultPrice uint64
	XToY        bool
}

func (e *PriceLimitError) Error() string {
	return fmt.Sprintf("price limit exceeded: resulting price %d crosses limit %d (xToY=%t)",
		e.ResultPrice, e.Limit, e.XToY)
}

func (e *PriceLimitError) Unwrap() error { return ErrPriceLimitExceeded }
