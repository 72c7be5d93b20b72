package engine

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"github.com/mercantiswap/pool-engine/internal/fixedpoint"
)

// Swap trades deltaIn of one pool token for the other along the
// constant-product curve. The fee is extracted from the input before
// pricing; the payout is exact integer division on the invariant quotient,
// and the fee is split across the four buckets. priceLimit (scaled by
// PriceScale, 0 = no limit) is the sole slippage protection: the swap fails
// if the resulting spot price crosses it in the direction adverse to the
// trader.
//
// All validation happens before any state is touched; a failure leaves the
// pool exactly as it was.
func (l *Ledger) Swap(poolAddr solana.PublicKey, deltaIn, priceLimit uint64, xToY bool) (*SwapEffect, error) {
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if deltaIn == 0 {
		return nil, fmt.Errorf("%w: swap input must be positive", ErrInvalidAmount)
	}
	if pool.ReserveX == 0 || pool.ReserveY == 0 {
		return nil, ErrInsufficientLiquidity
	}

	reserveIn, reserveOut := pool.ReserveX, pool.ReserveY
	if !xToY {
		reserveIn, reserveOut = pool.ReserveY, pool.ReserveX
	}

	totalFeeBps := pool.Fees.Total()
	feeAmount, err := fixedpoint.Bps(deltaIn, totalFeeBps)
	if err != nil {
		return nil, fmt.Errorf("fee computation: %w", err)
	}
	netIn := deltaIn - feeAmount
	if netIn == 0 {
		return nil, fmt.Errorf("%w: input fully consumed by fees", ErrInvalidAmount)
	}

	newReserveIn, err := fixedpoint.Add(reserveIn, netIn)
	if err != nil {
		return nil, fmt.Errorf("reserve update: %w", err)
	}
	// Plain integer division on the invariant quotient; the division
	// remainder stays with the pool.
	kept, err := fixedpoint.MulDiv(reserveIn, reserveOut, newReserveIn)
	if err != nil {
		return nil, fmt.Errorf("constant-product pricing: %w", err)
	}
	deltaOut := reserveOut - kept

	newReserveOut := reserveOut - deltaOut
	newX, newY := newReserveIn, newReserveOut
	if !xToY {
		newX, newY = newReserveOut, newReserveIn
	}
	if err := checkPriceLimit(newX, newY, priceLimit, xToY); err != nil {
		return nil, err
	}

	credits, err := splitFee(feeAmount, totalFeeBps, pool.Fees)
	if err != nil {
		return nil, err
	}
	newCredited := pool.Ledger.Credited
	for b := FeeBucket(0); b < NumBuckets; b++ {
		side := &newCredited[b].X
		if !xToY {
			side = &newCredited[b].Y
		}
		if *side, err = fixedpoint.Add(*side, credits[b]); err != nil {
			return nil, fmt.Errorf("fee credit: %w", err)
		}
	}

	// Commit: reserves and fee credits move in one logical step.
	pool.ReserveX, pool.ReserveY = newX, newY
	pool.Ledger.Credited = newCredited

	l.log.Debug("swap executed",
		zap.String("pool", poolAddr.String()),
		zap.Bool("x_to_y", xToY),
		zap.Uint64("delta_in", deltaIn),
		zap.Uint64("fee_amount", feeAmount),
		zap.Uint64("delta_out", deltaOut),
		zap.Uint64("reserve_x", newX),
		zap.Uint64("reserve_y", newY))

	return &SwapEffect{
		Pool:          poolAddr,
		XToY:          xToY,
		DeltaIn:       deltaIn,
		NetIn:         netIn,
		DeltaOut:      deltaOut,
		FeeAmount:     feeAmount,
		BucketCredits: credits,
		NewReserveX:   newX,
		NewReserveY:   newY,
	}, nil
}

// checkPriceLimit compares the post-swap spot price (Y per X, scaled by
// PriceScale) against the trader's limit without dividing, so landing
// exactly on the limit passes. An xToY swap pushes the price down and fails
// below the limit; a yToX swap pushes it up and fails above.
func checkPriceLimit(reserveX, reserveY, priceLimit uint64, xToY bool) error {
	if priceLimit == 0 {
		return nil
	}
	lhs := uint128.From64(reserveY).Mul64(PriceScale)
	rhs := uint128.From64(priceLimit).Mul64(reserveX)
	adverse := lhs.Cmp(rhs) < 0
	if !xToY {
		adverse = lhs.Cmp(rhs) > 0
	}
	if adverse {
		// The price here is informational only; saturate when it does not
		// fit in 64 bits.
		result, err := fixedpoint.MulDiv(reserveY, PriceScale, reserveX)
		if err != nil {
			result = math.MaxUint64
		}
		return &PriceLimitError{Limit: priceLimit, ResultPrice: result, XToY: xToY}
	}
	return nil
}

// splitFee divides feeAmount across the four buckets proportional to their
// basis-point rates. Integer residue goes to the LP bucket, so the credits
// always sum to feeAmount exactly.
func splitFee(feeAmount, totalFeeBps uint64, fees FeeConfig) ([NumBuckets]uint64, error) {
	var credits [NumBuckets]uint64
	if feeAmount == 0 || totalFeeBps == 0 {
		return credits, nil
	}
	var assigned uint64
	for b := FeeBucket(0); b < NumBuckets; b++ {
		c, err := fixedpoint.MulDiv(feeAmount, fees.Rate(b), totalFeeBps)
		if err != nil {
			return credits, fmt.Errorf("fee split: %w", err)
		}
		credits[b] = c
		assigned += c
	}
	credits[BucketLP] += feeAmount - assigned
	return credits, nil
}
