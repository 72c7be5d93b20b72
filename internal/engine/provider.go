package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/mercantiswap/pool-engine/internal/fixedpoint"
)

// AddTokens deposits liquidity and mints shares. The first deposit into an
// empty pool sets the initial price and mints the fixed bootstrap share
// amount; later deposits must match the current reserve ratio within the
// configured tolerance band and mint proportionally, taking the smaller of
// the two ratios so a skewed deposit can never over-mint.
func (l *Ledger) AddTokens(poolAddr, owner solana.PublicKey, deltaX, deltaY uint64, now int64) (*DepositEffect, error) {
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if deltaX == 0 || deltaY == 0 {
		return nil, fmt.Errorf("%w: deposit amounts must be positive", ErrInvalidAmount)
	}

	var minted uint64
	if pool.TotalShares == 0 {
		minted = l.params.BootstrapShares
	} else {
		expectedY, err := fixedpoint.MulDiv(deltaX, pool.ReserveY, pool.ReserveX)
		if err != nil {
			return nil, fmt.Errorf("ratio check: %w", err)
		}
		tol, err := fixedpoint.Bps(expectedY, l.params.DepositToleranceBps)
		if err != nil {
			return nil, fmt.Errorf("ratio check: %w", err)
		}
		diff := deltaY - expectedY
		if deltaY < expectedY {
			diff = expectedY - deltaY
		}
		if diff > tol {
			return nil, fmt.Errorf("%w: expected ~%d of token Y for %d of token X, got %d",
				ErrImbalancedDeposit, expectedY, deltaX, deltaY)
		}
		byX, err := fixedpoint.MulDiv(deltaX, pool.TotalShares, pool.ReserveX)
		if err != nil {
			return nil, fmt.Errorf("share mint: %w", err)
		}
		byY, err := fixedpoint.MulDiv(deltaY, pool.TotalShares, pool.ReserveY)
		if err != nil {
			return nil, fmt.Errorf("share mint: %w", err)
		}
		minted = min(byX, byY)
		if minted == 0 {
			return nil, fmt.Errorf("%w: deposit too small to mint a share", ErrInvalidAmount)
		}
	}

	newX, err := fixedpoint.Add(pool.ReserveX, deltaX)
	if err != nil {
		return nil, fmt.Errorf("reserve update: %w", err)
	}
	newY, err := fixedpoint.Add(pool.ReserveY, deltaY)
	if err != nil {
		return nil, fmt.Errorf("reserve update: %w", err)
	}
	newShares, err := fixedpoint.Add(pool.TotalShares, minted)
	if err != nil {
		return nil, fmt.Errorf("share mint: %w", err)
	}

	// Commit. Fee and farm checkpoints settle against the pre-deposit share
	// counts before anything changes.
	provider, exists := l.providers[providerKey{poolAddr, owner}]
	if !exists {
		provider = &Provider{
			Owner:         owner,
			Pool:          poolAddr,
			FeeCheckpoint: pool.Ledger.Credited[BucketLP],
		}
		l.providers[providerKey{poolAddr, owner}] = provider
	}
	if err := l.settleLpFees(pool, provider); err != nil {
		return nil, err
	}

	var pos *FarmPosition
	if farm, hasFarm := l.farms[poolAddr]; hasFarm {
		if err := l.farmTouch(farm, now, pool.TotalShares); err != nil {
			return nil, err
		}
		pos = l.ensurePosition(farm, owner)
		if err := l.settlePosition(farm, pos); err != nil {
			return nil, err
		}
	}

	pool.ReserveX, pool.ReserveY = newX, newY
	pool.TotalShares = newShares
	provider.Shares += minted
	if pos != nil {
		pos.StakedShares = provider.Shares
	}

	l.log.Debug("liquidity added",
		zap.String("pool", poolAddr.String()),
		zap.String("owner", owner.String()),
		zap.Uint64("delta_x", deltaX),
		zap.Uint64("delta_y", deltaY),
		zap.Uint64("shares_minted", minted))

	return &DepositEffect{
		Pool:         poolAddr,
		Owner:        owner,
		DeltaX:       deltaX,
		DeltaY:       deltaY,
		SharesMinted: minted,
		TotalShares:  pool.TotalShares,
		NewReserveX:  pool.ReserveX,
		NewReserveY:  pool.ReserveY,
	}, nil
}

// WithdrawShares burns shares and pays out the proportional reserves,
// rounded down. The rounding residue stays in the pool for the remaining
// providers, so a burn can never drain more than its exact share.
func (l *Ledger) WithdrawShares(poolAddr, owner solana.PublicKey, shares uint64, now int64) (*WithdrawEffect, error) {
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	provider, ok := l.providers[providerKey{poolAddr, owner}]
	if !ok {
		return nil, ErrProviderNotFound
	}
	if shares == 0 {
		return nil, fmt.Errorf("%w: share amount must be positive", ErrInvalidAmount)
	}
	if shares > provider.Shares {
		return nil, fmt.Errorf("%w: burning %d of %d held", ErrInsufficientShares, shares, provider.Shares)
	}

	outX, err := fixedpoint.MulDiv(pool.ReserveX, shares, pool.TotalShares)
	if err != nil {
		return nil, fmt.Errorf("withdrawal: %w", err)
	}
	outY, err := fixedpoint.MulDiv(pool.ReserveY, shares, pool.TotalShares)
	if err != nil {
		return nil, fmt.Errorf("withdrawal: %w", err)
	}
	newReserveX, err := fixedpoint.Sub(pool.ReserveX, outX)
	if err != nil {
		return nil, fmt.Errorf("withdrawal: %w", err)
	}
	newReserveY, err := fixedpoint.Sub(pool.ReserveY, outY)
	if err != nil {
		return nil, fmt.Errorf("withdrawal: %w", err)
	}
	newTotalShares, err := fixedpoint.Sub(pool.TotalShares, shares)
	if err != nil {
		return nil, fmt.Errorf("withdrawal: %w", err)
	}

	if err := l.settleLpFees(pool, provider); err != nil {
		return nil, err
	}

	var pos *FarmPosition
	if farm, hasFarm := l.farms[poolAddr]; hasFarm {
		if err := l.farmTouch(farm, now, pool.TotalShares); err != nil {
			return nil, err
		}
		pos = l.ensurePosition(farm, owner)
		if err := l.settlePosition(farm, pos); err != nil {
			return nil, err
		}
	}

	pool.ReserveX = newReserveX
	pool.ReserveY = newReserveY
	pool.TotalShares = newTotalShares
	provider.Shares -= shares
	if pos != nil {
		pos.StakedShares = provider.Shares
	}

	closed := l.maybeCloseProvider(pool, provider)

	l.log.Debug("shares withdrawn",
		zap.String("pool", poolAddr.String()),
		zap.String("owner", owner.String()),
		zap.Uint64("shares_burned", shares),
		zap.Uint64("out_x", outX),
		zap.Uint64("out_y", outY))

	return &WithdrawEffect{
		Pool:           poolAddr,
		Owner:          owner,
		SharesBurned:   shares,
		OutX:           outX,
		OutY:           outY,
		TotalShares:    pool.TotalShares,
		NewReserveX:    pool.ReserveX,
		NewReserveY:    pool.ReserveY,
		ProviderClosed: closed,
	}, nil
}

// WithdrawLpFee pays out the provider's pro-rata slice of the LP fee bucket
// accrued since their checkpoint. Paying an empty entitlement succeeds with
// a zero amount.
func (l *Ledger) WithdrawLpFee(poolAddr, owner solana.PublicKey) (*LpFeeEffect, error) {
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	provider, ok := l.providers[providerKey{poolAddr, owner}]
	if !ok {
		return nil, ErrProviderNotFound
	}

	if err := l.settleLpFees(pool, provider); err != nil {
		return nil, err
	}
	amount := provider.OwedFees
	newWithdrawn := pool.Ledger.Withdrawn[BucketLP]
	var err error
	if newWithdrawn.X, err = fixedpoint.Add(newWithdrawn.X, amount.X); err != nil {
		return nil, fmt.Errorf("lp fee payout: %w", err)
	}
	if newWithdrawn.Y, err = fixedpoint.Add(newWithdrawn.Y, amount.Y); err != nil {
		return nil, fmt.Errorf("lp fee payout: %w", err)
	}
	provider.OwedFees = TokenAmounts{}
	pool.Ledger.Withdrawn[BucketLP] = newWithdrawn

	l.maybeCloseProvider(pool, provider)

	if !amount.IsZero() {
		l.log.Debug("lp fee withdrawn",
			zap.String("pool", poolAddr.String()),
			zap.String("owner", owner.String()),
			zap.Uint64("amount_x", amount.X),
			zap.Uint64("amount_y", amount.Y))
	}
	return &LpFeeEffect{Pool: poolAddr, Owner: owner, Amount: amount}, nil
}

// settleLpFees folds the LP bucket growth since the provider's checkpoint
// into their owed balance, pro rata by current shares, and advances the
// checkpoint. Called before any share count changes; a failure leaves the
// provider untouched.
func (l *Ledger) settleLpFees(pool *Pool, provider *Provider) error {
	credited := pool.Ledger.Credited[BucketLP]
	if provider.Shares > 0 && pool.TotalShares > 0 {
		deltaX, err := fixedpoint.Sub(credited.X, provider.FeeCheckpoint.X)
		if err != nil {
			return fmt.Errorf("lp fee settle: %w", err)
		}
		deltaY, err := fixedpoint.Sub(credited.Y, provider.FeeCheckpoint.Y)
		if err != nil {
			return fmt.Errorf("lp fee settle: %w", err)
		}
		owedX, err := fixedpoint.MulDiv(deltaX, provider.Shares, pool.TotalShares)
		if err != nil {
			return fmt.Errorf("lp fee settle: %w", err)
		}
		owedY, err := fixedpoint.MulDiv(deltaY, provider.Shares, pool.TotalShares)
		if err != nil {
			return fmt.Errorf("lp fee settle: %w", err)
		}
		newX, err := fixedpoint.Add(provider.OwedFees.X, owedX)
		if err != nil {
			return fmt.Errorf("lp fee settle: %w", err)
		}
		newY, err := fixedpoint.Add(provider.OwedFees.Y, owedY)
		if err != nil {
			return fmt.Errorf("lp fee settle: %w", err)
		}
		provider.OwedFees = TokenAmounts{X: newX, Y: newY}
	}
	provider.FeeCheckpoint = credited
	return nil
}

// maybeCloseProvider destroys a provider record once it holds no shares and
// no pending entitlement (LP fees or farm rewards).
func (l *Ledger) maybeCloseProvider(pool *Pool, provider *Provider) bool {
	if provider.Shares != 0 || !provider.OwedFees.IsZero() {
		return false
	}
	if farm, ok := l.farms[pool.Address]; ok {
		if pos, ok := l.positions[positionKey{farm.Address, provider.Owner}]; ok {
			if l.positionHasPending(farm, pos) {
				return false
			}
			delete(l.positions, positionKey{farm.Address, provider.Owner})
		}
	}
	delete(l.providers, providerKey{pool.Address, provider.Owner})
	return true
}
