package engine

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercantiswap/pool-engine/internal/fixedpoint"
)

func TestSwapConstantProduct(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{LpBps: 100}, 1_000_000)

	eff, err := l.Swap(pool, 10_000, 0, true)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), eff.FeeAmount)
	assert.Equal(t, uint64(9_900), eff.NetIn)
	assert.Equal(t, uint64(9_803), eff.DeltaOut)
	assert.Equal(t, uint64(1_009_900), eff.NewReserveX)
	assert.Equal(t, uint64(990_197), eff.NewReserveY)
	assert.Equal(t, uint64(100), eff.BucketCredits[BucketLP])

	// The payout is exact integer division on the invariant quotient, so
	// the post-swap product sits within one division remainder of the
	// pre-swap product.
	p, _ := l.PoolByAddress(pool)
	before := uint64(1_000_000) * 1_000_000
	after := eff.NewReserveX * eff.NewReserveY
	assert.Less(t, before-after, eff.NewReserveX)
	assert.Equal(t, p.ReserveX, eff.NewReserveX)
	assert.Equal(t, p.ReserveY, eff.NewReserveY)
}

func TestSwapRejectsZeroInput(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	_, err := l.Swap(pool, 0, 0, true)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSwapEmptyPool(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := newTestPool(t, l, FeeConfig{})

	_, err := l.Swap(pool, 1000, 0, true)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSwapFeeBucketAdditivity(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	// Rates chosen so the proportional split truncates.
	pool := seedPool(t, l, FeeConfig{LpBps: 7, BuybackBps: 11, ProjectBps: 13, MercantiBps: 3}, 5_000_000)

	for _, deltaIn := range []uint64{997, 10_001, 123_457, 999_999} {
		eff, err := l.Swap(pool, deltaIn, 0, true)
		require.NoError(t, err)

		var sum uint64
		for b := FeeBucket(0); b < NumBuckets; b++ {
			sum += eff.BucketCredits[b]
		}
		assert.Equal(t, eff.FeeAmount, sum, "bucket credits must sum to the fee for deltaIn=%d", deltaIn)
	}
}

func TestSwapConservation(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{LpBps: 30, BuybackBps: 10, ProjectBps: 5, MercantiBps: 5}, 2_000_000)

	p, _ := l.PoolByAddress(pool)
	beforeX := p.ReserveX
	beforeY := p.ReserveY

	var inX, inY, outX, outY uint64
	inputs := []struct {
		deltaIn uint64
		xToY    bool
	}{
		{10_000, true}, {5_000, false}, {123_456, true}, {7, false}, {99_999, true},
	}
	for _, in := range inputs {
		eff, err := l.Swap(pool, in.deltaIn, 0, in.xToY)
		require.NoError(t, err)
		if in.xToY {
			inX += in.deltaIn
			outY += eff.DeltaOut
		} else {
			inY += in.deltaIn
			outX += eff.DeltaOut
		}
	}

	fees := p.Ledger.CreditedTotal()
	assert.Equal(t, beforeX+inX-outX, p.ReserveX+fees.X, "token X conservation")
	assert.Equal(t, beforeY+inY-outY, p.ReserveY+fees.Y, "token Y conservation")
}

func TestSwapPriceLimitTieBreak(t *testing.T) {
	// A fee-less 1M/1M pool swapped with deltaIn=1M lands on exactly
	// reserves 2M/500k, i.e. a spot price of 0.25 * PriceScale.
	const onLimit = PriceScale / 4

	setup := func(t *testing.T) (*Ledger, solana.PublicKey) {
		l := newTestLedger(t, DefaultParams())
		pool := seedPool(t, l, FeeConfig{}, 1_000_000)
		return l, pool
	}

	t.Run("exactly on the limit succeeds", func(t *testing.T) {
		l, pool := setup(t)
		eff, err := l.Swap(pool, 1_000_000, onLimit, true)
		require.NoError(t, err)
		assert.Equal(t, uint64(500_000), eff.DeltaOut)
	})

	t.Run("one unit beyond fails", func(t *testing.T) {
		l, pool := setup(t)
		_, err := l.Swap(pool, 1_000_000, onLimit+1, true)
		require.ErrorIs(t, err, ErrPriceLimitExceeded)

		var plErr *PriceLimitError
		require.ErrorAs(t, err, &plErr)
		assert.Equal(t, uint64(onLimit+1), plErr.Limit)

		// The failed swap mutated nothing.
		p, _ := l.PoolByAddress(pool)
		assert.Equal(t, uint64(1_000_000), p.ReserveX)
		assert.Equal(t, uint64(1_000_000), p.ReserveY)
	})

	t.Run("adverse direction flips for yToX", func(t *testing.T) {
		l, pool := setup(t)
		// Buying X pushes the price up; a limit below the resulting price
		// must reject.
		_, err := l.Swap(pool, 1_000_000, PriceScale+1, false)
		require.ErrorIs(t, err, ErrPriceLimitExceeded)

		_, err = l.Swap(pool, 1_000_000, 4*PriceScale, false)
		require.NoError(t, err)
	})
}

func TestSwapFeeCreditOverflow(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{LpBps: 9_999}, 1<<62)

	// A near-total fee on a maximal input credits most of a uint64 to the
	// LP bucket in one swap; a second identical swap cannot fit.
	_, err := l.Swap(pool, math.MaxUint64, 0, true)
	require.NoError(t, err)

	p, _ := l.PoolByAddress(pool)
	beforeX, beforeY := p.ReserveX, p.ReserveY
	beforeCredited := p.Ledger.Credited

	_, err = l.Swap(pool, math.MaxUint64, 0, true)
	require.ErrorIs(t, err, fixedpoint.ErrOverflow)

	// The failed swap mutated nothing.
	assert.Equal(t, beforeX, p.ReserveX)
	assert.Equal(t, beforeY, p.ReserveY)
	assert.Equal(t, beforeCredited, p.Ledger.Credited)
}

func TestSwapPriceLimitReportsSaturatedPrice(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := newTestPool(t, l, FeeConfig{})
	_, err := l.AddTokens(pool, testAlice, 1_000, 1<<60, 0)
	require.NoError(t, err)

	// The post-swap spot price does not fit in 64 bits; the rejection
	// reports it saturated instead of zero.
	_, err = l.Swap(pool, 1<<20, 1, false)
	require.ErrorIs(t, err, ErrPriceLimitExceeded)

	var plErr *PriceLimitError
	require.ErrorAs(t, err, &plErr)
	assert.Equal(t, uint64(math.MaxUint64), plErr.ResultPrice)
}

func TestUpdateFeesTakesEffectNextSwap(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{LpBps: 100}, 1_000_000)

	_, err := l.UpdateFees(testAuthority, pool, FeeConfig{LpBps: 200})
	require.NoError(t, err)

	eff, err := l.Swap(pool, 10_000, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), eff.FeeAmount)
}

func TestUpdateFeesValidation(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := newTestPool(t, l, FeeConfig{})

	_, err := l.UpdateFees(testAuthority, pool, FeeConfig{LpBps: 9_000, ProjectBps: 1_001})
	assert.ErrorIs(t, err, ErrInvalidFeeConfig)

	_, err = l.UpdateFees(testBob, pool, FeeConfig{LpBps: 10})
	assert.ErrorIs(t, err, ErrUnauthorized)
}
