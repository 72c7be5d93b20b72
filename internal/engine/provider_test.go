package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercantiswap/pool-engine/internal/fixedpoint"
)

func TestBootstrapDeposit(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := newTestPool(t, l, FeeConfig{})

	eff, err := l.AddTokens(pool, testAlice, 3_000_000, 1_000_000, 0)
	require.NoError(t, err)

	// The first deposit sets the price freely and mints the fixed
	// bootstrap amount.
	assert.Equal(t, DefaultParams().BootstrapShares, eff.SharesMinted)
	assert.Equal(t, uint64(3_000_000), eff.NewReserveX)
	assert.Equal(t, uint64(1_000_000), eff.NewReserveY)

	provider, ok := l.Provider(pool, testAlice)
	require.True(t, ok)
	assert.Equal(t, eff.SharesMinted, provider.Shares)
}

func TestProportionalMint(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	eff, err := l.AddTokens(pool, testBob, 500_000, 500_000, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), eff.SharesMinted)
	assert.Equal(t, uint64(1_500_000), eff.TotalShares)
}

func TestImbalancedDepositRejected(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	_, err := l.AddTokens(pool, testBob, 100_000, 50_000, 0)
	require.ErrorIs(t, err, ErrImbalancedDeposit)

	// Within the 1% tolerance band the deposit passes; the smaller ratio
	// bounds the mint so the skew cannot over-mint.
	eff, err := l.AddTokens(pool, testBob, 100_000, 99_100, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(99_100), eff.SharesMinted)
}

func TestDepositReserveOverflowRejected(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := newTestPool(t, l, FeeConfig{})

	_, err := l.AddTokens(pool, testAlice, math.MaxUint64, math.MaxUint64, 0)
	require.NoError(t, err)

	// The follow-up deposit matches the ratio and would mint shares, but
	// the reserves cannot hold it.
	_, err = l.AddTokens(pool, testBob, 1<<54, 1<<54, 0)
	require.ErrorIs(t, err, fixedpoint.ErrOverflow)

	// The failed deposit mutated nothing and opened no provider record.
	p, _ := l.PoolByAddress(pool)
	assert.Equal(t, uint64(math.MaxUint64), p.ReserveX)
	assert.Equal(t, DefaultParams().BootstrapShares, p.TotalShares)
	_, ok := l.Provider(pool, testBob)
	assert.False(t, ok)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	dep, err := l.AddTokens(pool, testBob, 123_457, 123_457, 0)
	require.NoError(t, err)

	wd, err := l.WithdrawShares(pool, testBob, dep.SharesMinted, 0)
	require.NoError(t, err)

	// Back out what went in, modulo at most one rounding unit per side,
	// and never more than was deposited.
	assert.LessOrEqual(t, wd.OutX, uint64(123_457))
	assert.LessOrEqual(t, wd.OutY, uint64(123_457))
	assert.GreaterOrEqual(t, wd.OutX, uint64(123_456))
	assert.GreaterOrEqual(t, wd.OutY, uint64(123_456))
}

func TestWithdrawRoundsDown(t *testing.T) {
	l := newTestLedger(t, Params{DepositToleranceBps: 100, BootstrapShares: 3})
	pool := newTestPool(t, l, FeeConfig{})

	_, err := l.AddTokens(pool, testAlice, 10, 10, 0)
	require.NoError(t, err)

	// 1 of 3 shares over 10 tokens: the exact entitlement is 3.33..,
	// paid as 3. The residue stays with the pool.
	wd, err := l.WithdrawShares(pool, testAlice, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), wd.OutX)
	assert.Equal(t, uint64(3), wd.OutY)

	p, _ := l.PoolByAddress(pool)
	assert.Equal(t, uint64(7), p.ReserveX)
	assert.Equal(t, uint64(2), p.TotalShares)
}

func TestWithdrawInsufficientShares(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	provider, _ := l.Provider(pool, testAlice)
	_, err := l.WithdrawShares(pool, testAlice, provider.Shares+1, 0)
	require.ErrorIs(t, err, ErrInsufficientShares)

	// Nothing moved.
	p, _ := l.PoolByAddress(pool)
	assert.Equal(t, uint64(1_000_000), p.ReserveX)
}

func TestProviderClosedOnFullExit(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	provider, _ := l.Provider(pool, testAlice)
	wd, err := l.WithdrawShares(pool, testAlice, provider.Shares, 0)
	require.NoError(t, err)
	assert.True(t, wd.ProviderClosed)

	_, ok := l.Provider(pool, testAlice)
	assert.False(t, ok)
}

func TestWithdrawLpFeeProRata(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{LpBps: 100}, 1_000_000)

	// Bob joins with an equal stake, then fees accrue.
	_, err := l.AddTokens(pool, testBob, 1_000_000, 1_000_000, 0)
	require.NoError(t, err)

	swap, err := l.Swap(pool, 100_000, 0, true)
	require.NoError(t, err)
	lpFee := swap.BucketCredits[BucketLP]
	require.Equal(t, uint64(1_000), lpFee)

	alice, err := l.WithdrawLpFee(pool, testAlice)
	require.NoError(t, err)
	bob, err := l.WithdrawLpFee(pool, testBob)
	require.NoError(t, err)

	assert.Equal(t, lpFee/2, alice.Amount.X)
	assert.Equal(t, lpFee/2, bob.Amount.X)
	assert.Zero(t, alice.Amount.Y)

	// A second withdrawal with no intervening swaps pays nothing, and
	// is not an error.
	again, err := l.WithdrawLpFee(pool, testAlice)
	require.NoError(t, err)
	assert.True(t, again.Amount.IsZero())
}

func TestLpFeeCheckpointStartsAtJoin(t *testing.T) {
	l := newTestLedger(t, DefaultParams())
	pool := seedPool(t, l, FeeConfig{LpBps: 100}, 1_000_000)

	// Fees accrued before Bob joins belong to Alice alone.
	_, err := l.Swap(pool, 100_000, 0, true)
	require.NoError(t, err)

	alice, err := l.WithdrawLpFee(pool, testAlice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), alice.Amount.X)

	// Bob joins at the current ratio; his checkpoint starts at the
	// current accumulator, so he has nothing to claim.
	p, _ := l.PoolByAddress(pool)
	deltaX := uint64(500_000)
	deltaY, err := fixedpoint.MulDiv(deltaX, p.ReserveY, p.ReserveX)
	require.NoError(t, err)
	_, err = l.AddTokens(pool, testBob, deltaX, deltaY, 0)
	require.NoError(t, err)

	bob, err := l.WithdrawLpFee(pool, testBob)
	require.NoError(t, err)
	assert.True(t, bob.Amount.IsZero())
}
