package engine

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// farmParams keeps share counts small so per-share reward arithmetic is
// easy to verify by hand.
var farmParams = Params{DepositToleranceBps: 100, BootstrapShares: 100}

func TestFarmSoleStakerAccrual(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	mint := testKey(0x20)
	_, err := l.CreateFarm(testAuthority, pool, mint, 1_000_000, 0, 1_000_000, 0)
	require.NoError(t, err)

	// Halfway through the schedule the sole staker owns half the supply.
	eff, err := l.WithdrawRewards(pool, testAlice, 500_000)
	require.NoError(t, err)
	assert.Equal(t, mint, eff.Mints[0])
	assert.Equal(t, uint64(500_000), eff.Amounts[0])

	// An immediate re-claim has nothing to pay.
	_, err = l.WithdrawRewards(pool, testAlice, 500_000)
	assert.ErrorIs(t, err, ErrNothingToClaim)

	// Past the end time emission stops at the supply.
	eff, err = l.WithdrawRewards(pool, testAlice, 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), eff.Amounts[0])

	farm, ok := l.Farm(pool)
	require.True(t, ok)
	assert.Zero(t, farm.Slots[0].Supply)
	assert.Zero(t, farm.Slots[0].PendingTotal)
}

func TestFarmZeroStakerCarry(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := newTestPool(t, l, FeeConfig{})

	// Emission starts with nobody staked; the first 500 units accrue into
	// the carry and fold into the first real distribution.
	_, err := l.CreateFarm(testAuthority, pool, testKey(0x20), 1_000, 0, 1_000, 0)
	require.NoError(t, err)

	_, err = l.AddTokens(pool, testAlice, 1_000_000, 1_000_000, 500)
	require.NoError(t, err)

	eff, err := l.WithdrawRewards(pool, testAlice, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), eff.Amounts[0])
}

func TestFarmStakeChangeKeepsAccrual(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	_, err := l.CreateFarm(testAuthority, pool, testKey(0x20), 1_000, 0, 1_000, 0)
	require.NoError(t, err)

	// Halving the stake mid-schedule settles the first leg; the staker is
	// still alone, so the full emission reaches them regardless.
	_, err = l.WithdrawShares(pool, testAlice, 50, 400)
	require.NoError(t, err)

	eff, err := l.WithdrawRewards(pool, testAlice, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), eff.Amounts[0])
}

func TestFarmTwoStakersSplitByShares(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	// Bob triples the pool, taking 300 of 400 shares.
	_, err := l.AddTokens(pool, testBob, 3_000_000, 3_000_000, 0)
	require.NoError(t, err)

	_, err = l.CreateFarm(testAuthority, pool, testKey(0x20), 4_000, 0, 1_000, 0)
	require.NoError(t, err)

	alice, err := l.WithdrawRewards(pool, testAlice, 1_000)
	require.NoError(t, err)
	bob, err := l.WithdrawRewards(pool, testBob, 1_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000), alice.Amounts[0])
	assert.Equal(t, uint64(3_000), bob.Amounts[0])
}

func TestFarmAddSupply(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	_, err := l.CreateFarm(testAuthority, pool, testKey(0x20), 1_000, 0, 1_000, 0)
	require.NoError(t, err)

	// Past the end time a top-up must also restart the schedule.
	_, err = l.AddSupply(testAuthority, pool, 0, 5_000, 0, 1_500)
	require.ErrorIs(t, err, ErrInvalidAmount)

	eff, err := l.AddSupply(testAuthority, pool, 0, 5_000, 500, 1_500)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), eff.EndTime)
	assert.Equal(t, uint64(10), eff.Rates[0])

	// The original 1_000 plus the full top-up arrive at schedule end.
	claim, err := l.WithdrawRewards(pool, testAlice, 2_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(6_000), claim.Amounts[0])
}

func TestFarmResetRequiresDrain(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	_, err := l.CreateFarm(testAuthority, pool, testKey(0x20), 1_000, 0, 1_000, 0)
	require.NoError(t, err)

	// Supply still emitting.
	_, err = l.ResetFarm(testAuthority, pool, 500)
	require.ErrorIs(t, err, ErrFarmNotDrained)

	// Supply exhausted but rewards unclaimed.
	_, err = l.ResetFarm(testAuthority, pool, 1_000)
	require.ErrorIs(t, err, ErrFarmNotDrained)

	_, err = l.WithdrawRewards(pool, testAlice, 1_000)
	require.NoError(t, err)

	eff, err := l.ResetFarm(testAuthority, pool, 1_500)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), eff.StartTime)
	assert.Equal(t, eff.StartTime, eff.EndTime)

	farm, _ := l.Farm(pool)
	assert.True(t, farm.Slots[0].RewardPerShare.IsZero())
	assert.Zero(t, farm.Slots[0].Carry)

	// A fresh schedule on the reset farm accrues from zero.
	_, err = l.AddSupply(testAuthority, pool, 0, 2_000, 1_000, 1_500)
	require.NoError(t, err)
	claim, err := l.WithdrawRewards(pool, testAlice, 2_500)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000), claim.Amounts[0])
}

func TestDualAndTripleFarms(t *testing.T) {
	t.Run("dual", func(t *testing.T) {
		l := newTestLedger(t, farmParams)
		pool := seedPool(t, l, FeeConfig{}, 1_000_000)

		mints := [2]solana.PublicKey{testKey(0x20), testKey(0x21)}
		_, err := l.CreateDualFarm(testAuthority, pool, mints, [2]uint64{1_000, 2_000}, 0, 1_000, 0)
		require.NoError(t, err)

		eff, err := l.WithdrawRewards(pool, testAlice, 500)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), eff.Amounts[0])
		assert.Equal(t, uint64(1_000), eff.Amounts[1])
	})

	t.Run("triple", func(t *testing.T) {
		l := newTestLedger(t, farmParams)
		pool := seedPool(t, l, FeeConfig{}, 1_000_000)

		mints := [3]solana.PublicKey{testKey(0x20), testKey(0x21), testKey(0x22)}
		_, err := l.CreateTripleFarm(testAuthority, pool, mints, [3]uint64{300, 600, 900}, 0, 300, 0)
		require.NoError(t, err)

		eff, err := l.WithdrawRewards(pool, testAlice, 300)
		require.NoError(t, err)
		assert.Equal(t, uint64(300), eff.Amounts[0])
		assert.Equal(t, uint64(600), eff.Amounts[1])
		assert.Equal(t, uint64(900), eff.Amounts[2])
	})
}

func TestUpdateRewardTokens(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	_, err := l.CreateFarm(testAuthority, pool, testKey(0x20), 1_000, 0, 1_000, 0)
	require.NoError(t, err)

	// Swapping the mint mid-schedule carries the accounting forward.
	newMint := testKey(0x21)
	_, err = l.UpdateRewardTokens(testAuthority, pool, newMint, 0, 400)
	require.NoError(t, err)

	eff, err := l.WithdrawRewards(pool, testAlice, 500)
	require.NoError(t, err)
	assert.Equal(t, newMint, eff.Mints[0])
	assert.Equal(t, uint64(500), eff.Amounts[0])
}

func TestFarmValidation(t *testing.T) {
	l := newTestLedger(t, farmParams)
	pool := seedPool(t, l, FeeConfig{}, 1_000_000)

	_, err := l.CreateFarm(testBob, pool, testKey(0x20), 1_000, 0, 1_000, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = l.CreateFarm(testAuthority, pool, testKey(0x20), 1_000, 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.CreateFarm(testAuthority, pool, testKey(0x20), 1_000, 0, 1_000, 0)
	require.NoError(t, err)
	_, err = l.CreateFarm(testAuthority, pool, testKey(0x21), 1_000, 0, 1_000, 0)
	assert.ErrorIs(t, err, ErrFarmExists)

	// A stranger with no position has nothing to claim.
	_, err = l.WithdrawRewards(pool, testBob, 500)
	assert.ErrorIs(t, err, ErrNothingToClaim)
}

func TestSlotStatus(t *testing.T) {
	farm := &Farm{StartTime: 100, EndTime: 200, Slots: []RewardSlot{{Supply: 50}}}

	assert.Equal(t, FarmPending, SlotStatus(farm, 0, 50))
	assert.Equal(t, FarmActive, SlotStatus(farm, 0, 150))
	assert.Equal(t, FarmDepleted, SlotStatus(farm, 0, 200))

	farm.Slots[0].Supply = 0
	assert.Equal(t, FarmDepleted, SlotStatus(farm, 0, 150))
}
