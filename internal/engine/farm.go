package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"github.com/mercantiswap/pool-engine/internal/fixedpoint"
)

// CreateFarm attaches a single-reward emission schedule to a pool. start ==
// 0 means "start now"; emission runs linearly for duration time units.
func (l *Ledger) CreateFarm(caller, poolAddr, mint solana.PublicKey, supply uint64, start, duration, now int64) (*FarmEffect, error) {
	return l.createFarm(caller, poolAddr, []solana.PublicKey{mint}, []uint64{supply}, start, duration, now)
}

// CreateDualFarm attaches a two-reward-token schedule.
func (l *Ledger) CreateDualFarm(caller, poolAddr solana.PublicKey, mints [2]solana.PublicKey, supplies [2]uint64, start, duration, now int64) (*FarmEffect, error) {
	return l.createFarm(caller, poolAddr, mints[:], supplies[:], start, duration, now)
}

// CreateTripleFarm attaches a three-reward-token schedule.
func (l *Ledger) CreateTripleFarm(caller, poolAddr solana.PublicKey, mints [3]solana.PublicKey, supplies [3]uint64, start, duration, now int64) (*FarmEffect, error) {
	return l.createFarm(caller, poolAddr, mints[:], supplies[:], start, duration, now)
}

func (l *Ledger) createFarm(caller, poolAddr solana.PublicKey, mints []solana.PublicKey, supplies []uint64, start, duration, now int64) (*FarmEffect, error) {
	if _, err := l.adminPool(caller, poolAddr); err != nil {
		return nil, err
	}
	if _, exists := l.farms[poolAddr]; exists {
		return nil, ErrFarmExists
	}
	if len(mints) == 0 || len(mints) > MaxRewardSlots || len(mints) != len(supplies) {
		return nil, fmt.Errorf("%w: farm takes 1 to %d reward tokens", ErrInvalidAmount, MaxRewardSlots)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: emission duration must be positive", ErrInvalidAmount)
	}
	if start == 0 {
		start = now
	}
	for i, mint := range mints {
		if mint.IsZero() {
			return nil, fmt.Errorf("%w: zero reward mint in slot %d", ErrInvalidAmount, i)
		}
		if supplies[i] == 0 {
			return nil, fmt.Errorf("%w: zero reward supply in slot %d", ErrInvalidAmount, i)
		}
	}

	addr, bump, err := deriveFarmAddress(poolAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to derive farm address: %w", err)
	}
	farm := &Farm{
		Address:    addr,
		Pool:       poolAddr,
		StartTime:  start,
		EndTime:    start + duration,
		LastUpdate: start,
		Bump:       bump,
	}
	for i := range mints {
		farm.Slots = append(farm.Slots, RewardSlot{
			Mint:         mints[i],
			Supply:       supplies[i],
			EmissionRate: supplies[i] / uint64(duration),
		})
	}
	l.farms[poolAddr] = farm

	// Providers already in the pool are staked from the first tick: their
	// positions start at the zero accumulator.
	for key, provider := range l.providers {
		if key.pool.Equals(poolAddr) && provider.Shares > 0 {
			l.positions[positionKey{addr, provider.Owner}] = &FarmPosition{
				Owner:        provider.Owner,
				Farm:         addr,
				StakedShares: provider.Shares,
			}
		}
	}

	l.log.Info("farm created",
		zap.String("farm", addr.String()),
		zap.String("pool", poolAddr.String()),
		zap.Int("reward_slots", len(mints)),
		zap.Int64("start", start),
		zap.Int64("end", farm.EndTime))
	return farmEffect(farm), nil
}

// AddSupply tops up one reward slot and re-spreads the slot's remaining
// supply over the remaining (or newly set) duration. Already-accrued
// emission is settled first and never recomputed.
func (l *Ledger) AddSupply(caller, poolAddr solana.PublicKey, slot int, amount uint64, newDuration, now int64) (*FarmEffect, error) {
	pool, err := l.adminPool(caller, poolAddr)
	if err != nil {
		return nil, err
	}
	farm, ok := l.farms[poolAddr]
	if !ok {
		return nil, ErrFarmNotFound
	}
	if slot < 0 || slot >= len(farm.Slots) {
		return nil, fmt.Errorf("%w: reward slot %d out of range", ErrInvalidAmount, slot)
	}
	if amount == 0 && newDuration <= 0 {
		return nil, fmt.Errorf("%w: addSupply needs an amount or a new duration", ErrInvalidAmount)
	}

	if err := l.farmTouch(farm, now, pool.TotalShares); err != nil {
		return nil, err
	}

	s := &farm.Slots[slot]
	newSupply, err := fixedpoint.Add(s.Supply, amount)
	if err != nil {
		return nil, fmt.Errorf("supply top-up: %w", err)
	}

	endTime := farm.EndTime
	if newDuration > 0 {
		base := now
		if base < farm.StartTime {
			base = farm.StartTime
		}
		endTime = base + newDuration
	}
	from := now
	if from < farm.StartTime {
		from = farm.StartTime
	}
	remaining := endTime - from
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: emission schedule has ended, a new duration is required", ErrInvalidAmount)
	}

	s.Supply = newSupply
	s.EmissionRate = newSupply / uint64(remaining)
	farm.EndTime = endTime

	l.log.Info("farm supply added",
		zap.String("farm", farm.Address.String()),
		zap.Int("slot", slot),
		zap.Uint64("amount", amount),
		zap.Uint64("emission_rate", s.EmissionRate),
		zap.Int64("end", farm.EndTime))
	return farmEffect(farm), nil
}

// WithdrawRewards claims the caller's accrued rewards across every slot.
// Claiming with nothing accrued fails with ErrNothingToClaim; the failure is
// informational and mutates nothing a second claim would observe.
func (l *Ledger) WithdrawRewards(poolAddr, owner solana.PublicKey, now int64) (*ClaimEffect, error) {
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	farm, ok := l.farms[poolAddr]
	if !ok {
		return nil, ErrFarmNotFound
	}
	if err := l.farmTouch(farm, now, pool.TotalShares); err != nil {
		return nil, err
	}
	pos, ok := l.positions[positionKey{farm.Address, owner}]
	if !ok {
		return nil, ErrNothingToClaim
	}
	if err := l.settlePosition(farm, pos); err != nil {
		return nil, err
	}

	eff := &ClaimEffect{Farm: farm.Address, Owner: owner}
	var total uint64
	for i := range farm.Slots {
		amt := pos.Owed[i]
		eff.Mints[i] = farm.Slots[i].Mint
		eff.Amounts[i] = amt
		total += amt
	}
	if total == 0 {
		return nil, ErrNothingToClaim
	}
	for i := range farm.Slots {
		amt := pos.Owed[i]
		pos.Owed[i] = 0
		if amt > farm.Slots[i].PendingTotal {
			amt = farm.Slots[i].PendingTotal
		}
		farm.Slots[i].PendingTotal -= amt
	}

	if provider, ok := l.providers[providerKey{poolAddr, owner}]; ok {
		l.maybeCloseProvider(pool, provider)
	}

	l.log.Debug("rewards claimed",
		zap.String("farm", farm.Address.String()),
		zap.String("owner", owner.String()),
		zap.Uint64("total", total))
	return eff, nil
}

// ResetFarm zeroes the farm's accumulators so a fresh schedule can be
// loaded. It is only permitted once every slot is drained and no position
// holds unclaimed rewards.
func (l *Ledger) ResetFarm(caller, poolAddr solana.PublicKey, now int64) (*FarmEffect, error) {
	pool, err := l.adminPool(caller, poolAddr)
	if err != nil {
		return nil, err
	}
	farm, ok := l.farms[poolAddr]
	if !ok {
		return nil, ErrFarmNotFound
	}
	if err := l.farmTouch(farm, now, pool.TotalShares); err != nil {
		return nil, err
	}
	for i := range farm.Slots {
		if farm.Slots[i].Supply != 0 {
			return nil, fmt.Errorf("%w: slot %d still holds supply", ErrFarmNotDrained, i)
		}
	}
	for key, pos := range l.positions {
		if !key.farm.Equals(farm.Address) {
			continue
		}
		if l.positionHasPending(farm, pos) {
			return nil, fmt.Errorf("%w: position %s holds unclaimed rewards", ErrFarmNotDrained, pos.Owner)
		}
	}

	for i := range farm.Slots {
		farm.Slots[i].RewardPerShare = uint128.Zero
		farm.Slots[i].Carry = 0
		farm.Slots[i].PendingTotal = 0
		farm.Slots[i].EmissionRate = 0
	}
	for key, pos := range l.positions {
		if key.farm.Equals(farm.Address) {
			pos.Checkpoint = [MaxRewardSlots]uint128.Uint128{}
		}
	}
	farm.StartTime = now
	farm.EndTime = now
	farm.LastUpdate = now

	l.log.Info("farm reset", zap.String("farm", farm.Address.String()))
	return farmEffect(farm), nil
}

// UpdateRewardTokens swaps the reward token identity of one slot, carrying
// the accrued accounting forward unchanged.
func (l *Ledger) UpdateRewardTokens(caller, poolAddr, newMint solana.PublicKey, slot int, now int64) (*FarmEffect, error) {
	pool, err := l.adminPool(caller, poolAddr)
	if err != nil {
		return nil, err
	}
	farm, ok := l.farms[poolAddr]
	if !ok {
		return nil, ErrFarmNotFound
	}
	if slot < 0 || slot >= len(farm.Slots) {
		return nil, fmt.Errorf("%w: reward slot %d out of range", ErrInvalidAmount, slot)
	}
	if newMint.IsZero() {
		return nil, fmt.Errorf("%w: zero reward mint", ErrInvalidAmount)
	}
	if err := l.farmTouch(farm, now, pool.TotalShares); err != nil {
		return nil, err
	}
	old := farm.Slots[slot].Mint
	farm.Slots[slot].Mint = newMint

	l.log.Info("reward token updated",
		zap.String("farm", farm.Address.String()),
		zap.Int("slot", slot),
		zap.String("old_mint", old.String()),
		zap.String("new_mint", newMint.String()))
	return farmEffect(farm), nil
}

// SlotStatus reports the lazily evaluated lifecycle stage of one slot.
func SlotStatus(farm *Farm, slot int, now int64) FarmStatus {
	if now < farm.StartTime {
		return FarmPending
	}
	if now >= farm.EndTime || farm.Slots[slot].Supply == 0 {
		return FarmDepleted
	}
	return FarmActive
}

// farmTouch advances every slot's accumulator to now. Emission while no
// shares are staked accrues into the slot carry; it folds into the next
// distribution once stakers exist. The whole update is computed before any
// slot is written, so a failure leaves the farm untouched.
func (l *Ledger) farmTouch(farm *Farm, now int64, totalShares uint64) error {
	if now <= farm.LastUpdate {
		return nil
	}
	from := farm.LastUpdate
	if from < farm.StartTime {
		from = farm.StartTime
	}
	end := now
	if end > farm.EndTime {
		end = farm.EndTime
	}
	if end <= from {
		farm.LastUpdate = now
		return nil
	}
	elapsed := uint64(end - from)

	next := make([]RewardSlot, len(farm.Slots))
	copy(next, farm.Slots)
	for i := range next {
		if err := accrueSlot(&next[i], elapsed, totalShares); err != nil {
			return err
		}
	}
	copy(farm.Slots, next)
	farm.LastUpdate = now
	return nil
}

func accrueSlot(s *RewardSlot, elapsed, totalShares uint64) error {
	emitted, err := fixedpoint.Mul(elapsed, s.EmissionRate)
	if err != nil || emitted > s.Supply {
		// Emission is capped by the remaining supply.
		emitted = s.Supply
	}
	s.Supply -= emitted

	pot, err := fixedpoint.Add(emitted, s.Carry)
	if err != nil {
		return fmt.Errorf("reward accrual: %w", err)
	}
	if pot == 0 {
		return nil
	}
	if totalShares == 0 {
		s.Carry = pot
		return nil
	}
	inc := uint128.From64(pot).Mul64(RewardPrecision).Div64(totalShares)
	s.RewardPerShare = s.RewardPerShare.Add(inc)
	s.Carry = 0
	pending, err := fixedpoint.Add(s.PendingTotal, pot)
	if err != nil {
		return fmt.Errorf("reward accrual: %w", err)
	}
	s.PendingTotal = pending
	return nil
}

// settlePosition folds the accumulator growth since the position's
// checkpoints into its owed balances. All amounts are computed before any
// are applied.
func (l *Ledger) settlePosition(farm *Farm, pos *FarmPosition) error {
	var amts [MaxRewardSlots]uint64
	for i := range farm.Slots {
		delta := farm.Slots[i].RewardPerShare.Sub(pos.Checkpoint[i])
		amt, err := claimableAmount(delta, pos.StakedShares)
		if err != nil {
			return fmt.Errorf("reward settle: %w", err)
		}
		owed, err := fixedpoint.Add(pos.Owed[i], amt)
		if err != nil {
			return fmt.Errorf("reward settle: %w", err)
		}
		amts[i] = owed
	}
	for i := range farm.Slots {
		pos.Owed[i] = amts[i]
		pos.Checkpoint[i] = farm.Slots[i].RewardPerShare
	}
	return nil
}

// ensurePosition returns the owner's position, creating it at the current
// accumulator values on first stake.
func (l *Ledger) ensurePosition(farm *Farm, owner solana.PublicKey) *FarmPosition {
	key := positionKey{farm.Address, owner}
	if pos, ok := l.positions[key]; ok {
		return pos
	}
	pos := &FarmPosition{Owner: owner, Farm: farm.Address}
	for i := range farm.Slots {
		pos.Checkpoint[i] = farm.Slots[i].RewardPerShare
	}
	l.positions[key] = pos
	return pos
}

// positionHasPending reports whether a position still holds owed or
// claimable rewards.
func (l *Ledger) positionHasPending(farm *Farm, pos *FarmPosition) bool {
	for i := range farm.Slots {
		if pos.Owed[i] != 0 {
			return true
		}
		delta := farm.Slots[i].RewardPerShare.Sub(pos.Checkpoint[i])
		if amt, err := claimableAmount(delta, pos.StakedShares); err != nil || amt != 0 {
			return true
		}
	}
	return false
}

// claimableAmount computes shares * delta / RewardPrecision where delta is
// a scaled per-share accumulator difference, overflow-checked end to end.
func claimableAmount(delta uint128.Uint128, shares uint64) (uint64, error) {
	if shares == 0 || delta.IsZero() {
		return 0, nil
	}
	whole, frac := delta.QuoRem64(RewardPrecision)
	if whole.Hi != 0 {
		return 0, fixedpoint.ErrOverflow
	}
	a, err := fixedpoint.Mul(whole.Lo, shares)
	if err != nil {
		return 0, err
	}
	b, err := fixedpoint.MulDiv(frac, shares, RewardPrecision)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Add(a, b)
}

func farmEffect(farm *Farm) *FarmEffect {
	eff := &FarmEffect{
		Farm:      farm.Address,
		Pool:      farm.Pool,
		StartTime: farm.StartTime,
		EndTime:   farm.EndTime,
	}
	for i := range farm.Slots {
		eff.Supplies[i] = farm.Slots[i].Supply
		eff.Rates[i] = farm.Slots[i].EmissionRate
	}
	return eff
}
