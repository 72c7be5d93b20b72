// Package engine implements the Mercanti pool and farm accounting core: a
// sequential state machine over constant-product pools, proportional
// liquidity shares, a four-bucket fee ledger, and time-weighted reward
// farms. All amounts are integer token units; every computation that could
// overflow goes through internal/fixedpoint and surfaces overflow as an
// error instead of a wrong number.
//
// The engine performs no I/O and keeps no locks: the hosting dispatcher
// serializes operations per pool and supplies the current time.
package engine

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/mercantiswap/pool-engine/internal/fixedpoint"
)

// ProgramID seeds the deterministic derivation of pool and farm addresses.
var ProgramID = solana.PublicKeyFromBytes([]byte("mercanti pool engine program v01"))

const (
	// PriceScale is the fixed-point scale for spot prices and price limits
	// (Y units per X unit, times 1e9).
	PriceScale = 1_000_000_000

	// RewardPrecision scales the per-share reward accumulators.
	RewardPrecision = 1_000_000_000_000

	// MaxRewardSlots is the number of reward tokens a farm can emit.
	MaxRewardSlots = 3
)

// FeeBucket indexes the four swap-fee destinations.
type FeeBucket uint8

const (
	BucketLP FeeBucket = iota
	BucketBuyback
	BucketProject
	BucketMercanti

	NumBuckets = 4
)

func (b FeeBucket) String() string {
	switch b {
	case BucketLP:
		return "lp"
	case BucketBuyback:
		return "buyback"
	case BucketProject:
		return "project"
	case BucketMercanti:
		return "mercanti"
	}
	return "unknown"
}

// TokenAmounts is an amount pair denominated in the pool's two tokens.
type TokenAmounts struct {
	X uint64
	Y uint64
}

// IsZero reports whether both sides are zero.
func (a TokenAmounts) IsZero() bool { return a.X == 0 && a.Y == 0 }

// FeeConfig holds the four swap-fee rates in basis points.
type FeeConfig struct {
	LpBps       uint64
	BuybackBps  uint64
	ProjectBps  uint64
	MercantiBps uint64
}

// Total returns the combined fee rate in basis points.
func (f FeeConfig) Total() uint64 {
	return f.LpBps + f.BuybackBps + f.ProjectBps + f.MercantiBps
}

// Validate rejects configurations whose combined rate exceeds 100%.
func (f FeeConfig) Validate() error {
	if f.Total() > fixedpoint.BpsDenominator {
		return ErrInvalidFeeConfig
	}
	return nil
}

// Rate returns the basis-point rate of one bucket.
func (f FeeConfig) Rate(b FeeBucket) uint64 {
	switch b {
	case BucketLP:
		return f.LpBps
	case BucketBuyback:
		return f.BuybackBps
	case BucketProject:
		return f.ProjectBps
	case BucketMercanti:
		return f.MercantiBps
	}
	return 0
}

// FeeLedger accumulates swap fees per bucket and per token side. Credited
// only grows; Withdrawn only grows; the withdrawable balance is the
// difference. Keeping the cumulative totals makes the conservation identity
// checkable across withdrawals.
type FeeLedger struct {
	Credited  [NumBuckets]TokenAmounts
	Withdrawn [NumBuckets]TokenAmounts
}

// Balance returns the currently withdrawable amount of one bucket.
func (l *FeeLedger) Balance(b FeeBucket) TokenAmounts {
	return TokenAmounts{
		X: l.Credited[b].X - l.Withdrawn[b].X,
		Y: l.Credited[b].Y - l.Withdrawn[b].Y,
	}
}

// CreditedTotal sums the cumulative credits across all buckets.
func (l *FeeLedger) CreditedTotal() TokenAmounts {
	var t TokenAmounts
	for b := 0; b < NumBuckets; b++ {
		t.X += l.Credited[b].X
		t.Y += l.Credited[b].Y
	}
	return t
}

// GlobalState is the single authority record gating administrative
// operations. Nonce grows monotonically and seeds sub-account derivation.
type GlobalState struct {
	Authority         solana.PublicKey
	MercantiAuthority solana.PublicKey
	Nonce             uint64
}

// Pool is a two-token constant-product reserve pair. TokenX and TokenY are
// canonically ordered and immutable after creation.
type Pool struct {
	Address      solana.PublicKey
	TokenX       solana.PublicKey
	TokenY       solana.PublicKey
	ProjectOwner solana.PublicKey
	ReserveX     uint64
	ReserveY     uint64
	Fees         FeeConfig
	TotalShares  uint64
	Ledger       FeeLedger
	Bump         uint8
}

// Provider is one liquidity provider's position in a pool: a share count
// plus the LP-fee checkpoint and any fee amounts settled but not yet paid.
type Provider struct {
	Owner solana.PublicKey
	Pool  solana.PublicKey
	// Shares is the proportional claim on the pool reserves.
	Shares uint64
	// FeeCheckpoint is the LP bucket's cumulative credit at the last settle.
	FeeCheckpoint TokenAmounts
	// OwedFees holds LP fees settled on share changes, paid on withdrawLpFee.
	OwedFees TokenAmounts
}

// FarmStatus is the lazily evaluated lifecycle stage of a reward slot.
type FarmStatus uint8

const (
	FarmPending FarmStatus = iota
	FarmActive
	FarmDepleted
)

func (s FarmStatus) String() string {
	switch s {
	case FarmPending:
		return "pending"
	case FarmActive:
		return "active"
	case FarmDepleted:
		return "depleted"
	}
	return "unknown"
}

// RewardSlot tracks one reward token's emission schedule and accounting.
type RewardSlot struct {
	Mint solana.PublicKey
	// Supply is the remaining undistributed reward amount.
	Supply uint64
	// EmissionRate is tokens released per time unit while active.
	EmissionRate uint64
	// RewardPerShare is the cumulative emission per staked share, scaled by
	// RewardPrecision.
	RewardPerShare uint128.Uint128
	// Carry is emission accrued while no shares were staked; it folds into
	// the next distribution instead of being lost.
	Carry uint64
	// PendingTotal is emission distributed into RewardPerShare but not yet
	// claimed by any position.
	PendingTotal uint64
}

// Farm attaches up to three reward emission schedules to a pool. Emission is
// linear between StartTime and EndTime and is advanced lazily on every
// touch; there is no background timer.
type Farm struct {
	Address    solana.PublicKey
	Pool       solana.PublicKey
	Slots      []RewardSlot
	StartTime  int64
	EndTime    int64
	LastUpdate int64
	Bump       uint8
}

// FarmPosition is one provider's claim checkpoint against a farm.
type FarmPosition struct {
	Owner        solana.PublicKey
	Farm         solana.PublicKey
	StakedShares uint64
	Checkpoint   [MaxRewardSlots]uint128.Uint128
	// Owed accumulates rewards settled when the staked share count changed
	// between claims.
	Owed [MaxRewardSlots]uint64
}
