package engine

import "github.com/gagliardetto/solana-go"

// Effect is the record an operation returns on success: the mutated state
// delta the external executor journals and persists. Failed operations
// return no effect and mutate nothing.
type Effect interface {
	isEffect()
}

// StateEffect reports creation of the global state record.
type StateEffect struct {
	Authority         solana.PublicKey
	MercantiAuthority solana.PublicKey
}

// PoolCreatedEffect reports a new pool and its derived address.
type PoolCreatedEffect struct {
	Pool   solana.PublicKey
	TokenX solana.PublicKey
	TokenY solana.PublicKey
	Fees   FeeConfig
	Nonce  uint64
}

// ProviderCreatedEffect reports registration of a zero-share provider.
type ProviderCreatedEffect struct {
	Pool  solana.PublicKey
	Owner solana.PublicKey
}

// SwapEffect reports a completed swap: amounts, fee split, and the post-swap
// reserves. BucketCredits sums to FeeAmount exactly.
type SwapEffect struct {
	Pool          solana.PublicKey
	XToY          bool
	DeltaIn       uint64
	NetIn         uint64
	DeltaOut      uint64
	FeeAmount     uint64
	BucketCredits [NumBuckets]uint64
	NewReserveX   uint64
	NewReserveY   uint64
}

// DepositEffect reports liquidity added and shares minted.
type DepositEffect struct {
	Pool         solana.PublicKey
	Owner        solana.PublicKey
	DeltaX       uint64
	DeltaY       uint64
	SharesMinted uint64
	TotalShares  uint64
	NewReserveX  uint64
	NewReserveY  uint64
}

// WithdrawEffect reports shares burned and reserves paid out.
type WithdrawEffect struct {
	Pool           solana.PublicKey
	Owner          solana.PublicKey
	SharesBurned   uint64
	OutX           uint64
	OutY           uint64
	TotalShares    uint64
	NewReserveX    uint64
	NewReserveY    uint64
	ProviderClosed bool
}

// LpFeeEffect reports an LP-fee payout to one provider.
type LpFeeEffect struct {
	Pool   solana.PublicKey
	Owner  solana.PublicKey
	Amount TokenAmounts
}

// FeeWithdrawalEffect reports a bucket drain to its role account. Draining
// an empty bucket succeeds with a zero amount.
type FeeWithdrawalEffect struct {
	Pool      solana.PublicKey
	Bucket    FeeBucket
	Recipient solana.PublicKey
	Amount    TokenAmounts
}

// FarmEffect reports farm creation or schedule mutation: the per-slot
// remaining supplies and emission rates after the operation.
type FarmEffect struct {
	Farm      solana.PublicKey
	Pool      solana.PublicKey
	Supplies  [MaxRewardSlots]uint64
	Rates     [MaxRewardSlots]uint64
	StartTime int64
	EndTime   int64
}

// ClaimEffect reports reward payouts per slot.
type ClaimEffect struct {
	Farm    solana.PublicKey
	Owner   solana.PublicKey
	Mints   [MaxRewardSlots]solana.PublicKey
	Amounts [MaxRewardSlots]uint64
}

// PoolClosedEffect reports the terminal drain of a pool.
type PoolClosedEffect struct {
	Pool        solana.PublicKey
	Reserves    TokenAmounts
	FeesDrained [NumBuckets]TokenAmounts
}

// FeesUpdatedEffect reports a fee reconfiguration, effective from the next
// swap.
type FeesUpdatedEffect struct {
	Pool solana.PublicKey
	Fees FeeConfig
}

func (StateEffect) isEffect()           {}
func (PoolCreatedEffect) isEffect()     {}
func (ProviderCreatedEffect) isEffect() {}
func (SwapEffect) isEffect()            {}
func (DepositEffect) isEffect()         {}
func (WithdrawEffect) isEffect()        {}
func (LpFeeEffect) isEffect()           {}
func (FeeWithdrawalEffect) isEffect()   {}
func (FarmEffect) isEffect()            {}
func (ClaimEffect) isEffect()           {}
func (PoolClosedEffect) isEffect()      {}
func (FeesUpdatedEffect) isEffect()     {}
