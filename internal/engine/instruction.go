package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Instruction is the tagged-variant request type the external dispatcher
// feeds into Apply: one variant per operation, each with a fixed, typed
// argument struct validated at this boundary.
type Instruction interface {
	// Target returns the pool the instruction operates on, or the zero key
	// for global instructions. The dispatcher keys its serialization on it.
	Target() solana.PublicKey
	name() string
}

type CreateStateArgs struct {
	MercantiAuthority solana.PublicKey
}

type CreatePoolArgs struct {
	TokenA       solana.PublicKey
	TokenB       solana.PublicKey
	ProjectOwner solana.PublicKey
	Fees         FeeConfig
}

type CreateProviderArgs struct {
	Pool  solana.PublicKey
	Owner solana.PublicKey
}

type AddTokensArgs struct {
	Pool   solana.PublicKey
	DeltaX uint64
	DeltaY uint64
}

type SwapArgs struct {
	Pool       solana.PublicKey
	DeltaIn    uint64
	PriceLimit uint64
	XToY       bool
}

type WithdrawSharesArgs struct {
	Pool   solana.PublicKey
	Shares uint64
}

type WithdrawLpFeeArgs struct {
	Pool solana.PublicKey
}

type WithdrawBuybackArgs struct {
	Pool solana.PublicKey
}

type WithdrawProjectFeeArgs struct {
	Pool solana.PublicKey
}

type WithdrawMercantiFeeArgs struct {
	Pool solana.PublicKey
}

type CreateFarmArgs struct {
	Pool     solana.PublicKey
	Mint     solana.PublicKey
	Supply   uint64
	Start    int64
	Duration int64
}

type CreateDualFarmArgs struct {
	Pool     solana.PublicKey
	Mints    [2]solana.PublicKey
	Supplies [2]uint64
	Start    int64
	Duration int64
}

type CreateTripleFarmArgs struct {
	Pool     solana.PublicKey
	Mints    [3]solana.PublicKey
	Supplies [3]uint64
	Start    int64
	Duration int64
}

type WithdrawRewardsArgs struct {
	Pool solana.PublicKey
}

type AddSupplyArgs struct {
	Pool        solana.PublicKey
	Slot        int
	Amount      uint64
	NewDuration int64
}

type UpdateFeesArgs struct {
	Pool solana.PublicKey
	Fees FeeConfig
}

type ResetFarmArgs struct {
	Pool solana.PublicKey
}

type UpdateRewardTokensArgs struct {
	Pool    solana.PublicKey
	Slot    int
	NewMint solana.PublicKey
}

type ClosePoolArgs struct {
	Pool solana.PublicKey
}

func (CreateStateArgs) Target() solana.PublicKey { return solana.PublicKey{} }
func (a CreatePoolArgs) Target() solana.PublicKey { return solana.PublicKey{} }
func (a CreateProviderArgs) Target() solana.PublicKey      { return a.Pool }
func (a AddTokensArgs) Target() solana.PublicKey           { return a.Pool }
func (a SwapArgs) Target() solana.PublicKey                { return a.Pool }
func (a WithdrawSharesArgs) Target() solana.PublicKey      { return a.Pool }
func (a WithdrawLpFeeArgs) Target() solana.PublicKey       { return a.Pool }
func (a WithdrawBuybackArgs) Target() solana.PublicKey     { return a.Pool }
func (a WithdrawProjectFeeArgs) Target() solana.PublicKey  { return a.Pool }
func (a WithdrawMercantiFeeArgs) Target() solana.PublicKey { return a.Pool }
func (a CreateFarmArgs) Target() solana.PublicKey          { return a.Pool }
func (a CreateDualFarmArgs) Target() solana.PublicKey      { return a.Pool }
func (a CreateTripleFarmArgs) Target() solana.PublicKey    { return a.Pool }
func (a WithdrawRewardsArgs) Target() solana.PublicKey     { return a.Pool }
func (a AddSupplyArgs) Target() solana.PublicKey           { return a.Pool }
func (a UpdateFeesArgs) Target() solana.PublicKey          { return a.Pool }
func (a ResetFarmArgs) Target() solana.PublicKey           { return a.Pool }
func (a UpdateRewardTokensArgs) Target() solana.PublicKey  { return a.Pool }
func (a ClosePoolArgs) Target() solana.PublicKey           { return a.Pool }

func (CreateStateArgs) name() string         { return "createState" }
func (CreatePoolArgs) name() string          { return "createPool" }
func (CreateProviderArgs) name() string      { return "createProvider" }
func (AddTokensArgs) name() string           { return "addTokens" }
func (SwapArgs) name() string                { return "swap" }
func (WithdrawSharesArgs) name() string      { return "withdrawShares" }
func (WithdrawLpFeeArgs) name() string       { return "withdrawLpFee" }
func (WithdrawBuybackArgs) name() string     { return "withdrawBuyback" }
func (WithdrawProjectFeeArgs) name() string  { return "withdrawProjectFee" }
func (WithdrawMercantiFeeArgs) name() string { return "withdrawMercantiFee" }
func (CreateFarmArgs) name() string          { return "createFarm" }
func (CreateDualFarmArgs) name() string      { return "createDualFarm" }
func (CreateTripleFarmArgs) name() string    { return "createTripleFarm" }
func (WithdrawRewardsArgs) name() string     { return "withdrawRewards" }
func (AddSupplyArgs) name() string           { return "addSupply" }
func (UpdateFeesArgs) name() string          { return "updateFees" }
func (ResetFarmArgs) name() string           { return "resetFarm" }
func (UpdateRewardTokensArgs) name() string  { return "updateRewardTokens" }
func (ClosePoolArgs) name() string           { return "closePool" }

// InstructionName returns the operation name of an instruction, for logs
// and journals.
func InstructionName(in Instruction) string { return in.name() }

// Apply routes one instruction to its operation. caller is the
// authenticated identity the dispatcher resolved; now is the transaction
// time for the lazily evaluated farm schedules.
func (l *Ledger) Apply(caller solana.PublicKey, now int64, in Instruction) (Effect, error) {
	switch a := in.(type) {
	case CreateStateArgs:
		return l.CreateState(caller, a.MercantiAuthority)
	case CreatePoolArgs:
		return l.CreatePool(caller, a.TokenA, a.TokenB, a.ProjectOwner, a.Fees)
	case CreateProviderArgs:
		return l.CreateProvider(a.Pool, a.Owner)
	case AddTokensArgs:
		return l.AddTokens(a.Pool, caller, a.DeltaX, a.DeltaY, now)
	case SwapArgs:
		return l.Swap(a.Pool, a.DeltaIn, a.PriceLimit, a.XToY)
	case WithdrawSharesArgs:
		return l.WithdrawShares(a.Pool, caller, a.Shares, now)
	case WithdrawLpFeeArgs:
		return l.WithdrawLpFee(a.Pool, caller)
	case WithdrawBuybackArgs:
		return l.WithdrawBuyback(caller, a.Pool)
	case WithdrawProjectFeeArgs:
		return l.WithdrawProjectFee(caller, a.Pool)
	case WithdrawMercantiFeeArgs:
		return l.WithdrawMercantiFee(caller, a.Pool)
	case CreateFarmArgs:
		return l.CreateFarm(caller, a.Pool, a.Mint, a.Supply, a.Start, a.Duration, now)
	case CreateDualFarmArgs:
		return l.CreateDualFarm(caller, a.Pool, a.Mints, a.Supplies, a.Start, a.Duration, now)
	case CreateTripleFarmArgs:
		return l.CreateTripleFarm(caller, a.Pool, a.Mints, a.Supplies, a.Start, a.Duration, now)
	case WithdrawRewardsArgs:
		return l.WithdrawRewards(a.Pool, caller, now)
	case AddSupplyArgs:
		return l.AddSupply(caller, a.Pool, a.Slot, a.Amount, a.NewDuration, now)
	case UpdateFeesArgs:
		return l.UpdateFees(caller, a.Pool, a.Fees)
	case ResetFarmArgs:
		return l.ResetFarm(caller, a.Pool, now)
	case UpdateRewardTokensArgs:
		return l.UpdateRewardTokens(caller, a.Pool, a.NewMint, a.Slot, now)
	case ClosePoolArgs:
		return l.ClosePool(caller, a.Pool)
	default:
		return nil, fmt.Errorf("unknown instruction %T", in)
	}
}
