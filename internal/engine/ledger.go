package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Params are the engine tunables the deployment configures.
type Params struct {
	// DepositToleranceBps bounds how far a deposit may deviate from the
	// pool's current reserve ratio.
	DepositToleranceBps uint64
	// BootstrapShares is the fixed share amount minted to the first
	// depositor of an empty pool.
	BootstrapShares uint64
}

// DefaultParams returns the production defaults: a 1% tolerance band and
// one million bootstrap shares.
func DefaultParams() Params {
	return Params{
		DepositToleranceBps: 100,
		BootstrapShares:     1_000_000,
	}
}

type pairKey struct {
	x solana.PublicKey
	y solana.PublicKey
}

type providerKey struct {
	pool  solana.PublicKey
	owner solana.PublicKey
}

type positionKey struct {
	farm  solana.PublicKey
	owner solana.PublicKey
}

// Ledger is the process-wide accounting state: the global authority record,
// the pool table keyed by token-pair identity, and every provider, farm, and
// farm position. It is a sequential state machine; the hosting dispatcher
// serializes operations per pool.
type Ledger struct {
	params Params
	log    *zap.Logger

	state     *GlobalState
	pools     map[solana.PublicKey]*Pool
	byPair    map[pairKey]solana.PublicKey
	providers map[providerKey]*Provider
	farms     map[solana.PublicKey]*Farm // keyed by pool address
	positions map[positionKey]*FarmPosition
}

// NewLedger returns an empty ledger. A nil logger disables logging.
func NewLedger(params Params, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		params:    params,
		log:       log,
		pools:     make(map[solana.PublicKey]*Pool),
		byPair:    make(map[pairKey]solana.PublicKey),
		providers: make(map[providerKey]*Provider),
		farms:     make(map[solana.PublicKey]*Farm),
		positions: make(map[positionKey]*FarmPosition),
	}
}

// State returns the global state record, or nil before createState.
func (l *Ledger) State() *GlobalState { return l.state }

// PoolByPair resolves a pool by its (unordered) token pair.
func (l *Ledger) PoolByPair(tokenA, tokenB solana.PublicKey) (*Pool, bool) {
	x, y := orderTokens(tokenA, tokenB)
	addr, ok := l.byPair[pairKey{x, y}]
	if !ok {
		return nil, false
	}
	return l.pools[addr], true
}

// PoolByAddress resolves a pool by its derived address.
func (l *Ledger) PoolByAddress(addr solana.PublicKey) (*Pool, bool) {
	p, ok := l.pools[addr]
	return p, ok
}

// Provider resolves a provider record.
func (l *Ledger) Provider(pool, owner solana.PublicKey) (*Provider, bool) {
	p, ok := l.providers[providerKey{pool, owner}]
	return p, ok
}

// Farm resolves the farm attached to a pool.
func (l *Ledger) Farm(pool solana.PublicKey) (*Farm, bool) {
	f, ok := l.farms[pool]
	return f, ok
}

// Position resolves a provider's farm position.
func (l *Ledger) Position(farm, owner solana.PublicKey) (*FarmPosition, bool) {
	p, ok := l.positions[positionKey{farm, owner}]
	return p, ok
}

// CreateState creates the singleton authority record. It can only succeed
// once per deployment.
func (l *Ledger) CreateState(authority, mercantiAuthority solana.PublicKey) (*StateEffect, error) {
	if l.state != nil {
		return nil, ErrStateExists
	}
	if authority.IsZero() || mercantiAuthority.IsZero() {
		return nil, fmt.Errorf("%w: zero authority", ErrInvalidAmount)
	}
	l.state = &GlobalState{
		Authority:         authority,
		MercantiAuthority: mercantiAuthority,
		Nonce:             0,
	}
	l.log.Info("global state created",
		zap.String("authority", authority.String()),
		zap.String("mercanti_authority", mercantiAuthority.String()))
	return &StateEffect{Authority: authority, MercantiAuthority: mercantiAuthority}, nil
}

// CreatePool registers a new two-token pool. Only the global authority may
// create pools; the token pair is canonically ordered and must be unique.
func (l *Ledger) CreatePool(caller, tokenA, tokenB, projectOwner solana.PublicKey, fees FeeConfig) (*PoolCreatedEffect, error) {
	if l.state == nil {
		return nil, ErrStateNotFound
	}
	if !caller.Equals(l.state.Authority) {
		return nil, fmt.Errorf("%w: createPool requires the state authority", ErrUnauthorized)
	}
	if tokenA.Equals(tokenB) {
		return nil, ErrIdenticalMints
	}
	if tokenA.IsZero() || tokenB.IsZero() {
		return nil, fmt.Errorf("%w: zero token mint", ErrInvalidAmount)
	}
	if projectOwner.IsZero() {
		return nil, fmt.Errorf("%w: zero project owner", ErrInvalidAmount)
	}
	if err := fees.Validate(); err != nil {
		return nil, err
	}
	x, y := orderTokens(tokenA, tokenB)
	key := pairKey{x, y}
	if _, exists := l.byPair[key]; exists {
		return nil, ErrPoolExists
	}

	nonce := l.state.Nonce
	addr, bump, err := derivePoolAddress(nonce, x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to derive pool address: %w", err)
	}

	pool := &Pool{
		Address:      addr,
		TokenX:       x,
		TokenY:       y,
		ProjectOwner: projectOwner,
		Fees:         fees,
		Bump:         bump,
	}
	l.state.Nonce++
	l.pools[addr] = pool
	l.byPair[key] = addr

	l.log.Info("pool created",
		zap.String("pool", addr.String()),
		zap.String("token_x", x.String()),
		zap.String("token_y", y.String()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("total_fee_bps", fees.Total()))
	return &PoolCreatedEffect{Pool: addr, TokenX: x, TokenY: y, Fees: fees, Nonce: nonce}, nil
}

// CreateProvider registers a zero-share provider ahead of a first deposit.
// addTokens creates the record implicitly, so this is optional.
func (l *Ledger) CreateProvider(poolAddr, owner solana.PublicKey) (*ProviderCreatedEffect, error) {
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: zero owner", ErrInvalidAmount)
	}
	key := providerKey{poolAddr, owner}
	if _, exists := l.providers[key]; exists {
		return nil, ErrProviderExists
	}
	l.providers[key] = &Provider{
		Owner:         owner,
		Pool:          poolAddr,
		FeeCheckpoint: pool.Ledger.Credited[BucketLP],
	}
	return &ProviderCreatedEffect{Pool: poolAddr, Owner: owner}, nil
}

// UpdateFees replaces a pool's fee configuration. The new rates apply from
// the next swap; fees already credited are untouched.
func (l *Ledger) UpdateFees(caller, poolAddr solana.PublicKey, fees FeeConfig) (*FeesUpdatedEffect, error) {
	pool, err := l.adminPool(caller, poolAddr)
	if err != nil {
		return nil, err
	}
	if err := fees.Validate(); err != nil {
		return nil, err
	}
	pool.Fees = fees
	l.log.Info("pool fees updated",
		zap.String("pool", poolAddr.String()),
		zap.Uint64("total_fee_bps", fees.Total()))
	return &FeesUpdatedEffect{Pool: poolAddr, Fees: fees}, nil
}

// WithdrawBuyback drains the buyback bucket to the global authority.
func (l *Ledger) WithdrawBuyback(caller, poolAddr solana.PublicKey) (*FeeWithdrawalEffect, error) {
	pool, err := l.adminPool(caller, poolAddr)
	if err != nil {
		return nil, err
	}
	return l.drainBucket(pool, BucketBuyback, l.state.Authority), nil
}

// WithdrawProjectFee drains the project bucket to the pool's project owner.
func (l *Ledger) WithdrawProjectFee(caller, poolAddr solana.PublicKey) (*FeeWithdrawalEffect, error) {
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if !caller.Equals(pool.ProjectOwner) {
		return nil, fmt.Errorf("%w: withdrawProjectFee requires the project owner", ErrUnauthorized)
	}
	return l.drainBucket(pool, BucketProject, pool.ProjectOwner), nil
}

// WithdrawMercantiFee drains the protocol bucket to the mercanti authority.
func (l *Ledger) WithdrawMercantiFee(caller, poolAddr solana.PublicKey) (*FeeWithdrawalEffect, error) {
	if l.state == nil {
		return nil, ErrStateNotFound
	}
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if !caller.Equals(l.state.MercantiAuthority) {
		return nil, fmt.Errorf("%w: withdrawMercantiFee requires the mercanti authority", ErrUnauthorized)
	}
	return l.drainBucket(pool, BucketMercanti, l.state.MercantiAuthority), nil
}

// ClosePool zeroes a pool whose providers have all exited, draining every
// fee bucket and residual reserves to the authority, and removes the pool,
// its farm, and any leftover zero-share records from the registry.
func (l *Ledger) ClosePool(caller, poolAddr solana.PublicKey) (*PoolClosedEffect, error) {
	pool, err := l.adminPool(caller, poolAddr)
	if err != nil {
		return nil, err
	}
	if pool.TotalShares != 0 {
		return nil, ErrPoolNotEmpty
	}

	eff := &PoolClosedEffect{
		Pool:     poolAddr,
		Reserves: TokenAmounts{X: pool.ReserveX, Y: pool.ReserveY},
	}
	for b := FeeBucket(0); b < NumBuckets; b++ {
		eff.FeesDrained[b] = pool.Ledger.Balance(b)
	}

	delete(l.byPair, pairKey{pool.TokenX, pool.TokenY})
	delete(l.pools, poolAddr)
	if farm, ok := l.farms[poolAddr]; ok {
		for key := range l.positions {
			if key.farm.Equals(farm.Address) {
				delete(l.positions, key)
			}
		}
		delete(l.farms, poolAddr)
	}
	for key := range l.providers {
		if key.pool.Equals(poolAddr) {
			delete(l.providers, key)
		}
	}

	l.log.Info("pool closed",
		zap.String("pool", poolAddr.String()),
		zap.Uint64("residual_x", eff.Reserves.X),
		zap.Uint64("residual_y", eff.Reserves.Y))
	return eff, nil
}

// adminPool resolves a pool and checks the caller is the global authority.
func (l *Ledger) adminPool(caller, poolAddr solana.PublicKey) (*Pool, error) {
	if l.state == nil {
		return nil, ErrStateNotFound
	}
	pool, ok := l.pools[poolAddr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	if !caller.Equals(l.state.Authority) {
		return nil, fmt.Errorf("%w: operation requires the state authority", ErrUnauthorized)
	}
	return pool, nil
}

// drainBucket empties one fee bucket. Draining an empty bucket is a no-op
// success, not an error.
func (l *Ledger) drainBucket(pool *Pool, b FeeBucket, recipient solana.PublicKey) *FeeWithdrawalEffect {
	bal := pool.Ledger.Balance(b)
	pool.Ledger.Withdrawn[b] = pool.Ledger.Credited[b]
	if !bal.IsZero() {
		l.log.Debug("fee bucket drained",
			zap.String("pool", pool.Address.String()),
			zap.String("bucket", b.String()),
			zap.Uint64("amount_x", bal.X),
			zap.Uint64("amount_y", bal.Y))
	}
	return &FeeWithdrawalEffect{
		Pool:      pool.Address,
		Bucket:    b,
		Recipient: recipient,
		Amount:    bal,
	}
}

func orderTokens(a, b solana.PublicKey) (solana.PublicKey, solana.PublicKey) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

func derivePoolAddress(nonce uint64, x, y solana.PublicKey) (solana.PublicKey, uint8, error) {
	var nonceLE [8]byte
	binary.LittleEndian.PutUint64(nonceLE[:], nonce)
	return solana.FindProgramAddress(
		[][]byte{[]byte("pool"), nonceLE[:], x[:], y[:]},
		ProgramID,
	)
}

func deriveFarmAddress(pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte("farm"), pool[:]},
		ProgramID,
	)
}
