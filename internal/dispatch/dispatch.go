// Package dispatch is the hosting executor for the accounting engine: it
// authenticates nothing itself (callers arrive resolved), but provides the
// total ordering the engine requires, journals every applied effect, and
// owns the retry policy for recoverable failures. The engine never retries
// internally; a rejected precondition surfaces here and the submitter
// decides.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mercantiswap/pool-engine/internal/engine"
)

// Clock supplies transaction time to the lazily evaluated farm schedules.
type Clock func() int64

// Receipt journals one applied instruction.
type Receipt struct {
	ID        string
	Op        string
	Caller    solana.PublicKey
	Pool      solana.PublicKey
	Effect    engine.Effect
	AppliedAt int64
}

// Dispatcher applies instructions against a single ledger under the host's
// sequential-transaction ordering: one writer lock covers the whole ledger,
// so every operation is atomic and totally ordered, and submitters on
// different pools can still fan in from any number of goroutines.
type Dispatcher struct {
	ledger *engine.Ledger
	log    *zap.Logger
	clock  Clock

	mu      sync.Mutex
	journal []Receipt
}

// New builds a dispatcher. A nil clock defaults to wall time in seconds.
func New(ledger *engine.Ledger, log *zap.Logger, clock Clock) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	return &Dispatcher{ledger: ledger, log: log, clock: clock}
}

// Submit applies one instruction synchronously and journals its effect.
func (d *Dispatcher) Submit(ctx context.Context, caller solana.PublicKey, in engine.Instruction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	op := engine.InstructionName(in)
	id := uuid.New().String()

	d.mu.Lock()
	now := d.clock()
	effect, err := d.ledger.Apply(caller, now, in)
	if err != nil {
		d.mu.Unlock()
		d.log.Debug("instruction rejected",
			zap.String("correlation_id", id),
			zap.String("operation", op),
			zap.String("caller", caller.String()),
			zap.Error(err))
		return nil, err
	}
	receipt := Receipt{
		ID:        id,
		Op:        op,
		Caller:    caller,
		Pool:      in.Target(),
		Effect:    effect,
		AppliedAt: now,
	}
	d.journal = append(d.journal, receipt)
	d.mu.Unlock()

	d.log.Debug("instruction applied",
		zap.String("correlation_id", id),
		zap.String("operation", op),
		zap.String("caller", caller.String()))
	return &receipt, nil
}

// SubmitWithRetry retries recoverable rejections with exponential backoff.
// Only price-limit breaches are worth retrying unchanged: concurrent flow on
// the pool can move the price back inside the limit. Everything else is
// permanent for the given arguments.
func (d *Dispatcher) SubmitWithRetry(ctx context.Context, caller solana.PublicKey, in engine.Instruction, maxTries uint) (*Receipt, error) {
	operation := func() (*Receipt, error) {
		receipt, err := d.Submit(ctx, caller, in)
		if err != nil && !errors.Is(err, engine.ErrPriceLimitExceeded) {
			return nil, backoff.Permanent(err)
		}
		return receipt, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries))
}

// SubmitAll fans a batch out across goroutines and fails fast on the first
// rejection. Ordering between instructions in the batch is unspecified;
// callers needing an order submit sequentially.
func (d *Dispatcher) SubmitAll(ctx context.Context, caller solana.PublicKey, batch []engine.Instruction) ([]*Receipt, error) {
	receipts := make([]*Receipt, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	for i, in := range batch {
		g.Go(func() error {
			r, err := d.Submit(ctx, caller, in)
			if err != nil {
				return err
			}
			receipts[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return receipts, nil
}

// Journal returns a copy of the applied-effect journal.
func (d *Dispatcher) Journal() []Receipt {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Receipt, len(d.journal))
	copy(out, d.journal)
	return out
}

// Snapshot serializes the ledger under the dispatcher's lock, so the bytes
// are consistent with the journal.
func (d *Dispatcher) Snapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ledger.Snapshot()
}
