// poolsim drives a randomized multi-pool workload against the accounting
// engine and verifies token conservation from the dispatch journal. It is
// the operational harness for the engine: swaps retried through the
// dispatcher's backoff policy, deposits and withdrawals interleaved with
// farm claims, all fanned out across goroutines.
package main

import (
	"context"
	crand "crypto/rand"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mercantiswap/pool-engine/internal/config"
	"github.com/mercantiswap/pool-engine/internal/dispatch"
	"github.com/mercantiswap/pool-engine/internal/engine"
	"github.com/mercantiswap/pool-engine/internal/export"
	"github.com/mercantiswap/pool-engine/internal/logger"
	"github.com/mercantiswap/pool-engine/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to engine config file")
	pools := flag.Int("pools", 4, "number of pools to simulate")
	ops := flag.Int("ops", 500, "operations per pool")
	exportDir := flag.String("export-dir", "", "directory for the journal export, empty disables")
	snapshotDir := flag.String("snapshot-dir", "", "directory for the final ledger snapshot, empty disables")
	flag.Parse()

	if err := run(*configPath, *pools, *ops, *exportDir, *snapshotDir); err != nil {
		fmt.Fprintf(os.Stderr, "poolsim: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, pools, ops int, exportDir, snapshotDir string) error {
	params := engine.DefaultParams()
	logCfg := logger.DefaultConfig()
	logCfg.Development = true

	authority := randomKey()
	mercanti := randomKey()
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		params = cfg.EngineParams()
		logCfg.LogFile = cfg.LogFile
		logCfg.Development = cfg.DebugLogging
		if authority, err = cfg.AuthorityKey(); err != nil {
			return err
		}
		if mercanti, err = cfg.MercantiKey(); err != nil {
			return err
		}
	}

	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Virtual clock: one time unit per submitted instruction, so farm
	// emission advances deterministically with load.
	var tick atomic.Int64
	clock := func() int64 { return tick.Add(1) }

	ledger := engine.NewLedger(params, log.Logger)
	d := dispatch.New(ledger, log.Logger, clock)
	ctx := context.Background()

	if _, err := d.Submit(ctx, authority, engine.CreateStateArgs{MercantiAuthority: mercanti}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < pools; p++ {
		g.Go(func() error { return simulatePool(gctx, d, authority, ops) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failures := verifyConservation(ledger, d.Journal())
	log.Info("simulation finished",
		zap.Int("pools", pools),
		zap.Int("ops_per_pool", ops),
		zap.Int("conservation_failures", failures))
	if failures > 0 {
		return fmt.Errorf("conservation violated in %d pool(s)", failures)
	}

	if exportDir != "" {
		path, err := export.NewJournalExporter(log.Logger).Export(d.Journal(), export.Options{
			Format:    export.FormatCSV,
			OutputDir: exportDir,
		})
		if err != nil {
			return fmt.Errorf("failed to export journal: %w", err)
		}
		log.Info("journal exported", zap.String("path", path))
	}
	if snapshotDir != "" {
		store, err := storage.NewFileStore(snapshotDir, 10, log.Logger)
		if err != nil {
			return err
		}
		data, err := d.Snapshot()
		if err != nil {
			return err
		}
		path, err := store.SaveSnapshot(ctx, data)
		if err != nil {
			return err
		}
		log.Info("ledger snapshot saved", zap.String("path", path))
	}
	return nil
}

func simulatePool(ctx context.Context, d *dispatch.Dispatcher, authority solana.PublicKey, ops int) error {
	tokenA, tokenB := randomKey(), randomKey()
	project := randomKey()
	lp, trader := randomKey(), randomKey()

	fees := engine.FeeConfig{LpBps: 25, BuybackBps: 5, ProjectBps: 10, MercantiBps: 5}
	created, err := d.Submit(ctx, authority, engine.CreatePoolArgs{
		TokenA: tokenA, TokenB: tokenB, ProjectOwner: project, Fees: fees,
	})
	if err != nil {
		return err
	}
	pool := created.Effect.(*engine.PoolCreatedEffect).Pool

	if _, err := d.Submit(ctx, lp, engine.AddTokensArgs{Pool: pool, DeltaX: 10_000_000, DeltaY: 10_000_000}); err != nil {
		return err
	}
	if _, err := d.Submit(ctx, authority, engine.CreateFarmArgs{
		Pool: pool, Mint: randomKey(), Supply: 1_000_000, Duration: int64(ops) * 4,
	}); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(int64(created.AppliedAt)))
	for i := 0; i < ops; i++ {
		switch rng.Intn(10) {
		case 0:
			// Ratio-matched top-up.
			amt := uint64(rng.Intn(100_000) + 1000)
			_, err = d.Submit(ctx, lp, engine.AddTokensArgs{Pool: pool, DeltaX: amt, DeltaY: amt})
			if err != nil && !errors.Is(err, engine.ErrImbalancedDeposit) {
				return err
			}
		case 1:
			_, err = d.Submit(ctx, lp, engine.WithdrawSharesArgs{Pool: pool, Shares: uint64(rng.Intn(10_000) + 1)})
			if err != nil && !errors.Is(err, engine.ErrInsufficientShares) &&
				!errors.Is(err, engine.ErrProviderNotFound) {
				return err
			}
		case 2:
			if _, err = d.Submit(ctx, lp, engine.WithdrawRewardsArgs{Pool: pool}); err != nil &&
				!errors.Is(err, engine.ErrNothingToClaim) {
				return err
			}
		case 3:
			if _, err = d.Submit(ctx, lp, engine.WithdrawLpFeeArgs{Pool: pool}); err != nil &&
				!errors.Is(err, engine.ErrProviderNotFound) {
				return err
			}
		default:
			_, err = d.SubmitWithRetry(ctx, trader, engine.SwapArgs{
				Pool:    pool,
				DeltaIn: uint64(rng.Intn(50_000) + 100),
				XToY:    rng.Intn(2) == 0,
			}, 3)
			if err != nil && !errors.Is(err, engine.ErrInsufficientLiquidity) {
				return err
			}
		}
	}
	return nil
}

// verifyConservation recomputes each pool's expected token totals from the
// journal and compares them with reserves plus undrained fee balances.
func verifyConservation(ledger *engine.Ledger, journal []dispatch.Receipt) int {
	type totals struct{ x, y int64 }
	expected := make(map[solana.PublicKey]*totals)
	tally := func(pool solana.PublicKey) *totals {
		t, ok := expected[pool]
		if !ok {
			t = &totals{}
			expected[pool] = t
		}
		return t
	}

	for _, r := range journal {
		switch e := r.Effect.(type) {
		case *engine.DepositEffect:
			t := tally(e.Pool)
			t.x += int64(e.DeltaX)
			t.y += int64(e.DeltaY)
		case *engine.WithdrawEffect:
			t := tally(e.Pool)
			t.x -= int64(e.OutX)
			t.y -= int64(e.OutY)
		case *engine.SwapEffect:
			t := tally(e.Pool)
			if e.XToY {
				t.x += int64(e.DeltaIn)
				t.y -= int64(e.DeltaOut)
			} else {
				t.y += int64(e.DeltaIn)
				t.x -= int64(e.DeltaOut)
			}
		case *engine.LpFeeEffect:
			t := tally(e.Pool)
			t.x -= int64(e.Amount.X)
			t.y -= int64(e.Amount.Y)
		case *engine.FeeWithdrawalEffect:
			t := tally(e.Pool)
			t.x -= int64(e.Amount.X)
			t.y -= int64(e.Amount.Y)
		}
	}

	failures := 0
	for addr, t := range expected {
		pool, ok := ledger.PoolByAddress(addr)
		if !ok {
			continue
		}
		actualX := int64(pool.ReserveX)
		actualY := int64(pool.ReserveY)
		for b := engine.FeeBucket(0); b < engine.NumBuckets; b++ {
			bal := pool.Ledger.Balance(b)
			actualX += int64(bal.X)
			actualY += int64(bal.Y)
		}
		if actualX != t.x || actualY != t.y {
			failures++
		}
	}
	return failures
}

func randomKey() solana.PublicKey {
	var b [32]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic(err)
	}
	return solana.PublicKeyFromBytes(b[:])
}
