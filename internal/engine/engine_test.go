package engine

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) solana.PublicKey {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return solana.PublicKeyFromBytes(k[:])
}

var (
	testAuthority = testKey(0x01)
	testMercanti  = testKey(0x02)
	testProject   = testKey(0x03)
	testAlice     = testKey(0x0A)
	testBob       = testKey(0x0B)
	testTokenX    = testKey(0x10)
	testTokenY    = testKey(0x11)
)

func newTestLedger(t *testing.T, params Params) *Ledger {
	t.Helper()
	l := NewLedger(params, nil)
	_, err := l.CreateState(testAuthority, testMercanti)
	require.NoError(t, err)
	return l
}

// newTestPool creates a pool and returns its address.
func newTestPool(t *testing.T, l *Ledger, fees FeeConfig) solana.PublicKey {
	t.Helper()
	eff, err := l.CreatePool(testAuthority, testTokenX, testTokenY, testProject, fees)
	require.NoError(t, err)
	return eff.Pool
}

// seedPool creates a pool and bootstraps it with equal reserves.
func seedPool(t *testing.T, l *Ledger, fees FeeConfig, reserve uint64) solana.PublicKey {
	t.Helper()
	pool := newTestPool(t, l, fees)
	_, err := l.AddTokens(pool, testAlice, reserve, reserve, 0)
	require.NoError(t, err)
	return pool
}
