package engine

import (
	"bytes"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"
	"go.uber.org/zap"
)

// Snapshot is the persisted layout of the whole ledger, borsh-encoded in a
// deterministic order so identical ledgers serialize to identical bytes. The
// external executor persists it after each applied batch and restores it on
// startup.
type Snapshot struct {
	State     GlobalState
	Pools     []Pool
	Providers []Provider
	Farms     []Farm
	Positions []FarmPosition
}

// Snapshot serializes the ledger. It fails before createState, since there
// is no state record to anchor the layout.
func (l *Ledger) Snapshot() ([]byte, error) {
	if l.state == nil {
		return nil, ErrStateNotFound
	}
	snap := Snapshot{State: *l.state}
	for _, p := range l.pools {
		snap.Pools = append(snap.Pools, *p)
	}
	for _, p := range l.providers {
		snap.Providers = append(snap.Providers, *p)
	}
	for _, f := range l.farms {
		snap.Farms = append(snap.Farms, *f)
	}
	for _, p := range l.positions {
		snap.Positions = append(snap.Positions, *p)
	}
	sort.Slice(snap.Pools, func(i, j int) bool {
		return bytes.Compare(snap.Pools[i].Address[:], snap.Pools[j].Address[:]) < 0
	})
	sort.Slice(snap.Providers, func(i, j int) bool {
		a, b := snap.Providers[i], snap.Providers[j]
		if c := bytes.Compare(a.Pool[:], b.Pool[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Owner[:], b.Owner[:]) < 0
	})
	sort.Slice(snap.Farms, func(i, j int) bool {
		return bytes.Compare(snap.Farms[i].Address[:], snap.Farms[j].Address[:]) < 0
	})
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if c := bytes.Compare(a.Farm[:], b.Farm[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Owner[:], b.Owner[:]) < 0
	})

	data, err := bin.MarshalBorsh(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger snapshot: %w", err)
	}
	return data, nil
}

// RestoreLedger rebuilds a ledger from a snapshot produced by Snapshot.
func RestoreLedger(data []byte, params Params, log *zap.Logger) (*Ledger, error) {
	var snap Snapshot
	if err := bin.UnmarshalBorsh(&snap, data); err != nil {
		return nil, fmt.Errorf("failed to decode ledger snapshot: %w", err)
	}

	l := NewLedger(params, log)
	state := snap.State
	l.state = &state
	for i := range snap.Pools {
		pool := snap.Pools[i]
		l.pools[pool.Address] = &pool
		l.byPair[pairKey{pool.TokenX, pool.TokenY}] = pool.Address
	}
	for i := range snap.Providers {
		p := snap.Providers[i]
		if _, ok := l.pools[p.Pool]; !ok {
			return nil, fmt.Errorf("snapshot provider %s references unknown pool %s", p.Owner, p.Pool)
		}
		l.providers[providerKey{p.Pool, p.Owner}] = &p
	}
	for i := range snap.Farms {
		f := snap.Farms[i]
		if _, ok := l.pools[f.Pool]; !ok {
			return nil, fmt.Errorf("snapshot farm %s references unknown pool %s", f.Address, f.Pool)
		}
		l.farms[f.Pool] = &f
	}
	for i := range snap.Positions {
		p := snap.Positions[i]
		l.positions[positionKey{p.Farm, p.Owner}] = &p
	}
	return l, nil
}
