package types

import (
	"fmt"
)

// GenesisState is the pool module's genesis state
type GenesisState struct {
	NextPoolID uint64    `json:"next_pool_id"`
	Pools      []*Pool   `json:"pools"`
	Members    []*Member `json:"members"`
}

// DefaultGenesis returns an empty ledger whose first pool id is 1
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		NextPoolID: 1,
		Pools:      []*Pool{},
		Members:    []*Member{},
	}
}

// Validate checks the ledger invariants over a genesis state
func (gs *GenesisState) Validate() error {
	if gs.NextPoolID == 0 {
		return fmt.Errorf("next pool id must be positive")
	}
	pools := make(map[uint64]*Pool, len(gs.Pools))
	for _, p := range gs.Pools {
		if p.PoolID == 0 || p.PoolID >= gs.NextPoolID {
			return fmt.Errorf("pool id %d outside [1, %d)", p.PoolID, gs.NextPoolID)
		}
		if _, dup := pools[p.PoolID]; dup {
			return fmt.Errorf("duplicate pool id %d", p.PoolID)
		}
		if p.Title == "" {
			return fmt.Errorf("pool %d: %w", p.PoolID, ErrEmptyTitle)
		}
		if err := ValidateAddress(p.Creator); err != nil {
			return fmt.Errorf("pool %d: %w", p.PoolID, err)
		}
		if p.TotalBalance.IsNil() || p.TotalWithdrawn.IsNil() || p.CreatorWithdrawn.IsNil() {
			return fmt.Errorf("pool %d: missing accounting fields", p.PoolID)
		}
		if p.TotalBalance.IsNegative() || p.TotalWithdrawn.IsNegative() || p.CreatorWithdrawn.IsNegative() {
			return fmt.Errorf("pool %d: negative accounting field", p.PoolID)
		}
		if p.TotalWithdrawn.GT(p.TotalBalance) {
			return fmt.Errorf("pool %d: withdrawn %s exceeds balance %s", p.PoolID, p.TotalWithdrawn, p.TotalBalance)
		}
		pools[p.PoolID] = p
	}

	shares := make(map[uint64]uint64)
	withdrawn := make(map[uint64][]*Member)
	seen := make(map[string]struct{}, len(gs.Members))
	for _, m := range gs.Members {
		pool, ok := pools[m.PoolID]
		if !ok {
			return fmt.Errorf("member %s references unknown pool %d", m.Address, m.PoolID)
		}
		if err := ValidateAddress(m.Address); err != nil {
			return err
		}
		if m.Address == pool.Creator {
			return fmt.Errorf("pool %d: %w", m.PoolID, ErrDuplicateMember)
		}
		key := fmt.Sprintf("%d/%s", m.PoolID, m.Address)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("pool %d: %w: %s", m.PoolID, ErrDuplicateMember, m.Address)
		}
		seen[key] = struct{}{}
		if m.Percentage == 0 || m.Percentage > BasisPointsTotal {
			return fmt.Errorf("pool %d: %w: %d", m.PoolID, ErrInvalidMemberPercentage, m.Percentage)
		}
		if m.TotalWithdrawn.IsNil() || m.TotalWithdrawn.IsNegative() {
			return fmt.Errorf("pool %d member %s: invalid withdrawn amount", m.PoolID, m.Address)
		}
		if m.TotalWithdrawn.GT(pool.Entitlement(m.Percentage)) {
			return fmt.Errorf("pool %d member %s: withdrawn exceeds entitlement", m.PoolID, m.Address)
		}
		shares[m.PoolID] += uint64(m.Percentage)
		withdrawn[m.PoolID] = append(withdrawn[m.PoolID], m)
	}

	for id, p := range pools {
		if shares[id] >= uint64(BasisPointsTotal) {
			return fmt.Errorf("pool %d: %w: sum %d", id, ErrInvalidTotalPercentage, shares[id])
		}
		creatorPct := BasisPointsTotal - uint32(shares[id])
		if p.CreatorWithdrawn.GT(p.Entitlement(creatorPct)) {
			return fmt.Errorf("pool %d: creator withdrawn exceeds entitlement", id)
		}
		total := p.CreatorWithdrawn
		for _, m := range withdrawn[id] {
			total = total.Add(m.TotalWithdrawn)
		}
		if !total.Equal(p.TotalWithdrawn) {
			return fmt.Errorf("pool %d: member withdrawals %s do not match pool withdrawn %s", id, total, p.TotalWithdrawn)
		}
	}
	return nil
}
