package indexer

import (
	"context"
	"strings"
	"sync"

	"cosmossdk.io/math"
	"github.com/google/btree"
	"github.com/huandu/skiplist"
)

const btreeDegree = 32

// leaderKey orders donors by total donated, highest first, then by address
type leaderKey struct {
	total   math.Int
	address string
}

type leaderKeyDesc struct{}

func (leaderKeyDesc) Compare(lhs, rhs interface{}) int {
	l := lhs.(leaderKey)
	r := rhs.(leaderKey)
	if l.total.GT(r.total) {
		return -1
	}
	if l.total.LT(r.total) {
		return 1
	}
	return strings.Compare(l.address, r.address)
}

func (leaderKeyDesc) CalcScore(key interface{}) float64 {
	f, _ := key.(leaderKey).total.ToLegacyDec().Float64()
	return -f
}

type poolDonor struct {
	poolID uint64
	donor  string
}

// MemoryStore keeps aggregates in process memory
type MemoryStore struct {
	mu sync.RWMutex

	lastSeq     uint64
	events      *btree.BTreeG[Event]
	pools       *btree.BTreeG[*PoolSummary]
	donors      map[string]*DonorStat
	leaderboard *skiplist.SkipList
	byPool      map[uint64][]Donation
	byDonor     map[string][]Donation
	seen        map[poolDonor]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: btree.NewG[Event](btreeDegree, func(a, b Event) bool {
			return a.Seq < b.Seq
		}),
		pools: btree.NewG[*PoolSummary](btreeDegree, func(a, b *PoolSummary) bool {
			return a.PoolID < b.PoolID
		}),
		donors:      make(map[string]*DonorStat),
		leaderboard: skiplist.New(leaderKeyDesc{}),
		byPool:      make(map[uint64][]Donation),
		byDonor:     make(map[string][]Donation),
		seen:        make(map[poolDonor]struct{}),
	}
}

// Update runs fn against a staged view and publishes its writes only if fn
// succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:       s,
		lastSeq: s.lastSeq,
		pools:   make(map[uint64]*PoolSummary),
		donors:  make(map[string]*DonorStat),
		seen:    make(map[poolDonor]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) LastSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq, nil
}

func (s *MemoryStore) Pool(_ context.Context, poolID uint64) (*PoolSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools.Get(&PoolSummary{PoolID: poolID})
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Pools(_ context.Context, offset, limit int) ([]*PoolSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = ClampLimit(limit)

	out := make([]*PoolSummary, 0, limit)
	i := 0
	s.pools.Ascend(func(p *PoolSummary) bool {
		if i >= offset {
			cp := *p
			out = append(out, &cp)
		}
		i++
		return len(out) < limit
	})
	return out, nil
}

func (s *MemoryStore) PoolDonations(_ context.Context, poolID uint64, limit int) ([]Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.byPool[poolID], ClampLimit(limit)), nil
}

func (s *MemoryStore) DonorDonations(_ context.Context, donor string, limit int) ([]Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.byDonor[donor], ClampLimit(limit)), nil
}

func (s *MemoryStore) Donor(_ context.Context, address string) (*DonorStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]*DonorStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = ClampLimit(limit)

	out := make([]*DonorStat, 0, limit)
	for elem := s.leaderboard.Front(); elem != nil && len(out) < limit; elem = elem.Next() {
		cp := *elem.Value.(*DonorStat)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Events(_ context.Context, after uint64, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = ClampLimit(limit)

	out := make([]Event, 0, limit)
	s.events.AscendGreaterOrEqual(Event{Seq: after + 1}, func(ev Event) bool {
		out = append(out, ev)
		return len(out) < limit
	})
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func newestFirst(list []Donation, limit int) []Donation {
	out := make([]Donation, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out
}

// memTx stages writes until commit. The store lock is held for its lifetime.
type memTx struct {
	s *MemoryStore

	lastSeq   uint64
	events    []Event
	pools     map[uint64]*PoolSummary
	donors    map[string]*DonorStat
	donations []Donation
	seen      map[poolDonor]struct{}
}

func (tx *memTx) LastSeq() (uint64, error) {
	return tx.lastSeq, nil
}

func (tx *memTx) SetLastSeq(seq uint64) error {
	tx.lastSeq = seq
	return nil
}

func (tx *memTx) AppendEvent(ev Event) error {
	tx.events = append(tx.events, ev)
	return nil
}

func (tx *memTx) Pool(poolID uint64) (*PoolSummary, error) {
	if p, ok := tx.pools[poolID]; ok {
		cp := *p
		return &cp, nil
	}
	p, ok := tx.s.pools.Get(&PoolSummary{PoolID: poolID})
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (tx *memTx) SavePool(p *PoolSummary) error {
	cp := *p
	tx.pools[p.PoolID] = &cp
	return nil
}

func (tx *memTx) Donor(address string) (*DonorStat, error) {
	if d, ok := tx.donors[address]; ok {
		cp := *d
		return &cp, nil
	}
	d, ok := tx.s.donors[address]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (tx *memTx) SaveDonor(d *DonorStat) error {
	cp := *d
	tx.donors[d.Address] = &cp
	return nil
}

func (tx *memTx) AddDonation(d Donation) (bool, error) {
	key := poolDonor{poolID: d.PoolID, donor: d.Donor}
	_, staged := tx.seen[key]
	_, stored := tx.s.seen[key]
	tx.donations = append(tx.donations, d)
	if staged || stored {
		return false, nil
	}
	tx.seen[key] = struct{}{}
	return true, nil
}

func (tx *memTx) commit() {
	s := tx.s
	for _, ev := range tx.events {
		s.events.ReplaceOrInsert(ev)
	}
	for _, p := range tx.pools {
		s.pools.ReplaceOrInsert(p)
	}
	for addr, d := range tx.donors {
		if old, ok := s.donors[addr]; ok {
			s.leaderboard.Remove(leaderKey{total: old.TotalDonated, address: addr})
		}
		s.donors[addr] = d
		s.leaderboard.Set(leaderKey{total: d.TotalDonated, address: addr}, d)
	}
	for _, d := range tx.donations {
		s.byPool[d.PoolID] = append(s.byPool[d.PoolID], d)
		s.byDonor[d.Donor] = append(s.byDonor[d.Donor], d)
	}
	for key := range tx.seen {
		s.seen[key] = struct{}{}
	}
	s.lastSeq = tx.lastSeq
}
