package indexer

import (
	"context"
	"errors"
	"time"

	"cosmossdk.io/math"
)

// ErrNotFound is returned by store reads for unknown keys
var ErrNotFound = errors.New("not found")

// PoolSummary aggregates the event history of one pool
type PoolSummary struct {
	PoolID          uint64    `json:"pool_id"`
	Title           string    `json:"title"`
	Creator         string    `json:"creator"`
	Active          bool      `json:"active"`
	TotalDonated    math.Int  `json:"total_donated"`
	TotalWithdrawn  math.Int  `json:"total_withdrawn"`
	DonationCount   uint64    `json:"donation_count"`
	WithdrawalCount uint64    `json:"withdrawal_count"`
	UniqueDonors    uint64    `json:"unique_donors"`
	CreatedAt       time.Time `json:"created_at"`
	LastSeq         uint64    `json:"last_seq"`
}

// Balance is donated minus withdrawn
func (p *PoolSummary) Balance() math.Int {
	return p.TotalDonated.Sub(p.TotalWithdrawn)
}

// Donation is a single donation record
type Donation struct {
	Seq    uint64    `json:"seq"`
	PoolID uint64    `json:"pool_id"`
	Donor  string    `json:"donor"`
	Amount math.Int  `json:"amount"`
	Time   time.Time `json:"time"`
}

// DonorStat aggregates one donor across all pools
type DonorStat struct {
	Address       string   `json:"address"`
	TotalDonated  math.Int `json:"total_donated"`
	DonationCount uint64   `json:"donation_count"`
	PoolCount     uint64   `json:"pool_count"`
}

// Tx is the write view handed to Store.Update. All writes made through a Tx
// become visible together or not at all.
type Tx interface {
	LastSeq() (uint64, error)
	SetLastSeq(seq uint64) error
	AppendEvent(ev Event) error
	Pool(poolID uint64) (*PoolSummary, error)
	SavePool(p *PoolSummary) error
	Donor(address string) (*DonorStat, error)
	SaveDonor(d *DonorStat) error
	// AddDonation records d and reports whether it is the donor's first
	// donation to the pool.
	AddDonation(d Donation) (bool, error)
}

// Store persists indexer aggregates
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error

	LastSeq(ctx context.Context) (uint64, error)
	Pool(ctx context.Context, poolID uint64) (*PoolSummary, error)
	Pools(ctx context.Context, offset, limit int) ([]*PoolSummary, error)
	PoolDonations(ctx context.Context, poolID uint64, limit int) ([]Donation, error)
	DonorDonations(ctx context.Context, donor string, limit int) ([]Donation, error)
	Donor(ctx context.Context, address string) (*DonorStat, error)
	Leaderboard(ctx context.Context, limit int) ([]*DonorStat, error)
	Events(ctx context.Context, after uint64, limit int) ([]Event, error)
	Close() error
}
