package indexer

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/openalpha/sharepool/metrics"
	"github.com/openalpha/sharepool/x/pool/types"
)

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// Indexer folds ledger events into read-optimized aggregates
type Indexer struct {
	store   Store
	logger  log.Logger
	metrics *metrics.Collector

	// RequireContiguous rejects an event whose sequence skips past the
	// cursor with ErrSequenceGap. Leave it off for an index that starts
	// mid-stream.
	RequireContiguous bool
}

// ErrSequenceGap is returned when RequireContiguous is set and events were missed
var ErrSequenceGap = errors.New("event sequence gap")

// New creates an indexer over store. collector may be nil.
func New(store Store, logger log.Logger, collector *metrics.Collector) *Indexer {
	return &Indexer{
		store:   store,
		logger:  logger.With("module", "indexer"),
		metrics: collector,
	}
}

// Store returns the backing store
func (ix *Indexer) Store() Store {
	return ix.store
}

// Apply folds ev into the aggregates. Events at or below the stored cursor
// are skipped, so redelivery is harmless. It returns true if ev was applied.
func (ix *Indexer) Apply(ctx context.Context, ev Event) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}

	applied := false
	err := ix.store.Update(ctx, func(tx Tx) error {
		last, err := tx.LastSeq()
		if err != nil {
			return err
		}
		if ev.Seq <= last {
			return nil
		}
		if ix.RequireContiguous && ev.Seq != last+1 {
			return fmt.Errorf("%w: cursor %d, got %d", ErrSequenceGap, last, ev.Seq)
		}

		switch ev.Type {
		case types.EventTypePoolCreated:
			err = applyPoolCreated(tx, ev)
		case types.EventTypeDonationMade:
			err = applyDonation(tx, ev)
		case types.EventTypeFundsWithdrawn:
			err = applyWithdrawal(tx, ev)
		case types.EventTypePoolDeactivated:
			err = applyDeactivation(tx, ev)
		}
		if err != nil {
			return err
		}

		if err := tx.AppendEvent(ev); err != nil {
			return err
		}
		applied = true
		return tx.SetLastSeq(ev.Seq)
	})
	if err != nil {
		return false, fmt.Errorf("apply event %d: %w", ev.Seq, err)
	}

	if ix.metrics != nil {
		ix.metrics.RecordIndexed(ev.Type, ev.Seq, !applied)
	}
	if !applied {
		ix.logger.Debug("skipped duplicate event", "seq", ev.Seq, "type", ev.Type)
	}
	return applied, nil
}

// ApplyAll applies events in order and stops at the first error
func (ix *Indexer) ApplyAll(ctx context.Context, events []Event) (int, error) {
	n := 0
	for _, ev := range events {
		ok, err := ix.Apply(ctx, ev)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Consume implements an event sink for the ledger service
func (ix *Indexer) Consume(ctx context.Context, ev Event) error {
	_, err := ix.Apply(ctx, ev)
	return err
}

func applyPoolCreated(tx Tx, ev Event) error {
	existing, err := tx.Pool(ev.PoolID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("pool %d already indexed", ev.PoolID)
	}
	return tx.SavePool(&PoolSummary{
		PoolID:         ev.PoolID,
		Title:          ev.Attr(types.AttributeKeyTitle),
		Creator:        ev.Attr(types.AttributeKeyCreator),
		Active:         true,
		TotalDonated:   math.ZeroInt(),
		TotalWithdrawn: math.ZeroInt(),
		CreatedAt:      ev.Time,
		LastSeq:        ev.Seq,
	})
}

func applyDonation(tx Tx, ev Event) error {
	amount, err := ev.AmountAttr(types.AttributeKeyAmount)
	if err != nil {
		return err
	}
	donor := ev.Attr(types.AttributeKeyDonor)
	if donor == "" {
		return fmt.Errorf("event %d: missing donor", ev.Seq)
	}

	pool, err := requirePool(tx, ev.PoolID)
	if err != nil {
		return err
	}

	first, err := tx.AddDonation(Donation{
		Seq:    ev.Seq,
		PoolID: ev.PoolID,
		Donor:  donor,
		Amount: amount,
		Time:   ev.Time,
	})
	if err != nil {
		return err
	}

	pool.TotalDonated = pool.TotalDonated.Add(amount)
	pool.DonationCount++
	if first {
		pool.UniqueDonors++
	}
	pool.LastSeq = ev.Seq
	if err := tx.SavePool(pool); err != nil {
		return err
	}

	stat, err := tx.Donor(donor)
	if err != nil {
		return err
	}
	if stat == nil {
		stat = &DonorStat{Address: donor, TotalDonated: math.ZeroInt()}
	}
	stat.TotalDonated = stat.TotalDonated.Add(amount)
	stat.DonationCount++
	if first {
		stat.PoolCount++
	}
	return tx.SaveDonor(stat)
}

func applyWithdrawal(tx Tx, ev Event) error {
	amount, err := ev.AmountAttr(types.AttributeKeyAmount)
	if err != nil {
		return err
	}
	pool, err := requirePool(tx, ev.PoolID)
	if err != nil {
		return err
	}
	pool.TotalWithdrawn = pool.TotalWithdrawn.Add(amount)
	pool.WithdrawalCount++
	pool.LastSeq = ev.Seq
	return tx.SavePool(pool)
}

func applyDeactivation(tx Tx, ev Event) error {
	pool, err := requirePool(tx, ev.PoolID)
	if err != nil {
		return err
	}
	pool.Active = false
	pool.LastSeq = ev.Seq
	return tx.SavePool(pool)
}

func requirePool(tx Tx, poolID uint64) (*PoolSummary, error) {
	pool, err := tx.Pool(poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("pool %d: %w", poolID, ErrNotFound)
	}
	return pool, nil
}

// ClampLimit normalizes a caller supplied page size
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
