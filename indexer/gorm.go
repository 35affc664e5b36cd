package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const cursorName = "ledger"

type poolRecord struct {
	PoolID          uint64    `gorm:"primaryKey;autoIncrement:false"`
	Title           string    `gorm:"size:200;not null"`
	Creator         string    `gorm:"size:100;index;not null"`
	Active          bool      `gorm:"not null"`
	TotalDonated    string    `gorm:"type:numeric(78,0);not null"`
	TotalWithdrawn  string    `gorm:"type:numeric(78,0);not null"`
	DonationCount   uint64    `gorm:"not null"`
	WithdrawalCount uint64    `gorm:"not null"`
	UniqueDonors    uint64    `gorm:"not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	LastSeq         uint64    `gorm:"not null"`
}

func (poolRecord) TableName() string {
	return "sharepool_pools"
}

type donationRecord struct {
	Seq    uint64    `gorm:"primaryKey;autoIncrement:false"`
	PoolID uint64    `gorm:"index:idx_donation_pool_donor;not null"`
	Donor  string    `gorm:"size:100;index:idx_donation_pool_donor;index;not null"`
	Amount string    `gorm:"type:numeric(78,0);not null"`
	Time   time.Time `gorm:"not null"`
}

func (donationRecord) TableName() string {
	return "sharepool_donations"
}

type donorRecord struct {
	Address       string `gorm:"primaryKey;size:100"`
	TotalDonated  string `gorm:"type:numeric(78,0);index;not null"`
	DonationCount uint64 `gorm:"not null"`
	PoolCount     uint64 `gorm:"not null"`
}

func (donorRecord) TableName() string {
	return "sharepool_donors"
}

type eventRecord struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement:false"`
	Type       string    `gorm:"size:40;index;not null"`
	PoolID     uint64    `gorm:"index;not null"`
	Height     int64     `gorm:"not null"`
	Time       time.Time `gorm:"not null"`
	Attributes string    `gorm:"type:jsonb;not null"`
}

func (eventRecord) TableName() string {
	return "sharepool_events"
}

type cursorRecord struct {
	Name string `gorm:"primaryKey;size:40"`
	Seq  uint64 `gorm:"not null"`
}

func (cursorRecord) TableName() string {
	return "sharepool_indexer_cursor"
}

// GormConfig configures the PostgreSQL store
type GormConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool
}

// GormStore persists aggregates in PostgreSQL
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// OpenGormStore connects to PostgreSQL and migrates the indexer tables
func OpenGormStore(cfg GormConfig) (*GormStore, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.LogSQL {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open connection and migrates the indexer tables
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	err := db.AutoMigrate(
		&poolRecord{},
		&donationRecord{},
		&donorRecord{},
		&eventRecord{},
		&cursorRecord{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate indexer tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Update runs fn in one database transaction
func (s *GormStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

func (s *GormStore) LastSeq(ctx context.Context) (uint64, error) {
	return readCursor(s.db.WithContext(ctx))
}

func (s *GormStore) Pool(ctx context.Context, poolID uint64) (*PoolSummary, error) {
	var rec poolRecord
	err := s.db.WithContext(ctx).First(&rec, "pool_id = ?", poolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.summary()
}

func (s *GormStore) Pools(ctx context.Context, offset, limit int) ([]*PoolSummary, error) {
	var recs []poolRecord
	err := s.db.WithContext(ctx).
		Order("pool_id ASC").
		Offset(max(offset, 0)).
		Limit(ClampLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*PoolSummary, 0, len(recs))
	for _, rec := range recs {
		p, err := rec.summary()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *GormStore) PoolDonations(ctx context.Context, poolID uint64, limit int) ([]Donation, error) {
	return s.donations(s.db.WithContext(ctx).Where("pool_id = ?", poolID), limit)
}

func (s *GormStore) DonorDonations(ctx context.Context, donor string, limit int) ([]Donation, error) {
	return s.donations(s.db.WithContext(ctx).Where("donor = ?", donor), limit)
}

func (s *GormStore) donations(q *gorm.DB, limit int) ([]Donation, error) {
	var recs []donationRecord
	if err := q.Order("seq DESC").Limit(ClampLimit(limit)).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]Donation, 0, len(recs))
	for _, rec := range recs {
		amt, err := parseNumeric(rec.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, Donation{
			Seq:    rec.Seq,
			PoolID: rec.PoolID,
			Donor:  rec.Donor,
			Amount: amt,
			Time:   rec.Time.UTC(),
		})
	}
	return out, nil
}

func (s *GormStore) Donor(ctx context.Context, address string) (*DonorStat, error) {
	var rec donorRecord
	err := s.db.WithContext(ctx).First(&rec, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.stat()
}

func (s *GormStore) Leaderboard(ctx context.Context, limit int) ([]*DonorStat, error) {
	var recs []donorRecord
	err := s.db.WithContext(ctx).
		Order("total_donated DESC, address ASC").
		Limit(ClampLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*DonorStat, 0, len(recs))
	for _, rec := range recs {
		d, err := rec.stat()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *GormStore) Events(ctx context.Context, after uint64, limit int) ([]Event, error) {
	var recs []eventRecord
	err := s.db.WithContext(ctx).
		Where("seq > ?", after).
		Order("seq ASC").
		Limit(ClampLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(recs))
	for _, rec := range recs {
		ev := Event{
			Seq:    rec.Seq,
			Type:   rec.Type,
			PoolID: rec.PoolID,
			Height: rec.Height,
			Time:   rec.Time.UTC(),
		}
		if err := json.Unmarshal([]byte(rec.Attributes), &ev.Attributes); err != nil {
			return nil, fmt.Errorf("decode event %d attributes: %w", rec.Seq, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormTx implements Tx inside a database transaction
type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) LastSeq() (uint64, error) {
	return readCursor(tx.db.Clauses(clause.Locking{Strength: "UPDATE"}))
}

func (tx *gormTx) SetLastSeq(seq uint64) error {
	return tx.db.Save(&cursorRecord{Name: cursorName, Seq: seq}).Error
}

func (tx *gormTx) AppendEvent(ev Event) error {
	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return err
	}
	return tx.db.Create(&eventRecord{
		Seq:        ev.Seq,
		Type:       ev.Type,
		PoolID:     ev.PoolID,
		Height:     ev.Height,
		Time:       ev.Time.UTC(),
		Attributes: string(attrs),
	}).Error
}

func (tx *gormTx) Pool(poolID uint64) (*PoolSummary, error) {
	var rec poolRecord
	err := tx.db.First(&rec, "pool_id = ?", poolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.summary()
}

func (tx *gormTx) SavePool(p *PoolSummary) error {
	return tx.db.Save(&poolRecord{
		PoolID:          p.PoolID,
		Title:           p.Title,
		Creator:         p.Creator,
		Active:          p.Active,
		TotalDonated:    p.TotalDonated.String(),
		TotalWithdrawn:  p.TotalWithdrawn.String(),
		DonationCount:   p.DonationCount,
		WithdrawalCount: p.WithdrawalCount,
		UniqueDonors:    p.UniqueDonors,
		CreatedAt:       p.CreatedAt.UTC(),
		LastSeq:         p.LastSeq,
	}).Error
}

func (tx *gormTx) Donor(address string) (*DonorStat, error) {
	var rec donorRecord
	err := tx.db.First(&rec, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.stat()
}

func (tx *gormTx) SaveDonor(d *DonorStat) error {
	return tx.db.Save(&donorRecord{
		Address:       d.Address,
		TotalDonated:  d.TotalDonated.String(),
		DonationCount: d.DonationCount,
		PoolCount:     d.PoolCount,
	}).Error
}

func (tx *gormTx) AddDonation(d Donation) (bool, error) {
	var prior int64
	err := tx.db.Model(&donationRecord{}).
		Where("pool_id = ? AND donor = ?", d.PoolID, d.Donor).
		Count(&prior).Error
	if err != nil {
		return false, err
	}
	err = tx.db.Create(&donationRecord{
		Seq:    d.Seq,
		PoolID: d.PoolID,
		Donor:  d.Donor,
		Amount: d.Amount.String(),
		Time:   d.Time.UTC(),
	}).Error
	if err != nil {
		return false, err
	}
	return prior == 0, nil
}

func readCursor(db *gorm.DB) (uint64, error) {
	var cur cursorRecord
	err := db.First(&cur, "name = ?", cursorName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cur.Seq, nil
}

func (rec poolRecord) summary() (*PoolSummary, error) {
	donated, err := parseNumeric(rec.TotalDonated)
	if err != nil {
		return nil, err
	}
	withdrawn, err := parseNumeric(rec.TotalWithdrawn)
	if err != nil {
		return nil, err
	}
	return &PoolSummary{
		PoolID:          rec.PoolID,
		Title:           rec.Title,
		Creator:         rec.Creator,
		Active:          rec.Active,
		TotalDonated:    donated,
		TotalWithdrawn:  withdrawn,
		DonationCount:   rec.DonationCount,
		WithdrawalCount: rec.WithdrawalCount,
		UniqueDonors:    rec.UniqueDonors,
		CreatedAt:       rec.CreatedAt.UTC(),
		LastSeq:         rec.LastSeq,
	}, nil
}

func (rec donorRecord) stat() (*DonorStat, error) {
	total, err := parseNumeric(rec.TotalDonated)
	if err != nil {
		return nil, err
	}
	return &DonorStat{
		Address:       rec.Address,
		TotalDonated:  total,
		DonationCount: rec.DonationCount,
		PoolCount:     rec.PoolCount,
	}, nil
}

func parseNumeric(s string) (math.Int, error) {
	v, ok := math.NewIntFromString(s)
	if !ok {
		return math.Int{}, fmt.Errorf("invalid numeric %q", s)
	}
	return v, nil
}
