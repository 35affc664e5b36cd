package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	storemetrics "cosmossdk.io/store/metrics"
	pruningtypes "cosmossdk.io/store/pruning/types"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/metrics"
	"github.com/openalpha/sharepool/x/pool/keeper"
	"github.com/openalpha/sharepool/x/pool/types"
)

const (
	// ServiceStoreKey holds service bookkeeping such as the event sequence
	ServiceStoreKey = "service"

	dbName = "sharepool"
)

var seqKey = []byte("event_seq")

// Operation names used for metrics and logs
const (
	OpCreatePool     = "create_pool"
	OpDonate         = "donate"
	OpWithdraw       = "withdraw"
	OpDeactivatePool = "deactivate_pool"
	OpFaucet         = "faucet"
)

// EventSink receives every committed ledger event in sequence order
type EventSink interface {
	Consume(ctx context.Context, ev indexer.Event) error
}

type namedSink struct {
	name string
	sink EventSink
}

// LedgerService hosts the pool keeper on its own multistore. Mutations are
// serialized; each one runs on a cache and is committed only on success.
type LedgerService struct {
	mu sync.RWMutex

	db         dbm.DB
	cms        storetypes.CommitMultiStore
	serviceKey *storetypes.KVStoreKey

	keeper  *keeper.Keeper
	msgs    *keeper.MsgServer
	queries *keeper.QueryServer
	bank    *StoreBank
	denom   string

	seq         uint64
	activePools int
	sinks       []namedSink

	now     func() time.Time
	logger  log.Logger
	metrics *metrics.Collector
}

// ServiceOptions configures NewLedgerService
type ServiceOptions struct {
	Denom   string
	DataDir string // empty keeps state in memory
	Logger  log.Logger
	Metrics *metrics.Collector
	Clock   func() time.Time
}

// NewLedgerService opens the ledger state and restores the event sequence
func NewLedgerService(opts ServiceOptions) (*LedgerService, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	denom := opts.Denom
	if denom == "" {
		denom = types.DefaultSettlementDenom
	}
	if err := validateDenom(denom); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	var db dbm.DB
	if opts.DataDir == "" {
		db = dbm.NewMemDB()
	} else {
		var err error
		db, err = dbm.NewDB(dbName, dbm.GoLevelDBBackend, opts.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open ledger db: %w", err)
		}
	}

	poolKey := storetypes.NewKVStoreKey(types.StoreKey)
	bankKey := storetypes.NewKVStoreKey(BankStoreKey)
	serviceKey := storetypes.NewKVStoreKey(ServiceStoreKey)

	cms := store.NewCommitMultiStore(db, logger, storemetrics.NewNoOpMetrics())
	cms.SetPruning(pruningtypes.NewPruningOptions(pruningtypes.PruningDefault))
	for _, key := range []*storetypes.KVStoreKey{poolKey, bankKey, serviceKey} {
		cms.MountStoreWithDB(key, storetypes.StoreTypeIAVL, nil)
	}
	if err := cms.LoadLatestVersion(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load ledger state: %w", err)
	}

	bank := NewStoreBank(bankKey, types.ModuleName)
	k := keeper.NewKeeper(nil, poolKey, bank, denom, "", logger)

	s := &LedgerService{
		db:         db,
		cms:        cms,
		serviceKey: serviceKey,
		keeper:     k,
		msgs:       keeper.NewMsgServerImpl(k),
		queries:    keeper.NewQueryServerImpl(k),
		bank:       bank,
		denom:      denom,
		now:        clock,
		logger:     logger.With("module", "ledger-service"),
		metrics:    opts.Metrics,
	}

	ctx := s.readContext(context.Background())
	if bz := ctx.KVStore(serviceKey).Get(seqKey); bz != nil {
		s.seq = sdk.BigEndianToUint64(bz)
	}
	k.IteratePools(ctx, func(pool *types.Pool) bool {
		if pool.Active {
			s.activePools++
		}
		return false
	})
	s.updateGauges(ctx)

	s.logger.Info("ledger state loaded",
		"height", cms.LastCommitID().Version,
		"event_seq", s.seq,
		"active_pools", s.activePools,
		"persistent", opts.DataDir != "",
	)
	return s, nil
}

// AddSink registers a consumer of committed events. Register sinks before
// serving traffic.
func (s *LedgerService) AddSink(name string, sink EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
}

// Close releases the underlying database
func (s *LedgerService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Denom returns the settlement denom
func (s *LedgerService) Denom() string {
	return s.denom
}

// Seq returns the last assigned event sequence
func (s *LedgerService) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Height returns the last committed version
func (s *LedgerService) Height() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cms.LastCommitID().Version
}

func (s *LedgerService) readContext(ctx context.Context) sdk.Context {
	header := cmtproto.Header{
		Height: s.cms.LastCommitID().Version,
		Time:   s.now().UTC(),
	}
	return sdk.NewContext(s.cms.CacheMultiStore(), header, false, s.logger).WithContext(ctx)
}

// view runs fn on a read-only snapshot of committed state
func (s *LedgerService) view(ctx context.Context, fn func(sdk.Context) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.readContext(ctx))
}

// execute runs one mutation. On success the state is committed, events get
// sequence numbers and are handed to every sink in order.
func (s *LedgerService) execute(ctx context.Context, op string, fn func(sdk.Context) error) ([]indexer.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := metrics.NewTimer()
	blockTime := s.now().UTC()
	height := s.cms.LastCommitID().Version + 1

	cache := s.cms.CacheMultiStore()
	sdkCtx := sdk.NewContext(cache, cmtproto.Header{Height: height, Time: blockTime}, false, s.logger).
		WithContext(ctx)

	if err := fn(sdkCtx); err != nil {
		if s.metrics != nil {
			s.metrics.RecordOperation(op, types.ReasonCode(err), timer.ElapsedMs())
		}
		s.logger.Debug("operation rejected", "op", op, "reason", types.ReasonCode(err), "error", err)
		return nil, err
	}

	events := s.sequence(sdkCtx.EventManager().Events(), height, blockTime)
	if len(events) > 0 {
		sdkCtx.KVStore(s.serviceKey).Set(seqKey, sdk.Uint64ToBigEndian(events[len(events)-1].Seq))
	}
	cache.Write()
	s.cms.Commit()
	if len(events) > 0 {
		s.seq = events[len(events)-1].Seq
	}

	for _, ev := range events {
		switch ev.Type {
		case types.EventTypePoolCreated:
			s.activePools++
		case types.EventTypePoolDeactivated:
			s.activePools--
		}
	}
	if s.metrics != nil {
		s.metrics.RecordOperation(op, "", timer.ElapsedMs())
		s.updateGauges(s.readContext(ctx))
	}

	s.deliver(ctx, events)
	return events, nil
}

// sequence converts ledger events to indexer events numbered after s.seq
func (s *LedgerService) sequence(raw sdk.Events, height int64, blockTime time.Time) []indexer.Event {
	out := make([]indexer.Event, 0, len(raw))
	next := s.seq
	for _, e := range raw {
		if !types.IsLedgerEvent(e.Type) {
			continue
		}
		attrs := make(map[string]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.Key] = a.Value
		}
		poolID, _ := strconv.ParseUint(attrs[types.AttributeKeyPoolID], 10, 64)
		next++
		out = append(out, indexer.Event{
			Seq:        next,
			Type:       e.Type,
			PoolID:     poolID,
			Height:     height,
			Time:       blockTime,
			Attributes: attrs,
		})
	}
	return out
}

func (s *LedgerService) deliver(ctx context.Context, events []indexer.Event) {
	for _, ev := range events {
		for _, ns := range s.sinks {
			if err := ns.sink.Consume(ctx, ev); err != nil {
				s.logger.Error("event sink failed", "sink", ns.name, "seq", ev.Seq, "error", err)
				if s.metrics != nil {
					s.metrics.RecordSinkError(ns.name)
				}
			}
		}
	}
}

func (s *LedgerService) updateGauges(ctx sdk.Context) {
	if s.metrics == nil {
		return
	}
	held := s.bank.GetBalance(ctx, s.keeper.ModuleAddress(), s.denom).Amount
	custody, err := held.ToLegacyDec().Float64()
	if err != nil {
		custody = 0
	}
	s.metrics.UpdateLedger(s.activePools, custody, s.seq)
}

func recordVolume(c *metrics.Collector, op string, amount math.Int) {
	if c == nil {
		return
	}
	f, err := amount.ToLegacyDec().Float64()
	if err != nil {
		return
	}
	switch op {
	case OpDonate:
		c.RecordDonation(f)
	case OpWithdraw:
		c.RecordWithdrawal(f)
	}
}

// ============ Mutations ============

// CreatePool opens a pool owned by msg.Creator
func (s *LedgerService) CreatePool(ctx context.Context, msg *types.MsgCreatePool) (*types.MsgCreatePoolResponse, []indexer.Event, error) {
	var resp *types.MsgCreatePoolResponse
	events, err := s.execute(ctx, OpCreatePool, func(sdkCtx sdk.Context) error {
		if err := msg.ValidateBasic(); err != nil {
			return err
		}
		var err error
		resp, err = s.msgs.CreatePool(sdkCtx, msg)
		return err
	})
	return resp, events, err
}

// Donate moves settlement funds from msg.Donor into a pool
func (s *LedgerService) Donate(ctx context.Context, msg *types.MsgDonate) (*types.MsgDonateResponse, []indexer.Event, error) {
	var resp *types.MsgDonateResponse
	events, err := s.execute(ctx, OpDonate, func(sdkCtx sdk.Context) error {
		if err := msg.ValidateBasic(); err != nil {
			return err
		}
		var err error
		resp, err = s.msgs.Donate(sdkCtx, msg)
		return err
	})
	if err == nil {
		amount, _ := types.ParseAmount(msg.Amount)
		recordVolume(s.metrics, OpDonate, amount)
	}
	return resp, events, err
}

// Withdraw pays part of a member's entitlement to the recipient
func (s *LedgerService) Withdraw(ctx context.Context, msg *types.MsgWithdraw) (*types.MsgWithdrawResponse, []indexer.Event, error) {
	var resp *types.MsgWithdrawResponse
	events, err := s.execute(ctx, OpWithdraw, func(sdkCtx sdk.Context) error {
		if err := msg.ValidateBasic(); err != nil {
			return err
		}
		var err error
		resp, err = s.msgs.Withdraw(sdkCtx, msg)
		return err
	})
	if err == nil {
		amount, _ := types.ParseAmount(msg.Amount)
		recordVolume(s.metrics, OpWithdraw, amount)
	}
	return resp, events, err
}

// DeactivatePool closes a pool to donations and withdrawals
func (s *LedgerService) DeactivatePool(ctx context.Context, msg *types.MsgDeactivatePool) ([]indexer.Event, error) {
	return s.execute(ctx, OpDeactivatePool, func(sdkCtx sdk.Context) error {
		if err := msg.ValidateBasic(); err != nil {
			return err
		}
		_, err := s.msgs.DeactivatePool(sdkCtx, msg)
		return err
	})
}

// ErrFaucetLimit is returned for faucet requests above the configured cap
var ErrFaucetLimit = errors.New("faucet amount exceeds limit")

// Fund mints settlement funds to address and returns its new balance
func (s *LedgerService) Fund(ctx context.Context, address string, amount, max math.Int) (math.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return math.Int{}, fmt.Errorf("faucet amount must be positive")
	}
	if !max.IsNil() && amount.GT(max) {
		return math.Int{}, fmt.Errorf("%w: %s > %s", ErrFaucetLimit, amount, max)
	}
	addr, err := sdk.AccAddressFromBech32(address)
	if err != nil {
		return math.Int{}, fmt.Errorf("%w: %s", types.ErrInvalidAddress, address)
	}
	if s.bank.BlockedAddr(addr) {
		return math.Int{}, fmt.Errorf("%w: %s is a module account", types.ErrInvalidAddress, address)
	}

	var balance math.Int
	_, err = s.execute(ctx, OpFaucet, func(sdkCtx sdk.Context) error {
		if err := s.bank.Mint(sdkCtx, addr, sdk.NewCoins(sdk.NewCoin(s.denom, amount))); err != nil {
			return err
		}
		balance = s.bank.GetBalance(sdkCtx, addr, s.denom).Amount
		return nil
	})
	return balance, err
}

// ============ Views ============

func (s *LedgerService) Pool(ctx context.Context, poolID uint64) (pool *types.Pool, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		pool, err = s.queries.Pool(sdkCtx, poolID)
		return err
	})
	return pool, err
}

func (s *LedgerService) Pools(ctx context.Context, offset, limit uint64) (pools []*types.Pool, total uint64, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		pools, total, err = s.queries.Pools(sdkCtx, offset, limit)
		return err
	})
	return pools, total, err
}

func (s *LedgerService) PoolsByCreator(ctx context.Context, creator string) (pools []*types.Pool, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		pools, err = s.queries.PoolsByCreator(sdkCtx, creator)
		return err
	})
	return pools, err
}

func (s *LedgerService) PoolMembers(ctx context.Context, poolID uint64) (members []*types.MemberInfo, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		members, err = s.queries.PoolMembers(sdkCtx, poolID)
		return err
	})
	return members, err
}

func (s *LedgerService) PoolBalance(ctx context.Context, poolID uint64) (balance math.Int, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		balance, err = s.keeper.GetPoolBalance(sdkCtx, poolID)
		return err
	})
	return balance, err
}

func (s *LedgerService) AvailableBalance(ctx context.Context, poolID uint64, address string) (available math.Int, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		available, err = s.queries.AvailableBalance(sdkCtx, poolID, address)
		return err
	})
	return available, err
}

func (s *LedgerService) MemberPools(ctx context.Context, address string) (pools []*keeper.MemberPool, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		pools, err = s.queries.MemberPools(sdkCtx, address)
		return err
	})
	return pools, err
}

func (s *LedgerService) NextPoolID(ctx context.Context) (id uint64, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		id, err = s.queries.NextPoolID(sdkCtx)
		return err
	})
	return id, err
}

func (s *LedgerService) Custody(ctx context.Context) (report *keeper.CustodyReport, err error) {
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		report, err = s.queries.Custody(sdkCtx)
		return err
	})
	return report, err
}

// AccountBalance returns the settlement balance of address
func (s *LedgerService) AccountBalance(ctx context.Context, address string) (balance math.Int, err error) {
	addr, err := sdk.AccAddressFromBech32(address)
	if err != nil {
		return math.Int{}, fmt.Errorf("%w: %s", types.ErrInvalidAddress, address)
	}
	if s.bank.BlockedAddr(addr) {
		return math.Int{}, fmt.Errorf("%w: %s is a module account", types.ErrInvalidAddress, address)
	}
	err = s.view(ctx, func(sdkCtx sdk.Context) error {
		balance = s.bank.GetBalance(sdkCtx, addr, s.denom).Amount
		return nil
	})
	return balance, err
}

// CheckInvariants runs every registered ledger invariant on committed state
func (s *LedgerService) CheckInvariants(ctx context.Context) (msg string, broken bool) {
	_ = s.view(ctx, func(sdkCtx sdk.Context) error {
		msg, broken = keeper.AllInvariants(s.keeper)(sdkCtx)
		return nil
	})
	return msg, broken
}
