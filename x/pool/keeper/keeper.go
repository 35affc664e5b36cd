package keeper

import (
	"encoding/json"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// Keeper owns all pool and member state
type Keeper struct {
	cdc        codec.BinaryCodec
	storeKey   storetypes.StoreKey
	bankKeeper types.BankKeeper
	denom      string
	authority  string
	logger     log.Logger
}

// NewKeeper creates a new pool keeper settling in the given denom
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey storetypes.StoreKey,
	bankKeeper types.BankKeeper,
	denom string,
	authority string,
	logger log.Logger,
) *Keeper {
	if denom == "" {
		denom = types.DefaultSettlementDenom
	}
	return &Keeper{
		cdc:        cdc,
		storeKey:   storeKey,
		bankKeeper: bankKeeper,
		denom:      denom,
		authority:  authority,
		logger:     logger.With("module", "x/pool"),
	}
}

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}

// GetAuthority returns the governance authority address
func (k *Keeper) GetAuthority() string {
	return k.authority
}

// Denom returns the settlement denom
func (k *Keeper) Denom() string {
	return k.denom
}

// ModuleAddress returns the custody account holding every pool's funds
func (k *Keeper) ModuleAddress() sdk.AccAddress {
	return authtypes.NewModuleAddress(types.ModuleName)
}

// GetStore returns the KVStore
func (k *Keeper) GetStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(k.storeKey)
}

func (k *Keeper) coins(amount math.Int) sdk.Coins {
	return sdk.NewCoins(sdk.NewCoin(k.denom, amount))
}

// ============ Pool Storage ============

// SetPool saves a pool to the store
func (k *Keeper) SetPool(ctx sdk.Context, pool *types.Pool) {
	bz, _ := json.Marshal(pool)
	k.GetStore(ctx).Set(types.PoolKey(pool.PoolID), bz)
}

// GetPool retrieves a pool from the store
func (k *Keeper) GetPool(ctx sdk.Context, poolID uint64) *types.Pool {
	bz := k.GetStore(ctx).Get(types.PoolKey(poolID))
	if bz == nil {
		return nil
	}
	var pool types.Pool
	if err := json.Unmarshal(bz, &pool); err != nil {
		return nil
	}
	return &pool
}

// GetAllPools returns all pools ordered by id
func (k *Keeper) GetAllPools(ctx sdk.Context) []*types.Pool {
	var pools []*types.Pool
	k.IteratePools(ctx, func(pool *types.Pool) bool {
		pools = append(pools, pool)
		return false
	})
	return pools
}

// IteratePools walks pools in id order until cb returns true
func (k *Keeper) IteratePools(ctx sdk.Context, cb func(pool *types.Pool) (stop bool)) {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), types.PoolKeyPrefix)
	defer iterator.Close()

	for ; iterator.Valid(); iterator.Next() {
		var pool types.Pool
		if err := json.Unmarshal(iterator.Value(), &pool); err != nil {
			continue
		}
		if cb(&pool) {
			return
		}
	}
}

// GetPoolsByCreator returns pools opened by an address
func (k *Keeper) GetPoolsByCreator(ctx sdk.Context, creator string) []*types.Pool {
	var pools []*types.Pool
	k.IteratePools(ctx, func(pool *types.Pool) bool {
		if pool.Creator == creator {
			pools = append(pools, pool)
		}
		return false
	})
	return pools
}

// ============ Member Storage ============

// SetMember saves a member row
func (k *Keeper) SetMember(ctx sdk.Context, member *types.Member) {
	bz, _ := json.Marshal(member)
	k.GetStore(ctx).Set(types.MemberKey(member.PoolID, member.Address), bz)
}

// GetMember retrieves an explicit member row
func (k *Keeper) GetMember(ctx sdk.Context, poolID uint64, address string) *types.Member {
	bz := k.GetStore(ctx).Get(types.MemberKey(poolID, address))
	if bz == nil {
		return nil
	}
	var member types.Member
	if err := json.Unmarshal(bz, &member); err != nil {
		return nil
	}
	return &member
}

// GetMembers returns the explicit member rows of a pool in address order
func (k *Keeper) GetMembers(ctx sdk.Context, poolID uint64) []*types.Member {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), types.MemberPrefix(poolID))
	defer iterator.Close()

	var members []*types.Member
	for ; iterator.Valid(); iterator.Next() {
		var member types.Member
		if err := json.Unmarshal(iterator.Value(), &member); err != nil {
			continue
		}
		members = append(members, &member)
	}
	return members
}

// GetAllMembers returns every member row of every pool
func (k *Keeper) GetAllMembers(ctx sdk.Context) []*types.Member {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), types.MemberKeyPrefix)
	defer iterator.Close()

	var members []*types.Member
	for ; iterator.Valid(); iterator.Next() {
		var member types.Member
		if err := json.Unmarshal(iterator.Value(), &member); err != nil {
			continue
		}
		members = append(members, &member)
	}
	return members
}

// CreatorPercentage derives the creator's share from the stored member rows
func (k *Keeper) CreatorPercentage(ctx sdk.Context, poolID uint64) uint32 {
	members := k.GetMembers(ctx, poolID)
	percentages := make([]uint32, len(members))
	for i, m := range members {
		percentages[i] = m.Percentage
	}
	return types.CreatorPercentage(percentages)
}

// share resolves an address to its percentage and withdrawn counter in a pool,
// treating the creator as a virtual member.
func (k *Keeper) share(ctx sdk.Context, pool *types.Pool, address string) (uint32, math.Int, bool) {
	if address == pool.Creator {
		return k.CreatorPercentage(ctx, pool.PoolID), pool.CreatorWithdrawn, true
	}
	member := k.GetMember(ctx, pool.PoolID, address)
	if member == nil {
		return 0, math.ZeroInt(), false
	}
	return member.Percentage, member.TotalWithdrawn, true
}

// ============ Pool ID Counter ============

// GetNextPoolID returns the id the next pool will receive
func (k *Keeper) GetNextPoolID(ctx sdk.Context) uint64 {
	bz := k.GetStore(ctx).Get(types.NextPoolIDKey)
	if bz == nil {
		return 1
	}
	return sdk.BigEndianToUint64(bz)
}

// SetNextPoolID stores the pool id counter
func (k *Keeper) SetNextPoolID(ctx sdk.Context, id uint64) {
	k.GetStore(ctx).Set(types.NextPoolIDKey, sdk.Uint64ToBigEndian(id))
}
