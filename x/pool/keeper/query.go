package keeper

import (
	"context"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// QueryServer defines the pool QueryServer
type QueryServer struct {
	keeper *Keeper
}

// NewQueryServerImpl creates a new QueryServer instance
func NewQueryServerImpl(keeper *Keeper) *QueryServer {
	return &QueryServer{keeper: keeper}
}

// MemberPool is a pool an address holds a share in
type MemberPool struct {
	Pool       *types.Pool `json:"pool"`
	Percentage uint32      `json:"percentage"`
	Available  math.Int    `json:"available"`
	IsCreator  bool        `json:"is_creator"`
}

// CustodyReport compares the ledger's expected custody with the held balance
type CustodyReport struct {
	Denom    string   `json:"denom"`
	Expected math.Int `json:"expected"`
	Held     math.Int `json:"held"`
	Balanced bool     `json:"balanced"`
}

// Pool returns a pool by ID
func (q *QueryServer) Pool(ctx context.Context, poolID uint64) (*types.Pool, error) {
	return q.keeper.GetPoolInfo(ctx, poolID)
}

// Pools returns pools in id order
func (q *QueryServer) Pools(ctx context.Context, offset, limit uint64) ([]*types.Pool, uint64, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	allPools := q.keeper.GetAllPools(sdkCtx)

	total := uint64(len(allPools))

	// Apply pagination
	if offset >= total {
		return []*types.Pool{}, total, nil
	}

	end := offset + limit
	if end > total || limit == 0 {
		end = total
	}

	return allPools[offset:end], total, nil
}

// PoolsByCreator returns pools opened by creator
func (q *QueryServer) PoolsByCreator(ctx context.Context, creator string) ([]*types.Pool, error) {
	return q.keeper.GetPoolsByCreator(sdk.UnwrapSDKContext(ctx), creator), nil
}

// PoolMembers returns every membership of a pool
func (q *QueryServer) PoolMembers(ctx context.Context, poolID uint64) ([]*types.MemberInfo, error) {
	return q.keeper.GetPoolMembers(ctx, poolID)
}

// AvailableBalance returns the withdrawable amount of an address
func (q *QueryServer) AvailableBalance(ctx context.Context, poolID uint64, address string) (math.Int, error) {
	return q.keeper.GetAvailableBalance(ctx, poolID, address)
}

// MemberPools returns the pools address can withdraw from, as creator or member
func (q *QueryServer) MemberPools(ctx context.Context, address string) ([]*MemberPool, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	var result []*MemberPool
	q.keeper.IteratePools(sdkCtx, func(pool *types.Pool) bool {
		percentage, withdrawn, ok := q.keeper.share(sdkCtx, pool, address)
		if ok {
			result = append(result, &MemberPool{
				Pool:       pool,
				Percentage: percentage,
				Available:  pool.Available(percentage, withdrawn),
				IsCreator:  address == pool.Creator,
			})
		}
		return false
	})
	return result, nil
}

// NextPoolID returns the pool id counter
func (q *QueryServer) NextPoolID(ctx context.Context) (uint64, error) {
	return q.keeper.NextPoolID(ctx), nil
}

// Custody reports the conservation check
func (q *QueryServer) Custody(ctx context.Context) (*CustodyReport, error) {
	expected, held := q.keeper.Custody(sdk.UnwrapSDKContext(ctx))
	return &CustodyReport{
		Denom:    q.keeper.Denom(),
		Expected: expected,
		Held:     held,
		Balanced: expected.Equal(held),
	}, nil
}
