package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// GetPoolInfo returns a pool or ErrPoolNotFound
func (k *Keeper) GetPoolInfo(ctx context.Context, poolID uint64) (*types.Pool, error) {
	pool := k.GetPool(sdk.UnwrapSDKContext(ctx), poolID)
	if pool == nil {
		return nil, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", poolID)
	}
	return pool, nil
}

// GetPoolMembers returns the creator's entry followed by the explicit members
func (k *Keeper) GetPoolMembers(ctx context.Context, poolID uint64) ([]*types.MemberInfo, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	pool := k.GetPool(sdkCtx, poolID)
	if pool == nil {
		return nil, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", poolID)
	}

	return types.MemberInfos(pool, k.GetMembers(sdkCtx, poolID)), nil
}

// GetPoolBalance returns the cumulative donations of a pool
func (k *Keeper) GetPoolBalance(ctx context.Context, poolID uint64) (math.Int, error) {
	pool, err := k.GetPoolInfo(ctx, poolID)
	if err != nil {
		return math.Int{}, err
	}
	return pool.TotalBalance, nil
}

// GetAvailableBalance returns what address can withdraw now; zero for non-members
func (k *Keeper) GetAvailableBalance(ctx context.Context, poolID uint64, address string) (math.Int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	pool := k.GetPool(sdkCtx, poolID)
	if pool == nil {
		return math.Int{}, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", poolID)
	}
	percentage, withdrawn, ok := k.share(sdkCtx, pool, address)
	if !ok {
		return math.ZeroInt(), nil
	}
	return pool.Available(percentage, withdrawn), nil
}

// NextPoolID returns the id the next created pool will receive
func (k *Keeper) NextPoolID(ctx context.Context) uint64 {
	return k.GetNextPoolID(sdk.UnwrapSDKContext(ctx))
}
