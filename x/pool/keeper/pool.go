package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// CreatePool opens a pool owned by creator. The creator keeps
// 10000 minus the sum of the member percentages.
func (k *Keeper) CreatePool(
	ctx context.Context,
	creator, title, description, imageURI string,
	members []string,
	percentages []uint32,
) (uint64, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	if err := types.ValidatePoolParams(creator, title, members, percentages); err != nil {
		return 0, err
	}
	if err := types.ValidateAddress(creator); err != nil {
		return 0, err
	}
	for _, m := range members {
		if err := types.ValidateAddress(m); err != nil {
			return 0, err
		}
	}

	cacheCtx, write := sdkCtx.CacheContext()

	poolID := k.GetNextPoolID(cacheCtx)
	pool := types.NewPool(poolID, creator, title, description, imageURI, sdkCtx.BlockTime().Unix())
	k.SetPool(cacheCtx, pool)
	for i, addr := range members {
		k.SetMember(cacheCtx, types.NewMember(poolID, addr, percentages[i]))
	}
	k.SetNextPoolID(cacheCtx, poolID+1)

	if err := k.checkLedger(cacheCtx, pool); err != nil {
		return 0, err
	}
	write()

	creatorPct := types.CreatorPercentage(percentages)
	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypePoolCreated,
			sdk.NewAttribute(types.AttributeKeyPoolID, strconv.FormatUint(poolID, 10)),
			sdk.NewAttribute(types.AttributeKeyCreator, creator),
			sdk.NewAttribute(types.AttributeKeyTitle, title),
			sdk.NewAttribute(types.AttributeKeyDescription, description),
			sdk.NewAttribute(types.AttributeKeyImageURI, imageURI),
			sdk.NewAttribute(types.AttributeKeyCreatorPercentage, strconv.FormatUint(uint64(creatorPct), 10)),
			sdk.NewAttribute(types.AttributeKeyMemberCount, strconv.Itoa(len(members))),
		),
	)

	k.logger.Info("Pool created",
		"pool_id", poolID,
		"creator", creator,
		"members", len(members),
		"creator_percentage", creatorPct,
	)

	return poolID, nil
}

// DeactivatePool permanently closes a pool. Only the creator may call it,
// and only once.
func (k *Keeper) DeactivatePool(ctx context.Context, caller string, poolID uint64) error {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	pool := k.GetPool(sdkCtx, poolID)
	if pool == nil {
		return errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", poolID)
	}
	if caller != pool.Creator {
		return errorsmod.Wrapf(types.ErrNotPoolCreator, "pool %d", poolID)
	}
	if !pool.Active {
		return errorsmod.Wrapf(types.ErrPoolInactive, "pool %d already deactivated", poolID)
	}

	cacheCtx, write := sdkCtx.CacheContext()

	pool.Active = false
	k.SetPool(cacheCtx, pool)

	if err := k.checkLedger(cacheCtx, pool); err != nil {
		return err
	}
	write()

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypePoolDeactivated,
			sdk.NewAttribute(types.AttributeKeyPoolID, strconv.FormatUint(poolID, 10)),
			sdk.NewAttribute(types.AttributeKeyDeactivatedBy, caller),
		),
	)

	k.logger.Info("Pool deactivated",
		"pool_id", poolID,
		"deactivated_by", caller,
	)

	return nil
}
