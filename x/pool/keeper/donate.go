package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// Donate pulls amount from donor into pool custody and returns the new
// pool balance.
func (k *Keeper) Donate(ctx context.Context, donor string, poolID uint64, amount math.Int) (math.Int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	pool := k.GetPool(sdkCtx, poolID)
	if pool == nil {
		return math.Int{}, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", poolID)
	}
	if !pool.Active {
		return math.Int{}, errorsmod.Wrapf(types.ErrPoolInactive, "pool %d", poolID)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return math.Int{}, errorsmod.Wrapf(types.ErrInvalidDonationAmount, "amount %s", amount)
	}
	donorAddr, err := sdk.AccAddressFromBech32(donor)
	if err != nil {
		return math.Int{}, errorsmod.Wrapf(types.ErrInvalidAddress, "donor %s: %v", donor, err)
	}

	cacheCtx, write := sdkCtx.CacheContext()

	if err := k.bankKeeper.SendCoinsFromAccountToModule(cacheCtx, donorAddr, types.ModuleName, k.coins(amount)); err != nil {
		return math.Int{}, errorsmod.Wrapf(types.ErrTransferFailed, "donation from %s: %v", donor, err)
	}

	pool.TotalBalance = pool.TotalBalance.Add(amount)
	k.SetPool(cacheCtx, pool)

	if err := k.checkLedger(cacheCtx, pool); err != nil {
		return math.Int{}, err
	}
	write()

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeDonationMade,
			sdk.NewAttribute(types.AttributeKeyPoolID, strconv.FormatUint(poolID, 10)),
			sdk.NewAttribute(types.AttributeKeyDonor, donor),
			sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			sdk.NewAttribute(types.AttributeKeyNewTotalBalance, pool.TotalBalance.String()),
			sdk.NewAttribute(types.AttributeKeyDenom, k.denom),
		),
	)

	k.logger.Info("Donation received",
		"pool_id", poolID,
		"donor", donor,
		"amount", amount.String(),
		"total_balance", pool.TotalBalance.String(),
	)

	return pool.TotalBalance, nil
}
