package keeper

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// Withdraw pays amount of the caller's available balance to recipient and
// returns what the caller can still withdraw afterwards.
func (k *Keeper) Withdraw(ctx context.Context, caller string, poolID uint64, amount math.Int, recipient string) (math.Int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	pool := k.GetPool(sdkCtx, poolID)
	if pool == nil {
		return math.Int{}, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", poolID)
	}
	if !pool.Active {
		return math.Int{}, errorsmod.Wrapf(types.ErrPoolInactive, "pool %d", poolID)
	}
	percentage, withdrawn, ok := k.share(sdkCtx, pool, caller)
	if !ok {
		return math.Int{}, errorsmod.Wrapf(types.ErrNotPoolMember, "%s in pool %d", caller, poolID)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return math.Int{}, errorsmod.Wrapf(types.ErrInvalidWithdrawalAmount, "amount %s", amount)
	}
	available := pool.Available(percentage, withdrawn)
	if amount.GT(available) {
		return math.Int{}, types.NewInsufficientBalanceError(amount, available)
	}
	if recipient == "" {
		recipient = caller
	}
	recipientAddr, err := sdk.AccAddressFromBech32(recipient)
	if err != nil {
		return math.Int{}, errorsmod.Wrapf(types.ErrInvalidAddress, "recipient %s: %v", recipient, err)
	}

	cacheCtx, write := sdkCtx.CacheContext()

	if err := k.bankKeeper.SendCoinsFromModuleToAccount(cacheCtx, types.ModuleName, recipientAddr, k.coins(amount)); err != nil {
		return math.Int{}, errorsmod.Wrapf(types.ErrTransferFailed, "payout to %s: %v", recipient, err)
	}

	withdrawn = withdrawn.Add(amount)
	pool.TotalWithdrawn = pool.TotalWithdrawn.Add(amount)
	if caller == pool.Creator {
		pool.CreatorWithdrawn = withdrawn
	} else {
		member := k.GetMember(cacheCtx, poolID, caller)
		member.TotalWithdrawn = withdrawn
		k.SetMember(cacheCtx, member)
	}
	k.SetPool(cacheCtx, pool)

	if err := k.checkLedger(cacheCtx, pool); err != nil {
		return math.Int{}, err
	}
	write()

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeFundsWithdrawn,
			sdk.NewAttribute(types.AttributeKeyPoolID, strconv.FormatUint(poolID, 10)),
			sdk.NewAttribute(types.AttributeKeyMember, caller),
			sdk.NewAttribute(types.AttributeKeyRecipient, recipient),
			sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
			sdk.NewAttribute(types.AttributeKeyTotalWithdrawn, pool.TotalWithdrawn.String()),
			sdk.NewAttribute(types.AttributeKeyDenom, k.denom),
		),
	)

	k.logger.Info("Funds withdrawn",
		"pool_id", poolID,
		"member", caller,
		"recipient", recipient,
		"amount", amount.String(),
	)

	return pool.Available(percentage, withdrawn), nil
}
