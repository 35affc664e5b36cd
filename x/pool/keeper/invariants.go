package keeper

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// RegisterInvariants registers the ledger invariants
func RegisterInvariants(ir sdk.InvariantRegistry, k *Keeper) {
	ir.RegisterRoute(types.ModuleName, "pool-withdrawn", PoolWithdrawnInvariant(k))
	ir.RegisterRoute(types.ModuleName, "member-shares", MemberSharesInvariant(k))
	ir.RegisterRoute(types.ModuleName, "member-entitlement", MemberEntitlementInvariant(k))
	ir.RegisterRoute(types.ModuleName, "custody-conservation", CustodyConservationInvariant(k))
}

// AllInvariants runs every ledger invariant
func AllInvariants(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		for _, inv := range []sdk.Invariant{
			PoolWithdrawnInvariant(k),
			MemberSharesInvariant(k),
			MemberEntitlementInvariant(k),
			CustodyConservationInvariant(k),
		} {
			if msg, broken := inv(ctx); broken {
				return msg, true
			}
		}
		return "", false
	}
}

// PoolWithdrawnInvariant checks totalWithdrawn <= totalBalance and that the
// pool total matches the per-member counters.
func PoolWithdrawnInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var msg string
		broken := false
		k.IteratePools(ctx, func(pool *types.Pool) bool {
			if err := k.checkWithdrawn(ctx, pool); err != nil {
				msg += err.Error() + "\n"
				broken = true
			}
			return false
		})
		return sdk.FormatInvariant(types.ModuleName, "pool-withdrawn", msg), broken
	}
}

// MemberSharesInvariant checks every pool's shares add up to 10000 with a
// valid percentage per member.
func MemberSharesInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var msg string
		broken := false
		k.IteratePools(ctx, func(pool *types.Pool) bool {
			if err := k.checkShares(ctx, pool); err != nil {
				msg += err.Error() + "\n"
				broken = true
			}
			return false
		})
		return sdk.FormatInvariant(types.ModuleName, "member-shares", msg), broken
	}
}

// MemberEntitlementInvariant checks no member withdrew more than its entitlement
func MemberEntitlementInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var msg string
		broken := false
		k.IteratePools(ctx, func(pool *types.Pool) bool {
			if err := k.checkEntitlements(ctx, pool); err != nil {
				msg += err.Error() + "\n"
				broken = true
			}
			return false
		})
		return sdk.FormatInvariant(types.ModuleName, "member-entitlement", msg), broken
	}
}

// CustodyConservationInvariant checks the custody account holds exactly
// the sum of every pool's undistributed funds.
func CustodyConservationInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		expected, held := k.Custody(ctx)
		broken := !expected.Equal(held)
		return sdk.FormatInvariant(types.ModuleName, "custody-conservation",
			fmt.Sprintf("expected custody %s%s, held %s%s", expected, k.denom, held, k.denom)), broken
	}
}

// Custody returns Σ(totalBalance − totalWithdrawn) over all pools and the
// settlement balance actually held by the custody account.
func (k *Keeper) Custody(ctx sdk.Context) (expected math.Int, held math.Int) {
	expected = math.ZeroInt()
	k.IteratePools(ctx, func(pool *types.Pool) bool {
		expected = expected.Add(pool.Custody())
		return false
	})
	held = k.bankKeeper.GetBalance(ctx, k.ModuleAddress(), k.denom).Amount
	return expected, held
}

// checkLedger runs before a mutation's cache is written. It validates the
// touched pool and global custody conservation.
func (k *Keeper) checkLedger(ctx sdk.Context, pool *types.Pool) error {
	for _, check := range []func(sdk.Context, *types.Pool) error{
		k.checkWithdrawn,
		k.checkShares,
		k.checkEntitlements,
	} {
		if err := check(ctx, pool); err != nil {
			k.logger.Error("ledger invariant broken", "pool_id", pool.PoolID, "error", err)
			return errorsmod.Wrap(types.ErrInvariantBroken, err.Error())
		}
	}
	if expected, held := k.Custody(ctx); !expected.Equal(held) {
		k.logger.Error("custody mismatch", "expected", expected.String(), "held", held.String())
		return errorsmod.Wrapf(types.ErrInvariantBroken, "custody %s, expected %s", held, expected)
	}
	return nil
}

func (k *Keeper) checkWithdrawn(ctx sdk.Context, pool *types.Pool) error {
	if pool.TotalWithdrawn.GT(pool.TotalBalance) {
		return fmt.Errorf("pool %d: withdrawn %s exceeds balance %s", pool.PoolID, pool.TotalWithdrawn, pool.TotalBalance)
	}
	sum := pool.CreatorWithdrawn
	for _, m := range k.GetMembers(ctx, pool.PoolID) {
		sum = sum.Add(m.TotalWithdrawn)
	}
	if !sum.Equal(pool.TotalWithdrawn) {
		return fmt.Errorf("pool %d: member withdrawals %s differ from pool withdrawn %s", pool.PoolID, sum, pool.TotalWithdrawn)
	}
	return nil
}

func (k *Keeper) checkShares(ctx sdk.Context, pool *types.Pool) error {
	var sum uint64
	for _, m := range k.GetMembers(ctx, pool.PoolID) {
		if m.Percentage == 0 || m.Percentage > types.BasisPointsTotal {
			return fmt.Errorf("pool %d: member %s has percentage %d", pool.PoolID, m.Address, m.Percentage)
		}
		if m.Address == pool.Creator {
			return fmt.Errorf("pool %d: creator stored as explicit member", pool.PoolID)
		}
		sum += uint64(m.Percentage)
	}
	if sum >= uint64(types.BasisPointsTotal) {
		return fmt.Errorf("pool %d: member shares sum to %d", pool.PoolID, sum)
	}
	return nil
}

func (k *Keeper) checkEntitlements(ctx sdk.Context, pool *types.Pool) error {
	members := k.GetMembers(ctx, pool.PoolID)
	var sum uint64
	for _, m := range members {
		if m.TotalWithdrawn.GT(pool.Entitlement(m.Percentage)) {
			return fmt.Errorf("pool %d: member %s withdrew %s over entitlement %s",
				pool.PoolID, m.Address, m.TotalWithdrawn, pool.Entitlement(m.Percentage))
		}
		sum += uint64(m.Percentage)
	}
	var creatorPct uint32
	if sum < uint64(types.BasisPointsTotal) {
		creatorPct = types.BasisPointsTotal - uint32(sum)
	}
	if pool.CreatorWithdrawn.GT(pool.Entitlement(creatorPct)) {
		return fmt.Errorf("pool %d: creator withdrew %s over entitlement %s",
			pool.PoolID, pool.CreatorWithdrawn, pool.Entitlement(creatorPct))
	}
	return nil
}
