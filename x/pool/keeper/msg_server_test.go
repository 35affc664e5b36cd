package keeper

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/x/pool/types"
)

func TestMsgServerFlow(t *testing.T) {
	k, ctx, bank := setupKeeper(t)
	srv := NewMsgServerImpl(k)
	bank.fund(ctx, donor, 1000)

	created, err := srv.CreatePool(ctx, types.NewMsgCreatePool(creator, "Film", "", "", []string{memberA}, []uint32{2500}))
	require.NoError(t, err)
	require.Equal(t, uint64(1), created.PoolID)

	donated, err := srv.Donate(ctx, types.NewMsgDonate(donor, created.PoolID, "400"))
	require.NoError(t, err)
	require.Equal(t, "400", donated.NewTotalBalance)

	withdrawn, err := srv.Withdraw(ctx, types.NewMsgWithdraw(memberA, created.PoolID, "60", ""))
	require.NoError(t, err)
	require.Equal(t, "40", withdrawn.Available)
	require.Equal(t, math.NewInt(60), bank.balanceOf(ctx, memberA))

	_, err = srv.DeactivatePool(ctx, types.NewMsgDeactivatePool(creator, created.PoolID))
	require.NoError(t, err)
}

func TestMsgServerMalformedAmounts(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	srv := NewMsgServerImpl(k)
	id := createABPool(t, k, ctx)

	_, err := srv.Donate(ctx, types.NewMsgDonate(donor, id, "12.5"))
	require.ErrorIs(t, err, types.ErrInvalidDonationAmount)

	_, err = srv.Withdraw(ctx, types.NewMsgWithdraw(memberA, id, "abc", ""))
	require.ErrorIs(t, err, types.ErrInvalidWithdrawalAmount)
}
