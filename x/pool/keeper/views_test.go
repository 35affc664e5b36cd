package keeper

import (
	"sort"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/x/pool/types"
)

func TestViewsOnMissingPool(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	_, err := k.GetPoolInfo(ctx, 1)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
	_, err = k.GetPoolMembers(ctx, 1)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
	_, err = k.GetPoolBalance(ctx, 1)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
	_, err = k.GetAvailableBalance(ctx, 1, memberA)
	require.ErrorIs(t, err, types.ErrPoolNotFound)
}

func TestViewsArePure(t *testing.T) {
	k, ctx, bank := setupKeeper(t)
	id := createABPool(t, k, ctx)
	bank.fund(ctx, donor, 1000)
	_, err := k.Donate(ctx, donor, id, math.NewInt(999))
	require.NoError(t, err)

	first, err := k.GetPoolInfo(ctx, id)
	require.NoError(t, err)
	firstAvail, err := k.GetAvailableBalance(ctx, id, memberB)
	require.NoError(t, err)

	second, err := k.GetPoolInfo(ctx, id)
	require.NoError(t, err)
	secondAvail, err := k.GetAvailableBalance(ctx, id, memberB)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, firstAvail, secondAvail)
	require.Equal(t, math.NewInt(199), firstAvail)

	balance, err := k.GetPoolBalance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(999), balance)
}

func TestPoolMembersInAddressOrder(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	id, err := k.CreatePool(ctx, creator, "Order", "", "", []string{outsider, memberB, memberA}, []uint32{1000, 2000, 3000})
	require.NoError(t, err)

	infos, err := k.GetPoolMembers(ctx, id)
	require.NoError(t, err)
	require.Len(t, infos, 4)
	require.True(t, infos[0].IsCreator)
	require.Equal(t, creator, infos[0].Address)

	got := []string{infos[1].Address, infos[2].Address, infos[3].Address}
	require.True(t, sort.StringsAreSorted(got), got)
	require.ElementsMatch(t, []string{outsider, memberB, memberA}, got)
}

func TestQueryServer(t *testing.T) {
	k, ctx, bank := setupKeeper(t)
	q := NewQueryServerImpl(k)

	first := createABPool(t, k, ctx)
	second, err := k.CreatePool(ctx, memberA, "Other", "", "", []string{memberB}, []uint32{1000})
	require.NoError(t, err)
	bank.fund(ctx, donor, 1000)
	_, err = k.Donate(ctx, donor, second, math.NewInt(1000))
	require.NoError(t, err)

	pools, total, err := q.Pools(ctx, 0, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), total)
	require.Len(t, pools, 1)
	require.Equal(t, first, pools[0].PoolID)

	pools, _, err = q.Pools(ctx, 5, 10)
	require.NoError(t, err)
	require.Empty(t, pools)

	byCreator, err := q.PoolsByCreator(ctx, memberA)
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	require.Equal(t, second, byCreator[0].PoolID)

	memberPools, err := q.MemberPools(ctx, memberA)
	require.NoError(t, err)
	require.Len(t, memberPools, 2)
	require.False(t, memberPools[0].IsCreator)
	require.Equal(t, uint32(3000), memberPools[0].Percentage)
	require.True(t, memberPools[1].IsCreator)
	require.Equal(t, uint32(9000), memberPools[1].Percentage)
	require.Equal(t, math.NewInt(900), memberPools[1].Available)

	next, err := q.NextPoolID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), next)

	report, err := q.Custody(ctx)
	require.NoError(t, err)
	require.True(t, report.Balanced)
	require.Equal(t, math.NewInt(1000), report.Held)
}
