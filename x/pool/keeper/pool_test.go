package keeper

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/x/pool/types"
)

func TestCreatePool(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	id := createABPool(t, k, ctx)
	require.Equal(t, uint64(1), id)
	require.Equal(t, uint64(2), k.GetNextPoolID(ctx))

	pool, err := k.GetPoolInfo(ctx, id)
	require.NoError(t, err)
	require.Equal(t, creator, pool.Creator)
	require.Equal(t, "Clinic", pool.Title)
	require.Equal(t, "roof repair", pool.Description)
	require.Equal(t, "ipfs://roof", pool.ImageURI)
	require.True(t, pool.Active)
	require.True(t, pool.TotalBalance.IsZero())
	require.True(t, pool.TotalWithdrawn.IsZero())
	require.Equal(t, int64(1700000000), pool.CreatedAt)

	members, err := k.GetPoolMembers(ctx, id)
	require.NoError(t, err)
	require.Len(t, members, 3)
	require.True(t, members[0].IsCreator)
	require.Equal(t, creator, members[0].Address)
	require.Equal(t, uint32(5000), members[0].Percentage)

	total := uint32(0)
	for _, m := range members {
		total += m.Percentage
	}
	require.Equal(t, types.BasisPointsTotal, total)

	events := eventsOfType(ctx, types.EventTypePoolCreated)
	require.Len(t, events, 1)
	require.Equal(t, "1", attr(events[0], types.AttributeKeyPoolID))
	require.Equal(t, "5000", attr(events[0], types.AttributeKeyCreatorPercentage))
	require.Equal(t, creator, attr(events[0], types.AttributeKeyCreator))

	second, err := k.CreatePool(ctx, memberA, "Second", "", "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)
}

func TestCreatePoolWithoutMembers(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	id, err := k.CreatePool(ctx, creator, "Solo", "", "", []string{}, []uint32{})
	require.NoError(t, err)
	require.Equal(t, types.BasisPointsTotal, k.CreatorPercentage(ctx, id))
}

func TestCreatePoolRejections(t *testing.T) {
	tests := []struct {
		name        string
		creator     string
		title       string
		members     []string
		percentages []uint32
		wantErr     error
	}{
		{"empty title wins over length mismatch", creator, "", []string{memberA}, nil, types.ErrEmptyTitle},
		{"length mismatch", creator, "t", []string{memberA, memberB}, []uint32{100}, types.ErrArrayLengthMismatch},
		{"zero percentage", creator, "t", []string{memberA}, []uint32{0}, types.ErrInvalidMemberPercentage},
		{"percentage above 100%", creator, "t", []string{memberA}, []uint32{10001}, types.ErrInvalidMemberPercentage},
		{"bad percentage checked before sum", creator, "t", []string{memberA, memberB}, []uint32{9000, 0}, types.ErrInvalidMemberPercentage},
		{"sum equal to 10000", creator, "t", []string{memberA, memberB}, []uint32{5000, 5000}, types.ErrInvalidTotalPercentage},
		{"single member at 10000", creator, "t", []string{memberA}, []uint32{10000}, types.ErrInvalidTotalPercentage},
		{"duplicate member", creator, "t", []string{memberA, memberA}, []uint32{100, 200}, types.ErrDuplicateMember},
		{"creator listed as member", creator, "t", []string{creator}, []uint32{100}, types.ErrDuplicateMember},
		{"malformed member address", creator, "t", []string{"not-an-address"}, []uint32{100}, types.ErrInvalidAddress},
		{"malformed creator address", "nobody", "t", nil, nil, types.ErrInvalidAddress},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k, ctx, _ := setupKeeper(t)

			_, err := k.CreatePool(ctx, tc.creator, tc.title, "", "", tc.members, tc.percentages)
			require.ErrorIs(t, err, tc.wantErr)

			require.Equal(t, uint64(1), k.GetNextPoolID(ctx))
			require.Nil(t, k.GetPool(ctx, 1))
			require.Empty(t, k.GetAllMembers(ctx))
			require.Empty(t, eventsOfType(ctx, types.EventTypePoolCreated))
		})
	}
}

func TestCreatePoolReportsOffendingValues(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	_, err := k.CreatePool(ctx, creator, "t", "", "", []string{memberA}, []uint32{12000})
	require.ErrorContains(t, err, "12000")

	_, err = k.CreatePool(ctx, creator, "t", "", "", []string{memberA, memberB}, []uint32{6000, 4500})
	require.ErrorContains(t, err, "10500")
}

func TestDeactivatePool(t *testing.T) {
	k, ctx, bank := setupKeeper(t)
	id := createABPool(t, k, ctx)

	require.ErrorIs(t, k.DeactivatePool(ctx, creator, 99), types.ErrPoolNotFound)
	require.ErrorIs(t, k.DeactivatePool(ctx, memberA, id), types.ErrNotPoolCreator)
	require.True(t, k.GetPool(ctx, id).Active)

	require.NoError(t, k.DeactivatePool(ctx, creator, id))
	require.False(t, k.GetPool(ctx, id).Active)

	events := eventsOfType(ctx, types.EventTypePoolDeactivated)
	require.Len(t, events, 1)
	require.Equal(t, creator, attr(events[0], types.AttributeKeyDeactivatedBy))

	// one-way: a second deactivation is rejected and emits nothing
	require.ErrorIs(t, k.DeactivatePool(ctx, creator, id), types.ErrPoolInactive)
	require.Len(t, eventsOfType(ctx, types.EventTypePoolDeactivated), 1)

	bank.fund(ctx, donor, 1000)
	_, err := k.Donate(ctx, donor, id, math.NewInt(10))
	require.ErrorIs(t, err, types.ErrPoolInactive)
	_, err = k.Withdraw(ctx, creator, id, math.NewInt(1), "")
	require.ErrorIs(t, err, types.ErrPoolInactive)

	// views stay available
	members, err := k.GetPoolMembers(ctx, id)
	require.NoError(t, err)
	require.Len(t, members, 3)
	_, err = k.GetPoolBalance(ctx, id)
	require.NoError(t, err)
}
