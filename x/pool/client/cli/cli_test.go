package cli

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/x/pool/types"
)

func TestParsePoolID(t *testing.T) {
	id, err := ParsePoolID("12")
	require.NoError(t, err)
	require.Equal(t, uint64(12), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := ParsePoolID(bad)
		require.Error(t, err, bad)
	}
}

func TestMemberInfos(t *testing.T) {
	pool := types.NewPool(1, "creator", "t", "", "", 0)
	pool.TotalBalance = math.NewInt(1000)
	pool.CreatorWithdrawn = math.NewInt(100)
	a := types.NewMember(1, "a", 3000)

	view := types.MemberInfos(pool, []*types.Member{a})
	require.Len(t, view, 2)
	require.True(t, view[0].IsCreator)
	require.Equal(t, uint32(7000), view[0].Percentage)
	require.Equal(t, math.NewInt(600), view[0].Available)
	require.Equal(t, math.NewInt(300), view[1].Available)

	// members keep the order they were passed in
	b := types.NewMember(1, "b", 1000)
	view = types.MemberInfos(pool, []*types.Member{b, a})
	require.Equal(t, []string{"creator", "b", "a"}, []string{view[0].Address, view[1].Address, view[2].Address})
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range GetQueryCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"pool", "pools", "members", "available", "next-pool-id"} {
		require.True(t, names[want], want)
	}
	require.Len(t, names, 5)
}
