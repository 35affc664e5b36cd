package api

import (
	"testing"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	storemetrics "cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/x/pool/types"
)

func setupBank(t *testing.T) (*StoreBank, sdk.Context) {
	t.Helper()
	key := storetypes.NewKVStoreKey(BankStoreKey)
	cms := store.NewCommitMultiStore(dbm.NewMemDB(), log.NewNopLogger(), storemetrics.NewNoOpMetrics())
	cms.MountStoreWithDB(key, storetypes.StoreTypeIAVL, nil)
	require.NoError(t, cms.LoadLatestVersion())
	ctx := sdk.NewContext(cms, cmtproto.Header{}, false, log.NewNopLogger())
	return NewStoreBank(key), ctx
}

func coins(amount int64) sdk.Coins {
	return sdk.NewCoins(sdk.NewInt64Coin("uusdc", amount))
}

func TestStoreBankTransfers(t *testing.T) {
	bank, ctx := setupBank(t)
	from := sdk.MustAccAddressFromBech32(donor)
	module := authtypes.NewModuleAddress(types.ModuleName)

	require.NoError(t, bank.Mint(ctx, from, coins(100)))
	require.NoError(t, bank.SendCoinsFromAccountToModule(ctx, from, types.ModuleName, coins(60)))
	require.Equal(t, math.NewInt(40), bank.GetBalance(ctx, from, "uusdc").Amount)
	require.Equal(t, math.NewInt(60), bank.GetBalance(ctx, module, "uusdc").Amount)

	to := sdk.MustAccAddressFromBech32(alice)
	require.NoError(t, bank.SendCoinsFromModuleToAccount(ctx, types.ModuleName, to, coins(60)))
	require.True(t, bank.GetBalance(ctx, module, "uusdc").IsZero())
	require.Equal(t, math.NewInt(60), bank.GetBalance(ctx, to, "uusdc").Amount)
}

func TestStoreBankRejectsOverdraft(t *testing.T) {
	bank, ctx := setupBank(t)
	from := sdk.MustAccAddressFromBech32(donor)
	to := sdk.MustAccAddressFromBech32(bob)

	require.NoError(t, bank.Mint(ctx, from, coins(10)))
	err := bank.Send(ctx, from, to, coins(11))
	require.ErrorContains(t, err, "insufficient funds")
	require.Equal(t, math.NewInt(10), bank.GetBalance(ctx, from, "uusdc").Amount)
	require.True(t, bank.GetBalance(ctx, to, "uusdc").IsZero())

	require.Error(t, bank.Send(ctx, from, to, sdk.Coins{sdk.Coin{Denom: "uusdc", Amount: math.NewInt(-1)}}))
}

func TestStoreBankBlocksModuleCredits(t *testing.T) {
	open, ctx := setupBank(t)
	bank := NewStoreBank(open.storeKey, types.ModuleName)
	from := sdk.MustAccAddressFromBech32(donor)
	module := authtypes.NewModuleAddress(types.ModuleName)

	require.True(t, bank.BlockedAddr(module))
	require.False(t, bank.BlockedAddr(from))
	require.ErrorContains(t, bank.Mint(ctx, module, coins(1)), "not allowed to receive funds")

	// deposits into custody still work, payouts back into it do not
	require.NoError(t, bank.Mint(ctx, from, coins(5)))
	require.NoError(t, bank.SendCoinsFromAccountToModule(ctx, from, types.ModuleName, coins(5)))
	require.Error(t, bank.SendCoinsFromModuleToAccount(ctx, types.ModuleName, module, coins(5)))
	require.Equal(t, math.NewInt(5), bank.GetBalance(ctx, module, "uusdc").Amount)
}
