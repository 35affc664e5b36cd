package keeper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	"cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/x/pool/types"
)

const testDenom = "uusdc"

// mockBankKeeper keeps balances in its own KV store so that cache
// context rollbacks also undo transfers.
type mockBankKeeper struct {
	storeKey storetypes.StoreKey
	failSend bool
}

var _ types.BankKeeper = (*mockBankKeeper)(nil)

func (b *mockBankKeeper) key(addr sdk.AccAddress, denom string) []byte {
	return append([]byte(denom+"/"), addr...)
}

func (b *mockBankKeeper) balance(ctx sdk.Context, addr sdk.AccAddress, denom string) math.Int {
	bz := ctx.KVStore(b.storeKey).Get(b.key(addr, denom))
	if bz == nil {
		return math.ZeroInt()
	}
	amt, _ := math.NewIntFromString(string(bz))
	return amt
}

func (b *mockBankKeeper) setBalance(ctx sdk.Context, addr sdk.AccAddress, denom string, amt math.Int) {
	ctx.KVStore(b.storeKey).Set(b.key(addr, denom), []byte(amt.String()))
}

func (b *mockBankKeeper) move(ctx context.Context, from, to sdk.AccAddress, amt sdk.Coins) error {
	if b.failSend {
		return errors.New("transfer rejected")
	}
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	for _, coin := range amt {
		have := b.balance(sdkCtx, from, coin.Denom)
		if have.LT(coin.Amount) {
			return fmt.Errorf("%s is smaller than %s", have, coin)
		}
		b.setBalance(sdkCtx, from, coin.Denom, have.Sub(coin.Amount))
		b.setBalance(sdkCtx, to, coin.Denom, b.balance(sdkCtx, to, coin.Denom).Add(coin.Amount))
	}
	return nil
}

func (b *mockBankKeeper) SendCoinsFromAccountToModule(ctx context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error {
	return b.move(ctx, senderAddr, authtypes.NewModuleAddress(recipientModule), amt)
}

func (b *mockBankKeeper) SendCoinsFromModuleToAccount(ctx context.Context, senderModule string, recipientAddr sdk.AccAddress, amt sdk.Coins) error {
	return b.move(ctx, authtypes.NewModuleAddress(senderModule), recipientAddr, amt)
}

func (b *mockBankKeeper) GetBalance(ctx context.Context, addr sdk.AccAddress, denom string) sdk.Coin {
	return sdk.NewCoin(denom, b.balance(sdk.UnwrapSDKContext(ctx), addr, denom))
}

func (b *mockBankKeeper) fund(ctx sdk.Context, addr string, amount int64) {
	acc := sdk.MustAccAddressFromBech32(addr)
	b.setBalance(ctx, acc, testDenom, b.balance(ctx, acc, testDenom).AddRaw(amount))
}

func (b *mockBankKeeper) balanceOf(ctx sdk.Context, addr string) math.Int {
	return b.balance(ctx, sdk.MustAccAddressFromBech32(addr), testDenom)
}

func setupKeeper(t testing.TB) (*Keeper, sdk.Context, *mockBankKeeper) {
	t.Helper()

	poolKey := storetypes.NewKVStoreKey(types.StoreKey)
	bankKey := storetypes.NewKVStoreKey("bank")
	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, log.NewNopLogger(), metrics.NewNoOpMetrics())
	stateStore.MountStoreWithDB(poolKey, storetypes.StoreTypeIAVL, db)
	stateStore.MountStoreWithDB(bankKey, storetypes.StoreTypeIAVL, db)
	if err := stateStore.LoadLatestVersion(); err != nil {
		t.Fatalf("failed to load store: %v", err)
	}

	ctx := sdk.NewContext(stateStore, cmtproto.Header{Time: time.Unix(1700000000, 0)}, false, log.NewNopLogger())
	bank := &mockBankKeeper{storeKey: bankKey}
	k := NewKeeper(nil, poolKey, bank, testDenom, "", log.NewNopLogger())
	return k, ctx, bank
}

func testAddr(name string) string {
	bz := make([]byte, 20)
	copy(bz, name)
	return sdk.AccAddress(bz).String()
}

var (
	creator  = testAddr("creator")
	memberA  = testAddr("member-a")
	memberB  = testAddr("member-b")
	donor    = testAddr("donor")
	outsider = testAddr("outsider")
)

// createABPool opens the canonical pool: A 30%, B 20%, creator 50%
func createABPool(t *testing.T, k *Keeper, ctx sdk.Context) uint64 {
	t.Helper()
	id, err := k.CreatePool(ctx, creator, "Clinic", "roof repair", "ipfs://roof", []string{memberA, memberB}, []uint32{3000, 2000})
	require.NoError(t, err)
	return id
}

func eventsOfType(ctx sdk.Context, eventType string) []sdk.Event {
	var out []sdk.Event
	for _, ev := range ctx.EventManager().Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func attr(ev sdk.Event, key string) string {
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func requireLedgerSound(t *testing.T, k *Keeper, ctx sdk.Context) {
	t.Helper()
	msg, broken := AllInvariants(k)(ctx)
	require.False(t, broken, msg)
}

func TestNewKeeperDefaults(t *testing.T) {
	k := NewKeeper(nil, storetypes.NewKVStoreKey(types.StoreKey), &mockBankKeeper{}, "", "gov", log.NewNopLogger())
	require.Equal(t, types.DefaultSettlementDenom, k.Denom())
	require.Equal(t, "gov", k.GetAuthority())
	require.Equal(t, authtypes.NewModuleAddress(types.ModuleName), k.ModuleAddress())
}

func TestGetNextPoolIDStartsAtOne(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	require.Equal(t, uint64(1), k.GetNextPoolID(ctx))
}
