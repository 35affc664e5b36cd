package api

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// BankStoreKey names the settlement balance store
const BankStoreKey = "bank"

// StoreBank is the settlement asset of the standalone service. Balances live
// in a KV store of the same multistore as the ledger, so a rolled back
// operation also rolls back its transfer.
type StoreBank struct {
	storeKey storetypes.StoreKey
	blocked  map[string]bool
}

var _ types.BankKeeper = (*StoreBank)(nil)

// NewStoreBank creates a bank over storeKey. The accounts of blockedModules
// can receive funds only through SendCoinsFromAccountToModule.
func NewStoreBank(storeKey storetypes.StoreKey, blockedModules ...string) *StoreBank {
	blocked := make(map[string]bool, len(blockedModules))
	for _, name := range blockedModules {
		blocked[authtypes.NewModuleAddress(name).String()] = true
	}
	return &StoreBank{storeKey: storeKey, blocked: blocked}
}

// BlockedAddr reports whether addr is a module account closed to plain credits
func (b *StoreBank) BlockedAddr(addr sdk.AccAddress) bool {
	return b.blocked[addr.String()]
}

func balanceKey(addr sdk.AccAddress, denom string) []byte {
	key := make([]byte, 0, len(denom)+1+len(addr))
	key = append(key, denom...)
	key = append(key, '/')
	return append(key, addr...)
}

func (b *StoreBank) balance(ctx sdk.Context, addr sdk.AccAddress, denom string) math.Int {
	bz := ctx.KVStore(b.storeKey).Get(balanceKey(addr, denom))
	if bz == nil {
		return math.ZeroInt()
	}
	amt, ok := math.NewIntFromString(string(bz))
	if !ok {
		panic(fmt.Sprintf("corrupt balance for %s", addr))
	}
	return amt
}

func (b *StoreBank) setBalance(ctx sdk.Context, addr sdk.AccAddress, denom string, amt math.Int) {
	store := ctx.KVStore(b.storeKey)
	if amt.IsZero() {
		store.Delete(balanceKey(addr, denom))
		return
	}
	store.Set(balanceKey(addr, denom), []byte(amt.String()))
}

// Send moves coins between two accounts
func (b *StoreBank) Send(ctx context.Context, from, to sdk.AccAddress, amt sdk.Coins) error {
	if !amt.IsValid() {
		return fmt.Errorf("invalid coins %s", amt)
	}
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	for _, coin := range amt {
		have := b.balance(sdkCtx, from, coin.Denom)
		if have.LT(coin.Amount) {
			return fmt.Errorf("insufficient funds: %s%s is smaller than %s", have, coin.Denom, coin)
		}
	}
	for _, coin := range amt {
		b.setBalance(sdkCtx, from, coin.Denom, b.balance(sdkCtx, from, coin.Denom).Sub(coin.Amount))
		b.setBalance(sdkCtx, to, coin.Denom, b.balance(sdkCtx, to, coin.Denom).Add(coin.Amount))
	}
	return nil
}

func (b *StoreBank) SendCoinsFromAccountToModule(ctx context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error {
	return b.Send(ctx, senderAddr, authtypes.NewModuleAddress(recipientModule), amt)
}

func (b *StoreBank) SendCoinsFromModuleToAccount(ctx context.Context, senderModule string, recipientAddr sdk.AccAddress, amt sdk.Coins) error {
	if b.BlockedAddr(recipientAddr) {
		return fmt.Errorf("%s is not allowed to receive funds", recipientAddr)
	}
	return b.Send(ctx, authtypes.NewModuleAddress(senderModule), recipientAddr, amt)
}

func (b *StoreBank) GetBalance(ctx context.Context, addr sdk.AccAddress, denom string) sdk.Coin {
	return sdk.NewCoin(denom, b.balance(sdk.UnwrapSDKContext(ctx), addr, denom))
}

// Mint credits new coins to addr. Blocked module accounts are refused.
func (b *StoreBank) Mint(ctx context.Context, addr sdk.AccAddress, amt sdk.Coins) error {
	if b.BlockedAddr(addr) {
		return fmt.Errorf("%s is not allowed to receive funds", addr)
	}
	if !amt.IsValid() {
		return fmt.Errorf("invalid coins %s", amt)
	}
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	for _, coin := range amt {
		b.setBalance(sdkCtx, addr, coin.Denom, b.balance(sdkCtx, addr, coin.Denom).Add(coin.Amount))
	}
	return nil
}
