package keeper

import (
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/sharepool/x/pool/types"
)

// InitGenesis loads pools, members and the id counter
func (k *Keeper) InitGenesis(ctx sdk.Context, gs *types.GenesisState) {
	for _, pool := range gs.Pools {
		k.SetPool(ctx, pool)
	}
	for _, member := range gs.Members {
		k.SetMember(ctx, member)
	}
	k.SetNextPoolID(ctx, gs.NextPoolID)
}

// ExportGenesis dumps the ledger state
func (k *Keeper) ExportGenesis(ctx sdk.Context) *types.GenesisState {
	gs := types.DefaultGenesis()
	gs.NextPoolID = k.GetNextPoolID(ctx)
	if pools := k.GetAllPools(ctx); pools != nil {
		gs.Pools = pools
	}
	if members := k.GetAllMembers(ctx); members != nil {
		gs.Members = members
	}
	return gs
}
