package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"

	"github.com/openalpha/sharepool/x/pool/types"
)

// MsgServer defines the pool MsgServer
type MsgServer struct {
	keeper *Keeper
}

var _ types.MsgServer = (*MsgServer)(nil)

// NewMsgServerImpl creates a new MsgServer instance
func NewMsgServerImpl(keeper *Keeper) *MsgServer {
	return &MsgServer{keeper: keeper}
}

// CreatePool handles MsgCreatePool
func (m *MsgServer) CreatePool(ctx context.Context, msg *types.MsgCreatePool) (*types.MsgCreatePoolResponse, error) {
	poolID, err := m.keeper.CreatePool(ctx, msg.Creator, msg.Title, msg.Description, msg.ImageURI, msg.Members, msg.Percentages)
	if err != nil {
		return nil, err
	}
	return &types.MsgCreatePoolResponse{PoolID: poolID}, nil
}

// Donate handles MsgDonate
func (m *MsgServer) Donate(ctx context.Context, msg *types.MsgDonate) (*types.MsgDonateResponse, error) {
	amount, ok := types.ParseAmount(msg.Amount)
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrInvalidDonationAmount, "malformed amount %q", msg.Amount)
	}
	balance, err := m.keeper.Donate(ctx, msg.Donor, msg.PoolID, amount)
	if err != nil {
		return nil, err
	}
	return &types.MsgDonateResponse{NewTotalBalance: balance.String()}, nil
}

// Withdraw handles MsgWithdraw
func (m *MsgServer) Withdraw(ctx context.Context, msg *types.MsgWithdraw) (*types.MsgWithdrawResponse, error) {
	amount, ok := types.ParseAmount(msg.Amount)
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrInvalidWithdrawalAmount, "malformed amount %q", msg.Amount)
	}
	available, err := m.keeper.Withdraw(ctx, msg.Member, msg.PoolID, amount, msg.Recipient)
	if err != nil {
		return nil, err
	}
	return &types.MsgWithdrawResponse{Available: available.String()}, nil
}

// DeactivatePool handles MsgDeactivatePool
func (m *MsgServer) DeactivatePool(ctx context.Context, msg *types.MsgDeactivatePool) (*types.MsgDeactivatePoolResponse, error) {
	if err := m.keeper.DeactivatePool(ctx, msg.Creator, msg.PoolID); err != nil {
		return nil, err
	}
	return &types.MsgDeactivatePoolResponse{}, nil
}
