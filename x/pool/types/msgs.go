package types

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Message types for the pool module
const (
	TypeMsgCreatePool     = "create_pool"
	TypeMsgDonate         = "donate"
	TypeMsgWithdraw       = "withdraw"
	TypeMsgDeactivatePool = "deactivate_pool"
)

// MsgServer defines the pool module's message service
type MsgServer interface {
	CreatePool(context.Context, *MsgCreatePool) (*MsgCreatePoolResponse, error)
	Donate(context.Context, *MsgDonate) (*MsgDonateResponse, error)
	Withdraw(context.Context, *MsgWithdraw) (*MsgWithdrawResponse, error)
	DeactivatePool(context.Context, *MsgDeactivatePool) (*MsgDeactivatePoolResponse, error)
}

// ParseAmount parses a base-unit integer amount
func ParseAmount(s string) (math.Int, bool) {
	return math.NewIntFromString(s)
}

// ============ MsgCreatePool ============

// MsgCreatePool opens a pool with a fixed member set
type MsgCreatePool struct {
	Creator     string   `json:"creator"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURI    string   `json:"image_uri"`
	Members     []string `json:"members"`
	Percentages []uint32 `json:"percentages"`
}

// NewMsgCreatePool creates a new MsgCreatePool
func NewMsgCreatePool(creator, title, description, imageURI string, members []string, percentages []uint32) *MsgCreatePool {
	return &MsgCreatePool{
		Creator:     creator,
		Title:       title,
		Description: description,
		ImageURI:    imageURI,
		Members:     members,
		Percentages: percentages,
	}
}

func (msg *MsgCreatePool) Route() string { return RouterKey }
func (msg *MsgCreatePool) Type() string  { return TypeMsgCreatePool }

// ValidateBasic performs stateless validation
func (msg *MsgCreatePool) ValidateBasic() error {
	if err := ValidateAddress(msg.Creator); err != nil {
		return err
	}
	if err := ValidatePoolParams(msg.Creator, msg.Title, msg.Members, msg.Percentages); err != nil {
		return err
	}
	for _, m := range msg.Members {
		if err := ValidateAddress(m); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgCreatePool) GetSigners() []sdk.AccAddress {
	creator, _ := sdk.AccAddressFromBech32(msg.Creator)
	return []sdk.AccAddress{creator}
}

func (msg *MsgCreatePool) Reset()         { *msg = MsgCreatePool{} }
func (msg *MsgCreatePool) String() string { return msg.Title }
func (msg *MsgCreatePool) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgCreatePool
func (msg *MsgCreatePool) XXX_MessageName() string {
	return "sharepool.pool.v1.MsgCreatePool"
}

// MsgCreatePoolResponse returns the new pool id
type MsgCreatePoolResponse struct {
	PoolID uint64 `json:"pool_id"`
}

func (msg *MsgCreatePoolResponse) Reset()         { *msg = MsgCreatePoolResponse{} }
func (msg *MsgCreatePoolResponse) String() string { return strconv.FormatUint(msg.PoolID, 10) }
func (msg *MsgCreatePoolResponse) ProtoMessage()  {}

// ============ MsgDonate ============

// MsgDonate moves settlement funds from the donor into pool custody
type MsgDonate struct {
	Donor  string `json:"donor"`
	PoolID uint64 `json:"pool_id"`
	Amount string `json:"amount"`
}

// NewMsgDonate creates a new MsgDonate
func NewMsgDonate(donor string, poolID uint64, amount string) *MsgDonate {
	return &MsgDonate{Donor: donor, PoolID: poolID, Amount: amount}
}

func (msg *MsgDonate) Route() string { return RouterKey }
func (msg *MsgDonate) Type() string  { return TypeMsgDonate }

// ValidateBasic checks the donor address and amount format. Positivity is
// checked by the keeper after the pool checks.
func (msg *MsgDonate) ValidateBasic() error {
	if err := ValidateAddress(msg.Donor); err != nil {
		return err
	}
	if _, ok := ParseAmount(msg.Amount); !ok {
		return errorsmod.Wrapf(ErrInvalidDonationAmount, "malformed amount %q", msg.Amount)
	}
	return nil
}

func (msg *MsgDonate) GetSigners() []sdk.AccAddress {
	donor, _ := sdk.AccAddressFromBech32(msg.Donor)
	return []sdk.AccAddress{donor}
}

func (msg *MsgDonate) Reset()         { *msg = MsgDonate{} }
func (msg *MsgDonate) String() string { return msg.Donor }
func (msg *MsgDonate) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgDonate
func (msg *MsgDonate) XXX_MessageName() string {
	return "sharepool.pool.v1.MsgDonate"
}

// MsgDonateResponse returns the pool balance after the donation
type MsgDonateResponse struct {
	NewTotalBalance string `json:"new_total_balance"`
}

func (msg *MsgDonateResponse) Reset()         { *msg = MsgDonateResponse{} }
func (msg *MsgDonateResponse) String() string { return msg.NewTotalBalance }
func (msg *MsgDonateResponse) ProtoMessage()  {}

// ============ MsgWithdraw ============

// MsgWithdraw pays part of a member's available balance to a recipient
type MsgWithdraw struct {
	Member    string `json:"member"`
	PoolID    uint64 `json:"pool_id"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// NewMsgWithdraw creates a new MsgWithdraw; an empty recipient pays the member
func NewMsgWithdraw(member string, poolID uint64, amount, recipient string) *MsgWithdraw {
	if recipient == "" {
		recipient = member
	}
	return &MsgWithdraw{Member: member, PoolID: poolID, Amount: amount, Recipient: recipient}
}

func (msg *MsgWithdraw) Route() string { return RouterKey }
func (msg *MsgWithdraw) Type() string  { return TypeMsgWithdraw }

// ValidateBasic checks addresses and amount format
func (msg *MsgWithdraw) ValidateBasic() error {
	if err := ValidateAddress(msg.Member); err != nil {
		return err
	}
	if err := ValidateAddress(msg.Recipient); err != nil {
		return err
	}
	if _, ok := ParseAmount(msg.Amount); !ok {
		return errorsmod.Wrapf(ErrInvalidWithdrawalAmount, "malformed amount %q", msg.Amount)
	}
	return nil
}

func (msg *MsgWithdraw) GetSigners() []sdk.AccAddress {
	member, _ := sdk.AccAddressFromBech32(msg.Member)
	return []sdk.AccAddress{member}
}

func (msg *MsgWithdraw) Reset()         { *msg = MsgWithdraw{} }
func (msg *MsgWithdraw) String() string { return msg.Member }
func (msg *MsgWithdraw) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgWithdraw
func (msg *MsgWithdraw) XXX_MessageName() string {
	return "sharepool.pool.v1.MsgWithdraw"
}

// MsgWithdrawResponse returns the member's remaining available balance
type MsgWithdrawResponse struct {
	Available string `json:"available"`
}

func (msg *MsgWithdrawResponse) Reset()         { *msg = MsgWithdrawResponse{} }
func (msg *MsgWithdrawResponse) String() string { return msg.Available }
func (msg *MsgWithdrawResponse) ProtoMessage()  {}

// ============ MsgDeactivatePool ============

// MsgDeactivatePool permanently closes a pool to donations and withdrawals
type MsgDeactivatePool struct {
	Creator string `json:"creator"`
	PoolID  uint64 `json:"pool_id"`
}

// NewMsgDeactivatePool creates a new MsgDeactivatePool
func NewMsgDeactivatePool(creator string, poolID uint64) *MsgDeactivatePool {
	return &MsgDeactivatePool{Creator: creator, PoolID: poolID}
}

func (msg *MsgDeactivatePool) Route() string { return RouterKey }
func (msg *MsgDeactivatePool) Type() string  { return TypeMsgDeactivatePool }

// ValidateBasic checks the caller address
func (msg *MsgDeactivatePool) ValidateBasic() error {
	return ValidateAddress(msg.Creator)
}

func (msg *MsgDeactivatePool) GetSigners() []sdk.AccAddress {
	creator, _ := sdk.AccAddressFromBech32(msg.Creator)
	return []sdk.AccAddress{creator}
}

func (msg *MsgDeactivatePool) Reset()         { *msg = MsgDeactivatePool{} }
func (msg *MsgDeactivatePool) String() string { return msg.Creator }
func (msg *MsgDeactivatePool) ProtoMessage()  {}

// XXX_MessageName returns the message type URL for MsgDeactivatePool
func (msg *MsgDeactivatePool) XXX_MessageName() string {
	return "sharepool.pool.v1.MsgDeactivatePool"
}

// MsgDeactivatePoolResponse is the response for MsgDeactivatePool
type MsgDeactivatePoolResponse struct{}

func (msg *MsgDeactivatePoolResponse) Reset()         { *msg = MsgDeactivatePoolResponse{} }
func (msg *MsgDeactivatePoolResponse) String() string { return "" }
func (msg *MsgDeactivatePoolResponse) ProtoMessage()  {}
