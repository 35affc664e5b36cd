package types

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// BasisPointsTotal is 100% expressed in basis points
const BasisPointsTotal uint32 = 10000

// DefaultSettlementDenom is the denom donations and withdrawals settle in
const DefaultSettlementDenom = "uusdc"

// Pool is a single fundraising campaign
type Pool struct {
	PoolID           uint64   `json:"pool_id"`
	Creator          string   `json:"creator"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	ImageURI         string   `json:"image_uri"`
	TotalBalance     math.Int `json:"total_balance"`   // cumulative donations, never decreases
	TotalWithdrawn   math.Int `json:"total_withdrawn"` // cumulative withdrawals by all members
	CreatorWithdrawn math.Int `json:"creator_withdrawn"`
	Active           bool     `json:"active"`
	CreatedAt        int64    `json:"created_at"`
}

// NewPool creates an active pool with zeroed accounting
func NewPool(poolID uint64, creator, title, description, imageURI string, createdAt int64) *Pool {
	return &Pool{
		PoolID:           poolID,
		Creator:          creator,
		Title:            title,
		Description:      description,
		ImageURI:         imageURI,
		TotalBalance:     math.ZeroInt(),
		TotalWithdrawn:   math.ZeroInt(),
		CreatorWithdrawn: math.ZeroInt(),
		Active:           true,
		CreatedAt:        createdAt,
	}
}

// Custody returns the funds still held for this pool
func (p *Pool) Custody() math.Int {
	return p.TotalBalance.Sub(p.TotalWithdrawn)
}

// Entitlement returns floor(totalBalance * percentage / 10000)
func (p *Pool) Entitlement(percentage uint32) math.Int {
	return p.TotalBalance.MulRaw(int64(percentage)).QuoRaw(int64(BasisPointsTotal))
}

// Available returns the entitlement left after what was already withdrawn
func (p *Pool) Available(percentage uint32, withdrawn math.Int) math.Int {
	available := p.Entitlement(percentage).Sub(withdrawn)
	if available.IsNegative() {
		return math.ZeroInt()
	}
	return available
}

// Member is an explicit member row of a pool
type Member struct {
	PoolID         uint64   `json:"pool_id"`
	Address        string   `json:"address"`
	Percentage     uint32   `json:"percentage"`
	TotalWithdrawn math.Int `json:"total_withdrawn"`
}

// NewMember creates a member row with nothing withdrawn
func NewMember(poolID uint64, address string, percentage uint32) *Member {
	return &Member{
		PoolID:         poolID,
		Address:        address,
		Percentage:     percentage,
		TotalWithdrawn: math.ZeroInt(),
	}
}

// MemberInfo is the read view of a membership, including the creator's virtual entry
type MemberInfo struct {
	Address        string   `json:"address"`
	Percentage     uint32   `json:"percentage"`
	TotalWithdrawn math.Int `json:"total_withdrawn"`
	Available      math.Int `json:"available"`
	IsCreator      bool     `json:"is_creator"`
}

// CreatorPercentage derives the creator share from the explicit member shares
func CreatorPercentage(percentages []uint32) uint32 {
	var sum uint64
	for _, p := range percentages {
		sum += uint64(p)
	}
	if sum >= uint64(BasisPointsTotal) {
		return 0
	}
	return BasisPointsTotal - uint32(sum)
}

// ValidatePoolParams checks CreatePool input in the order callers observe:
// title, lengths, each percentage, the sum, then duplicates.
func ValidatePoolParams(creator, title string, members []string, percentages []uint32) error {
	if title == "" {
		return ErrEmptyTitle
	}
	if len(members) != len(percentages) {
		return errorsmod.Wrapf(ErrArrayLengthMismatch, "%d members, %d percentages", len(members), len(percentages))
	}
	var sum uint64
	for _, p := range percentages {
		if p == 0 || p > BasisPointsTotal {
			return errorsmod.Wrapf(ErrInvalidMemberPercentage, "percentage %d", p)
		}
		sum += uint64(p)
	}
	if sum >= uint64(BasisPointsTotal) {
		return errorsmod.Wrapf(ErrInvalidTotalPercentage, "sum %d", sum)
	}
	seen := make(map[string]struct{}, len(members)+1)
	seen[creator] = struct{}{}
	for _, m := range members {
		if _, ok := seen[m]; ok {
			if m == creator {
				return errorsmod.Wrapf(ErrDuplicateMember, "creator %s listed as member", m)
			}
			return errorsmod.Wrapf(ErrDuplicateMember, "%s", m)
		}
		seen[m] = struct{}{}
	}
	return nil
}

// ParsePercentages converts signed share values from an external request to
// basis points. Title and array lengths are checked first so the reported
// reason follows the same order as ValidatePoolParams.
func ParsePercentages(title string, members []string, values []int64) ([]uint32, error) {
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if len(members) != len(values) {
		return nil, errorsmod.Wrapf(ErrArrayLengthMismatch, "%d members, %d percentages", len(members), len(values))
	}
	percentages := make([]uint32, len(values))
	for i, v := range values {
		if v <= 0 || v > int64(BasisPointsTotal) {
			return nil, errorsmod.Wrapf(ErrInvalidMemberPercentage, "percentage %d", v)
		}
		percentages[i] = uint32(v)
	}
	return percentages, nil
}

// ValidateAddress checks a bech32 account address
func ValidateAddress(address string) error {
	if _, err := sdk.AccAddressFromBech32(address); err != nil {
		return errorsmod.Wrapf(ErrInvalidAddress, "%s: %v", address, err)
	}
	return nil
}

// MemberInfos builds the membership view of a pool: the creator's derived
// entry first, then members in the order of the slice passed in. Keeper
// callers pass GetMembers, which yields store (address) order.
func MemberInfos(pool *Pool, members []*Member) []*MemberInfo {
	percentages := make([]uint32, len(members))
	for i, m := range members {
		percentages[i] = m.Percentage
	}
	creatorPct := CreatorPercentage(percentages)

	infos := make([]*MemberInfo, 0, len(members)+1)
	infos = append(infos, &MemberInfo{
		Address:        pool.Creator,
		Percentage:     creatorPct,
		TotalWithdrawn: pool.CreatorWithdrawn,
		Available:      pool.Available(creatorPct, pool.CreatorWithdrawn),
		IsCreator:      true,
	})
	for _, m := range members {
		infos = append(infos, &MemberInfo{
			Address:        m.Address,
			Percentage:     m.Percentage,
			TotalWithdrawn: m.TotalWithdrawn,
			Available:      pool.Available(m.Percentage, m.TotalWithdrawn),
		})
	}
	return infos
}
