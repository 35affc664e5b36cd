package types

import (
	"context"

	"cosmossdk.io/math"

	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/x/pool/keeper"
	pooltypes "github.com/openalpha/sharepool/x/pool/types"
)

// PoolService is the ledger as seen by the HTTP handlers
type PoolService interface {
	CreatePool(ctx context.Context, msg *pooltypes.MsgCreatePool) (*pooltypes.MsgCreatePoolResponse, []indexer.Event, error)
	Donate(ctx context.Context, msg *pooltypes.MsgDonate) (*pooltypes.MsgDonateResponse, []indexer.Event, error)
	Withdraw(ctx context.Context, msg *pooltypes.MsgWithdraw) (*pooltypes.MsgWithdrawResponse, []indexer.Event, error)
	DeactivatePool(ctx context.Context, msg *pooltypes.MsgDeactivatePool) ([]indexer.Event, error)

	Pool(ctx context.Context, poolID uint64) (*pooltypes.Pool, error)
	Pools(ctx context.Context, offset, limit uint64) ([]*pooltypes.Pool, uint64, error)
	PoolsByCreator(ctx context.Context, creator string) ([]*pooltypes.Pool, error)
	PoolMembers(ctx context.Context, poolID uint64) ([]*pooltypes.MemberInfo, error)
	PoolBalance(ctx context.Context, poolID uint64) (math.Int, error)
	AvailableBalance(ctx context.Context, poolID uint64, address string) (math.Int, error)
	MemberPools(ctx context.Context, address string) ([]*keeper.MemberPool, error)
	NextPoolID(ctx context.Context) (uint64, error)
	Custody(ctx context.Context) (*keeper.CustodyReport, error)
}

// AccountService exposes settlement balances and the dev faucet
type AccountService interface {
	AccountBalance(ctx context.Context, address string) (math.Int, error)
	Fund(ctx context.Context, address string, amount, max math.Int) (math.Int, error)
	Denom() string
}

// CreatePoolRequest is the body of POST /v1/pools
type CreatePoolRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURI    string   `json:"image_uri"`
	Members     []string `json:"members"`
	// Percentages are basis points. Signed so that out-of-range values reach
	// ledger validation instead of failing to decode.
	Percentages []int64 `json:"percentages"`
}

// CreatePoolResponse is returned with 201 Created
type CreatePoolResponse struct {
	PoolID uint64          `json:"pool_id"`
	Pool   *pooltypes.Pool `json:"pool"`
	Events []indexer.Event `json:"events"`
}

// DonateRequest is the body of POST /v1/pools/{id}/donate
type DonateRequest struct {
	Amount string `json:"amount"`
}

// DonateResponse reports the pool custody after the donation
type DonateResponse struct {
	PoolID          uint64          `json:"pool_id"`
	NewTotalBalance string          `json:"new_total_balance"`
	Events          []indexer.Event `json:"events"`
}

// WithdrawRequest is the body of POST /v1/pools/{id}/withdraw. An empty
// recipient pays the caller.
type WithdrawRequest struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// WithdrawResponse reports what the member can still withdraw
type WithdrawResponse struct {
	PoolID    uint64          `json:"pool_id"`
	Available string          `json:"available"`
	Events    []indexer.Event `json:"events"`
}

// DeactivateResponse is returned by POST /v1/pools/{id}/deactivate
type DeactivateResponse struct {
	PoolID uint64          `json:"pool_id"`
	Active bool            `json:"active"`
	Events []indexer.Event `json:"events"`
}

// PoolListResponse is a page of pools
type PoolListResponse struct {
	Pools  []*pooltypes.Pool `json:"pools"`
	Total  uint64            `json:"total"`
	Offset uint64            `json:"offset"`
	Limit  uint64            `json:"limit"`
}

// PoolBalanceResponse carries the custody of one pool
type PoolBalanceResponse struct {
	PoolID  uint64 `json:"pool_id"`
	Balance string `json:"balance"`
	Denom   string `json:"denom"`
}

// AvailableBalanceResponse is a member's withdrawable amount
type AvailableBalanceResponse struct {
	PoolID    uint64 `json:"pool_id"`
	Address   string `json:"address"`
	Available string `json:"available"`
}

// AccountBalanceResponse is a settlement balance
type AccountBalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Denom   string `json:"denom"`
}

// FaucetRequest is the body of POST /v1/faucet
type FaucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	Category string            `json:"category,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}
