package handlers

import (
	"net/http"

	"cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/openalpha/sharepool/api/middleware"
	"github.com/openalpha/sharepool/api/types"
	pooltypes "github.com/openalpha/sharepool/x/pool/types"
)

// AccountHandler serves settlement balances, memberships and the faucet
type AccountHandler struct {
	accounts  types.AccountService
	pools     types.PoolService
	faucet    bool
	faucetMax math.Int
}

// NewAccountHandler creates an account handler. The faucet is served only
// when enabled; faucetMax caps a single request.
func NewAccountHandler(accounts types.AccountService, pools types.PoolService, faucet bool, faucetMax math.Int) *AccountHandler {
	return &AccountHandler{accounts: accounts, pools: pools, faucet: faucet, faucetMax: faucetMax}
}

// GetBalance handles GET /v1/accounts/{address}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	balance, err := h.accounts.AccountBalance(r.Context(), address)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.AccountBalanceResponse{
		Address: address,
		Balance: balance.String(),
		Denom:   h.accounts.Denom(),
	})
}

// GetPools handles GET /v1/accounts/{address}/pools
func (h *AccountHandler) GetPools(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if err := pooltypes.ValidateAddress(address); err != nil {
		writeLedgerError(w, err)
		return
	}
	pools, err := h.pools.MemberPools(r.Context(), address)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	created, err := h.pools.PoolsByCreator(r.Context(), address)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":     address,
		"memberships": pools,
		"created":     len(created),
	})
}

// Faucet handles POST /v1/faucet
func (h *AccountHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	if !h.faucet {
		writeError(w, http.StatusForbidden, CodeFaucetDisabled, "faucet is disabled")
		return
	}
	var req types.FaucetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Address == "" {
		req.Address = middleware.AccountFromContext(r.Context())
	}
	if err := pooltypes.ValidateAddress(req.Address); err != nil {
		writeLedgerError(w, err)
		return
	}
	amount, ok := pooltypes.ParseAmount(req.Amount)
	if !ok || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "amount must be a positive integer")
		return
	}
	if !h.faucetMax.IsNil() && amount.GT(h.faucetMax) {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "amount exceeds faucet limit "+h.faucetMax.String())
		return
	}

	balance, err := h.accounts.Fund(r.Context(), req.Address, amount, h.faucetMax)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.AccountBalanceResponse{
		Address: req.Address,
		Balance: balance.String(),
		Denom:   h.accounts.Denom(),
	})
}
