package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openalpha/sharepool/api/types"
	pooltypes "github.com/openalpha/sharepool/x/pool/types"
)

// DefaultPageLimit is the page size of GET /v1/pools without ?limit
const DefaultPageLimit = 50

// MaxPageLimit caps ?limit on pool listings
const MaxPageLimit = 500

// PoolHandler serves the pool ledger operations and views
type PoolHandler struct {
	service types.PoolService
	denom   string
}

// NewPoolHandler creates a new pool handler
func NewPoolHandler(service types.PoolService, denom string) *PoolHandler {
	return &PoolHandler{service: service, denom: denom}
}

// ListPools handles GET /v1/pools?offset=&limit=&creator=
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	if creator := r.URL.Query().Get("creator"); creator != "" {
		pools, err := h.service.PoolsByCreator(r.Context(), creator)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		if pools == nil {
			pools = []*pooltypes.Pool{}
		}
		writeJSON(w, http.StatusOK, &types.PoolListResponse{Pools: pools, Total: uint64(len(pools))})
		return
	}

	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	limit, err := queryUint(r, "limit", DefaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if limit == 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	pools, total, err := h.service.Pools(r.Context(), offset, limit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.PoolListResponse{
		Pools:  pools,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

// CreatePool handles POST /v1/pools
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	creator, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req types.CreatePoolRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	percentages, err := pooltypes.ParsePercentages(req.Title, req.Members, req.Percentages)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	msg := pooltypes.NewMsgCreatePool(creator, req.Title, req.Description, req.ImageURI, req.Members, percentages)
	resp, events, err := h.service.CreatePool(r.Context(), msg)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	pool, err := h.service.Pool(r.Context(), resp.PoolID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/pools/"+resp.String())
	writeJSON(w, http.StatusCreated, &types.CreatePoolResponse{
		PoolID: resp.PoolID,
		Pool:   pool,
		Events: events,
	})
}

// NextPoolID handles GET /v1/pools/next-id
func (h *PoolHandler) NextPoolID(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.NextPoolID(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"next_pool_id": id})
}

// GetPool handles GET /v1/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}
	pool, err := h.service.Pool(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// GetMembers handles GET /v1/pools/{id}/members
func (h *PoolHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}
	members, err := h.service.PoolMembers(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pool_id": id,
		"members": members,
	})
}

// GetBalance handles GET /v1/pools/{id}/balance
func (h *PoolHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}
	balance, err := h.service.PoolBalance(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.PoolBalanceResponse{PoolID: id, Balance: balance.String(), Denom: h.denom})
}

// GetAvailable handles GET /v1/pools/{id}/available/{address}
func (h *PoolHandler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}
	address := mux.Vars(r)["address"]
	available, err := h.service.AvailableBalance(r.Context(), id, address)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.AvailableBalanceResponse{
		PoolID:    id,
		Address:   address,
		Available: available.String(),
	})
}

// Donate handles POST /v1/pools/{id}/donate
func (h *PoolHandler) Donate(w http.ResponseWriter, r *http.Request) {
	donor, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}
	var req types.DonateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, events, err := h.service.Donate(r.Context(), pooltypes.NewMsgDonate(donor, id, req.Amount))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.DonateResponse{
		PoolID:          id,
		NewTotalBalance: resp.NewTotalBalance,
		Events:          events,
	})
}

// Withdraw handles POST /v1/pools/{id}/withdraw
func (h *PoolHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	member, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}
	var req types.WithdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = member
	}

	resp, events, err := h.service.Withdraw(r.Context(), pooltypes.NewMsgWithdraw(member, id, req.Amount, recipient))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.WithdrawResponse{
		PoolID:    id,
		Available: resp.Available,
		Events:    events,
	})
}

// Deactivate handles POST /v1/pools/{id}/deactivate
func (h *PoolHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	creator, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}

	events, err := h.service.DeactivatePool(r.Context(), pooltypes.NewMsgDeactivatePool(creator, id))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.DeactivateResponse{PoolID: id, Active: false, Events: events})
}

// Custody handles GET /v1/custody
func (h *PoolHandler) Custody(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Custody(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
