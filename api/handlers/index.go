package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/openalpha/sharepool/indexer"
	pooltypes "github.com/openalpha/sharepool/x/pool/types"
)

// IndexHandler serves the event log and the indexed aggregates
type IndexHandler struct {
	store indexer.Store
}

// NewIndexHandler creates a handler over an indexer store
func NewIndexHandler(store indexer.Store) *IndexHandler {
	return &IndexHandler{store: store}
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return indexer.DefaultQueryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid limit " + strconv.Quote(raw))
	}
	return indexer.ClampLimit(limit), nil
}

func (h *IndexHandler) writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, indexer.ErrNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, what+" not indexed")
		return
	}
	writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
}

// Events handles GET /v1/events?after=&limit=
func (h *IndexHandler) Events(w http.ResponseWriter, r *http.Request) {
	after, err := queryUint(r, "after", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	events, err := h.store.Events(r.Context(), after, limit)
	if err != nil {
		h.writeStoreError(w, err, "events")
		return
	}
	last, err := h.store.LastSeq(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "events")
		return
	}
	if events == nil {
		events = []indexer.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":   events,
		"last_seq": last,
	})
}

// Pools handles GET /v1/index/pools?offset=&limit=
func (h *IndexHandler) Pools(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	pools, err := h.store.Pools(r.Context(), int(offset), limit)
	if err != nil {
		h.writeStoreError(w, err, "pools")
		return
	}
	if pools == nil {
		pools = []*indexer.PoolSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pools": pools})
}

// Pool handles GET /v1/index/pools/{id}
func (h *IndexHandler) Pool(w http.ResponseWriter, r *http.Request) {
	id, ok := poolIDVar(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	summary, err := h.store.Pool(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "pool")
		return
	}
	donations, err := h.store.PoolDonations(r.Context(), id, limit)
	if err != nil {
		h.writeStoreError(w, err, "pool")
		return
	}
	if donations == nil {
		donations = []indexer.Donation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":   summary,
		"balance":   summary.Balance().String(),
		"donations": donations,
	})
}

// Donor handles GET /v1/index/donors/{address}
func (h *IndexHandler) Donor(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if err := pooltypes.ValidateAddress(address); err != nil {
		writeLedgerError(w, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	stat, err := h.store.Donor(r.Context(), address)
	if err != nil {
		h.writeStoreError(w, err, "donor")
		return
	}
	donations, err := h.store.DonorDonations(r.Context(), address, limit)
	if err != nil {
		h.writeStoreError(w, err, "donor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"donor":     stat,
		"donations": donations,
	})
}

// Leaderboard handles GET /v1/index/leaderboard?limit=
func (h *IndexHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	donors, err := h.store.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeStoreError(w, err, "leaderboard")
		return
	}
	if donors == nil {
		donors = []*indexer.DonorStat{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": donors})
}
