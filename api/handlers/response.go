package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/openalpha/sharepool/api/middleware"
	"github.com/openalpha/sharepool/api/types"
	pooltypes "github.com/openalpha/sharepool/x/pool/types"
)

// Request-level error codes that are not ledger reasons
const (
	CodeInvalidRequest   = "InvalidRequest"
	CodeMissingAccount   = "MissingAccount"
	CodeNotFound         = "NotFound"
	CodeFaucetDisabled   = "FaucetDisabled"
	CodeMethodNotAllowed = "MethodNotAllowed"
	CodeInternal         = "Internal"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &types.ErrorResponse{Error: message, Code: code})
}

// StatusFor maps a ledger error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, pooltypes.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, pooltypes.ErrPoolInactive):
		return http.StatusConflict
	case errors.Is(err, pooltypes.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pooltypes.ErrTransferFailed):
		return http.StatusBadGateway
	}
	switch pooltypes.Category(err) {
	case pooltypes.CategoryValidation:
		return http.StatusBadRequest
	case pooltypes.CategoryAuthorization:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeLedgerError reports a rejected operation with its reason code
func writeLedgerError(w http.ResponseWriter, err error) {
	resp := &types.ErrorResponse{
		Error:    err.Error(),
		Code:     pooltypes.ReasonCode(err),
		Category: pooltypes.Category(err),
	}
	var insufficient *pooltypes.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		resp.Details = map[string]string{
			"requested": insufficient.Requested.String(),
			"available": insufficient.Available.String(),
		}
	}
	writeJSON(w, StatusFor(err), resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "request body is empty")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := middleware.AccountFromContext(r.Context())
	if account == "" {
		writeError(w, http.StatusUnauthorized, CodeMissingAccount, middleware.AccountHeader+" header is required")
		return "", false
	}
	return account, true
}

func poolIDVar(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("invalid pool id %q", raw))
		return 0, false
	}
	return id, true
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

// NotFound is the router's fallback handler
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
}

// MethodNotAllowed is the router's handler for known paths with a wrong method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}
