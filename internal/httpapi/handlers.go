package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"transfer-core/internal/domain"
	"transfer-core/internal/engine"
	"transfer-core/internal/store"
)

type Handlers struct {
	eng *engine.Engine
	st  store.Store
}

func NewHandlers(eng *engine.Engine, st store.Store) *Handlers {
	return &Handlers{eng: eng, st: st}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	// Caller-input problems
	case errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransferNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnverifiedAccount):
		return http.StatusForbidden

	// State conflicts
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDedupReuse),
		errors.Is(err, domain.ErrAccountInUse):
		return http.StatusConflict

	// Timeouts
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don't leak internals on 5xx.
	if code >= 500 && !errors.Is(err, domain.ErrTimeout) {
		return "internal error"
	}
	return err.Error()
}

func respondErr(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	writeErr(w, code, publicErrMessage(code, err))
}

// GET /v1/accounts
// POST /v1/accounts
func (h *Handlers) Accounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAccounts(w, r)
	case http.MethodPost:
		h.createAccount(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	accounts, err := h.st.ListAccounts(ctx)
	if err != nil {
		respondErr(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Balance.IsNegative() {
		writeErr(w, http.StatusBadRequest, "initial balance cannot be negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	acc := &domain.Account{
		ID:        uuid.New(),
		Balance:   req.Balance,
		Verified:  req.Verified,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.st.CreateAccount(ctx, acc); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

// GET /v1/accounts/{id}
// DELETE /v1/accounts/{id}
// GET /v1/accounts/{id}/transfers
func (h *Handlers) AccountByPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	parts := strings.Split(path, "/")

	accID, err := uuid.Parse(parts[0])
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid account id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		acc, err := h.st.GetAccount(ctx, accID)
		if err != nil {
			respondErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.BalanceResponse{
			AccountID: acc.ID,
			Balance:   acc.Balance,
			Verified:  acc.Verified,
		})

	case len(parts) == 1 && r.Method == http.MethodDelete:
		found, err := h.st.DeleteAccount(ctx, accID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if !found {
			writeErr(w, http.StatusNotFound, domain.ErrAccountNotFound.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "transfers" && r.Method == http.MethodGet:
		transfers, err := h.st.ListTransfersByAccount(ctx, accID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if transfers == nil {
			transfers = []domain.Transfer{}
		}
		writeJSON(w, http.StatusOK, transfers)

	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}

// POST /v1/transfers
func (h *Handlers) PostTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	tr, err := h.eng.Transfer(ctx, req)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

// POST /v1/transfers/validate — pre-flight admissibility check, no mutation.
func (h *Handlers) ValidateTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.eng.Preflight(ctx, req.SenderID, req.ReceiverID, req.Amount); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admissible": true})
}

// GET /v1/transfers/{id}
func (h *Handlers) TransferByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/v1/transfers/"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	tr, err := h.st.GetTransfer(ctx, id)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}
