package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"fxarena/internal/httputil"
	"fxarena/internal/types"
)

type Handler struct {
	svc             *Service
	faucetEnabled   bool
	faucetMaxTokens int64
}

func NewHandler(svc *Service, faucetEnabled bool, faucetMaxTokens int64) *Handler {
	return &Handler{svc: svc, faucetEnabled: faucetEnabled, faucetMaxTokens: faucetMaxTokens}
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request, userID string) {
	wallet, err := h.svc.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wallet)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	txs, err := h.svc.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// Faucet credits play tokens in development mode.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.faucetEnabled {
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "faucet disabled"})
		return
	}
	var req struct {
		AmountTokens int64 `json:"amount_tokens"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.AmountTokens <= 0 || req.AmountTokens > h.faucetMaxTokens {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	wallet, err := h.svc.ApplyTransaction(r.Context(), userID, types.TxKindPurchase, req.AmountTokens, nil,
		map[string]string{"source": "faucet"})
	if err != nil {
		writeWalletError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wallet)
}

type ledgerOpRequest struct {
	UserID       string            `json:"user_id"`
	Kind         string            `json:"kind"`
	AmountTokens int64             `json:"amount_tokens"`
	Ref          *types.Ref        `json:"ref,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Apply is the internal ledger entry point for services that credit or
// debit balances directly (token purchases, manual adjustments).
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ledgerOpRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.UserID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "user_id is required"})
		return
	}
	kind := types.TxKind(req.Kind)
	if !kind.Valid() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid kind"})
		return
	}
	wallet, err := h.svc.ApplyTransaction(r.Context(), req.UserID, kind, req.AmountTokens, req.Ref, req.Metadata)
	if err != nil {
		writeWalletError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wallet)
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.lockOp(w, r, func(req ledgerOpRequest, kind types.TxKind) (any, error) {
		return h.svc.LockTokens(r.Context(), req.UserID, req.AmountTokens, kind, req.Ref)
	})
}

func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.lockOp(w, r, func(req ledgerOpRequest, kind types.TxKind) (any, error) {
		return h.svc.UnlockTokens(r.Context(), req.UserID, req.AmountTokens, kind, req.Ref)
	})
}

func (h *Handler) Forfeit(w http.ResponseWriter, r *http.Request) {
	h.lockOp(w, r, func(req ledgerOpRequest, kind types.TxKind) (any, error) {
		return h.svc.UnlockAndDeductTokens(r.Context(), req.UserID, req.AmountTokens, kind, req.Ref)
	})
}

func (h *Handler) lockOp(w http.ResponseWriter, r *http.Request, op func(ledgerOpRequest, types.TxKind) (any, error)) {
	var req ledgerOpRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.UserID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "user_id is required"})
		return
	}
	kind := types.TxKind(req.Kind)
	if !kind.Valid() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid kind"})
		return
	}
	res, err := op(req, kind)
	if err != nil {
		writeWalletError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func writeWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientLocked), errors.Is(err, ErrBelowLocked):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}
