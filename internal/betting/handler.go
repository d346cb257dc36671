package betting

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fxarena/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type openMarketRequest struct {
	ChallengeID string `json:"challenge_id"`
	RakeBps     int64  `json:"rake_bps"`
}

// OpenMarket is internal-only; markets open when a challenge activates.
func (h *Handler) OpenMarket(w http.ResponseWriter, r *http.Request) {
	var req openMarketRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.ChallengeID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "challenge_id is required"})
		return
	}
	m, err := h.svc.OpenMarket(r.Context(), req.ChallengeID, req.RakeBps)
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.CloseMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

type placeBetRequest struct {
	PickUserID   string `json:"pick_user_id"`
	AmountTokens int64  `json:"amount_tokens"`
}

func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeBetRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	b, err := h.svc.PlaceBet(r.Context(), chi.URLParam(r, "marketID"), userID, req.PickUserID, req.AmountTokens)
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) MarketBets(w http.ResponseWriter, r *http.Request) {
	bets, err := h.svc.ListBets(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

func (h *Handler) MyBets(w http.ResponseWriter, r *http.Request, userID string) {
	bets, err := h.svc.ListUserBets(r.Context(), userID)
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

type settleMarketRequest struct {
	WinnerUserID string `json:"winner_user_id"`
}

// SettleMarket resolves a market directly. Normally settlement flows from
// SettleChallenge; this is the internal override.
func (h *Handler) SettleMarket(w http.ResponseWriter, r *http.Request) {
	var req settleMarketRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	m, err := h.svc.SettleMarket(r.Context(), chi.URLParam(r, "marketID"), req.WinnerUserID)
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) VoidMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.VoidMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// ChallengeMarket returns the spectator market for a challenge.
func (h *Handler) ChallengeMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMarketByChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// SettleChallengeMarket settles a challenge's spectator market without
// touching the challenge stakes.
func (h *Handler) SettleChallengeMarket(w http.ResponseWriter, r *http.Request) {
	var req settleMarketRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	m, err := h.svc.SettleMarketByChallenge(r.Context(), chi.URLParam(r, "challengeID"), req.WinnerUserID)
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// VoidChallengeMarket voids a challenge's spectator market, refunding every
// spectator stake.
func (h *Handler) VoidChallengeMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.VoidMarketByChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// SettleChallenge resolves a finished challenge: winner, stakes and the
// spectator market in one pass.
func (h *Handler) SettleChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.SettleChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeBettingError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func writeBettingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMarketNotFound), errors.Is(err, ErrBetNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrMarketExists), errors.Is(err, ErrMarketNotOpen), errors.Is(err, ErrStateConflict),
		errors.Is(err, ErrChallengeNotLive):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidPick), errors.Is(err, ErrParticipantBet):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}
