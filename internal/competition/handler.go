package competition

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

// Create is internal-only; competitions are scheduled by the operator.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCompetitionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	c, err := h.svc.CreateCompetition(r.Context(), req)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCompetition(r.Context(), chi.URLParam(r, "competitionID"))
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request, userID string) {
	e, err := h.svc.JoinCompetition(r.Context(), chi.URLParam(r, "competitionID"), userID)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) Entry(w http.ResponseWriter, r *http.Request, userID string) {
	e, err := h.svc.RefreshEquity(r.Context(), chi.URLParam(r, "competitionID"), userID)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Leaderboard(r.Context(), chi.URLParam(r, "competitionID"))
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type createChallengeRequest struct {
	InviteeID string `json:"invitee_id"`
	ChallengeTerms
}

func (h *Handler) CreateChallenge(w http.ResponseWriter, r *http.Request, userID string) {
	var req createChallengeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.InviteeID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invitee_id is required"})
		return
	}
	c, err := h.svc.CreateChallenge(r.Context(), userID, req.InviteeID, req.ChallengeTerms)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) ProposeTerms(w http.ResponseWriter, r *http.Request, userID string) {
	var terms ChallengeTerms
	if err := httputil.ReadJSON(r, &terms); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	c, err := h.svc.ProposeTerms(r.Context(), chi.URLParam(r, "challengeID"), userID, terms)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) AcceptTerms(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := h.svc.AcceptTerms(r.Context(), chi.URLParam(r, "challengeID"), userID)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) FundChallenge(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := h.svc.FundChallenge(r.Context(), chi.URLParam(r, "challengeID"), userID)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) CancelChallenge(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := h.svc.CancelChallenge(r.Context(), chi.URLParam(r, "challengeID"), userID)
	if err != nil {
		writeCompetitionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func writeCompetitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCompetitionNotFound), errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrChallengeNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrEntryExists), errors.Is(err, ErrStateConflict), errors.Is(err, ErrAlreadyFunded):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotParticipant):
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidStake), errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrSelfChallenge),
		errors.Is(err, ErrInvalidFee), errors.Is(err, ErrInvalidCash), errors.Is(err, ErrCompetitionClosed):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}
