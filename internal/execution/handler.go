package execution

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fxarena/internal/httputil"
	"fxarena/internal/pricefeed"
	"fxarena/internal/types"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type placeOrderRequest struct {
	Pair       string `json:"pair"`
	Side       string `json:"side"`
	Lots       string `json:"lots"`
	StopLoss   string `json:"stop_loss,omitempty"`
	TakeProfit string `json:"take_profit,omitempty"`
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request, userID string) {
	competitionID := chi.URLParam(r, "competitionID")
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	pair := strings.ToUpper(strings.TrimSpace(req.Pair))
	if !pricefeed.KnownPair(pair) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "unknown pair"})
		return
	}
	lots, err := decimal.NewFromString(req.Lots)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid lots"})
		return
	}
	stopLoss, err := parsePrice(req.StopLoss)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stop_loss"})
		return
	}
	takeProfit, err := parsePrice(req.TakeProfit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid take_profit"})
		return
	}
	res, err := h.engine.ExecuteMarketOrder(r.Context(), OrderRequest{
		CompetitionID: competitionID,
		UserID:        userID,
		Pair:          pair,
		Side:          types.Side(req.Side),
		Lots:          lots,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
	})
	if err != nil {
		writeExecutionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type partialCloseRequest struct {
	CloseLots    string `json:"close_lots,omitempty"`
	ClosePercent string `json:"close_percent,omitempty"`
}

func (h *Handler) PartialClose(w http.ResponseWriter, r *http.Request, userID string) {
	competitionID := chi.URLParam(r, "competitionID")
	positionID := chi.URLParam(r, "positionID")
	var req partialCloseRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	closeLots, err := parsePrice(req.CloseLots)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid close_lots"})
		return
	}
	closePercent, err := parsePrice(req.ClosePercent)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid close_percent"})
		return
	}
	res, err := h.engine.PartialClosePosition(r.Context(), PartialCloseRequest{
		CompetitionID: competitionID,
		UserID:        userID,
		PositionID:    positionID,
		CloseLots:     closeLots,
		ClosePercent:  closePercent,
	})
	if err != nil {
		writeExecutionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type updateSLTPRequest struct {
	StopLoss   string `json:"stop_loss,omitempty"`
	TakeProfit string `json:"take_profit,omitempty"`
}

func (h *Handler) UpdateSLTP(w http.ResponseWriter, r *http.Request, userID string) {
	competitionID := chi.URLParam(r, "competitionID")
	positionID := chi.URLParam(r, "positionID")
	var req updateSLTPRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	stopLoss, err := parsePrice(req.StopLoss)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stop_loss"})
		return
	}
	takeProfit, err := parsePrice(req.TakeProfit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid take_profit"})
		return
	}
	pos, err := h.engine.UpdatePositionSLTP(r.Context(), competitionID, userID, positionID, stopLoss, takeProfit)
	if err != nil {
		writeExecutionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request, userID string) {
	competitionID := chi.URLParam(r, "competitionID")
	positions, err := h.engine.OpenPositions(r.Context(), competitionID, userID)
	if err != nil {
		writeExecutionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (h *Handler) Deals(w http.ResponseWriter, r *http.Request, userID string) {
	competitionID := chi.URLParam(r, "competitionID")
	deals, err := h.engine.GetDeals(r.Context(), competitionID, userID, listLimit(r))
	if err != nil {
		writeExecutionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request, userID string) {
	competitionID := chi.URLParam(r, "competitionID")
	trades, err := h.engine.GetTrades(r.Context(), competitionID, userID, listLimit(r))
	if err != nil {
		writeExecutionError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func parsePrice(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func listLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return 100
}

func writeExecutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidLots), errors.Is(err, ErrInvalidSide):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrPositionNotFound), errors.Is(err, ErrEntryNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, pricefeed.ErrUnknownPair):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, pricefeed.ErrNoQuote):
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}
