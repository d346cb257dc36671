package pricefeed

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"fxarena/internal/httputil"
)

type Handler struct {
	feed     Feed
	upgrader websocket.Upgrader
}

func NewHandler(feed Feed, wsOrigin string) *Handler {
	return &Handler{
		feed: feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, wsOrigin) },
		},
	}
}

func (h *Handler) Pairs(w http.ResponseWriter, _ *http.Request) {
	pairs := Pairs()
	sort.Strings(pairs)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}

func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("pair")))
	q, err := h.feed.Quote(pair)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) Candles(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("pair")))
	interval := time.Minute
	if raw := r.URL.Query().Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < time.Minute {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid interval"})
			return
		}
		interval = d
	}
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	candles, err := h.feed.Candles(pair, interval, limit)
	if err != nil {
		writeFeedError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pair": pair, "candles": candles})
}

type wsQuote struct {
	Type      string `json:"type"`
	Pair      string `json:"pair"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Status    string `json:"status"`
	Timestamp int64  `json:"ts"`
}

// QuoteWS streams quotes for one pair at a fixed cadence until the client
// disconnects.
func (h *Handler) QuoteWS(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("pair")))
	if !KnownPair(pair) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "unknown pair"})
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-ticker.C:
			q, err := h.feed.Quote(pair)
			if err != nil {
				continue
			}
			msg := wsQuote{
				Type:      "quote",
				Pair:      q.Pair,
				Bid:       q.Bid.String(),
				Ask:       q.Ask.String(),
				Status:    string(q.Status),
				Timestamp: q.Timestamp.Unix(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func allowOrigin(r *http.Request, allowed string) bool {
	if allowed == "" || allowed == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, allowed) || strings.EqualFold(origin, allowed)
}

func writeFeedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownPair):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNoQuote):
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	}
}
