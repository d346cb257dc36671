package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fxarena/internal/auth"
	"fxarena/internal/betting"
	"fxarena/internal/competition"
	"fxarena/internal/execution"
	"fxarena/internal/httputil"
	"fxarena/internal/pricefeed"
	"fxarena/internal/wallet"
)

type RouterDeps struct {
	AuthService        *auth.Service
	WalletHandler      *wallet.Handler
	ExecutionHandler   *execution.Handler
	CompetitionHandler *competition.Handler
	BettingHandler     *betting.Handler
	MarketHandler      *pricefeed.Handler
	InternalToken      string
}

// authed adapts a (w, r, userID) handler, rejecting requests whose token
// middleware did not attach a user.
func authed(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		h(w, r, userID)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/market/pairs", d.MarketHandler.Pairs)
		r.Get("/market/quote", d.MarketHandler.GetQuote)
		r.Get("/market/candles", d.MarketHandler.Candles)
		r.Get("/market/ws", d.MarketHandler.QuoteWS)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))

			r.Get("/wallet", authed(d.WalletHandler.Balance))
			r.Get("/wallet/transactions", authed(d.WalletHandler.Transactions))
			r.Post("/wallet/faucet", authed(d.WalletHandler.Faucet))

			r.Get("/competitions/{competitionID}", d.CompetitionHandler.Get)
			r.Post("/competitions/{competitionID}/join", authed(d.CompetitionHandler.Join))
			r.Get("/competitions/{competitionID}/entry", authed(d.CompetitionHandler.Entry))
			r.Get("/competitions/{competitionID}/leaderboard", d.CompetitionHandler.Leaderboard)

			r.Post("/competitions/{competitionID}/orders", authed(d.ExecutionHandler.PlaceOrder))
			r.Get("/competitions/{competitionID}/positions", authed(d.ExecutionHandler.Positions))
			r.Post("/competitions/{competitionID}/positions/{positionID}/close", authed(d.ExecutionHandler.PartialClose))
			r.Put("/competitions/{competitionID}/positions/{positionID}/sltp", authed(d.ExecutionHandler.UpdateSLTP))
			r.Get("/competitions/{competitionID}/deals", authed(d.ExecutionHandler.Deals))
			r.Get("/competitions/{competitionID}/trades", authed(d.ExecutionHandler.Trades))

			r.Post("/challenges", authed(d.CompetitionHandler.CreateChallenge))
			r.Get("/challenges/{challengeID}", d.CompetitionHandler.GetChallenge)
			r.Post("/challenges/{challengeID}/terms", authed(d.CompetitionHandler.ProposeTerms))
			r.Post("/challenges/{challengeID}/accept", authed(d.CompetitionHandler.AcceptTerms))
			r.Post("/challenges/{challengeID}/fund", authed(d.CompetitionHandler.FundChallenge))
			r.Post("/challenges/{challengeID}/cancel", authed(d.CompetitionHandler.CancelChallenge))

			r.Get("/challenges/{challengeID}/market", d.BettingHandler.ChallengeMarket)

			r.Get("/markets/{marketID}", d.BettingHandler.GetMarket)
			r.Get("/markets/{marketID}/bets", d.BettingHandler.MarketBets)
			r.Post("/markets/{marketID}/bets", authed(d.BettingHandler.PlaceBet))
			r.Get("/bets", authed(d.BettingHandler.MyBets))
		})

		// Operator surface: settlement, market lifecycle, ledger ops.
		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))

			r.Post("/internal/competitions", d.CompetitionHandler.Create)
			r.Post("/internal/markets", d.BettingHandler.OpenMarket)
			r.Post("/internal/markets/{marketID}/close", d.BettingHandler.CloseMarket)
			r.Post("/internal/markets/{marketID}/settle", d.BettingHandler.SettleMarket)
			r.Post("/internal/markets/{marketID}/void", d.BettingHandler.VoidMarket)
			r.Post("/internal/challenges/{challengeID}/settle", d.BettingHandler.SettleChallenge)
			r.Post("/internal/challenges/{challengeID}/market/settle", d.BettingHandler.SettleChallengeMarket)
			r.Post("/internal/challenges/{challengeID}/market/void", d.BettingHandler.VoidChallengeMarket)

			r.Post("/internal/wallet/apply", d.WalletHandler.Apply)
			r.Post("/internal/wallet/lock", d.WalletHandler.Lock)
			r.Post("/internal/wallet/unlock", d.WalletHandler.Unlock)
			r.Post("/internal/wallet/forfeit", d.WalletHandler.Forfeit)
		})
	})

	return r
}
