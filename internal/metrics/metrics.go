// Package metrics exposes the Prometheus instruments shared across services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxarena_orders_executed_total",
		Help: "Market orders executed, by pair and side.",
	}, []string{"pair", "side"})

	DealsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxarena_deals_recorded_total",
		Help: "Deal rows appended by the execution engine.",
	})

	RealizedPnLCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxarena_realized_pnl_cents_total",
		Help: "Absolute realized P&L in cents flowing through position closes.",
	})

	StopTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxarena_stop_triggers_total",
		Help: "Positions closed by the stop monitor, by trigger kind.",
	}, []string{"kind"})

	TokenTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxarena_token_transactions_total",
		Help: "Token ledger rows written, by kind.",
	}, []string{"kind"})

	BetsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxarena_bets_placed_total",
		Help: "Spectator bets accepted.",
	})

	BetVolumeTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxarena_bet_volume_tokens_total",
		Help: "Tokens staked on spectator markets.",
	})

	MarketsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxarena_markets_settled_total",
		Help: "Spectator markets resolved pari-mutuel.",
	})

	ChallengesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxarena_challenges_settled_total",
		Help: "Peer challenges resolved with a winner.",
	})

	QuoteRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxarena_quote_refreshes_total",
		Help: "Price feed refresh cycles completed.",
	})
)
