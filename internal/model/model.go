package model

import (
	"time"

	"github.com/shopspring/decimal"

	"fxarena/internal/types"
)

// Position is the open exposure for one (competition, user, pair).
// Quantity is always positive while the row exists; a position reduced
// to zero units is deleted, never kept as a zero row.
type Position struct {
	ID               string           `json:"id"`
	CompetitionID    string           `json:"competition_id"`
	UserID           string           `json:"user_id"`
	Pair             string           `json:"pair"`
	Side             types.Side       `json:"side"`
	Units            int64            `json:"units"`
	AvgEntryPrice    decimal.Decimal  `json:"avg_entry_price"`
	StopLoss         *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit       *decimal.Decimal `json:"take_profit,omitempty"`
	RealizedPnLCents int64            `json:"realized_pnl_cents"`
	TradeID          string           `json:"trade_id"`
	OpenedAt         time.Time        `json:"opened_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Trade is the lifecycle of a position from open to close. One trade may
// span multiple deals; a flip closes the trade and opens a new one.
type Trade struct {
	ID               string            `json:"id"`
	CompetitionID    string            `json:"competition_id"`
	UserID           string            `json:"user_id"`
	Pair             string            `json:"pair"`
	Side             types.Side        `json:"side"`
	UnitsIn          int64             `json:"units_in"`
	UnitsOut         int64             `json:"units_out"`
	AvgEntryPrice    decimal.Decimal   `json:"avg_entry_price"`
	AvgExitPrice     decimal.Decimal   `json:"avg_exit_price"`
	RealizedPnLCents int64             `json:"realized_pnl_cents"`
	Status           types.TradeStatus `json:"status"`
	OpenedAt         time.Time         `json:"opened_at"`
	ClosedAt         *time.Time        `json:"closed_at,omitempty"`
}

// Deal is the immutable audit record of a single fill. Append-only.
type Deal struct {
	ID               string          `json:"id"`
	TradeID          string          `json:"trade_id"`
	CompetitionID    string          `json:"competition_id"`
	UserID           string          `json:"user_id"`
	Pair             string          `json:"pair"`
	Side             types.Side      `json:"side"`
	Units            int64           `json:"units"`
	Lots             decimal.Decimal `json:"lots"`
	Price            decimal.Decimal `json:"price"`
	Kind             types.DealKind  `json:"kind"`
	RealizedPnLCents int64           `json:"realized_pnl_cents"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Competition is a prize-pool contest users join for a token entry fee.
type Competition struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	EntryFeeTokens    int64     `json:"entry_fee_tokens"`
	StartingCashCents int64     `json:"starting_cash_cents"`
	RakeBps           int64     `json:"rake_bps"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// Entry is one user's participation in a competition. Cash moves only on
// realized P&L and entry fees; equity is cash plus live unrealized P&L.
type Entry struct {
	ID                 string    `json:"id"`
	CompetitionID      string    `json:"competition_id"`
	UserID             string    `json:"user_id"`
	CashCents          int64     `json:"cash_cents"`
	EquityCents        int64     `json:"equity_cents"`
	HighWaterMarkCents int64     `json:"high_water_mark_cents"`
	DrawdownPct        float64   `json:"drawdown_pct"`
	Disqualified       bool      `json:"disqualified"`
	Paid               bool      `json:"paid"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Wallet holds a user's token balance. LockedTokens is the reserved
// sub-balance; 0 <= locked <= balance at all times. Mutated only through
// the wallet service primitives.
type Wallet struct {
	UserID        string    `json:"user_id"`
	BalanceTokens int64     `json:"balance_tokens"`
	LockedTokens  int64     `json:"locked_tokens"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available returns balance minus locked.
func (w Wallet) Available() int64 {
	return w.BalanceTokens - w.LockedTokens
}

// TokenTransaction is an append-only ledger row. The sum of AmountTokens
// over a user's rows always equals the wallet balance; lock bookkeeping
// rows carry amount 0 so they never double-count.
type TokenTransaction struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Kind         types.TxKind      `json:"kind"`
	AmountTokens int64             `json:"amount_tokens"`
	Ref          *types.Ref        `json:"ref,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// BetMarket accepts bets on a peer challenge while open.
type BetMarket struct {
	ID           string             `json:"id"`
	ChallengeID  string             `json:"challenge_id"`
	Status       types.MarketStatus `json:"status"`
	RakeBps      int64              `json:"rake_bps"`
	WinnerUserID string             `json:"winner_user_id,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	SettledAt    *time.Time         `json:"settled_at,omitempty"`
}

// Bet locks the bettor's tokens at placement and resolves exactly once.
type Bet struct {
	ID           string          `json:"id"`
	MarketID     string          `json:"market_id"`
	UserID       string          `json:"user_id"`
	PickUserID   string          `json:"pick_user_id"`
	AmountTokens int64           `json:"amount_tokens"`
	PayoutTokens int64           `json:"payout_tokens"`
	Status       types.BetStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Challenge is a peer-vs-peer staked match between two users.
type Challenge struct {
	ID                 string                `json:"id"`
	ChallengerID       string                `json:"challenger_id"`
	InviteeID          string                `json:"invitee_id"`
	StakeTokens        int64                 `json:"stake_tokens"`
	RakeBps            int64                 `json:"rake_bps"`
	DurationHours      int64                 `json:"duration_hours"`
	Status             types.ChallengeStatus `json:"status"`
	TermsVersion       int64                 `json:"terms_version"`
	ChallengerAccepted int64                 `json:"challenger_accepted_version"`
	InviteeAccepted    int64                 `json:"invitee_accepted_version"`
	ChallengerFunded   bool                  `json:"challenger_funded"`
	InviteeFunded      bool                  `json:"invitee_funded"`
	CompetitionID      string                `json:"competition_id,omitempty"`
	WinnerUserID       string                `json:"winner_user_id,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}
