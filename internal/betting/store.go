package betting

import (
	"context"
	"errors"

	"fxarena/internal/model"
)

var (
	ErrMarketNotFound = errors.New("market not found")
	ErrMarketExists   = errors.New("market already exists for challenge")
	ErrMarketNotOpen  = errors.New("market is not open for bets")
	ErrBetNotFound    = errors.New("bet not found")
	ErrStateConflict  = errors.New("market state conflict")
)

// Store persists bet markets and bets. CreateBet checks the market status
// under the same lock as the insert so a bet can never land on a market that
// is no longer open. UpdateMarket runs fn under the market row lock; it is
// the serialization point for close, settle and void transitions.
type Store interface {
	CreateMarket(ctx context.Context, m model.BetMarket) error
	GetMarket(ctx context.Context, id string) (model.BetMarket, error)
	GetMarketByChallenge(ctx context.Context, challengeID string) (model.BetMarket, error)
	UpdateMarket(ctx context.Context, id string, fn func(m *model.BetMarket) error) (model.BetMarket, error)

	CreateBet(ctx context.Context, b model.Bet) error
	GetBet(ctx context.Context, id string) (model.Bet, error)
	ListBets(ctx context.Context, marketID string) ([]model.Bet, error)
	ListUserBets(ctx context.Context, userID string) ([]model.Bet, error)
	UpdateBet(ctx context.Context, b model.Bet) error
}
