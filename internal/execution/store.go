package execution

import (
	"context"
	"errors"

	"fxarena/internal/model"
)

var (
	// ErrPositionNotFound means the (competition, user, position) triple
	// does not resolve. Terminal for the caller.
	ErrPositionNotFound = errors.New("execution: position not found")
	// ErrEntryNotFound means the user has no entry in the competition.
	ErrEntryNotFound = errors.New("execution: competition entry not found")
	// ErrInvalidLots rejects non-positive or sub-unit lot sizes.
	ErrInvalidLots = errors.New("execution: invalid lot size")
	// ErrInvalidSide rejects sides other than buy/sell.
	ErrInvalidSide = errors.New("execution: invalid side")
)

// Store persists positions, trades, deals and competition entries.
//
// Atomic runs fn inside one transaction serialized per (competition, user):
// the Postgres implementation locks the entry row for the duration, the
// memory implementation holds a mutex. Either every write staged through
// Tx commits or none does, so a fill can never desync a position from its
// entry.
type Store interface {
	Atomic(ctx context.Context, competitionID, userID string, fn func(tx Tx) error) error

	GetPosition(ctx context.Context, competitionID, userID, positionID string) (model.Position, error)
	ListOpenPositions(ctx context.Context, competitionID, userID string) ([]model.Position, error)
	ListAllOpenPositions(ctx context.Context) ([]model.Position, error)
	ListDeals(ctx context.Context, competitionID, userID string, limit int) ([]model.Deal, error)
	ListTrades(ctx context.Context, competitionID, userID string, limit int) ([]model.Trade, error)
}

// Tx is the transactional view handed to Atomic callbacks.
type Tx interface {
	// PositionByPair returns the open position for the pair, or nil.
	PositionByPair(pair string) (*model.Position, error)
	// PositionByID returns the open position by id, or nil.
	PositionByID(id string) (*model.Position, error)
	CreatePosition(p model.Position) error
	UpdatePosition(p model.Position) error
	DeletePosition(id string) error

	Trade(id string) (model.Trade, error)
	CreateTrade(t model.Trade) error
	UpdateTrade(t model.Trade) error

	AppendDeal(d model.Deal) error

	// Entry returns the competition entry the transaction is locked on.
	Entry() (model.Entry, error)
	UpdateEntry(e model.Entry) error
}
