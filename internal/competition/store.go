package competition

import (
	"context"
	"errors"

	"fxarena/internal/model"
)

var (
	ErrCompetitionNotFound = errors.New("competition: not found")
	ErrEntryNotFound       = errors.New("competition: entry not found")
	ErrEntryExists         = errors.New("competition: already entered")
	ErrChallengeNotFound   = errors.New("competition: challenge not found")
	// ErrStateConflict means an operation is invalid for the current
	// status. The wrapped message carries the state the caller saw.
	ErrStateConflict = errors.New("competition: state conflict")
)

// Store persists competitions, entries and peer challenges.
//
// UpdateChallenge runs fn under an exclusive per-challenge lock and
// persists the result atomically, the same read-modify-write discipline
// the wallet store uses.
type Store interface {
	CreateCompetition(ctx context.Context, c model.Competition) error
	GetCompetition(ctx context.Context, id string) (model.Competition, error)

	CreateEntry(ctx context.Context, e model.Entry) error
	GetEntry(ctx context.Context, competitionID, userID string) (model.Entry, error)
	ListEntries(ctx context.Context, competitionID string) ([]model.Entry, error)
	UpdateEntry(ctx context.Context, e model.Entry) error

	CreateChallenge(ctx context.Context, c model.Challenge) error
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	UpdateChallenge(ctx context.Context, id string, fn func(c *model.Challenge) error) (model.Challenge, error)
}
