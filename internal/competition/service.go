package competition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fxarena/internal/model"
	"fxarena/internal/types"
	"fxarena/internal/wallet"
)

var (
	ErrCompetitionClosed = errors.New("competition is not running")
	ErrInvalidFee        = errors.New("entry fee must not be negative")
	ErrInvalidCash       = errors.New("starting cash must be positive")
)

// UnrealizedReader reports open-position marks for an entry. The execution
// engine satisfies it.
type UnrealizedReader interface {
	UnrealizedPnLCents(ctx context.Context, competitionID, userID string) (int64, error)
}

type Service struct {
	store      Store
	wallets    *wallet.Service
	unrealized UnrealizedReader
	log        *zap.Logger
}

func NewService(store Store, wallets *wallet.Service, unrealized UnrealizedReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, wallets: wallets, unrealized: unrealized, log: logger.Named("competition")}
}

type CreateCompetitionRequest struct {
	Name              string    `json:"name"`
	EntryFeeTokens    int64     `json:"entry_fee_tokens"`
	StartingCashCents int64     `json:"starting_cash_cents"`
	RakeBps           int64     `json:"rake_bps"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
}

func (s *Service) CreateCompetition(ctx context.Context, req CreateCompetitionRequest) (model.Competition, error) {
	if req.EntryFeeTokens < 0 {
		return model.Competition{}, ErrInvalidFee
	}
	if req.StartingCashCents <= 0 {
		return model.Competition{}, ErrInvalidCash
	}
	if !req.EndsAt.After(req.StartsAt) {
		return model.Competition{}, fmt.Errorf("endsAt must be after startsAt")
	}
	now := time.Now().UTC()
	c := model.Competition{
		ID:                uuid.NewString(),
		Name:              req.Name,
		EntryFeeTokens:    req.EntryFeeTokens,
		StartingCashCents: req.StartingCashCents,
		RakeBps:           req.RakeBps,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		CreatedAt:         now,
	}
	if err := s.store.CreateCompetition(ctx, c); err != nil {
		return model.Competition{}, err
	}
	s.log.Info("competition created",
		zap.String("competitionId", c.ID),
		zap.Int64("entryFeeTokens", c.EntryFeeTokens),
		zap.Int64("startingCashCents", c.StartingCashCents))
	return c, nil
}

func (s *Service) GetCompetition(ctx context.Context, id string) (model.Competition, error) {
	return s.store.GetCompetition(ctx, id)
}

// JoinCompetition debits the entry fee and creates the entry. If the entry
// already exists the fee is refunded and ErrEntryExists returned.
func (s *Service) JoinCompetition(ctx context.Context, competitionID, userID string) (model.Entry, error) {
	c, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return model.Entry{}, err
	}
	now := time.Now().UTC()
	if now.After(c.EndsAt) {
		return model.Entry{}, ErrCompetitionClosed
	}
	if _, err := s.store.GetEntry(ctx, competitionID, userID); err == nil {
		return model.Entry{}, ErrEntryExists
	}

	ref := &types.Ref{Type: types.RefTypeCompetition, ID: competitionID}
	if c.EntryFeeTokens > 0 {
		if _, err := s.wallets.ApplyTransaction(ctx, userID, types.TxKindCompetitionEntry, -c.EntryFeeTokens, ref, nil); err != nil {
			return model.Entry{}, fmt.Errorf("debit entry fee: %w", err)
		}
	}

	e := model.Entry{
		ID:                 uuid.NewString(),
		CompetitionID:      competitionID,
		UserID:             userID,
		CashCents:          c.StartingCashCents,
		EquityCents:        c.StartingCashCents,
		HighWaterMarkCents: c.StartingCashCents,
		Paid:               c.EntryFeeTokens > 0,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateEntry(ctx, e); err != nil {
		if c.EntryFeeTokens > 0 {
			if _, rerr := s.wallets.ApplyTransaction(ctx, userID, types.TxKindAdjustment, c.EntryFeeTokens, ref,
				map[string]string{"reason": "entry_create_failed"}); rerr != nil {
				s.log.Error("entry fee refund failed",
					zap.String("userId", userID),
					zap.String("competitionId", competitionID),
					zap.Error(rerr))
			}
		}
		return model.Entry{}, err
	}
	s.log.Info("user joined competition",
		zap.String("competitionId", competitionID),
		zap.String("userId", userID))
	return e, nil
}

// RefreshEquity re-marks one entry from cash plus unrealized P&L and advances
// the high-water mark and drawdown.
func (s *Service) RefreshEquity(ctx context.Context, competitionID, userID string) (model.Entry, error) {
	e, err := s.store.GetEntry(ctx, competitionID, userID)
	if err != nil {
		return model.Entry{}, err
	}
	unrealized := int64(0)
	if s.unrealized != nil {
		unrealized, err = s.unrealized.UnrealizedPnLCents(ctx, competitionID, userID)
		if err != nil {
			return model.Entry{}, err
		}
	}
	e.EquityCents = e.CashCents + unrealized
	if e.EquityCents > e.HighWaterMarkCents {
		e.HighWaterMarkCents = e.EquityCents
	}
	if e.HighWaterMarkCents > 0 {
		e.DrawdownPct = float64(e.HighWaterMarkCents-e.EquityCents) / float64(e.HighWaterMarkCents) * 100
	}
	e.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateEntry(ctx, e); err != nil {
		return model.Entry{}, err
	}
	return e, nil
}

// Leaderboard re-marks every entry and returns them sorted by equity,
// disqualified entries last.
func (s *Service) Leaderboard(ctx context.Context, competitionID string) ([]model.Entry, error) {
	entries, err := s.store.ListEntries(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		refreshed, err := s.RefreshEquity(ctx, competitionID, e.UserID)
		if err != nil {
			// keep the stale row rather than dropping the entrant
			s.log.Warn("equity refresh failed",
				zap.String("competitionId", competitionID),
				zap.String("userId", e.UserID),
				zap.Error(err))
			refreshed = e
		}
		out = append(out, refreshed)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Disqualified != out[j].Disqualified {
			return !out[i].Disqualified
		}
		return out[i].EquityCents > out[j].EquityCents
	})
	return out, nil
}

// FinalEquity satisfies the betting settlement reader. Disqualified entrants
// report zero so they cannot win.
func (s *Service) FinalEquity(ctx context.Context, competitionID, userID string) (int64, error) {
	e, err := s.RefreshEquity(ctx, competitionID, userID)
	if err != nil {
		return 0, err
	}
	if e.Disqualified {
		return 0, nil
	}
	return e.EquityCents, nil
}
