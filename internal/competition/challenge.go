package competition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fxarena/internal/model"
	"fxarena/internal/types"
)

var (
	ErrNotParticipant  = errors.New("user is not a party to this challenge")
	ErrSelfChallenge   = errors.New("cannot challenge yourself")
	ErrInvalidStake    = errors.New("stake must be positive")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrAlreadyFunded   = errors.New("stake already funded")
)

type ChallengeTerms struct {
	StakeTokens   int64 `json:"stake_tokens"`
	RakeBps       int64 `json:"rake_bps"`
	DurationHours int64 `json:"duration_hours"`
}

func (t ChallengeTerms) validate() error {
	if t.StakeTokens <= 0 {
		return ErrInvalidStake
	}
	if t.DurationHours <= 0 {
		return ErrInvalidDuration
	}
	if t.RakeBps < 0 || t.RakeBps > 10_000 {
		return fmt.Errorf("rakeBps out of range: %d", t.RakeBps)
	}
	return nil
}

func (s *Service) CreateChallenge(ctx context.Context, challengerID, inviteeID string, terms ChallengeTerms) (model.Challenge, error) {
	if challengerID == inviteeID {
		return model.Challenge{}, ErrSelfChallenge
	}
	if err := terms.validate(); err != nil {
		return model.Challenge{}, err
	}
	now := time.Now().UTC()
	c := model.Challenge{
		ID:            uuid.NewString(),
		ChallengerID:  challengerID,
		InviteeID:     inviteeID,
		StakeTokens:   terms.StakeTokens,
		RakeBps:       terms.RakeBps,
		DurationHours: terms.DurationHours,
		Status:        types.ChallengeStatusPending,
		TermsVersion:  1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return model.Challenge{}, err
	}
	s.log.Info("challenge created",
		zap.String("challengeId", c.ID),
		zap.String("challengerId", challengerID),
		zap.String("inviteeId", inviteeID),
		zap.Int64("stakeTokens", terms.StakeTokens))
	return c, nil
}

func (s *Service) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	return s.store.GetChallenge(ctx, id)
}

// ProposeTerms replaces the current terms with a counter-offer. Any prior
// acceptances are voided because they refer to an older terms version.
func (s *Service) ProposeTerms(ctx context.Context, challengeID, userID string, terms ChallengeTerms) (model.Challenge, error) {
	if err := terms.validate(); err != nil {
		return model.Challenge{}, err
	}
	return s.store.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if userID != c.ChallengerID && userID != c.InviteeID {
			return ErrNotParticipant
		}
		if c.Status != types.ChallengeStatusPending && c.Status != types.ChallengeStatusNegotiating {
			return fmt.Errorf("%w: cannot renegotiate in state %s", ErrStateConflict, c.Status)
		}
		c.StakeTokens = terms.StakeTokens
		c.RakeBps = terms.RakeBps
		c.DurationHours = terms.DurationHours
		c.TermsVersion++
		c.ChallengerAccepted = 0
		c.InviteeAccepted = 0
		c.Status = types.ChallengeStatusNegotiating
		return nil
	})
}

// AcceptTerms records one party's acceptance of the current terms version.
// When both parties have accepted the same version the challenge moves to
// accepted and funding may begin.
func (s *Service) AcceptTerms(ctx context.Context, challengeID, userID string) (model.Challenge, error) {
	return s.store.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if c.Status != types.ChallengeStatusPending && c.Status != types.ChallengeStatusNegotiating {
			return fmt.Errorf("%w: cannot accept in state %s", ErrStateConflict, c.Status)
		}
		switch userID {
		case c.ChallengerID:
			c.ChallengerAccepted = c.TermsVersion
		case c.InviteeID:
			c.InviteeAccepted = c.TermsVersion
		default:
			return ErrNotParticipant
		}
		if c.ChallengerAccepted == c.TermsVersion && c.InviteeAccepted == c.TermsVersion {
			c.Status = types.ChallengeStatusAccepted
		}
		return nil
	})
}

// FundChallenge locks the caller's stake. The first funder moves the
// challenge to payment_pending; the second funder activates it and creates
// the head-to-head competition exactly once.
func (s *Service) FundChallenge(ctx context.Context, challengeID, userID string) (model.Challenge, error) {
	// Validate and lock the stake before mutating challenge state so a failed
	// wallet debit leaves the challenge untouched.
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.Challenge{}, err
	}
	if userID != c.ChallengerID && userID != c.InviteeID {
		return model.Challenge{}, ErrNotParticipant
	}
	if c.Status != types.ChallengeStatusAccepted && c.Status != types.ChallengeStatusPaymentPending {
		return model.Challenge{}, fmt.Errorf("%w: cannot fund in state %s", ErrStateConflict, c.Status)
	}
	if (userID == c.ChallengerID && c.ChallengerFunded) || (userID == c.InviteeID && c.InviteeFunded) {
		return model.Challenge{}, ErrAlreadyFunded
	}

	ref := &types.Ref{Type: types.RefTypeChallenge, ID: challengeID}
	if _, err := s.wallets.LockTokens(ctx, userID, c.StakeTokens, types.TxKindStakeLock, ref); err != nil {
		return model.Challenge{}, fmt.Errorf("lock stake: %w", err)
	}

	// The funded-flag flip runs under the challenge row lock; exactly one
	// caller observes the second flag going up and builds the competition.
	var fundsComplete bool
	updated, err := s.store.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if c.Status != types.ChallengeStatusAccepted && c.Status != types.ChallengeStatusPaymentPending {
			return fmt.Errorf("%w: cannot fund in state %s", ErrStateConflict, c.Status)
		}
		switch userID {
		case c.ChallengerID:
			if c.ChallengerFunded {
				return ErrAlreadyFunded
			}
			c.ChallengerFunded = true
		case c.InviteeID:
			if c.InviteeFunded {
				return ErrAlreadyFunded
			}
			c.InviteeFunded = true
		}
		if c.Status == types.ChallengeStatusAccepted {
			c.Status = types.ChallengeStatusPaymentPending
		}
		fundsComplete = c.ChallengerFunded && c.InviteeFunded
		return nil
	})
	if err != nil {
		// Undo the stake lock; the challenge row was not mutated. Booked as
		// an adjustment so the stake_release row stays reserved for the real
		// release at settlement.
		if _, uerr := s.wallets.UnlockTokens(ctx, userID, c.StakeTokens, types.TxKindAdjustment, ref); uerr != nil {
			s.log.Error("stake unlock after failed funding",
				zap.String("challengeId", challengeID),
				zap.String("userId", userID),
				zap.Error(uerr))
		}
		return model.Challenge{}, err
	}
	if !fundsComplete {
		return updated, nil
	}

	comp, err := s.createChallengeCompetition(ctx, &updated)
	if err != nil {
		// Both stakes stay locked; the challenge stays payment_pending and a
		// retry of FundChallenge returns ErrAlreadyFunded, so activation needs
		// operator intervention. Surface loudly.
		s.log.Error("challenge competition creation failed",
			zap.String("challengeId", challengeID),
			zap.Error(err))
		return model.Challenge{}, err
	}
	updated, err = s.store.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if c.CompetitionID != "" {
			return fmt.Errorf("%w: challenge already activated", ErrStateConflict)
		}
		c.CompetitionID = comp.ID
		c.Status = types.ChallengeStatusActive
		return nil
	})
	if err != nil {
		return model.Challenge{}, err
	}
	s.log.Info("challenge activated",
		zap.String("challengeId", updated.ID),
		zap.String("competitionId", updated.CompetitionID))
	return updated, nil
}

// createChallengeCompetition builds the private two-entrant competition for a
// fully funded challenge. Entry fees are zero; stakes are already locked.
func (s *Service) createChallengeCompetition(ctx context.Context, c *model.Challenge) (model.Competition, error) {
	now := time.Now().UTC()
	comp := model.Competition{
		ID:                uuid.NewString(),
		Name:              fmt.Sprintf("Challenge %s", c.ID),
		EntryFeeTokens:    0,
		StartingCashCents: DefaultChallengeCashCents,
		RakeBps:           c.RakeBps,
		StartsAt:          now,
		EndsAt:            now.Add(time.Duration(c.DurationHours) * time.Hour),
		CreatedAt:         now,
	}
	if err := s.store.CreateCompetition(ctx, comp); err != nil {
		return model.Competition{}, err
	}
	for _, userID := range []string{c.ChallengerID, c.InviteeID} {
		e := model.Entry{
			ID:                 uuid.NewString(),
			CompetitionID:      comp.ID,
			UserID:             userID,
			CashCents:          comp.StartingCashCents,
			EquityCents:        comp.StartingCashCents,
			HighWaterMarkCents: comp.StartingCashCents,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.store.CreateEntry(ctx, e); err != nil {
			return model.Competition{}, err
		}
	}
	return comp, nil
}

// DefaultChallengeCashCents is the simulated balance both sides trade with
// in a head-to-head challenge ($100,000).
const DefaultChallengeCashCents int64 = 10_000_000

// CancelChallenge cancels a not-yet-active challenge and releases any locked
// stakes.
func (s *Service) CancelChallenge(ctx context.Context, challengeID, userID string) (model.Challenge, error) {
	var toRelease []string
	var stake int64
	updated, err := s.store.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if userID != c.ChallengerID && userID != c.InviteeID {
			return ErrNotParticipant
		}
		if !c.Status.CanCancel() {
			return fmt.Errorf("%w: cannot cancel in state %s", ErrStateConflict, c.Status)
		}
		stake = c.StakeTokens
		if c.ChallengerFunded {
			toRelease = append(toRelease, c.ChallengerID)
			c.ChallengerFunded = false
		}
		if c.InviteeFunded {
			toRelease = append(toRelease, c.InviteeID)
			c.InviteeFunded = false
		}
		c.Status = types.ChallengeStatusCancelled
		return nil
	})
	if err != nil {
		return model.Challenge{}, err
	}
	ref := &types.Ref{Type: types.RefTypeChallenge, ID: challengeID}
	for _, uid := range toRelease {
		if _, err := s.wallets.UnlockTokens(ctx, uid, stake, types.TxKindStakeRelease, ref); err != nil {
			s.log.Error("stake release on cancel failed",
				zap.String("challengeId", challengeID),
				zap.String("userId", uid),
				zap.Error(err))
		}
	}
	s.log.Info("challenge cancelled",
		zap.String("challengeId", challengeID),
		zap.String("byUserId", userID))
	return updated, nil
}

// CompleteChallenge records the winner once its competition window has
// elapsed. Stake settlement is handled by the betting settlement flow, which
// forfeits the loser's stake and pays the winner net of rake.
func (s *Service) CompleteChallenge(ctx context.Context, challengeID, winnerUserID string) (model.Challenge, error) {
	return s.store.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if c.Status != types.ChallengeStatusActive {
			return fmt.Errorf("%w: cannot complete in state %s", ErrStateConflict, c.Status)
		}
		if winnerUserID != "" && winnerUserID != c.ChallengerID && winnerUserID != c.InviteeID {
			return ErrNotParticipant
		}
		c.WinnerUserID = winnerUserID
		c.Status = types.ChallengeStatusCompleted
		return nil
	})
}
