package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fxarena/internal/metrics"
	"fxarena/internal/model"
	"fxarena/internal/types"
	"fxarena/internal/wallet"
)

var (
	ErrInvalidAmount    = errors.New("bet amount must be positive")
	ErrInvalidPick      = errors.New("pick must be one of the challenge parties")
	ErrParticipantBet   = errors.New("challenge parties cannot bet on their own match")
	ErrChallengeNotLive = errors.New("challenge is not active")
)

// ChallengeService is the slice of the competition service the betting layer
// needs: match lookup, result recording and final equity marks.
type ChallengeService interface {
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	CompleteChallenge(ctx context.Context, id, winnerUserID string) (model.Challenge, error)
	FinalEquity(ctx context.Context, competitionID, userID string) (int64, error)
}

type Service struct {
	store      Store
	wallets    *wallet.Service
	challenges ChallengeService
	log        *zap.Logger
}

func NewService(store Store, wallets *wallet.Service, challenges ChallengeService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, wallets: wallets, challenges: challenges, log: logger.Named("betting")}
}

// OpenMarket creates the spectator market for an active challenge. One
// market per challenge.
func (s *Service) OpenMarket(ctx context.Context, challengeID string, rakeBps int64) (model.BetMarket, error) {
	c, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.BetMarket{}, err
	}
	if c.Status != types.ChallengeStatusActive {
		return model.BetMarket{}, ErrChallengeNotLive
	}
	if rakeBps < 0 || rakeBps > 10_000 {
		return model.BetMarket{}, fmt.Errorf("rakeBps out of range: %d", rakeBps)
	}
	m := model.BetMarket{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		Status:      types.MarketStatusOpen,
		RakeBps:     rakeBps,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateMarket(ctx, m); err != nil {
		return model.BetMarket{}, err
	}
	s.log.Info("bet market opened",
		zap.String("marketId", m.ID),
		zap.String("challengeId", challengeID),
		zap.Int64("rakeBps", rakeBps))
	return m, nil
}

func (s *Service) GetMarket(ctx context.Context, id string) (model.BetMarket, error) {
	return s.store.GetMarket(ctx, id)
}

func (s *Service) ListBets(ctx context.Context, marketID string) ([]model.Bet, error) {
	return s.store.ListBets(ctx, marketID)
}

func (s *Service) ListUserBets(ctx context.Context, userID string) ([]model.Bet, error) {
	return s.store.ListUserBets(ctx, userID)
}

// CloseMarket stops new bets ahead of settlement.
func (s *Service) CloseMarket(ctx context.Context, marketID string) (model.BetMarket, error) {
	return s.store.UpdateMarket(ctx, marketID, func(m *model.BetMarket) error {
		if m.Status != types.MarketStatusOpen {
			return fmt.Errorf("%w: cannot close market in state %s", ErrStateConflict, m.Status)
		}
		m.Status = types.MarketStatusClosed
		return nil
	})
}

// PlaceBet locks the bettor's stake and records the bet. The stake stays
// locked until the market settles or is voided.
func (s *Service) PlaceBet(ctx context.Context, marketID, userID, pickUserID string, amountTokens int64) (model.Bet, error) {
	if amountTokens <= 0 {
		return model.Bet{}, ErrInvalidAmount
	}
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return model.Bet{}, err
	}
	if m.Status != types.MarketStatusOpen {
		return model.Bet{}, ErrMarketNotOpen
	}
	c, err := s.challenges.GetChallenge(ctx, m.ChallengeID)
	if err != nil {
		return model.Bet{}, err
	}
	if pickUserID != c.ChallengerID && pickUserID != c.InviteeID {
		return model.Bet{}, ErrInvalidPick
	}
	if userID == c.ChallengerID || userID == c.InviteeID {
		return model.Bet{}, ErrParticipantBet
	}

	b := model.Bet{
		ID:           uuid.NewString(),
		MarketID:     marketID,
		UserID:       userID,
		PickUserID:   pickUserID,
		AmountTokens: amountTokens,
		Status:       types.BetStatusPlaced,
		CreatedAt:    time.Now().UTC(),
	}
	ref := &types.Ref{Type: types.RefTypeBet, ID: b.ID}
	if _, err := s.wallets.LockTokens(ctx, userID, amountTokens, types.TxKindBetPlace, ref); err != nil {
		return model.Bet{}, fmt.Errorf("lock bet stake: %w", err)
	}
	if err := s.store.CreateBet(ctx, b); err != nil {
		if _, uerr := s.wallets.UnlockTokens(ctx, userID, amountTokens, types.TxKindBetRefund, ref); uerr != nil {
			s.log.Error("bet stake unlock after failed insert",
				zap.String("betId", b.ID),
				zap.String("userId", userID),
				zap.Error(uerr))
		}
		return model.Bet{}, err
	}
	metrics.BetsPlaced.Inc()
	metrics.BetVolumeTokens.Add(float64(amountTokens))
	return b, nil
}

// SettleMarket resolves all placed bets pari-mutuel style. The losing side's
// stakes fund the winning side pro rata after the house rake. Floor division
// remainders go to the house so token supply is conserved. Settlement is
// resumable: a retry on a settled market re-runs the payout for any bets a
// previous attempt left unresolved, and is a no-op once every bet is done.
func (s *Service) SettleMarket(ctx context.Context, marketID, winnerUserID string) (model.BetMarket, error) {
	var already bool
	m, err := s.store.UpdateMarket(ctx, marketID, func(m *model.BetMarket) error {
		switch m.Status {
		case types.MarketStatusSettled:
			already = true
			return nil
		case types.MarketStatusOpen, types.MarketStatusClosed:
		default:
			return fmt.Errorf("%w: cannot settle market in state %s", ErrStateConflict, m.Status)
		}
		now := time.Now().UTC()
		m.Status = types.MarketStatusSettled
		m.WinnerUserID = winnerUserID
		m.SettledAt = &now
		return nil
	})
	if err != nil {
		return m, err
	}
	// On a retry the recorded winner is authoritative.
	winner := winnerUserID
	if already {
		winner = m.WinnerUserID
	}

	bets, err := s.store.ListBets(ctx, marketID)
	if err != nil {
		return model.BetMarket{}, err
	}
	if err := s.payOut(ctx, m, bets, winner); err != nil {
		return model.BetMarket{}, err
	}
	if !already {
		metrics.MarketsSettled.Inc()
	}
	return m, nil
}

// payOut resolves every bet still in placed status. Pools are computed over
// all bets that joined the market so a resumed run splits the same pool as
// the first; the ledger guards keep any single movement from running twice.
func (s *Service) payOut(ctx context.Context, m model.BetMarket, bets []model.Bet, winnerUserID string) error {
	var pool, winningPool, paid int64
	var pending []model.Bet
	for _, b := range bets {
		switch b.Status {
		case types.BetStatusPlaced:
			pending = append(pending, b)
		case types.BetStatusWon:
			paid += b.PayoutTokens
		case types.BetStatusLost:
		default:
			continue
		}
		pool += b.AmountTokens
		if b.PickUserID == winnerUserID {
			winningPool += b.AmountTokens
		}
	}
	if pool == 0 {
		return nil
	}

	rake := pool * m.RakeBps / 10_000
	payoutPool := pool - rake

	for _, b := range pending {
		ref := &types.Ref{Type: types.RefTypeBet, ID: b.ID}
		collected, err := s.wallets.HasTransaction(ctx, b.UserID, types.TxKindStakeForfeit, ref)
		if err != nil {
			return err
		}
		if !collected {
			if _, err := s.wallets.UnlockAndDeductTokens(ctx, b.UserID, b.AmountTokens, types.TxKindStakeForfeit, ref); err != nil {
				return fmt.Errorf("collect bet stake %s: %w", b.ID, err)
			}
		}
		if b.PickUserID == winnerUserID && winningPool > 0 {
			payout := payoutPool * b.AmountTokens / winningPool
			if payout > 0 {
				done, err := s.wallets.HasTransaction(ctx, b.UserID, types.TxKindBetPayout, ref)
				if err != nil {
					return err
				}
				if !done {
					if _, err := s.wallets.ApplyTransaction(ctx, b.UserID, types.TxKindBetPayout, payout, ref, nil); err != nil {
						return fmt.Errorf("pay bet %s: %w", b.ID, err)
					}
				}
			}
			paid += payout
			b.PayoutTokens = payout
			b.Status = types.BetStatusWon
		} else {
			b.Status = types.BetStatusLost
		}
		if err := s.store.UpdateBet(ctx, b); err != nil {
			return err
		}
	}

	// Rake plus pro-rata floor remainders; the whole pool when nobody backed
	// the winner. Collected minus paid conserves token supply exactly.
	housePot := pool - paid

	marketRef := &types.Ref{Type: types.RefTypeMarket, ID: m.ID}
	if housePot > 0 {
		done, err := s.wallets.HasTransaction(ctx, wallet.SystemUserID, types.TxKindRakeFee, marketRef)
		if err != nil {
			return err
		}
		if !done {
			if _, err := s.wallets.ApplyTransaction(ctx, wallet.SystemUserID, types.TxKindRakeFee, housePot, marketRef,
				map[string]string{"challenge_id": m.ChallengeID}); err != nil {
				return fmt.Errorf("credit house rake: %w", err)
			}
		}
	}
	if len(pending) > 0 {
		s.log.Info("market settled",
			zap.String("marketId", m.ID),
			zap.String("winnerUserId", winnerUserID),
			zap.Int64("poolTokens", pool),
			zap.Int64("rakeTokens", rake),
			zap.Int64("houseTokens", housePot))
	}
	return nil
}

// VoidMarket cancels the market and releases every locked stake in full.
// Like settlement, a retry refunds any bets a previous attempt missed.
func (s *Service) VoidMarket(ctx context.Context, marketID string) (model.BetMarket, error) {
	m, err := s.store.UpdateMarket(ctx, marketID, func(m *model.BetMarket) error {
		switch m.Status {
		case types.MarketStatusVoid:
			return nil
		case types.MarketStatusOpen, types.MarketStatusClosed:
		default:
			return fmt.Errorf("%w: cannot void market in state %s", ErrStateConflict, m.Status)
		}
		now := time.Now().UTC()
		m.Status = types.MarketStatusVoid
		m.SettledAt = &now
		return nil
	})
	if err != nil {
		return m, err
	}

	bets, err := s.store.ListBets(ctx, marketID)
	if err != nil {
		return model.BetMarket{}, err
	}
	for _, b := range bets {
		if b.Status != types.BetStatusPlaced {
			continue
		}
		ref := &types.Ref{Type: types.RefTypeBet, ID: b.ID}
		refunded, err := s.wallets.HasTransaction(ctx, b.UserID, types.TxKindBetRefund, ref)
		if err != nil {
			return model.BetMarket{}, err
		}
		if !refunded {
			if _, err := s.wallets.UnlockTokens(ctx, b.UserID, b.AmountTokens, types.TxKindBetRefund, ref); err != nil {
				return model.BetMarket{}, fmt.Errorf("refund bet %s: %w", b.ID, err)
			}
		}
		b.Status = types.BetStatusRefunded
		if err := s.store.UpdateBet(ctx, b); err != nil {
			return model.BetMarket{}, err
		}
	}
	s.log.Info("market voided", zap.String("marketId", marketID), zap.Int("bets", len(bets)))
	return m, nil
}

// SettleChallenge resolves an active challenge whose window has elapsed:
// it marks final equity for both sides, records the winner, settles the
// stakes, and settles or voids the spectator market. A tie voids everything.
// Retrying a completed challenge resumes whatever stake movements a previous
// attempt left unfinished; once everything is through it is a no-op.
func (s *Service) SettleChallenge(ctx context.Context, challengeID string) (model.Challenge, error) {
	c, err := s.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.Challenge{}, err
	}
	var resumed bool
	switch c.Status {
	case types.ChallengeStatusActive:
		challengerEquity, err := s.challenges.FinalEquity(ctx, c.CompetitionID, c.ChallengerID)
		if err != nil {
			return model.Challenge{}, fmt.Errorf("final equity %s: %w", c.ChallengerID, err)
		}
		inviteeEquity, err := s.challenges.FinalEquity(ctx, c.CompetitionID, c.InviteeID)
		if err != nil {
			return model.Challenge{}, fmt.Errorf("final equity %s: %w", c.InviteeID, err)
		}
		var winnerID string
		switch {
		case challengerEquity > inviteeEquity:
			winnerID = c.ChallengerID
		case inviteeEquity > challengerEquity:
			winnerID = c.InviteeID
		}
		// Record the result before any wallet movement; the movements below
		// key off the stored winner, so a retry resumes instead of re-deciding.
		c, err = s.challenges.CompleteChallenge(ctx, challengeID, winnerID)
		if err != nil {
			return model.Challenge{}, err
		}
	case types.ChallengeStatusCompleted:
		resumed = true
	default:
		return model.Challenge{}, ErrChallengeNotLive
	}

	winnerID := c.WinnerUserID
	ref := &types.Ref{Type: types.RefTypeChallenge, ID: challengeID}
	if winnerID == "" {
		// Tie. Both stakes go back, spectators get refunds.
		for _, uid := range []string{c.ChallengerID, c.InviteeID} {
			if err := s.releaseStakeOnce(ctx, uid, c.StakeTokens, ref); err != nil {
				return model.Challenge{}, err
			}
		}
		if err := s.voidMatchMarket(ctx, challengeID); err != nil {
			return model.Challenge{}, err
		}
		if !resumed {
			s.log.Info("challenge tied", zap.String("challengeId", challengeID))
		}
		return c, nil
	}

	loserID := c.InviteeID
	if winnerID == c.InviteeID {
		loserID = c.ChallengerID
	}

	// Loser forfeits the stake; the winner gets both stakes back net of
	// rake. Every movement is guarded by its ledger row so a resumed run
	// never repeats one.
	forfeited, err := s.wallets.HasTransaction(ctx, loserID, types.TxKindStakeForfeit, ref)
	if err != nil {
		return model.Challenge{}, err
	}
	if !forfeited {
		if _, err := s.wallets.UnlockAndDeductTokens(ctx, loserID, c.StakeTokens, types.TxKindStakeForfeit, ref); err != nil {
			return model.Challenge{}, fmt.Errorf("forfeit stake %s: %w", loserID, err)
		}
	}
	if err := s.releaseStakeOnce(ctx, winnerID, c.StakeTokens, ref); err != nil {
		return model.Challenge{}, err
	}
	rake := c.StakeTokens * c.RakeBps / 10_000
	prize := c.StakeTokens - rake
	if prize > 0 {
		paid, err := s.wallets.HasTransaction(ctx, winnerID, types.TxKindBetPayout, ref)
		if err != nil {
			return model.Challenge{}, err
		}
		if !paid {
			if _, err := s.wallets.ApplyTransaction(ctx, winnerID, types.TxKindBetPayout, prize, ref,
				map[string]string{"reason": "challenge_prize"}); err != nil {
				return model.Challenge{}, fmt.Errorf("pay challenge prize: %w", err)
			}
		}
	}
	if rake > 0 {
		credited, err := s.wallets.HasTransaction(ctx, wallet.SystemUserID, types.TxKindRakeFee, ref)
		if err != nil {
			return model.Challenge{}, err
		}
		if !credited {
			if _, err := s.wallets.ApplyTransaction(ctx, wallet.SystemUserID, types.TxKindRakeFee, rake, ref, nil); err != nil {
				return model.Challenge{}, fmt.Errorf("credit challenge rake: %w", err)
			}
		}
	}

	if err := s.settleMatchMarket(ctx, challengeID, winnerID); err != nil {
		return model.Challenge{}, err
	}
	if !resumed {
		metrics.ChallengesSettled.Inc()
		s.log.Info("challenge settled",
			zap.String("challengeId", challengeID),
			zap.String("winnerUserId", winnerID),
			zap.Int64("prizeTokens", prize),
			zap.Int64("rakeTokens", rake))
	}
	return c, nil
}

// releaseStakeOnce unlocks a challenge stake unless the release row is
// already in the ledger from an earlier attempt.
func (s *Service) releaseStakeOnce(ctx context.Context, userID string, stake int64, ref *types.Ref) error {
	released, err := s.wallets.HasTransaction(ctx, userID, types.TxKindStakeRelease, ref)
	if err != nil {
		return err
	}
	if released {
		return nil
	}
	if _, err := s.wallets.UnlockTokens(ctx, userID, stake, types.TxKindStakeRelease, ref); err != nil {
		return fmt.Errorf("release stake %s: %w", userID, err)
	}
	return nil
}

// GetMarketByChallenge looks up the spectator market by the challenge it
// covers.
func (s *Service) GetMarketByChallenge(ctx context.Context, challengeID string) (model.BetMarket, error) {
	return s.store.GetMarketByChallenge(ctx, challengeID)
}

// SettleMarketByChallenge settles a challenge's spectator market addressed by
// the challenge rather than the market id.
func (s *Service) SettleMarketByChallenge(ctx context.Context, challengeID, winnerUserID string) (model.BetMarket, error) {
	m, err := s.store.GetMarketByChallenge(ctx, challengeID)
	if err != nil {
		return model.BetMarket{}, err
	}
	return s.SettleMarket(ctx, m.ID, winnerUserID)
}

// VoidMarketByChallenge voids a challenge's spectator market addressed by the
// challenge rather than the market id.
func (s *Service) VoidMarketByChallenge(ctx context.Context, challengeID string) (model.BetMarket, error) {
	m, err := s.store.GetMarketByChallenge(ctx, challengeID)
	if err != nil {
		return model.BetMarket{}, err
	}
	return s.VoidMarket(ctx, m.ID)
}

func (s *Service) settleMatchMarket(ctx context.Context, challengeID, winnerID string) error {
	m, err := s.store.GetMarketByChallenge(ctx, challengeID)
	if errors.Is(err, ErrMarketNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.SettleMarket(ctx, m.ID, winnerID)
	return err
}

func (s *Service) voidMatchMarket(ctx context.Context, challengeID string) error {
	m, err := s.store.GetMarketByChallenge(ctx, challengeID)
	if errors.Is(err, ErrMarketNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.VoidMarket(ctx, m.ID)
	return err
}
