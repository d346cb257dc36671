package types

import "fmt"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other trading direction.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// DealKind marks whether a fill added to exposure or reduced it.
type DealKind string

const (
	DealKindIn  DealKind = "in"
	DealKindOut DealKind = "out"
)

type TxKind string

const (
	TxKindPurchase         TxKind = "purchase"
	TxKindCompetitionEntry TxKind = "competition_entry"
	TxKindStakeLock        TxKind = "stake_lock"
	TxKindStakeRelease     TxKind = "stake_release"
	TxKindStakeForfeit     TxKind = "stake_forfeit"
	TxKindBetPlace         TxKind = "bet_place"
	TxKindBetRefund        TxKind = "bet_refund"
	TxKindBetPayout        TxKind = "bet_payout"
	TxKindRakeFee          TxKind = "rake_fee"
	TxKindAdjustment       TxKind = "adjustment"
)

func (k TxKind) Valid() bool {
	switch k {
	case TxKindPurchase, TxKindCompetitionEntry, TxKindStakeLock, TxKindStakeRelease,
		TxKindStakeForfeit, TxKindBetPlace, TxKindBetRefund, TxKindBetPayout,
		TxKindRakeFee, TxKindAdjustment:
		return true
	}
	return false
}

type MarketStatus string

const (
	MarketStatusOpen    MarketStatus = "open"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
	MarketStatusVoid    MarketStatus = "void"
)

type BetStatus string

const (
	BetStatusPlaced   BetStatus = "placed"
	BetStatusWon      BetStatus = "won"
	BetStatusLost     BetStatus = "lost"
	BetStatusRefunded BetStatus = "refunded"
)

type ChallengeStatus string

const (
	ChallengeStatusPending        ChallengeStatus = "pending"
	ChallengeStatusNegotiating    ChallengeStatus = "negotiating"
	ChallengeStatusAccepted       ChallengeStatus = "accepted"
	ChallengeStatusPaymentPending ChallengeStatus = "payment_pending"
	ChallengeStatusActive         ChallengeStatus = "active"
	ChallengeStatusCompleted      ChallengeStatus = "completed"
	ChallengeStatusCancelled      ChallengeStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeStatusCompleted || s == ChallengeStatusCancelled
}

// CanCancel reports whether the challenge may still be cancelled.
// Once both sides have funded and the challenge is active, cancellation
// is no longer possible.
func (s ChallengeStatus) CanCancel() bool {
	switch s {
	case ChallengeStatusPending, ChallengeStatusNegotiating, ChallengeStatusAccepted, ChallengeStatusPaymentPending:
		return true
	default:
		return false
	}
}

// CanTransition validates a single challenge state machine step.
func (s ChallengeStatus) CanTransition(to ChallengeStatus) bool {
	if to == ChallengeStatusCancelled {
		return s.CanCancel()
	}
	switch s {
	case ChallengeStatusPending:
		return to == ChallengeStatusNegotiating || to == ChallengeStatusAccepted
	case ChallengeStatusNegotiating:
		return to == ChallengeStatusPending || to == ChallengeStatusAccepted
	case ChallengeStatusAccepted:
		return to == ChallengeStatusPaymentPending
	case ChallengeStatusPaymentPending:
		return to == ChallengeStatusActive
	case ChallengeStatusActive:
		return to == ChallengeStatusCompleted
	default:
		return false
	}
}

// RefType tags the entity a token transaction originated from.
type RefType string

const (
	RefTypeCompetition RefType = "competition"
	RefTypeChallenge   RefType = "challenge"
	RefTypeMarket      RefType = "market"
	RefTypeBet         RefType = "bet"
	RefTypeDeal        RefType = "deal"
)

// Ref is a typed reference to an originating entity.
type Ref struct {
	Type RefType `json:"type"`
	ID   string  `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}
