package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
	assert.True(t, SideBuy.Valid())
	assert.False(t, Side("long").Valid())
}

func TestTxKindValid(t *testing.T) {
	for _, k := range []TxKind{
		TxKindPurchase, TxKindCompetitionEntry, TxKindStakeLock, TxKindStakeRelease,
		TxKindStakeForfeit, TxKindBetPlace, TxKindBetRefund, TxKindBetPayout,
		TxKindRakeFee, TxKindAdjustment,
	} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, TxKind("withdrawal").Valid())
	assert.False(t, TxKind("").Valid())
}

func TestChallengeStatusMachine(t *testing.T) {
	assert.True(t, ChallengeStatusPending.CanTransition(ChallengeStatusNegotiating))
	assert.True(t, ChallengeStatusPending.CanTransition(ChallengeStatusAccepted))
	assert.True(t, ChallengeStatusNegotiating.CanTransition(ChallengeStatusAccepted))
	assert.True(t, ChallengeStatusAccepted.CanTransition(ChallengeStatusPaymentPending))
	assert.True(t, ChallengeStatusPaymentPending.CanTransition(ChallengeStatusActive))
	assert.True(t, ChallengeStatusActive.CanTransition(ChallengeStatusCompleted))

	// Active challenges can only complete, never cancel or rewind.
	assert.False(t, ChallengeStatusActive.CanTransition(ChallengeStatusCancelled))
	assert.False(t, ChallengeStatusActive.CanTransition(ChallengeStatusPending))
	assert.False(t, ChallengeStatusCompleted.CanTransition(ChallengeStatusActive))
	assert.False(t, ChallengeStatusCancelled.CanTransition(ChallengeStatusPending))

	assert.True(t, ChallengeStatusPaymentPending.CanCancel())
	assert.False(t, ChallengeStatusActive.CanCancel())

	assert.True(t, ChallengeStatusCompleted.Terminal())
	assert.True(t, ChallengeStatusCancelled.Terminal())
	assert.False(t, ChallengeStatusActive.Terminal())
}

func TestRefString(t *testing.T) {
	r := Ref{Type: RefTypeBet, ID: "b-1"}
	assert.Equal(t, "bet:b-1", r.String())
}
