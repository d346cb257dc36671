package competition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxarena/internal/types"
	"fxarena/internal/wallet"
)

var defaultTerms = ChallengeTerms{StakeTokens: 100, RakeBps: 500, DurationHours: 24}

func newChallengeFixture(t *testing.T) (*Service, *wallet.Service, string) {
	t.Helper()
	svc, wallets := newTestService(t, nil)
	fund(t, wallets, "alice", 500)
	fund(t, wallets, "bob", 500)
	c, err := svc.CreateChallenge(context.Background(), "alice", "bob", defaultTerms)
	require.NoError(t, err)
	return svc, wallets, c.ID
}

func TestCreateChallengeValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateChallenge(ctx, "alice", "alice", defaultTerms)
	assert.ErrorIs(t, err, ErrSelfChallenge)

	_, err = svc.CreateChallenge(ctx, "alice", "bob", ChallengeTerms{StakeTokens: 0, DurationHours: 24})
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, err = svc.CreateChallenge(ctx, "alice", "bob", ChallengeTerms{StakeTokens: 10, DurationHours: 0})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestAcceptTermsBothPartiesActivatesAccepted(t *testing.T) {
	svc, _, id := newChallengeFixture(t)
	ctx := context.Background()

	c, err := svc.AcceptTerms(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusPending, c.Status)

	c, err = svc.AcceptTerms(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusAccepted, c.Status)
}

func TestCounterOfferResetsAcceptances(t *testing.T) {
	svc, _, id := newChallengeFixture(t)
	ctx := context.Background()

	_, err := svc.AcceptTerms(ctx, id, "alice")
	require.NoError(t, err)

	// Bob counters: stake doubles, Alice's acceptance is now stale.
	c, err := svc.ProposeTerms(ctx, id, "bob", ChallengeTerms{StakeTokens: 200, RakeBps: 500, DurationHours: 24})
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusNegotiating, c.Status)
	assert.Equal(t, int64(2), c.TermsVersion)
	assert.Equal(t, int64(0), c.ChallengerAccepted)

	// Both must re-accept the new version.
	_, err = svc.AcceptTerms(ctx, id, "bob")
	require.NoError(t, err)
	c, err = svc.AcceptTerms(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusAccepted, c.Status)
	assert.Equal(t, int64(200), c.StakeTokens)
}

func TestProposeTermsRejectsOutsiders(t *testing.T) {
	svc, _, id := newChallengeFixture(t)
	_, err := svc.ProposeTerms(context.Background(), id, "mallory", defaultTerms)
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = svc.AcceptTerms(context.Background(), id, "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func acceptBoth(t *testing.T, svc *Service, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.AcceptTerms(ctx, id, "alice")
	require.NoError(t, err)
	_, err = svc.AcceptTerms(ctx, id, "bob")
	require.NoError(t, err)
}

func TestFundingFlowActivatesOnce(t *testing.T) {
	svc, wallets, id := newChallengeFixture(t)
	ctx := context.Background()
	acceptBoth(t, svc, id)

	c, err := svc.FundChallenge(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusPaymentPending, c.Status)
	assert.Empty(t, c.CompetitionID)

	w, err := wallets.GetOrCreateWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.LockedTokens)

	// Double-funding by the same party is rejected, stake stays locked once.
	_, err = svc.FundChallenge(ctx, id, "alice")
	require.ErrorIs(t, err, ErrAlreadyFunded)
	w, err = wallets.GetOrCreateWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.LockedTokens)

	c, err = svc.FundChallenge(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusActive, c.Status)
	require.NotEmpty(t, c.CompetitionID)

	// The head-to-head competition exists with exactly two entries.
	entries, err := svc.store.ListEntries(ctx, c.CompetitionID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	comp, err := svc.GetCompetition(ctx, c.CompetitionID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), comp.EntryFeeTokens)
	assert.Equal(t, DefaultChallengeCashCents, comp.StartingCashCents)
}

func TestFundBeforeAcceptance(t *testing.T) {
	svc, _, id := newChallengeFixture(t)
	_, err := svc.FundChallenge(context.Background(), id, "alice")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestFundWithoutTokensLeavesChallengeUntouched(t *testing.T) {
	svc, wallets := newTestService(t, nil)
	ctx := context.Background()
	fund(t, wallets, "rich", 500)
	// "poor" has no tokens at all.
	c, err := svc.CreateChallenge(ctx, "rich", "poor", defaultTerms)
	require.NoError(t, err)
	_, err = svc.AcceptTerms(ctx, c.ID, "rich")
	require.NoError(t, err)
	_, err = svc.AcceptTerms(ctx, c.ID, "poor")
	require.NoError(t, err)

	_, err = svc.FundChallenge(ctx, c.ID, "poor")
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	got, err := svc.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.InviteeFunded)
	assert.Equal(t, types.ChallengeStatusAccepted, got.Status)
}

func TestCancelReleasesLockedStakes(t *testing.T) {
	svc, wallets, id := newChallengeFixture(t)
	ctx := context.Background()
	acceptBoth(t, svc, id)
	_, err := svc.FundChallenge(ctx, id, "alice")
	require.NoError(t, err)

	c, err := svc.CancelChallenge(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusCancelled, c.Status)

	w, err := wallets.GetOrCreateWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.LockedTokens)
	assert.Equal(t, int64(500), w.BalanceTokens)
}

func TestCancelActiveChallengeRejected(t *testing.T) {
	svc, _, id := newChallengeFixture(t)
	ctx := context.Background()
	acceptBoth(t, svc, id)
	_, err := svc.FundChallenge(ctx, id, "alice")
	require.NoError(t, err)
	_, err = svc.FundChallenge(ctx, id, "bob")
	require.NoError(t, err)

	_, err = svc.CancelChallenge(ctx, id, "alice")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestChallengeStatusTransitions(t *testing.T) {
	// Exhaustive rejection checks on the state machine itself.
	assert.False(t, types.ChallengeStatusPending.CanTransition(types.ChallengeStatusActive))
	assert.False(t, types.ChallengeStatusActive.CanTransition(types.ChallengeStatusPending))
	assert.False(t, types.ChallengeStatusCompleted.CanTransition(types.ChallengeStatusActive))
	assert.True(t, types.ChallengeStatusNegotiating.CanTransition(types.ChallengeStatusAccepted))
	assert.True(t, types.ChallengeStatusPaymentPending.CanTransition(types.ChallengeStatusActive))
	assert.False(t, types.ChallengeStatusActive.CanTransition(types.ChallengeStatusCancelled))
	assert.False(t, types.ChallengeStatusCompleted.CanTransition(types.ChallengeStatusCancelled))

	assert.True(t, types.ChallengeStatusCompleted.Terminal())
	assert.True(t, types.ChallengeStatusCancelled.Terminal())
	assert.False(t, types.ChallengeStatusActive.Terminal())
	assert.False(t, types.ChallengeStatusActive.CanCancel())
	assert.True(t, types.ChallengeStatusPaymentPending.CanCancel())
}
