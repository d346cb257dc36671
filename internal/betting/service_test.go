package betting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxarena/internal/competition"
	"fxarena/internal/model"
	"fxarena/internal/types"
	"fxarena/internal/wallet"
)

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol"
	dan   = "dan"
)

type fixture struct {
	wallets   *wallet.Service
	comps     *competition.Service
	compStore competition.Store
	svc       *Service
	challenge model.Challenge
}

// newFixture builds a fully funded, active challenge between alice and bob
// with a 100 token stake at 5% rake.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	wallets := wallet.NewService(wallet.NewMemoryStore(), nil)
	compStore := competition.NewMemoryStore()
	comps := competition.NewService(compStore, wallets, nil, nil)
	svc := NewService(NewMemoryStore(), wallets, comps, nil)

	f := &fixture{wallets: wallets, comps: comps, compStore: compStore, svc: svc}
	f.fund(t, alice, 1000)
	f.fund(t, bob, 1000)

	c, err := comps.CreateChallenge(ctx, alice, bob, competition.ChallengeTerms{
		StakeTokens:   100,
		RakeBps:       500,
		DurationHours: 24,
	})
	require.NoError(t, err)
	_, err = comps.AcceptTerms(ctx, c.ID, alice)
	require.NoError(t, err)
	_, err = comps.AcceptTerms(ctx, c.ID, bob)
	require.NoError(t, err)
	_, err = comps.FundChallenge(ctx, c.ID, alice)
	require.NoError(t, err)
	c, err = comps.FundChallenge(ctx, c.ID, bob)
	require.NoError(t, err)
	require.Equal(t, types.ChallengeStatusActive, c.Status)
	f.challenge = c
	return f
}

func (f *fixture) fund(t *testing.T, userID string, tokens int64) {
	t.Helper()
	_, err := f.wallets.ApplyTransaction(context.Background(), userID, types.TxKindPurchase, tokens, nil, nil)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID string) model.Wallet {
	t.Helper()
	w, err := f.wallets.GetOrCreateWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (f *fixture) openMarket(t *testing.T) model.BetMarket {
	t.Helper()
	m, err := f.svc.OpenMarket(context.Background(), f.challenge.ID, 500)
	require.NoError(t, err)
	return m
}

// setEntryCash moves one entrant's competition cash so equity marks decide a
// winner.
func (f *fixture) setEntryCash(t *testing.T, userID string, cashCents int64) {
	t.Helper()
	ctx := context.Background()
	e, err := f.compStore.GetEntry(ctx, f.challenge.CompetitionID, userID)
	require.NoError(t, err)
	e.CashCents = cashCents
	require.NoError(t, f.compStore.UpdateEntry(ctx, e))
}

// totalSupply sums balances across every wallet that can hold tokens in these
// tests, the house included.
func (f *fixture) totalSupply(t *testing.T) int64 {
	t.Helper()
	var sum int64
	for _, uid := range []string{alice, bob, carol, dan, wallet.SystemUserID} {
		sum += f.balance(t, uid).BalanceTokens
	}
	return sum
}

func TestOpenMarketRequiresActiveChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pending, err := f.comps.CreateChallenge(ctx, alice, carol, competition.ChallengeTerms{
		StakeTokens: 50, RakeBps: 0, DurationHours: 1,
	})
	require.NoError(t, err)
	_, err = f.svc.OpenMarket(ctx, pending.ID, 500)
	assert.ErrorIs(t, err, ErrChallengeNotLive)

	f.openMarket(t)
	_, err = f.svc.OpenMarket(ctx, f.challenge.ID, 500)
	assert.ErrorIs(t, err, ErrMarketExists)
}

func TestPlaceBetLocksStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)

	b, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	require.NoError(t, err)
	assert.Equal(t, types.BetStatusPlaced, b.Status)
	assert.Equal(t, int64(100), b.AmountTokens)

	w := f.balance(t, carol)
	assert.Equal(t, int64(1000), w.BalanceTokens)
	assert.Equal(t, int64(100), w.LockedTokens)
}

func TestPlaceBetValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)

	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.PlaceBet(ctx, m.ID, carol, "someone-else", 100)
	assert.ErrorIs(t, err, ErrInvalidPick)

	_, err = f.svc.PlaceBet(ctx, m.ID, alice, bob, 100)
	assert.ErrorIs(t, err, ErrParticipantBet)

	_, err = f.svc.PlaceBet(ctx, m.ID, dan, alice, 100)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	bets, err := f.svc.ListBets(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestPlaceBetOnClosedMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)

	_, err := f.svc.CloseMarket(ctx, m.ID)
	require.NoError(t, err)

	_, err = f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	assert.ErrorIs(t, err, ErrMarketNotOpen)
}

func TestSettleMarketParimutuel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	f.fund(t, dan, 1000)
	f.fund(t, "erin", 1000)

	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	require.NoError(t, err)
	_, err = f.svc.PlaceBet(ctx, m.ID, dan, bob, 300)
	require.NoError(t, err)
	_, err = f.svc.PlaceBet(ctx, m.ID, "erin", alice, 100)
	require.NoError(t, err)

	// pool 500, rake 25, payout pool 475 split pro rata over 200 winning
	// tokens: 237 each, 1 token of floor remainder goes to the house.
	settled, err := f.svc.SettleMarket(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusSettled, settled.Status)
	assert.Equal(t, alice, settled.WinnerUserID)
	require.NotNil(t, settled.SettledAt)

	carolW := f.balance(t, carol)
	assert.Equal(t, int64(1137), carolW.BalanceTokens)
	assert.Equal(t, int64(0), carolW.LockedTokens)
	assert.Equal(t, int64(1137), f.balance(t, "erin").BalanceTokens)

	danW := f.balance(t, dan)
	assert.Equal(t, int64(700), danW.BalanceTokens)
	assert.Equal(t, int64(0), danW.LockedTokens)

	assert.Equal(t, int64(26), f.balance(t, wallet.SystemUserID).BalanceTokens)

	bets, err := f.svc.ListBets(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, bets, 3)
	for _, b := range bets {
		switch b.UserID {
		case dan:
			assert.Equal(t, types.BetStatusLost, b.Status)
			assert.Zero(t, b.PayoutTokens)
		default:
			assert.Equal(t, types.BetStatusWon, b.Status)
			assert.Equal(t, int64(237), b.PayoutTokens)
		}
	}
}

func TestSettleMarketIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	require.NoError(t, err)

	_, err = f.svc.SettleMarket(ctx, m.ID, alice)
	require.NoError(t, err)
	txsAfterFirst, err := f.wallets.ListTransactions(ctx, carol, 100)
	require.NoError(t, err)

	again, err := f.svc.SettleMarket(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusSettled, again.Status)

	txsAfterSecond, err := f.wallets.ListTransactions(ctx, carol, 100)
	require.NoError(t, err)
	assert.Len(t, txsAfterSecond, len(txsAfterFirst))
}

func TestSettleMarketNoWinnerBackers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	f.fund(t, dan, 1000)

	_, err := f.svc.PlaceBet(ctx, m.ID, carol, bob, 100)
	require.NoError(t, err)
	_, err = f.svc.PlaceBet(ctx, m.ID, dan, bob, 200)
	require.NoError(t, err)

	_, err = f.svc.SettleMarket(ctx, m.ID, alice)
	require.NoError(t, err)

	// Nobody backed alice, so the whole pool goes to the house.
	assert.Equal(t, int64(900), f.balance(t, carol).BalanceTokens)
	assert.Equal(t, int64(800), f.balance(t, dan).BalanceTokens)
	assert.Equal(t, int64(300), f.balance(t, wallet.SystemUserID).BalanceTokens)

	bets, err := f.svc.ListBets(ctx, m.ID)
	require.NoError(t, err)
	for _, b := range bets {
		assert.Equal(t, types.BetStatusLost, b.Status)
	}
}

func TestSettleMarketWithNoBets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)

	settled, err := f.svc.SettleMarket(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusSettled, settled.Status)
	assert.Equal(t, int64(0), f.balance(t, wallet.SystemUserID).BalanceTokens)
}

func TestVoidMarketRefundsStakes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 250)
	require.NoError(t, err)

	voided, err := f.svc.VoidMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusVoid, voided.Status)

	w := f.balance(t, carol)
	assert.Equal(t, int64(1000), w.BalanceTokens)
	assert.Equal(t, int64(0), w.LockedTokens)

	bets, err := f.svc.ListBets(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, types.BetStatusRefunded, bets[0].Status)

	// Voiding again is a no-op.
	_, err = f.svc.VoidMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), f.balance(t, carol).BalanceTokens)
}

func TestSettleChallengeWinnerTakesStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setEntryCash(t, alice, competition.DefaultChallengeCashCents+1_000_000)

	c, err := f.svc.SettleChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusCompleted, c.Status)
	assert.Equal(t, alice, c.WinnerUserID)

	// Stake 100 at 5% rake: alice gets her stake back plus a 95 token prize,
	// bob forfeits, the house keeps 5.
	aliceW := f.balance(t, alice)
	assert.Equal(t, int64(1095), aliceW.BalanceTokens)
	assert.Equal(t, int64(0), aliceW.LockedTokens)

	bobW := f.balance(t, bob)
	assert.Equal(t, int64(900), bobW.BalanceTokens)
	assert.Equal(t, int64(0), bobW.LockedTokens)

	assert.Equal(t, int64(5), f.balance(t, wallet.SystemUserID).BalanceTokens)

	// A second settlement attempt is a no-op: same result, no new ledger rows.
	txsBefore, err := f.wallets.ListTransactions(ctx, alice, 100)
	require.NoError(t, err)
	again, err := f.svc.SettleChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, again.WinnerUserID)
	txsAfter, err := f.wallets.ListTransactions(ctx, alice, 100)
	require.NoError(t, err)
	assert.Len(t, txsAfter, len(txsBefore))
	assert.Equal(t, int64(1095), f.balance(t, alice).BalanceTokens)
	assert.Equal(t, int64(5), f.balance(t, wallet.SystemUserID).BalanceTokens)

	// Challenges that never went live cannot be settled.
	pending, err := f.comps.CreateChallenge(ctx, alice, carol, competition.ChallengeTerms{
		StakeTokens: 50, RakeBps: 0, DurationHours: 1,
	})
	require.NoError(t, err)
	_, err = f.svc.SettleChallenge(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrChallengeNotLive)
}

func TestSettleChallengeTieVoidsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 50)
	require.NoError(t, err)

	c, err := f.svc.SettleChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusCompleted, c.Status)
	assert.Empty(t, c.WinnerUserID)

	for _, uid := range []string{alice, bob} {
		w := f.balance(t, uid)
		assert.Equal(t, int64(1000), w.BalanceTokens, uid)
		assert.Equal(t, int64(0), w.LockedTokens, uid)
	}
	carolW := f.balance(t, carol)
	assert.Equal(t, int64(1000), carolW.BalanceTokens)
	assert.Equal(t, int64(0), carolW.LockedTokens)
	assert.Equal(t, int64(0), f.balance(t, wallet.SystemUserID).BalanceTokens)

	voided, err := f.svc.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusVoid, voided.Status)
}

func TestSettleChallengeSettlesSpectatorMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	f.fund(t, dan, 1000)
	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	require.NoError(t, err)
	_, err = f.svc.PlaceBet(ctx, m.ID, dan, bob, 100)
	require.NoError(t, err)

	f.setEntryCash(t, alice, competition.DefaultChallengeCashCents+500_000)
	supplyBefore := f.totalSupply(t)

	_, err = f.svc.SettleChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)

	settled, err := f.svc.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusSettled, settled.Status)
	assert.Equal(t, alice, settled.WinnerUserID)

	// Market: pool 200, rake 10, carol takes the 190 token payout pool.
	assert.Equal(t, int64(1090), f.balance(t, carol).BalanceTokens)
	assert.Equal(t, int64(900), f.balance(t, dan).BalanceTokens)

	// House: 10 from the market plus 5 challenge rake.
	assert.Equal(t, int64(15), f.balance(t, wallet.SystemUserID).BalanceTokens)

	// Settlement only moves tokens between wallets.
	assert.Equal(t, supplyBefore, f.totalSupply(t))
}

func TestSettleChallengeLoserEquityBelowStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setEntryCash(t, bob, competition.DefaultChallengeCashCents-2_500_000)

	c, err := f.svc.SettleChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, c.WinnerUserID)
}

// txCount tallies the user's ledger rows of one kind.
func (f *fixture) txCount(t *testing.T, userID string, kind types.TxKind) int {
	t.Helper()
	txs, err := f.wallets.ListTransactions(context.Background(), userID, 1000)
	require.NoError(t, err)
	var n int
	for _, tx := range txs {
		if tx.Kind == kind {
			n++
		}
	}
	return n
}

func TestSettleMarketResumesAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	f.fund(t, dan, 1000)

	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	require.NoError(t, err)
	_, err = f.svc.PlaceBet(ctx, m.ID, dan, bob, 100)
	require.NoError(t, err)
	supplyBefore := f.totalSupply(t)

	// An out-of-band unlock breaks dan's stake lock, so collecting his stake
	// fails after carol's bet has already been paid.
	_, err = f.wallets.UnlockTokens(ctx, dan, 100, types.TxKindAdjustment, nil)
	require.NoError(t, err)

	_, err = f.svc.SettleMarket(ctx, m.ID, alice)
	require.ErrorIs(t, err, wallet.ErrInsufficientLocked)

	// The market is marked settled but dan's bet is still open.
	stuck, err := f.svc.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusSettled, stuck.Status)
	bets, err := f.svc.ListBets(ctx, m.ID)
	require.NoError(t, err)
	for _, b := range bets {
		if b.UserID == dan {
			assert.Equal(t, types.BetStatusPlaced, b.Status)
		}
	}

	// Restore the lock and retry. The resumed run finishes dan's bet and the
	// house credit without touching carol again.
	_, err = f.wallets.LockTokens(ctx, dan, 100, types.TxKindAdjustment, nil)
	require.NoError(t, err)
	_, err = f.svc.SettleMarket(ctx, m.ID, alice)
	require.NoError(t, err)

	// Pool 200, rake 10: carol takes the 190 payout pool, paid exactly once.
	carolW := f.balance(t, carol)
	assert.Equal(t, int64(1090), carolW.BalanceTokens)
	assert.Equal(t, int64(0), carolW.LockedTokens)
	assert.Equal(t, 1, f.txCount(t, carol, types.TxKindBetPayout))

	danW := f.balance(t, dan)
	assert.Equal(t, int64(900), danW.BalanceTokens)
	assert.Equal(t, int64(0), danW.LockedTokens)
	assert.Equal(t, int64(10), f.balance(t, wallet.SystemUserID).BalanceTokens)
	assert.Equal(t, supplyBefore, f.totalSupply(t))

	bets, err = f.svc.ListBets(ctx, m.ID)
	require.NoError(t, err)
	for _, b := range bets {
		assert.NotEqual(t, types.BetStatusPlaced, b.Status)
	}
}

func TestSettleChallengeResumesAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setEntryCash(t, alice, competition.DefaultChallengeCashCents+1_000_000)

	// Break alice's stake lock so the winner release fails after bob has
	// already forfeited.
	_, err := f.wallets.UnlockTokens(ctx, alice, 100, types.TxKindAdjustment, nil)
	require.NoError(t, err)

	_, err = f.svc.SettleChallenge(ctx, f.challenge.ID)
	require.ErrorIs(t, err, wallet.ErrInsufficientLocked)
	c, err := f.comps.GetChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusCompleted, c.Status)
	assert.Equal(t, int64(900), f.balance(t, bob).BalanceTokens)

	// Restore the lock and retry. The resumed run skips bob's forfeit and
	// finishes the winner payout and house rake.
	_, err = f.wallets.LockTokens(ctx, alice, 100, types.TxKindAdjustment, nil)
	require.NoError(t, err)
	_, err = f.svc.SettleChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.txCount(t, bob, types.TxKindStakeForfeit))
	bobW := f.balance(t, bob)
	assert.Equal(t, int64(900), bobW.BalanceTokens)
	assert.Equal(t, int64(0), bobW.LockedTokens)

	aliceW := f.balance(t, alice)
	assert.Equal(t, int64(1095), aliceW.BalanceTokens)
	assert.Equal(t, int64(0), aliceW.LockedTokens)
	assert.Equal(t, int64(5), f.balance(t, wallet.SystemUserID).BalanceTokens)
}

func TestMarketOperationsByChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	require.NoError(t, err)

	got, err := f.svc.GetMarketByChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = f.svc.GetMarketByChallenge(ctx, "no-such-challenge")
	assert.ErrorIs(t, err, ErrMarketNotFound)

	settled, err := f.svc.SettleMarketByChallenge(ctx, f.challenge.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusSettled, settled.Status)
	assert.Equal(t, alice, settled.WinnerUserID)

	// Pool 100, rake 5: carol is the only backer of the winner.
	assert.Equal(t, int64(995), f.balance(t, carol).BalanceTokens)
}

func TestVoidMarketByChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.openMarket(t)
	f.fund(t, carol, 1000)
	_, err := f.svc.PlaceBet(ctx, m.ID, carol, alice, 100)
	require.NoError(t, err)

	voided, err := f.svc.VoidMarketByChallenge(ctx, f.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MarketStatusVoid, voided.Status)
	w := f.balance(t, carol)
	assert.Equal(t, int64(1000), w.BalanceTokens)
	assert.Equal(t, int64(0), w.LockedTokens)
}
