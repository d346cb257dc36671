package competition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxarena/internal/types"
	"fxarena/internal/wallet"
)

type fixedUnrealized struct {
	cents int64
}

func (f fixedUnrealized) UnrealizedPnLCents(context.Context, string, string) (int64, error) {
	return f.cents, nil
}

func newTestService(t *testing.T, unrealized UnrealizedReader) (*Service, *wallet.Service) {
	t.Helper()
	wallets := wallet.NewService(wallet.NewMemoryStore(), nil)
	svc := NewService(NewMemoryStore(), wallets, unrealized, nil)
	return svc, wallets
}

func fund(t *testing.T, wallets *wallet.Service, userID string, amount int64) {
	t.Helper()
	_, err := wallets.ApplyTransaction(context.Background(), userID, types.TxKindPurchase, amount, nil, nil)
	require.NoError(t, err)
}

func createCompetition(t *testing.T, svc *Service, fee int64) string {
	t.Helper()
	now := time.Now().UTC()
	c, err := svc.CreateCompetition(context.Background(), CreateCompetitionRequest{
		Name:              "Weekly Open",
		EntryFeeTokens:    fee,
		StartingCashCents: 10_000_000,
		RakeBps:           500,
		StartsAt:          now,
		EndsAt:            now.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	return c.ID
}

func TestJoinCompetitionDebitsFee(t *testing.T) {
	svc, wallets := newTestService(t, nil)
	ctx := context.Background()
	compID := createCompetition(t, svc, 100)
	fund(t, wallets, "alice", 150)

	e, err := svc.JoinCompetition(ctx, compID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), e.CashCents)
	assert.Equal(t, int64(10_000_000), e.EquityCents)
	assert.Equal(t, int64(10_000_000), e.HighWaterMarkCents)
	assert.True(t, e.Paid)

	w, err := wallets.GetOrCreateWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), w.BalanceTokens)
}

func TestJoinCompetitionInsufficientTokens(t *testing.T) {
	svc, wallets := newTestService(t, nil)
	ctx := context.Background()
	compID := createCompetition(t, svc, 100)
	fund(t, wallets, "bob", 40)

	_, err := svc.JoinCompetition(ctx, compID, "bob")
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	// Nothing was debited.
	w, err := wallets.GetOrCreateWallet(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(40), w.BalanceTokens)
}

func TestJoinCompetitionTwice(t *testing.T) {
	svc, wallets := newTestService(t, nil)
	ctx := context.Background()
	compID := createCompetition(t, svc, 100)
	fund(t, wallets, "carol", 300)

	_, err := svc.JoinCompetition(ctx, compID, "carol")
	require.NoError(t, err)
	_, err = svc.JoinCompetition(ctx, compID, "carol")
	require.ErrorIs(t, err, ErrEntryExists)

	// Only one fee was taken.
	w, err := wallets.GetOrCreateWallet(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(200), w.BalanceTokens)
}

func TestRefreshEquityTracksDrawdown(t *testing.T) {
	svc, wallets := newTestService(t, nil)
	ctx := context.Background()
	compID := createCompetition(t, svc, 0)
	fund(t, wallets, "dave", 10)
	_, err := svc.JoinCompetition(ctx, compID, "dave")
	require.NoError(t, err)

	// Unrealized losses drag equity below the high-water mark.
	losing := NewService(svc.store, wallets, fixedUnrealized{cents: -1_000_000}, nil)
	e, err := losing.RefreshEquity(ctx, compID, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(9_000_000), e.EquityCents)
	assert.Equal(t, int64(10_000_000), e.HighWaterMarkCents)
	assert.InDelta(t, 10.0, e.DrawdownPct, 0.001)

	// A winning mark lifts the high-water mark and zeroes the drawdown.
	winning := NewService(svc.store, wallets, fixedUnrealized{cents: 2_000_000}, nil)
	e, err = winning.RefreshEquity(ctx, compID, "dave")
	require.NoError(t, err)
	assert.Equal(t, int64(12_000_000), e.EquityCents)
	assert.Equal(t, int64(12_000_000), e.HighWaterMarkCents)
	assert.InDelta(t, 0.0, e.DrawdownPct, 0.001)
}

func TestLeaderboardOrdersByEquity(t *testing.T) {
	svc, wallets := newTestService(t, nil)
	ctx := context.Background()
	compID := createCompetition(t, svc, 0)
	for _, u := range []string{"p1", "p2", "p3"} {
		fund(t, wallets, u, 10)
		_, err := svc.JoinCompetition(ctx, compID, u)
		require.NoError(t, err)
	}

	// Give p2 a realized edge by bumping its entry cash directly.
	e, err := svc.store.GetEntry(ctx, compID, "p2")
	require.NoError(t, err)
	e.CashCents += 500_000
	require.NoError(t, svc.store.UpdateEntry(ctx, e))

	entries, err := svc.Leaderboard(ctx, compID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "p2", entries[0].UserID)
}
