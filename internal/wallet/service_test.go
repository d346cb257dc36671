package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxarena/internal/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), nil)
}

func TestApplyTransactionCreditAndDebit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	w, err := svc.ApplyTransaction(ctx, "alice", types.TxKindPurchase, 500, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.BalanceTokens)

	w, err = svc.ApplyTransaction(ctx, "alice", types.TxKindCompetitionEntry, -200, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(300), w.BalanceTokens)
	assert.Equal(t, int64(300), w.Available())
}

func TestApplyTransactionInsufficientBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyTransaction(ctx, "bob", types.TxKindPurchase, 100, nil, nil)
	require.NoError(t, err)

	_, err = svc.ApplyTransaction(ctx, "bob", types.TxKindBetPlace, -150, nil, nil)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "required 150")
	assert.Contains(t, err.Error(), "available 100")

	// Failed debit leaves the balance untouched.
	w, err := svc.GetOrCreateWallet(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.BalanceTokens)
}

func TestLockUnlockInvariant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyTransaction(ctx, "carol", types.TxKindPurchase, 1000, nil, nil)
	require.NoError(t, err)

	w, err := svc.LockTokens(ctx, "carol", 600, types.TxKindStakeLock, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(600), w.LockedTokens)
	assert.Equal(t, int64(400), w.Available())

	// Locking beyond the available remainder fails.
	_, err = svc.LockTokens(ctx, "carol", 500, types.TxKindStakeLock, nil)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// Debiting below the locked floor fails.
	_, err = svc.ApplyTransaction(ctx, "carol", types.TxKindAdjustment, -500, nil, nil)
	require.ErrorIs(t, err, ErrBelowLocked)

	w, err = svc.UnlockTokens(ctx, "carol", 600, types.TxKindStakeRelease, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.LockedTokens)
	assert.Equal(t, int64(1000), w.BalanceTokens)
}

func TestUnlockMoreThanLocked(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyTransaction(ctx, "dave", types.TxKindPurchase, 100, nil, nil)
	require.NoError(t, err)
	_, err = svc.LockTokens(ctx, "dave", 50, types.TxKindStakeLock, nil)
	require.NoError(t, err)

	_, err = svc.UnlockTokens(ctx, "dave", 80, types.TxKindStakeRelease, nil)
	require.ErrorIs(t, err, ErrInsufficientLocked)
}

func TestUnlockAndDeduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyTransaction(ctx, "erin", types.TxKindPurchase, 300, nil, nil)
	require.NoError(t, err)
	_, err = svc.LockTokens(ctx, "erin", 200, types.TxKindStakeLock, nil)
	require.NoError(t, err)

	w, err := svc.UnlockAndDeductTokens(ctx, "erin", 200, types.TxKindStakeForfeit, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.BalanceTokens)
	assert.Equal(t, int64(0), w.LockedTokens)
}

func TestInvalidAmounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.LockTokens(ctx, "frank", 0, types.TxKindStakeLock, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.UnlockTokens(ctx, "frank", -5, types.TxKindStakeRelease, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.UnlockAndDeductTokens(ctx, "frank", 0, types.TxKindStakeForfeit, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// Lock and unlock rows carry amount zero, so the transaction sum always
// matches the balance no matter how many times tokens were reserved.
func TestReconcileAfterMixedSequence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyTransaction(ctx, "grace", types.TxKindPurchase, 1000, nil, nil)
	require.NoError(t, err)
	_, err = svc.LockTokens(ctx, "grace", 400, types.TxKindBetPlace, nil)
	require.NoError(t, err)
	_, err = svc.UnlockTokens(ctx, "grace", 100, types.TxKindBetRefund, nil)
	require.NoError(t, err)
	_, err = svc.UnlockAndDeductTokens(ctx, "grace", 300, types.TxKindBetPlace, nil)
	require.NoError(t, err)
	_, err = svc.ApplyTransaction(ctx, "grace", types.TxKindBetPayout, 450, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Reconcile(ctx, "grace"))

	w, err := svc.GetOrCreateWallet(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, int64(1150), w.BalanceTokens)
	assert.Equal(t, int64(0), w.LockedTokens)

	txs, err := svc.ListTransactions(ctx, "grace", 50)
	require.NoError(t, err)
	assert.Len(t, txs, 5)
}

func TestTransactionRefAndMetadataPersist(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ref := &types.Ref{Type: types.RefTypeChallenge, ID: "ch-9"}
	_, err := svc.ApplyTransaction(ctx, "heidi", types.TxKindPurchase, 50, ref,
		map[string]string{"source": "promo"})
	require.NoError(t, err)

	txs, err := svc.ListTransactions(ctx, "heidi", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].Ref)
	assert.Equal(t, types.RefTypeChallenge, txs[0].Ref.Type)
	assert.Equal(t, "ch-9", txs[0].Ref.ID)
	assert.Equal(t, "promo", txs[0].Metadata["source"])
}
