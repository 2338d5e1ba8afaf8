package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/payment-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTransaction(t *testing.T, repo *TransactionRepository, txn *model.Transaction) *model.Transaction {
	t.Helper()
	if txn.TransactionID == "" {
		txn.TransactionID = "txn_" + txn.OrderID
	}
	if txn.Currency == "" {
		txn.Currency = "INR"
	}
	if txn.PaymentStatus == "" {
		txn.PaymentStatus = model.StatusPending
	}
	created, err := repo.Create(context.Background(), txn)
	require.NoError(t, err)
	return created
}

func TestTransactionRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	t.Run("create pending transaction", func(t *testing.T) {
		txn := &model.Transaction{
			TransactionID: "txn_1",
			OrderID:       "order_1",
			Amount:        500,
			Currency:      "INR",
			PaymentStatus: model.StatusPending,
			UserID:        ptr("user_1"),
			Notes:         map[string]string{"plan": "gold"},
		}

		created, err := repo.Create(ctx, txn)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "order_1", created.OrderID)
		assert.Equal(t, model.StatusPending, created.PaymentStatus)
		assert.Equal(t, float64(500), created.Amount)
		assert.Equal(t, "gold", created.Notes["plan"])
		assert.False(t, created.IsVerified)
		assert.Nil(t, created.PaymentID)
	})

	t.Run("duplicate order id rejected", func(t *testing.T) {
		txn := &model.Transaction{
			TransactionID: "txn_dup",
			OrderID:       "order_1",
			Amount:        100,
			Currency:      "INR",
			PaymentStatus: model.StatusPending,
		}
		_, err := repo.Create(ctx, txn)
		assert.Error(t, err)
	})
}

func TestTransactionRepository_Get(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	seedTransaction(t, repo, &model.Transaction{OrderID: "order_get", Amount: 250})

	t.Run("by order id", func(t *testing.T) {
		found, err := repo.GetByOrderID(ctx, "order_get")
		require.NoError(t, err)
		assert.Equal(t, "order_get", found.OrderID)
	})

	t.Run("by transaction id", func(t *testing.T) {
		found, err := repo.GetByTransactionID(ctx, "txn_order_get")
		require.NoError(t, err)
		assert.Equal(t, "order_get", found.OrderID)
	})

	t.Run("missing row returns ErrNotFound", func(t *testing.T) {
		_, err := repo.GetByOrderID(ctx, "order_nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransactionRepository_UpdatePayment(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	seedTransaction(t, repo, &model.Transaction{OrderID: "order_pay", Amount: 500})

	t.Run("pending row transitions to success", func(t *testing.T) {
		updated, err := repo.UpdatePayment(ctx, "order_pay", PaymentUpdate{
			PaymentID:     "pay_abc",
			PaymentMethod: ptr("card"),
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusSuccess, updated.PaymentStatus)
		assert.True(t, updated.IsVerified)
		require.NotNil(t, updated.PaymentID)
		assert.Equal(t, "pay_abc", *updated.PaymentID)
		assert.NotNil(t, updated.PaymentDate)
		assert.NotNil(t, updated.VerificationDate)
	})

	t.Run("second update is rejected, row unchanged", func(t *testing.T) {
		existing, err := repo.UpdatePayment(ctx, "order_pay", PaymentUpdate{
			PaymentID: "pay_other",
		})
		assert.ErrorIs(t, err, ErrAlreadyFinal)
		require.NotNil(t, existing)
		assert.Equal(t, model.StatusSuccess, existing.PaymentStatus)
		assert.Equal(t, "pay_abc", *existing.PaymentID)
	})

	t.Run("failed row is not resurrected", func(t *testing.T) {
		seedTransaction(t, repo, &model.Transaction{OrderID: "order_failed", Amount: 100})
		_, err := repo.UpdateStatus(ctx, "order_failed", model.StatusFailed, ptr("BAD_SIG"), ptr("signature mismatch"))
		require.NoError(t, err)

		existing, err := repo.UpdatePayment(ctx, "order_failed", PaymentUpdate{PaymentID: "pay_late"})
		assert.ErrorIs(t, err, ErrAlreadyFinal)
		assert.Equal(t, model.StatusFailed, existing.PaymentStatus)
		assert.Nil(t, existing.PaymentID)
	})

	t.Run("missing order returns ErrNotFound", func(t *testing.T) {
		_, err := repo.UpdatePayment(ctx, "order_ghost", PaymentUpdate{PaymentID: "pay_x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransactionRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	seedTransaction(t, repo, &model.Transaction{OrderID: "order_status", Amount: 300})

	t.Run("pending to failed with error fields", func(t *testing.T) {
		updated, err := repo.UpdateStatus(ctx, "order_status", model.StatusFailed, ptr("SIGNATURE_VERIFICATION_FAILED"), ptr("invalid signature"))
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, updated.PaymentStatus)
		require.NotNil(t, updated.ErrorCode)
		assert.Equal(t, "SIGNATURE_VERIFICATION_FAILED", *updated.ErrorCode)
	})

	t.Run("terminal row rejects further transitions", func(t *testing.T) {
		existing, err := repo.UpdateStatus(ctx, "order_status", model.StatusError, ptr("X"), nil)
		assert.ErrorIs(t, err, ErrAlreadyFinal)
		assert.Equal(t, model.StatusFailed, existing.PaymentStatus)
	})
}

func TestTransactionRepository_MarkRefunded(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	seedTransaction(t, repo, &model.Transaction{OrderID: "order_refund", Amount: 500})
	_, err := repo.UpdatePayment(ctx, "order_refund", PaymentUpdate{PaymentID: "pay_refund"})
	require.NoError(t, err)

	t.Run("success row transitions to refunded", func(t *testing.T) {
		updated, err := repo.MarkRefunded(ctx, "pay_refund", "rfnd_1", 500)
		require.NoError(t, err)
		assert.Equal(t, model.StatusRefunded, updated.PaymentStatus)
		assert.True(t, updated.IsRefunded)
		require.NotNil(t, updated.RefundID)
		assert.Equal(t, "rfnd_1", *updated.RefundID)
		require.NotNil(t, updated.RefundAmount)
		assert.Equal(t, float64(500), *updated.RefundAmount)
		assert.NotNil(t, updated.RefundDate)
	})

	t.Run("double refund rejected", func(t *testing.T) {
		existing, err := repo.MarkRefunded(ctx, "pay_refund", "rfnd_2", 500)
		assert.ErrorIs(t, err, ErrNotRefundable)
		assert.Equal(t, "rfnd_1", *existing.RefundID)
	})

	t.Run("pending payment is not refundable", func(t *testing.T) {
		seedTransaction(t, repo, &model.Transaction{OrderID: "order_pend", PaymentID: ptr("pay_pend"), Amount: 100})
		_, err := repo.MarkRefunded(ctx, "pay_pend", "rfnd_3", 100)
		assert.ErrorIs(t, err, ErrNotRefundable)
	})
}

func TestTransactionRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedTransaction(t, repo, &model.Transaction{
			OrderID: "order_list_" + string(rune('a'+i)),
			Amount:  float64(100 * (i + 1)),
			UserID:  ptr("user_list"),
		})
	}
	seedTransaction(t, repo, &model.Transaction{OrderID: "order_list_other", Amount: 50, UserID: ptr("user_other")})
	_, err := repo.UpdatePayment(ctx, "order_list_a", PaymentUpdate{PaymentID: "pay_list_a"})
	require.NoError(t, err)

	t.Run("no filter returns everything", func(t *testing.T) {
		rows, total, err := repo.List(ctx, model.TransactionFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 4, total)
		assert.Len(t, rows, 4)
	})

	t.Run("filter by status", func(t *testing.T) {
		status := model.StatusSuccess
		rows, total, err := repo.List(ctx, model.TransactionFilter{Status: &status})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, rows, 1)
		assert.Equal(t, "order_list_a", rows[0].OrderID)
	})

	t.Run("filter by user", func(t *testing.T) {
		rows, total, err := repo.ListByUser(ctx, "user_list", 0, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Len(t, rows, 3)
	})

	t.Run("pagination caps the page not the total", func(t *testing.T) {
		rows, total, err := repo.List(ctx, model.TransactionFilter{Limit: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 4, total)
		assert.Len(t, rows, 2)
	})
}

func TestTransactionRepository_Stats(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	seedTransaction(t, repo, &model.Transaction{OrderID: "order_s1", Amount: 100})
	seedTransaction(t, repo, &model.Transaction{OrderID: "order_s2", Amount: 300})
	seedTransaction(t, repo, &model.Transaction{OrderID: "order_s3", Amount: 40})

	_, err := repo.UpdatePayment(ctx, "order_s1", PaymentUpdate{PaymentID: "pay_s1"})
	require.NoError(t, err)
	_, err = repo.UpdatePayment(ctx, "order_s2", PaymentUpdate{PaymentID: "pay_s2"})
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, "order_s3", model.StatusFailed, ptr("E"), nil)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, nil, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 3, stats.TotalTransactions)
	assert.EqualValues(t, 2, stats.SuccessfulPayments)
	assert.EqualValues(t, 1, stats.FailedPayments)
	assert.EqualValues(t, 0, stats.PendingPayments)
	assert.Equal(t, float64(400), stats.TotalRevenue)
	require.NotNil(t, stats.AverageTransactionValue)
	assert.Equal(t, float64(200), *stats.AverageTransactionValue)
}

func TestTransactionRepository_DeleteStalePending(t *testing.T) {
	tdb := setupTestDB(t)
	repo := NewTransactionRepository(tdb.DB)
	ctx := context.Background()

	seedTransaction(t, repo, &model.Transaction{OrderID: "order_stale", Amount: 10})
	seedTransaction(t, repo, &model.Transaction{OrderID: "order_fresh", Amount: 20})
	seedTransaction(t, repo, &model.Transaction{OrderID: "order_old_success", Amount: 30})
	_, err := repo.UpdatePayment(ctx, "order_old_success", PaymentUpdate{PaymentID: "pay_old"})
	require.NoError(t, err)

	old := time.Now().Add(-10 * 24 * time.Hour)
	err = tdb.rawDB.Model(&TransactionEntity{}).
		Where("order_id IN ?", []string{"order_stale", "order_old_success"}).
		UpdateColumn("created_at", old).Error
	require.NoError(t, err)

	deleted, err := repo.DeleteStalePending(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = repo.GetByOrderID(ctx, "order_stale")
	assert.ErrorIs(t, err, ErrNotFound)

	// completed rows are kept regardless of age
	_, err = repo.GetByOrderID(ctx, "order_old_success")
	assert.NoError(t, err)
	_, err = repo.GetByOrderID(ctx, "order_fresh")
	assert.NoError(t, err)
}

func ptr[T any](v T) *T {
	return &v
}
