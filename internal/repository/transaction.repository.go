package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/payment-gateway/internal/model"
	"github.com/nimasrn/payment-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no row matches the given key.
	ErrNotFound = errors.New("transaction not found")
	// ErrAlreadyFinal is returned when a transition is attempted on a
	// row that already left the required source state. The row is
	// returned alongside so callers can inspect where it ended up.
	ErrAlreadyFinal = errors.New("transaction already left pending state")
	// ErrNotRefundable is returned when a refund is recorded against a
	// row that is not in success state.
	ErrNotRefundable = errors.New("transaction is not in a refundable state")
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return r.getOne(ctx, "transaction_id = ?", transactionID)
}

func (r *TransactionRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	return r.getOne(ctx, "order_id = ?", orderID)
}

func (r *TransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*model.Transaction, error) {
	return r.getOne(ctx, "payment_id = ?", paymentID)
}

func (r *TransactionRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).Where(query, arg).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// PaymentUpdate carries the fields stamped on a verified payment.
type PaymentUpdate struct {
	PaymentID     string
	PaymentMethod *string
}

// UpdatePayment transitions the row for orderID from pending to
// success. The pending guard in the WHERE clause makes the transition
// conditional: a row that already left pending is never overwritten.
// When the guard rejects the write, the current row is returned with
// ErrAlreadyFinal (or ErrNotFound when there is no row at all).
func (r *TransactionRepository) UpdatePayment(ctx context.Context, orderID string, u PaymentUpdate) (*model.Transaction, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"payment_id":        u.PaymentID,
		"payment_method":    u.PaymentMethod,
		"payment_status":    string(model.StatusSuccess),
		"is_verified":       true,
		"verification_date": now,
		"payment_date":      now,
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("order_id = ? AND payment_status = ?", orderID, string(model.StatusPending)).
		Updates(updates)

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.GetByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return existing, ErrAlreadyFinal
	}

	return r.GetByOrderID(ctx, orderID)
}

// UpdateStatus transitions the row for orderID from pending to the
// given status, stamping the error fields. Same conditional guard as
// UpdatePayment.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, orderID string, status model.TransactionStatus, errorCode, errorDescription *string) (*model.Transaction, error) {
	updates := map[string]interface{}{
		"payment_status":    string(status),
		"error_code":        errorCode,
		"error_description": errorDescription,
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("order_id = ? AND payment_status = ?", orderID, string(model.StatusPending)).
		Updates(updates)

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.GetByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return existing, ErrAlreadyFinal
	}

	return r.GetByOrderID(ctx, orderID)
}

// MarkRefunded transitions the row matched by paymentID from success
// to refunded, stamping the refund fields.
func (r *TransactionRepository) MarkRefunded(ctx context.Context, paymentID, refundID string, refundAmount float64) (*model.Transaction, error) {
	updates := map[string]interface{}{
		"payment_status": string(model.StatusRefunded),
		"is_refunded":    true,
		"refund_id":      refundID,
		"refund_amount":  refundAmount,
		"refund_date":    time.Now(),
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("payment_id = ? AND payment_status = ?", paymentID, string(model.StatusSuccess)).
		Updates(updates)

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		return existing, ErrNotRefundable
	}

	return r.GetByPaymentID(ctx, paymentID)
}

func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{})

	if f.Status != nil {
		q = q.Where("payment_status = ?", string(*f.Status))
	}
	if f.UserID != nil && *f.UserID != "" {
		q = q.Where("user_id = ?", *f.UserID)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*TransactionEntity
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int64, error) {
	return r.List(ctx, model.TransactionFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: offset,
	})
}

type statsRow struct {
	TotalTransactions  int64    `gorm:"column:total_transactions"`
	SuccessfulPayments int64    `gorm:"column:successful_payments"`
	FailedPayments     int64    `gorm:"column:failed_payments"`
	PendingPayments    int64    `gorm:"column:pending_payments"`
	RefundedPayments   int64    `gorm:"column:refunded_payments"`
	TotalRevenue       float64  `gorm:"column:total_revenue"`
	AverageValue       *float64 `gorm:"column:average_transaction_value"`
}

// Stats aggregates the ledger, optionally bounded by created_at.
// Refunded rows still count as successful payments for revenue: the
// refund is recorded separately on the row.
func (r *TransactionRepository) Stats(ctx context.Context, from, to *time.Time) (*model.TransactionStats, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{}).
		Select(`
            COUNT(*)                                                                   AS total_transactions,
            SUM(CASE WHEN payment_status = 'success'  THEN 1 ELSE 0 END)               AS successful_payments,
            SUM(CASE WHEN payment_status = 'failed'   THEN 1 ELSE 0 END)               AS failed_payments,
            SUM(CASE WHEN payment_status = 'pending'  THEN 1 ELSE 0 END)               AS pending_payments,
            SUM(CASE WHEN is_refunded                 THEN 1 ELSE 0 END)               AS refunded_payments,
            COALESCE(SUM(CASE WHEN payment_status = 'success' THEN amount ELSE 0 END), 0) AS total_revenue,
            AVG(CASE WHEN payment_status = 'success'  THEN amount ELSE NULL END)       AS average_transaction_value
        `)

	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}

	var row statsRow
	if err := q.Scan(&row).Error; err != nil {
		return nil, err
	}

	return &model.TransactionStats{
		TotalTransactions:       row.TotalTransactions,
		SuccessfulPayments:      row.SuccessfulPayments,
		FailedPayments:          row.FailedPayments,
		PendingPayments:         row.PendingPayments,
		RefundedPayments:        row.RefundedPayments,
		TotalRevenue:            row.TotalRevenue,
		AverageTransactionValue: row.AverageValue,
	}, nil
}

// DeleteStalePending removes pending rows older than the given age.
// Rows in any other state are never touched.
func (r *TransactionRepository) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result := r.Write(ctx).WithContext(ctx).
		Where("payment_status = ? AND created_at < ?", string(model.StatusPending), cutoff).
		Delete(&TransactionEntity{})

	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
