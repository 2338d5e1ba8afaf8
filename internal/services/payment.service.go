package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/payment-gateway/internal/gateways"
	"github.com/nimasrn/payment-gateway/internal/locker"
	"github.com/nimasrn/payment-gateway/internal/model"
	"github.com/nimasrn/payment-gateway/internal/repository"
	"github.com/nimasrn/payment-gateway/pkg/logger"
	"github.com/nimasrn/payment-gateway/pkg/prom"
)

var (
	ErrSignatureMismatch      = errors.New("payment signature verification failed")
	ErrOrderNotFound          = errors.New("order not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrAlreadyProcessed       = errors.New("transaction already processed")
	ErrVerificationInProgress = errors.New("verification already in progress")
)

type Gateway interface {
	CreateOrder(ctx context.Context, amount float64, currency string, notes map[string]string) (*gateway.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	CreateRefund(ctx context.Context, paymentID string, amount *float64) (*gateway.Refund, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*model.Transaction, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*model.Transaction, error)
	UpdatePayment(ctx context.Context, orderID string, u repository.PaymentUpdate) (*model.Transaction, error)
	UpdateStatus(ctx context.Context, orderID string, status model.TransactionStatus, errorCode, errorDescription *string) (*model.Transaction, error)
	MarkRefunded(ctx context.Context, paymentID, refundID string, refundAmount float64) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int64, error)
	Stats(ctx context.Context, from, to *time.Time) (*model.TransactionStats, error)
	DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

type SignatureVerifier interface {
	Verify(orderID, paymentID, claimed string) bool
}

type Notifier interface {
	DispatchPayment(txn *model.Transaction)
	DispatchRefund(txn *model.Transaction)
}

type VerificationLocker interface {
	Acquire(orderID string) (*locker.Lock, error)
	Release(lock *locker.Lock) error
}

// PaymentService orchestrates the payment lifecycle: gateway calls,
// the local ledger, signature verification and admin notifications.
type PaymentService struct {
	gateway         Gateway
	transactionRepo TransactionRepository
	verifier        SignatureVerifier
	notifier        Notifier
	locker          VerificationLocker
	defaultCurrency string
}

func NewPaymentService(gw Gateway, transactionRepo TransactionRepository, verifier SignatureVerifier, notifier Notifier, lock VerificationLocker, defaultCurrency string) *PaymentService {
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}
	return &PaymentService{
		gateway:         gw,
		transactionRepo: transactionRepo,
		verifier:        verifier,
		notifier:        notifier,
		locker:          lock,
		defaultCurrency: defaultCurrency,
	}
}

// CreateOrderResult pairs the gateway order with the local ledger row.
// Transaction is nil when the ledger insert failed after the gateway
// order was already created; the order is still usable and the gap is
// left for reconciliation.
type CreateOrderResult struct {
	Order       *gateway.Order     `json:"order"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

func (s *PaymentService) CreateOrder(ctx context.Context, p model.CreateOrderRequest) (*CreateOrderResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	currency := p.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	order, err := s.gateway.CreateOrder(ctx, p.Amount, currency, p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	txn := &model.Transaction{
		TransactionID: "txn_" + uuid.New().String(),
		OrderID:       order.ID,
		Amount:        p.Amount,
		Currency:      currency,
		PaymentStatus: model.StatusPending,
		UserID:        p.UserID,
		UserEmail:     p.UserEmail,
		UserPhone:     p.UserPhone,
		Notes:         p.Metadata,
	}

	created, err := s.transactionRepo.Create(ctx, txn)
	if err != nil {
		// The gateway order exists, so the caller can still proceed to
		// checkout. The missing row is picked up by reconciliation.
		logger.Error("Ledger insert failed after gateway order creation",
			"order_id", order.ID, "error", err)
		return &CreateOrderResult{Order: order}, nil
	}

	prom.IncPaymentCreated()
	logger.Info("Order created",
		"order_id", order.ID,
		"transaction_id", created.TransactionID,
		"amount", created.Amount,
		"currency", created.Currency)

	return &CreateOrderResult{Order: order, Transaction: created}, nil
}

// VerifyPayment checks the gateway callback signature and settles the
// pending row. The signature decides trust locally; the gateway is only
// consulted (best effort) for the payment method.
func (s *PaymentService) VerifyPayment(ctx context.Context, p model.VerifyPaymentRequest) (txn *model.Transaction, err error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if s.locker != nil {
		lock, lockErr := s.locker.Acquire(p.OrderID)
		if lockErr != nil {
			if errors.Is(lockErr, locker.ErrLockHeld) {
				return nil, ErrVerificationInProgress
			}
			// Lock service down: verify anyway, the conditional update
			// guard in the repository still prevents double settling.
			logger.Warn("Verification lock unavailable, continuing", "order_id", p.OrderID, "error", lockErr)
		} else {
			defer s.locker.Release(lock)
		}
	}

	// If something unexpected escapes below while the row is still
	// pending, mark it error so it is not mistaken for an abandoned
	// checkout. Best effort.
	defer func() {
		if err == nil || errors.Is(err, ErrSignatureMismatch) ||
			errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrAlreadyProcessed) {
			return
		}
		s.markError(ctx, p.OrderID, err)
	}()

	if !s.verifier.Verify(p.OrderID, p.PaymentID, p.Signature) {
		s.settleFailed(ctx, p.OrderID)
		return nil, ErrSignatureMismatch
	}

	method := p.PaymentMethod
	if method == "" {
		if payment, perr := s.gateway.FetchPayment(ctx, p.PaymentID); perr == nil {
			method = payment.Method
		} else {
			logger.Warn("Could not fetch payment details from gateway", "payment_id", p.PaymentID, "error", perr)
		}
	}

	update := repository.PaymentUpdate{PaymentID: p.PaymentID}
	if method != "" {
		update.PaymentMethod = &method
	}

	updated, err := s.transactionRepo.UpdatePayment(ctx, p.OrderID, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		if errors.Is(err, repository.ErrAlreadyFinal) {
			// A concurrent verify may have settled the same payment
			// already; treat the exact same outcome as idempotent.
			if updated != nil && updated.PaymentStatus == model.StatusSuccess &&
				updated.PaymentID != nil && *updated.PaymentID == p.PaymentID {
				return updated, nil
			}
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("settle payment: %w", err)
	}

	prom.IncPaymentVerified()
	logger.Info("Payment verified",
		"order_id", p.OrderID,
		"payment_id", p.PaymentID,
		"transaction_id", updated.TransactionID)

	if s.notifier != nil {
		s.notifier.DispatchPayment(updated)
	}

	return updated, nil
}

// settleFailed records a signature mismatch on the pending row.
func (s *PaymentService) settleFailed(ctx context.Context, orderID string) {
	prom.IncPaymentFailed()

	code := "SIGNATURE_VERIFICATION_FAILED"
	desc := "payment signature did not match"
	failed, err := s.transactionRepo.UpdateStatus(ctx, orderID, model.StatusFailed, &code, &desc)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrAlreadyFinal) {
			logger.Error("Failed to record signature failure", "order_id", orderID, "error", err)
		}
		return
	}

	logger.Warn("Payment signature verification failed", "order_id", orderID)

	if s.notifier != nil {
		s.notifier.DispatchPayment(failed)
	}
}

func (s *PaymentService) markError(ctx context.Context, orderID string, cause error) {
	code := "INTERNAL_ERROR"
	desc := cause.Error()
	if _, err := s.transactionRepo.UpdateStatus(ctx, orderID, model.StatusError, &code, &desc); err != nil {
		if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrAlreadyFinal) {
			logger.Error("Failed to mark transaction as errored", "order_id", orderID, "error", err)
		}
	}
}

// OrderStatus pairs the gateway's view of an order with the local
// ledger row. Transaction is nil when no local row exists.
type OrderStatus struct {
	Order       *gateway.Order     `json:"order"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

func (s *PaymentService) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	order, err := s.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("fetch gateway order: %w", err)
	}

	txn, err := s.transactionRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		txn = nil
	}

	return &OrderStatus{Order: order, Transaction: txn}, nil
}

// RefundResult pairs the gateway refund with the updated ledger row.
// Transaction is nil when the gateway refund succeeded but the ledger
// had no matching success row; the gap is logged for reconciliation.
type RefundResult struct {
	Refund      *gateway.Refund    `json:"refund"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

// Refund issues a gateway refund for paymentID. A nil amount refunds
// the full payment.
func (s *PaymentService) Refund(ctx context.Context, paymentID string, amount *float64) (*RefundResult, error) {
	refund, err := s.gateway.CreateRefund(ctx, paymentID, amount)
	if err != nil {
		return nil, fmt.Errorf("create gateway refund: %w", err)
	}

	refundAmount := gateway.MajorUnits(refund.Amount)
	if amount != nil {
		refundAmount = *amount
	}

	txn, err := s.transactionRepo.MarkRefunded(ctx, paymentID, refund.ID, refundAmount)
	if err != nil {
		// The gateway refund is already done; a missing or mismatched
		// ledger row must not turn that into a failure.
		logger.Error("Refund succeeded at gateway but could not be recorded",
			"payment_id", paymentID, "refund_id", refund.ID, "error", err)
		return &RefundResult{Refund: refund}, nil
	}

	prom.IncPaymentRefunded()
	logger.Info("Payment refunded",
		"payment_id", paymentID,
		"refund_id", refund.ID,
		"amount", refundAmount)

	if s.notifier != nil {
		s.notifier.DispatchRefund(txn)
	}

	return &RefundResult{Refund: refund, Transaction: txn}, nil
}

func (s *PaymentService) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	txn, err := s.transactionRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

func (s *PaymentService) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	return s.transactionRepo.List(ctx, f)
}

func (s *PaymentService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int64, error) {
	return s.transactionRepo.ListByUser(ctx, userID, limit, offset)
}

func (s *PaymentService) Stats(ctx context.Context, from, to *time.Time) (*model.TransactionStats, error) {
	return s.transactionRepo.Stats(ctx, from, to)
}

// CleanupStalePending removes pending rows older than the given age.
func (s *PaymentService) CleanupStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	deleted, err := s.transactionRepo.DeleteStalePending(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logger.Info("Stale pending transactions removed", "count", deleted, "older_than", olderThan)
	}
	return deleted, nil
}
