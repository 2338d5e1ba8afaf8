package model

import (
	"errors"
	"time"
)

// TransactionStatus is the lifecycle state of a payment transaction.
// Allowed transitions: pending -> success | failed | error,
// success -> refunded. failed, error and refunded are terminal.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusSuccess  TransactionStatus = "success"
	StatusFailed   TransactionStatus = "failed"
	StatusError    TransactionStatus = "error"
	StatusRefunded TransactionStatus = "refunded"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusError || s == StatusRefunded
}

// Transaction is one row of the local payment ledger, one per payment
// attempt. order_id is the correlation key with the gateway for the
// whole lifecycle; payment_id is set only after a verified payment.
type Transaction struct {
	ID               int64             `json:"id"`
	TransactionID    string            `json:"transaction_id"`
	OrderID          string            `json:"order_id"`
	PaymentID        *string           `json:"payment_id,omitempty"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	UserID           *string           `json:"user_id,omitempty"`
	UserEmail        *string           `json:"user_email,omitempty"`
	UserPhone        *string           `json:"user_phone,omitempty"`
	PaymentStatus    TransactionStatus `json:"payment_status"`
	PaymentMethod    *string           `json:"payment_method,omitempty"`
	IsVerified       bool              `json:"is_verified"`
	ErrorCode        *string           `json:"error_code,omitempty"`
	ErrorDescription *string           `json:"error_description,omitempty"`
	IsRefunded       bool              `json:"is_refunded"`
	RefundID         *string           `json:"refund_id,omitempty"`
	RefundAmount     *float64          `json:"refund_amount,omitempty"`
	Notes            map[string]string `json:"notes,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	PaymentDate      *time.Time        `json:"payment_date,omitempty"`
	VerificationDate *time.Time        `json:"verification_date,omitempty"`
	RefundDate       *time.Time        `json:"refund_date,omitempty"`
}

var (
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrMissingOrderID   = errors.New("order id is required")
	ErrMissingPaymentID = errors.New("payment id is required")
	ErrMissingSignature = errors.New("signature is required")
)

// CreateOrderRequest is the input for starting a payment.
type CreateOrderRequest struct {
	Amount    float64
	Currency  string
	Metadata  map[string]string
	UserID    *string
	UserEmail *string
	UserPhone *string
}

func (p CreateOrderRequest) Validate() error {
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// VerifyPaymentRequest carries the gateway callback fields.
type VerifyPaymentRequest struct {
	OrderID       string
	PaymentID     string
	Signature     string
	PaymentMethod string
}

func (p VerifyPaymentRequest) Validate() error {
	if p.OrderID == "" {
		return ErrMissingOrderID
	}
	if p.PaymentID == "" {
		return ErrMissingPaymentID
	}
	if p.Signature == "" {
		return ErrMissingSignature
	}
	return nil
}

// TransactionFilter controls List queries.
type TransactionFilter struct {
	Status *TransactionStatus
	UserID *string
	Limit  int // default 50
	Offset int
}

// TransactionStats is the aggregate view over the ledger, optionally
// bounded by a created_at range.
type TransactionStats struct {
	TotalTransactions       int64    `json:"total_transactions"`
	SuccessfulPayments      int64    `json:"successful_payments"`
	FailedPayments          int64    `json:"failed_payments"`
	PendingPayments         int64    `json:"pending_payments"`
	RefundedPayments        int64    `json:"refunded_payments"`
	TotalRevenue            float64  `json:"total_revenue"`
	AverageTransactionValue *float64 `json:"average_transaction_value,omitempty"`
}
