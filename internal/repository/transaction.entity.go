package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/payment-gateway/internal/model"
)

type TransactionEntity struct {
	ID               int64      `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID    string     `db:"transaction_id"    gorm:"column:transaction_id;not null;uniqueIndex"`
	OrderID          string     `db:"order_id"          gorm:"column:order_id;not null;uniqueIndex"`
	PaymentID        *string    `db:"payment_id"        gorm:"column:payment_id;index"`
	Amount           float64    `db:"amount"            gorm:"column:amount;not null"`
	Currency         string     `db:"currency"          gorm:"column:currency;not null;size:3"`
	UserID           *string    `db:"user_id"           gorm:"column:user_id;index"`
	UserEmail        *string    `db:"user_email"        gorm:"column:user_email"`
	UserPhone        *string    `db:"user_phone"        gorm:"column:user_phone"`
	PaymentStatus    string     `db:"payment_status"    gorm:"column:payment_status;not null;index;default:pending"`
	PaymentMethod    *string    `db:"payment_method"    gorm:"column:payment_method"`
	IsVerified       bool       `db:"is_verified"       gorm:"column:is_verified;not null;default:false"`
	ErrorCode        *string    `db:"error_code"        gorm:"column:error_code"`
	ErrorDescription *string    `db:"error_description" gorm:"column:error_description"`
	IsRefunded       bool       `db:"is_refunded"       gorm:"column:is_refunded;not null;default:false"`
	RefundID         *string    `db:"refund_id"         gorm:"column:refund_id"`
	RefundAmount     *float64   `db:"refund_amount"     gorm:"column:refund_amount"`
	Notes            string     `db:"notes"             gorm:"column:notes;type:text"`
	Metadata         string     `db:"metadata"          gorm:"column:metadata;type:text"`
	CreatedAt        time.Time  `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `db:"updated_at"        gorm:"column:updated_at;autoUpdateTime"`
	PaymentDate      *time.Time `db:"payment_date"      gorm:"column:payment_date"`
	VerificationDate *time.Time `db:"verification_date" gorm:"column:verification_date"`
	RefundDate       *time.Time `db:"refund_date"       gorm:"column:refund_date"`
}

func (TransactionEntity) TableName() string {
	return "payment_transactions"
}

// notes/metadata are opaque passthrough blobs, stored as serialized
// JSON text.
func encodeKV(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeKV(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	m := make(map[string]string)
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:               m.ID,
		TransactionID:    m.TransactionID,
		OrderID:          m.OrderID,
		PaymentID:        m.PaymentID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		UserID:           m.UserID,
		UserEmail:        m.UserEmail,
		UserPhone:        m.UserPhone,
		PaymentStatus:    string(m.PaymentStatus),
		PaymentMethod:    m.PaymentMethod,
		IsVerified:       m.IsVerified,
		ErrorCode:        m.ErrorCode,
		ErrorDescription: m.ErrorDescription,
		IsRefunded:       m.IsRefunded,
		RefundID:         m.RefundID,
		RefundAmount:     m.RefundAmount,
		Notes:            encodeKV(m.Notes),
		Metadata:         encodeKV(m.Metadata),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		PaymentDate:      m.PaymentDate,
		VerificationDate: m.VerificationDate,
		RefundDate:       m.RefundDate,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:               e.ID,
		TransactionID:    e.TransactionID,
		OrderID:          e.OrderID,
		PaymentID:        e.PaymentID,
		Amount:           e.Amount,
		Currency:         e.Currency,
		UserID:           e.UserID,
		UserEmail:        e.UserEmail,
		UserPhone:        e.UserPhone,
		PaymentStatus:    model.TransactionStatus(e.PaymentStatus),
		PaymentMethod:    e.PaymentMethod,
		IsVerified:       e.IsVerified,
		ErrorCode:        e.ErrorCode,
		ErrorDescription: e.ErrorDescription,
		IsRefunded:       e.IsRefunded,
		RefundID:         e.RefundID,
		RefundAmount:     e.RefundAmount,
		Notes:            decodeKV(e.Notes),
		Metadata:         decodeKV(e.Metadata),
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		PaymentDate:      e.PaymentDate,
		VerificationDate: e.VerificationDate,
		RefundDate:       e.RefundDate,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
