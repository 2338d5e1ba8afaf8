package notifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gateway "github.com/nimasrn/payment-gateway/internal/gateways"
	"github.com/nimasrn/payment-gateway/internal/model"
	"github.com/valyala/fasthttp"
)

type Config struct {
	PortalURL string
	APIKey    string
	Timeout   time.Duration
}

// Client delivers webhook notifications to the admin portal. Delivery
// is best effort: failures are logged and counted, never retried, and
// never surfaced to the payment flow.
type Client struct {
	config *Config
	client *fasthttp.Client
}

func NewClient(config *Config) (*Client, error) {
	if config == nil || config.PortalURL == "" {
		return nil, errors.New("admin portal url is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
	}, nil
}

// paymentEvent is the portal's wire format. Amounts are in minor
// units (paise), matching the gateway's convention.
type paymentEvent struct {
	Event         string  `json:"event"`
	TransactionID string  `json:"transactionId"`
	OrderID       string  `json:"orderId"`
	PaymentID     string  `json:"paymentId,omitempty"`
	AmountPaise   int64   `json:"amountPaise"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	UserEmail     string  `json:"userEmail,omitempty"`
	RefundID      string  `json:"refundId,omitempty"`
	RefundPaise   int64   `json:"refundPaise,omitempty"`
	ErrorCode     string  `json:"errorCode,omitempty"`
	Timestamp     int64   `json:"timestamp"`
	Method        *string `json:"paymentMethod,omitempty"`
}

// NotifyPayment reports a payment outcome (success, failed, error) to
// the portal.
func (c *Client) NotifyPayment(txn *model.Transaction) error {
	event := paymentEvent{
		Event:         "payment." + string(txn.PaymentStatus),
		TransactionID: txn.TransactionID,
		OrderID:       txn.OrderID,
		AmountPaise:   gateway.MinorUnits(txn.Amount),
		Currency:      txn.Currency,
		Status:        string(txn.PaymentStatus),
		Timestamp:     time.Now().Unix(),
		Method:        txn.PaymentMethod,
	}
	if txn.PaymentID != nil {
		event.PaymentID = *txn.PaymentID
	}
	if txn.UserEmail != nil {
		event.UserEmail = *txn.UserEmail
	}
	if txn.ErrorCode != nil {
		event.ErrorCode = *txn.ErrorCode
	}

	return c.send("/api/payments/webhook", event)
}

// NotifyRefund reports a completed refund to the portal.
func (c *Client) NotifyRefund(txn *model.Transaction) error {
	event := paymentEvent{
		Event:         "payment.refunded",
		TransactionID: txn.TransactionID,
		OrderID:       txn.OrderID,
		AmountPaise:   gateway.MinorUnits(txn.Amount),
		Currency:      txn.Currency,
		Status:        string(txn.PaymentStatus),
		Timestamp:     time.Now().Unix(),
	}
	if txn.PaymentID != nil {
		event.PaymentID = *txn.PaymentID
	}
	if txn.RefundID != nil {
		event.RefundID = *txn.RefundID
	}
	if txn.RefundAmount != nil {
		event.RefundPaise = gateway.MinorUnits(*txn.RefundAmount)
	}
	if txn.UserEmail != nil {
		event.UserEmail = *txn.UserEmail
	}

	return c.send("/api/refunds/webhook", event)
}

func (c *Client) send(path string, event paymentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.PortalURL + path)
	req.Header.SetMethod("POST")
	req.Header.SetContentType("application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.SetBody(body)

	deadline := time.Now().Add(c.config.Timeout)
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode())
	}

	return nil
}
