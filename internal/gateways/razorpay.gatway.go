package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nimasrn/payment-gateway/pkg/logger"
	"github.com/nimasrn/payment-gateway/pkg/prom"
	"github.com/valyala/fasthttp"
)

// ErrorKind classifies upstream failures so callers can decide between
// retry, reject and surface.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindGateway    ErrorKind = "gateway"
)

// Error is a failure reported by (or on the way to) the payment
// gateway. Status is the upstream HTTP status, 0 for transport errors.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s error (status %d): %s", e.Kind, e.Status, e.Message)
}

func IsNotFound(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindNotFound
}

func IsValidation(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindValidation
}

func IsAuth(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindAuth
}

// Order is the gateway-side record of an intended payment. Amount is
// in minor units (paise for INR), the gateway's convention.
type Order struct {
	ID        string            `json:"id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Receipt   string            `json:"receipt"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// Payment is the gateway-side record of a funds-movement attempt.
type Payment struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	Email     string `json:"email,omitempty"`
	Contact   string `json:"contact,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type Refund struct {
	ID        string            `json:"id"`
	PaymentID string            `json:"payment_id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type Config struct {
	BaseURL         string
	KeyID           string
	KeySecret       string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

// Client talks to the Razorpay-compatible REST API. It is the only
// component that knows the gateway's wire conventions (basic auth,
// minor-unit amounts). It never decides trust: signature verification
// is a separate, local step.
type Client struct {
	config     *Config
	client     *fasthttp.Client
	authHeader string
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if config.KeyID == "" || config.KeySecret == "" {
		return nil, errors.New("gateway api credentials are required")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxConns == 0 {
		config.MaxConns = 100
	}

	httpClient := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
	}

	creds := base64.StdEncoding.EncodeToString([]byte(config.KeyID + ":" + config.KeySecret))

	logger.Info("Payment gateway client initialized", "base_url", config.BaseURL, "timeout", config.Timeout)

	return &Client{
		config:     config,
		client:     httpClient,
		authHeader: "Basic " + creds,
	}, nil
}

// MinorUnits converts a major-unit amount (e.g. rupees) to the
// gateway's minor-unit convention (paise).
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// MajorUnits converts a gateway minor-unit amount back to major units.
func MajorUnits(amount int64) float64 {
	return float64(amount) / 100
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder registers a new order for amount (major units) with the
// gateway. On error the caller must not assume a partial order exists.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency string, notes map[string]string) (*Order, error) {
	req := createOrderRequest{
		Amount:   MinorUnits(amount),
		Currency: currency,
		Receipt:  fmt.Sprintf("receipt_%d", time.Now().UnixMilli()),
		Notes:    notes,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	response, err := c.doRequest(ctx, "createOrder", "POST", "/v1/orders", body)
	if err != nil {
		return nil, err
	}

	var order Order
	if err := json.Unmarshal(response, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	logger.Info("Gateway order created", "order_id", order.ID, "amount", order.Amount, "currency", order.Currency)

	return &order, nil
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	response, err := c.doRequest(ctx, "fetchOrder", "GET", "/v1/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}

	var order Order
	if err := json.Unmarshal(response, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	return &order, nil
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	response, err := c.doRequest(ctx, "fetchPayment", "GET", "/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}

	var payment Payment
	if err := json.Unmarshal(response, &payment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	return &payment, nil
}

type createRefundRequest struct {
	Amount int64 `json:"amount,omitempty"`
}

// CreateRefund issues a refund against paymentID. A nil amount asks
// the gateway for a full refund.
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amount *float64) (*Refund, error) {
	req := createRefundRequest{}
	if amount != nil {
		req.Amount = MinorUnits(*amount)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refund request: %w", err)
	}

	response, err := c.doRequest(ctx, "createRefund", "POST", "/v1/payments/"+paymentID+"/refund", body)
	if err != nil {
		return nil, err
	}

	var refund Refund
	if err := json.Unmarshal(response, &refund); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refund: %w", err)
	}

	logger.Info("Gateway refund created", "refund_id", refund.ID, "payment_id", paymentID, "amount", refund.Amount)

	return &refund, nil
}

type upstreamError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// doRequest performs one HTTP round-trip and maps the outcome onto the
// error taxonomy.
func (c *Client) doRequest(ctx context.Context, operation, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", c.authHeader)

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	startTime := time.Now()
	err := c.client.DoDeadline(req, resp, deadline)
	prom.ObserveGatewayDuration(operation, time.Since(startTime).Seconds())

	if err != nil {
		return nil, &Error{Kind: KindGateway, Message: err.Error()}
	}

	statusCode := resp.StatusCode()
	if statusCode >= fasthttp.StatusOK && statusCode < 300 {
		result := make([]byte, len(resp.Body()))
		copy(result, resp.Body())
		return result, nil
	}

	message := upstreamMessage(resp.Body())

	switch {
	case statusCode == fasthttp.StatusUnauthorized || statusCode == fasthttp.StatusForbidden:
		return nil, &Error{Kind: KindAuth, Status: statusCode, Message: message}
	case statusCode == fasthttp.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, Status: statusCode, Message: message}
	case statusCode == fasthttp.StatusBadRequest || statusCode == fasthttp.StatusUnprocessableEntity:
		return nil, &Error{Kind: KindValidation, Status: statusCode, Message: message}
	default:
		return nil, &Error{Kind: KindGateway, Status: statusCode, Message: message}
	}
}

func upstreamMessage(body []byte) string {
	var ue upstreamError
	if err := json.Unmarshal(body, &ue); err == nil && ue.Error.Description != "" {
		return ue.Error.Description
	}
	if len(body) > 0 {
		return string(body)
	}
	return "upstream error"
}
