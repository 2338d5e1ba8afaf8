package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	gateway "github.com/nimasrn/payment-gateway/internal/gateways"
	"github.com/nimasrn/payment-gateway/internal/model"
	"github.com/nimasrn/payment-gateway/internal/services"
	xhttp "github.com/nimasrn/payment-gateway/pkg/http"
)

type PaymentService interface {
	CreateOrder(ctx context.Context, p model.CreateOrderRequest) (*services.CreateOrderResult, error)
	VerifyPayment(ctx context.Context, p model.VerifyPaymentRequest) (*model.Transaction, error)
	GetOrderStatus(ctx context.Context, orderID string) (*services.OrderStatus, error)
	Refund(ctx context.Context, paymentID string, amount *float64) (*services.RefundResult, error)
	GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int64, error)
	Stats(ctx context.Context, from, to *time.Time) (*model.TransactionStats, error)
}

type PaymentHandler struct {
	svc PaymentService
}

func RegisterPaymentRoutes(e *router.Group, h *PaymentHandler) {
	e.POST("/payment/create-order", h.CreateOrder)
	e.POST("/payment/verify-payment", h.VerifyPayment)
	e.POST("/payment/refund", h.Refund)
	e.GET("/payment/order-status/{orderId}", h.GetOrderStatus)
	e.GET("/payment/transaction/{transactionId}", h.GetTransaction)
	e.GET("/payment/transactions", h.ListTransactions)
	e.GET("/payment/user-transactions/{userId}", h.ListUserTransactions)
	e.GET("/payment/stats", h.GetStats)
}

func NewPaymentHandler(paymentService PaymentService) *PaymentHandler {
	return &PaymentHandler{
		svc: paymentService,
	}
}

type createOrderRequest struct {
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata"`
	UserID    *string           `json:"userId"`
	UserEmail *string           `json:"userEmail"`
	UserPhone *string           `json:"userPhone"`
}

type createOrderResponse struct {
	Order         interface{} `json:"order"`
	TransactionID *string     `json:"transactionId"`
}

type verifyPaymentRequest struct {
	OrderID       string `json:"razorpay_order_id"`
	PaymentID     string `json:"razorpay_payment_id"`
	Signature     string `json:"razorpay_signature"`
	PaymentMethod string `json:"payment_method"`
}

type verifyPaymentResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

type refundRequest struct {
	PaymentID string   `json:"paymentId"`
	Amount    *float64 `json:"amount"`
}

type refundResponse struct {
	Success     bool               `json:"success"`
	Refund      interface{}        `json:"refund"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

type listTransactionsResponse struct {
	Items []*model.Transaction `json:"items"`
	Total int64                `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *PaymentHandler) CreateOrder(ctx *xhttp.RequestCtx) {
	var req createOrderRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	result, err := h.svc.CreateOrder(ctx, model.CreateOrderRequest{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		UserPhone: req.UserPhone,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	resp := createOrderResponse{Order: result.Order}
	if result.Transaction != nil {
		resp.TransactionID = &result.Transaction.TransactionID
	}
	writeJSON(ctx, 201, resp)
}

func (h *PaymentHandler) VerifyPayment(ctx *xhttp.RequestCtx) {
	var req verifyPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.svc.VerifyPayment(ctx, model.VerifyPaymentRequest{
		OrderID:       req.OrderID,
		PaymentID:     req.PaymentID,
		Signature:     req.Signature,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		if errors.Is(err, services.ErrSignatureMismatch) {
			writeJSON(ctx, 400, map[string]interface{}{
				"success": false,
				"error":   "payment signature verification failed",
			})
			return
		}
		writeServiceError(ctx, err)
		return
	}

	writeJSON(ctx, 200, verifyPaymentResponse{
		Success:     true,
		Message:     "payment verified successfully",
		Transaction: txn,
	})
}

func (h *PaymentHandler) GetOrderStatus(ctx *xhttp.RequestCtx) {
	orderID, ok := ctx.UserValue("orderId").(string)
	if !ok || orderID == "" {
		writeError(ctx, 400, "order id is required")
		return
	}

	status, err := h.svc.GetOrderStatus(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, status)
}

func (h *PaymentHandler) Refund(ctx *xhttp.RequestCtx) {
	var req refundRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.PaymentID == "" {
		writeError(ctx, 400, "payment id is required")
		return
	}

	result, err := h.svc.Refund(ctx, req.PaymentID, req.Amount)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	writeJSON(ctx, 200, refundResponse{
		Success:     true,
		Refund:      result.Refund,
		Transaction: result.Transaction,
	})
}

func (h *PaymentHandler) GetTransaction(ctx *xhttp.RequestCtx) {
	transactionID, ok := ctx.UserValue("transactionId").(string)
	if !ok || transactionID == "" {
		writeError(ctx, 400, "transaction id is required")
		return
	}

	txn, err := h.svc.GetTransaction(ctx, transactionID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, txn)
}

func (h *PaymentHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	var f model.TransactionFilter

	if v := query(ctx, "status"); v != "" {
		status := model.TransactionStatus(v)
		f.Status = &status
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, listTransactionsResponse{Items: items, Total: total})
}

func (h *PaymentHandler) ListUserTransactions(ctx *xhttp.RequestCtx) {
	userID, ok := ctx.UserValue("userId").(string)
	if !ok || userID == "" {
		writeError(ctx, 400, "user id is required")
		return
	}

	limit, offset := 0, 0
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			offset = n
		}
	}

	items, total, err := h.svc.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, listTransactionsResponse{Items: items, Total: total})
}

func (h *PaymentHandler) GetStats(ctx *xhttp.RequestCtx) {
	var from, to *time.Time

	if v := query(ctx, "startDate"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(ctx, 400, "invalid startDate")
			return
		}
		from = &t
	}
	if v := query(ctx, "endDate"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(ctx, 400, "invalid endDate")
			return
		}
		to = &t
	}

	stats, err := h.svc.Stats(ctx, from, to)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, stats)
}

/* -------------------------------- Helpers ----------------------------------- */

// writeServiceError maps service and gateway failures onto HTTP codes.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrTransactionNotFound):
		writeError(ctx, 404, err.Error())
	case errors.Is(err, services.ErrAlreadyProcessed):
		writeError(ctx, 400, err.Error())
	case errors.Is(err, services.ErrVerificationInProgress):
		writeError(ctx, 409, err.Error())
	case gateway.IsValidation(err):
		writeError(ctx, 400, err.Error())
	case gateway.IsNotFound(err):
		writeError(ctx, 404, err.Error())
	case isGatewayError(err):
		writeError(ctx, 502, err.Error())
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrMissingOrderID),
		errors.Is(err, model.ErrMissingPaymentID),
		errors.Is(err, model.ErrMissingSignature):
		writeError(ctx, 400, err.Error())
	default:
		writeError(ctx, 500, err.Error())
	}
}

func isGatewayError(err error) bool {
	var ge *gateway.Error
	return errors.As(err, &ge)
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
