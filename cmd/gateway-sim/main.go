package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimasrn/payment-gateway/internal/signature"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// A Razorpay-compatible mock gateway for local development. It keeps
// orders, payments and refunds in memory and can simulate a checkout,
// returning the callback fields (payment id + signature) a real
// checkout page would post back.

type Order struct {
	ID        string            `json:"id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Receipt   string            `json:"receipt"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

type Payment struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	CreatedAt int64  `json:"created_at"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// MockGateway simulates the payment provider's order/payment/refund
// book.
type MockGateway struct {
	mu       sync.RWMutex
	orders   map[string]*Order
	payments map[string]*Payment
	refunds  map[string]*Refund

	signer      *signature.Verifier
	successRate float64
	rng         *rand.Rand
}

func NewMockGateway(secret string, successRate float64) (*MockGateway, error) {
	signer, err := signature.NewVerifier([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &MockGateway{
		orders:      make(map[string]*Order),
		payments:    make(map[string]*Payment),
		refunds:     make(map[string]*Refund),
		signer:      signer,
		successRate: successRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

type Handler struct {
	gw *MockGateway
}

func NewHandler(gw *MockGateway) *Handler {
	return &Handler{gw: gw}
}

func gatewayError(c *gin.Context, status int, code, description string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":        code,
			"description": description,
		},
	})
}

type createOrderRequest struct {
	Amount   int64             `json:"amount" binding:"required"`
	Currency string            `json:"currency" binding:"required"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		gatewayError(c, http.StatusBadRequest, "BAD_REQUEST_ERROR", err.Error())
		return
	}
	if req.Amount <= 0 {
		gatewayError(c, http.StatusBadRequest, "BAD_REQUEST_ERROR", "amount must be at least 1")
		return
	}

	order := &Order{
		ID:        "order_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14],
		Amount:    req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    "created",
		Notes:     req.Notes,
		CreatedAt: time.Now().Unix(),
	}

	h.gw.mu.Lock()
	h.gw.orders[order.ID] = order
	h.gw.mu.Unlock()

	log.Info().
		Str("order_id", order.ID).
		Int64("amount", order.Amount).
		Str("currency", order.Currency).
		Msg("Order created")

	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	h.gw.mu.RLock()
	order, ok := h.gw.orders[c.Param("order_id")]
	h.gw.mu.RUnlock()

	if !ok {
		gatewayError(c, http.StatusNotFound, "BAD_REQUEST_ERROR", "order does not exist")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetPayment(c *gin.Context) {
	h.gw.mu.RLock()
	payment, ok := h.gw.payments[c.Param("payment_id")]
	h.gw.mu.RUnlock()

	if !ok {
		gatewayError(c, http.StatusNotFound, "BAD_REQUEST_ERROR", "payment does not exist")
		return
	}
	c.JSON(http.StatusOK, payment)
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) CreateRefund(c *gin.Context) {
	paymentID := c.Param("payment_id")

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		gatewayError(c, http.StatusBadRequest, "BAD_REQUEST_ERROR", err.Error())
		return
	}

	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()

	payment, ok := h.gw.payments[paymentID]
	if !ok {
		gatewayError(c, http.StatusNotFound, "BAD_REQUEST_ERROR", "payment does not exist")
		return
	}
	if payment.Status == "refunded" {
		gatewayError(c, http.StatusBadRequest, "BAD_REQUEST_ERROR", "payment has already been refunded")
		return
	}

	amount := req.Amount
	if amount == 0 {
		amount = payment.Amount
	}
	if amount > payment.Amount {
		gatewayError(c, http.StatusBadRequest, "BAD_REQUEST_ERROR", "refund amount exceeds payment amount")
		return
	}

	refund := &Refund{
		ID:        "rfnd_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14],
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  payment.Currency,
		Status:    "processed",
		CreatedAt: time.Now().Unix(),
	}
	h.gw.refunds[refund.ID] = refund
	payment.Status = "refunded"

	log.Info().
		Str("refund_id", refund.ID).
		Str("payment_id", paymentID).
		Int64("amount", amount).
		Msg("Refund processed")

	c.JSON(http.StatusOK, refund)
}

type checkoutResponse struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	Method            string `json:"method"`
}

// Checkout simulates a customer completing payment for an order and
// returns the callback triple the checkout page would post to the
// broker's verify endpoint.
func (h *Handler) Checkout(c *gin.Context) {
	orderID := c.Param("order_id")

	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()

	order, ok := h.gw.orders[orderID]
	if !ok {
		gatewayError(c, http.StatusNotFound, "BAD_REQUEST_ERROR", "order does not exist")
		return
	}

	if h.gw.rng.Float64() >= h.gw.successRate {
		order.Status = "attempted"
		gatewayError(c, http.StatusBadRequest, "PAYMENT_FAILED", "customer payment failed")
		return
	}

	methods := []string{"card", "upi", "netbanking", "wallet"}
	payment := &Payment{
		ID:        "pay_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14],
		OrderID:   order.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Status:    "captured",
		Method:    methods[h.gw.rng.Intn(len(methods))],
		CreatedAt: time.Now().Unix(),
	}
	h.gw.payments[payment.ID] = payment
	order.Status = "paid"

	log.Info().
		Str("order_id", order.ID).
		Str("payment_id", payment.ID).
		Str("method", payment.Method).
		Msg("Checkout completed")

	c.JSON(http.StatusOK, checkoutResponse{
		RazorpayOrderID:   order.ID,
		RazorpayPaymentID: payment.ID,
		RazorpaySignature: h.gw.signer.Sign(order.ID, payment.ID),
		Method:            payment.Method,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// basicAuth rejects requests that do not carry the configured key pair,
// mirroring the real gateway's credential check.
func basicAuth(keyID, keySecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || user != keyID || pass != keySecret {
			gatewayError(c, http.StatusUnauthorized, "BAD_REQUEST_ERROR", "authentication failed")
			c.Abort()
			return
		}
		c.Next()
	}
}

func SetupRouter(handler *Handler, keyID, keySecret string) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/v1", basicAuth(keyID, keySecret))
	{
		v1.POST("/orders", handler.CreateOrder)
		v1.GET("/orders/:order_id", handler.GetOrder)
		v1.GET("/payments/:payment_id", handler.GetPayment)
		v1.POST("/payments/:payment_id/refund", handler.CreateRefund)
	}

	// dev helper, no auth: simulate the customer side of checkout
	router.POST("/simulate/checkout/:order_id", handler.Checkout)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8090")
	keyID := getEnv("RAZORPAY_KEY_ID", "rzp_test_key")
	keySecret := getEnv("RAZORPAY_KEY_SECRET", "rzp_test_secret")
	successRate := getEnvFloat("SUCCESS_RATE", 1)

	log.Info().
		Str("port", port).
		Str("key_id", keyID).
		Float64("success_rate", successRate).
		Msg("Starting mock payment gateway")

	gw, err := NewMockGateway(keySecret, successRate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create mock gateway")
	}
	handler := NewHandler(gw)
	router := SetupRouter(handler, keyID, keySecret)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
