package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nimasrn/payment-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransaction() *model.Transaction {
	paymentID := "pay_xyz"
	email := "user@example.com"
	return &model.Transaction{
		TransactionID: "txn_1",
		OrderID:       "order_abc",
		PaymentID:     &paymentID,
		Amount:        500,
		Currency:      "INR",
		PaymentStatus: model.StatusSuccess,
		UserEmail:     &email,
	}
}

func TestClient_NotifyPayment(t *testing.T) {
	var gotPath, gotKey string
	var gotEvent map[string]interface{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	client, err := NewClient(&Config{PortalURL: ts.URL, APIKey: "portal_key", Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, client.NotifyPayment(testTransaction()))

	assert.Equal(t, "/api/payments/webhook", gotPath)
	assert.Equal(t, "portal_key", gotKey)
	assert.Equal(t, "payment.success", gotEvent["event"])
	assert.Equal(t, "order_abc", gotEvent["orderId"])
	assert.Equal(t, "pay_xyz", gotEvent["paymentId"])
	assert.Equal(t, float64(50000), gotEvent["amountPaise"], "amount must be reported in paise")
	assert.Equal(t, "user@example.com", gotEvent["userEmail"])
}

func TestClient_NotifyRefund(t *testing.T) {
	var gotPath string
	var gotEvent map[string]interface{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	client, err := NewClient(&Config{PortalURL: ts.URL, APIKey: "portal_key", Timeout: time.Second})
	require.NoError(t, err)

	txn := testTransaction()
	txn.PaymentStatus = model.StatusRefunded
	refundID := "rfnd_1"
	refundAmount := 250.0
	txn.RefundID = &refundID
	txn.RefundAmount = &refundAmount

	require.NoError(t, client.NotifyRefund(txn))

	assert.Equal(t, "/api/refunds/webhook", gotPath)
	assert.Equal(t, "payment.refunded", gotEvent["event"])
	assert.Equal(t, "rfnd_1", gotEvent["refundId"])
	assert.Equal(t, float64(25000), gotEvent["refundPaise"])
}

func TestClient_DeliveryFailures(t *testing.T) {
	t.Run("portal rejects", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(ts.Close)

		client, err := NewClient(&Config{PortalURL: ts.URL, APIKey: "wrong", Timeout: time.Second})
		require.NoError(t, err)

		err = client.NotifyPayment(testTransaction())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("portal unreachable", func(t *testing.T) {
		client, err := NewClient(&Config{PortalURL: "http://127.0.0.1:1", APIKey: "k", Timeout: 200 * time.Millisecond})
		require.NoError(t, err)
		assert.Error(t, client.NotifyPayment(testTransaction()))
	})
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&Config{APIKey: "k"})
	assert.Error(t, err)
}

func TestDispatcher_DeliversAsync(t *testing.T) {
	delivered := make(chan string, 4)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		delivered <- r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	client, err := NewClient(&Config{PortalURL: ts.URL, APIKey: "k", Timeout: time.Second})
	require.NoError(t, err)

	dispatcher := NewDispatcher(client, 16, 2)
	go dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	dispatcher.DispatchPayment(testTransaction())
	dispatcher.DispatchRefund(testTransaction())

	paths := make(map[string]int)
	for i := 0; i < 2; i++ {
		select {
		case p := <-delivered:
			paths[p]++
		case <-time.After(2 * time.Second):
			t.Fatal("notification not delivered")
		}
	}
	assert.Equal(t, 1, paths["/api/payments/webhook"])
	assert.Equal(t, 1, paths["/api/refunds/webhook"])
}

func TestDispatcher_FullBufferDropsNotBlocks(t *testing.T) {
	client, err := NewClient(&Config{PortalURL: "http://127.0.0.1:1", APIKey: "k", Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	// No workers started, so the buffer never drains.
	dispatcher := NewDispatcher(client, 1, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			dispatcher.DispatchPayment(testTransaction())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue must never block the caller")
	}
}
