package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := NewClient(&Config{
		BaseURL:   ts.URL,
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)

	return client, ts
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&Config{KeyID: "k", KeySecret: "s"})
	assert.Error(t, err)

	_, err = NewClient(&Config{BaseURL: "http://localhost:1234"})
	assert.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), MinorUnits(500))
	assert.Equal(t, int64(12345), MinorUnits(123.45))
	assert.Equal(t, int64(10), MinorUnits(0.1))
	assert.Equal(t, float64(500), MajorUnits(50000))
}

func TestClient_CreateOrder(t *testing.T) {
	var gotBody createOrderRequest
	var gotAuth string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/v1/orders", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(Order{
			ID:       "order_abc",
			Amount:   gotBody.Amount,
			Currency: gotBody.Currency,
			Receipt:  gotBody.Receipt,
			Status:   "created",
			Notes:    gotBody.Notes,
		})
	}))

	order, err := client.CreateOrder(context.Background(), 500, "INR", map[string]string{"plan": "gold"})
	require.NoError(t, err)

	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(50000), order.Amount, "amount must be converted to minor units")
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "gold", order.Notes["plan"])
	assert.NotEmpty(t, gotBody.Receipt)
	assert.Contains(t, gotAuth, "Basic ")
}

func TestClient_FetchOrder_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"order does not exist"}}`))
	}))

	_, err := client.FetchOrder(context.Background(), "order_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "order does not exist")
}

func TestClient_AuthError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","description":"invalid api key"}}`))
	}))

	_, err := client.FetchPayment(context.Background(), "pay_xyz")
	require.Error(t, err)
	assert.True(t, IsAuth(err))
}

func TestClient_ValidationError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	}))

	_, err := client.CreateOrder(context.Background(), 10_000_000, "INR", nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestClient_GatewayError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.FetchOrder(context.Background(), "order_abc")
	require.Error(t, err)
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindGateway, ge.Kind)
	assert.Equal(t, http.StatusInternalServerError, ge.Status)
}

func TestClient_CreateRefund(t *testing.T) {
	t.Run("partial refund sends minor units", func(t *testing.T) {
		var gotBody map[string]interface{}
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/payments/pay_xyz/refund", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			json.NewEncoder(w).Encode(Refund{ID: "rfnd_1", PaymentID: "pay_xyz", Amount: 25000, Currency: "INR"})
		}))

		amount := 250.0
		refund, err := client.CreateRefund(context.Background(), "pay_xyz", &amount)
		require.NoError(t, err)
		assert.Equal(t, "rfnd_1", refund.ID)
		assert.Equal(t, float64(25000), gotBody["amount"])
	})

	t.Run("nil amount omits the field for a full refund", func(t *testing.T) {
		var gotBody map[string]interface{}
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			json.NewEncoder(w).Encode(Refund{ID: "rfnd_2", PaymentID: "pay_xyz", Amount: 50000, Currency: "INR"})
		}))

		refund, err := client.CreateRefund(context.Background(), "pay_xyz", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(50000), refund.Amount)
		_, hasAmount := gotBody["amount"]
		assert.False(t, hasAmount)
	})
}

func TestClient_TransportError(t *testing.T) {
	client, err := NewClient(&Config{
		BaseURL:   "http://127.0.0.1:1",
		KeyID:     "k",
		KeySecret: "s",
		Timeout:   200 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.FetchOrder(context.Background(), "order_abc")
	require.Error(t, err)
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindGateway, ge.Kind)
	assert.Equal(t, 0, ge.Status)
}
