package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polysentry/polysentry/pkg/types"
)

// Throwaway key, never funded.
const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testSecret() string {
	return base64.URLEncoding.EncodeToString([]byte("test-hmac-secret"))
}

func newOrderClient(t *testing.T, baseURL, proxyAddress string) *OrderClient {
	t.Helper()
	c, err := NewOrderClient(&OrderClientConfig{
		BaseURL:      baseURL,
		APIKey:       "api-key-1",
		Secret:       testSecret(),
		Passphrase:   "passphrase-1",
		PrivateKey:   testPrivateKey,
		ProxyAddress: proxyAddress,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestNewOrderClient_DerivesAddress(t *testing.T) {
	c := newOrderClient(t, "http://localhost", "")
	assert.Equal(t, testAddress, c.address)

	_, err := NewOrderClient(&OrderClientConfig{PrivateKey: "not-a-key", Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestSubmitMarketOrder_SignsAndPosts(t *testing.T) {
	var captured struct {
		path    string
		headers http.Header
		body    []byte
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured.body = body

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderID": "ord-1", "status": "matched", "price": "0.50", "size": "25"}`))
	}))
	defer server.Close()

	c := newOrderClient(t, server.URL, "")

	ack, err := c.SubmitMarketOrder(context.Background(), "123456", types.SideBuy, 0.50, 25)
	require.NoError(t, err)

	assert.Equal(t, "ord-1", ack.OrderID)
	assert.Equal(t, "matched", ack.Status)
	assert.Equal(t, 0.50, ack.Price)
	assert.Equal(t, 25.0, ack.Size)

	assert.Equal(t, "/order", captured.path)
	assert.Equal(t, "api-key-1", captured.headers.Get("POLY_API_KEY"))
	assert.Equal(t, "passphrase-1", captured.headers.Get("POLY_PASSPHRASE"))
	assert.Equal(t, testAddress, captured.headers.Get("POLY_ADDRESS"))

	// The HMAC covers timestamp, method, path and body.
	secretBytes, err := base64.URLEncoding.DecodeString(testSecret())
	require.NoError(t, err)
	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(captured.headers.Get("POLY_TIMESTAMP") + http.MethodPost + "/order" + string(captured.body)))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, captured.headers.Get("POLY_SIGNATURE"))

	var req struct {
		Order     signedOrderJSON `json:"order"`
		Owner     string          `json:"owner"`
		OrderType string          `json:"orderType"`
	}
	require.NoError(t, json.Unmarshal(captured.body, &req))

	assert.Equal(t, "api-key-1", req.Owner, "owner is the API key, not the maker")
	assert.Equal(t, "GTC", req.OrderType)
	assert.Equal(t, "BUY", req.Order.Side)
	assert.Equal(t, "123456", req.Order.TokenID)
	assert.Equal(t, testAddress, req.Order.Maker)
	assert.Equal(t, testAddress, req.Order.Signer)
	assert.Equal(t, "25000000", req.Order.MakerAmount, "25 USD in 6-decimal units")
	assert.Equal(t, "50000000", req.Order.TakerAmount, "25 / 0.50 shares in 6-decimal units")
	assert.True(t, strings.HasPrefix(req.Order.Signature, "0x"))
	assert.NotEqual(t, "0x", req.Order.Signature)
}

func TestSubmitMarketOrder_ProxyAddressIsMaker(t *testing.T) {
	proxy := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	var order signedOrderJSON
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Order signedOrderJSON `json:"order"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		order = req.Order
		_, _ = w.Write([]byte(`{"orderID": "ord-1", "status": "matched", "price": "0.50", "size": "25"}`))
	}))
	defer server.Close()

	c := newOrderClient(t, server.URL, proxy)

	_, err := c.SubmitMarketOrder(context.Background(), "123456", types.SideSell, 0.50, 25)
	require.NoError(t, err)

	assert.Equal(t, proxy, order.Maker)
	assert.Equal(t, testAddress, order.Signer, "the EOA still signs for the proxy")
	assert.Equal(t, "SELL", order.Side)
}

func TestSubmitMarketOrder_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"rejected order", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := newOrderClient(t, server.URL, "")

			_, err := c.SubmitMarketOrder(context.Background(), "123456", types.SideBuy, 0.50, 25)
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, types.IsTransient(err))
			if !tt.wantTransient {
				var orderErr *types.OrderError
				require.ErrorAs(t, err, &orderErr)
				assert.Equal(t, "HTTP_400", orderErr.Code)
			}
		})
	}
}

func TestSubmitMarketOrder_NetworkFailureIsTransient(t *testing.T) {
	c := newOrderClient(t, "http://127.0.0.1:1", "")

	_, err := c.SubmitMarketOrder(context.Background(), "123456", types.SideBuy, 0.50, 25)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}
