package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/goccy/go-json"

	"github.com/polysentry/polysentry/internal/execution"
	"github.com/polysentry/polysentry/pkg/types"
)

// MockSubmitter is a scriptable execution.OrderSubmitter. Calls pop
// responses from the front of Responses; when the script runs out the
// submitter fills at the requested price and size.
type MockSubmitter struct {
	mu        sync.Mutex
	Responses []SubmitResponse
	Calls     []SubmitCall
}

// SubmitResponse is one scripted outcome for a SubmitMarketOrder call.
type SubmitResponse struct {
	Ack *execution.OrderAck
	Err error
}

// SubmitCall records the arguments of one SubmitMarketOrder call.
type SubmitCall struct {
	TokenID string
	Side    types.Side
	Price   float64
	Size    float64
}

func (m *MockSubmitter) SubmitMarketOrder(_ context.Context, tokenID string, side types.Side, price, size float64) (*execution.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, SubmitCall{TokenID: tokenID, Side: side, Price: price, Size: size})

	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		if resp.Err != nil {
			return nil, resp.Err
		}
		if resp.Ack != nil {
			return resp.Ack, nil
		}
	}

	return &execution.OrderAck{
		OrderID: "mock-order",
		Price:   price,
		Size:    size,
		Status:  "matched",
	}, nil
}

// CallCount returns the number of SubmitMarketOrder calls so far.
func (m *MockSubmitter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockGammaAPI is an httptest server that serves a fixed set of markets
// on /markets, honoring the offset query parameter the client uses for
// pagination.
type MockGammaAPI struct {
	Server  *httptest.Server
	Markets []*types.Market
}

// NewMockGammaAPI creates a mock Gamma API serving the given markets.
func NewMockGammaAPI(markets []*types.Market) *MockGammaAPI {
	mock := &MockGammaAPI{Markets: markets}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handleMarkets))
	return mock
}

func (m *MockGammaAPI) handleMarkets(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "bad offset", http.StatusBadRequest)
			return
		}
		offset = n
	}

	limit := len(m.Markets)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	page := []*types.Market{}
	if offset < len(m.Markets) {
		page = m.Markets[offset:]
		if len(page) > limit {
			page = page[:limit]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

// Close shuts down the underlying test server.
func (m *MockGammaAPI) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockGammaAPI) URL() string {
	return m.Server.URL
}
