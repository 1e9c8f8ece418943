package markets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/polysentry/polysentry/internal/arbitrage"
	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

const (
	// MaxBatchSize is the maximum number of markets per Gamma API request.
	MaxBatchSize = 100
)

// Client is an HTTP client for the Gamma (market discovery) and CLOB
// (orderbook) APIs.
type Client struct {
	gammaURL   string
	clobURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new markets client.
func NewClient(gammaURL, clobURL string, logger *zap.Logger) *Client {
	return &Client{
		gammaURL: gammaURL,
		clobURL:  clobURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchActiveMarkets fetches active markets with automatic pagination.
// limit == 0 fetches all available markets.
func (c *Client) FetchActiveMarkets(ctx context.Context, limit int) (*types.MarketsResponse, error) {
	var (
		allMarkets   []types.Market
		offset       = 0
		totalFetched = 0
		fetchAll     = limit == 0
	)

	for {
		pageSize := MaxBatchSize
		if !fetchAll {
			remaining := limit - totalFetched
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		page, err := c.fetchPage(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch markets page at offset %d: %w", offset, err)
		}

		allMarkets = append(allMarkets, page...)
		totalFetched += len(page)

		if len(page) < pageSize {
			break
		}
		if !fetchAll && totalFetched >= limit {
			break
		}
		offset += pageSize
	}

	c.logger.Debug("fetched-markets", zap.Int("count", totalFetched))

	return &types.MarketsResponse{
		Data:  allMarkets,
		Count: len(allMarkets),
		Limit: limit,
	}, nil
}

func (c *Client) fetchPage(ctx context.Context, limit, offset int) ([]types.Market, error) {
	params := url.Values{}
	params.Add("closed", "false")
	params.Add("active", "true")
	params.Add("limit", strconv.Itoa(limit))
	params.Add("offset", strconv.Itoa(offset))
	params.Add("order", "volume24hr")
	params.Add("ascending", "false")

	requestURL := fmt.Sprintf("%s/markets?%s", c.gammaURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polysentry/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		MarketFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		MarketFetchErrorsTotal.Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// The Gamma API returns a bare array.
	var markets []types.Market
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return markets, nil
}

// TradeableMarketIDs returns the IDs of currently active, non-closed
// markets that have a full token set. Satisfies the allowlist source
// interface.
func (c *Client) TradeableMarketIDs(ctx context.Context) ([]string, error) {
	resp, err := c.FetchActiveMarkets(ctx, 0)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Data))
	for i := range resp.Data {
		m := &resp.Data[i]
		if m.Closed || !m.Active || len(m.Tokens) < 2 {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// bookLevel is one price level in a CLOB orderbook response.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	Market string      `json:"market"`
	Asks   []bookLevel `json:"asks"`
	Bids   []bookLevel `json:"bids"`
}

// FetchMarketPrices fetches the best ask for each outcome token of a
// market and assembles them into detector input. Tokens with no asks
// are skipped.
func (c *Client) FetchMarketPrices(ctx context.Context, m *types.Market) (*arbitrage.MarketPrices, error) {
	prices := &arbitrage.MarketPrices{
		MarketID: m.ID,
		Outcomes: make([]arbitrage.OutcomePrice, 0, len(m.Tokens)),
	}

	for _, token := range m.Tokens {
		ask, liquidity, err := c.fetchBestAsk(ctx, token.TokenID)
		if err != nil {
			c.logger.Debug("skipping-token-no-book",
				zap.String("token-id", token.TokenID),
				zap.Error(err))
			continue
		}
		prices.Outcomes = append(prices.Outcomes, arbitrage.OutcomePrice{
			TokenID:   token.TokenID,
			Outcome:   token.Outcome,
			Price:     ask,
			Liquidity: liquidity,
		})
	}

	if len(prices.Outcomes) == 0 {
		return nil, fmt.Errorf("no orderbook data for market %s", m.ID)
	}
	return prices, nil
}

func (c *Client) fetchBestAsk(ctx context.Context, tokenID string) (price, size float64, err error) {
	endpoint := fmt.Sprintf("%s/book?token_id=%s", c.clobURL, tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polysentry/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, 0, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("read response body: %w", err)
	}

	var book bookResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return 0, 0, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(book.Asks) == 0 {
		return 0, 0, fmt.Errorf("no asks in orderbook")
	}

	// The CLOB API returns asks sorted worst-first; the best ask is last.
	best := book.Asks[len(book.Asks)-1]
	price, err = strconv.ParseFloat(best.Price, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse ask price: %w", err)
	}
	size, err = strconv.ParseFloat(best.Size, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse ask size: %w", err)
	}

	return price, size, nil
}
