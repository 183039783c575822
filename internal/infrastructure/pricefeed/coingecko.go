package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/shopspring/decimal"
)

const (
	DefaultURL = "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"

	defaultTimeout = 5 * time.Second
)

// httpService queries a coingecko compatible simple-price endpoint.
type httpService struct {
	url     string
	coin    string
	client  *http.Client
	timeout time.Duration
}

func NewCoingeckoService(endpoint string) (ports.PriceFeed, error) {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid price url: %w", err)
	}
	coin := strings.Split(u.Query().Get("ids"), ",")[0]

	return &httpService{
		url:     endpoint,
		coin:    coin,
		client:  &http.Client{},
		timeout: defaultTimeout,
	}, nil
}

func (s *httpService) NativeUSDPrice(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return decimal.Zero, fmt.Errorf(
			"unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)),
		)
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&prices); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price: %w", err)
	}

	quotes, ok := prices[s.coin]
	if !ok && s.coin == "" {
		for _, q := range prices {
			quotes, ok = q, true
			break
		}
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("price for %q missing from response", s.coin)
	}
	price, ok := quotes["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("usd quote missing from response")
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid price %s", price)
	}
	return price, nil
}
