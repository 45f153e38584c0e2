// Copyright 2025 Hyperlane
//
// CoinGeckoOracle: the PriceOracle backing the onChainFeeQuoting policy,
// grounded on the simple-API-key-query-JSON shape CoingeckoAPIKey implies
// in the gasPaymentEnforcement config. No HTTP client library appears
// anywhere in the teacher or the rest of the corpus, so this build uses
// net/http directly rather than introducing a dependency solely for one
// GET request.
package gaspolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// CoinGeckoOracle prices native tokens by CoinGecko coin ID and converts
// wei amounts to USD. It caches each domain's price for cacheTTL to avoid
// hammering the API on every Evaluate call.
type CoinGeckoOracle struct {
	apiKey   string
	coinIDs  map[types.Domain]string
	client   *http.Client
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[types.Domain]cachedPrice
}

type cachedPrice struct {
	usd       float64
	fetchedAt time.Time
}

// NewCoinGeckoOracle builds an oracle. coinIDs maps a domain to its
// CoinGecko coin ID (e.g. "ethereum", "matic-network").
func NewCoinGeckoOracle(apiKey string, coinIDs map[types.Domain]string) *CoinGeckoOracle {
	return &CoinGeckoOracle{
		apiKey:   apiKey,
		coinIDs:  coinIDs,
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 30 * time.Second,
		cache:    make(map[types.Domain]cachedPrice),
	}
}

func (o *CoinGeckoOracle) NativeTokenPriceUSD(ctx context.Context, domain types.Domain) (float64, error) {
	o.mu.Lock()
	if cached, ok := o.cache[domain]; ok && time.Since(cached.fetchedAt) < o.cacheTTL {
		o.mu.Unlock()
		return cached.usd, nil
	}
	o.mu.Unlock()

	coinID, ok := o.coinIDs[domain]
	if !ok {
		return 0, fmt.Errorf("gaspolicy: no coingecko id configured for domain %d", domain)
	}

	price, err := o.fetchPrice(ctx, coinID)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	o.cache[domain] = cachedPrice{usd: price, fetchedAt: time.Now()}
	o.mu.Unlock()
	return price, nil
}

func (o *CoinGeckoOracle) fetchPrice(ctx context.Context, coinID string) (float64, error) {
	endpoint := "https://api.coingecko.com/api/v3/simple/price?ids=" + url.QueryEscape(coinID) + "&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("gaspolicy: build coingecko request: %w", err)
	}
	if o.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gaspolicy: coingecko request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("gaspolicy: coingecko status %d", resp.StatusCode)
	}

	var body map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("gaspolicy: decode coingecko response: %w", err)
	}
	quote, ok := body[coinID]
	if !ok {
		return 0, fmt.Errorf("gaspolicy: coingecko response missing %q", coinID)
	}
	return quote.USD, nil
}

// GasPriceUSD converts a wei amount to USD using the domain's native token
// price, assuming 18-decimal precision (the common EVM case).
func (o *CoinGeckoOracle) GasPriceUSD(ctx context.Context, domain types.Domain, amountWei uint64) (float64, error) {
	price, err := o.NativeTokenPriceUSD(ctx, domain)
	if err != nil {
		return 0, err
	}
	const weiPerToken = 1e18
	return (float64(amountWei) / weiPerToken) * price, nil
}
