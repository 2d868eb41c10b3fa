/*
This file fetches spot prices from the price API (GET {base}/prices).

Prices are untrusted input. A zero, negative or non-finite price for a required asset is a
data-integrity failure and is never defaulted. The only asset allowed to fall back is the
stable, which is treated as pegged at 1.0 when the feed omits it entirely.
*/

package datafetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/kilolend/lvm/internal/types"
)

var (
	ErrPriceFeedUnavailable = errors.New("price feed unavailable")
	ErrInvalidPriceData     = errors.New("invalid price data received")
	ErrInvalidPrice         = errors.New("invalid price")
)

const (
	PRICES_PATH        = "/prices"
	MAX_PRICE_BODY     = 1 << 20
	STABLE_PEG_DEFAULT = 1.0
)

// PriceFeedResponse is the envelope returned by the price API.
type PriceFeedResponse struct {
	Success bool             `json:"success"`
	Data    []PriceFeedEntry `json:"data"`
	Count   int              `json:"count"`
}

// PriceFeedEntry is one quote. The API has served price both as a JSON number and as a string.
type PriceFeedEntry struct {
	Symbol string    `json:"symbol"`
	Price  flexFloat `json:"price"`
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("price %q is not numeric: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// fetchPrices performs one GET against the feed and validates the result.
func fetchPrices(ctx context.Context, client *http.Client, baseURL string) (types.Prices, error) {
	url := strings.TrimRight(baseURL, "/") + PRICES_PATH

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Prices{}, fmt.Errorf("%w: failed to create request: %w", ErrPriceFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return types.Prices{}, fmt.Errorf("%w: %w", ErrPriceFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MAX_PRICE_BODY))
	if err != nil {
		return types.Prices{}, fmt.Errorf("%w: failed to read response body: %w", ErrPriceFeedUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return types.Prices{}, fmt.Errorf("%w: HTTP %d: %s", ErrPriceFeedUnavailable, resp.StatusCode, truncate(string(body), 200))
	}

	var parsed PriceFeedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.Prices{}, fmt.Errorf("%w: %w", ErrInvalidPriceData, err)
	}
	if !parsed.Success {
		return types.Prices{}, fmt.Errorf("%w: feed reported success=false", ErrPriceFeedUnavailable)
	}

	return extractPrices(parsed.Data)
}

// extractPrices maps feed entries onto Prices and rejects anything unusable.
func extractPrices(entries []PriceFeedEntry) (types.Prices, error) {
	quotes := make(map[string]float64, len(entries))
	for _, e := range entries {
		quotes[strings.ToUpper(strings.TrimSpace(e.Symbol))] = float64(e.Price)
	}

	var prices types.Prices
	var err error

	if prices.KAIA, err = requirePrice(quotes, types.SYMBOL_KAIA); err != nil {
		return types.Prices{}, err
	}
	if prices.StKAIA, err = requirePrice(quotes, types.SYMBOL_STAKED_KAIA); err != nil {
		return types.Prices{}, err
	}

	if _, quoted := quotes[types.SYMBOL_USDT]; quoted {
		if prices.USDT, err = requirePrice(quotes, types.SYMBOL_USDT); err != nil {
			return types.Prices{}, err
		}
	} else {
		prices.USDT = STABLE_PEG_DEFAULT
	}

	return prices, nil
}

func requirePrice(quotes map[string]float64, symbol string) (float64, error) {
	price, ok := quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s missing from feed", ErrInvalidPrice, symbol)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: %s price is not finite", ErrInvalidPrice, symbol)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s price is %f", ErrInvalidPrice, symbol, price)
	}
	return price, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
