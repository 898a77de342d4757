// Package feeds provides the market-data and chain-event inputs for the
// sniper: the Birdeye security/price oracle and the Raydium pool listener.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AryanViralProjects/kali-snipes/internal/retry"
	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BIRDEYE CLIENT - Token security, overview and price data
// ═══════════════════════════════════════════════════════════════════════════════
//
// Very new tokens take a while to be indexed, so 404/5xx responses mean "not
// ready yet" and are retryable; auth and rate-limit errors are not. The retry
// loop itself lives with the caller (the gate's fail-closed budget, the
// reconciler's fail-safe budget).
//
// ═══════════════════════════════════════════════════════════════════════════════

// BirdeyeClient implements the security and price oracles over Birdeye's
// public API.
type BirdeyeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewBirdeyeClient creates a Birdeye API client.
func NewBirdeyeClient(baseURL, apiKey string) *BirdeyeClient {
	return &BirdeyeClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

type securityResponse struct {
	Data struct {
		FakeToken           bool     `json:"fakeToken"`
		OwnershipRenounced  bool     `json:"ownershipRenounced"`
		Honeypot            bool     `json:"honeypot"`
		Freezable           bool     `json:"freezable"`
		FreezeAuthority     *string  `json:"freezeAuthority"`
		IsToken2022         bool     `json:"isToken2022"`
		Mintable            bool     `json:"mintable"`
		MutableMetadata     bool     `json:"mutableMetadata"`
		TransferFees        bool     `json:"transferFees"`
		MutableInfo         bool     `json:"mutableInfo"`
		BuyTax              *float64 `json:"buyTax"`
		SellTax             *float64 `json:"sellTax"`
		OwnerPercentage     *float64 `json:"ownerPercentage"`
		UpdateAuthorityPct  *float64 `json:"updateAuthorityPercentage"`
		Top10HolderPercent  *float64 `json:"top10HolderPercent"`
		CreatorAddress      string   `json:"creatorAddress"`
	} `json:"data"`
}

type overviewResponse struct {
	Data struct {
		Liquidity    *float64 `json:"liquidity"`
		MarketCap    *float64 `json:"mc"`
		Price        *float64 `json:"price"`
		CreationTime *int64   `json:"creation_time"`
	} `json:"data"`
}

type priceResponse struct {
	Data struct {
		Value *float64 `json:"value"`
	} `json:"data"`
}

// SecurityProfile fetches the token security attributes used by the gate.
func (c *BirdeyeClient) SecurityProfile(ctx context.Context, tokenID string) (*types.RiskProfile, error) {
	var body securityResponse
	url := fmt.Sprintf("%s/defi/token_security?address=%s", c.baseURL, tokenID)
	if err := c.get(ctx, url, &body); err != nil {
		return nil, err
	}

	d := body.Data
	return &types.RiskProfile{
		TokenID:            tokenID,
		FakeToken:          d.FakeToken,
		OwnershipRenounced: d.OwnershipRenounced,
		Honeypot:           d.Honeypot,
		Freezable:          d.Freezable,
		FreezeAuthority:    d.FreezeAuthority != nil,
		Token2022:          d.IsToken2022,
		Mintable:           d.Mintable,
		MutableMetadata:    d.MutableMetadata,
		TransferFee:        d.TransferFees,
		MutableInfo:        d.MutableInfo,
		BuyTax:             fromFloat(d.BuyTax),
		SellTax:            fromFloat(d.SellTax),
		OwnerPercent:       fromFloat(d.OwnerPercentage),
		UpdateAuthorityPct: fromFloat(d.UpdateAuthorityPct),
		Top10HolderPercent: fromFloat(d.Top10HolderPercent),
		Deployer:           d.CreatorAddress,
	}, nil
}

// Overview fetches liquidity, market cap, price and creation time.
func (c *BirdeyeClient) Overview(ctx context.Context, tokenID string) (*types.TokenOverview, error) {
	var body overviewResponse
	url := fmt.Sprintf("%s/defi/token_overview?address=%s", c.baseURL, tokenID)
	if err := c.get(ctx, url, &body); err != nil {
		return nil, err
	}

	overview := &types.TokenOverview{
		TokenID:   tokenID,
		Liquidity: fromFloat(body.Data.Liquidity),
		MarketCap: fromFloat(body.Data.MarketCap),
		Price:     fromFloat(body.Data.Price),
	}
	if body.Data.CreationTime != nil {
		overview.CreatedAt = time.Unix(*body.Data.CreationTime, 0)
	}
	return overview, nil
}

// Price fetches the current token price in USD.
func (c *BirdeyeClient) Price(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	var body priceResponse
	url := fmt.Sprintf("%s/defi/price?address=%s", c.baseURL, tokenID)
	if err := c.get(ctx, url, &body); err != nil {
		return decimal.Zero, err
	}
	if body.Data.Value == nil {
		return decimal.Zero, fmt.Errorf("no price for %s", tokenID)
	}
	return decimal.NewFromFloat(*body.Data.Value), nil
}

func (c *BirdeyeClient) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Stop(err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("birdeye request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500:
		// Data not indexed yet, worth retrying.
		return fmt.Errorf("birdeye data not ready (status %d)", resp.StatusCode)
	default:
		return retry.Stop(fmt.Errorf("birdeye error (status %d)", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("birdeye response: %w", err)
	}
	return nil
}

func fromFloat(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}
