package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SWAP EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Quotes swaps against the Jupiter aggregator and submits them through a
// signing relay. Key management and transaction construction live entirely in
// the relay; this client only speaks HTTP request/response shapes.
//
// DRY_RUN mode fabricates signatures and logs what would have happened.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Classified execution failure reasons.
const (
	FailSlippage          = "slippage_exceeded"
	FailStaleBlockhash    = "stale_blockhash"
	FailInsufficientFunds = "insufficient_funds"
	FailRouting           = "routing_failure"
	FailNoLiquidity       = "insufficient_liquidity"
)

const usdcDecimals = 6

// Client executes buys and sells and answers wallet balance queries.
type Client struct {
	jupiterURL string
	relayURL   string
	rpcURL     string
	wallet     string
	dryRun     bool
	httpClient *http.Client

	mu       sync.Mutex
	decimals map[string]int32 // token mint -> decimals, filled from balance lookups
}

// NewClient creates the execution client. Live mode requires a signing relay.
func NewClient(cfg *config.Config) (*Client, error) {
	if !cfg.DryRun && cfg.SwapRelayURL == "" {
		return nil, fmt.Errorf("SWAP_RELAY_URL is required for live trading")
	}

	c := &Client{
		jupiterURL: cfg.JupiterAPIURL,
		relayURL:   cfg.SwapRelayURL,
		rpcURL:     cfg.SolanaRPCURL,
		wallet:     cfg.WalletAddress,
		dryRun:     cfg.DryRun,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		decimals:   make(map[string]int32),
	}

	mode := "DRY RUN"
	if !c.dryRun {
		mode = "LIVE"
	}
	log.Info().
		Str("mode", mode).
		Str("wallet", c.wallet).
		Msg("🚀 Execution client initialized")
	return c, nil
}

// Buy swaps usdcAmount of USDC into the token.
func (c *Client) Buy(ctx context.Context, tokenID string, usdcAmount decimal.Decimal) types.TxResult {
	amountIn := usdcAmount.Shift(usdcDecimals).Truncate(0)
	return c.swap(ctx, "BUY", config.USDCMint, tokenID, amountIn)
}

// Sell swaps tokenAmount of the token (in whole-token units) back into USDC.
func (c *Client) Sell(ctx context.Context, tokenID string, tokenAmount decimal.Decimal) types.TxResult {
	if c.dryRun {
		return c.swap(ctx, "SELL", tokenID, config.USDCMint, tokenAmount)
	}
	dec, err := c.tokenDecimals(ctx, tokenID)
	if err != nil {
		log.Warn().Err(err).Str("token", shortMint(tokenID)).Msg("Could not resolve token decimals")
		return types.TxResult{Success: false, Reason: classifyFailure(err.Error())}
	}
	return c.swap(ctx, "SELL", tokenID, config.USDCMint, tokenAmount.Shift(dec).Truncate(0))
}

func (c *Client) swap(ctx context.Context, side, inputMint, outputMint string, amount decimal.Decimal) types.TxResult {
	if amount.LessThanOrEqual(decimal.Zero) {
		return types.TxResult{Success: false, Reason: FailInsufficientFunds}
	}

	if c.dryRun {
		sig := "DRY_" + uuid.NewString()
		log.Info().
			Str("side", side).
			Str("in", shortMint(inputMint)).
			Str("out", shortMint(outputMint)).
			Str("amount", amount.String()).
			Str("signature", sig).
			Msg("📝 DRY RUN: swap would be submitted")
		return types.TxResult{Success: true, Signature: sig}
	}

	quote, err := c.quote(ctx, inputMint, outputMint, amount)
	if err != nil {
		log.Warn().Err(err).Str("side", side).Msg("Swap quote failed")
		return types.TxResult{Success: false, Reason: classifyFailure(err.Error())}
	}

	sig, err := c.submit(ctx, quote)
	if err != nil {
		log.Warn().Err(err).Str("side", side).Msg("Swap submission failed")
		return types.TxResult{Success: false, Reason: classifyFailure(err.Error())}
	}

	log.Info().
		Str("side", side).
		Str("token", shortMint(outputMint)).
		Str("signature", sig[:8]+"...").
		Msg("✅ Swap confirmed")
	return types.TxResult{Success: true, Signature: sig}
}

// quote asks Jupiter for a swap route.
func (c *Client) quote(ctx context.Context, inputMint, outputMint string, amount decimal.Decimal) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%s&slippageBps=499",
		c.jupiterURL, inputMint, outputMint, amount.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote failed (status %d): %s", resp.StatusCode, FailRouting)
	}

	var quote json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// submit hands the quote to the signing relay and returns the tx signature.
func (c *Client) submit(ctx context.Context, quote json.RawMessage) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"quoteResponse": quote,
		"userPublicKey": c.wallet,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Signature string `json:"signature"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", fmt.Errorf("relay rejected swap: %s", result.Error)
	}
	if result.Signature == "" {
		return "", fmt.Errorf("relay returned no signature")
	}
	return result.Signature, nil
}

// TokenBalance returns the wallet's balance of a token in whole-token units.
func (c *Client) TokenBalance(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	var body struct {
		Result struct {
			Value []struct {
				Account struct {
					Data struct {
						Parsed struct {
							Info struct {
								TokenAmount struct {
									UIAmount string `json:"uiAmountString"`
									Decimals int32  `json:"decimals"`
								} `json:"tokenAmount"`
							} `json:"info"`
						} `json:"parsed"`
					} `json:"data"`
				} `json:"account"`
			} `json:"value"`
		} `json:"result"`
	}

	params := []interface{}{
		c.wallet,
		map[string]string{"mint": tokenID},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := c.rpcCall(ctx, "getTokenAccountsByOwner", params, &body); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, acct := range body.Result.Value {
		amount, err := decimal.NewFromString(acct.Account.Data.Parsed.Info.TokenAmount.UIAmount)
		if err != nil {
			continue
		}
		total = total.Add(amount)
		c.cacheDecimals(tokenID, acct.Account.Data.Parsed.Info.TokenAmount.Decimals)
	}
	return total, nil
}

func (c *Client) cacheDecimals(tokenID string, dec int32) {
	c.mu.Lock()
	c.decimals[tokenID] = dec
	c.mu.Unlock()
}

// tokenDecimals resolves a mint's decimal count, hitting the RPC only once
// per mint.
func (c *Client) tokenDecimals(ctx context.Context, tokenID string) (int32, error) {
	c.mu.Lock()
	dec, ok := c.decimals[tokenID]
	c.mu.Unlock()
	if ok {
		return dec, nil
	}

	var body struct {
		Result struct {
			Value struct {
				Decimals int32 `json:"decimals"`
			} `json:"value"`
		} `json:"result"`
	}
	if err := c.rpcCall(ctx, "getTokenSupply", []interface{}{tokenID}, &body); err != nil {
		return 0, err
	}
	c.cacheDecimals(tokenID, body.Result.Value.Decimals)
	return body.Result.Value.Decimals, nil
}

// GasBalance returns the wallet's SOL balance.
func (c *Client) GasBalance(ctx context.Context) (decimal.Decimal, error) {
	var body struct {
		Result struct {
			Value int64 `json:"value"`
		} `json:"result"`
	}
	if err := c.rpcCall(ctx, "getBalance", []interface{}{c.wallet}, &body); err != nil {
		return decimal.Zero, err
	}
	return decimal.New(body.Result.Value, -9), nil
}

func (c *Client) rpcCall(ctx context.Context, method string, params []interface{}, out interface{}) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed (status %d)", method, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// classifyFailure maps raw error text onto the failure taxonomy.
func classifyFailure(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "slippage"):
		return FailSlippage
	case strings.Contains(lower, "blockhash"):
		return FailStaleBlockhash
	case strings.Contains(lower, "insufficient"):
		return FailInsufficientFunds
	case strings.Contains(lower, "liquidity"):
		return FailNoLiquidity
	default:
		return FailRouting
	}
}

func shortMint(mint string) string {
	if len(mint) <= 6 {
		return mint
	}
	return "…" + mint[len(mint)-6:]
}
