package exec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
)

func dryRunClient() *Client {
	return &Client{
		dryRun:     true,
		httpClient: &http.Client{Timeout: time.Second},
		decimals:   make(map[string]int32),
	}
}

func TestNewClientRequiresRelayWhenLive(t *testing.T) {
	cfg := &config.Config{DryRun: false, SwapRelayURL: ""}
	_, err := NewClient(cfg)
	assert.Error(t, err)
}

func TestNewClientDryRunNeedsNoRelay(t *testing.T) {
	cfg := &config.Config{DryRun: true}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.True(t, c.dryRun)
}

func TestDryRunBuyFabricatesSignature(t *testing.T) {
	c := dryRunClient()

	res := c.Buy(context.Background(), "TokenMintAAA", decimal.NewFromInt(10))

	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Signature, "DRY_"), "got %s", res.Signature)
}

func TestDryRunSellFabricatesSignature(t *testing.T) {
	c := dryRunClient()

	res := c.Sell(context.Background(), "TokenMintAAA", decimal.NewFromInt(500))

	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Signature, "DRY_"))
}

func TestSwapRejectsNonPositiveAmount(t *testing.T) {
	c := dryRunClient()

	res := c.Buy(context.Background(), "TokenMintAAA", decimal.Zero)

	assert.False(t, res.Success)
	assert.Equal(t, FailInsufficientFunds, res.Reason)
}

func TestLiveSwapQuoteAndSubmit(t *testing.T) {
	var quoteCalled, relayCalled bool

	jupiter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		quoteCalled = true
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, config.USDCMint, r.URL.Query().Get("inputMint"))
		assert.Equal(t, "TokenMintAAA", r.URL.Query().Get("outputMint"))
		assert.Equal(t, "10000000", r.URL.Query().Get("amount")) // 10 USDC in base units
		assert.Equal(t, "499", r.URL.Query().Get("slippageBps"))
		w.Write([]byte(`{"inAmount":"10000000","outAmount":"123456"}`))
	}))
	defer jupiter.Close()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayCalled = true
		var payload struct {
			QuoteResponse json.RawMessage `json:"quoteResponse"`
			UserPublicKey string          `json:"userPublicKey"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "WalletAAA", payload.UserPublicKey)
		assert.NotEmpty(t, payload.QuoteResponse)
		w.Write([]byte(`{"signature":"LiveSig111"}`))
	}))
	defer relay.Close()

	c := &Client{
		jupiterURL: jupiter.URL,
		relayURL:   relay.URL,
		wallet:     "WalletAAA",
		httpClient: &http.Client{Timeout: time.Second},
		decimals:   make(map[string]int32),
	}

	res := c.Buy(context.Background(), "TokenMintAAA", decimal.NewFromInt(10))

	assert.True(t, quoteCalled)
	assert.True(t, relayCalled)
	assert.True(t, res.Success)
	assert.Equal(t, "LiveSig111", res.Signature)
}

func TestLiveSwapRelayRejection(t *testing.T) {
	jupiter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"inAmount":"10000000"}`))
	}))
	defer jupiter.Close()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"slippage tolerance exceeded"}`))
	}))
	defer relay.Close()

	c := &Client{
		jupiterURL: jupiter.URL,
		relayURL:   relay.URL,
		wallet:     "WalletAAA",
		httpClient: &http.Client{Timeout: time.Second},
		decimals:   make(map[string]int32),
	}

	res := c.Buy(context.Background(), "TokenMintAAA", decimal.NewFromInt(10))

	assert.False(t, res.Success)
	assert.Equal(t, FailSlippage, res.Reason)
}

func TestTokenBalanceSumsAccounts(t *testing.T) {
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getTokenAccountsByOwner", req.Method)

		w.Write([]byte(`{"result":{"value":[
			{"account":{"data":{"parsed":{"info":{"tokenAmount":{"uiAmountString":"10.5","decimals":6}}}}}},
			{"account":{"data":{"parsed":{"info":{"tokenAmount":{"uiAmountString":"2","decimals":6}}}}}}
		]}}`))
	}))
	defer rpc.Close()

	c := &Client{
		rpcURL:     rpc.URL,
		wallet:     "WalletAAA",
		httpClient: &http.Client{Timeout: time.Second},
		decimals:   make(map[string]int32),
	}

	balance, err := c.TokenBalance(context.Background(), "TokenMintAAA")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(12.5)), "got %s", balance)

	// Decimals learned from the account data, no extra RPC needed
	dec, err := c.tokenDecimals(context.Background(), "TokenMintAAA")
	require.NoError(t, err)
	assert.Equal(t, int32(6), dec)
}

func TestGasBalance(t *testing.T) {
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"value":1500000000}}`))
	}))
	defer rpc.Close()

	c := &Client{
		rpcURL:     rpc.URL,
		wallet:     "WalletAAA",
		httpClient: &http.Client{Timeout: time.Second},
		decimals:   make(map[string]int32),
	}

	balance, err := c.GasBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(1.5)), "got %s", balance)
}

func TestClassifyFailure(t *testing.T) {
	cases := map[string]string{
		"Slippage tolerance exceeded":      FailSlippage,
		"Blockhash not found":              FailStaleBlockhash,
		"insufficient funds for rent":      FailInsufficientFunds,
		"no route: insufficient liquidity": FailInsufficientFunds,
		"could not find any route":         FailRouting,
	}
	for msg, want := range cases {
		assert.Equal(t, want, classifyFailure(msg), "message: %s", msg)
	}
}
