package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsInit(t *testing.T) {
	assert.True(t, containsInit([]string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254 }",
	}))

	assert.False(t, containsInit([]string{
		"Program log: Instruction: Swap",
		"Program log: ray_log: A8...",
	}))

	assert.False(t, containsInit(nil))
}

func TestRPCURLDerivedFromWebsocketURL(t *testing.T) {
	l := NewRaydiumListener("wss://mainnet.helius-rpc.com/?api-key=abc")
	assert.Equal(t, "https://mainnet.helius-rpc.com/?api-key=abc", l.rpcURL)

	l = NewRaydiumListener("ws://localhost:8900")
	assert.Equal(t, "http://localhost:8900", l.rpcURL)
}

func TestPingLoopExitsWithConnection(t *testing.T) {
	l := NewRaydiumListener("ws://localhost:8900")

	// Each connection gets its own pinger; closing the done channel must end
	// it even while the listener itself keeps running across reconnects.
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		l.pingLoop(nil, done)
		close(exited)
	}()

	close(done)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("ping loop still running after its connection went away")
	}
}

func TestTokenMintFromTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"meta":{"postTokenBalances":[
			{"mint":"So11111111111111111111111111111111111111112"},
			{"mint":"NewTokenMintAAA"},
			{"mint":"NewTokenMintAAA"}
		]}}}`))
	}))
	defer srv.Close()

	l := NewRaydiumListener(srv.URL)
	l.rpcURL = srv.URL

	mint, err := l.tokenMintFromTx(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, "NewTokenMintAAA", mint)
}

func TestTokenMintFromTxSkipsQuoteMints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"meta":{"postTokenBalances":[
			{"mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
			{"mint":"So11111111111111111111111111111111111111112"},
			{"mint":"TheActualTokenMint"}
		]}}}`))
	}))
	defer srv.Close()

	l := NewRaydiumListener(srv.URL)
	l.rpcURL = srv.URL

	mint, err := l.tokenMintFromTx(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, "TheActualTokenMint", mint)
}
