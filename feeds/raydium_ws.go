package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AryanViralProjects/kali-snipes/internal/config"
	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RAYDIUM POOL LISTENER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Subscribes to Raydium AMM program logs on a Helius RPC websocket and emits a
// PoolEvent for every pool-initialization transaction. Delivery to consumers
// is at-least-once: reconnects can replay recent logs, so the engine dedupes
// by transaction signature.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	raydiumAMMProgram = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	initInstruction   = "initialize2"
	reconnectDelay    = 5 * time.Second
	pingInterval      = 30 * time.Second
)

// RaydiumListener watches for new liquidity pools.
type RaydiumListener struct {
	mu sync.Mutex

	wsURL      string
	rpcURL     string
	conn       *websocket.Conn
	running    bool
	stopCh     chan struct{}
	events     chan types.PoolEvent
	httpClient *http.Client
}

// NewRaydiumListener creates a listener. wsURL is the websocket RPC endpoint;
// the matching HTTPS endpoint is derived from it for transaction lookups.
func NewRaydiumListener(wsURL string) *RaydiumListener {
	return &RaydiumListener{
		wsURL:      wsURL,
		rpcURL:     strings.Replace(strings.Replace(wsURL, "wss://", "https://", 1), "ws://", "http://", 1),
		stopCh:     make(chan struct{}),
		events:     make(chan types.PoolEvent, 256),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Events returns the channel of detected pool creations.
func (l *RaydiumListener) Events() <-chan types.PoolEvent {
	return l.events
}

// Start connects and begins emitting events.
func (l *RaydiumListener) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.connectionLoop()
	log.Info().Msg("📡 Raydium pool listener started")
}

// Stop closes the connection and the event stream.
func (l *RaydiumListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	l.running = false
	close(l.stopCh)
	if l.conn != nil {
		l.conn.Close()
	}
	log.Info().Msg("Raydium listener stopped")
}

// connectionLoop maintains the websocket connection.
func (l *RaydiumListener) connectionLoop() {
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		conn, err := l.connect()
		if err != nil {
			log.Error().Err(err).Msg("Listener connection failed, retrying...")
			time.Sleep(reconnectDelay)
			continue
		}

		// The ping loop lives exactly as long as its connection; when the
		// read loop returns the connection is dead and the pinger goes too.
		done := make(chan struct{})
		go l.pingLoop(conn, done)
		l.readLoop(conn)
		close(done)
		time.Sleep(reconnectDelay)
	}
}

func (l *RaydiumListener) connect() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(l.wsURL, nil)
	if err != nil {
		return nil, err
	}

	// Subscribe to Raydium program logs.
	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": []string{raydiumAMMProgram}},
			map[string]interface{}{"commitment": "processed"},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	log.Info().Msg("🔌 Subscribed to Raydium program logs")
	return conn, nil
}

func (l *RaydiumListener) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-done:
			return
		case <-ticker.C:
			conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

type logNotification struct {
	Params struct {
		Result struct {
			Value struct {
				Signature string   `json:"signature"`
				Err       any      `json:"err"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (l *RaydiumListener) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Listener read error")
			return
		}

		l.processMessage(message)
	}
}

func (l *RaydiumListener) processMessage(data []byte) {
	var note logNotification
	if err := json.Unmarshal(data, &note); err != nil {
		return
	}

	value := note.Params.Result.Value
	if value.Signature == "" || value.Err != nil {
		return
	}
	if !containsInit(value.Logs) {
		return
	}

	log.Info().Str("signature", value.Signature[:8]+"...").Msg("🔥 New Raydium pool detected")

	// Transaction lookup is slow relative to log delivery, run it off the
	// read loop so a burst of pools doesn't stall the socket.
	go l.resolveAndEmit(value.Signature)
}

func containsInit(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, initInstruction) {
			return true
		}
	}
	return false
}

// resolveAndEmit fetches the pool-creation transaction and extracts the new
// token's mint.
func (l *RaydiumListener) resolveAndEmit(signature string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mint, err := l.tokenMintFromTx(ctx, signature)
	if err != nil {
		log.Warn().Err(err).Str("signature", signature[:8]+"...").Msg("⚠️ Could not resolve pool token")
		return
	}

	event := types.PoolEvent{
		TokenID:     mint,
		TxSignature: signature,
		DetectedAt:  time.Now(),
	}

	select {
	case l.events <- event:
	case <-l.stopCh:
	default:
		log.Warn().Str("token", mint).Msg("⚠️ Event buffer full, dropping pool event")
	}
}

type txResponse struct {
	Result struct {
		Meta struct {
			PostTokenBalances []struct {
				Mint string `json:"mint"`
			} `json:"postTokenBalances"`
		} `json:"meta"`
	} `json:"result"`
}

// tokenMintFromTx extracts the non-quote token mint from a pool-creation
// transaction's post-balances.
func (l *RaydiumListener) tokenMintFromTx(ctx context.Context, signature string) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getTransaction",
		"params": []interface{}{
			signature,
			map[string]interface{}{"encoding": "json", "maxSupportedTransactionVersion": 0, "commitment": "confirmed"},
		},
	})

	var body txResponse
	// Fresh transactions may not be queryable immediately after the log.
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.rpcURL, bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := l.httpClient.Do(req)
		if err != nil {
			continue
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		for _, bal := range body.Result.Meta.PostTokenBalances {
			if bal.Mint != config.WSOLMint && bal.Mint != config.USDCMint {
				return bal.Mint, nil
			}
		}
	}

	return "", fmt.Errorf("no token mint in transaction %s", signature)
}
