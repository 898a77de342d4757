package risk

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RejectionLog is the vetting audit trail: one timestamped line per rejected
// candidate, for offline analysis of what the gate is filtering out.
type RejectionLog struct {
	mu   sync.Mutex
	path string
}

// NewRejectionLog creates the audit log appender.
func NewRejectionLog(path string) *RejectionLog {
	return &RejectionLog{path: path}
}

// Record appends one rejection line: timestamp,token,signature,reason.
// Logging failures are reported but never propagate; the audit trail must
// not block trading decisions.
func (r *RejectionLog) Record(tokenID, txSig, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		log.Warn().Err(err).Msg("⚠️ Cannot create rejection log directory")
		return
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Cannot open rejection log")
		return
	}
	defer f.Close()

	ts := time.Now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(f, "%s,%s,%s,%s\n", ts, tokenID, txSig, reason); err != nil {
		log.Warn().Err(err).Msg("⚠️ Cannot append to rejection log")
	}
}
