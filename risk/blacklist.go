package risk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DEPLOYER BLACKLIST - Append-only record of known-bad deployer wallets
// ═══════════════════════════════════════════════════════════════════════════════
//
// Persisted as one "address,reason" line per entry; lines starting with '#'
// are comments. The file is only ever appended to, so manual edits and bot
// additions coexist.
//
// ═══════════════════════════════════════════════════════════════════════════════

// BlacklistEntry is one blacklisted deployer wallet.
type BlacklistEntry struct {
	Address string
	Reason  string
}

// Blacklist is an in-memory index over the append-only blacklist file.
type Blacklist struct {
	mu      sync.RWMutex
	path    string
	entries map[string]BlacklistEntry
}

// OpenBlacklist loads the blacklist file, creating it if absent.
func OpenBlacklist(path string) (*Blacklist, error) {
	b := &Blacklist{
		path:    path,
		entries: make(map[string]BlacklistEntry),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		header := "# Deployer wallet blacklist - one address,reason per line\n"
		if err := os.WriteFile(path, []byte(header), 0644); err != nil {
			return nil, err
		}
		return b, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		entry := BlacklistEntry{Address: strings.TrimSpace(parts[0]), Reason: "blacklisted deployer"}
		if len(parts) == 2 {
			entry.Reason = strings.TrimSpace(parts[1])
		}
		b.entries[entry.Address] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	log.Info().Int("entries", len(b.entries)).Str("path", path).Msg("🚫 Deployer blacklist loaded")
	return b, nil
}

// Lookup reports whether a deployer address is blacklisted.
func (b *Blacklist) Lookup(address string) (BlacklistEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[address]
	return entry, ok
}

// Add appends a deployer to the blacklist. Adding an existing address is a
// no-op so the file stays append-only with unique entries.
func (b *Blacklist) Add(address, reason string) error {
	if address == "" {
		return fmt.Errorf("empty deployer address")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[address]; exists {
		return nil
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s,%s\n", address, reason); err != nil {
		return err
	}

	b.entries[address] = BlacklistEntry{Address: address, Reason: reason}
	log.Info().
		Str("deployer", shortMint(address)).
		Str("reason", reason).
		Msg("🚫 Deployer added to blacklist")
	return nil
}

// Len returns the number of blacklisted deployers.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func shortMint(mint string) string {
	if len(mint) <= 6 {
		return mint
	}
	return "…" + mint[len(mint)-6:]
}
