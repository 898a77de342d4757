package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AryanViralProjects/kali-snipes/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION STORE - Durable source of truth for open positions
// ═══════════════════════════════════════════════════════════════════════════════
//
// A position row exists iff the wallet holds a non-zero balance of that token
// and the position has not fully exited. Every mutation is serialized and
// written through to the database before returning, so a crash leaves the
// store in the pre- or post-state of exactly one operation.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	ErrPositionExists      = errors.New("position already exists")
	ErrPositionNotFound    = errors.New("position not found")
	ErrTierAlreadyExecuted = errors.New("tier already executed")
)

// PositionRecord is the persisted row, keyed by token mint.
type PositionRecord struct {
	TokenID         string          `gorm:"primaryKey"`
	EntryInvestment decimal.Decimal `gorm:"type:decimal(20,6)"`
	EntryLiquidity  decimal.Decimal `gorm:"type:decimal(20,2)"`
	EntryTime       time.Time
	TiersExecuted   string          `gorm:"default:'[]'"` // JSON array of tier indices
	TotalRealized   decimal.Decimal `gorm:"type:decimal(20,6);default:0"`
	StrategyType    string
	Deployer        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PositionStore owns all persisted position state. All other components work
// on snapshots and mutate through these operations.
type PositionStore struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open connects to the database at dsn and migrates the schema.
// A postgres:// DSN selects PostgreSQL, anything else is a SQLite file path.
func Open(dsn string) (*PositionStore, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Position store connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("💾 Position store initialized (SQLite)")
	}

	if err := db.AutoMigrate(&PositionRecord{}); err != nil {
		return nil, err
	}

	return &PositionStore{db: db}, nil
}

// Create records a new position after a confirmed entry fill. Creating a
// token that is already tracked is a warn-and-no-op, enforcing at most one
// position per token.
func (s *PositionStore) Create(tokenID string, investment, liquidity decimal.Decimal, deployer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if err := s.db.Model(&PositionRecord{}).Where("token_id = ?", tokenID).Count(&count).Error; err != nil {
		return fmt.Errorf("checking position %s: %w", tokenID, err)
	}
	if count > 0 {
		log.Warn().Str("token", shortMint(tokenID)).Msg("⚠️ Position already tracked, ignoring duplicate entry")
		return ErrPositionExists
	}

	rec := PositionRecord{
		TokenID:         tokenID,
		EntryInvestment: investment,
		EntryLiquidity:  liquidity,
		EntryTime:       time.Now(),
		TiersExecuted:   "[]",
		TotalRealized:   decimal.Zero,
		StrategyType:    "tiered_dynamic",
		Deployer:        deployer,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("persisting position %s: %w", tokenID, err)
	}

	log.Info().
		Str("token", shortMint(tokenID)).
		Str("investment", investment.StringFixed(2)).
		Str("entry_lp", liquidity.StringFixed(0)).
		Msg("📝 Position recorded")
	return nil
}

// RecordTierExit marks a profit tier as executed and adds the realized
// amount. Recording an already-fired tier is a warn-and-no-op.
func (s *PositionStore) RecordTierExit(tokenID string, tierIndex int, realized decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec PositionRecord
	if err := s.db.First(&rec, "token_id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("token", shortMint(tokenID)).Int("tier", tierIndex).Msg("⚠️ Tier exit for untracked position")
			return ErrPositionNotFound
		}
		return fmt.Errorf("loading position %s: %w", tokenID, err)
	}

	tiers, err := decodeTiers(rec.TiersExecuted)
	if err != nil {
		return fmt.Errorf("position %s has corrupt tier state: %w", tokenID, err)
	}
	for _, t := range tiers {
		if t == tierIndex {
			log.Warn().Str("token", shortMint(tokenID)).Int("tier", tierIndex).Msg("⚠️ Tier already executed, ignoring")
			return ErrTierAlreadyExecuted
		}
	}

	tiers = append(tiers, tierIndex)
	sort.Ints(tiers)
	encoded, _ := json.Marshal(tiers)

	updates := map[string]interface{}{
		"tiers_executed": string(encoded),
		"total_realized": rec.TotalRealized.Add(realized),
	}
	if err := s.db.Model(&PositionRecord{}).Where("token_id = ?", tokenID).Updates(updates).Error; err != nil {
		return fmt.Errorf("persisting tier exit %s/%d: %w", tokenID, tierIndex, err)
	}

	log.Info().
		Str("token", shortMint(tokenID)).
		Int("tier", tierIndex).
		Str("realized", realized.StringFixed(2)).
		Msg("💰 Tier exit recorded")
	return nil
}

// Remove deletes a position on full exit. Removing an absent token is a
// silent no-op, so Remove is idempotent.
func (s *PositionStore) Remove(tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.Delete(&PositionRecord{}, "token_id = ?", tokenID)
	if res.Error != nil {
		return fmt.Errorf("removing position %s: %w", tokenID, res.Error)
	}
	if res.RowsAffected > 0 {
		log.Info().Str("token", shortMint(tokenID)).Msg("📊 Position closed and removed")
	}
	return nil
}

// Get returns a copy of one position.
func (s *PositionStore) Get(tokenID string) (*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec PositionRecord
	if err := s.db.First(&rec, "token_id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return rec.toPosition()
}

// Snapshot returns independent copies of all tracked positions for iteration
// by the reconciliation loop.
func (s *PositionStore) Snapshot() ([]*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []PositionRecord
	if err := s.db.Order("entry_time").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}

	positions := make([]*types.Position, 0, len(recs))
	for _, rec := range recs {
		pos, err := rec.toPosition()
		if err != nil {
			log.Warn().Err(err).Str("token", shortMint(rec.TokenID)).Msg("⚠️ Skipping corrupt position row")
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// Count returns the number of tracked positions.
func (s *PositionStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if err := s.db.Model(&PositionRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *PositionRecord) toPosition() (*types.Position, error) {
	tiers, err := decodeTiers(r.TiersExecuted)
	if err != nil {
		return nil, err
	}
	return &types.Position{
		TokenID:         r.TokenID,
		EntryInvestment: r.EntryInvestment,
		EntryLiquidity:  r.EntryLiquidity,
		EntryTime:       r.EntryTime,
		TiersExecuted:   tiers,
		TotalRealized:   r.TotalRealized,
		StrategyType:    r.StrategyType,
		Deployer:        r.Deployer,
	}, nil
}

func decodeTiers(raw string) ([]int, error) {
	if raw == "" {
		return []int{}, nil
	}
	var tiers []int
	if err := json.Unmarshal([]byte(raw), &tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

func shortMint(mint string) string {
	if len(mint) <= 6 {
		return mint
	}
	return "…" + mint[len(mint)-6:]
}
