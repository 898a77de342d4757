package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *PositionStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "positions.db"))
	require.NoError(t, err)
	return store
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	invest := decimal.NewFromFloat(6.5)
	liquidity := decimal.NewFromInt(1300)
	require.NoError(t, store.Create("TokenMintAAA", invest, liquidity, "DeployerOne"))

	pos, err := store.Get("TokenMintAAA")
	require.NoError(t, err)

	assert.Equal(t, "TokenMintAAA", pos.TokenID)
	assert.True(t, pos.EntryInvestment.Equal(invest))
	assert.True(t, pos.EntryLiquidity.Equal(liquidity))
	assert.True(t, pos.TotalRealized.IsZero())
	assert.Empty(t, pos.TiersExecuted)
	assert.Equal(t, "DeployerOne", pos.Deployer)
	assert.False(t, pos.EntryTime.IsZero())
}

func TestCreateDuplicateRejected(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Create("TokenMintAAA", decimal.NewFromInt(5), decimal.NewFromInt(1000), ""))
	err := store.Create("TokenMintAAA", decimal.NewFromInt(8), decimal.NewFromInt(2000), "")
	assert.ErrorIs(t, err, ErrPositionExists)

	// First write wins
	pos, err := store.Get("TokenMintAAA")
	require.NoError(t, err)
	assert.True(t, pos.EntryInvestment.Equal(decimal.NewFromInt(5)))

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConcurrentCreateExactlyOne(t *testing.T) {
	store := newTestStore(t)

	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Create("TokenMintAAA", decimal.NewFromInt(5), decimal.NewFromInt(1000), "")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, ErrPositionExists)
		}
	}
	assert.Equal(t, 1, created)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordTierExit(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create("TokenMintAAA", decimal.NewFromInt(5), decimal.NewFromInt(1000), ""))

	require.NoError(t, store.RecordTierExit("TokenMintAAA", 0, decimal.NewFromFloat(6.0)))
	require.NoError(t, store.RecordTierExit("TokenMintAAA", 1, decimal.NewFromFloat(12.5)))

	pos, err := store.Get("TokenMintAAA")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, pos.TiersExecuted)
	assert.True(t, pos.TotalRealized.Equal(decimal.NewFromFloat(18.5)), "got %s", pos.TotalRealized)
}

func TestRecordTierExitDuplicateRejected(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create("TokenMintAAA", decimal.NewFromInt(5), decimal.NewFromInt(1000), ""))
	require.NoError(t, store.RecordTierExit("TokenMintAAA", 0, decimal.NewFromInt(6)))

	err := store.RecordTierExit("TokenMintAAA", 0, decimal.NewFromInt(6))
	assert.ErrorIs(t, err, ErrTierAlreadyExecuted)

	// Realized total unchanged by the duplicate
	pos, err := store.Get("TokenMintAAA")
	require.NoError(t, err)
	assert.True(t, pos.TotalRealized.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, []int{0}, pos.TiersExecuted)
}

func TestRecordTierExitUnknownPosition(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordTierExit("NoSuchToken", 0, decimal.NewFromInt(6))
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create("TokenMintAAA", decimal.NewFromInt(5), decimal.NewFromInt(1000), ""))

	require.NoError(t, store.Remove("TokenMintAAA"))
	require.NoError(t, store.Remove("TokenMintAAA"))
	require.NoError(t, store.Remove("NeverExisted"))

	_, err := store.Get("TokenMintAAA")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestSnapshotOrderedByEntry(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 3; i++ {
		token := fmt.Sprintf("TokenMint%03d", i)
		require.NoError(t, store.Create(token, decimal.NewFromInt(5), decimal.NewFromInt(1000), ""))
		time.Sleep(5 * time.Millisecond) // distinct entry times
	}

	positions, err := store.Snapshot()
	require.NoError(t, err)
	require.Len(t, positions, 3)
	assert.Equal(t, "TokenMint000", positions[0].TokenID)
	assert.Equal(t, "TokenMint002", positions[2].TokenID)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create("TokenMintAAA", decimal.NewFromInt(5), decimal.NewFromInt(1000), ""))
	require.NoError(t, store.RecordTierExit("TokenMintAAA", 0, decimal.NewFromInt(6)))

	positions, err := store.Snapshot()
	require.NoError(t, err)
	positions[0].TiersExecuted[0] = 99
	positions[0].TokenID = "mutated"

	pos, err := store.Get("TokenMintAAA")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, pos.TiersExecuted)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Create("TokenMintAAA", decimal.NewFromFloat(7.25), decimal.NewFromInt(1450), "DeployerOne"))
	require.NoError(t, store.RecordTierExit("TokenMintAAA", 0, decimal.NewFromFloat(14.5)))

	reopened, err := Open(path)
	require.NoError(t, err)

	pos, err := reopened.Get("TokenMintAAA")
	require.NoError(t, err)
	assert.True(t, pos.EntryInvestment.Equal(decimal.NewFromFloat(7.25)))
	assert.Equal(t, []int{0}, pos.TiersExecuted)
	assert.True(t, pos.TotalRealized.Equal(decimal.NewFromFloat(14.5)))
	assert.Equal(t, "DeployerOne", pos.Deployer)
}
