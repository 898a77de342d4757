package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSizeZeroLiquidityUsesMinimum(t *testing.T) {
	s := NewSizer(testConfig())

	size := s.Size(decimal.Zero)

	assert.True(t, size.Equal(decimal.NewFromInt(4)), "got %s", size)
}

func TestSizeScalesWithLiquidity(t *testing.T) {
	s := NewSizer(testConfig())

	// 1200 * 0.005 = 6, inside the [4, 10] bounds
	size := s.Size(decimal.NewFromInt(1200))

	assert.True(t, size.Equal(decimal.NewFromInt(6)), "got %s", size)
}

func TestSizeClampsToMaximum(t *testing.T) {
	s := NewSizer(testConfig())

	// 10000 * 0.005 = 50, clamped down
	size := s.Size(decimal.NewFromInt(10000))

	assert.True(t, size.Equal(decimal.NewFromInt(10)), "got %s", size)
}

func TestSizeClampsToMinimum(t *testing.T) {
	s := NewSizer(testConfig())

	// 500 * 0.005 = 2.5, clamped up
	size := s.Size(decimal.NewFromInt(500))

	assert.True(t, size.Equal(decimal.NewFromInt(4)), "got %s", size)
}

func TestSizeFixedWhenDynamicDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.DynamicSizing = false
	cfg.FixedBuySize = decimal.NewFromInt(7)
	s := NewSizer(cfg)

	size := s.Size(decimal.NewFromInt(100000))

	assert.True(t, size.Equal(decimal.NewFromInt(7)), "got %s", size)
}

func TestSizeFixedStillClamped(t *testing.T) {
	cfg := testConfig()
	cfg.DynamicSizing = false
	cfg.FixedBuySize = decimal.NewFromInt(50)
	s := NewSizer(cfg)

	size := s.Size(decimal.NewFromInt(100000))

	assert.True(t, size.Equal(decimal.NewFromInt(10)), "got %s", size)
}

func TestSizeAlwaysWithinBounds(t *testing.T) {
	s := NewSizer(testConfig())

	for _, liquidity := range []int64{0, 1, 400, 799, 800, 2000, 1_000_000} {
		size := s.Size(decimal.NewFromInt(liquidity))
		assert.True(t, size.GreaterThanOrEqual(decimal.NewFromInt(4)), "liquidity=%d size=%s", liquidity, size)
		assert.True(t, size.LessThanOrEqual(decimal.NewFromInt(10)), "liquidity=%d size=%s", liquidity, size)
	}
}
