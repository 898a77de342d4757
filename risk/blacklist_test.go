package risk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBlacklistCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")

	b, err := OpenBlacklist(path)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "#"))
}

func TestOpenBlacklistParsesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	content := "# known ruggers\n" +
		"DeployerOne,honeypot factory\n" +
		"\n" +
		"DeployerTwo\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	b, err := OpenBlacklist(path)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())

	entry, ok := b.Lookup("DeployerOne")
	require.True(t, ok)
	assert.Equal(t, "honeypot factory", entry.Reason)

	// Bare address gets a default reason
	entry, ok = b.Lookup("DeployerTwo")
	require.True(t, ok)
	assert.NotEmpty(t, entry.Reason)

	_, ok = b.Lookup("DeployerThree")
	assert.False(t, ok)
}

func TestBlacklistAddPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")

	b, err := OpenBlacklist(path)
	require.NoError(t, err)
	require.NoError(t, b.Add("DeployerOne", "stop_loss_exit"))

	reopened, err := OpenBlacklist(path)
	require.NoError(t, err)
	entry, ok := reopened.Lookup("DeployerOne")
	require.True(t, ok)
	assert.Equal(t, "stop_loss_exit", entry.Reason)
}

func TestBlacklistAddDuplicateIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")

	b, err := OpenBlacklist(path)
	require.NoError(t, err)
	require.NoError(t, b.Add("DeployerOne", "first"))
	require.NoError(t, b.Add("DeployerOne", "second"))

	assert.Equal(t, 1, b.Len())

	// The original entry wins
	entry, _ := b.Lookup("DeployerOne")
	assert.Equal(t, "first", entry.Reason)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "DeployerOne"))
}

func TestBlacklistAddRejectsEmptyAddress(t *testing.T) {
	b, err := OpenBlacklist(filepath.Join(t.TempDir(), "blacklist.txt"))
	require.NoError(t, err)

	assert.Error(t, b.Add("", "reason"))
}
