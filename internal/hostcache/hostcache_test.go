package hostcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoadsExistingEntriesAndSkipsCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.cache")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\n10.0.0.1=db-primary\n10.0.0.2=db-replica\n"), 0o644))

	c, err := New(path, nil)
	require.NoError(t, err)
	defer c.Stop()

	assert.Equal(t, "db-primary", c.Resolve(context.Background(), "10.0.0.1"))
	assert.Equal(t, "db-replica", c.Resolve(context.Background(), "10.0.0.2"))
}

func TestNewCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.cache")

	c, err := New(path, nil)
	require.NoError(t, err)
	defer c.Stop()

	_, err = os.Stat(path)
	assert.NoError(t, err, "New must create the backing file when absent")
}

func TestResolveCacheHitNeverTouchesBackingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.cache")
	require.NoError(t, os.WriteFile(path, []byte("192.0.2.5=known-host\n"), 0o644))

	c, err := New(path, nil)
	require.NoError(t, err)
	defer c.Stop()

	got := c.Resolve(context.Background(), "192.0.2.5")
	assert.Equal(t, "known-host", got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	before := info.ModTime()

	time.Sleep(5 * time.Millisecond)
	c.Resolve(context.Background(), "192.0.2.5")

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before, info.ModTime(), "a cache hit must not re-append or otherwise rewrite the backing file")
}

func TestResolveUnknownIPFallsBackToAddressOnLookupFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.cache")

	c, err := New(path, nil)
	require.NoError(t, err)
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// TEST-NET-1 has no reverse DNS entry; the cancelled-soon context also
	// guards against this test hanging on a live resolver.
	got := c.Resolve(ctx, "192.0.2.123")
	assert.Equal(t, "192.0.2.123", got, "an unresolvable ip must fall back to the ip itself, not block forever")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "192.0.2.123=192.0.2.123", "the fallback result is persisted so repeat lookups skip the resolver")
}
