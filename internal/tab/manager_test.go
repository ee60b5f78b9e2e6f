package tab

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/replay"
)

func newReplayFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.db")
	rec, err := replay.NewRecorder(replay.RecorderConfig{Path: path, Host: "db1", ConnectionSource: "direct"}, nil)
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	return path
}

func TestManagerAddRegistersAndGetReturnsIt(t *testing.T) {
	m := NewManager(nil)
	reader, err := replay.OpenReader(context.Background(), newReplayFile(t))
	require.NoError(t, err)
	defer reader.Close()

	rt, err := m.Add(context.Background(), Config{ID: "tab-1", Reader: reader})
	require.NoError(t, err)
	require.NotNil(t, rt)

	got, ok := m.Get("tab-1")
	assert.True(t, ok)
	assert.Same(t, rt, got)
	assert.Equal(t, 1, m.Len())
}

func TestManagerAddFailureDoesNotRegister(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Add(ctx, Config{
		ID: "tab-bad",
		Endpoint: endpoint.Endpoint{
			Host: "192.0.2.1", // TEST-NET-1, guaranteed unreachable
			Port: 3306,
		},
	})
	assert.Error(t, err)
	_, ok := m.Get("tab-bad")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestManagerRemoveDisconnectsAndUnregisters(t *testing.T) {
	m := NewManager(nil)
	reader, err := replay.OpenReader(context.Background(), newReplayFile(t))
	require.NoError(t, err)
	defer reader.Close()

	_, err = m.Add(context.Background(), Config{ID: "tab-1", Reader: reader})
	require.NoError(t, err)

	m.Remove("tab-1")
	_, ok := m.Get("tab-1")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestManagerRemoveUnknownIDIsNoop(t *testing.T) {
	m := NewManager(nil)
	m.Remove("does-not-exist")
	assert.Equal(t, 0, m.Len())
}

func TestManagerShutdownClearsAllTabs(t *testing.T) {
	m := NewManager(nil)
	for _, id := range []string{"a", "b", "c"} {
		reader, err := replay.OpenReader(context.Background(), newReplayFile(t))
		require.NoError(t, err)
		defer reader.Close()
		_, err = m.Add(context.Background(), Config{ID: id, Reader: reader})
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Len())

	m.Shutdown()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.IDs())
}

// TestConnectHostgroupFailureLeavesNoPartialRegistrations verifies the
// connect-wave guard: if any member of the wave fails to connect, the wave
// reports an error rather than leaving some members registered and others
// not.
func TestConnectHostgroupFailureLeavesNoPartialRegistrations(t *testing.T) {
	m := NewManager(nil)
	members := []ConnectWaveMember{
		{TabID: "hg-1", Endpoint: endpoint.Endpoint{Host: "192.0.2.1", Port: 3306}},
		{TabID: "hg-2", Endpoint: endpoint.Endpoint{Host: "192.0.2.2", Port: 3306}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.ConnectHostgroup(ctx, members, func(ep endpoint.Endpoint) Config {
		return Config{RefreshInterval: time.Second}
	})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}
