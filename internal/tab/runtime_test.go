package tab

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolphie-go/dolphie/internal/metricstore"
	"github.com/dolphie-go/dolphie/internal/replay"
	"github.com/dolphie-go/dolphie/internal/sample"
)

func testSample(n int64) sample.RawSample {
	return sample.RawSample{
		Timestamp: time.Unix(1700000000+n, 0).UTC(),
		Status:    map[string]int64{"Com_select": n * 10},
	}
}

func testSnapshot(n int64) metricstore.Snapshot {
	return metricstore.Snapshot{
		Timestamps: []time.Time{time.Unix(1700000000+n, 0).UTC()},
		GroupOrder: []string{"dml"},
		Groups: map[string]metricstore.SnapshotGroup{
			"dml": {
				Order:  []string{"Com_select"},
				Series: map[string]metricstore.SnapshotSeries{"Com_select": {Values: []int64{n * 10}}},
			},
		},
	}
}

func newReplayReaderWithEntries(t *testing.T, n int) *replay.Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.db")
	rec, err := replay.NewRecorder(replay.RecorderConfig{Path: path, Host: "db1", ConnectionSource: "direct"}, nil)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		require.NoError(t, rec.Record(context.Background(), testSample(int64(i)).Timestamp, testSample(int64(i)), testSnapshot(int64(i))))
	}
	require.NoError(t, rec.Close())

	reader, err := replay.OpenReader(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	return reader
}

func TestStartInReplayModeReturnsImmediatelyWithoutDialing(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 3)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)

	require.NoError(t, rt.Start(context.Background()))
	assert.Equal(t, StateReplay, rt.State())
}

func TestForceRefreshAdvancesReplayCursorAndRestoresStore(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 3)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)
	require.NoError(t, rt.Start(context.Background()))

	rt.ForceRefresh()
	require.Eventually(t, func() bool {
		snap := rt.Store().Snapshot()
		return len(snap.Timestamps) == 1 && snap.Groups["dml"].Series["Com_select"].Values[0] == 10
	}, time.Second, 10*time.Millisecond)
}

func TestPauseSuppressesForceRefresh(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 3)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)
	require.NoError(t, rt.Start(context.Background()))

	rt.Pause()
	assert.Equal(t, StatePaused, rt.State())

	rt.ForceRefresh()
	time.Sleep(50 * time.Millisecond)
	snap := rt.Store().Snapshot()
	assert.Empty(t, snap.Timestamps, "a paused runtime must not advance on ForceRefresh")
}

func TestResumeReEnablesAndImmediatelyRefreshes(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 3)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)
	require.NoError(t, rt.Start(context.Background()))

	rt.Pause()
	rt.Resume()
	assert.Equal(t, StateRunning, rt.State(), "Resume only restores from StatePaused to StateRunning; replay dispatch keys off cfg.Reader, not State()")

	require.Eventually(t, func() bool {
		return len(rt.Store().Snapshot().Timestamps) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPauseRenderingIsIndependentOfSampling(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 3)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)
	require.NoError(t, rt.Start(context.Background()))

	assert.False(t, rt.RenderPaused())
	rt.PauseRendering(true)
	assert.True(t, rt.RenderPaused())

	rt.ForceRefresh()
	require.Eventually(t, func() bool {
		return len(rt.Store().Snapshot().Timestamps) == 1
	}, time.Second, 10*time.Millisecond, "sampling must continue even while rendering is paused")
}

func TestReplayBoundsReportsRecordedRange(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 5)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)
	require.NoError(t, rt.Start(context.Background()))

	minID, maxID, _, _, err := rt.ReplayBounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), minID)
	assert.Equal(t, int64(5), maxID)
}

func TestReplayPreviousIntervalStepsBackward(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 5)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)
	require.NoError(t, rt.Start(context.Background()))

	rt.ForceRefresh()
	require.Eventually(t, func() bool { return len(rt.Store().Snapshot().Timestamps) == 1 }, time.Second, 10*time.Millisecond)
	rt.ForceRefresh()
	require.Eventually(t, func() bool {
		return rt.Store().Snapshot().Groups["dml"].Series["Com_select"].Values[0] == 20
	}, time.Second, 10*time.Millisecond)

	rt.ReplayPreviousInterval()
	require.Eventually(t, func() bool {
		return rt.Store().Snapshot().Groups["dml"].Series["Com_select"].Values[0] == 10
	}, time.Second, 10*time.Millisecond, "stepping back one interval must restore the prior recorded values")
}

func TestDisconnectTearsDownReplicaTrackerAndSetsDisconnected(t *testing.T) {
	reader := newReplayReaderWithEntries(t, 1)
	rt := New(Config{ID: "tab-1", Reader: reader}, nil)
	require.NoError(t, rt.Start(context.Background()))

	rt.Disconnect()
	assert.Equal(t, StateDisconnected, rt.State())
}
