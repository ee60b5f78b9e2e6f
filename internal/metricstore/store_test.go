package metricstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolphie-go/dolphie/internal/endpoint"
)

func testDecls() []GroupDecl {
	return []GroupDecl{
		{
			Name:             "dml",
			TabLabel:         "DML",
			ReplayCompatible: true,
			Series: []SeriesDecl{
				{Name: "Com_select", PerSecond: true, SaveHistory: true, CreateSwitch: true},
				{Name: "Threads_connected", PerSecond: false, SaveHistory: false, CreateSwitch: true},
			},
		},
		{
			Name:    "proxysql_only",
			Flavors: []endpoint.Flavor{endpoint.FlavorProxySQL},
			Series: []SeriesDecl{
				{Name: "Questions", SaveHistory: true},
			},
		},
	}
}

func TestNewFiltersGroupsByFlavor(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	_, ok := s.Groups["dml"]
	assert.True(t, ok)
	_, ok = s.Groups["proxysql_only"]
	assert.False(t, ok, "proxysql-only group must not apply to MySQL")

	s2 := New(testDecls(), endpoint.FlavorProxySQL, false)
	_, ok = s2.Groups["proxysql_only"]
	assert.True(t, ok)
}

func TestRefreshMaintainsAlignmentInvariant(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	now := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		s.Refresh(ts, map[SeriesKey]DerivedPoint{
			{Group: "dml", Series: "Com_select"}: {Derived: int64(i), Absolute: int64(i * 10)},
		})
	}

	require.Len(t, s.Timestamps, 5)
	series := s.Groups["dml"].Get("Com_select")
	require.NotNil(t, series)
	assert.Len(t, series.Values, len(s.Timestamps), "SaveHistory series must stay aligned with the timestamp buffer")
}

func TestRefreshWithEmptyDerivedIsSeedOnlyNoOp(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	s.Refresh(time.Now(), map[SeriesKey]DerivedPoint{})
	assert.Empty(t, s.Timestamps, "an empty derived map must not append a timestamp")
}

func TestSeedDoesNotAppendValues(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	s.Seed(map[SeriesKey]int64{
		{Group: "dml", Series: "Com_select"}: 42,
	})
	series := s.Groups["dml"].Get("Com_select")
	require.NotNil(t, series)
	assert.True(t, series.Seeded())
	assert.Equal(t, int64(42), series.LastAbsolute)
	assert.Empty(t, series.Values)
	assert.Empty(t, s.Timestamps)
}

func TestResetPreservesDeclarationsAndRestoresDefaultSwitches(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	s.Refresh(time.Now(), map[SeriesKey]DerivedPoint{
		{Group: "dml", Series: "Com_select"}: {Derived: 1, Absolute: 10},
	})
	s.UpdateSwitch("dml", "Com_select", false)

	s.Reset()

	assert.Empty(t, s.Timestamps)
	series := s.Groups["dml"].Get("Com_select")
	require.NotNil(t, series)
	assert.Empty(t, series.Values)
	assert.False(t, series.Seeded())
	assert.True(t, series.Visible, "Reset restores the declared default switch state, discarding the prior toggle")
}

func TestPruneKeepsAlignmentAcrossAllSeries(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	base := time.Unix(2000, 0)
	for i := 0; i < 10; i++ {
		s.Refresh(base.Add(time.Duration(i)*time.Second), map[SeriesKey]DerivedPoint{
			{Group: "dml", Series: "Com_select"}: {Derived: int64(i), Absolute: int64(i)},
		})
	}

	cutoff := base.Add(5 * time.Second)
	s.Prune(cutoff)

	series := s.Groups["dml"].Get("Com_select")
	require.NotNil(t, series)
	require.Len(t, s.Timestamps, len(series.Values))
	for _, ts := range s.Timestamps {
		assert.False(t, ts.Before(cutoff))
	}
}

func TestRestoreSwapsValuesWithoutTouchingSeed(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, true)
	s.Seed(map[SeriesKey]int64{{Group: "dml", Series: "Com_select"}: 7})

	snap := Snapshot{
		Timestamps: []time.Time{time.Unix(1, 0), time.Unix(2, 0)},
		Groups: map[string]SnapshotGroup{
			"dml": {
				Series: map[string]SnapshotSeries{
					"Com_select": {Values: []int64{100, 200}},
				},
			},
		},
	}
	s.Restore(snap)

	require.Len(t, s.Timestamps, 2)
	series := s.Groups["dml"].Get("Com_select")
	require.NotNil(t, series)
	assert.Equal(t, []int64{100, 200}, series.Values)
	assert.True(t, series.Seeded(), "Restore must not clear the seed state Seed established")
	assert.Equal(t, int64(7), series.LastAbsolute, "Restore only swaps Values, never LastAbsolute")
}

func TestUpdateSwitchUnknownSeriesReturnsInvariantError(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	err := s.UpdateSwitch("dml", "does_not_exist", true)
	assert.Error(t, err)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := New(testDecls(), endpoint.FlavorMySQL, false)
	s.Refresh(time.Now(), map[SeriesKey]DerivedPoint{
		{Group: "dml", Series: "Com_select"}: {Derived: 1, Absolute: 1},
	})
	snap := s.Snapshot()

	s.Refresh(time.Now(), map[SeriesKey]DerivedPoint{
		{Group: "dml", Series: "Com_select"}: {Derived: 2, Absolute: 2},
	})

	assert.Len(t, snap.Timestamps, 1, "snapshot taken before the second refresh must not see it")
}
