package metricstore

import (
	"sync"
	"time"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/endpoint"
)

// SeriesKey addresses one series within a tab's Store: group name + series
// name. Series names are chosen to be unique per group, but a tab can host
// the same status-variable name in two different graph groupings (e.g. a
// raw counter shown both per-second and cumulatively), hence the pair.
type SeriesKey struct {
	Group  string
	Series string
}

// DerivedPoint is one series' contribution to a Refresh call: the value to
// append, and the absolute counter it was computed from (to reseed
// LastAbsolute even when PerSecond is false).
type DerivedPoint struct {
	Derived  int64
	Absolute int64
}

// Store holds one tab's metric groups plus the shared timestamp buffer. All
// mutation goes through Refresh/Seed/Restore/Reset/UpdateSwitch/Prune, each of which
// holds mu for the duration of the mutation; reads (rendering) take a
// coarse RLock around a full Snapshot rather than reading series
// independently, since a series' length may otherwise be observed one
// append behind the timestamp buffer.
type Store struct {
	mu         sync.RWMutex
	flavor     endpoint.Flavor
	isReplay   bool
	Groups     map[string]*Group
	GroupOrder []string
	Timestamps []time.Time
}

// New builds a Store for the given flavor by instantiating every declared
// group that applies to it. isReplay filters out groups declared as not
// replay-compatible.
func New(decls []GroupDecl, flavor endpoint.Flavor, isReplay bool) *Store {
	s := &Store{flavor: flavor, isReplay: isReplay, Groups: make(map[string]*Group)}
	for _, d := range decls {
		if !d.appliesTo(flavor) {
			continue
		}
		if isReplay && !d.ReplayCompatible {
			continue
		}
		s.Groups[d.Name] = newGroup(d)
		s.GroupOrder = append(s.GroupOrder, d.Name)
	}
	return s
}

// Refresh appends one derived value per key in derived, then appends ts to
// the shared timestamp buffer exactly once. Passing an empty derived map
// represents a seed-only cycle (first sample after reconnect): neither
// timestamps nor any series receive an append, preserving alignment.
func (s *Store) Refresh(ts time.Time, derived map[SeriesKey]DerivedPoint) {
	if len(derived) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, point := range derived {
		g, ok := s.Groups[key.Group]
		if !ok {
			continue
		}
		series := g.Get(key.Series)
		if series == nil {
			continue
		}
		series.Append(point.Derived, point.Absolute)
	}
	s.Timestamps = append(s.Timestamps, ts)
}

// Seed records LastAbsolute for a set of series without appending any value
// or timestamp, used for the first cycle after (re)connect.
func (s *Store) Seed(absolutes map[SeriesKey]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, abs := range absolutes {
		g, ok := s.Groups[key.Group]
		if !ok {
			continue
		}
		if series := g.Get(key.Series); series != nil {
			series.Seed(abs)
		}
	}
}

// Reset clears all buffers and switches back to their declared defaults,
// preserving declarations (used on server restart detection).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timestamps = nil
	for _, g := range s.Groups {
		for _, series := range g.Series {
			series.reset()
			series.Visible = series.Decl.CreateSwitch
		}
	}
}

// Restore substitutes timestamps and every named series' values wholesale
// from a previously captured Snapshot, without touching LastAbsolute/seeded
// state or visibility switches. This is the replay-reader write path: the
// reader never recomputes a derived point, it only swaps in the values
// recorded at record time.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timestamps = append([]time.Time(nil), snap.Timestamps...)
	for groupName, sg := range snap.Groups {
		g, ok := s.Groups[groupName]
		if !ok {
			continue
		}
		for seriesName, ss := range sg.Series {
			series := g.Get(seriesName)
			if series == nil {
				continue
			}
			series.Values = append([]int64(nil), ss.Values...)
		}
	}
}

// UpdateSwitch toggles a series' rendering visibility without truncating
// any buffered data.
func (s *Store) UpdateSwitch(groupName, seriesName string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.Groups[groupName]
	if !ok {
		return dolphieerr.New(dolphieerr.Invariant, "unknown metric group: "+groupName)
	}
	series := g.Get(seriesName)
	if series == nil {
		return dolphieerr.New(dolphieerr.Invariant, "unknown series: "+groupName+"."+seriesName)
	}
	series.Visible = visible
	return nil
}

// Prune retains only points whose timestamp is within [olderThan, now],
// i.e. drops everything strictly older than olderThan. It slices every
// series by the same surviving index set as the timestamp buffer, the
// alignment invariant is maintained throughout.
func (s *Store) Prune(olderThan time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make([]int, 0, len(s.Timestamps))
	for i, t := range s.Timestamps {
		if !t.Before(olderThan) {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(s.Timestamps) {
		return
	}

	newTimestamps := make([]time.Time, len(keep))
	for i, idx := range keep {
		newTimestamps[i] = s.Timestamps[idx]
	}
	s.Timestamps = newTimestamps

	for _, g := range s.Groups {
		for _, series := range g.Series {
			series.pruneTo(keep)
		}
	}
}

// Len returns the number of aligned points currently buffered.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Timestamps)
}

// Snapshot is an immutable copy of the store's current state, safe to hand
// to the UI contract without holding any lock during render: publishing an
// immutable snapshot per refresh keeps rendering lock-free.
type Snapshot struct {
	Timestamps []time.Time
	Groups     map[string]SnapshotGroup
	GroupOrder []string
}

type SnapshotGroup struct {
	Decl   GroupDecl
	Series map[string]SnapshotSeries
	Order  []string
}

type SnapshotSeries struct {
	Decl    SeriesDecl
	Visible bool
	Values  []int64
}

// Snapshot takes the read lock once and deep-copies every buffer.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{
		Timestamps: append([]time.Time(nil), s.Timestamps...),
		Groups:     make(map[string]SnapshotGroup, len(s.Groups)),
		GroupOrder: append([]string(nil), s.GroupOrder...),
	}
	for name, g := range s.Groups {
		sg := SnapshotGroup{Decl: g.Decl, Series: make(map[string]SnapshotSeries, len(g.Series)), Order: append([]string(nil), g.Order...)}
		for sname, series := range g.Series {
			sg.Series[sname] = SnapshotSeries{
				Decl:    series.Decl,
				Visible: series.Visible,
				Values:  append([]int64(nil), series.Values...),
			}
		}
		out.Groups[name] = sg
	}
	return out
}
