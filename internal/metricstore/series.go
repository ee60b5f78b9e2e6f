// Copyright © 2024 Dolphie-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metricstore holds the in-memory time-series metric store: a
// shared timestamp buffer per tab plus a set of MetricGroups, each exposing
// named MetricSeries. Appends are the only mutation; alignment between the
// timestamp buffer and every observed series is the central invariant.
package metricstore

import "github.com/dolphie-go/dolphie/internal/endpoint"

// SeriesDecl is the static, data-only declaration of one series within a
// group (design note: declarations are data, not reflected-over code shape).
type SeriesDecl struct {
	Name            string
	Label           string
	Color           string
	Graphable       bool
	CreateSwitch    bool
	PerSecond       bool
	SaveHistory     bool
}

// GroupDecl is the static declaration of one graph-tab grouping.
type GroupDecl struct {
	Name              string
	TabLabel          string
	Flavors           []endpoint.Flavor // empty means "all flavors"
	ReplayCompatible  bool
	Series            []SeriesDecl
}

func (g GroupDecl) appliesTo(f endpoint.Flavor) bool {
	if len(g.Flavors) == 0 {
		return true
	}
	for _, x := range g.Flavors {
		if x == f {
			return true
		}
	}
	return false
}

// Series is the live, per-tab state for one declared series: the append-only
// value buffer, the visibility switch, and the delta-math seed.
type Series struct {
	Decl SeriesDecl

	// Visible controls rendering only; it never truncates Values.
	Visible bool

	// seeded is false until the first absolute value has been observed;
	// per the invariant, the first sample after (re)connect seeds
	// LastAbsolute and produces no appended point.
	seeded bool
	LastAbsolute int64

	// Values is aligned 1:1 with the owning Store's Timestamps for any
	// series with SaveHistory=true. A series with SaveHistory=false keeps
	// only the most recent value and Values has length 0 or 1.
	Values []int64
}

func newSeries(decl SeriesDecl) *Series {
	return &Series{Decl: decl, Visible: decl.CreateSwitch}
}

// Seeded reports whether LastAbsolute has been initialized from an observed
// sample yet.
func (s *Series) Seeded() bool { return s.seeded }

// Seed sets LastAbsolute without appending a value, used for the first
// sample after (re)connect.
func (s *Series) Seed(absolute int64) {
	s.LastAbsolute = absolute
	s.seeded = true
}

// Append records derived as the next value (and updates the delta seed to
// absolute). Callers pass the same value for both derived and absolute when
// PerSecond is false.
func (s *Series) Append(derived int64, absolute int64) {
	if s.Decl.SaveHistory {
		s.Values = append(s.Values, derived)
	} else {
		if len(s.Values) == 0 {
			s.Values = append(s.Values, derived)
		} else {
			s.Values[0] = derived
		}
	}
	s.LastAbsolute = absolute
	s.seeded = true
}

// Last returns the most recently appended value and whether one exists.
func (s *Series) Last() (int64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	return s.Values[len(s.Values)-1], true
}

// reset clears buffered values and the delta seed but keeps the declaration
// and the switch state (Reset() preserves declarations and visibility
// toggles).
func (s *Series) reset() {
	s.Values = nil
	s.seeded = false
	s.LastAbsolute = 0
}

// pruneTo keeps only the values at the given surviving indices, used by
// Store.Prune to slice every series by the same index set as the shared
// timestamp buffer.
func (s *Series) pruneTo(keep []int) {
	if !s.Decl.SaveHistory {
		return
	}
	out := make([]int64, len(keep))
	for i, idx := range keep {
		out[i] = s.Values[idx]
	}
	s.Values = out
}
