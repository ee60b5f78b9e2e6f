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

// Package derive turns successive raw samples into the integer points a
// metricstore.Store appends: per-second rates, ratios, checkpoint age, AHI
// hit ratio, replica speed, and the other specialized derivations.
package derive

import (
	"math"

	"github.com/dolphie-go/dolphie/internal/metricstore"
	"github.com/dolphie-go/dolphie/internal/sample"
)

// Engine carries the smoothing state that must survive across Derive calls
// (the AHI exponential average). It holds a single smoothing state with no
// per-endpoint keying; each Tab Runtime builds its own Engine, so tabs do not
// share smoothing.
type Engine struct {
	ahiSmoothed float64
	ahiSeeded   bool
}

// NewEngine returns an Engine ready for the first sample.
func NewEngine() *Engine {
	return &Engine{}
}

const ahiAlpha = 0.5

// Derive computes the derived point set for one (prev, cur) sample pair. prev
// is nil on the first call after (re)connect, in which case every series is
// only seeded: Derive returns a nil map and the caller must call Store.Seed
// with the absolutes instead of Store.Refresh.
func (e *Engine) Derive(store *metricstore.Store, prev, cur *sample.RawSample) map[metricstore.SeriesKey]metricstore.DerivedPoint {
	if prev == nil {
		return nil
	}
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		dt = 1
	}

	out := make(map[metricstore.SeriesKey]metricstore.DerivedPoint)

	for groupName, group := range store.Groups {
		for seriesName, series := range group.Series {
			key := metricstore.SeriesKey{Group: groupName, Series: seriesName}
			curVal, ok := counterValue(cur, groupName, seriesName)
			if !ok {
				continue
			}
			if !series.Seeded() {
				continue
			}
			prevVal := series.LastAbsolute
			var derived int64
			if series.Decl.PerSecond {
				derived = int64(math.Round(float64(curVal-prevVal) / dt))
			} else {
				derived = curVal
			}
			out[key] = metricstore.DerivedPoint{Derived: derived, Absolute: curVal}
		}
	}

	if ratio, ok := CheckpointAgeRatio(cur); ok {
		out[metricstore.SeriesKey{Group: "checkpoint", Series: "Innodb_checkpoint_age"}] = metricstore.DerivedPoint{Derived: int64(math.Round(ratio)), Absolute: int64(math.Round(ratio))}
	}

	if hitRatio, ok := e.AdaptiveHashHitRatio(prev, cur, dt); ok {
		out[metricstore.SeriesKey{Group: "adaptive_hash_index", Series: "hit_ratio"}] = metricstore.DerivedPoint{Derived: int64(math.Round(hitRatio)), Absolute: int64(math.Round(hitRatio))}
	}

	if mux, ok := ProxySQLMultiplexEfficiency(cur); ok {
		out[metricstore.SeriesKey{Group: "proxysql_multiplex_efficiency", Series: "proxysql_multiplex_efficiency_ratio"}] = metricstore.DerivedPoint{Derived: int64(math.Round(mux)), Absolute: int64(math.Round(mux))}
	}

	if cur.Replication.Present && prev.Replication.Present {
		speed, ok := e.ReplicaSpeed(prev.Replication.SecondsBehind, cur.Replication.SecondsBehind, dt)
		if ok {
			out[metricstore.SeriesKey{Group: "replication_lag", Series: "lag"}] = metricstore.DerivedPoint{Derived: speed, Absolute: speed}
		}
	}

	out[metricstore.SeriesKey{Group: "locks", Series: "metadata_lock_count"}] = metricstore.DerivedPoint{
		Derived:  int64(len(cur.MetadataLocks)),
		Absolute: int64(len(cur.MetadataLocks)),
	}

	return out
}

// counterValue finds the raw absolute counter a declared series is sourced
// from. The status map and the innodb_metrics map cover the overwhelming
// majority of series; the remainder are computed directly in Derive.
func counterValue(s *sample.RawSample, group, series string) (int64, bool) {
	if v, ok := s.Status[series]; ok {
		return v, ok
	}
	if v, ok := s.InnoDBMetrics[series]; ok {
		return v, ok
	}
	return 0, false
}

// redoLogSize implements redo_log_size = max(innodb_redo_log_capacity,
// innodb_log_file_size * innodb_log_files_in_group), reading both from
// Variables since they are server configuration, not status counters.
func redoLogSize(s *sample.RawSample) (int64, bool) {
	capacity, _ := parseIntVar(s, "innodb_redo_log_capacity")
	fileSize, okFS := parseIntVar(s, "innodb_log_file_size")
	filesGroup, okFG := parseIntVar(s, "innodb_log_files_in_group")
	var product int64
	if okFS && okFG {
		product = fileSize * filesGroup
	}
	size := capacity
	if product > size {
		size = product
	}
	if size <= 0 {
		return 0, false
	}
	return size, true
}

func parseIntVar(s *sample.RawSample, name string) (int64, bool) {
	raw, ok := s.Variables[name]
	if !ok {
		return 0, false
	}
	var v int64
	var sign int64 = 1
	i := 0
	if len(raw) > 0 && raw[0] == '-' {
		sign = -1
		i = 1
	}
	if i == len(raw) {
		return 0, false
	}
	for ; i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	return v * sign, true
}

// CheckpointAge returns the raw Innodb_checkpoint_age status counter. When
// that status variable is absent it reports false; no performance_schema
// source is consulted in its place.
func CheckpointAge(s *sample.RawSample) (int64, bool) {
	if v, ok := s.Status["Innodb_checkpoint_age"]; ok {
		return v, true
	}
	return 0, false
}

// CheckpointAgeRatio computes Innodb_checkpoint_age / redo_log_size * 100.
func CheckpointAgeRatio(s *sample.RawSample) (float64, bool) {
	age, ok := CheckpointAge(s)
	if !ok {
		return 0, false
	}
	size, ok := redoLogSize(s)
	if !ok {
		return 0, false
	}
	return float64(age) / float64(size) * 100, true
}

// CheckpointColorBand reports the display color band for a checkpoint age
// ratio: >=80 red, >=60 yellow, else green.
func CheckpointColorBand(ratio float64) string {
	switch {
	case ratio >= 80:
		return metricstore.ColorRed
	case ratio >= 60:
		return metricstore.ColorYellow
	default:
		return metricstore.ColorGreen
	}
}

// SyncFlushThreshold is redo_log_size * 0.825, the point at which InnoDB
// begins synchronous flushing to protect the checkpoint margin.
func SyncFlushThreshold(s *sample.RawSample) (float64, bool) {
	size, ok := redoLogSize(s)
	if !ok {
		return 0, false
	}
	return float64(size) * 0.825, true
}

// AdaptiveHashHitRatio computes the smoothed AHI hit ratio. Returns false
// when the underlying delta is undefined (hits+misses <= 0, or either
// previous counter is missing) or when innodb_adaptive_hash_index=OFF.
func (e *Engine) AdaptiveHashHitRatio(prev, cur *sample.RawSample, dt float64) (float64, bool) {
	if raw, ok := cur.Variables["innodb_adaptive_hash_index"]; ok && raw == "OFF" {
		return 0, false
	}
	prevHits, okPH := prev.InnoDBMetrics["adaptive_hash_searches"]
	curHits, okCH := cur.InnoDBMetrics["adaptive_hash_searches"]
	prevMiss, okPM := prev.InnoDBMetrics["adaptive_hash_searches_btree"]
	curMiss, okCM := cur.InnoDBMetrics["adaptive_hash_searches_btree"]
	if !okPH || !okCH || !okPM || !okCM {
		return 0, false
	}
	hits := curHits - prevHits
	misses := curMiss - prevMiss
	if hits+misses <= 0 {
		return 0, false
	}
	raw := float64(hits) / float64(hits+misses) * 100

	if !e.ahiSeeded {
		e.ahiSmoothed = raw
		e.ahiSeeded = true
	} else {
		e.ahiSmoothed = (1-ahiAlpha)*e.ahiSmoothed + ahiAlpha*raw
	}
	if e.ahiSmoothed <= 0.01 {
		return 0, false
	}
	return e.ahiSmoothed, true
}

// ReplicaSpeed computes max(0, round((prevLag-curLag)/dt)) when curLag <
// prevLag, else 0. Returns false when either lag is nil (threads stopped).
func (e *Engine) ReplicaSpeed(prevLag, curLag *int64, dt float64) (int64, bool) {
	if prevLag == nil || curLag == nil {
		return 0, false
	}
	if *curLag >= *prevLag {
		return 0, true
	}
	speed := int64(math.Round(float64(*prevLag-*curLag) / dt))
	if speed < 0 {
		speed = 0
	}
	return speed, true
}

// ProxySQLMultiplexEfficiency computes 100 - (cp_connections /
// frontend_connected) * 100, clamped to [0, 100] and rounded.
func ProxySQLMultiplexEfficiency(s *sample.RawSample) (float64, bool) {
	cpConnections, okCP := s.Status["Client_Connections_connected_hostgroups"]
	frontendConnected, okFC := s.Status["Client_Connections_connected"]
	if !okCP {
		cpConnections, okCP = s.Status["conn_pool_connections"]
	}
	if !okCP || !okFC || frontendConnected == 0 {
		return 0, false
	}
	efficiency := 100 - (float64(cpConnections)/float64(frontendConnected))*100
	if efficiency < 0 {
		efficiency = 0
	}
	if efficiency > 100 {
		efficiency = 100
	}
	return efficiency, true
}

// BinlogDiffResult is the outcome of comparing two binlog positions: either a
// plain byte delta, or a rotation (prev position went backwards because the
// file rolled over).
type BinlogDiffResult struct {
	Diff    int64
	Rotated bool
}

// BinlogDiff is the binlog position comparator: prev=0 (unknown) yields
// diff=0; prev>cur is reported as rotated; else diff=cur-prev.
func BinlogDiff(prevPosition, curPosition int64) BinlogDiffResult {
	switch {
	case prevPosition == 0:
		return BinlogDiffResult{Diff: 0}
	case prevPosition > curPosition:
		return BinlogDiffResult{Rotated: true}
	default:
		return BinlogDiffResult{Diff: curPosition - prevPosition}
	}
}

// ApplierWorkerUsage is one worker's share of total replication-applier
// thread events since the previous sample.
type ApplierWorkerUsage struct {
	WorkerID int64
	Percent  float64
}

// ApplierWorkerPercentages computes each worker's total_thread_events delta
// over the all-workers delta, as a percentage.
func ApplierWorkerPercentages(prev, cur []sample.ApplierWorker) []ApplierWorkerUsage {
	prevByID := make(map[int64]int64, len(prev))
	for _, w := range prev {
		prevByID[w.WorkerID] = w.TotalThreadEvents
	}

	deltas := make(map[int64]int64, len(cur))
	var total int64
	for _, w := range cur {
		prevEvents, ok := prevByID[w.WorkerID]
		if !ok {
			continue
		}
		delta := w.TotalThreadEvents - prevEvents
		if delta < 0 {
			delta = 0
		}
		deltas[w.WorkerID] = delta
		total += delta
	}

	out := make([]ApplierWorkerUsage, 0, len(cur))
	for _, w := range cur {
		delta, ok := deltas[w.WorkerID]
		if !ok {
			continue
		}
		var pct float64
		if total > 0 {
			pct = float64(delta) / float64(total) * 100
		}
		out = append(out, ApplierWorkerUsage{WorkerID: w.WorkerID, Percent: pct})
	}
	return out
}
