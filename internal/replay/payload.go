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

// Package replay implements the recorder/reader pair for Dolphie's replay
// files: an embedded SQLite store holding dictionary-compressed snapshots of
// every sampling cycle, so a reader can restore exact visual state without
// re-deriving anything.
package replay

import (
	"regexp"
	"strings"
	"time"

	"github.com/dolphie-go/dolphie/internal/metricstore"
	"github.com/dolphie-go/dolphie/internal/sample"
)

// SchemaVersion is bumped whenever the Payload wire shape changes
// incompatibly. A mismatch on open triggers the rename-and-recreate
// behavior.
const SchemaVersion = 1

// droppedStatusKeyPattern matches status/variable keys dropped before
// serialization to shrink payloads.
var droppedStatusKeyPattern = regexp.MustCompile(`(?i)(performance_schema|mysqlx|ssl|rsa|tls)`)

// Payload is one sample cycle's structured, replay-ready snapshot: the raw
// sample (after preprocessing) plus the derived MetricGroup buffers, so a
// reader never needs to re-derive.
type Payload struct {
	Raw        sample.RawSample
	Metrics    metricstore.Snapshot
	Timestamps []time.Time
}

// PreprocessForReplay minifies processlist query text and drops
// status/variable keys matching the exclusion patterns. The input sample
// is not mutated; a shallow-filtered copy is returned.
func PreprocessForReplay(raw sample.RawSample) sample.RawSample {
	out := raw
	out.Status = filterKeys(raw.Status)
	out.Variables = filterStringKeys(raw.Variables)

	if len(raw.Processlist) > 0 {
		out.Processlist = make(map[int64]*sample.Thread, len(raw.Processlist))
		for id, th := range raw.Processlist {
			minified := *th
			minified.Query = minifyQuery(th.Query)
			out.Processlist[id] = &minified
		}
	}
	return out
}

func filterKeys(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		if droppedStatusKeyPattern.MatchString(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func filterStringKeys(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if droppedStatusKeyPattern.MatchString(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// minifyQuery collapses runs of whitespace to a single space and trims the
// result, matching the sampler's own normalization so replayed payloads
// are no larger than necessary.
func minifyQuery(q string) string {
	fields := strings.Fields(q)
	return strings.Join(fields, " ")
}
