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

// Package changemonitor compares successive sampling cycles' variables maps
// and raw status to detect server restarts, read_only transitions, and
// ad-hoc global variable changes.
package changemonitor

import (
	"fmt"

	"github.com/dolphie-go/dolphie/internal/endpoint"
)

// Severity mirrors the UI contract's notification severities.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one change-monitor finding, surfaced both as a replay-recorded
// event and as a UI notification.
type Event struct {
	Title    string
	Detail   string
	Severity Severity

	// ResetMetricStore is true when the Tab Runtime must reset the Metric
	// Store in response to this event (server restart detection).
	ResetMetricStore bool
}

// defaultExclusions are variables whose churn is expected and not worth a
// notification.
var defaultExclusions = map[string]bool{
	"gtid_executed":               true,
	"innodb_thread_sleep_delay":   true,
}

// Monitor holds the exclusion set and the last-seen variables/status used to
// diff against the next sample.
type Monitor struct {
	exclusions map[string]bool

	prevVariables map[string]string
	prevUptime    int64
	prevReadOnly  *bool
}

// NewMonitor builds a Monitor with the built-in exclusions plus any
// user-supplied additions.
func NewMonitor(userExclusions []string) *Monitor {
	m := &Monitor{exclusions: make(map[string]bool, len(defaultExclusions)+len(userExclusions))}
	for k := range defaultExclusions {
		m.exclusions[k] = true
	}
	for _, k := range userExclusions {
		m.exclusions[k] = true
	}
	return m
}

// Compare diffs the current sample's variables and Uptime/read_only status
// against the previously observed sample, returning the events to emit. It
// is safe to call with no prior state (first cycle): it seeds and returns no
// events.
func (m *Monitor) Compare(variables map[string]string, uptime int64, isReplica bool, isNonPrimaryGRMember bool) []Event {
	var events []Event

	if m.prevVariables != nil {
		for key, cur := range variables {
			prev, existed := m.prevVariables[key]
			if !existed || prev == cur || m.exclusions[key] {
				continue
			}
			events = append(events, Event{
				Title:    "global variable changed",
				Detail:   fmt.Sprintf("%s: %q -> %q", key, prev, cur),
				Severity: SeverityInfo,
			})
		}

		if uptime < m.prevUptime {
			events = append(events, Event{
				Title:            "server restart detected",
				Detail:           fmt.Sprintf("Uptime regressed from %d to %d seconds", m.prevUptime, uptime),
				Severity:         SeverityWarning,
				ResetMetricStore: true,
			})
		}
	}

	if readOnly, ok := parseBool(variables["read_only"]); ok {
		if m.prevReadOnly != nil && *m.prevReadOnly != readOnly {
			ev := Event{
				Title:    "read_only changed",
				Detail:   readOnlyStateLabel(readOnly),
				Severity: SeverityInfo,
			}
			if !isReplica && !isNonPrimaryGRMember {
				ev.Severity = SeverityWarning
				ev.Detail += ": host is neither a replica nor a non-primary group-replication member; this may be a misconfiguration"
			}
			events = append(events, ev)
		}
		m.prevReadOnly = &readOnly
	}

	m.prevVariables = variables
	m.prevUptime = uptime
	return events
}

// Reset clears the monitor's last-seen state, used alongside a Metric Store
// Reset on detected server restart so the next cycle reseeds cleanly.
func (m *Monitor) Reset() {
	m.prevVariables = nil
	m.prevUptime = 0
	m.prevReadOnly = nil
}

func readOnlyStateLabel(readOnly bool) string {
	if readOnly {
		return "read-only"
	}
	return "read-write"
}

func parseBool(v string) (bool, bool) {
	switch v {
	case "ON", "1", "YES":
		return true, true
	case "OFF", "0", "NO":
		return false, true
	default:
		return false, false
	}
}

// ConnectionStatusBadge derives the badge shown alongside a flavor/endpoint,
// the direct consumer of a read_only transition event.
func ConnectionStatusBadge(variables map[string]string, flavor endpoint.Flavor) string {
	if flavor == endpoint.FlavorProxySQL {
		return ""
	}
	if readOnly, ok := parseBool(variables["read_only"]); ok {
		return readOnlyStateLabel(readOnly)
	}
	return ""
}
