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

// Package uicontract defines the single output boundary struct handed to
// the (unimplemented) terminal widget layer: a Snapshot assembled once per
// render from a Tab Runtime's Metric Store, processlist, replication/replica
// tables, and event stream. No widget/rendering package consumes this in the
// module beyond the fallback line-printer, which is the one piece of
// "rendering" this module owns (daemon mode / no-TUI-attached).
package uicontract

import (
	"time"

	"github.com/dolphie-go/dolphie/internal/changemonitor"
	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/metricstore"
	"github.com/dolphie-go/dolphie/internal/replica"
	"github.com/dolphie-go/dolphie/internal/sample"
	"github.com/dolphie-go/dolphie/internal/tab"
)

// ConnectionStatus is the coarse badge the UI shows per tab, derived from
// the Tab Runtime state alone.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusReplay       ConnectionStatus = "replay"
)

// Snapshot is the complete, immutable render input for one tab at one
// instant: every field a widget layer would need, with no further
// derivation expected downstream. Publishing an immutable snapshot per
// refresh keeps the UI thread lock-free.
type Snapshot struct {
	TabID      string
	Endpoint   endpoint.Endpoint
	Status     ConnectionStatus
	Caps       endpoint.Capabilities
	RenderedAt time.Time

	Metrics      metricstore.Snapshot
	Processlist  []sample.Thread
	Replication  sample.ReplicationStatus
	Replicas     []replica.Replica
	ClusterState []sample.ClusterMember

	Events []tab.Event
}

// statusFor maps a Tab Runtime's State to the UI's ConnectionStatus badge.
func statusFor(state tab.State) ConnectionStatus {
	switch state {
	case tab.StateRunning, tab.StateConnecting, tab.StatePaused:
		return StatusConnected
	case tab.StateReconnecting:
		return StatusReconnecting
	case tab.StateReplay:
		return StatusReplay
	default:
		return StatusDisconnected
	}
}

// BuildSnapshot assembles a Snapshot from a Tab Runtime's current state. It
// takes no lock of its own beyond what the Runtime's accessor methods
// already provide, so it is safe to call from the UI thread.
func BuildSnapshot(tabID string, ep endpoint.Endpoint, rt *tab.Runtime, cur *sample.RawSample, events []tab.Event, now time.Time) Snapshot {
	snap := Snapshot{
		TabID:      tabID,
		Endpoint:   ep,
		Status:     statusFor(rt.State()),
		Caps:       rt.Capabilities(),
		RenderedAt: now,
		Metrics:    rt.Store().Snapshot(),
		Replicas:   rt.Replicas(),
		Events:     events,
	}
	if cur != nil {
		snap.Processlist = threadSlice(cur.Processlist)
		snap.Replication = cur.Replication
		snap.ClusterState = cur.ClusterMembers
	}
	return snap
}

func threadSlice(m map[int64]*sample.Thread) []sample.Thread {
	out := make([]sample.Thread, 0, len(m))
	for _, t := range m {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// SeverityOf reports the highest Severity present among events.
func SeverityOf(events []tab.Event) changemonitor.Severity {
	highest := changemonitor.SeverityInfo
	for _, ev := range events {
		switch ev.Severity {
		case changemonitor.SeverityCritical:
			return changemonitor.SeverityCritical
		case changemonitor.SeverityWarning:
			highest = changemonitor.SeverityWarning
		}
	}
	return highest
}
