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

// Package replica tracks the set of replicas discovered from a primary's
// available_replicas sampling output: opening a connection to each on first
// sight, resolving its port, and computing its errant-transaction set.
package replica

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/sample"
)

// State is the replica connection lifecycle.
type State string

const (
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateError   State = "error"
)

// probeTimeout bounds the MariaDB port-probe TCP connect attempt.
const probeTimeout = 2 * time.Second

// Replica is one tracked replica: its discovery identity, connection, and
// last-known replication status.
type Replica struct {
	mu sync.Mutex

	Host        string
	Port        int
	ReplicaUUID string
	ThreadID    int64

	State      State
	LastError  error
	Caps       endpoint.Capabilities
	Status     sample.ReplicationStatus
	ErrantGTID string

	db *sql.DB
}

// Key returns the host:port map key a Tracker uses.
func (r *Replica) Key() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// Tracker maintains the live replica map for one primary endpoint.
type Tracker struct {
	mu       sync.RWMutex
	log      *zap.Logger
	primary  endpoint.Endpoint
	dial     Dialer
	replicas map[string]*Replica

	// uuidToPort is refreshed whenever the replica count changes, for
	// MySQL >= 8.0.22 non-MariaDB primaries (SHOW REPLICAS).
	uuidToPort map[string]int

	// usedPorts tracks MariaDB TCP-probe results so unused ports are
	// retried for newly discovered replicas rather than re-probing ports
	// already claimed.
	usedPorts map[int]bool
}

// Dialer opens a *sql.DB for a resolved replica endpoint; production code
// wires this to the real go-sql-driver/mysql DSN builder, tests substitute a
// sqlmock-backed stub.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, credentials endpoint.Endpoint) (*sql.DB, error)
}

// NewTracker builds a Tracker for the given primary.
func NewTracker(primary endpoint.Endpoint, dial Dialer, log *zap.Logger) *Tracker {
	return &Tracker{
		primary:    primary,
		dial:       dial,
		log:        log,
		replicas:   make(map[string]*Replica),
		uuidToPort: make(map[string]int),
		usedPorts:  make(map[int]bool),
	}
}

// Reconcile updates the tracker against one sampling cycle's discovery
// output: opens connections for newly seen replicas, tears down ones that
// disappeared, and (on MySQL >=8.0.22 non-MariaDB primaries, whenever the
// replica count changed) refreshes the uuid->port map via showReplicas.
func (t *Tracker) Reconcile(ctx context.Context, primaryCaps endpoint.Capabilities, discovered []sample.AvailableReplica, showReplicas func(ctx context.Context) (map[string]int, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	countChanged := len(discovered) != len(t.replicas)
	if primaryCaps.SupportsShowReplicas && showReplicas != nil && countChanged {
		if m, err := showReplicas(ctx); err == nil {
			t.uuidToPort = m
		} else if t.log != nil {
			t.log.Warn("SHOW REPLICAS failed, keeping stale uuid->port map", zap.Error(err))
		}
	}

	seen := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		port, ok := t.resolvePort(ctx, primaryCaps, d)
		if !ok {
			// No free candidate port (MariaDB probing exhausted its range).
			// Keep a row for this replica in StateError rather than
			// dropping it, keyed on host since no port is known; tracking
			// of every other replica continues unaffected.
			errKey := fmt.Sprintf("%s:0", d.Host)
			seen[errKey] = true
			if existing, exists := t.replicas[errKey]; exists {
				existing.mu.Lock()
				existing.ReplicaUUID = d.ReplicaUUID
				existing.ThreadID = d.ThreadID
				existing.State = StateError
				existing.mu.Unlock()
				continue
			}
			r := &Replica{
				Host: d.Host, Port: 0, ReplicaUUID: d.ReplicaUUID, ThreadID: d.ThreadID,
				State:     StateError,
				LastError: dolphieerr.New(dolphieerr.Connection, "no free port available to probe for replica "+d.Host),
			}
			t.replicas[errKey] = r
			continue
		}
		key := fmt.Sprintf("%s:%d", d.Host, port)
		seen[key] = true
		if _, exists := t.replicas[key]; exists {
			continue
		}
		r := &Replica{Host: d.Host, Port: port, ReplicaUUID: d.ReplicaUUID, ThreadID: d.ThreadID, State: StateOpening}
		t.replicas[key] = r
		go t.open(ctx, r)
	}

	for key, r := range t.replicas {
		if seen[key] {
			continue
		}
		t.teardown(r)
		delete(t.replicas, key)
	}
}

// resolvePort implements two strategies: uuid->port lookup on modern
// MySQL, TCP-probe-and-claim on MariaDB.
func (t *Tracker) resolvePort(ctx context.Context, caps endpoint.Capabilities, d sample.AvailableReplica) (int, bool) {
	if caps.SupportsShowReplicas && d.ReplicaUUID != "" {
		if port, ok := t.uuidToPort[d.ReplicaUUID]; ok {
			return port, true
		}
		return 0, false
	}
	return t.probePort(ctx, d.Host)
}

// probePort tries each candidate replica port in the conventional MySQL
// range, skipping ports already claimed by another tracked replica, and
// claims the first one that accepts a TCP connect within probeTimeout.
func (t *Tracker) probePort(ctx context.Context, host string) (int, bool) {
	candidates := []int{3306, 3307, 3308, 3309, 3310, 3311, 3312, 4000, 13306}
	d := net.Dialer{Timeout: probeTimeout}
	for _, port := range candidates {
		if t.usedPorts[port] {
			continue
		}
		addr := fmt.Sprintf("%s:%d", host, port)
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			continue
		}
		conn.Close()
		t.usedPorts[port] = true
		return port, true
	}
	return 0, false
}

// open establishes the replica connection and fetches its version/flavor.
// Replication status is populated by subsequent PollStatus calls.
func (t *Tracker) open(ctx context.Context, r *Replica) {
	db, err := t.dial.Dial(ctx, r.Host, r.Port, t.primary)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.State = StateError
		r.LastError = dolphieerr.Wrap(dolphieerr.Connection, err, "opening replica connection")
		return
	}
	r.db = db
	r.State = StateOpen
}

// PollStatus runs the flavor-correct replication-status query against an
// open replica and computes its errant-transaction set relative to the
// primary.
func (t *Tracker) PollStatus(ctx context.Context, r *Replica, primaryExecutedGTID string, queryReplicationStatus func(ctx context.Context, db *sql.DB) (sample.ReplicationStatus, error), gtidSubtract func(ctx context.Context, db *sql.DB, set1, set2 string) (string, error)) error {
	r.mu.Lock()
	db := r.db
	state := r.State
	r.mu.Unlock()
	if state != StateOpen || db == nil {
		return dolphieerr.New(dolphieerr.Connection, "replica not open: "+r.Key())
	}

	status, err := queryReplicationStatus(ctx, db)
	if err != nil {
		return dolphieerr.Wrap(dolphieerr.QueryTransient, err, "querying replica replication status")
	}

	errant, err := t.errantGTID(ctx, db, r, primaryExecutedGTID, status.ExecutedGtidSet, gtidSubtract)
	if err != nil && t.log != nil {
		t.log.Warn("errant GTID computation failed", zap.String("replica", r.Key()), zap.Error(err))
	}

	r.mu.Lock()
	r.Status = status
	r.ErrantGTID = errant
	r.mu.Unlock()
	return nil
}

// errantGTID computes GTID_SUBTRACT(replica_executed, primary_executed)
// after stripping the replica's own UUID from replica_executed, avoiding
// false positives when the replica is itself a source elsewhere in the
// topology. Transactions authored by the primary are already excluded by
// GTID_SUBTRACT itself since they appear in both sets.
func (t *Tracker) errantGTID(ctx context.Context, db *sql.DB, r *Replica, primaryExecuted, replicaExecuted string, gtidSubtract func(ctx context.Context, db *sql.DB, set1, set2 string) (string, error)) (string, error) {
	if primaryExecuted == "" || replicaExecuted == "" {
		return "", nil
	}
	stripped := stripUUIDs(replicaExecuted, r.ReplicaUUID)
	result, err := gtidSubtract(ctx, db, stripped, primaryExecuted)
	if err != nil {
		return "", err
	}
	return result, nil
}

// stripUUIDs removes any GTID-set entry belonging to the given uuid, so the
// replica's own transactions are not reported as errant.
func stripUUIDs(gtidSet string, uuids ...string) string {
	if gtidSet == "" {
		return gtidSet
	}
	parts := strings.Split(gtidSet, ",")
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		skip := false
		for _, u := range uuids {
			if u != "" && strings.HasPrefix(p, u) {
				skip = true
				break
			}
		}
		if !skip && p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ",")
}

// teardown closes a replica's connection. Called both for individual
// disappearance and for full tracker teardown.
func (t *Tracker) teardown(r *Replica) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	r.State = StateClosed
}

// TeardownAll closes every tracked replica and empties the map, used when
// the replication panel is hidden or the tab disconnects.
func (t *Tracker) TeardownAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, r := range t.replicas {
		t.teardown(r)
		delete(t.replicas, key)
	}
	t.uuidToPort = make(map[string]int)
	t.usedPorts = make(map[int]bool)
}

// OpenReplicas returns the tracked replicas currently in StateOpen, for the
// Tab Runtime to poll each cycle via PollStatus.
func (t *Tracker) OpenReplicas() []*Replica {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Replica, 0, len(t.replicas))
	for _, r := range t.replicas {
		r.mu.Lock()
		open := r.State == StateOpen
		r.mu.Unlock()
		if open {
			out = append(out, r)
		}
	}
	return out
}

// Snapshot returns a point-in-time copy of the tracked replicas, safe to
// hand to the UI contract.
func (t *Tracker) Snapshot() []Replica {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Replica, 0, len(t.replicas))
	for _, r := range t.replicas {
		r.mu.Lock()
		out = append(out, Replica{
			Host: r.Host, Port: r.Port, ReplicaUUID: r.ReplicaUUID, ThreadID: r.ThreadID,
			State: r.State, LastError: r.LastError, Caps: r.Caps, Status: r.Status, ErrantGTID: r.ErrantGTID,
		})
		r.mu.Unlock()
	}
	return out
}
