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

// Package tab implements the Tab Runtime: the owner of one monitored
// endpoint's two connections, worker lifecycle, cancellation, and reconnect
// state machine, wiring together the Sampler, Derivation Engine, Metric
// Store, Replica Tracker, Change Monitor and optional Replay
// Recorder/Reader for that endpoint.
package tab

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dolphie-go/dolphie/internal/changemonitor"
	"github.com/dolphie-go/dolphie/internal/derive"
	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/metricstore"
	"github.com/dolphie-go/dolphie/internal/replay"
	"github.com/dolphie-go/dolphie/internal/replica"
	"github.com/dolphie-go/dolphie/internal/sample"
	"github.com/dolphie-go/dolphie/internal/sampler"
)

// State is the Tab Runtime's coarse connection state, the basis for the
// connection-status badge in the UI contract.
type State string

const (
	StateConnecting   State = "connecting"
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
	StateReplay       State = "replay"
)

// Event is one notification surfaced to the UI contract's event stream,
// carrying the same severities the Change Monitor emits.
type Event struct {
	Title    string
	Detail   string
	Severity changemonitor.Severity
}

// VisibilityFunc lets the Tab Runtime ask the (external) UI layer which
// optional panels are currently shown, so the Sampler only issues the
// queries that back them.
type VisibilityFunc func() sampler.Visibility

// Config bundles the fixed parameters a Runtime is constructed with.
type Config struct {
	ID              string
	Endpoint        endpoint.Endpoint
	RefreshInterval time.Duration
	Visibility      VisibilityFunc
	HeartbeatTable  string // db.table, empty when not configured
	Recorder        *replay.Recorder
	Reader          *replay.Reader
	Exclusions      []string // change-monitor variable exclusions beyond the defaults
}

// Runtime owns a single monitored endpoint end to end. All mutable fields
// are guarded by mu; the sample loop and any command that touches
// connections or state must hold it for the duration of the mutation.
type Runtime struct {
	id  string
	log *zap.Logger
	cfg Config

	mu           sync.Mutex
	mainDB       *sql.DB
	secondaryDB  *sql.DB
	caps         endpoint.Capabilities
	state        State
	paused       bool
	renderPaused bool // supplemented feature: rendering pause independent of sampling
	prevSample   *sample.RawSample
	rootCtx      context.Context
	cancel       context.CancelFunc
	timer        *time.Timer
	inFlight     bool
	replayCursor int64

	store    *metricstore.Store
	derive   *derive.Engine
	sampler  *sampler.Sampler
	replicas *replica.Tracker
	monitor  *changemonitor.Monitor

	Events chan Event
}

// New builds a Runtime for cfg.Endpoint, wiring its own Metric Store, a
// fresh Derivation Engine and Change Monitor, and a Sampler. The Metric
// Store is rebuilt for the real flavor once connect() learns it; until
// then it defaults to the MySQL group set so a replay-mode Runtime (which
// never calls connect) still has a usable store from construction.
func New(cfg Config, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	isReplay := cfg.Reader != nil
	r := &Runtime{
		id:      cfg.ID,
		log:     log.With(zap.String("tab", cfg.ID)),
		cfg:     cfg,
		state:   StateConnecting,
		store:   metricstore.New(metricstore.Declarations, endpoint.FlavorMySQL, isReplay),
		derive:  derive.NewEngine(),
		sampler: sampler.New(log, nil),
		monitor: changemonitor.NewMonitor(cfg.Exclusions),
		Events:  make(chan Event, 32),
	}
	if isReplay {
		r.state = StateReplay
	}
	return r
}

// Start connects and arms the first sample cycle. In replay mode it neither
// dials nor arms a cycle; ForceRefresh advances the replay.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.rootCtx = ctx
	r.cancel = cancel
	replayMode := r.cfg.Reader != nil
	r.mu.Unlock()

	if replayMode {
		return nil
	}

	if err := r.connect(ctx); err != nil {
		r.mu.Lock()
		r.state = StateDisconnected
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.state = StateRunning
	r.mu.Unlock()
	r.ForceRefresh()
	return nil
}

// connect opens the main and secondary handles, probes capabilities, and
// rebuilds the Metric Store for the real flavor (a flavor's declared
// groups are fixed for the life of the Store).
func (r *Runtime) connect(ctx context.Context) error {
	mainDB, err := Connect(ctx, r.cfg.Endpoint)
	if err != nil {
		return err
	}
	secondaryDB, err := Connect(ctx, r.cfg.Endpoint)
	if err != nil {
		mainDB.Close()
		return err
	}
	caps, err := probeCapabilities(ctx, mainDB)
	if err != nil {
		mainDB.Close()
		secondaryDB.Close()
		return err
	}

	r.mu.Lock()
	r.mainDB = mainDB
	r.secondaryDB = secondaryDB
	r.caps = caps
	r.store = metricstore.New(metricstore.Declarations, caps.Flavor, false)
	r.replicas = replica.NewTracker(r.cfg.Endpoint, ReplicaDialer{}, r.log)
	r.prevSample = nil
	r.monitor.Reset()
	r.mu.Unlock()
	return nil
}

// Store returns the Runtime's Metric Store, for the UI contract to
// snapshot on render.
func (r *Runtime) Store() *metricstore.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}

// State reports the Runtime's current connection state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Capabilities reports the capability record learned at connect; zero
// value before the first successful connect.
func (r *Runtime) Capabilities() endpoint.Capabilities {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caps
}

// Replicas returns the Replica Tracker's current snapshot, or nil before
// connect.
func (r *Runtime) Replicas() []replica.Replica {
	r.mu.Lock()
	t := r.replicas
	r.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Snapshot()
}

// emit pushes an event to the Events channel, dropping it if the channel is
// full rather than blocking the sample loop on a slow UI consumer.
func (r *Runtime) emit(ev Event) {
	select {
	case r.Events <- ev:
	default:
	}
}
