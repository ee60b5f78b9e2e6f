package tab

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/dolphie-go/dolphie/internal/changemonitor"
	"github.com/dolphie-go/dolphie/internal/dolphieerr"
	"github.com/dolphie-go/dolphie/internal/metricstore"
	"github.com/dolphie-go/dolphie/internal/sample"
	"github.com/dolphie-go/dolphie/internal/sampler"
)

// ForceRefresh cancels any pending timer and enqueues the next sample
// cycle immediately, used by key `space` and by replay-seek. A cycle
// already in flight makes this a no-op: only one sample cycle may be
// in flight per tab.
func (r *Runtime) ForceRefresh() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.inFlight {
		r.mu.Unlock()
		return
	}
	if r.paused {
		r.mu.Unlock()
		return
	}
	r.inFlight = true
	ctx := r.rootCtx
	r.mu.Unlock()

	go r.runCycle(ctx)
}

// runCycle executes exactly one sample-and-derive pass (or, in replay
// mode, one NextAfter substitution), then re-arms the refresh timer.
func (r *Runtime) runCycle(ctx context.Context) {
	defer r.finishCycle()

	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	isReplay := r.cfg.Reader != nil
	r.mu.Unlock()

	if isReplay {
		r.replayStep(ctx)
		return
	}

	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	if state == StateDisconnected || state == StateReconnecting {
		if err := r.connect(ctx); err != nil {
			r.mu.Lock()
			r.state = StateReconnecting
			r.mu.Unlock()
			r.emit(Event{Title: "connection error", Detail: err.Error(), Severity: changemonitor.SeverityCritical})
			return
		}
		r.mu.Lock()
		r.state = StateRunning
		r.mu.Unlock()
	}

	if err := r.sampleAndDerive(ctx); err != nil {
		kind := dolphieerr.Classify(err)
		switch kind {
		case dolphieerr.QueryTransient, dolphieerr.Connection:
			r.mu.Lock()
			r.state = StateReconnecting
			if r.mainDB != nil {
				r.mainDB.Close()
				r.mainDB = nil
			}
			r.mu.Unlock()
			r.emit(Event{Title: "sample cycle aborted", Detail: err.Error(), Severity: changemonitor.SeverityWarning})
		default:
			r.emit(Event{Title: "sample cycle error", Detail: err.Error(), Severity: changemonitor.SeverityWarning})
		}
	}
}

// sampleAndDerive runs one Poll + Derive + Store.Refresh cycle, plus the
// Change Monitor diff and Replica Tracker reconcile, and records the
// sample when a Recorder is configured.
func (r *Runtime) sampleAndDerive(ctx context.Context) error {
	r.mu.Lock()
	db := r.mainDB
	caps := r.caps
	prev := r.prevSample
	vis := r.visibility()
	store := r.store
	recorder := r.cfg.Recorder
	r.mu.Unlock()

	cur, err := r.sampler.Poll(ctx, db, r.cfg.Endpoint, caps, vis)
	if err != nil {
		return err
	}

	if prev != nil {
		events := r.monitor.Compare(cur.Variables, cur.Status["Uptime"], cur.Replication.Present, false)
		for _, ev := range events {
			if ev.ResetMetricStore {
				store.Reset()
			}
			r.emit(Event{Title: ev.Title, Detail: ev.Detail, Severity: ev.Severity})
		}
	}

	if vis.Replication && r.replicas != nil {
		r.replicas.Reconcile(ctx, caps, cur.AvailableReplicas, func(ctx context.Context) (map[string]int, error) {
			return sampler.ShowReplicas(ctx, db)
		})
		for _, rep := range r.replicas.OpenReplicas() {
			queryStatus := func(ctx context.Context, replicaDB *sql.DB) (sample.ReplicationStatus, error) {
				return sampler.QueryReplicationStatus(ctx, replicaDB, caps)
			}
			if err := r.replicas.PollStatus(ctx, rep, cur.Replication.ExecutedGtidSet, queryStatus, sampler.GTIDSubtract); err != nil {
				r.log.Warn("replica status poll failed", zap.String("replica", rep.Key()), zap.Error(err))
			}
		}
	} else if r.replicas != nil && !vis.Replication {
		r.replicas.TeardownAll()
	}

	derived := r.derive.Derive(store, prev, cur)
	ts := cur.Timestamp
	if prev == nil {
		store.Seed(seedAbsolutes(store, cur))
	} else {
		store.Refresh(ts, derived)
	}

	if recorder != nil {
		if err := recorder.Record(ctx, ts, *cur, store.Snapshot()); err != nil {
			r.log.Warn("replay record failed", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.prevSample = cur
	r.mu.Unlock()
	return nil
}

// seedAbsolutes builds the Store.Seed input for the first cycle after
// (re)connect: every declared series' current absolute counter, with no
// derived point produced.
func seedAbsolutes(store *metricstore.Store, cur *sample.RawSample) map[metricstore.SeriesKey]int64 {
	out := make(map[metricstore.SeriesKey]int64)
	for groupName, g := range store.Groups {
		for seriesName := range g.Series {
			if v, ok := cur.Status[seriesName]; ok {
				out[metricstore.SeriesKey{Group: groupName, Series: seriesName}] = v
			} else if v, ok := cur.InnoDBMetrics[seriesName]; ok {
				out[metricstore.SeriesKey{Group: groupName, Series: seriesName}] = v
			}
		}
	}
	return out
}

// visibility calls the configured VisibilityFunc, defaulting to
// AllVisible() when none was supplied (e.g. a headless/daemon-mode tab).
func (r *Runtime) visibility() sampler.Visibility {
	if r.cfg.Visibility != nil {
		return r.cfg.Visibility()
	}
	return sampler.AllVisible()
}

// finishCycle clears inFlight and re-arms the refresh timer, unless the
// Runtime has been stopped.
func (r *Runtime) finishCycle() {
	r.mu.Lock()
	r.inFlight = false
	stopped := r.rootCtx == nil || r.rootCtx.Err() != nil
	interval := r.cfg.RefreshInterval
	paused := r.paused
	r.mu.Unlock()

	if stopped || paused || interval <= 0 {
		return
	}
	r.armTimer(interval)
}

// armTimer schedules the next ForceRefresh call after d, a single-shot
// timer re-armed at the end of every cycle.
func (r *Runtime) armTimer(d time.Duration) {
	r.mu.Lock()
	r.timer = time.AfterFunc(d, r.ForceRefresh)
	r.mu.Unlock()
}

// Pause suspends the sample loop without tearing down connections; the
// next ForceRefresh/Resume re-arms it.
func (r *Runtime) Pause() {
	r.mu.Lock()
	r.paused = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.state = StatePaused
	r.mu.Unlock()
}

// Resume un-pauses the sample loop and immediately enqueues a cycle.
func (r *Runtime) Resume() {
	r.mu.Lock()
	r.paused = false
	if r.state == StatePaused {
		r.state = StateRunning
	}
	r.mu.Unlock()
	r.ForceRefresh()
}

// PauseRendering sets the render-paused flag without touching the sampling
// loop: sampling continues in the background while the UI layer stops
// consuming snapshots.
func (r *Runtime) PauseRendering(paused bool) {
	r.mu.Lock()
	r.renderPaused = paused
	r.mu.Unlock()
}

// RenderPaused reports whether rendering is currently paused.
func (r *Runtime) RenderPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renderPaused
}

// Stop cancels the in-flight cycle's context and any pending timer. DB
// handles are left open; call Disconnect to close them too.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Disconnect stops the loop and closes both connections and every tracked
// replica connection.
func (r *Runtime) Disconnect() {
	r.Stop()
	r.mu.Lock()
	if r.mainDB != nil {
		r.mainDB.Close()
		r.mainDB = nil
	}
	if r.secondaryDB != nil {
		r.secondaryDB.Close()
		r.secondaryDB = nil
	}
	tracker := r.replicas
	r.state = StateDisconnected
	r.mu.Unlock()
	if tracker != nil {
		tracker.TeardownAll()
	}
}
