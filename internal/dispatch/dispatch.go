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

// Package dispatch implements the Command Dispatcher: per-key debounced
// keystroke->action mapping that delegates panel toggles, tab management,
// filter application, kill actions, replay controls, display toggles, and
// informational commands to the owning Tab Runtime.
//
// The debounce loop is grounded on the teacher's
// internal/plugin/config_watcher.go drain-then-fire reload loop: buffer
// incoming actions per key, sleep out the debounce window, drop duplicate
// keys queued during the sleep, then fire the latest one.
package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action identifies one dispatcher command. The concrete payload travels in
// Command.Args.
type Action string

const (
	ActionPanelToggle    Action = "panel_toggle"
	ActionTabCreate      Action = "tab_create"
	ActionTabRename      Action = "tab_rename"
	ActionTabRemove      Action = "tab_remove"
	ActionTabSwitch      Action = "tab_switch"
	ActionFilterApply    Action = "filter_apply"
	ActionFilterClear    Action = "filter_clear"
	ActionKillByID       Action = "kill_by_id"
	ActionKillByCriteria Action = "kill_by_criteria"
	ActionReplayStep     Action = "replay_step"
	ActionReplayPause    Action = "replay_pause"
	ActionReplaySeek     Action = "replay_seek"
	ActionDisplayToggle  Action = "display_toggle"
	ActionForceRefresh   Action = "force_refresh"
	ActionInfoCommand    Action = "info_command"
)

// defaultDebounce is applied to any key without a more specific entry in
// debounceOverrides.
const defaultDebounce = 50 * time.Millisecond

var debounceOverrides = map[Action]time.Duration{
	ActionReplayStep:   100 * time.Millisecond,
	ActionForceRefresh: 300 * time.Millisecond,
	ActionTabRemove:    300 * time.Millisecond, // destructive, debounced harder against repeat-key
}

func debounceFor(a Action) time.Duration {
	if d, ok := debounceOverrides[a]; ok {
		return d
	}
	return defaultDebounce
}

// Command is one dispatched action plus its free-form argument bundle; the
// Handler interprets Args according to Action.
type Command struct {
	Action Action
	Args   map[string]interface{}
}

// GuardState reports the conditions that block command execution: a guard
// prevents running commands while a hostgroup connect-wave is in progress,
// the secondary connection is busy, the tab is disconnected (except for
// replay), or modal screens are stacked.
type GuardState struct {
	ConnectWaveInProgress bool
	SecondaryBusy         bool
	Disconnected          bool
	IsReplay              bool
	ModalStackDepth       int
}

// Blocked reports whether the guard forbids running cmd right now.
func (g GuardState) Blocked(a Action) bool {
	if g.ModalStackDepth > 0 {
		return true
	}
	if g.Disconnected && !g.IsReplay {
		return true
	}
	if g.ConnectWaveInProgress {
		return true
	}
	if g.SecondaryBusy && isInformational(a) {
		return true
	}
	return false
}

func isInformational(a Action) bool {
	return a == ActionInfoCommand || a == ActionKillByCriteria
}

// Handler executes one resolved Command; implementations live at the
// composition root where a Tab Runtime, UI state, and informational-query
// worker are all in scope.
type Handler interface {
	Handle(ctx context.Context, cmd Command) error
}

// GuardFunc reports the current guard state, queried fresh on every debounce
// firing since connect-wave/secondary-busy can change while a key sits
// debounced.
type GuardFunc func() GuardState

// pendingKey groups debounced commands by a dedupe key: same Action plus,
// for actions that carry an identity (tab id, kill target), that identity,
// so e.g. switching to tab A then tab B within the window fires only once,
// on B.
type pendingKey struct {
	action Action
	target string
}

// Dispatcher owns one debounce-and-fire loop per pending key, per tab. A
// single Dispatcher instance serves exactly one Tab Runtime's keystrokes.
type Dispatcher struct {
	log    *zap.Logger
	guard  GuardFunc
	handle Handler

	mu      sync.Mutex
	pending map[pendingKey]chan Command
	wg      sync.WaitGroup
}

// New builds a Dispatcher that delegates resolved commands to handle, and
// consults guard before every firing.
func New(handle Handler, guard GuardFunc, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:     log,
		guard:   guard,
		handle:  handle,
		pending: make(map[pendingKey]chan Command),
	}
}

// targetOf extracts the dedupe identity from a command's Args, when one
// applies; commands without a natural identity (filter apply, tab switch)
// dedupe purely on Action.
func targetOf(cmd Command) string {
	switch cmd.Action {
	case ActionTabRemove, ActionTabRename:
		if id, ok := cmd.Args["tab_id"].(string); ok {
			return id
		}
	case ActionKillByID:
		if id, ok := cmd.Args["thread_id"].(int64); ok {
			return strconv.FormatInt(id, 10)
		}
	case ActionPanelToggle, ActionDisplayToggle:
		if name, ok := cmd.Args["name"].(string); ok {
			return name
		}
	}
	return ""
}

// Dispatch enqueues cmd for debounced execution. Each (action, target) pair
// runs its own debounce window; repeated keystrokes for the same pair within
// the window collapse to the last one, mirroring the teacher's
// drain-then-fire reload loop.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) {
	key := pendingKey{action: cmd.Action, target: targetOf(cmd)}

	d.mu.Lock()
	ch, exists := d.pending[key]
	if !exists {
		ch = make(chan Command, 1)
		d.pending[key] = ch
		d.wg.Add(1)
		go d.debounceLoop(ctx, key, ch)
	}
	d.mu.Unlock()

	select {
	case ch <- cmd:
	default:
		// Drain the stale queued command and replace it with the latest,
		// same collapsing behavior as the teacher's reload channel drain.
		select {
		case <-ch:
		default:
		}
		ch <- cmd
	}
}

func (d *Dispatcher) debounceLoop(ctx context.Context, key pendingKey, ch chan Command) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
	}()

	var latest Command
	select {
	case latest = <-ch:
	case <-ctx.Done():
		return
	}

	timer := time.NewTimer(debounceFor(key.action))
	defer timer.Stop()

	for {
		select {
		case cmd := <-ch:
			latest = cmd
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounceFor(key.action))
		case <-timer.C:
			d.fire(ctx, latest)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) fire(ctx context.Context, cmd Command) {
	if d.guard != nil {
		if g := d.guard(); g.Blocked(cmd.Action) {
			d.log.Debug("command blocked by guard", zap.String("action", string(cmd.Action)))
			return
		}
	}
	if err := d.handle.Handle(ctx, cmd); err != nil {
		d.log.Warn("command handler error", zap.String("action", string(cmd.Action)), zap.Error(err))
	}
}

// Wait blocks until every in-flight debounce loop has exited, for orderly
// shutdown in tests and in Tab Manager teardown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
