package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolphie-go/dolphie/internal/sample"
)

type recordingHandler struct {
	mu   sync.Mutex
	cmds []Command
}

func (h *recordingHandler) Handle(ctx context.Context, cmd Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd)
	return nil
}

func (h *recordingHandler) snapshot() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Command, len(h.cmds))
	copy(out, h.cmds)
	return out
}

func TestGuardStateBlocksOnModalStack(t *testing.T) {
	g := GuardState{ModalStackDepth: 1}
	assert.True(t, g.Blocked(ActionForceRefresh))
}

func TestGuardStateBlocksDisconnectedUnlessReplay(t *testing.T) {
	g := GuardState{Disconnected: true}
	assert.True(t, g.Blocked(ActionForceRefresh))

	g.IsReplay = true
	assert.False(t, g.Blocked(ActionForceRefresh), "replay mode must be exempt from the disconnected guard")
}

func TestGuardStateBlocksConnectWaveForEverything(t *testing.T) {
	g := GuardState{ConnectWaveInProgress: true}
	assert.True(t, g.Blocked(ActionTabSwitch))
	assert.True(t, g.Blocked(ActionInfoCommand))
}

func TestGuardStateSecondaryBusyOnlyBlocksInformational(t *testing.T) {
	g := GuardState{SecondaryBusy: true}
	assert.True(t, g.Blocked(ActionInfoCommand))
	assert.True(t, g.Blocked(ActionKillByCriteria))
	assert.False(t, g.Blocked(ActionTabSwitch), "secondary connection contention must not block unrelated commands")
}

func TestDispatchCollapsesRepeatedKeystrokesToLastWithinWindow(t *testing.T) {
	h := &recordingHandler{}
	d := New(h, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		d.Dispatch(ctx, Command{Action: ActionTabSwitch, Args: map[string]interface{}{"tab_id": "tab-a"}})
	}
	d.Dispatch(ctx, Command{Action: ActionTabSwitch, Args: map[string]interface{}{"tab_id": "tab-b"}})

	d.Wait()

	cmds := h.snapshot()
	require.Len(t, cmds, 1, "rapid repeats for the same dedupe key must collapse to a single fired command")
	assert.Equal(t, "tab-b", cmds[0].Args["tab_id"], "the last queued command within the window wins")
}

func TestDispatchDistinctTargetsFireIndependently(t *testing.T) {
	h := &recordingHandler{}
	d := New(h, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Dispatch(ctx, Command{Action: ActionPanelToggle, Args: map[string]interface{}{"name": "processlist"}})
	d.Dispatch(ctx, Command{Action: ActionPanelToggle, Args: map[string]interface{}{"name": "replication"}})

	d.Wait()

	cmds := h.snapshot()
	assert.Len(t, cmds, 2, "different dedupe targets must not collapse into each other")
}

func TestDispatchGuardBlocksFiring(t *testing.T) {
	h := &recordingHandler{}
	guard := func() GuardState { return GuardState{ModalStackDepth: 1} }
	d := New(h, guard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Dispatch(ctx, Command{Action: ActionForceRefresh})
	d.Wait()

	assert.Empty(t, h.snapshot(), "a blocked guard must suppress the command entirely")
}

func TestDebounceForUsesOverridesAndDefault(t *testing.T) {
	assert.Equal(t, 300*time.Millisecond, debounceFor(ActionTabRemove))
	assert.Equal(t, defaultDebounce, debounceFor(ActionFilterApply))
}

func TestKillCriteriaCompileAndMatch(t *testing.T) {
	c := KillCriteria{Expression: `user == "batch" && age > 30`}
	compiled, err := c.Compile()
	require.NoError(t, err)

	matched, err := compiled.Matches(sample.Thread{User: "batch", TimeSeconds: 45, Command: "Query"})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = compiled.Matches(sample.Thread{User: "batch", TimeSeconds: 10, Command: "Query"})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestKillCriteriaExcludesSleepingUnlessIncluded(t *testing.T) {
	c := KillCriteria{Expression: `user == "batch"`}
	compiled, err := c.Compile()
	require.NoError(t, err)

	matched, err := compiled.Matches(sample.Thread{User: "batch", Command: "Sleep"})
	require.NoError(t, err)
	assert.False(t, matched, "a sleeping thread is excluded by default regardless of the predicate")

	c.IncludeSleeping = true
	compiled, err = c.Compile()
	require.NoError(t, err)
	matched, err = compiled.Matches(sample.Thread{User: "batch", Command: "Sleep"})
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestKillCriteriaInvalidExpressionFailsAtCompile(t *testing.T) {
	c := KillCriteria{Expression: `user ==`}
	_, err := c.Compile()
	assert.Error(t, err)
}

func TestFilterCandidatesReturnsOnlyMatches(t *testing.T) {
	c := KillCriteria{Expression: `state == "Locked"`}
	compiled, err := c.Compile()
	require.NoError(t, err)

	threads := []sample.Thread{
		{User: "a", State: "Locked", Command: "Query"},
		{User: "b", State: "Sending data", Command: "Query"},
	}
	out, err := FilterCandidates(compiled, threads)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].User)
}
