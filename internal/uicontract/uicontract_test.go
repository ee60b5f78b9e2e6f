package uicontract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolphie-go/dolphie/internal/changemonitor"
	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/sample"
	"github.com/dolphie-go/dolphie/internal/tab"
)

func TestStatusForMapsEveryRuntimeState(t *testing.T) {
	cases := []struct {
		state tab.State
		want  ConnectionStatus
	}{
		{tab.StateConnecting, StatusConnected},
		{tab.StateRunning, StatusConnected},
		{tab.StatePaused, StatusConnected},
		{tab.StateReconnecting, StatusReconnecting},
		{tab.StateReplay, StatusReplay},
		{tab.StateDisconnected, StatusDisconnected},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.state), "state %q", c.state)
	}
}

func TestThreadSliceDropsNilEntriesAndCopiesValues(t *testing.T) {
	id := int64(7)
	m := map[int64]*sample.Thread{
		1: {User: "alice"},
		2: nil,
		3: {User: "bob", ThreadID: &id},
	}
	out := threadSlice(m)
	require.Len(t, out, 2, "a nil map entry must be skipped rather than panic or appear as a zero-value thread")

	users := map[string]bool{}
	for _, th := range out {
		users[th.User] = true
	}
	assert.True(t, users["alice"])
	assert.True(t, users["bob"])
}

func TestThreadSliceEmptyMapReturnsEmptyNotNilSlice(t *testing.T) {
	out := threadSlice(map[int64]*sample.Thread{})
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestSeverityOfReturnsHighestSeenWithCriticalShortCircuit(t *testing.T) {
	events := []tab.Event{
		{Severity: changemonitor.SeverityInfo},
		{Severity: changemonitor.SeverityWarning},
		{Severity: changemonitor.SeverityCritical},
		{Severity: changemonitor.SeverityInfo},
	}
	assert.Equal(t, changemonitor.SeverityCritical, SeverityOf(events))
}

func TestSeverityOfNoEventsIsInfo(t *testing.T) {
	assert.Equal(t, changemonitor.SeverityInfo, SeverityOf(nil))
}

func TestSeverityOfWarningWithoutCriticalStaysWarning(t *testing.T) {
	events := []tab.Event{
		{Severity: changemonitor.SeverityInfo},
		{Severity: changemonitor.SeverityWarning},
	}
	assert.Equal(t, changemonitor.SeverityWarning, SeverityOf(events))
}

func TestBuildSnapshotPopulatesProcesslistFromCurrentSample(t *testing.T) {
	cfg := tab.Config{ID: "tab-1"}
	rt := tab.New(cfg, nil)

	cur := &sample.RawSample{
		Timestamp:   time.Now(),
		Processlist: map[int64]*sample.Thread{1: {User: "root"}},
	}

	snap := BuildSnapshot("tab-1", endpoint.Endpoint{Host: "db1"}, rt, cur, nil, time.Now())
	assert.Equal(t, "tab-1", snap.TabID)
	assert.Equal(t, "db1", snap.Endpoint.Host)
	require.Len(t, snap.Processlist, 1)
	assert.Equal(t, "root", snap.Processlist[0].User)
}

func TestBuildSnapshotNilCurLeavesProcesslistEmpty(t *testing.T) {
	cfg := tab.Config{ID: "tab-2"}
	rt := tab.New(cfg, nil)

	snap := BuildSnapshot("tab-2", endpoint.Endpoint{}, rt, nil, nil, time.Now())
	assert.Empty(t, snap.Processlist, "with no current sample yet, the processlist must be empty rather than stale")
}
