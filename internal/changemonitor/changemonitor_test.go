package changemonitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolphie-go/dolphie/internal/endpoint"
)

func TestCompareFirstCycleSeedsWithoutEvents(t *testing.T) {
	m := NewMonitor(nil)
	events := m.Compare(map[string]string{"version": "8.0.34"}, 1000, false, false)
	assert.Empty(t, events, "the first observed cycle has nothing to diff against")
}

func TestCompareDetectsChangedVariable(t *testing.T) {
	m := NewMonitor(nil)
	m.Compare(map[string]string{"max_connections": "151"}, 1000, false, false)

	events := m.Compare(map[string]string{"max_connections": "500"}, 1001, false, false)
	require.Len(t, events, 1)
	assert.Equal(t, "global variable changed", events[0].Title)
	assert.Equal(t, SeverityInfo, events[0].Severity)
	assert.Contains(t, events[0].Detail, "max_connections")
}

func TestCompareIgnoresExcludedVariables(t *testing.T) {
	m := NewMonitor(nil)
	m.Compare(map[string]string{"gtid_executed": "uuid:1-5"}, 1000, false, false)
	events := m.Compare(map[string]string{"gtid_executed": "uuid:1-50"}, 1001, false, false)
	assert.Empty(t, events, "gtid_executed churn is expected and must not notify by default")
}

func TestCompareUserSuppliedExclusionIsRespected(t *testing.T) {
	m := NewMonitor([]string{"wsrep_last_committed"})
	m.Compare(map[string]string{"wsrep_last_committed": "100"}, 1000, false, false)
	events := m.Compare(map[string]string{"wsrep_last_committed": "200"}, 1001, false, false)
	assert.Empty(t, events)
}

func TestCompareDetectsServerRestartViaUptimeRegression(t *testing.T) {
	m := NewMonitor(nil)
	m.Compare(map[string]string{}, 5000, false, false)
	events := m.Compare(map[string]string{}, 12, false, false)
	require.Len(t, events, 1)
	assert.Equal(t, "server restart detected", events[0].Title)
	assert.Equal(t, SeverityWarning, events[0].Severity)
	assert.True(t, events[0].ResetMetricStore)
}

func TestCompareReadOnlyTransitionOnReplicaIsInfo(t *testing.T) {
	m := NewMonitor(nil)
	m.Compare(map[string]string{"read_only": "OFF"}, 1000, true, false)
	events := m.Compare(map[string]string{"read_only": "ON"}, 1001, true, false)
	require.Len(t, events, 1)
	assert.Equal(t, "read_only changed", events[0].Title)
	assert.Equal(t, SeverityInfo, events[0].Severity)
}

func TestCompareReadOnlyTransitionOnPrimaryIsWarning(t *testing.T) {
	m := NewMonitor(nil)
	m.Compare(map[string]string{"read_only": "OFF"}, 1000, false, false)
	events := m.Compare(map[string]string{"read_only": "ON"}, 1001, false, false)
	require.Len(t, events, 1)
	assert.Equal(t, SeverityWarning, events[0].Severity, "a primary unexpectedly going read-only is a misconfiguration warning")
	assert.Contains(t, events[0].Detail, "misconfiguration")
}

func TestCompareReadOnlyUnchangedEmitsNoEvent(t *testing.T) {
	m := NewMonitor(nil)
	m.Compare(map[string]string{"read_only": "ON"}, 1000, true, false)
	events := m.Compare(map[string]string{"read_only": "ON"}, 1001, true, false)
	assert.Empty(t, events)
}

func TestResetClearsStateSoNextCycleReseeds(t *testing.T) {
	m := NewMonitor(nil)
	m.Compare(map[string]string{"max_connections": "151"}, 1000, false, false)
	m.Reset()

	events := m.Compare(map[string]string{"max_connections": "500"}, 1, false, false)
	assert.Empty(t, events, "after Reset the next cycle must reseed rather than diff against stale state")
}

func TestConnectionStatusBadge(t *testing.T) {
	assert.Equal(t, "", ConnectionStatusBadge(map[string]string{"read_only": "ON"}, endpoint.FlavorProxySQL), "ProxySQL has no read_only badge")
	assert.Equal(t, "read-only", ConnectionStatusBadge(map[string]string{"read_only": "ON"}, endpoint.FlavorMySQL))
	assert.Equal(t, "read-write", ConnectionStatusBadge(map[string]string{"read_only": "OFF"}, endpoint.FlavorMySQL))
	assert.Equal(t, "", ConnectionStatusBadge(map[string]string{}, endpoint.FlavorMySQL), "unknown read_only reports no badge")
}
