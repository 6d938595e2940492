package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewWithRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("agent-governance-test", "0.0.0-test", reg)
	if m == nil {
		t.Fatal("expected metrics instance, got nil")
	}

	m.RecordHTTPRequest("GET", "/v1/health", "200", 10*time.Millisecond)
	m.RecordOperation("get_agent_state", "ok", time.Millisecond)
	m.RecordError("NOT_FOUND")
	m.SetAgentState("agent-1", 0.42, 2.1)
	m.RecordStuckSweep()
	m.RecordStuckDetection("critical_margin_timeout")
	m.RecordAutoResume()
	m.RecordDialecticOpened()
	m.RecordDialecticResolved("converged", 2)
	m.RecordLockAcquisition("granted")
	m.SetLocksHeld(3)
	m.UpdateUptime(time.Now().Add(-time.Minute))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families, got none")
	}
}
