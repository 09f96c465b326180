package hypervisor

import (
	"testing"
	"time"
)

func TestMetricsCounters(t *testing.T) {
	ResetMetrics()

	// Verify initial state
	metrics := GetMetrics()
	if metrics.VMCreated != 0 {
		t.Errorf("Expected VMCreated=0, got %d", metrics.VMCreated)
	}
	if metrics.RunOperations != 0 {
		t.Errorf("Expected RunOperations=0, got %d", metrics.RunOperations)
	}

	recordVMCreate(time.Millisecond)
	recordVCPUCreate()
	recordMapOperation()
	recordMapOperation()
	recordUnmapOperation()
	recordProtectOperation()
	recordRegisterOp()
	recordSysRegOp()
	recordMSROp()
	recordVMCSOp()
	recordInterruptOp()
	recordRun(2 * time.Millisecond)
	recordRun(4 * time.Millisecond)
	recordResourceError()
	recordVCPUDestroy()
	recordVMDestroy()

	metrics = GetMetrics()

	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"VMCreated", metrics.VMCreated, 1},
		{"VMDestroyed", metrics.VMDestroyed, 1},
		{"VCPUCreated", metrics.VCPUCreated, 1},
		{"VCPUDestroyed", metrics.VCPUDestroyed, 1},
		{"MapOperations", metrics.MapOperations, 2},
		{"UnmapOperations", metrics.UnmapOperations, 1},
		{"ProtectOperations", metrics.ProtectOperations, 1},
		{"RegisterOps", metrics.RegisterOps, 1},
		{"SysRegOps", metrics.SysRegOps, 1},
		{"MSROps", metrics.MSROps, 1},
		{"VMCSOps", metrics.VMCSOps, 1},
		{"InterruptOps", metrics.InterruptOps, 1},
		{"RunOperations", metrics.RunOperations, 2},
		{"ResourceErrors", metrics.ResourceErrors, 1},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("Expected %s=%d, got %d", c.name, c.want, c.got)
		}
	}

	if metrics.AvgVMCreateTimeNs != uint64(time.Millisecond.Nanoseconds()) {
		t.Errorf("AvgVMCreateTimeNs = %d, want %d", metrics.AvgVMCreateTimeNs, time.Millisecond.Nanoseconds())
	}
	if metrics.AvgRunTimeNs != uint64(3*time.Millisecond.Nanoseconds()) {
		t.Errorf("AvgRunTimeNs = %d, want %d", metrics.AvgRunTimeNs, 3*time.Millisecond.Nanoseconds())
	}
}

func TestMetricsReset(t *testing.T) {
	recordMapOperation()
	recordRun(time.Millisecond)

	ResetMetrics()

	metrics := GetMetrics()
	if metrics.MapOperations != 0 {
		t.Errorf("Expected MapOperations=0 after reset, got %d", metrics.MapOperations)
	}
	if metrics.RunOperations != 0 {
		t.Errorf("Expected RunOperations=0 after reset, got %d", metrics.RunOperations)
	}
	if metrics.AvgRunTimeNs != 0 {
		t.Errorf("Expected AvgRunTimeNs=0 after reset, got %d", metrics.AvgRunTimeNs)
	}
}
