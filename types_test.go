package hypervisor

import (
	"encoding/json"
	"testing"
)

func TestMemPermConstants(t *testing.T) {
	if MemRead != 1<<0 {
		t.Errorf("MemRead = %d, want %d", MemRead, 1<<0)
	}
	if MemWrite != 1<<1 {
		t.Errorf("MemWrite = %d, want %d", MemWrite, 1<<1)
	}
	if MemExec != 1<<2 {
		t.Errorf("MemExec = %d, want %d", MemExec, 1<<2)
	}

	// Test combinations
	readWrite := MemRead | MemWrite
	if readWrite != 3 {
		t.Errorf("MemRead|MemWrite = %d, want 3", readWrite)
	}

	rwx := MemRead | MemWrite | MemExec
	if rwx != 7 {
		t.Errorf("MemRead|MemWrite|MemExec = %d, want 7", rwx)
	}
}

func TestExitReasonString(t *testing.T) {
	tests := []struct {
		reason   ExitReason
		expected string
	}{
		{ExitUnknown, "unknown"},
		{ExitException, "exception"},
		{ExitCancelled, "cancelled"},
		{ExitVTimer, "vtimer"},
		{ExitHLT, "hlt"},
		{ExitIO, "io"},
		{ExitMemFault, "memory-fault"},
		{ExitIRQ, "irq"},
		{ExitReason(999), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.expected {
			t.Errorf("ExitReason(%d).String() = %q, want %q", tt.reason, got, tt.expected)
		}
	}
}

func TestExitInfoJSON(t *testing.T) {
	info := ExitInfo{
		Reason:         ExitException,
		Syndrome:       0x5A000000,
		VirtualAddress: 0x4000,
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("Failed to marshal ExitInfo: %v", err)
	}

	var decoded ExitInfo
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal ExitInfo: %v", err)
	}

	if decoded != info {
		t.Errorf("ExitInfo round-trip mismatch: got %+v, want %+v", decoded, info)
	}

	// Empty optional fields should be omitted
	data, err = json.Marshal(ExitInfo{Reason: ExitCancelled})
	if err != nil {
		t.Fatalf("Failed to marshal minimal ExitInfo: %v", err)
	}
	if string(data) != `{"reason":2}` {
		t.Errorf("Minimal ExitInfo JSON = %s, want {\"reason\":2}", data)
	}
}
