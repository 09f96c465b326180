//go:build darwin && amd64

package hypervisor

import (
	"testing"
)

func TestCap2Ctrl(t *testing.T) {
	tests := []struct {
		name string
		cap  uint64
		ctrl uint64
		want uint64
	}{
		{
			name: "no bits allowed",
			cap:  0x0000000000000000,
			ctrl: 0xffffffff,
			want: 0,
		},
		{
			name: "all bits allowed, none required",
			cap:  0xffffffff00000000,
			ctrl: 0x80,
			want: 0x80,
		},
		{
			name: "required bits forced on",
			cap:  0xffffffff00000016, // low word: must-be-one bits
			ctrl: 0,
			want: 0x16,
		},
		{
			name: "requested bit not allowed",
			cap:  0x0000001600000016,
			ctrl: 0x80,
			want: 0x16,
		},
		{
			name: "mixed",
			cap:  0x00000fff00000006,
			ctrl: 0x90,
			want: 0x96,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cap2Ctrl(tt.cap, tt.ctrl)
			if got != tt.want {
				t.Errorf("Cap2Ctrl(0x%016x, 0x%x) = 0x%x, want 0x%x", tt.cap, tt.ctrl, got, tt.want)
			}
		})
	}
}

func TestVMXCapString(t *testing.T) {
	caps := []VMXCap{
		VMXCapPinBased, VMXCapProcBased, VMXCapProcBased2,
		VMXCapEntry, VMXCapExit, VMXCapPreemptionTimer,
	}
	seen := make(map[string]bool)
	for _, c := range caps {
		s := c.String()
		if s == "" {
			t.Errorf("VMXCap(%d).String() is empty", int(c))
		}
		if seen[s] {
			t.Errorf("Duplicate VMXCap string %q", s)
		}
		seen[s] = true
	}

	if s := VMXCap(99).String(); s != "VMXCap(99)" {
		t.Errorf("Unknown VMXCap string = %q, want VMXCap(99)", s)
	}
}

func TestVMXReasonConstants(t *testing.T) {
	// Basic exit reasons from the Intel SDM
	expected := map[string]uint64{
		"VMXReasonExcNMI":       0,
		"VMXReasonIRQ":          1,
		"VMXReasonTripleFault":  2,
		"VMXReasonCPUID":        10,
		"VMXReasonHLT":          12,
		"VMXReasonRDTSC":        16,
		"VMXReasonVMCall":       18,
		"VMXReasonMovCR":        28,
		"VMXReasonIO":           30,
		"VMXReasonRDMSR":        31,
		"VMXReasonWRMSR":        32,
		"VMXReasonEPTViolation": 48,
	}

	actual := map[string]uint64{
		"VMXReasonExcNMI":       VMXReasonExcNMI,
		"VMXReasonIRQ":          VMXReasonIRQ,
		"VMXReasonTripleFault":  VMXReasonTripleFault,
		"VMXReasonCPUID":        VMXReasonCPUID,
		"VMXReasonHLT":          VMXReasonHLT,
		"VMXReasonRDTSC":        VMXReasonRDTSC,
		"VMXReasonVMCall":       VMXReasonVMCall,
		"VMXReasonMovCR":        VMXReasonMovCR,
		"VMXReasonIO":           VMXReasonIO,
		"VMXReasonRDMSR":        VMXReasonRDMSR,
		"VMXReasonWRMSR":        VMXReasonWRMSR,
		"VMXReasonEPTViolation": VMXReasonEPTViolation,
	}

	for name, want := range expected {
		if got := actual[name]; got != want {
			t.Errorf("Constant %s = %d, want %d", name, got, want)
		}
	}
}
