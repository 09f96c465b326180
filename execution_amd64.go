//go:build darwin && amd64

package hypervisor

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#if __has_include(<Hypervisor/Hypervisor.h>)
#include <Hypervisor/Hypervisor.h>
#else
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_vmx.h>
#endif
*/
import "C"

import (
	"fmt"
	"time"
)

// Basic VM-exit reasons (Intel SDM Vol. 3, Appendix C) as read from the
// low 16 bits of VMCS_RO_EXIT_REASON.
const (
	VMXReasonExcNMI       uint64 = 0
	VMXReasonIRQ          uint64 = 1
	VMXReasonTripleFault  uint64 = 2
	VMXReasonCPUID        uint64 = 10
	VMXReasonHLT          uint64 = 12
	VMXReasonRDTSC        uint64 = 16
	VMXReasonVMCall       uint64 = 18
	VMXReasonMovCR        uint64 = 28
	VMXReasonIO           uint64 = 30
	VMXReasonRDMSR        uint64 = 31
	VMXReasonWRMSR        uint64 = 32
	VMXReasonEPTViolation uint64 = 48
)

// Run executes the vCPU until it exits, then reads the exit reason and
// qualification out of the VMCS. Must be called from the thread that
// created the vCPU.
func (c *VCPU) Run() (ExitInfo, error) {
	start := time.Now()
	defer func() {
		recordRun(time.Since(start))
	}()

	var info ExitInfo
	if c == nil {
		return info, fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return info, ErrVCPUClosed
	}

	ret := C.hv_vcpu_run(C.hv_vcpuid_t(c.id))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return info, fmt.Errorf("failed to run vCPU: %w", err)
	}

	var reason, qual C.uint64_t
	if C.hv_vmx_vcpu_read_vmcs(C.hv_vcpuid_t(c.id), C.VMCS_RO_EXIT_REASON, &reason) == 0 {
		info.ExitCode = uint64(reason)
		if C.hv_vmx_vcpu_read_vmcs(C.hv_vcpuid_t(c.id), C.VMCS_RO_EXIT_QUALIFIC, &qual) == 0 {
			info.Qualification = uint64(qual)
		}
		switch info.ExitCode & 0xffff {
		case VMXReasonExcNMI, VMXReasonTripleFault:
			info.Reason = ExitException
		case VMXReasonIRQ:
			info.Reason = ExitIRQ
		case VMXReasonHLT:
			info.Reason = ExitHLT
		case VMXReasonIO:
			info.Reason = ExitIO
		case VMXReasonEPTViolation:
			info.Reason = ExitMemFault
			info.PhysicalAddress = info.Qualification
		default:
			info.Reason = ExitUnknown
		}
	} else {
		info.Reason = ExitUnknown
	}
	return info, nil
}

// ExecTime returns the cumulative execution time of the vCPU.
func (c *VCPU) ExecTime() (time.Duration, error) {
	if c == nil {
		return 0, fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return 0, ErrVCPUClosed
	}

	var ns C.uint64_t
	ret := C.hv_vcpu_get_exec_time(C.hv_vcpuid_t(c.id), &ns)
	if err := hvErr(ret); err != nil {
		return 0, fmt.Errorf("failed to get exec time: %w", err)
	}
	return time.Duration(ns), nil
}

// Flush forces flushing of cached vCPU state. Required before reading
// guest state modified on another thread.
func (c *VCPU) Flush() error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_flush(C.hv_vcpuid_t(c.id))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to flush vCPU state: %w", err)
	}
	return nil
}

// InvalidateTLB invalidates the translation lookaside buffer of the vCPU.
func (c *VCPU) InvalidateTLB() error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_invalidate_tlb(C.hv_vcpuid_t(c.id))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to invalidate TLB: %w", err)
	}
	return nil
}
