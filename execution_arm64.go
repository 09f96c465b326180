//go:build darwin && arm64

package hypervisor

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#if __has_include(<Hypervisor/Hypervisor.h>)
#include <Hypervisor/Hypervisor.h>
#else
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_types.h>
#endif
*/
import "C"

import (
	"fmt"
	"time"
)

// InterruptType selects the interrupt line asserted by SetPendingInterrupt.
type InterruptType int

const (
	// InterruptIRQ asserts the vCPU's IRQ line.
	InterruptIRQ InterruptType = iota
	// InterruptFIQ asserts the vCPU's FIQ line.
	InterruptFIQ
)

// Run executes the vCPU until it exits and decodes the framework's exit
// structure. Must be called from the thread that created the vCPU.
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

	ret := C.hv_vcpu_run(C.hv_vcpu_t(c.id))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return info, fmt.Errorf("failed to run vCPU: %w", err)
	}

	switch c.exit.reason {
	case C.HV_EXIT_REASON_CANCELED:
		info.Reason = ExitCancelled
	case C.HV_EXIT_REASON_EXCEPTION:
		info.Reason = ExitException
		info.Syndrome = uint64(c.exit.exception.syndrome)
		info.VirtualAddress = uint64(c.exit.exception.virtual_address)
		info.PhysicalAddress = uint64(c.exit.exception.physical_address)
	case C.HV_EXIT_REASON_VTIMER_ACTIVATED:
		info.Reason = ExitVTimer
	default:
		info.Reason = ExitUnknown
	}
	return info, nil
}

// SetPendingInterrupt asserts or clears a pending IRQ or FIQ for the vCPU.
// The pending state is cleared by the framework on every exit, so callers
// re-assert it before each Run.
func (c *VCPU) SetPendingInterrupt(typ InterruptType, pending bool) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	var hvType C.hv_interrupt_type_t
	switch typ {
	case InterruptIRQ:
		hvType = C.HV_INTERRUPT_TYPE_IRQ
	case InterruptFIQ:
		hvType = C.HV_INTERRUPT_TYPE_FIQ
	default:
		return fmt.Errorf("hv: invalid interrupt type %d", typ)
	}

	ret := C.hv_vcpu_set_pending_interrupt(C.hv_vcpu_t(c.id), hvType, C.bool(pending))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to set pending interrupt: %w", err)
	}
	recordInterruptOp()
	return nil
}

// SetVTimerMask masks or unmasks the vCPU's virtual timer. After an
// ExitVTimer the timer stays masked until the caller unmasks it.
func (c *VCPU) SetVTimerMask(masked bool) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_set_vtimer_mask(C.hv_vcpu_t(c.id), C.bool(masked))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to set vtimer mask: %w", err)
	}
	return nil
}

// VTimerOffset returns the vCPU's virtual timer offset (CNTVOFF_EL2).
func (c *VCPU) VTimerOffset() (uint64, error) {
	if c == nil {
		return 0, fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return 0, ErrVCPUClosed
	}

	var off C.uint64_t
	ret := C.hv_vcpu_get_vtimer_offset(C.hv_vcpu_t(c.id), &off)
	if err := hvErr(ret); err != nil {
		return 0, fmt.Errorf("failed to get vtimer offset: %w", err)
	}
	return uint64(off), nil
}

// SetVTimerOffset sets the vCPU's virtual timer offset (CNTVOFF_EL2).
func (c *VCPU) SetVTimerOffset(offset uint64) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_set_vtimer_offset(C.hv_vcpu_t(c.id), C.uint64_t(offset))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to set vtimer offset: %w", err)
	}
	return nil
}
