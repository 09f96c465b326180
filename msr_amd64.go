//go:build darwin && amd64

package hypervisor

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#if __has_include(<Hypervisor/Hypervisor.h>)
#include <Hypervisor/Hypervisor.h>
#else
#include <Hypervisor/hv.h>
#endif
*/
import "C"

import "fmt"

// EnableNativeMSR enables or disables native (pass-through) access to a
// model-specific register for the vCPU.
func (c *VCPU) EnableNativeMSR(msr uint32, enable bool) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_enable_native_msr(C.hv_vcpuid_t(c.id), C.uint32_t(msr), C.bool(enable))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to enable native MSR 0x%x: %w", msr, err)
	}
	recordMSROp()
	return nil
}

// ReadMSR returns the current value of a model-specific register of the
// vCPU.
func (c *VCPU) ReadMSR(msr uint32) (uint64, error) {
	if c == nil {
		return 0, fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return 0, ErrVCPUClosed
	}

	var val C.uint64_t
	ret := C.hv_vcpu_read_msr(C.hv_vcpuid_t(c.id), C.uint32_t(msr), &val)
	if err := hvErr(ret); err != nil {
		return 0, fmt.Errorf("failed to read MSR 0x%x: %w", msr, err)
	}
	recordMSROp()
	return uint64(val), nil
}

// WriteMSR sets the value of a model-specific register of the vCPU.
func (c *VCPU) WriteMSR(msr uint32, v uint64) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_write_msr(C.hv_vcpuid_t(c.id), C.uint32_t(msr), C.uint64_t(v))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to write MSR 0x%x: %w", msr, err)
	}
	recordMSROp()
	return nil
}
