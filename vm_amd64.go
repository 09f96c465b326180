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

static hv_return_t go_hv_vm_create_default() {
	return hv_vm_create(HV_VM_DEFAULT);
}

static hv_return_t go_hv_vcpu_create(hv_vcpuid_t *vcpu) {
	return hv_vcpu_create(vcpu, HV_VCPU_DEFAULT);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
)

func vmCreate() C.hv_return_t {
	return C.go_hv_vm_create_default()
}

// VCPU represents a single vCPU associated with the VM.
type VCPU struct {
	id      uint32
	closed  bool
	closeMu sync.Mutex // Protect against concurrent Close() and finalizer
}

func newVCPU() (*VCPU, error) {
	var vcpuid C.hv_vcpuid_t
	ret := C.go_hv_vcpu_create(&vcpuid)
	if err := hvErr(ret); err != nil {
		return nil, err
	}

	c := &VCPU{id: uint32(vcpuid), closed: false}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(c, (*VCPU).finalize)

	recordVCPUCreate()
	return c, nil
}

// ID returns the framework handle of this vCPU.
func (c *VCPU) ID() uint64 { return uint64(c.id) }

// Close destroys this vCPU.
func (c *VCPU) Close() error {
	if c == nil {
		return nil
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}

	ret := C.hv_vcpu_destroy(C.hv_vcpuid_t(c.id))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to destroy vCPU: %w", err)
	}

	c.closed = true

	// Clear finalizer since we've cleaned up properly
	runtime.SetFinalizer(c, nil)

	recordVCPUDestroy()
	return nil
}

// finalize is called by the garbage collector as a safety net
func (c *VCPU) finalize() {
	if c == nil {
		return
	}
	// Use non-blocking lock to prevent deadlock in finalizers
	if c.closeMu.TryLock() {
		defer c.closeMu.Unlock()
		if !c.closed {
			c.closed = true
			C.hv_vcpu_destroy(C.hv_vcpuid_t(c.id))
			recordVCPUDestroy()
		}
	}
}

// Interrupt forces an immediate VMEXIT of this vCPU. Safe to call from any
// thread.
func (c *VCPU) Interrupt() error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}
	vcpuid := C.hv_vcpuid_t(c.id)
	ret := C.hv_vcpu_interrupt(&vcpuid, 1)
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to interrupt vCPU: %w", err)
	}
	recordInterruptOp()
	return nil
}

// InterruptVCPUs forces an immediate VMEXIT of a set of running vCPUs.
func (vm *VM) InterruptVCPUs(ids ...uint64) error {
	if vm == nil {
		return fmt.Errorf("hv: VM is nil")
	}
	if vm.closed {
		return ErrVMClosed
	}
	if len(ids) == 0 {
		return fmt.Errorf("hv: interrupt requires at least one vCPU ID")
	}

	vcpus := make([]C.hv_vcpuid_t, len(ids))
	for i, id := range ids {
		vcpus[i] = C.hv_vcpuid_t(id)
	}
	ret := C.hv_vcpu_interrupt(&vcpus[0], C.uint(len(vcpus)))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to interrupt %d vCPUs: %w", len(ids), err)
	}
	recordInterruptOp()
	return nil
}

// SyncTSC synchronizes the guest timestamp counters across all vCPUs.
func (vm *VM) SyncTSC(tsc uint64) error {
	if vm == nil {
		return fmt.Errorf("hv: VM is nil")
	}
	if vm.closed {
		return ErrVMClosed
	}
	ret := C.hv_vm_sync_tsc(C.uint64_t(tsc))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to sync TSC to %d: %w", tsc, err)
	}
	return nil
}
