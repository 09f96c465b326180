//go:build darwin && arm64

package hypervisor

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#if __has_include(<Hypervisor/Hypervisor.h>)
#include <Hypervisor/Hypervisor.h>
#else
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_vm.h>
#include <Hypervisor/hv_vcpu.h>
#endif
#include <os/object.h>

// Create and configure a VM with the default IPA size. Falls back to an
// unconfigured create on SDKs without hv_vm_config.
static hv_return_t go_hv_vm_create_with_cfg() {
#if __has_include(<Hypervisor/hv_vm_config.h>)
	hv_vm_config_t config = hv_vm_config_create();
	if (!config) {
		return HV_ERROR;
	}

	uint32_t default_ipa_size = 0;
	hv_return_t ret = hv_vm_config_get_default_ipa_size(&default_ipa_size);
	if (ret == HV_SUCCESS) {
		ret = hv_vm_config_set_ipa_size(config, default_ipa_size);
		if (ret != HV_SUCCESS) {
			os_release(config);
			return ret;
		}
	}

	ret = hv_vm_create(config);
	os_release(config);
	return ret;
#else
	return hv_vm_create(NULL);
#endif
}

static hv_return_t go_hv_vcpu_create(hv_vcpu_t *vcpu, hv_vcpu_exit_t **exit) {
	return hv_vcpu_create(vcpu, exit, NULL);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
)

func vmCreate() C.hv_return_t {
	return C.go_hv_vm_create_with_cfg()
}

// VCPU represents a single vCPU associated with the VM.
type VCPU struct {
	id      uint64
	exit    *C.hv_vcpu_exit_t
	closed  bool
	closeMu sync.Mutex // Protect against concurrent Close() and finalizer
}

func newVCPU() (*VCPU, error) {
	var vcpu C.hv_vcpu_t
	var exit *C.hv_vcpu_exit_t
	ret := C.go_hv_vcpu_create(&vcpu, &exit)
	if err := hvErr(ret); err != nil {
		return nil, err
	}

	c := &VCPU{id: uint64(vcpu), exit: exit, closed: false}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(c, (*VCPU).finalize)

	recordVCPUCreate()
	return c, nil
}

// ID returns the framework handle of this vCPU.
func (c *VCPU) ID() uint64 { return c.id }

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

	ret := C.hv_vcpu_destroy(C.hv_vcpu_t(c.id))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to destroy vCPU: %w", err)
	}

	c.closed = true
	c.exit = nil

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
			c.exit = nil
			C.hv_vcpu_destroy(C.hv_vcpu_t(c.id))
			recordVCPUDestroy()
		}
	}
}

// Interrupt forces an exit of this vCPU out of its current Run call. Safe
// to call from any thread.
func (c *VCPU) Interrupt() error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}
	vcpu := C.hv_vcpu_t(c.id)
	ret := C.hv_vcpus_exit(&vcpu, 1)
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to interrupt vCPU: %w", err)
	}
	recordInterruptOp()
	return nil
}

// InterruptVCPUs forces an immediate exit of a set of running vCPUs.
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

	vcpus := make([]C.hv_vcpu_t, len(ids))
	for i, id := range ids {
		vcpus[i] = C.hv_vcpu_t(id)
	}
	ret := C.hv_vcpus_exit(&vcpus[0], C.uint32_t(len(vcpus)))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to interrupt %d vCPUs: %w", len(ids), err)
	}
	recordInterruptOp()
	return nil
}
