//go:build darwin

package hypervisor

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#if __has_include(<Hypervisor/Hypervisor.h>)
#include <Hypervisor/Hypervisor.h>
#else
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_error.h>
#endif
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// VM represents the single hypervisor VM instance of this process.
type VM struct {
	closed  bool
	closeMu sync.Mutex // Protect against concurrent Close() and finalizer
}

var (
	vmMu     sync.RWMutex
	vmActive bool
	vmCount  int32 // Atomic counter for debugging
)

func hvErr(code C.hv_return_t) error {
	if code == 0 {
		return nil
	}
	return HVError{Code: uint32(code)}
}

// NewVM creates the Hypervisor VM for this Mach task. The framework allows
// at most one VM per process.
func NewVM() (*VM, error) {
	start := time.Now()
	defer func() {
		recordVMCreate(time.Since(start))
	}()

	vmMu.Lock()
	defer vmMu.Unlock()

	if vmActive {
		recordResourceError()
		return nil, ErrVMAlreadyActive
	}

	ret := vmCreate()
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return nil, err
	}

	vmActive = true
	atomic.AddInt32(&vmCount, 1)
	vm := &VM{closed: false}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(vm, (*VM).finalize)

	return vm, nil
}

// Close destroys the Hypervisor VM. Idempotent.
func (vm *VM) Close() error {
	if vm == nil {
		return nil
	}

	// Lock instance first to prevent finalizer race
	vm.closeMu.Lock()
	defer vm.closeMu.Unlock()

	if vm.closed {
		return nil
	}

	vmMu.Lock()
	defer vmMu.Unlock()

	if !vmActive {
		return nil
	}

	ret := C.hv_vm_destroy()
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to destroy VM: %w", err)
	}

	vm.closed = true
	vmActive = false
	atomic.AddInt32(&vmCount, -1)

	// Clear finalizer since we've cleaned up properly
	runtime.SetFinalizer(vm, nil)

	recordVMDestroy()
	return nil
}

// finalize is called by the garbage collector as a safety net
func (vm *VM) finalize() {
	if vm == nil {
		return
	}
	// Use non-blocking lock to prevent deadlock in finalizers
	if vm.closeMu.TryLock() {
		defer vm.closeMu.Unlock()
		if !vm.closed {
			vm.closed = true
			if vmActive {
				C.hv_vm_destroy()
				vmActive = false
				atomic.AddInt32(&vmCount, -1)
			}
		}
	}
}

// NewVCPU creates a new vCPU for the active VM. A vCPU belongs to the
// thread that created it; call runtime.LockOSThread before NewVCPU and keep
// Run and register access on that thread.
func (vm *VM) NewVCPU() (*VCPU, error) {
	if vm == nil {
		return nil, fmt.Errorf("hv: VM is nil")
	}
	if vm.closed {
		return nil, ErrVMClosed
	}
	return newVCPU()
}
