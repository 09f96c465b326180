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

#ifndef HV_MEMORY_READ
#define HV_MEMORY_READ (1<<0)
#endif
#ifndef HV_MEMORY_WRITE
#define HV_MEMORY_WRITE (1<<1)
#endif
#ifndef HV_MEMORY_EXEC
#define HV_MEMORY_EXEC (1<<2)
#endif

// Wrappers construct flags using framework macros without exposing the
// per-arch flag/address typedefs (hv_gpaddr_t vs hv_ipa_t) to Go.
static unsigned long long go_hv_mem_flags(int r, int w, int x) {
	unsigned long long flags = 0;
	if (r) flags |= HV_MEMORY_READ;
	if (w) flags |= HV_MEMORY_WRITE;
	if (x) flags |= HV_MEMORY_EXEC;
	return flags;
}

static int go_hv_vm_map(void* addr, unsigned long long gpa, unsigned long long size, int r, int w, int x) {
	return hv_vm_map(addr, gpa, (size_t)size, go_hv_mem_flags(r, w, x));
}

static int go_hv_vm_unmap(unsigned long long gpa, unsigned long long size) {
	return hv_vm_unmap(gpa, (size_t)size);
}

static int go_hv_vm_protect(unsigned long long gpa, unsigned long long size, int r, int w, int x) {
	return hv_vm_protect(gpa, (size_t)size, go_hv_mem_flags(r, w, x));
}
*/
import "C"

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	cachedPageSize int
	cachedPageMask uint64 // For fast alignment checks: addr & mask == 0
	pageSizeOnce   sync.Once
)

// pageSize returns the system page size, cached for performance
func pageSize() int {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return cachedPageSize
}

// isPageAligned returns true if addr is page-aligned (fast path)
func isPageAligned(addr uint64) bool {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return addr&cachedPageMask == 0
}

// checkRegion validates a guest physical region before handing it to the
// framework.
func (vm *VM) checkRegion(op string, guestPhys, size uint64) error {
	if vm == nil {
		return fmt.Errorf("hv: VM is nil")
	}
	if vm.closed {
		return fmt.Errorf("hv: VM is closed")
	}
	if size == 0 {
		return fmt.Errorf("hv: %s requires non-zero size", op)
	}
	if size > math.MaxInt32 {
		return fmt.Errorf("hv: %s size too large (max %d bytes)", op, math.MaxInt32)
	}
	if guestPhys > math.MaxUint64-size {
		return fmt.Errorf("hv: guest address range would overflow")
	}
	if !isPageAligned(guestPhys) {
		return fmt.Errorf("hv: guestPhys not page-aligned: 0x%x (page size: %d)", guestPhys, pageSize())
	}
	if !isPageAligned(size) {
		return fmt.Errorf("hv: size not page multiple: %d (page size: %d)", size, pageSize())
	}
	return nil
}

func checkPerms(perms MemPerm) error {
	if perms == 0 {
		return fmt.Errorf("hv: at least one permission required (read, write, or exec)")
	}
	validPerms := MemRead | MemWrite | MemExec
	if perms&^validPerms != 0 {
		return fmt.Errorf("hv: invalid permission bits 0x%x (valid: 0x%x)", perms, validPerms)
	}
	return nil
}

func permBits(perms MemPerm) (r, w, x C.int) {
	if perms&MemRead != 0 {
		r = 1
	}
	if perms&MemWrite != 0 {
		w = 1
	}
	if perms&MemExec != 0 {
		x = 1
	}
	return
}

// Map maps a host memory slice into the guest physical address space.
// The host slice base address, length, and guestPhys must be page-aligned.
func (vm *VM) Map(host []byte, guestPhys uint64, perms MemPerm) error {
	if vm == nil {
		return fmt.Errorf("hv: VM is nil")
	}
	if vm.closed {
		return fmt.Errorf("hv: VM is closed")
	}
	if len(host) == 0 {
		return fmt.Errorf("hv: map requires non-empty host buffer")
	}
	if err := checkPerms(perms); err != nil {
		return err
	}
	if err := vm.checkRegion("map", guestPhys, uint64(len(host))); err != nil {
		return err
	}

	// Pin the memory before passing to C to prevent GC from moving it
	runtime.KeepAlive(host)
	defer runtime.KeepAlive(host)

	ptr := unsafe.Pointer(&host[0])
	if !isPageAligned(uint64(uintptr(ptr))) {
		return fmt.Errorf("hv: host base not page-aligned: %p (page size: %d)", ptr, pageSize())
	}

	r, w, x := permBits(perms)
	ret := C.go_hv_vm_map(ptr, C.ulonglong(guestPhys), C.ulonglong(uint64(len(host))), r, w, x)
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to map %d bytes at 0x%x with perms 0x%x: %w", len(host), guestPhys, perms, err)
	}

	recordMapOperation()
	return nil
}

// Unmap removes a region from the guest physical address space.
func (vm *VM) Unmap(guestPhys, size uint64) error {
	if err := vm.checkRegion("unmap", guestPhys, size); err != nil {
		return err
	}

	ret := C.go_hv_vm_unmap(C.ulonglong(guestPhys), C.ulonglong(size))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to unmap region 0x%x+%d: %w", guestPhys, size, err)
	}

	recordUnmapOperation()
	return nil
}

// Protect modifies the permissions of a mapped region in the guest physical
// address space.
func (vm *VM) Protect(guestPhys, size uint64, perms MemPerm) error {
	if err := checkPerms(perms); err != nil {
		return err
	}
	if err := vm.checkRegion("protect", guestPhys, size); err != nil {
		return err
	}

	r, w, x := permBits(perms)
	ret := C.go_hv_vm_protect(C.ulonglong(guestPhys), C.ulonglong(size), r, w, x)
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to protect region 0x%x+%d with perms 0x%x: %w", guestPhys, size, perms, err)
	}

	recordProtectOperation()
	return nil
}
