//go:build darwin && hypervisor

package hypervisor

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

func TestPageSize(t *testing.T) {
	ps := pageSize()
	expectedPS := unix.Getpagesize()

	if ps != expectedPS {
		t.Errorf("pageSize() = %d, want %d", ps, expectedPS)
	}

	// 4K on Intel, 16K on Apple Silicon
	if ps != 4096 && ps != 16384 {
		t.Logf("Unexpected page size: %d (expected 4K or 16K)", ps)
	}
}

func TestMemoryMapValidation(t *testing.T) {
	// These tests don't require actual hypervisor access, just validation logic
	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping memory map validation tests")
	}

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	pageSize := unix.Getpagesize()

	t.Run("nil VM", func(t *testing.T) {
		var nilVM *VM
		err := nilVM.Map(make([]byte, pageSize), 0x4000, MemRead)
		if err == nil {
			t.Error("Expected error for nil VM, got nil")
		}
	})

	t.Run("empty host buffer", func(t *testing.T) {
		err := vm.Map([]byte{}, 0x4000, MemRead)
		if err == nil {
			t.Error("Expected error for empty host buffer, got nil")
		}
		if err != nil && err.Error() != "hv: map requires non-empty host buffer" {
			t.Errorf("Wrong error message: %v", err)
		}
	})

	t.Run("no permissions", func(t *testing.T) {
		err := vm.Map(make([]byte, pageSize), 0x4000, 0)
		if err == nil {
			t.Error("Expected error for zero permissions, got nil")
		}
	})

	t.Run("invalid permission bits", func(t *testing.T) {
		err := vm.Map(make([]byte, pageSize), 0x4000, MemPerm(1<<7))
		if err == nil {
			t.Error("Expected error for invalid permission bits, got nil")
		}
	})

	t.Run("unaligned guest address", func(t *testing.T) {
		alignedBuffer := make([]byte, pageSize)
		unalignedGuestAddr := uint64(0x4001) // Not page aligned

		err := vm.Map(alignedBuffer, unalignedGuestAddr, MemRead)
		if err == nil {
			t.Error("Expected error for unaligned guest address, got nil")
		}
	})

	t.Run("unaligned host buffer size", func(t *testing.T) {
		unalignedBuffer := make([]byte, pageSize+1) // Not page multiple

		err := vm.Map(unalignedBuffer, 0x4000, MemRead)
		if err == nil {
			t.Error("Expected error for unaligned buffer size, got nil")
		}
	})

	t.Run("unaligned host buffer address", func(t *testing.T) {
		// Create a larger buffer and use an unaligned slice
		largeBuffer := make([]byte, pageSize*2)
		unalignedSlice := largeBuffer[1 : pageSize+1] // Starts at offset 1

		err := vm.Map(unalignedSlice, 0x4000, MemRead)
		if err == nil {
			t.Error("Expected error for unaligned host buffer address, got nil")
		}
	})

	t.Run("valid aligned mapping", func(t *testing.T) {
		// mmap returns page-aligned memory
		buf, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			t.Fatalf("Failed to mmap: %v", err)
		}
		defer unix.Munmap(buf)

		if uintptr(unsafe.Pointer(&buf[0]))%uintptr(pageSize) != 0 {
			t.Fatal("mmap returned unaligned buffer")
		}

		err = vm.Map(buf, 0x4000, MemRead|MemWrite|MemExec)
		if err != nil {
			// This might fail due to other reasons (like missing entitlements),
			// but it shouldn't be an alignment error
			t.Errorf("Unexpected error for valid mapping: %v", err)
		} else {
			// If mapping succeeded, test unmapping
			defer vm.Unmap(0x4000, uint64(len(buf)))
		}
	})
}

func TestMemoryUnmapValidation(t *testing.T) {
	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping memory unmap validation tests")
	}

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	pageSize := uint64(unix.Getpagesize())

	t.Run("nil VM", func(t *testing.T) {
		var nilVM *VM
		err := nilVM.Unmap(0x4000, pageSize)
		if err == nil {
			t.Error("Expected error for nil VM, got nil")
		}
	})

	t.Run("zero size", func(t *testing.T) {
		err := vm.Unmap(0x4000, 0)
		if err == nil {
			t.Error("Expected error for zero size, got nil")
		}
	})

	t.Run("unaligned guest address", func(t *testing.T) {
		err := vm.Unmap(0x4001, pageSize) // Unaligned address
		if err == nil {
			t.Error("Expected error for unaligned guest address, got nil")
		}
	})

	t.Run("unaligned size", func(t *testing.T) {
		err := vm.Unmap(0x4000, pageSize+1) // Unaligned size
		if err == nil {
			t.Error("Expected error for unaligned size, got nil")
		}
	})

	t.Run("valid aligned unmap", func(t *testing.T) {
		// This should not error on alignment, though it might fail for other reasons
		err := vm.Unmap(0x8000, pageSize)
		// We expect this to potentially fail because we haven't mapped anything,
		// but it shouldn't be an alignment error
		if err != nil {
			t.Logf("Unmap error (expected): %v", err)
		}
	})
}

func TestMemoryProtect(t *testing.T) {
	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping memory protect tests")
	}

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	pageSize := unix.Getpagesize()

	t.Run("unaligned guest address", func(t *testing.T) {
		err := vm.Protect(0x4001, uint64(pageSize), MemRead)
		if err == nil {
			t.Error("Expected error for unaligned guest address, got nil")
		}
	})

	t.Run("no permissions", func(t *testing.T) {
		err := vm.Protect(0x4000, uint64(pageSize), 0)
		if err == nil {
			t.Error("Expected error for zero permissions, got nil")
		}
	})

	t.Run("downgrade mapped region", func(t *testing.T) {
		buf, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			t.Fatalf("Failed to mmap: %v", err)
		}
		defer unix.Munmap(buf)

		const guestPhys = 0x4000
		if err := vm.Map(buf, guestPhys, MemRead|MemWrite|MemExec); err != nil {
			t.Fatalf("Failed to map guest memory: %v", err)
		}
		defer vm.Unmap(guestPhys, uint64(len(buf)))

		if err := vm.Protect(guestPhys, uint64(len(buf)), MemRead); err != nil {
			t.Errorf("Failed to downgrade mapped region to read-only: %v", err)
		}

		// Restore full permissions
		if err := vm.Protect(guestPhys, uint64(len(buf)), MemRead|MemWrite|MemExec); err != nil {
			t.Errorf("Failed to restore permissions: %v", err)
		}
	})
}
