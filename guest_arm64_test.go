//go:build darwin && arm64 && hypervisor

package hypervisor

import (
	"encoding/binary"
	"runtime"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// guestPage maps one page of guest memory at guestPhys and returns the
// host slice. The page is unmapped and released via t.Cleanup.
func guestPage(t *testing.T, vm *VM, guestPhys uint64) []byte {
	t.Helper()

	ps := unix.Getpagesize()
	buf, err := unix.Mmap(-1, 0, ps, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("Failed to mmap: %v", err)
	}
	t.Cleanup(func() {
		if err := unix.Munmap(buf); err != nil {
			t.Errorf("Failed to munmap: %v", err)
		}
	})

	if err := vm.Map(buf, guestPhys, MemRead|MemWrite|MemExec); err != nil {
		t.Fatalf("Failed to map guest memory: %v", err)
	}
	t.Cleanup(func() {
		if err := vm.Unmap(guestPhys, uint64(len(buf))); err != nil {
			t.Errorf("Failed to unmap guest memory: %v", err)
		}
	})

	return buf
}

func TestGuestHVC(t *testing.T) {
	if isCI() {
		t.Skip("Skipping hypervisor tests in CI environment")
	}

	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping guest execution test")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	const guestPhys = 0x4000
	buf := guestPage(t, vm, guestPhys)

	// mov x0, #2 ; hvc #0
	binary.LittleEndian.PutUint32(buf[0:], 0xD2800040) // MOVZ X0, #2
	binary.LittleEndian.PutUint32(buf[4:], 0xD4000002) // HVC #0

	vcpu, err := vm.NewVCPU()
	if err != nil {
		t.Fatalf("Failed to create vCPU: %v", err)
	}
	defer vcpu.Close()

	if err := vcpu.SetPC(guestPhys); err != nil {
		t.Fatalf("Failed to set PC: %v", err)
	}

	info, err := vcpu.Run()
	if err != nil {
		t.Fatalf("Failed to run vCPU: %v", err)
	}

	if info.Reason != ExitException {
		t.Fatalf("Expected ExitException, got %v", info.Reason)
	}

	// ESR_EL2 exception class for HVC from AArch64 is 0x16
	ec := (info.Syndrome >> 26) & 0x3f
	if ec != 0x16 {
		t.Errorf("Exception class = 0x%02x, want 0x16 (HVC)", ec)
	}

	x0, err := vcpu.GetReg(RegX0)
	if err != nil {
		t.Fatalf("Failed to get X0 register: %v", err)
	}
	if x0 != 2 {
		t.Errorf("X0 = 0x%x, want 0x2", x0)
	}
}

func TestGuestBreakpoint(t *testing.T) {
	if isCI() {
		t.Skip("Skipping hypervisor tests in CI environment")
	}

	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping guest execution test")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	const guestPhys = 0x4000
	buf := guestPage(t, vm, guestPhys)

	// mov x0, #0x42 ; brk #0
	binary.LittleEndian.PutUint32(buf[0:], 0xD2800840) // MOVZ X0, #0x42
	binary.LittleEndian.PutUint32(buf[4:], 0xD4200000) // BRK #0

	vcpu, err := vm.NewVCPU()
	if err != nil {
		t.Fatalf("Failed to create vCPU: %v", err)
	}
	defer vcpu.Close()

	if err := vcpu.SetPC(guestPhys); err != nil {
		t.Fatalf("Failed to set PC: %v", err)
	}

	info, err := vcpu.Run()
	if err != nil {
		t.Fatalf("Failed to run vCPU: %v", err)
	}

	t.Logf("Exit info: Reason=%v Syndrome=0x%x VA=0x%x", info.Reason, info.Syndrome, info.VirtualAddress)
	if info.Reason != ExitException {
		t.Logf("Expected ExitException, got %v (this might be okay depending on hypervisor behavior)", info.Reason)
	}

	x0, err := vcpu.GetReg(RegX0)
	if err != nil {
		t.Fatalf("Failed to get X0 register: %v", err)
	}
	if x0 != 0x42 {
		t.Errorf("X0 = 0x%x, want 0x42", x0)
	}
}

func TestGuestCancellation(t *testing.T) {
	if isCI() {
		t.Skip("Skipping hypervisor tests in CI environment")
	}

	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping cancellation test")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	const guestPhys = 0x4000
	buf := guestPage(t, vm, guestPhys)

	// b . (spin forever)
	binary.LittleEndian.PutUint32(buf[0:], 0x14000000)

	vcpu, err := vm.NewVCPU()
	if err != nil {
		t.Fatalf("Failed to create vCPU: %v", err)
	}
	defer vcpu.Close()

	if err := vcpu.SetPC(guestPhys); err != nil {
		t.Fatalf("Failed to set PC: %v", err)
	}

	// Force an exit from another goroutine while the guest spins.
	// Interrupt is the only vCPU call safe to make off the owner thread.
	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := vcpu.Interrupt(); err != nil {
			t.Errorf("Interrupt failed: %v", err)
		}
	}()

	info, err := vcpu.Run()
	if err != nil {
		t.Fatalf("Failed to run vCPU: %v", err)
	}
	if info.Reason != ExitCancelled {
		t.Errorf("Expected ExitCancelled, got %v", info.Reason)
	}
}

