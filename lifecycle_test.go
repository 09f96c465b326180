//go:build darwin && hypervisor

package hypervisor

import (
	"testing"
)

func TestVMLifecycle(t *testing.T) {
	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping VM lifecycle test")
	}

	// Test creating and destroying multiple VMs (should only allow one at a time)
	vm1, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create first VM (likely missing entitlements): %v", err)
	}

	// Try to create a second VM - should fail
	vm2, err := NewVM()
	if err == nil {
		vm2.Close()
		t.Error("Expected error when creating second VM, but succeeded")
	} else {
		t.Logf("Correctly rejected second VM creation: %v", err)
	}

	// Close first VM
	err = vm1.Close()
	if err != nil {
		t.Errorf("Failed to close first VM: %v", err)
	}

	// Close is idempotent
	if err := vm1.Close(); err != nil {
		t.Errorf("Second Close returned error: %v", err)
	}

	// Now we should be able to create another VM
	vm3, err := NewVM()
	if err != nil {
		t.Errorf("Failed to create VM after closing previous one: %v", err)
	} else {
		vm3.Close()
	}
}

func TestVCPULifecycle(t *testing.T) {
	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping vCPU lifecycle test")
	}

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	defer vm.Close()

	// Test creating multiple vCPUs
	vcpus := make([]*VCPU, 0)
	for i := 0; i < 3; i++ {
		vcpu, err := vm.NewVCPU()
		if err != nil {
			t.Logf("Failed to create vCPU %d: %v", i, err)
			break
		}
		vcpus = append(vcpus, vcpu)
		t.Logf("Created vCPU %d with ID %d", i, vcpu.ID())
	}

	// Close all vCPUs
	for i, vcpu := range vcpus {
		err := vcpu.Close()
		if err != nil {
			t.Errorf("Failed to close vCPU %d: %v", i, err)
		}
	}

	// vCPU Close is idempotent
	if len(vcpus) > 0 {
		if err := vcpus[0].Close(); err != nil {
			t.Errorf("Second vCPU Close returned error: %v", err)
		}
	}
}

func TestClosedVMRejectsOperations(t *testing.T) {
	supported, err := Supported()
	if err != nil {
		t.Fatalf("Failed to check hypervisor support: %v", err)
	}
	if !supported {
		t.Skip("Hypervisor not supported - skipping closed VM test")
	}

	vm, err := NewVM()
	if err != nil {
		t.Skipf("Cannot create VM (likely missing entitlements): %v", err)
	}
	if err := vm.Close(); err != nil {
		t.Fatalf("Failed to close VM: %v", err)
	}

	if _, err := vm.NewVCPU(); err == nil {
		t.Error("Expected error creating vCPU on closed VM, got nil")
	}
	if err := vm.Map(make([]byte, pageSize()), 0x4000, MemRead); err == nil {
		t.Error("Expected error mapping on closed VM, got nil")
	}
}
