/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

//go:build darwin && amd64

package cmd

import (
	"fmt"

	hypervisor "github.com/blacktop/go-xhypervisor"
	"golang.org/x/sys/unix"
)

// Real-mode guests address memory through 16-bit segments, so code has to
// live in the low megabyte.
const defaultBaseAddr = 0x0

// Primary proc-based control bits
const (
	ctrlCPUBasedHLT      = 1 << 7
	ctrlCPUBasedCR8Load  = 1 << 19
	ctrlCPUBasedCR8Store = 1 << 20
)

// CPUState represents the x86 register state
type CPUState struct {
	RAX    uint64 `json:"rax"`
	RBX    uint64 `json:"rbx"`
	RCX    uint64 `json:"rcx"`
	RDX    uint64 `json:"rdx"`
	RSI    uint64 `json:"rsi"`
	RDI    uint64 `json:"rdi"`
	RSP    uint64 `json:"rsp"`
	RBP    uint64 `json:"rbp"`
	R8     uint64 `json:"r8"`
	R9     uint64 `json:"r9"`
	R10    uint64 `json:"r10"`
	R11    uint64 `json:"r11"`
	R12    uint64 `json:"r12"`
	R13    uint64 `json:"r13"`
	R14    uint64 `json:"r14"`
	R15    uint64 `json:"r15"`
	RIP    uint64 `json:"rip"`
	RFLAGS uint64 `json:"rflags"`
}

func (s *CPUState) toBatch() hypervisor.RegBatch {
	return hypervisor.RegBatch{
		hypervisor.RegRAX: s.RAX, hypervisor.RegRBX: s.RBX, hypervisor.RegRCX: s.RCX,
		hypervisor.RegRDX: s.RDX, hypervisor.RegRSI: s.RSI, hypervisor.RegRDI: s.RDI,
		hypervisor.RegRSP: s.RSP, hypervisor.RegRBP: s.RBP,
		hypervisor.RegR8: s.R8, hypervisor.RegR9: s.R9, hypervisor.RegR10: s.R10,
		hypervisor.RegR11: s.R11, hypervisor.RegR12: s.R12, hypervisor.RegR13: s.R13,
		hypervisor.RegR14: s.R14, hypervisor.RegR15: s.R15,
		hypervisor.RegRIP: s.RIP, hypervisor.RegRFLAGS: s.RFLAGS,
	}
}

func (s *CPUState) fromBatch(batch hypervisor.RegBatch) {
	s.RAX, s.RBX, s.RCX = batch[hypervisor.RegRAX], batch[hypervisor.RegRBX], batch[hypervisor.RegRCX]
	s.RDX, s.RSI, s.RDI = batch[hypervisor.RegRDX], batch[hypervisor.RegRSI], batch[hypervisor.RegRDI]
	s.RSP, s.RBP = batch[hypervisor.RegRSP], batch[hypervisor.RegRBP]
	s.R8, s.R9, s.R10 = batch[hypervisor.RegR8], batch[hypervisor.RegR9], batch[hypervisor.RegR10]
	s.R11, s.R12, s.R13 = batch[hypervisor.RegR11], batch[hypervisor.RegR12], batch[hypervisor.RegR13]
	s.R14, s.R15 = batch[hypervisor.RegR14], batch[hypervisor.RegR15]
	s.RIP, s.RFLAGS = batch[hypervisor.RegRIP], batch[hypervisor.RegRFLAGS]
}

var allRegs = []hypervisor.Reg{
	hypervisor.RegRAX, hypervisor.RegRBX, hypervisor.RegRCX, hypervisor.RegRDX,
	hypervisor.RegRSI, hypervisor.RegRDI, hypervisor.RegRSP, hypervisor.RegRBP,
	hypervisor.RegR8, hypervisor.RegR9, hypervisor.RegR10, hypervisor.RegR11,
	hypervisor.RegR12, hypervisor.RegR13, hypervisor.RegR14, hypervisor.RegR15,
	hypervisor.RegRIP, hypervisor.RegRFLAGS,
}

// setupRealMode configures the VMCS so the guest starts in 16-bit real mode.
func setupRealMode(vcpu *hypervisor.VCPU) error {
	pinCap, err := hypervisor.ReadVMXCap(hypervisor.VMXCapPinBased)
	if err != nil {
		return err
	}
	cpuCap, err := hypervisor.ReadVMXCap(hypervisor.VMXCapProcBased)
	if err != nil {
		return err
	}
	cpu2Cap, err := hypervisor.ReadVMXCap(hypervisor.VMXCapProcBased2)
	if err != nil {
		return err
	}
	entryCap, err := hypervisor.ReadVMXCap(hypervisor.VMXCapEntry)
	if err != nil {
		return err
	}

	fields := []struct {
		field uint32
		value uint64
	}{
		{hypervisor.VMCSCtrlPinBased, hypervisor.Cap2Ctrl(pinCap, 0)},
		{hypervisor.VMCSCtrlCPUBased, hypervisor.Cap2Ctrl(cpuCap,
			ctrlCPUBasedHLT|ctrlCPUBasedCR8Load|ctrlCPUBasedCR8Store)},
		{hypervisor.VMCSCtrlCPUBased2, hypervisor.Cap2Ctrl(cpu2Cap, 0)},
		{hypervisor.VMCSCtrlVMEntryControls, hypervisor.Cap2Ctrl(entryCap, 0)},
		{hypervisor.VMCSCtrlExcBitmap, 0xffffffff},
		{hypervisor.VMCSCtrlCR0Mask, 0x60000000},
		{hypervisor.VMCSCtrlCR0Shadow, 0},
		{hypervisor.VMCSCtrlCR4Mask, 0},
		{hypervisor.VMCSCtrlCR4Shadow, 0},

		{hypervisor.VMCSGuestCS, 0},
		{hypervisor.VMCSGuestCSLimit, 0xffff},
		{hypervisor.VMCSGuestCSAR, 0x9b},
		{hypervisor.VMCSGuestCSBase, 0},
		{hypervisor.VMCSGuestDS, 0},
		{hypervisor.VMCSGuestDSLimit, 0xffff},
		{hypervisor.VMCSGuestDSAR, 0x93},
		{hypervisor.VMCSGuestDSBase, 0},
		{hypervisor.VMCSGuestES, 0},
		{hypervisor.VMCSGuestESLimit, 0xffff},
		{hypervisor.VMCSGuestESAR, 0x93},
		{hypervisor.VMCSGuestESBase, 0},
		{hypervisor.VMCSGuestFS, 0},
		{hypervisor.VMCSGuestFSLimit, 0xffff},
		{hypervisor.VMCSGuestFSAR, 0x93},
		{hypervisor.VMCSGuestFSBase, 0},
		{hypervisor.VMCSGuestGS, 0},
		{hypervisor.VMCSGuestGSLimit, 0xffff},
		{hypervisor.VMCSGuestGSAR, 0x93},
		{hypervisor.VMCSGuestGSBase, 0},
		{hypervisor.VMCSGuestSS, 0},
		{hypervisor.VMCSGuestSSLimit, 0xffff},
		{hypervisor.VMCSGuestSSAR, 0x93},
		{hypervisor.VMCSGuestSSBase, 0},

		{hypervisor.VMCSGuestLDTR, 0},
		{hypervisor.VMCSGuestLDTRLimit, 0},
		{hypervisor.VMCSGuestLDTRAR, 0x10000},
		{hypervisor.VMCSGuestLDTRBase, 0},
		{hypervisor.VMCSGuestTR, 0},
		{hypervisor.VMCSGuestTRLimit, 0},
		{hypervisor.VMCSGuestTRAR, 0x83},
		{hypervisor.VMCSGuestTRBase, 0},
		{hypervisor.VMCSGuestGDTRBase, 0},
		{hypervisor.VMCSGuestGDTRLimit, 0},
		{hypervisor.VMCSGuestIDTRBase, 0},
		{hypervisor.VMCSGuestIDTRLimit, 0},

		{hypervisor.VMCSGuestCR0, 0x20},
		{hypervisor.VMCSGuestCR3, 0},
		{hypervisor.VMCSGuestCR4, 0x2000}, // VMXE
	}

	for _, f := range fields {
		if err := vcpu.WriteVMCS(f.field, f.value); err != nil {
			return fmt.Errorf("write VMCS field 0x%x: %w", f.field, err)
		}
	}
	return nil
}

func executeCode(code []byte, initialState *CPUState) (*ExecuteResult, error) {
	// Create VM
	vm, err := hypervisor.NewVM()
	if err != nil {
		return nil, fmt.Errorf("failed to create VM: %w", err)
	}
	defer vm.Close()

	// Create vCPU
	vcpu, err := vm.NewVCPU()
	if err != nil {
		return nil, fmt.Errorf("failed to create vCPU: %w", err)
	}
	defer vcpu.Close()

	// Validate memory size is page-aligned
	page := unix.Getpagesize()
	if memSize%page != 0 {
		return nil, fmt.Errorf("mem-size must be a multiple of page size (%d bytes)", page)
	}
	if baseAddr+uint64(memSize) > 0x100000 {
		return nil, fmt.Errorf("real-mode guest memory must stay below 1MB")
	}

	// Allocate memory
	hostMem, err := unix.Mmap(-1, 0, memSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate memory: %w", err)
	}
	defer unix.Munmap(hostMem)

	// Copy code to memory
	if len(code) > len(hostMem) {
		return nil, fmt.Errorf("code size (%d) exceeds memory size (%d)", len(code), len(hostMem))
	}
	copy(hostMem, code)

	// Map memory into guest
	perms := hypervisor.MemRead | hypervisor.MemWrite | hypervisor.MemExec
	err = vm.Map(hostMem, baseAddr, perms)
	if err != nil {
		return nil, fmt.Errorf("failed to map memory: %w", err)
	}
	defer vm.Unmap(baseAddr, uint64(len(hostMem)))

	if err := setupRealMode(vcpu); err != nil {
		return nil, fmt.Errorf("failed to set up real mode: %w", err)
	}

	// Set initial CPU state (only non-zero values)
	initBatch := hypervisor.RegBatch{}
	for reg, val := range initialState.toBatch() {
		if val != 0 {
			initBatch[reg] = val
		}
	}
	if len(initBatch) > 0 {
		if err := vcpu.SetRegs(initBatch); err != nil {
			return nil, fmt.Errorf("failed to set initial state: %w", err)
		}
	}

	// RFLAGS bit 1 is architecturally fixed to one
	if initialState.RFLAGS == 0 {
		if err := vcpu.SetReg(hypervisor.RegRFLAGS, 0x2); err != nil {
			return nil, fmt.Errorf("failed to set RFLAGS: %w", err)
		}
	}

	// Set RIP to base address if not set in initial state
	if initialState.RIP == 0 {
		if err := vcpu.SetPC(baseAddr); err != nil {
			return nil, fmt.Errorf("failed to set RIP: %w", err)
		}
	}

	// Execute
	exitInfo, err := vcpu.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to execute: %w", err)
	}

	// Get final CPU state
	finalBatch, err := vcpu.GetRegs(allRegs)
	if err != nil {
		return nil, fmt.Errorf("failed to get final state: %w", err)
	}
	var finalState CPUState
	finalState.fromBatch(finalBatch)

	// Copy the guest memory to avoid marshaling mmap'd memory
	memCopy := make([]byte, len(hostMem))
	copy(memCopy, hostMem)

	return &ExecuteResult{
		State:    finalState,
		ExitInfo: exitInfo,
		Memory:   map[string][]byte{fmt.Sprintf("0x%x", baseAddr): memCopy},
	}, nil
}
