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

//go:build darwin && arm64

package cmd

import (
	"fmt"

	hypervisor "github.com/blacktop/go-xhypervisor"
	"golang.org/x/sys/unix"
)

const defaultBaseAddr = 0x4000

// CPUState represents the AArch64 register state
type CPUState struct {
	// General-purpose registers
	X0  uint64 `json:"x0"`
	X1  uint64 `json:"x1"`
	X2  uint64 `json:"x2"`
	X3  uint64 `json:"x3"`
	X4  uint64 `json:"x4"`
	X5  uint64 `json:"x5"`
	X6  uint64 `json:"x6"`
	X7  uint64 `json:"x7"`
	X8  uint64 `json:"x8"`
	X9  uint64 `json:"x9"`
	X10 uint64 `json:"x10"`
	X11 uint64 `json:"x11"`
	X12 uint64 `json:"x12"`
	X13 uint64 `json:"x13"`
	X14 uint64 `json:"x14"`
	X15 uint64 `json:"x15"`
	X16 uint64 `json:"x16"`
	X17 uint64 `json:"x17"`
	X18 uint64 `json:"x18"`
	X19 uint64 `json:"x19"`
	X20 uint64 `json:"x20"`
	X21 uint64 `json:"x21"`
	X22 uint64 `json:"x22"`
	X23 uint64 `json:"x23"`
	X24 uint64 `json:"x24"`
	X25 uint64 `json:"x25"`
	X26 uint64 `json:"x26"`
	X27 uint64 `json:"x27"`
	X28 uint64 `json:"x28"`

	// Special registers
	FP   uint64 `json:"fp"`   // Frame pointer (x29)
	LR   uint64 `json:"lr"`   // Link register (x30)
	SP   uint64 `json:"sp"`   // Stack pointer
	PC   uint64 `json:"pc"`   // Program counter
	CPSR uint64 `json:"cpsr"` // Current program status register
}

// stateRegs maps state fields to library register identifiers.
func (s *CPUState) toBatch() hypervisor.RegBatch {
	return hypervisor.RegBatch{
		hypervisor.RegX0: s.X0, hypervisor.RegX1: s.X1, hypervisor.RegX2: s.X2,
		hypervisor.RegX3: s.X3, hypervisor.RegX4: s.X4, hypervisor.RegX5: s.X5,
		hypervisor.RegX6: s.X6, hypervisor.RegX7: s.X7, hypervisor.RegX8: s.X8,
		hypervisor.RegX9: s.X9, hypervisor.RegX10: s.X10, hypervisor.RegX11: s.X11,
		hypervisor.RegX12: s.X12, hypervisor.RegX13: s.X13, hypervisor.RegX14: s.X14,
		hypervisor.RegX15: s.X15, hypervisor.RegX16: s.X16, hypervisor.RegX17: s.X17,
		hypervisor.RegX18: s.X18, hypervisor.RegX19: s.X19, hypervisor.RegX20: s.X20,
		hypervisor.RegX21: s.X21, hypervisor.RegX22: s.X22, hypervisor.RegX23: s.X23,
		hypervisor.RegX24: s.X24, hypervisor.RegX25: s.X25, hypervisor.RegX26: s.X26,
		hypervisor.RegX27: s.X27, hypervisor.RegX28: s.X28,
		hypervisor.RegFP: s.FP, hypervisor.RegLR: s.LR, hypervisor.RegSP: s.SP,
		hypervisor.RegPC: s.PC, hypervisor.RegCPSR: s.CPSR,
	}
}

func (s *CPUState) fromBatch(batch hypervisor.RegBatch) {
	s.X0, s.X1, s.X2 = batch[hypervisor.RegX0], batch[hypervisor.RegX1], batch[hypervisor.RegX2]
	s.X3, s.X4, s.X5 = batch[hypervisor.RegX3], batch[hypervisor.RegX4], batch[hypervisor.RegX5]
	s.X6, s.X7, s.X8 = batch[hypervisor.RegX6], batch[hypervisor.RegX7], batch[hypervisor.RegX8]
	s.X9, s.X10, s.X11 = batch[hypervisor.RegX9], batch[hypervisor.RegX10], batch[hypervisor.RegX11]
	s.X12, s.X13, s.X14 = batch[hypervisor.RegX12], batch[hypervisor.RegX13], batch[hypervisor.RegX14]
	s.X15, s.X16, s.X17 = batch[hypervisor.RegX15], batch[hypervisor.RegX16], batch[hypervisor.RegX17]
	s.X18, s.X19, s.X20 = batch[hypervisor.RegX18], batch[hypervisor.RegX19], batch[hypervisor.RegX20]
	s.X21, s.X22, s.X23 = batch[hypervisor.RegX21], batch[hypervisor.RegX22], batch[hypervisor.RegX23]
	s.X24, s.X25, s.X26 = batch[hypervisor.RegX24], batch[hypervisor.RegX25], batch[hypervisor.RegX26]
	s.X27, s.X28 = batch[hypervisor.RegX27], batch[hypervisor.RegX28]
	s.FP, s.LR = batch[hypervisor.RegFP], batch[hypervisor.RegLR]
	s.SP, s.PC = batch[hypervisor.RegSP], batch[hypervisor.RegPC]
	s.CPSR = batch[hypervisor.RegCPSR]
}

var allRegs = []hypervisor.Reg{
	hypervisor.RegX0, hypervisor.RegX1, hypervisor.RegX2, hypervisor.RegX3,
	hypervisor.RegX4, hypervisor.RegX5, hypervisor.RegX6, hypervisor.RegX7,
	hypervisor.RegX8, hypervisor.RegX9, hypervisor.RegX10, hypervisor.RegX11,
	hypervisor.RegX12, hypervisor.RegX13, hypervisor.RegX14, hypervisor.RegX15,
	hypervisor.RegX16, hypervisor.RegX17, hypervisor.RegX18, hypervisor.RegX19,
	hypervisor.RegX20, hypervisor.RegX21, hypervisor.RegX22, hypervisor.RegX23,
	hypervisor.RegX24, hypervisor.RegX25, hypervisor.RegX26, hypervisor.RegX27,
	hypervisor.RegX28, hypervisor.RegFP, hypervisor.RegLR, hypervisor.RegSP,
	hypervisor.RegPC, hypervisor.RegCPSR,
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

	// Set PC to base address if not set in initial state
	if initialState.PC == 0 {
		if err := vcpu.SetPC(baseAddr); err != nil {
			return nil, fmt.Errorf("failed to set PC: %w", err)
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

	// Copy the guest memory to avoid marshaling mmap'd memory. The full
	// region is kept so callers can inspect the stack as well as the code.
	memCopy := make([]byte, len(hostMem))
	copy(memCopy, hostMem)

	return &ExecuteResult{
		State:    finalState,
		ExitInfo: exitInfo,
		Memory:   map[string][]byte{fmt.Sprintf("0x%x", baseAddr): memCopy},
	}, nil
}
