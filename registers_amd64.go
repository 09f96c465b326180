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
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Reg represents an x86 architectural register.
type Reg int

const (
	RegRIP Reg = iota
	RegRFLAGS
	RegRAX
	RegRCX
	RegRDX
	RegRBX
	RegRSI
	RegRDI
	RegRSP
	RegRBP
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
	RegCS
	RegSS
	RegDS
	RegES
	RegFS
	RegGS
	RegIDTBase
	RegIDTLimit
	RegGDTBase
	RegGDTLimit
	RegLDTR
	RegLDTBase
	RegLDTLimit
	RegLDTAR
	RegTR
	RegTSSBase
	RegTSSLimit
	RegTSSAR
	RegCR0
	RegCR1
	RegCR2
	RegCR3
	RegCR4
	RegDR0
	RegDR1
	RegDR2
	RegDR3
	RegDR4
	RegDR5
	RegDR6
	RegDR7
	RegTPR
	RegXCR0
)

var regNames = [...]string{
	"RIP", "RFLAGS", "RAX", "RCX", "RDX", "RBX", "RSI", "RDI", "RSP", "RBP",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
	"CS", "SS", "DS", "ES", "FS", "GS",
	"IDT_BASE", "IDT_LIMIT", "GDT_BASE", "GDT_LIMIT",
	"LDTR", "LDT_BASE", "LDT_LIMIT", "LDT_AR",
	"TR", "TSS_BASE", "TSS_LIMIT", "TSS_AR",
	"CR0", "CR1", "CR2", "CR3", "CR4",
	"DR0", "DR1", "DR2", "DR3", "DR4", "DR5", "DR6", "DR7",
	"TPR", "XCR0",
}

func (r Reg) String() string {
	if r >= RegRIP && int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", int(r))
}

// regToHV maps our Reg enum to the framework's hv_x86_reg_t constants.
func regToHV(r Reg) C.hv_x86_reg_t {
	switch r {
	case RegRIP:
		return C.HV_X86_RIP
	case RegRFLAGS:
		return C.HV_X86_RFLAGS
	case RegRAX:
		return C.HV_X86_RAX
	case RegRCX:
		return C.HV_X86_RCX
	case RegRDX:
		return C.HV_X86_RDX
	case RegRBX:
		return C.HV_X86_RBX
	case RegRSI:
		return C.HV_X86_RSI
	case RegRDI:
		return C.HV_X86_RDI
	case RegRSP:
		return C.HV_X86_RSP
	case RegRBP:
		return C.HV_X86_RBP
	case RegR8:
		return C.HV_X86_R8
	case RegR9:
		return C.HV_X86_R9
	case RegR10:
		return C.HV_X86_R10
	case RegR11:
		return C.HV_X86_R11
	case RegR12:
		return C.HV_X86_R12
	case RegR13:
		return C.HV_X86_R13
	case RegR14:
		return C.HV_X86_R14
	case RegR15:
		return C.HV_X86_R15
	case RegCS:
		return C.HV_X86_CS
	case RegSS:
		return C.HV_X86_SS
	case RegDS:
		return C.HV_X86_DS
	case RegES:
		return C.HV_X86_ES
	case RegFS:
		return C.HV_X86_FS
	case RegGS:
		return C.HV_X86_GS
	case RegIDTBase:
		return C.HV_X86_IDT_BASE
	case RegIDTLimit:
		return C.HV_X86_IDT_LIMIT
	case RegGDTBase:
		return C.HV_X86_GDT_BASE
	case RegGDTLimit:
		return C.HV_X86_GDT_LIMIT
	case RegLDTR:
		return C.HV_X86_LDTR
	case RegLDTBase:
		return C.HV_X86_LDT_BASE
	case RegLDTLimit:
		return C.HV_X86_LDT_LIMIT
	case RegLDTAR:
		return C.HV_X86_LDT_AR
	case RegTR:
		return C.HV_X86_TR
	case RegTSSBase:
		return C.HV_X86_TSS_BASE
	case RegTSSLimit:
		return C.HV_X86_TSS_LIMIT
	case RegTSSAR:
		return C.HV_X86_TSS_AR
	case RegCR0:
		return C.HV_X86_CR0
	case RegCR1:
		return C.HV_X86_CR1
	case RegCR2:
		return C.HV_X86_CR2
	case RegCR3:
		return C.HV_X86_CR3
	case RegCR4:
		return C.HV_X86_CR4
	case RegDR0:
		return C.HV_X86_DR0
	case RegDR1:
		return C.HV_X86_DR1
	case RegDR2:
		return C.HV_X86_DR2
	case RegDR3:
		return C.HV_X86_DR3
	case RegDR4:
		return C.HV_X86_DR4
	case RegDR5:
		return C.HV_X86_DR5
	case RegDR6:
		return C.HV_X86_DR6
	case RegDR7:
		return C.HV_X86_DR7
	case RegTPR:
		return C.HV_X86_TPR
	case RegXCR0:
		return C.HV_X86_XCR0
	default:
		// Unreachable after validation in GetReg/SetReg
		return C.HV_X86_RIP
	}
}

// GetReg returns the current value of an architectural register.
func (c *VCPU) GetReg(r Reg) (uint64, error) {
	if c == nil {
		return 0, fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return 0, ErrVCPUClosed
	}
	if r < RegRIP || r > RegXCR0 {
		return 0, fmt.Errorf("hv: invalid register %d (must be %d-%d)", r, RegRIP, RegXCR0)
	}

	var val C.uint64_t
	ret := C.hv_vcpu_read_register(C.hv_vcpuid_t(c.id), regToHV(r), &val)
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return 0, fmt.Errorf("failed to get register %s: %w", r, err)
	}

	recordRegisterOp()
	return uint64(val), nil
}

// SetReg sets the value of an architectural register.
func (c *VCPU) SetReg(r Reg, v uint64) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}
	if r < RegRIP || r > RegXCR0 {
		return fmt.Errorf("hv: invalid register %d (must be %d-%d)", r, RegRIP, RegXCR0)
	}

	ret := C.hv_vcpu_write_register(C.hv_vcpuid_t(c.id), regToHV(r), C.uint64_t(v))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to set register %s: %w", r, err)
	}

	recordRegisterOp()
	return nil
}

func (c *VCPU) GetPC() (uint64, error) { return c.GetReg(RegRIP) }
func (c *VCPU) SetPC(v uint64) error   { return c.SetReg(RegRIP, v) }

// RegBatch represents a batch of register values keyed by register.
type RegBatch map[Reg]uint64

// GetRegs retrieves multiple registers in one call.
func (c *VCPU) GetRegs(regs []Reg) (RegBatch, error) {
	if c == nil {
		return nil, fmt.Errorf("hv: VCPU is nil")
	}

	batch := make(RegBatch, len(regs))
	for _, reg := range regs {
		val, err := c.GetReg(reg)
		if err != nil {
			return nil, err
		}
		batch[reg] = val
	}
	return batch, nil
}

// SetRegs sets multiple registers in one call.
func (c *VCPU) SetRegs(batch RegBatch) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	for reg, val := range batch {
		if err := c.SetReg(reg, val); err != nil {
			return err
		}
	}
	return nil
}

// ReadFPState reads the vCPU's floating point and SIMD state into buf. The
// buffer must be large enough for the architectural XSAVE area.
func (c *VCPU) ReadFPState(buf []byte) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}
	if len(buf) == 0 {
		return fmt.Errorf("hv: fpstate buffer must be non-empty")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_read_fpstate(C.hv_vcpuid_t(c.id), unsafe.Pointer(&buf[0]), C.size_t(len(buf)))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to read fpstate (%d bytes): %w", len(buf), err)
	}
	recordRegisterOp()
	return nil
}

// WriteFPState sets the vCPU's floating point and SIMD state from buf.
func (c *VCPU) WriteFPState(buf []byte) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}
	if len(buf) == 0 {
		return fmt.Errorf("hv: fpstate buffer must be non-empty")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_write_fpstate(C.hv_vcpuid_t(c.id), unsafe.Pointer(&buf[0]), C.size_t(len(buf)))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to write fpstate (%d bytes): %w", len(buf), err)
	}
	recordRegisterOp()
	return nil
}
