//go:build darwin && arm64

package hypervisor

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#if __has_include(<Hypervisor/Hypervisor.h>)
#include <Hypervisor/Hypervisor.h>
#else
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_types.h>
#endif
*/
import "C"

import "fmt"

// Reg represents an ARM64 general or special register.
type Reg int

const (
	RegX0 Reg = iota
	RegX1
	RegX2
	RegX3
	RegX4
	RegX5
	RegX6
	RegX7
	RegX8
	RegX9
	RegX10
	RegX11
	RegX12
	RegX13
	RegX14
	RegX15
	RegX16
	RegX17
	RegX18
	RegX19
	RegX20
	RegX21
	RegX22
	RegX23
	RegX24
	RegX25
	RegX26
	RegX27
	RegX28
	RegFP // X29
	RegLR // X30
	RegSP // Stack pointer (SP_EL0)
	RegPC
	RegCPSR
	RegFPCR
	RegFPSR
)

func (r Reg) String() string {
	switch {
	case r >= RegX0 && r <= RegX28:
		return fmt.Sprintf("X%d", int(r))
	case r == RegFP:
		return "FP"
	case r == RegLR:
		return "LR"
	case r == RegSP:
		return "SP"
	case r == RegPC:
		return "PC"
	case r == RegCPSR:
		return "CPSR"
	case r == RegFPCR:
		return "FPCR"
	case r == RegFPSR:
		return "FPSR"
	default:
		return fmt.Sprintf("Reg(%d)", int(r))
	}
}

// regToHV maps our Reg enum to the framework's hv_reg_t constants. SP is
// not part of hv_reg_t and is handled through SP_EL0.
func regToHV(r Reg) C.hv_reg_t {
	switch r {
	case RegX0:
		return C.HV_REG_X0
	case RegX1:
		return C.HV_REG_X1
	case RegX2:
		return C.HV_REG_X2
	case RegX3:
		return C.HV_REG_X3
	case RegX4:
		return C.HV_REG_X4
	case RegX5:
		return C.HV_REG_X5
	case RegX6:
		return C.HV_REG_X6
	case RegX7:
		return C.HV_REG_X7
	case RegX8:
		return C.HV_REG_X8
	case RegX9:
		return C.HV_REG_X9
	case RegX10:
		return C.HV_REG_X10
	case RegX11:
		return C.HV_REG_X11
	case RegX12:
		return C.HV_REG_X12
	case RegX13:
		return C.HV_REG_X13
	case RegX14:
		return C.HV_REG_X14
	case RegX15:
		return C.HV_REG_X15
	case RegX16:
		return C.HV_REG_X16
	case RegX17:
		return C.HV_REG_X17
	case RegX18:
		return C.HV_REG_X18
	case RegX19:
		return C.HV_REG_X19
	case RegX20:
		return C.HV_REG_X20
	case RegX21:
		return C.HV_REG_X21
	case RegX22:
		return C.HV_REG_X22
	case RegX23:
		return C.HV_REG_X23
	case RegX24:
		return C.HV_REG_X24
	case RegX25:
		return C.HV_REG_X25
	case RegX26:
		return C.HV_REG_X26
	case RegX27:
		return C.HV_REG_X27
	case RegX28:
		return C.HV_REG_X28
	case RegFP:
		return C.HV_REG_FP
	case RegLR:
		return C.HV_REG_LR
	case RegPC:
		return C.HV_REG_PC
	case RegCPSR:
		return C.HV_REG_CPSR
	case RegFPCR:
		return C.HV_REG_FPCR
	case RegFPSR:
		return C.HV_REG_FPSR
	default:
		// Unreachable after validation in GetReg/SetReg
		return C.HV_REG_X0
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
	if r < RegX0 || r > RegFPSR {
		return 0, fmt.Errorf("hv: invalid register %d (must be %d-%d)", r, RegX0, RegFPSR)
	}

	var val C.uint64_t
	var ret C.hv_return_t

	// SP is only reachable through the system register API
	if r == RegSP {
		ret = C.hv_vcpu_get_sys_reg(C.hv_vcpu_t(c.id), C.HV_SYS_REG_SP_EL0, &val)
	} else {
		ret = C.hv_vcpu_get_reg(C.hv_vcpu_t(c.id), regToHV(r), &val)
	}

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
	if r < RegX0 || r > RegFPSR {
		return fmt.Errorf("hv: invalid register %d (must be %d-%d)", r, RegX0, RegFPSR)
	}

	var ret C.hv_return_t

	if r == RegSP {
		ret = C.hv_vcpu_set_sys_reg(C.hv_vcpu_t(c.id), C.HV_SYS_REG_SP_EL0, C.uint64_t(v))
	} else {
		ret = C.hv_vcpu_set_reg(C.hv_vcpu_t(c.id), regToHV(r), C.uint64_t(v))
	}

	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to set register %s: %w", r, err)
	}

	recordRegisterOp()
	return nil
}

func (c *VCPU) GetPC() (uint64, error) { return c.GetReg(RegPC) }
func (c *VCPU) SetPC(v uint64) error   { return c.SetReg(RegPC, v) }

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
