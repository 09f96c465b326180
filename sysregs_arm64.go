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

// SysReg identifies an ARM64 system register. The values are the
// framework's hv_sys_reg_t encodings.
type SysReg uint16

const (
	SysRegDBGBVR0_EL1  SysReg = C.HV_SYS_REG_DBGBVR0_EL1
	SysRegDBGBCR0_EL1  SysReg = C.HV_SYS_REG_DBGBCR0_EL1
	SysRegDBGWVR0_EL1  SysReg = C.HV_SYS_REG_DBGWVR0_EL1
	SysRegDBGWCR0_EL1  SysReg = C.HV_SYS_REG_DBGWCR0_EL1
	SysRegDBGBVR1_EL1  SysReg = C.HV_SYS_REG_DBGBVR1_EL1
	SysRegDBGBCR1_EL1  SysReg = C.HV_SYS_REG_DBGBCR1_EL1
	SysRegDBGWVR1_EL1  SysReg = C.HV_SYS_REG_DBGWVR1_EL1
	SysRegDBGWCR1_EL1  SysReg = C.HV_SYS_REG_DBGWCR1_EL1
	SysRegMDCCINT_EL1  SysReg = C.HV_SYS_REG_MDCCINT_EL1
	SysRegMDSCR_EL1    SysReg = C.HV_SYS_REG_MDSCR_EL1
	SysRegDBGBVR2_EL1  SysReg = C.HV_SYS_REG_DBGBVR2_EL1
	SysRegDBGBCR2_EL1  SysReg = C.HV_SYS_REG_DBGBCR2_EL1
	SysRegDBGWVR2_EL1  SysReg = C.HV_SYS_REG_DBGWVR2_EL1
	SysRegDBGWCR2_EL1  SysReg = C.HV_SYS_REG_DBGWCR2_EL1
	SysRegDBGBVR3_EL1  SysReg = C.HV_SYS_REG_DBGBVR3_EL1
	SysRegDBGBCR3_EL1  SysReg = C.HV_SYS_REG_DBGBCR3_EL1
	SysRegDBGWVR3_EL1  SysReg = C.HV_SYS_REG_DBGWVR3_EL1
	SysRegDBGWCR3_EL1  SysReg = C.HV_SYS_REG_DBGWCR3_EL1
	SysRegDBGBVR4_EL1  SysReg = C.HV_SYS_REG_DBGBVR4_EL1
	SysRegDBGBCR4_EL1  SysReg = C.HV_SYS_REG_DBGBCR4_EL1
	SysRegDBGWVR4_EL1  SysReg = C.HV_SYS_REG_DBGWVR4_EL1
	SysRegDBGWCR4_EL1  SysReg = C.HV_SYS_REG_DBGWCR4_EL1
	SysRegDBGBVR5_EL1  SysReg = C.HV_SYS_REG_DBGBVR5_EL1
	SysRegDBGBCR5_EL1  SysReg = C.HV_SYS_REG_DBGBCR5_EL1
	SysRegDBGWVR5_EL1  SysReg = C.HV_SYS_REG_DBGWVR5_EL1
	SysRegDBGWCR5_EL1  SysReg = C.HV_SYS_REG_DBGWCR5_EL1
	SysRegDBGBVR6_EL1  SysReg = C.HV_SYS_REG_DBGBVR6_EL1
	SysRegDBGBCR6_EL1  SysReg = C.HV_SYS_REG_DBGBCR6_EL1
	SysRegDBGWVR6_EL1  SysReg = C.HV_SYS_REG_DBGWVR6_EL1
	SysRegDBGWCR6_EL1  SysReg = C.HV_SYS_REG_DBGWCR6_EL1
	SysRegDBGBVR7_EL1  SysReg = C.HV_SYS_REG_DBGBVR7_EL1
	SysRegDBGBCR7_EL1  SysReg = C.HV_SYS_REG_DBGBCR7_EL1
	SysRegDBGWVR7_EL1  SysReg = C.HV_SYS_REG_DBGWVR7_EL1
	SysRegDBGWCR7_EL1  SysReg = C.HV_SYS_REG_DBGWCR7_EL1
	SysRegDBGBVR8_EL1  SysReg = C.HV_SYS_REG_DBGBVR8_EL1
	SysRegDBGBCR8_EL1  SysReg = C.HV_SYS_REG_DBGBCR8_EL1
	SysRegDBGWVR8_EL1  SysReg = C.HV_SYS_REG_DBGWVR8_EL1
	SysRegDBGWCR8_EL1  SysReg = C.HV_SYS_REG_DBGWCR8_EL1
	SysRegDBGBVR9_EL1  SysReg = C.HV_SYS_REG_DBGBVR9_EL1
	SysRegDBGBCR9_EL1  SysReg = C.HV_SYS_REG_DBGBCR9_EL1
	SysRegDBGWVR9_EL1  SysReg = C.HV_SYS_REG_DBGWVR9_EL1
	SysRegDBGWCR9_EL1  SysReg = C.HV_SYS_REG_DBGWCR9_EL1
	SysRegDBGBVR10_EL1 SysReg = C.HV_SYS_REG_DBGBVR10_EL1
	SysRegDBGBCR10_EL1 SysReg = C.HV_SYS_REG_DBGBCR10_EL1
	SysRegDBGWVR10_EL1 SysReg = C.HV_SYS_REG_DBGWVR10_EL1
	SysRegDBGWCR10_EL1 SysReg = C.HV_SYS_REG_DBGWCR10_EL1
	SysRegDBGBVR11_EL1 SysReg = C.HV_SYS_REG_DBGBVR11_EL1
	SysRegDBGBCR11_EL1 SysReg = C.HV_SYS_REG_DBGBCR11_EL1
	SysRegDBGWVR11_EL1 SysReg = C.HV_SYS_REG_DBGWVR11_EL1
	SysRegDBGWCR11_EL1 SysReg = C.HV_SYS_REG_DBGWCR11_EL1
	SysRegDBGBVR12_EL1 SysReg = C.HV_SYS_REG_DBGBVR12_EL1
	SysRegDBGBCR12_EL1 SysReg = C.HV_SYS_REG_DBGBCR12_EL1
	SysRegDBGWVR12_EL1 SysReg = C.HV_SYS_REG_DBGWVR12_EL1
	SysRegDBGWCR12_EL1 SysReg = C.HV_SYS_REG_DBGWCR12_EL1
	SysRegDBGBVR13_EL1 SysReg = C.HV_SYS_REG_DBGBVR13_EL1
	SysRegDBGBCR13_EL1 SysReg = C.HV_SYS_REG_DBGBCR13_EL1
	SysRegDBGWVR13_EL1 SysReg = C.HV_SYS_REG_DBGWVR13_EL1
	SysRegDBGWCR13_EL1 SysReg = C.HV_SYS_REG_DBGWCR13_EL1
	SysRegDBGBVR14_EL1 SysReg = C.HV_SYS_REG_DBGBVR14_EL1
	SysRegDBGBCR14_EL1 SysReg = C.HV_SYS_REG_DBGBCR14_EL1
	SysRegDBGWVR14_EL1 SysReg = C.HV_SYS_REG_DBGWVR14_EL1
	SysRegDBGWCR14_EL1 SysReg = C.HV_SYS_REG_DBGWCR14_EL1
	SysRegDBGBVR15_EL1 SysReg = C.HV_SYS_REG_DBGBVR15_EL1
	SysRegDBGBCR15_EL1 SysReg = C.HV_SYS_REG_DBGBCR15_EL1
	SysRegDBGWVR15_EL1 SysReg = C.HV_SYS_REG_DBGWVR15_EL1
	SysRegDBGWCR15_EL1 SysReg = C.HV_SYS_REG_DBGWCR15_EL1

	SysRegMIDR_EL1         SysReg = C.HV_SYS_REG_MIDR_EL1
	SysRegMPIDR_EL1        SysReg = C.HV_SYS_REG_MPIDR_EL1
	SysRegID_AA64PFR0_EL1  SysReg = C.HV_SYS_REG_ID_AA64PFR0_EL1
	SysRegID_AA64PFR1_EL1  SysReg = C.HV_SYS_REG_ID_AA64PFR1_EL1
	SysRegID_AA64DFR0_EL1  SysReg = C.HV_SYS_REG_ID_AA64DFR0_EL1
	SysRegID_AA64DFR1_EL1  SysReg = C.HV_SYS_REG_ID_AA64DFR1_EL1
	SysRegID_AA64ISAR0_EL1 SysReg = C.HV_SYS_REG_ID_AA64ISAR0_EL1
	SysRegID_AA64ISAR1_EL1 SysReg = C.HV_SYS_REG_ID_AA64ISAR1_EL1
	SysRegID_AA64MMFR0_EL1 SysReg = C.HV_SYS_REG_ID_AA64MMFR0_EL1
	SysRegID_AA64MMFR1_EL1 SysReg = C.HV_SYS_REG_ID_AA64MMFR1_EL1
	SysRegID_AA64MMFR2_EL1 SysReg = C.HV_SYS_REG_ID_AA64MMFR2_EL1

	SysRegSCTLR_EL1     SysReg = C.HV_SYS_REG_SCTLR_EL1
	SysRegCPACR_EL1     SysReg = C.HV_SYS_REG_CPACR_EL1
	SysRegTTBR0_EL1     SysReg = C.HV_SYS_REG_TTBR0_EL1
	SysRegTTBR1_EL1     SysReg = C.HV_SYS_REG_TTBR1_EL1
	SysRegTCR_EL1       SysReg = C.HV_SYS_REG_TCR_EL1
	SysRegAPIAKEYLO_EL1 SysReg = C.HV_SYS_REG_APIAKEYLO_EL1
	SysRegAPIAKEYHI_EL1 SysReg = C.HV_SYS_REG_APIAKEYHI_EL1
	SysRegAPIBKEYLO_EL1 SysReg = C.HV_SYS_REG_APIBKEYLO_EL1
	SysRegAPIBKEYHI_EL1 SysReg = C.HV_SYS_REG_APIBKEYHI_EL1
	SysRegAPDAKEYLO_EL1 SysReg = C.HV_SYS_REG_APDAKEYLO_EL1
	SysRegAPDAKEYHI_EL1 SysReg = C.HV_SYS_REG_APDAKEYHI_EL1
	SysRegAPDBKEYLO_EL1 SysReg = C.HV_SYS_REG_APDBKEYLO_EL1
	SysRegAPDBKEYHI_EL1 SysReg = C.HV_SYS_REG_APDBKEYHI_EL1
	SysRegAPGAKEYLO_EL1 SysReg = C.HV_SYS_REG_APGAKEYLO_EL1
	SysRegAPGAKEYHI_EL1 SysReg = C.HV_SYS_REG_APGAKEYHI_EL1

	SysRegSPSR_EL1       SysReg = C.HV_SYS_REG_SPSR_EL1
	SysRegELR_EL1        SysReg = C.HV_SYS_REG_ELR_EL1
	SysRegSP_EL0         SysReg = C.HV_SYS_REG_SP_EL0
	SysRegAFSR0_EL1      SysReg = C.HV_SYS_REG_AFSR0_EL1
	SysRegAFSR1_EL1      SysReg = C.HV_SYS_REG_AFSR1_EL1
	SysRegESR_EL1        SysReg = C.HV_SYS_REG_ESR_EL1
	SysRegFAR_EL1        SysReg = C.HV_SYS_REG_FAR_EL1
	SysRegPAR_EL1        SysReg = C.HV_SYS_REG_PAR_EL1
	SysRegMAIR_EL1       SysReg = C.HV_SYS_REG_MAIR_EL1
	SysRegAMAIR_EL1      SysReg = C.HV_SYS_REG_AMAIR_EL1
	SysRegVBAR_EL1       SysReg = C.HV_SYS_REG_VBAR_EL1
	SysRegCONTEXTIDR_EL1 SysReg = C.HV_SYS_REG_CONTEXTIDR_EL1
	SysRegTPIDR_EL1      SysReg = C.HV_SYS_REG_TPIDR_EL1
	SysRegCNTKCTL_EL1    SysReg = C.HV_SYS_REG_CNTKCTL_EL1
	SysRegCSSELR_EL1     SysReg = C.HV_SYS_REG_CSSELR_EL1
	SysRegTPIDR_EL0      SysReg = C.HV_SYS_REG_TPIDR_EL0
	SysRegTPIDRRO_EL0    SysReg = C.HV_SYS_REG_TPIDRRO_EL0
	SysRegCNTV_CTL_EL0   SysReg = C.HV_SYS_REG_CNTV_CTL_EL0
	SysRegCNTV_CVAL_EL0  SysReg = C.HV_SYS_REG_CNTV_CVAL_EL0
	SysRegSP_EL1         SysReg = C.HV_SYS_REG_SP_EL1
)

// GetSysReg returns the current value of a system register.
func (c *VCPU) GetSysReg(r SysReg) (uint64, error) {
	if c == nil {
		return 0, fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return 0, ErrVCPUClosed
	}

	var val C.uint64_t
	ret := C.hv_vcpu_get_sys_reg(C.hv_vcpu_t(c.id), C.hv_sys_reg_t(r), &val)
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return 0, fmt.Errorf("failed to get system register 0x%04x: %w", uint16(r), err)
	}

	recordSysRegOp()
	return uint64(val), nil
}

// SetSysReg sets the value of a system register.
func (c *VCPU) SetSysReg(r SysReg, v uint64) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vcpu_set_sys_reg(C.hv_vcpu_t(c.id), C.hv_sys_reg_t(r), C.uint64_t(v))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to set system register 0x%04x: %w", uint16(r), err)
	}

	recordSysRegOp()
	return nil
}
