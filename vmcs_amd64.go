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

import "fmt"

// VMCS field encodings, bound to the framework's <Hypervisor/hv_vmx.h>
// definitions. Pass these to ReadVMCS/WriteVMCS.
const (
	VMCSCtrlPinBased        uint32 = C.VMCS_CTRL_PIN_BASED
	VMCSCtrlCPUBased        uint32 = C.VMCS_CTRL_CPU_BASED
	VMCSCtrlCPUBased2       uint32 = C.VMCS_CTRL_CPU_BASED2
	VMCSCtrlVMEntryControls uint32 = C.VMCS_CTRL_VMENTRY_CONTROLS
	VMCSCtrlVMExitControls  uint32 = C.VMCS_CTRL_VMEXIT_CONTROLS
	VMCSCtrlExcBitmap       uint32 = C.VMCS_CTRL_EXC_BITMAP
	VMCSCtrlCR0Mask         uint32 = C.VMCS_CTRL_CR0_MASK
	VMCSCtrlCR0Shadow       uint32 = C.VMCS_CTRL_CR0_SHADOW
	VMCSCtrlCR4Mask         uint32 = C.VMCS_CTRL_CR4_MASK
	VMCSCtrlCR4Shadow       uint32 = C.VMCS_CTRL_CR4_SHADOW

	VMCSGuestCS        uint32 = C.VMCS_GUEST_CS
	VMCSGuestCSLimit   uint32 = C.VMCS_GUEST_CS_LIMIT
	VMCSGuestCSAR      uint32 = C.VMCS_GUEST_CS_AR
	VMCSGuestCSBase    uint32 = C.VMCS_GUEST_CS_BASE
	VMCSGuestDS        uint32 = C.VMCS_GUEST_DS
	VMCSGuestDSLimit   uint32 = C.VMCS_GUEST_DS_LIMIT
	VMCSGuestDSAR      uint32 = C.VMCS_GUEST_DS_AR
	VMCSGuestDSBase    uint32 = C.VMCS_GUEST_DS_BASE
	VMCSGuestES        uint32 = C.VMCS_GUEST_ES
	VMCSGuestESLimit   uint32 = C.VMCS_GUEST_ES_LIMIT
	VMCSGuestESAR      uint32 = C.VMCS_GUEST_ES_AR
	VMCSGuestESBase    uint32 = C.VMCS_GUEST_ES_BASE
	VMCSGuestFS        uint32 = C.VMCS_GUEST_FS
	VMCSGuestFSLimit   uint32 = C.VMCS_GUEST_FS_LIMIT
	VMCSGuestFSAR      uint32 = C.VMCS_GUEST_FS_AR
	VMCSGuestFSBase    uint32 = C.VMCS_GUEST_FS_BASE
	VMCSGuestGS        uint32 = C.VMCS_GUEST_GS
	VMCSGuestGSLimit   uint32 = C.VMCS_GUEST_GS_LIMIT
	VMCSGuestGSAR      uint32 = C.VMCS_GUEST_GS_AR
	VMCSGuestGSBase    uint32 = C.VMCS_GUEST_GS_BASE
	VMCSGuestSS        uint32 = C.VMCS_GUEST_SS
	VMCSGuestSSLimit   uint32 = C.VMCS_GUEST_SS_LIMIT
	VMCSGuestSSAR      uint32 = C.VMCS_GUEST_SS_AR
	VMCSGuestSSBase    uint32 = C.VMCS_GUEST_SS_BASE
	VMCSGuestLDTR      uint32 = C.VMCS_GUEST_LDTR
	VMCSGuestLDTRLimit uint32 = C.VMCS_GUEST_LDTR_LIMIT
	VMCSGuestLDTRAR    uint32 = C.VMCS_GUEST_LDTR_AR
	VMCSGuestLDTRBase  uint32 = C.VMCS_GUEST_LDTR_BASE
	VMCSGuestTR        uint32 = C.VMCS_GUEST_TR
	VMCSGuestTRLimit   uint32 = C.VMCS_GUEST_TR_LIMIT
	VMCSGuestTRAR      uint32 = C.VMCS_GUEST_TR_AR
	VMCSGuestTRBase    uint32 = C.VMCS_GUEST_TR_BASE
	VMCSGuestGDTRBase  uint32 = C.VMCS_GUEST_GDTR_BASE
	VMCSGuestGDTRLimit uint32 = C.VMCS_GUEST_GDTR_LIMIT
	VMCSGuestIDTRBase  uint32 = C.VMCS_GUEST_IDTR_BASE
	VMCSGuestIDTRLimit uint32 = C.VMCS_GUEST_IDTR_LIMIT

	VMCSGuestCR0         uint32 = C.VMCS_GUEST_CR0
	VMCSGuestCR3         uint32 = C.VMCS_GUEST_CR3
	VMCSGuestCR4         uint32 = C.VMCS_GUEST_CR4
	VMCSGuestIA32EFER    uint32 = C.VMCS_GUEST_IA32_EFER
	VMCSGuestLinkPointer uint32 = C.VMCS_GUEST_LINK_POINTER

	VMCSROExitReason     uint32 = C.VMCS_RO_EXIT_REASON
	VMCSROExitQualific   uint32 = C.VMCS_RO_EXIT_QUALIFIC
	VMCSROVMExitInstrLen uint32 = C.VMCS_RO_VMEXIT_INSTR_LEN
)

// VMXCap identifies a VMX capability of the host processor.
type VMXCap int

const (
	// VMXCapPinBased - pin-based VMX capabilities.
	VMXCapPinBased VMXCap = iota
	// VMXCapProcBased - primary proc-based VMX capabilities.
	VMXCapProcBased
	// VMXCapProcBased2 - secondary proc-based VMX capabilities.
	VMXCapProcBased2
	// VMXCapEntry - VM-entry VMX capabilities.
	VMXCapEntry
	// VMXCapExit - VM-exit VMX capabilities.
	VMXCapExit
	// VMXCapPreemptionTimer - VMX preemption timer frequency.
	VMXCapPreemptionTimer
)

func (v VMXCap) String() string {
	switch v {
	case VMXCapPinBased:
		return "Pin-based VMX capabilities"
	case VMXCapProcBased:
		return "Primary proc-based VMX capabilities"
	case VMXCapProcBased2:
		return "Secondary proc-based VMX capabilities"
	case VMXCapEntry:
		return "VM-entry VMX capabilities"
	case VMXCapExit:
		return "VM-exit VMX capabilities"
	case VMXCapPreemptionTimer:
		return "VMX preemption timer frequency"
	default:
		return fmt.Sprintf("VMXCap(%d)", int(v))
	}
}

func capToHV(v VMXCap) (C.hv_vmx_capability_t, error) {
	switch v {
	case VMXCapPinBased:
		return C.HV_VMX_CAP_PINBASED, nil
	case VMXCapProcBased:
		return C.HV_VMX_CAP_PROCBASED, nil
	case VMXCapProcBased2:
		return C.HV_VMX_CAP_PROCBASED2, nil
	case VMXCapEntry:
		return C.HV_VMX_CAP_ENTRY, nil
	case VMXCapExit:
		return C.HV_VMX_CAP_EXIT, nil
	case VMXCapPreemptionTimer:
		return C.HV_VMX_CAP_PREEMPTION_TIMER, nil
	default:
		return 0, fmt.Errorf("hv: invalid VMX capability %d", v)
	}
}

// ReadVMXCap reads a VMX capability of the host processor.
func ReadVMXCap(cap VMXCap) (uint64, error) {
	hvCap, err := capToHV(cap)
	if err != nil {
		return 0, err
	}

	var val C.uint64_t
	ret := C.hv_vmx_read_capability(hvCap, &val)
	if err := hvErr(ret); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", cap, err)
	}
	return uint64(val), nil
}

// Cap2Ctrl constrains a desired VMX control word by the capability word
// reported by the processor: allowed-1 settings in the high half, allowed-0
// settings in the low half.
func Cap2Ctrl(cap, ctrl uint64) uint64 {
	return (ctrl | (cap & 0xffffffff)) & (cap >> 32)
}

// ReadVMCS returns the current value of a VMCS field of the vCPU.
func (c *VCPU) ReadVMCS(field uint32) (uint64, error) {
	if c == nil {
		return 0, fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return 0, ErrVCPUClosed
	}

	var val C.uint64_t
	ret := C.hv_vmx_vcpu_read_vmcs(C.hv_vcpuid_t(c.id), C.uint32_t(field), &val)
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return 0, fmt.Errorf("failed to read VMCS field 0x%x: %w", field, err)
	}
	recordVMCSOp()
	return uint64(val), nil
}

// WriteVMCS sets the value of a VMCS field of the vCPU.
func (c *VCPU) WriteVMCS(field uint32, v uint64) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}

	ret := C.hv_vmx_vcpu_write_vmcs(C.hv_vcpuid_t(c.id), C.uint32_t(field), C.uint64_t(v))
	if err := hvErr(ret); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to write VMCS field 0x%x: %w", field, err)
	}
	recordVMCSOp()
	return nil
}

// SetAPICAddr sets the guest physical address of the vCPU's APIC page.
func (c *VCPU) SetAPICAddr(gpa uint64) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return ErrVCPUClosed
	}
	if !isPageAligned(gpa) {
		return fmt.Errorf("hv: APIC address not page-aligned: 0x%x", gpa)
	}

	ret := C.hv_vmx_vcpu_set_apic_address(C.hv_vcpuid_t(c.id), C.hv_gpaddr_t(gpa))
	if err := hvErr(ret); err != nil {
		return fmt.Errorf("failed to set APIC address 0x%x: %w", gpa, err)
	}
	return nil
}
