package hypervisor

// MemPerm represents guest physical memory permissions.
type MemPerm uint

const (
	MemRead  MemPerm = 1 << 0
	MemWrite MemPerm = 1 << 1
	MemExec  MemPerm = 1 << 2
)

// ExitReason categorizes vCPU exits.
type ExitReason int

const (
	ExitUnknown ExitReason = iota
	// ExitException is a guest exception (arm64) or a guest fault (x86).
	ExitException
	// ExitCancelled is an asynchronous exit forced by Interrupt or
	// InterruptVCPUs.
	ExitCancelled
	// ExitVTimer fires when the arm64 virtual timer enters the pending state.
	ExitVTimer
	// ExitHLT is an x86 HLT instruction exit.
	ExitHLT
	// ExitIO is an x86 port I/O exit.
	ExitIO
	// ExitMemFault is an x86 EPT violation.
	ExitMemFault
	// ExitIRQ is an x86 external interrupt exit.
	ExitIRQ
)

func (r ExitReason) String() string {
	switch r {
	case ExitException:
		return "exception"
	case ExitCancelled:
		return "cancelled"
	case ExitVTimer:
		return "vtimer"
	case ExitHLT:
		return "hlt"
	case ExitIO:
		return "io"
	case ExitMemFault:
		return "memory-fault"
	case ExitIRQ:
		return "irq"
	default:
		return "unknown"
	}
}

// ExitInfo captures information about a recent vCPU exit.
//
// On arm64, Syndrome/VirtualAddress/PhysicalAddress mirror the framework's
// exception exit structure (ESR, FAR and the faulting IPA). On x86,
// ExitCode carries the raw VM-exit reason from the VMCS and Qualification
// the exit qualification field.
type ExitInfo struct {
	Reason          ExitReason `json:"reason"`
	Syndrome        uint64     `json:"syndrome,omitempty"`
	VirtualAddress  uint64     `json:"virtual_address,omitempty"`
	PhysicalAddress uint64     `json:"physical_address,omitempty"`
	ExitCode        uint64     `json:"exit_code,omitempty"`
	Qualification   uint64     `json:"qualification,omitempty"`
}
