package hypervisor

import (
	"sync/atomic"
	"time"
)

// Operation counters for monitoring hypervisor usage
var (
	vmCreateCount     uint64
	vmDestroyCount    uint64
	vcpuCreateCount   uint64
	vcpuDestroyCount  uint64
	mapOperations     uint64
	unmapOperations   uint64
	protectOperations uint64
	registerOps       uint64
	sysRegOps         uint64
	msrOps            uint64
	vmcsOps           uint64
	interruptOps      uint64
	runOperations     uint64

	// Timing metrics (nanoseconds)
	totalVMCreateTime uint64
	totalRunTime      uint64

	// Error counters
	resourceErrors uint64
)

// Metrics provides access to operation counters and timings.
type Metrics struct {
	VMCreated         uint64 `json:"vm_created"`
	VMDestroyed       uint64 `json:"vm_destroyed"`
	VCPUCreated       uint64 `json:"vcpu_created"`
	VCPUDestroyed     uint64 `json:"vcpu_destroyed"`
	MapOperations     uint64 `json:"map_operations"`
	UnmapOperations   uint64 `json:"unmap_operations"`
	ProtectOperations uint64 `json:"protect_operations"`
	RegisterOps       uint64 `json:"register_operations"`
	SysRegOps         uint64 `json:"sysreg_operations"`
	MSROps            uint64 `json:"msr_operations"`
	VMCSOps           uint64 `json:"vmcs_operations"`
	InterruptOps      uint64 `json:"interrupt_operations"`
	RunOperations     uint64 `json:"run_operations"`
	AvgVMCreateTimeNs uint64 `json:"avg_vm_create_time_ns"`
	AvgRunTimeNs      uint64 `json:"avg_run_time_ns"`
	ResourceErrors    uint64 `json:"resource_errors"`
}

// GetMetrics returns current operation metrics.
func GetMetrics() Metrics {
	vmCreated := atomic.LoadUint64(&vmCreateCount)
	runOps := atomic.LoadUint64(&runOperations)

	var avgVMCreate, avgRun uint64
	if vmCreated > 0 {
		avgVMCreate = atomic.LoadUint64(&totalVMCreateTime) / vmCreated
	}
	if runOps > 0 {
		avgRun = atomic.LoadUint64(&totalRunTime) / runOps
	}

	return Metrics{
		VMCreated:         vmCreated,
		VMDestroyed:       atomic.LoadUint64(&vmDestroyCount),
		VCPUCreated:       atomic.LoadUint64(&vcpuCreateCount),
		VCPUDestroyed:     atomic.LoadUint64(&vcpuDestroyCount),
		MapOperations:     atomic.LoadUint64(&mapOperations),
		UnmapOperations:   atomic.LoadUint64(&unmapOperations),
		ProtectOperations: atomic.LoadUint64(&protectOperations),
		RegisterOps:       atomic.LoadUint64(&registerOps),
		SysRegOps:         atomic.LoadUint64(&sysRegOps),
		MSROps:            atomic.LoadUint64(&msrOps),
		VMCSOps:           atomic.LoadUint64(&vmcsOps),
		InterruptOps:      atomic.LoadUint64(&interruptOps),
		RunOperations:     runOps,
		AvgVMCreateTimeNs: avgVMCreate,
		AvgRunTimeNs:      avgRun,
		ResourceErrors:    atomic.LoadUint64(&resourceErrors),
	}
}

// ResetMetrics clears all operation metrics.
func ResetMetrics() {
	atomic.StoreUint64(&vmCreateCount, 0)
	atomic.StoreUint64(&vmDestroyCount, 0)
	atomic.StoreUint64(&vcpuCreateCount, 0)
	atomic.StoreUint64(&vcpuDestroyCount, 0)
	atomic.StoreUint64(&mapOperations, 0)
	atomic.StoreUint64(&unmapOperations, 0)
	atomic.StoreUint64(&protectOperations, 0)
	atomic.StoreUint64(&registerOps, 0)
	atomic.StoreUint64(&sysRegOps, 0)
	atomic.StoreUint64(&msrOps, 0)
	atomic.StoreUint64(&vmcsOps, 0)
	atomic.StoreUint64(&interruptOps, 0)
	atomic.StoreUint64(&runOperations, 0)
	atomic.StoreUint64(&totalVMCreateTime, 0)
	atomic.StoreUint64(&totalRunTime, 0)
	atomic.StoreUint64(&resourceErrors, 0)
}

// Internal metric recording functions
func recordVMCreate(duration time.Duration) {
	atomic.AddUint64(&vmCreateCount, 1)
	atomic.AddUint64(&totalVMCreateTime, uint64(duration.Nanoseconds()))
}

func recordVMDestroy() {
	atomic.AddUint64(&vmDestroyCount, 1)
}

func recordVCPUCreate() {
	atomic.AddUint64(&vcpuCreateCount, 1)
}

func recordVCPUDestroy() {
	atomic.AddUint64(&vcpuDestroyCount, 1)
}

func recordMapOperation() {
	atomic.AddUint64(&mapOperations, 1)
}

func recordUnmapOperation() {
	atomic.AddUint64(&unmapOperations, 1)
}

func recordProtectOperation() {
	atomic.AddUint64(&protectOperations, 1)
}

func recordRegisterOp() {
	atomic.AddUint64(&registerOps, 1)
}

func recordSysRegOp() {
	atomic.AddUint64(&sysRegOps, 1)
}

func recordMSROp() {
	atomic.AddUint64(&msrOps, 1)
}

func recordVMCSOp() {
	atomic.AddUint64(&vmcsOps, 1)
}

func recordInterruptOp() {
	atomic.AddUint64(&interruptOps, 1)
}

func recordRun(duration time.Duration) {
	atomic.AddUint64(&runOperations, 1)
	atomic.AddUint64(&totalRunTime, uint64(duration.Nanoseconds()))
}

func recordResourceError() {
	atomic.AddUint64(&resourceErrors, 1)
}
