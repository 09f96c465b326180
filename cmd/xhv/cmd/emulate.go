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
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/blacktop/go-macho"
	hypervisor "github.com/blacktop/go-xhypervisor"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().Uint64P("addr", "a", 0, "Address to emulate (0 = use entry point)")
	emulateCmd.Flags().IntP("mem-size", "m", 0x10000, "Memory size to allocate (bytes)")
	emulateCmd.Flags().Uint64P("stack", "s", 0x8000, "Stack pointer address (within allocated memory)")
}

var emulateCmd = &cobra.Command{
	Use:     "emulate [FILE]",
	Aliases: []string{"emu"},
	Short:   "Emulate a function from a Mach-O binary and show stack contents",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Check hypervisor support
		ok, err := hypervisor.Supported()
		if err != nil || !ok {
			return fmt.Errorf("hypervisor not supported: %v", err)
		}

		// Get flags
		addr, err := cmd.Flags().GetUint64("addr")
		if err != nil {
			return err
		}

		emuMemSize, err := cmd.Flags().GetInt("mem-size")
		if err != nil {
			return err
		}

		// Validate memory size is page-aligned
		page := unix.Getpagesize()
		if emuMemSize%page != 0 {
			return fmt.Errorf("mem-size must be a multiple of page size (%d bytes)", page)
		}

		stackPtr, err := cmd.Flags().GetUint64("stack")
		if err != nil {
			return err
		}

		// Validate stack pointer is within memory range
		emuBase := uint64(0x4000)
		if stackPtr < emuBase || stackPtr >= emuBase+uint64(emuMemSize) {
			return fmt.Errorf("stack pointer 0x%x must be within memory range 0x%x-0x%x",
				stackPtr, emuBase, emuBase+uint64(emuMemSize))
		}

		// Open Mach-O file
		m, err := macho.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open Mach-O file: %w", err)
		}
		defer m.Close()

		// Determine address to emulate
		if addr == 0 {
			if main := m.GetLoadsByName("LC_MAIN"); len(main) == 0 {
				return fmt.Errorf("failed to find LC_MAIN in target - use --addr to specify function address")
			} else {
				addr = main[0].(*macho.EntryPoint).EntryOffset + m.GetBaseAddress()
			}
		}

		fmt.Printf("Emulating function at address: 0x%x\n", addr)

		// Get function boundaries
		fn, err := m.GetFunctionForVMAddr(addr)
		if err != nil {
			return fmt.Errorf("failed to find function at address 0x%x: %w", addr, err)
		}

		fmt.Printf("Function: %s (0x%x - 0x%x, %d bytes)\n",
			fn.Name, fn.StartAddr, fn.EndAddr, fn.EndAddr-fn.StartAddr)

		// Extract function bytes
		instrs := make([]byte, fn.EndAddr-fn.StartAddr)
		if _, err := m.ReadAtAddr(instrs, fn.StartAddr); err != nil {
			return fmt.Errorf("failed to read function bytes: %w", err)
		}

		// Add brk instruction at the end to ensure proper exit
		instrs = append(instrs, 0x00, 0x00, 0x20, 0xd4) // brk #0

		// executeCode reads the package-level execute flags
		memSize = emuMemSize
		baseAddr = emuBase

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		// Execute the function
		result, err := executeCode(instrs, &CPUState{SP: stackPtr})
		if err != nil {
			return fmt.Errorf("emulation failed: %w", err)
		}

		// Print results
		fmt.Printf("\n=== Execution Results ===\n")
		fmt.Printf("Exit Reason: %v\n", result.ExitInfo.Reason)
		fmt.Printf("Final SP: 0x%x (moved %d bytes)\n",
			result.State.SP, int64(result.State.SP)-int64(stackPtr))

		fmt.Printf("\nRegisters:\n")
		fmt.Printf("  X0=0x%x  X1=0x%x  X2=0x%x  X3=0x%x\n",
			result.State.X0, result.State.X1, result.State.X2, result.State.X3)
		fmt.Printf("  PC=0x%x  SP=0x%x  FP=0x%x  LR=0x%x\n",
			result.State.PC, result.State.SP, result.State.FP, result.State.LR)

		// Print stack contents
		printStackContents(result.Memory, emuBase, stackPtr, result.State.SP)

		return nil
	},
}

// printStackContents dumps the guest stack between the final and initial
// stack pointers as 64-bit words.
func printStackContents(memory map[string][]byte, base, initialSP, finalSP uint64) {
	mem, ok := memory[fmt.Sprintf("0x%x", base)]
	if !ok {
		fmt.Println("\nStack contents unavailable")
		return
	}

	lo, hi := finalSP, initialSP
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < base {
		lo = base
	}
	if hi > base+uint64(len(mem)) {
		hi = base + uint64(len(mem))
	}
	if lo >= hi {
		fmt.Println("\nStack unchanged")
		return
	}

	fmt.Printf("\nStack contents (0x%x - 0x%x):\n", lo, hi)
	for addr := hi; addr > lo; addr -= 8 {
		off := addr - 8 - base
		if off+8 > uint64(len(mem)) {
			continue
		}
		val := binary.LittleEndian.Uint64(mem[off : off+8])
		fmt.Printf("  0x%x: 0x%016x\n", addr-8, val)
	}
}
