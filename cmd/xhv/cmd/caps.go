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
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(capsCmd)
}

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Print the host's VMX capability MSR values",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := hypervisor.Supported()
		if err != nil || !ok {
			return fmt.Errorf("hypervisor not supported: %v", err)
		}

		// The capability MSRs are only readable while a VM exists
		vm, err := hypervisor.NewVM()
		if err != nil {
			return fmt.Errorf("failed to create VM: %w", err)
		}
		defer vm.Close()

		caps := []hypervisor.VMXCap{
			hypervisor.VMXCapPinBased,
			hypervisor.VMXCapProcBased,
			hypervisor.VMXCapProcBased2,
			hypervisor.VMXCapEntry,
			hypervisor.VMXCapExit,
			hypervisor.VMXCapPreemptionTimer,
		}

		for _, c := range caps {
			v, err := hypervisor.ReadVMXCap(c)
			if err != nil {
				fmt.Printf("%-42s error: %v\n", c.String()+":", err)
				continue
			}
			fmt.Printf("%-42s 0x%016x\n", c.String()+":", v)
		}

		return nil
	},
}
