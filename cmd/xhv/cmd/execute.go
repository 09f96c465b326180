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

//go:build darwin

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	hypervisor "github.com/blacktop/go-xhypervisor"
	"github.com/spf13/cobra"
)

// ExecuteResult represents the execution result
type ExecuteResult struct {
	State    CPUState            `json:"state"`
	ExitInfo hypervisor.ExitInfo `json:"exit_info"`
	Memory   map[string][]byte   `json:"memory,omitempty"` // hex address -> data
	Error    string              `json:"error,omitempty"`
}

var (
	stateFile string
	memSize   int
	baseAddr  uint64
)

func init() {
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().StringVarP(&stateFile, "state", "s", "", "JSON file with initial CPU state")
	executeCmd.Flags().IntVar(&memSize, "mem-size", 16384, "Memory size to allocate (bytes)")
	executeCmd.Flags().Uint64VarP(&baseAddr, "base-addr", "a", defaultBaseAddr, "Base address for code execution")
}

var executeCmd = &cobra.Command{
	Use:   "execute [code-file]",
	Short: "Execute machine code and return CPU state as JSON",
	Long: `Execute raw machine code for the host architecture and return the
resulting CPU state as JSON.

Code can be provided as:
  - A binary file argument
  - Stdin (if no file argument provided)

Initial CPU state can be provided via --state flag pointing to a JSON file.
Results are output as JSON to stdout.`,
	RunE: runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
	// Check hypervisor support
	ok, err := hypervisor.Supported()
	if err != nil || !ok {
		return fmt.Errorf("hypervisor not supported: %v", err)
	}

	// Read initial state if provided
	var initialState CPUState
	if stateFile != "" {
		stateData, err := os.ReadFile(stateFile)
		if err != nil {
			return fmt.Errorf("failed to read state file: %w", err)
		}
		if err := json.Unmarshal(stateData, &initialState); err != nil {
			return fmt.Errorf("failed to parse state JSON: %w", err)
		}
	}

	// Read code input
	var codeData []byte
	if len(args) > 0 {
		// Read from file
		codeData, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read code file: %w", err)
		}
	} else {
		// Read from stdin
		codeData, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	}

	if len(codeData) == 0 {
		return fmt.Errorf("no code provided")
	}

	// A vCPU must be driven from the thread that created it
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Execute the code
	result, err := executeCode(codeData, &initialState)
	if err != nil {
		result = &ExecuteResult{Error: err.Error()}
	}

	// Output JSON result
	output, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	fmt.Println(string(output))
	return nil
}
