// Package protocol defines the response envelope and the line-oriented
// record format carried inside it.
//
// The envelope is what every endpoint returns, success or not; the records
// are the pipe-delimited lines peers exchange inside Output.
package protocol

import (
	"fmt"
	"strings"
)

// WorkResult is the single result shape produced for every unit of work,
// including failures, timeouts, and captured panics.
type WorkResult struct {
	Success       bool     `json:"success"`
	Output        string   `json:"output"`
	Error         string   `json:"error,omitempty"`
	Diagnostics   []string `json:"diagnostics,omitempty"`
	ProcessingLog []string `json:"processing_log,omitempty"`
}

func OK(output string) WorkResult {
	return WorkResult{Success: true, Output: output}
}

func Failure(msg string) WorkResult {
	return WorkResult{Success: false, Error: msg}
}

func Failuref(format string, args ...any) WorkResult {
	return Failure(fmt.Sprintf(format, args...))
}

// CompileFailure carries compiler diagnostics without any execution output.
func CompileFailure(diags []string) WorkResult {
	return WorkResult{
		Success:     false,
		Error:       "compilation failed",
		Diagnostics: diags,
	}
}

func Timeout(after string) WorkResult {
	return Failuref("execution timed out after %s", after)
}

// Log appends one processing-log line and returns the updated result.
func (r WorkResult) Log(line string) WorkResult {
	r.ProcessingLog = append(r.ProcessingLog, strings.TrimSpace(line))
	return r
}
