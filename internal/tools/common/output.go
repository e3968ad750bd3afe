package common

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// CIResult is the machine-readable outcome of one authctl command.
type CIResult struct {
	OK         bool     `json:"ok"`
	Tool       string   `json:"tool"`
	Action     string   `json:"action"`
	Title      string   `json:"title"`
	DurationMS int64    `json:"duration_ms"`
	Details    []string `json:"details,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ciOutput is swapped by tests.
var ciOutput io.Writer = os.Stdout

func newCIResult(tool, action, title string, elapsed time.Duration, details []string, err error) CIResult {
	result := CIResult{
		OK:         err == nil,
		Tool:       tool,
		Action:     action,
		Title:      title,
		DurationMS: elapsed.Milliseconds(),
		Details:    details,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func WriteCIResult(w io.Writer, result CIResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
