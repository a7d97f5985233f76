package sandbox

import (
	"fmt"
	"time"
)

// Status is the three-way classification of an execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Outcome is produced exactly once per execution.
type Outcome struct {
	ExecutionID     string
	Language        string
	Isolation       string
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	ExitCode        int
	Elapsed         time.Duration
	Status          Status
	// Limit is the wall-clock limit the execution ran under.
	Limit time.Duration
}

// Response is the wire payload returned for every classified execution.
type Response struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	// Time is the elapsed wall-clock time in milliseconds.
	Time   int64  `json:"time"`
	Status Status `json:"status"`
}

// TimeoutMessage is the stderr reported for a timed-out execution.
func TimeoutMessage(limit time.Duration) string {
	return fmt.Sprintf("Execution timeout (%s limit)", limit)
}

// classifyStatus maps the raw process result to a Status.
func classifyStatus(res processResult) Status {
	switch {
	case res.TimedOut:
		return StatusTimeout
	case res.ExitCode == 0:
		return StatusSuccess
	default:
		return StatusError
	}
}

// Classify converts an outcome into its response payload.
func Classify(o Outcome) Response {
	stderr := string(o.Stderr)
	if o.Status == StatusTimeout {
		stderr = TimeoutMessage(o.Limit)
	}
	return Response{
		Stdout: string(o.Stdout),
		Stderr: stderr,
		Time:   o.Elapsed.Milliseconds(),
		Status: o.Status,
	}
}
