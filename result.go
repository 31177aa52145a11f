package epos

import "fmt"

// Status is the outcome of a transaction or of a whole motor operation.
type Status uint8

const (
	StatusIdle Status = iota
	StatusProcessing
	StatusSuccess
	StatusFailed
	StatusTimedOut
)

var statusDescription = map[Status]string{
	StatusIdle:       "IDLE",
	StatusProcessing: "PROCESSING",
	StatusSuccess:    "SUCCESS",
	StatusFailed:     "FAILED",
	StatusTimedOut:   "TIMED-OUT",
}

func (s Status) String() string {
	description, ok := statusDescription[s]
	if ok {
		return description
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// Terminal reports whether no further progress can be made.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusTimedOut
}

// Result is what a caller gets back from Enable, Disable or SetSpeed.
// Step is the step the operation was in when it ended, Value carries the
// last data word exchanged (status word for reads, setpoint for writes).
type Result struct {
	Status  Status
	Step    int
	Message string
	Value   int32
	Err     error
}

// Error returns nil unless the operation failed or timed out.
func (r Result) Error() error {
	if r.Status != StatusFailed && r.Status != StatusTimedOut {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	if r.Status == StatusTimedOut {
		return ErrTimeout
	}
	return ErrCommunication
}

func (r Result) String() string {
	if r.Message == "" {
		return fmt.Sprintf("%v (step %d)", r.Status, r.Step)
	}
	return fmt.Sprintf("%v (step %d) : %s", r.Status, r.Step, r.Message)
}
