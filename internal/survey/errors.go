package survey

import "fmt"

// ValidationError is recovered locally and shown inline next to the input;
// it never interrupts the flow.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// LoadError means the questionnaire could not be fetched (missing, empty, or
// timed out). It is surfaced as a blocking dialog; the user must reload.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("survey load failed: %v", e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// SubmissionError means the final submit failed. The collected answers are
// preserved and Finalize may be replayed.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("survey submission failed: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// StateError means an operation was called in a state that does not allow
// it, e.g. answering before the questionnaire loaded.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}
