package service

import (
	"context"
)

// Policy says what a step failure does to the rest of the sequence.
type Policy int

const (
	// Ignore records the failure and continues with the next step.
	Ignore Policy = iota
	// Abort stops the sequence and fails it.
	Abort
)

// Step is one backend write in a commit sequence.
type Step struct {
	Name      string
	OnFailure Policy
	Run       func(ctx context.Context) error
}

// StepFailure is a failed Ignore step.
type StepFailure struct {
	Step string
	Err  error
}

// RunSteps runs steps strictly in order. Failures of Ignore steps are
// collected and returned; the first Abort failure stops the run and is
// returned as err.
func RunSteps(ctx context.Context, steps []Step) ([]StepFailure, error) {
	var failures []StepFailure
	for _, step := range steps {
		err := step.Run(ctx)
		if err == nil {
			continue
		}
		if step.OnFailure == Abort {
			return failures, err
		}
		failures = append(failures, StepFailure{Step: step.Name, Err: err})
	}
	return failures, nil
}
