package synth

import (
	"errors"
	"fmt"
)

// Stage is a step of a synthesis request.
type Stage string

const (
	StageValidating         Stage = "validating"
	StageResolvingReference Stage = "resolving_reference"
	StageSynthesizing       Stage = "synthesizing"
	StageStreaming          Stage = "streaming"
	StageDone               Stage = "done"
)

// StageError records the stage a request failed in. It unwraps to the cause,
// so callers classify it with errors.Is / errors.As as usual.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage err was raised in, if it carries one.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
