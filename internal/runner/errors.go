package runner

import (
	"errors"
	"fmt"
)

// ErrEnvironmentSetup matches every *SetupError.
var ErrEnvironmentSetup = errors.New("environment setup failed")

// Stage is the step of environment setup that failed.
type Stage string

const (
	StageCheckout    Stage = "checkout"
	StageInstall     Stage = "install"
	StageEnvironment Stage = "environment"
)

// SetupError reports a failed checkout, install or environment lookup,
// with everything the command printed.
type SetupError struct {
	Stage    Stage
	Revision string
	Output   string
	Err      error
}

func (e *SetupError) Error() string {
	msg := fmt.Sprintf("%s of %s failed: %v", e.Stage, e.Revision, e.Err)
	if e.Output != "" {
		msg += "\n\n" + e.Output
	}
	return msg
}

func (e *SetupError) Is(target error) bool {
	return target == ErrEnvironmentSetup
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
