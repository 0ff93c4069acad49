package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Replay or recording failure
	ExitCommandError = 2 // Command error (invalid flags, unreadable files, etc.)
)

// Error codes in JSON error responses, one per non-zero exit code.
const (
	CodeFailure      = "E001"
	CodeCommandError = "E002"
)

// ExitError carries the exit code a failed command should end the process
// with.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // what the command was doing
	Err     error  // cause, may be nil
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// reportedError marks a command error that was already written out as a
// JSON error response.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already written to the command's output,
// in which case the caller should only set the exit code.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// errorResponse splits err into the code, message and details of a JSON
// error response. The cause of an ExitError becomes the details.
func errorResponse(err error) (code, message string, details interface{}) {
	code = CodeFailure
	if GetExitCode(err) == ExitCommandError {
		code = CodeCommandError
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err != nil {
		return code, exitErr.Message, exitErr.Err.Error()
	}
	return code, err.Error(), nil
}

// OutputFormatter writes command results as text or as a CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // progress and verbose lines; Writer when nil
	Verbose   bool
}

// newFormatter returns the formatter for cmd. With JSON output, progress
// and verbose lines go to stderr so stdout holds one response.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	f := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		f.ErrWriter = cmd.ErrOrStderr()
	}
	return f
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`             // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`     // success payload
	Error   *CLIError   `json:"error,omitempty"`    // error details
	TraceID string      `json:"trace_id,omitempty"` // optional trace correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // CodeFailure or CodeCommandError
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // cause
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes one line to the progress writer in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns where progress lines go.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
