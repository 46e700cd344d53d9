package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Bad input: invalid JSON, report without payload, unrenderable template
	ExitCommandError = 2 // Unusable environment: missing files, bad config, archive errors
)

// ExitError carries the exit code of a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // what the command was doing
	Err     error  // cause, optional
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

// errorCode maps an exit code to its response code: 1 is "E001", 2 is "E002".
func errorCode(exit int) string {
	return fmt.Sprintf("E%03d", exit)
}

// OutputFormatter writes command results as text or as CLIResponse JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics and text-mode failures; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every --format json result.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // failure details
}

// CLIError describes a failed command.
type CLIError struct {
	Code    string `json:"code"`              // errorCode of the exit code
	Message string `json:"message"`           // what the command was doing
	Details any    `json:"details,omitempty"` // cause, when there is one
}

// Success writes data as the command result. Text mode prints data with
// its String method when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure. JSON goes to Writer so scripts read one
// envelope from stdout; text goes to the diagnostic writer.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	w := f.GetErrWriter()
	if _, err := fmt.Fprintf(w, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(w, "Details: %v\n", details)
		return err
	}
	return nil
}

// Failure renders err returned by a command and returns its exit code.
// JSON splits an ExitError into message and cause; text prints the whole
// chain so nothing is lost without --verbose.
func (f *OutputFormatter) Failure(err error) int {
	code := GetExitCode(err)
	message, details := err.Error(), any(nil)

	var exitErr *ExitError
	if f.Format == "json" && errors.As(err, &exitErr) {
		message = exitErr.Message
		if exitErr.Err != nil {
			details = exitErr.Err.Error()
		}
	}
	_ = f.Error(errorCode(code), message, details)
	return code
}

// VerboseLog writes a diagnostic line when verbose, never to the JSON
// result stream unless no ErrWriter is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when none is set.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
