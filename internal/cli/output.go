package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected by the ledger
	ExitCommandError = 2 // bad invocation, config or connectivity
)

type ExitError struct {
	Code    int
	Message string
	Err     error

	Reported bool // already written by an OutputFormatter
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

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitFailure
}

// Reported reports whether err was already printed to the user.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes data as JSON, or its String form in text mode.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}

	_, err := fmt.Fprintln(f.Writer, data)

	return err
}

func (f *OutputFormatter) Error(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		})
	}

	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)

	return err
}

// Fail reports a ledger error and converts it into an exit error. Rejections
// exit with ExitFailure, anything unexpected with ExitCommandError.
func (f *OutputFormatter) Fail(err error) error {
	kind := treasury.KindOf(err)

	code := ExitFailure
	if kind == treasury.KindInternal {
		code = ExitCommandError
	}

	_ = f.Error(string(kind), err.Error())

	exitErr := WrapExitError(code, "command failed", err)
	exitErr.Reported = true

	return exitErr
}

func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}

	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}

	fmt.Fprintf(w, format+"\n", args...)
}
