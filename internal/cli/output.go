package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Exit codes of nodesync commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a tick, scenario, validation or replay check failed
	ExitCommandError = 2 // unusable input: paths, definitions, journal, flags
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that carry no
// ExitError are failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every --format json document.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes why a command failed. Code is a compiler code (E1xx)
// or one of the E_* command codes.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Command error codes.
const (
	CodeNondeterministic = "E_NONDETERMINISTIC"
	CodeTestFailed       = "E_TEST_FAILED"
)

const (
	markPass = "\u2713"
	markFail = "\u2717"
)

// OutputFormatter renders command results as text or as one indented
// JSON document. Text goes to Writer; verbose diagnostics go to ErrWriter
// so a JSON document on Writer stays parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// JSON reports whether results are rendered as JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

func (f *OutputFormatter) respond(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success writes data as an "ok" document. Text output is the caller's.
func (f *OutputFormatter) Success(data any) error {
	if !f.JSON() {
		return nil
	}
	return f.respond(CLIResponse{Status: "ok", Data: data})
}

// Fail writes an "error" document that still carries data, the partial
// result the failure was found in. In text mode it prints a failure line.
func (f *OutputFormatter) Fail(code, message string, data any) error {
	if f.JSON() {
		return f.respond(CLIResponse{
			Status: "error",
			Data:   data,
			Error:  &CLIError{Code: code, Message: message},
		})
	}
	f.Failed("%s", message)
	return nil
}

// Error writes a failure with no result, such as unloadable input.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.respond(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	f.Failed("%s: %s", code, message)
	if f.Verbose && details != nil {
		f.Line("  %v", details)
	}
	return nil
}

// Line prints one text line. No-op for JSON.
func (f *OutputFormatter) Line(format string, args ...any) {
	if f.JSON() {
		return
	}
	fmt.Fprintf(f.Writer, format+"\n", args...)
}

// Blank prints an empty text line.
func (f *OutputFormatter) Blank() {
	f.Line("")
}

// Passed prints a line marked as passing.
func (f *OutputFormatter) Passed(format string, args ...any) {
	f.Line(markPass+" "+format, args...)
}

// Failed prints a line marked as failing.
func (f *OutputFormatter) Failed(format string, args ...any) {
	f.Line(markFail+" "+format, args...)
}

// RunHeader prints the run a report is about.
func (f *OutputFormatter) RunHeader(runID, label string) {
	f.Line("Run: %s (%s)", runID, label)
}

// Dump prints a graph dump in verbose text mode, set off by a blank line.
func (f *OutputFormatter) Dump(dump string) {
	if f.JSON() || !f.Verbose || dump == "" {
		return
	}
	f.Blank()
	fmt.Fprint(f.Writer, dump)
	if !strings.HasSuffix(dump, "\n") {
		fmt.Fprintln(f.Writer)
	}
}

// VerboseLog writes a diagnostic line to ErrWriter in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.diagnostics(), format+"\n", args...)
}

func (f *OutputFormatter) diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
