package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"fishercore/internal/core"
	"fishercore/pkg/domain"
)

// Exit codes for fisherctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // backend or unexpected failure
	ExitInvalidInput = 2
	ExitNotFound     = 3
	ExitUnauthorized = 4
	ExitConflict     = 5 // record exists or counters would overflow
)

// Error codes reported in JSON error responses.
const (
	CodeAlreadyExists   = "already_exists"
	CodeNotFound        = "not_found"
	CodeUnauthorized    = "unauthorized"
	CodeOverflow        = "overflow"
	CodeInvalidInput    = "invalid_input"
	CodeArchiveDisabled = "archive_disabled"
	CodeInternal        = "internal"
)

// errFlag marks flag and argument problems found by the CLI itself.
var errFlag = errors.New("invalid flags")

func invalidFlag(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errFlag, fmt.Sprintf(format, args...))
}

// ErrorCode classifies err for JSON responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrOverflow):
		return CodeOverflow
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, errFlag):
		return CodeInvalidInput
	case errors.Is(err, core.ErrArchiveDisabled):
		return CodeArchiveDisabled
	default:
		return CodeInternal
	}
}

// ExitCode maps err onto the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch ErrorCode(err) {
	case CodeInvalidInput, CodeArchiveDisabled:
		return ExitInvalidInput
	case CodeNotFound:
		return ExitNotFound
	case CodeUnauthorized:
		return ExitUnauthorized
	case CodeAlreadyExists, CodeOverflow:
		return ExitConflict
	default:
		return ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics, kept off Writer so JSON stays parseable
	Verbose   bool
}

// Response is the JSON envelope for every command.
type Response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error body of a failed command.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes data. Text output is produced by render.
func (f *OutputFormatter) Success(data any, render func(io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	return render(f.Writer)
}

// Error reports err: as a JSON envelope on Writer, or as text on ErrWriter.
func (f *OutputFormatter) Error(err error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: ErrorCode(err), Message: err.Error()},
		})
	}
	_, werr := fmt.Fprintf(f.errWriter(), "error: %v\n", err)
	return werr
}

// VerboseLog prints to ErrWriter when verbose output is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
