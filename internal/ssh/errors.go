package ssh

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across operations.
var (
	// ErrSessionNotFound is returned for operations against a session id
	// that was never issued or is already closed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrChainTraceExhausted is returned when no candidate root contained
	// the trace identifier. It is an expected outcome, not a fault; the
	// accompanying TraceResult still carries the full trace log.
	ErrChainTraceExhausted = errors.New("trace identifier not found on any candidate host")
)

// ConnectErrorKind classifies connection failures so callers can render a
// specific diagnostic.
type ConnectErrorKind int

const (
	AuthenticationFailed ConnectErrorKind = iota
	Unreachable
	ConnectTimeout
)

func (k ConnectErrorKind) String() string {
	switch k {
	case AuthenticationFailed:
		return "authentication failed"
	case Unreachable:
		return "host unreachable"
	case ConnectTimeout:
		return "connection timed out"
	}
	return "connection failed"
}

// ConnectError is a classified connection failure.
type ConnectError struct {
	Kind ConnectErrorKind
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Host, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Host, e.Kind)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ExecErrorKind classifies one-shot command failures.
type ExecErrorKind int

const (
	NonZeroExit ExecErrorKind = iota
	OutputTruncated
	CommandTimeout
)

func (k ExecErrorKind) String() string {
	switch k {
	case NonZeroExit:
		return "command exited with non-zero status"
	case OutputTruncated:
		return "command output truncated"
	case CommandTimeout:
		return "command timed out"
	}
	return "command failed"
}

// ExecError is a classified command execution failure. The partial result,
// including any captured output, remains available to the caller.
type ExecError struct {
	Kind     ExecErrorKind
	Host     string
	Command  string
	ExitCode int
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Host, e.Kind)
	if e.Kind == NonZeroExit {
		msg = fmt.Sprintf("%s (%d)", msg, e.ExitCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// FileReadErrorKind classifies remote file read failures.
type FileReadErrorKind int

const (
	FileTooLarge FileReadErrorKind = iota
	FileUnreadable
)

func (k FileReadErrorKind) String() string {
	switch k {
	case FileTooLarge:
		return "file too large"
	case FileUnreadable:
		return "file not readable"
	}
	return "file read failed"
}

// FileReadError reports why a remote file could not be delivered.
type FileReadError struct {
	Kind FileReadErrorKind
	Host string
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Host, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Host, e.Path, e.Kind)
}

func (e *FileReadError) Unwrap() error { return e.Err }
