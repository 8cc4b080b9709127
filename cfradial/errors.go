package cfradial

import (
	"errors"
	"fmt"
)

// Classification sentinels. errors.Is against these answers "what kind
// of failure"; errors.As against the typed wrappers below answers
// "where".
var (
	ErrNotFound = errors.New("file not found")
	ErrFormat   = errors.New("unrecognized file format")
	ErrSchema   = errors.New("missing cfradial element")
	ErrDecode   = errors.New("corrupt volume data")
)

// FormatError reports a file that is not a classic-NetCDF CfRadial1
// volume at the container level.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// SchemaError reports a structurally valid NetCDF file that lacks a
// required CfRadial element.
type SchemaError struct {
	Path    string
	Element string
	Reason  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Element, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// DecodeError reports file contents that contradict the file's own
// declarations, such as sweep spans outside the ray extent or moment
// payloads with the wrong shape. Sweep is -1 when no single sweep is
// involved.
type DecodeError struct {
	Path     string
	Sweep    int
	Variable string
	Reason   string
}

func (e *DecodeError) Error() string {
	s := e.Path
	if e.Sweep >= 0 {
		s += fmt.Sprintf(": sweep %d", e.Sweep)
	}
	if e.Variable != "" {
		s += ": " + e.Variable
	}
	return s + ": " + e.Reason
}

func (e *DecodeError) Unwrap() error { return ErrDecode }
