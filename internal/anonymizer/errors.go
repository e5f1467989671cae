package anonymizer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed document or a resource handed to a
	// transformer of another kind. It fails that resource only.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnresolvedReference marks a reference whose target has not been
	// anonymized yet. It is reported as a warning, never returned.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrGenerationFailure marks a value that could not be synthesized from
	// degenerate input; a placeholder was substituted. Reported as a warning.
	ErrGenerationFailure = errors.New("generation failure")
)

// WarningCode classifies a non-fatal condition on a transformed resource.
type WarningCode string

const (
	WarnUnresolvedReference WarningCode = "unresolved-reference"
	WarnGenerationFailure   WarningCode = "generation-failure"
)

// Warning is a non-fatal issue attached to a successfully transformed
// resource. Messages never contain original identifying values.
type Warning struct {
	Code    WarningCode `json:"code"`
	Path    string      `json:"path"`
	Message string      `json:"message"`
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s at %s: %s", w.Code, w.Path, w.Message)
}

// Unwrap lets errors.Is match a warning against its sentinel.
func (w Warning) Unwrap() error {
	switch w.Code {
	case WarnUnresolvedReference:
		return ErrUnresolvedReference
	case WarnGenerationFailure:
		return ErrGenerationFailure
	}
	return nil
}

func unresolved(path, format string, args ...any) Warning {
	return Warning{Code: WarnUnresolvedReference, Path: path, Message: fmt.Sprintf(format, args...)}
}

func generationFailure(path, format string, args ...any) Warning {
	return Warning{Code: WarnGenerationFailure, Path: path, Message: fmt.Sprintf(format, args...)}
}
