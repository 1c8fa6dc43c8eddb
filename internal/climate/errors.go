package climate

import (
	"errors"
	"fmt"
)

// Error kinds. Every command failure wraps exactly one of these.
//
//	if errors.Is(err, climate.ErrModeNotSupported) {
//	    // 422
//	}
var (
	// ErrDeviceNotFound is returned for unknown devices or devices missing
	// either a state record or a code library entry.
	ErrDeviceNotFound = errors.New("climate: device not found")

	// ErrInvalidCommand is returned for malformed command payloads.
	ErrInvalidCommand = errors.New("climate: invalid command")

	// ErrModeNotSupported is returned when a device does not list the requested mode.
	ErrModeNotSupported = errors.New("climate: mode not supported")

	// ErrNoMatchingCode is returned when no recorded code satisfies any fallback tier.
	ErrNoMatchingCode = errors.New("climate: no matching code")
)

// Error carries a human-readable message for one of the error kinds.
// Error() returns only the message; errors.Is matches the kind.
type Error struct {
	Kind error
	Msg  string
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Message returns the text to show on a device's error channel.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return err.Error()
}

// KindName returns a stable snake_case label for err's kind, used in
// metrics and API error codes. Unknown errors map to "error".
func KindName(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(err, ErrModeNotSupported):
		return "mode_not_supported"
	case errors.Is(err, ErrNoMatchingCode):
		return "no_matching_code"
	default:
		return "error"
	}
}
