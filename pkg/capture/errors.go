package capture

import "errors"

// ErrKind classifies capture failures so callers can branch on the cause.
type ErrKind int

const (
	// KindPermissionDenied means the OS or sandbox refused microphone access.
	KindPermissionDenied ErrKind = iota

	// KindDeviceNotFound means no usable input device exists.
	KindDeviceNotFound

	// KindDeviceBusy means another process holds the device exclusively.
	KindDeviceBusy

	// KindUnsupported means the platform has no capture backend at all.
	KindUnsupported
)

// String returns the human-readable name of the kind.
func (k ErrKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission denied"
	case KindDeviceNotFound:
		return "device not found"
	case KindDeviceBusy:
		return "device busy"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is a typed capture failure carrying a remediation hint suitable for
// direct display to the candidate.
type Error struct {
	Kind ErrKind

	// Hint tells the user how to fix the problem ("allow microphone access in
	// your system settings", "close other apps using the microphone", …).
	Hint string

	// Err is the underlying platform error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return "capture: " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "capture: " + e.Kind.String()
}

// Unwrap returns the underlying platform error.
func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors for errors.Is matching. NewError attaches the matching
// sentinel so both errors.Is and errors.As work on the same value.
var (
	ErrPermissionDenied = errors.New("capture: permission denied")
	ErrDeviceNotFound   = errors.New("capture: device not found")
	ErrDeviceBusy       = errors.New("capture: device busy")
	ErrUnsupported      = errors.New("capture: unsupported platform")
)

// sentinelFor maps a kind to its package sentinel.
func sentinelFor(k ErrKind) error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindDeviceNotFound:
		return ErrDeviceNotFound
	case KindDeviceBusy:
		return ErrDeviceBusy
	default:
		return ErrUnsupported
	}
}

// Is reports whether target is the sentinel matching this error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// defaultHints holds the remediation hint used when the backend does not
// supply a more specific one.
var defaultHints = map[ErrKind]string{
	KindPermissionDenied: "Microphone access was blocked. Allow microphone access for this application in your system settings and try again.",
	KindDeviceNotFound:   "No microphone was found. Connect a microphone or select a different input device.",
	KindDeviceBusy:       "The microphone is in use by another application. Close it and try again.",
	KindUnsupported:      "Audio capture is not supported on this system.",
}

// NewError builds a typed capture error with the default hint for kind.
func NewError(kind ErrKind, err error) *Error {
	return &Error{Kind: kind, Hint: defaultHints[kind], Err: err}
}
