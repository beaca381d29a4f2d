package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a cache entry is not found
type NotFoundError struct {
	Resource string   // "endpoint", "service", "characteristic", "descriptor"
	IDs      []string // One or more ids, outermost first
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.IDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.IDs[0])
	}
	return fmt.Sprintf("%s %q not found in %q", e.Resource, e.IDs[len(e.IDs)-1], strings.Join(e.IDs[:len(e.IDs)-1], "/"))
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	Connecting       ConnectionState = "connecting"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrConnecting       = &ConnectionError{State: Connecting}
)

// ErrUnsupported is matched by every CapabilityError.
var ErrUnsupported = errors.New("unsupported")

// CapabilityError is returned synchronously when a characteristic or descriptor
// operation is not allowed by the attribute's properties.
type CapabilityError struct {
	Operation string // "read", "write", "notify", ...
	UUID      string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s not supported by %s", e.Operation, e.UUID)
}

func (e *CapabilityError) Unwrap() error {
	return ErrUnsupported
}

// ErrorKind is the top-level classification of an asynchronous failure.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindTimeout
	KindUnexpectedDisconnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnexpectedDisconnection:
		return "unexpected disconnection"
	default:
		return "internal error"
	}
}

// Level names the tree level that attached an id to an Error.
type Level int

const (
	LevelEndpoint Level = iota
	LevelPeripheral
	LevelService
	LevelCharacteristic
	LevelDescriptor
)

func (l Level) String() string {
	switch l {
	case LevelPeripheral:
		return "peripheral"
	case LevelService:
		return "service"
	case LevelCharacteristic:
		return "characteristic"
	case LevelDescriptor:
		return "descriptor"
	default:
		return "endpoint"
	}
}

// Error is the layered error delivered to Delegate.OnError. Every level an error
// crosses on its way up wraps it once with its own id, so the outermost layer
// names the peripheral and the innermost layer holds the transport error.
type Error struct {
	Kind  ErrorKind
	Level Level
	ID    string
	Err   error
}

// Sentinels for errors.Is; they match any Error of the same kind.
var (
	ErrTimeout                 = &Error{Kind: KindTimeout}
	ErrUnexpectedDisconnection = &Error{Kind: KindUnexpectedDisconnection}
	ErrInternal                = &Error{Kind: KindInternal}
)

// NewTimeoutError reports a connect attempt that outlived its deadline.
func NewTimeoutError(id string) *Error {
	return &Error{Kind: KindTimeout, Level: LevelEndpoint, ID: id}
}

// NewUnexpectedDisconnectionError reports a link drop nobody asked for. cause may be nil.
func NewUnexpectedDisconnectionError(id string, cause error) *Error {
	return &Error{Kind: KindUnexpectedDisconnection, Level: LevelPeripheral, ID: id, Err: cause}
}

// WrapError attaches a level id to err. An Error keeps its kind; anything
// else becomes an internal error.
func WrapError(level Level, id string, err error) *Error {
	kind := KindInternal
	if inner, ok := err.(*Error); ok {
		kind = inner.Kind
	}
	return &Error{Kind: kind, Level: level, ID: id, Err: err}
}

func (e *Error) Error() string {
	return strings.Join(LayeredDescription(e), ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels (no id) by kind, and other Errors by kind, level and id.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.ID == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Level == e.Level && t.ID == e.ID
}

// LayeredDescription unwinds an Error into display fragments, outermost first:
// the kind, then one fragment per wrapping level, the innermost one carrying the
// transport's own message. Errors of other types yield a single fragment.
func LayeredDescription(err error) []string {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return []string{err.Error()}
	}

	parts := []string{e.Kind.String()}
	for e != nil {
		fragment := e.Level.String()
		if e.ID != "" {
			fragment += " " + e.ID
		}

		next, ok := e.Err.(*Error)
		if !ok && e.Err != nil {
			fragment += ": " + e.Err.Error()
		}
		parts = append(parts, fragment)
		e = next
	}
	return parts
}
