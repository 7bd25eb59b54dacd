package protocol

// Error is a simple error type for protocol errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors shared across protocol implementations and the
// orchestrator. TransportError-class failures wrap ErrUnreachable or
// ErrTimeout; ConfigurationError-class failures wrap ErrUnknownProtocol
// or ErrInvalidConfig.
var (
	// ErrUnknownProtocol is returned when no service is registered for
	// a protocol type tag.
	ErrUnknownProtocol = Error("unknown protocol type")

	// ErrInvalidConfig is returned when an instance configuration is
	// missing required keys or carries malformed values.
	ErrInvalidConfig = Error("invalid configuration")

	// ErrInstanceExists is returned when starting an instance id that
	// is already starting or running.
	ErrInstanceExists = Error("instance already running")

	// ErrInstanceNotFound is returned when an operation references an
	// instance id the service does not hold.
	ErrInstanceNotFound = Error("instance not found")

	// ErrUnreachable is returned when the device endpoint cannot be
	// reached.
	ErrUnreachable = Error("device unreachable")

	// ErrTimeout is returned when a device operation exceeds its bound.
	ErrTimeout = Error("operation timed out")

	// ErrNotConnected is returned when a read or write is attempted on
	// an instance whose transport is down.
	ErrNotConnected = Error("not connected")

	// ErrUnsupportedPoint is returned when a point spec cannot be
	// mapped onto the protocol's address space.
	ErrUnsupportedPoint = Error("unsupported point spec")

	// ErrNilService is returned when registering a nil service factory.
	ErrNilService = Error("service factory cannot be nil")

	// ErrFactoryExists is returned when registering a second factory
	// for the same protocol type.
	ErrFactoryExists = Error("service factory already registered")
)
