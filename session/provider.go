package session

import (
	"time"

	"github.com/Dr-Twilight/port-status-inspection/common"
)

// ConnectErrorKind - Classified reason a session could not be established.
type ConnectErrorKind int

// Connect failure taxonomy. Connection-time failures are terminal for the
// device and never retried automatically.
const (
	ConnectUnknown ConnectErrorKind = iota
	ConnectMissingAddress
	ConnectUnreachable
	ConnectAuthFailure
	ConnectEnableAuthFailure
	ConnectTransportTimeout
	ConnectMalformedLogin
)

// String - Human-readable kind name.
func (kind ConnectErrorKind) String() string {
	switch kind {
	case ConnectMissingAddress:
		return "missing_address"
	case ConnectUnreachable:
		return "unreachable"
	case ConnectAuthFailure:
		return "auth_failure"
	case ConnectEnableAuthFailure:
		return "enable_auth_failure"
	case ConnectTransportTimeout:
		return "transport_timeout"
	case ConnectMalformedLogin:
		return "malformed_login"
	default:
		return "unknown"
	}
}

// ConnectError - Tagged connect failure, switched on explicitly by the caller.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (connectError *ConnectError) Error() string {
	if connectError.Err == nil {
		return connectError.Kind.String()
	}
	return connectError.Kind.String() + ": " + connectError.Err.Error()
}

// Unwrap - Expose the transport-level cause.
func (connectError *ConnectError) Unwrap() error {
	return connectError.Err
}

// Session - A live interactive shell to one device. Owned exclusively by the
// one task that opened it.
type Session interface {
	// SendAndWait - Send text and read back raw output within the deadline.
	// Both output and error may be set.
	SendAndWait(text string, timeout time.Duration) (string, error)

	// ChannelClosed - Side-effect-free check of whether the underlying
	// channel is already closed.
	ChannelClosed() bool

	// Enable - Privilege-escalate using the configured secret.
	Enable() error

	// FindPrompt - Return the device's current prompt line.
	FindPrompt() (string, error)

	// Disconnect - Tear the session down. Safe to call twice and safe when
	// the remote end already closed the channel.
	Disconnect()
}

// Provider - Opens authenticated interactive shells to devices.
type Provider interface {
	Connect(device common.DeviceSpec) (Session, *ConnectError)
}
