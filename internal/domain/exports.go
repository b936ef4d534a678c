package domain

import (
	interfaces "gossips/internal/domain/interfaces"
	types "gossips/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	PeerID        = types.PeerID
	RoomID        = types.RoomID
	Role          = types.Role
	State         = types.State
	RequestStatus = types.RequestStatus
	SecureRequest = types.SecureRequest
	Message       = types.Message
	Event         = types.Event
	Child         = types.Child
	CloseReason   = types.CloseReason
	ChannelError  = types.ChannelError
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Channel         = interfaces.Channel
	PassphraseStore = interfaces.PassphraseStore
	Notifier        = interfaces.Notifier
)

const (
	RoleNone      = types.RoleNone
	RoleInitiator = types.RoleInitiator
	RoleResponder = types.RoleResponder

	StateIdle            = types.StateIdle
	StateRequestSent     = types.StateRequestSent
	StateRequestReceived = types.StateRequestReceived
	StateAccepted        = types.StateAccepted
	StateDeclined        = types.StateDeclined
	StateKeyPending      = types.StateKeyPending
	StateKeyExchanged    = types.StateKeyExchanged
	StateActive          = types.StateActive

	StatusPending  = types.StatusPending
	StatusAccepted = types.StatusAccepted
	StatusDeclined = types.StatusDeclined

	CloseLocal      = types.CloseLocal
	CloseRemote     = types.CloseRemote
	CloseWrongKey   = types.CloseWrongKey
	CloseDisconnect = types.CloseDisconnect
)

// Sentinel errors, re-exported for callers using errors.Is.
var (
	ErrInvalidIdentity      = types.ErrInvalidIdentity
	ErrAlreadyPending       = types.ErrAlreadyPending
	ErrDecode               = types.ErrDecode
	ErrChannel              = types.ErrChannel
	ErrAlreadyExists        = types.ErrAlreadyExists
	ErrInvalidState         = types.ErrInvalidState
	ErrEmptyPassphrase      = types.ErrEmptyPassphrase
	ErrNegotiationTimeout   = types.ErrNegotiationTimeout
	ErrNegotiationCancelled = types.ErrNegotiationCancelled
	ErrSessionClosed        = types.ErrSessionClosed
	ErrPassphraseNotFound   = types.ErrPassphraseNotFound
)

// NewChannelError wraps a transport failure; see types.NewChannelError.
func NewChannelError(op, path string, err error) error {
	return types.NewChannelError(op, path, err)
}
