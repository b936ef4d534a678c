package interfaces

import domaintypes "gossips/internal/domain/types"

// Notifier is the port through which protocol events reach the user.
// Implementations must not block; they are called from the peer event loop.
type Notifier interface {
	// RequestReceived asks the user to accept or decline secure mode.
	RequestReceived(room domaintypes.RoomID, from domaintypes.PeerID)
	// RequestDeclined tells the initiator the other peer said no.
	RequestDeclined(room domaintypes.RoomID)
	// PassphraseRequired asks the user to type the shared passphrase.
	PassphraseRequired(room domaintypes.RoomID, role domaintypes.Role)
	// NegotiationFailed reports a timeout, cancellation or vanished request.
	NegotiationFailed(room domaintypes.RoomID, err error)
	// SessionOpened reports that messages are now encrypted.
	SessionOpened(room domaintypes.RoomID)
	// MessageDisplayed delivers a plaintext message for display.
	MessageDisplayed(room domaintypes.RoomID, msg domaintypes.Message, secure bool)
	// WrongKey is the fatal passphrase-mismatch notice shown before teardown.
	WrongKey(room domaintypes.RoomID)
	// SessionClosed returns the user to the pre-negotiation screen.
	SessionClosed(room domaintypes.RoomID, reason domaintypes.CloseReason)
}
