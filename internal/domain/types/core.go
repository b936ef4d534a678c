package types

// PeerID is the externally issued identifier of a chat participant.
// Ordering between identifiers is plain lexical string comparison.
type PeerID string

// String returns the string form of the peer identifier.
func (p PeerID) String() string { return string(p) }

// RoomID addresses the shared state of a two-peer conversation.
type RoomID string

// String returns the string form of the room identifier.
func (r RoomID) String() string { return string(r) }

// Role is the part a peer plays in a secure-mode negotiation.
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleResponder
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "none"
	}
}
