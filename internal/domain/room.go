package domain

// DeriveRoomID returns the identifier both peers use for their shared
// conversation: the lexically smaller identifier followed by the larger one.
// The result does not depend on argument order.
func DeriveRoomID(a, b PeerID) (RoomID, error) {
	if a == "" || b == "" {
		return "", ErrInvalidIdentity
	}
	if a < b {
		return RoomID(a + b), nil
	}
	return RoomID(b + a), nil
}
