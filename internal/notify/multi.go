package notify

import "gossips/internal/domain"

// Multi forwards every notification to each notifier in order.
type Multi []domain.Notifier

func (m Multi) RequestReceived(room domain.RoomID, from domain.PeerID) {
	for _, n := range m {
		n.RequestReceived(room, from)
	}
}

func (m Multi) RequestDeclined(room domain.RoomID) {
	for _, n := range m {
		n.RequestDeclined(room)
	}
}

func (m Multi) PassphraseRequired(room domain.RoomID, role domain.Role) {
	for _, n := range m {
		n.PassphraseRequired(room, role)
	}
}

func (m Multi) NegotiationFailed(room domain.RoomID, err error) {
	for _, n := range m {
		n.NegotiationFailed(room, err)
	}
}

func (m Multi) SessionOpened(room domain.RoomID) {
	for _, n := range m {
		n.SessionOpened(room)
	}
}

func (m Multi) MessageDisplayed(room domain.RoomID, msg domain.Message, secure bool) {
	for _, n := range m {
		n.MessageDisplayed(room, msg, secure)
	}
}

func (m Multi) WrongKey(room domain.RoomID) {
	for _, n := range m {
		n.WrongKey(room)
	}
}

func (m Multi) SessionClosed(room domain.RoomID, reason domain.CloseReason) {
	for _, n := range m {
		n.SessionClosed(room, reason)
	}
}

var _ domain.Notifier = Multi(nil)
