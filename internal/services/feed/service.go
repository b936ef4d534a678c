package feed

import (
	"context"
	"errors"

	"gossips/internal/domain"
	"gossips/internal/logger"
)

// ErrEmptyMessage is returned when Send is given no text.
var ErrEmptyMessage = errors.New("empty message")

// Service appends to and displays the plain message log of one room.
type Service struct {
	ch     domain.Channel
	notify domain.Notifier
	self   domain.PeerID
	room   domain.RoomID
	seen   map[string]bool
}

func New(ch domain.Channel, notify domain.Notifier, self domain.PeerID, room domain.RoomID) *Service {
	return &Service{ch: ch, notify: notify, self: self, room: room, seen: make(map[string]bool)}
}

// Send appends text and displays it once the store acknowledges the write.
func (s *Service) Send(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	msg := domain.Message{Text: text, SenderID: s.self}
	b, err := domain.MarshalValue(msg)
	if err != nil {
		return err
	}
	key, err := s.ch.Push(ctx, domain.MessagesPath(s.room), b)
	if err != nil {
		return err
	}
	s.seen[key] = true
	s.notify.MessageDisplayed(s.room, msg, false)
	return nil
}

// HandleMessage displays a log entry the first time it is seen.
func (s *Service) HandleMessage(c domain.Child) {
	if s.seen[c.Key] {
		return
	}
	s.seen[c.Key] = true

	var msg domain.Message
	if err := domain.UnmarshalValue(c.Value, &msg); err != nil {
		logger.Warn("Skipping malformed message", "room", s.room, "key", c.Key)
		return
	}
	s.notify.MessageDisplayed(s.room, msg, false)
}
