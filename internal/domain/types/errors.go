package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned when a peer identifier is empty.
	ErrInvalidIdentity = errors.New("invalid peer identity")
	// ErrAlreadyPending is returned when a secure request already exists
	// for the room.
	ErrAlreadyPending = errors.New("a secure chat request is already in progress")
	// ErrDecode is returned when a ciphertext cannot be decoded with the
	// given passphrase. It is the only wrong-key signal.
	ErrDecode = errors.New("cannot decode secure message")
	// ErrChannel marks transport failures of the shared store.
	ErrChannel = errors.New("shared store unavailable")
	// ErrAlreadyExists is returned by Channel.Create when the path is taken.
	ErrAlreadyExists = errors.New("path already exists")

	ErrInvalidState         = errors.New("operation not valid in current state")
	ErrEmptyPassphrase      = errors.New("passphrase must not be empty")
	ErrNegotiationTimeout   = errors.New("secure chat negotiation timed out")
	ErrNegotiationCancelled = errors.New("secure chat request was withdrawn")
	ErrSessionClosed        = errors.New("secure session is closed")
	ErrPassphraseNotFound   = errors.New("no passphrase cached for room")
)

// ChannelError wraps a transport failure with the operation and path.
type ChannelError struct {
	Op   string
	Path string
	Err  error
}

// NewChannelError builds a ChannelError; a nil err yields nil.
func NewChannelError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &ChannelError{Op: op, Path: path, Err: err}
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Is makes every ChannelError match ErrChannel.
func (e *ChannelError) Is(target error) bool { return target == ErrChannel }
