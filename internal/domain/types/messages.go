package types

// Message is one chat line. In the secure log Text holds ciphertext; anything
// handed to a Notifier always holds plaintext.
type Message struct {
	Text     string `json:"message"`
	SenderID PeerID `json:"senderId"`
}

// Event is a change notification for a single path of the shared store.
//
// Exists is false when the path is absent (never written or removed). Err is
// set on the last event of a subscription that failed; the channel is closed
// right after it.
type Event struct {
	Path   string
	Value  []byte
	Exists bool
	Err    error
}

// Child is a child-added notification under a watched parent path.
type Child struct {
	Key   string
	Value []byte
	Err   error
}
