package types

// State is a position in the secure-mode negotiation.
type State int

const (
	StateIdle State = iota
	StateRequestSent
	StateRequestReceived
	StateAccepted
	StateDeclined
	StateKeyPending
	StateKeyExchanged
	StateActive
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateRequestSent:     "request-sent",
	StateRequestReceived: "request-received",
	StateAccepted:        "accepted",
	StateDeclined:        "declined",
	StateKeyPending:      "key-pending",
	StateKeyExchanged:    "key-exchanged",
	StateActive:          "active",
}

// String returns the state name used in logs.
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// CloseReason explains why a secure session ended.
type CloseReason string

const (
	CloseLocal      CloseReason = "local"      // this peer terminated
	CloseRemote     CloseReason = "remote"     // the other peer broadcast termination
	CloseWrongKey   CloseReason = "wrong-key"  // passphrase mismatch detected
	CloseDisconnect CloseReason = "disconnect" // session left without confirmation
)
