package types

// RequestStatus is the lifecycle value of a SecureRequest.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
)

// SecureRequest is the record an initiator writes to ask for secure mode.
// The JSON names match the records peers already exchange.
type SecureRequest struct {
	RequesterID PeerID        `json:"requesterUid"`
	Status      RequestStatus `json:"status"`
}
