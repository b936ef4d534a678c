package notify

import (
	"sync"

	"gossips/internal/domain"
)

// Kind names a Notifier method.
type Kind string

const (
	KindRequestReceived    Kind = "request-received"
	KindRequestDeclined    Kind = "request-declined"
	KindPassphraseRequired Kind = "passphrase-required"
	KindNegotiationFailed  Kind = "negotiation-failed"
	KindSessionOpened      Kind = "session-opened"
	KindMessageDisplayed   Kind = "message-displayed"
	KindWrongKey           Kind = "wrong-key"
	KindSessionClosed      Kind = "session-closed"
)

// Record is one observed notification. Only the fields of its Kind are set.
type Record struct {
	Kind   Kind
	Room   domain.RoomID
	From   domain.PeerID
	Role   domain.Role
	Err    error
	Msg    domain.Message
	Secure bool
	Reason domain.CloseReason
}

// Recorder keeps every notification in order.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of everything seen so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Count reports how many records of kind were seen.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, rec := range r.Records() {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the latest record of kind.
func (r *Recorder) Last(kind Kind) (Record, bool) {
	recs := r.Records()
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Kind == kind {
			return recs[i], true
		}
	}
	return Record{}, false
}

// Displayed returns the displayed messages, filtered by secure.
func (r *Recorder) Displayed(secure bool) []domain.Message {
	var out []domain.Message
	for _, rec := range r.Records() {
		if rec.Kind == KindMessageDisplayed && rec.Secure == secure {
			out = append(out, rec.Msg)
		}
	}
	return out
}

func (r *Recorder) RequestReceived(room domain.RoomID, from domain.PeerID) {
	r.add(Record{Kind: KindRequestReceived, Room: room, From: from})
}

func (r *Recorder) RequestDeclined(room domain.RoomID) {
	r.add(Record{Kind: KindRequestDeclined, Room: room})
}

func (r *Recorder) PassphraseRequired(room domain.RoomID, role domain.Role) {
	r.add(Record{Kind: KindPassphraseRequired, Room: room, Role: role})
}

func (r *Recorder) NegotiationFailed(room domain.RoomID, err error) {
	r.add(Record{Kind: KindNegotiationFailed, Room: room, Err: err})
}

func (r *Recorder) SessionOpened(room domain.RoomID) {
	r.add(Record{Kind: KindSessionOpened, Room: room})
}

func (r *Recorder) MessageDisplayed(room domain.RoomID, msg domain.Message, secure bool) {
	r.add(Record{Kind: KindMessageDisplayed, Room: room, Msg: msg, Secure: secure})
}

func (r *Recorder) WrongKey(room domain.RoomID) {
	r.add(Record{Kind: KindWrongKey, Room: room})
}

func (r *Recorder) SessionClosed(room domain.RoomID, reason domain.CloseReason) {
	r.add(Record{Kind: KindSessionClosed, Room: room, Reason: reason})
}

var _ domain.Notifier = (*Recorder)(nil)
