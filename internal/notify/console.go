package notify

import (
	"fmt"
	"io"
	"sync"

	"gossips/internal/domain"
)

// Console renders protocol events as text lines. Writes are serialised so
// several peers may share one writer.
type Console struct {
	mu   sync.Mutex
	out  io.Writer
	self domain.PeerID
	tag  bool
}

// NewConsole writes to out on behalf of self. With tag set every line is
// prefixed with the peer name, for several peers in one process.
func NewConsole(out io.Writer, self domain.PeerID, tag bool) *Console {
	return &Console{out: out, self: self, tag: tag}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tag {
		fmt.Fprintf(c.out, "[%s] ", c.self)
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) RequestReceived(_ domain.RoomID, from domain.PeerID) {
	c.printf("%s wants to switch to secure mode. /accept or /decline", from)
}

func (c *Console) RequestDeclined(domain.RoomID) {
	c.printf("Secure mode request was declined.")
}

func (c *Console) PassphraseRequired(_ domain.RoomID, role domain.Role) {
	if role == domain.RoleResponder {
		c.printf("Enter the exact key provided by the sender: /key <passphrase>")
		return
	}
	c.printf("Request accepted. Enter the shared key: /key <passphrase>")
}

func (c *Console) NegotiationFailed(_ domain.RoomID, err error) {
	c.printf("Secure mode negotiation ended: %v", err)
}

func (c *Console) SessionOpened(domain.RoomID) {
	c.printf("Secure mode on. Messages are now encrypted.")
}

func (c *Console) MessageDisplayed(_ domain.RoomID, msg domain.Message, secure bool) {
	lock := ""
	if secure {
		lock = "(secure) "
	}
	c.printf("%s%s: %s", lock, msg.SenderID, msg.Text)
}

func (c *Console) WrongKey(domain.RoomID) {
	c.printf("Wrong key! The passphrases do not match; the secure session will close.")
}

func (c *Console) SessionClosed(_ domain.RoomID, reason domain.CloseReason) {
	c.printf("Secure mode off (%s).", reason)
}

var _ domain.Notifier = (*Console)(nil)
