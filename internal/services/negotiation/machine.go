package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"gossips/internal/domain"
	"gossips/internal/logger"
)

// DefaultTimeout bounds how long an attempt may wait on the other peer.
const DefaultTimeout = 2 * time.Minute

// Post schedules fn on the owning event loop.
type Post func(fn func())

// Config identifies the room and the local peer.
type Config struct {
	Self    domain.PeerID
	Room    domain.RoomID
	Timeout time.Duration
}

// Machine is the per-room negotiation state machine.
type Machine struct {
	ch     domain.Channel
	cache  domain.PassphraseStore
	notify domain.Notifier
	clock  clock.Clock
	post   Post

	self    domain.PeerID
	room    domain.RoomID
	timeout time.Duration

	state     domain.State
	role      domain.Role
	requester domain.PeerID
	keyEnter  bool
	flagSeen  bool

	attempt uint64
	timer   *clock.Timer

	onActive  func(role domain.Role)
	onAbandon func(ctx context.Context) error
}

// New returns a Machine in Idle. onActive runs, on the event loop, once both
// sides have entered the passphrase. onAbandon runs when an accepted attempt
// is cancelled or times out, since the other peer may already be Active; it
// must tell that peer to tear down.
func New(
	cfg Config,
	ch domain.Channel,
	cache domain.PassphraseStore,
	notify domain.Notifier,
	clk clock.Clock,
	post Post,
	onActive func(role domain.Role),
	onAbandon func(ctx context.Context) error,
) *Machine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Machine{
		ch:        ch,
		cache:     cache,
		notify:    notify,
		clock:     clk,
		post:      post,
		self:      cfg.Self,
		room:      cfg.Room,
		timeout:   cfg.Timeout,
		onActive:  onActive,
		onAbandon: onAbandon,
	}
}

func (m *Machine) State() domain.State { return m.state }
func (m *Machine) Role() domain.Role   { return m.role }

// Start proposes secure mode. Only one request may exist per room; a second
// one fails with ErrAlreadyPending and leaves the first untouched.
func (m *Machine) Start(ctx context.Context) error {
	switch m.state {
	case domain.StateIdle:
	case domain.StateActive:
		return fmt.Errorf("start in state %s: %w", m.state, domain.ErrInvalidState)
	default:
		return domain.ErrAlreadyPending
	}

	// A rendezvous flag left by an abandoned attempt would read as acceptance.
	if err := m.ch.Remove(ctx, domain.RendezvousRoot(m.room)); err != nil {
		return err
	}

	req, err := domain.MarshalValue(domain.SecureRequest{RequesterID: m.self, Status: domain.StatusPending})
	if err != nil {
		return err
	}
	if err := m.ch.Create(ctx, domain.RequestPath(m.room), req); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.ErrAlreadyPending
		}
		return err
	}

	m.role = domain.RoleInitiator
	m.requester = m.self
	m.transition(domain.StateRequestSent)
	m.arm()
	return nil
}

// Accept answers a received request. The accepted status is written before
// the request is deleted so the initiator can observe it.
func (m *Machine) Accept(ctx context.Context) error {
	if m.role != domain.RoleResponder || m.state != domain.StateRequestReceived {
		return fmt.Errorf("accept in state %s: %w", m.state, domain.ErrInvalidState)
	}
	if err := m.answer(ctx, domain.StatusAccepted); err != nil {
		return err
	}
	if err := m.ch.Put(ctx, domain.RendezvousPath(m.room), domain.FlagValue(false)); err != nil {
		return err
	}
	if err := m.ch.Remove(ctx, domain.RequestPath(m.room)); err != nil {
		return err
	}

	m.transition(domain.StateAccepted)
	m.awaitPassphrase()
	return nil
}

// Decline refuses a received request and returns to Idle.
func (m *Machine) Decline(ctx context.Context) error {
	if m.role != domain.RoleResponder || m.state != domain.StateRequestReceived {
		return fmt.Errorf("decline in state %s: %w", m.state, domain.ErrInvalidState)
	}
	if err := m.answer(ctx, domain.StatusDeclined); err != nil {
		return err
	}
	if err := m.ch.Remove(ctx, domain.RequestPath(m.room)); err != nil {
		return err
	}
	m.transition(domain.StateDeclined)
	m.reset()
	return nil
}

// EnterPassphrase records the locally typed passphrase. The responder raises
// the rendezvous flag and activates at once; the initiator activates when it
// has also consumed the flag.
func (m *Machine) EnterPassphrase(ctx context.Context, passphrase string) error {
	if passphrase == "" {
		return domain.ErrEmptyPassphrase
	}
	if m.state != domain.StateKeyPending {
		return fmt.Errorf("enter passphrase in state %s: %w", m.state, domain.ErrInvalidState)
	}
	if err := m.cache.SavePassphrase(m.room, passphrase); err != nil {
		return fmt.Errorf("cache passphrase: %w", err)
	}

	switch m.role {
	case domain.RoleResponder:
		if err := m.ch.Put(ctx, domain.RendezvousPath(m.room), domain.FlagValue(true)); err != nil {
			_ = m.cache.DeletePassphrase(m.room)
			return err
		}
		m.transition(domain.StateKeyExchanged)
		m.activate()
	case domain.RoleInitiator:
		m.keyEnter = true
		m.transition(domain.StateKeyExchanged)
		if m.flagSeen {
			m.activate()
		}
	}
	return nil
}

// Cancel abandons the current attempt. A responder that has not answered
// declines; an initiator withdraws its pending request.
func (m *Machine) Cancel(ctx context.Context) error {
	switch m.state {
	case domain.StateIdle, domain.StateActive:
		return fmt.Errorf("cancel in state %s: %w", m.state, domain.ErrInvalidState)
	case domain.StateRequestReceived:
		return m.Decline(ctx)
	}
	err := m.abandon(ctx)
	m.fail(domain.ErrNegotiationCancelled)
	return err
}

// Reset returns an Active machine to Idle once its session has closed.
func (m *Machine) Reset() {
	if m.state == domain.StateActive {
		m.reset()
	}
}

// HandleRequest reacts to a change of the room's SecureRequest.
func (m *Machine) HandleRequest(ctx context.Context, ev domain.Event) {
	if !ev.Exists {
		if m.role == domain.RoleResponder && m.state == domain.StateRequestReceived {
			logger.Info("Secure request withdrawn", "room", m.room)
			m.fail(domain.ErrNegotiationCancelled)
		}
		return
	}

	var req domain.SecureRequest
	if err := domain.UnmarshalValue(ev.Value, &req); err != nil {
		logger.Warn("Ignoring malformed secure request", "room", m.room, "error", err.Error())
		return
	}

	switch req.Status {
	case domain.StatusPending:
		if req.RequesterID == m.self || m.state != domain.StateIdle {
			return
		}
		m.role = domain.RoleResponder
		m.requester = req.RequesterID
		m.transition(domain.StateRequestReceived)
		m.arm()
		m.notify.RequestReceived(m.room, req.RequesterID)

	case domain.StatusAccepted:
		if m.isInitiatorWaiting(req) {
			m.transition(domain.StateAccepted)
			m.awaitPassphrase()
		}

	case domain.StatusDeclined:
		if m.isInitiatorWaiting(req) {
			m.transition(domain.StateDeclined)
			m.reset()
			m.notify.RequestDeclined(m.room)
		}
	}
}

// HandleTerminated abandons an accepted attempt when the other peer gives up
// on it after acceptance.
func (m *Machine) HandleTerminated(ctx context.Context, ev domain.Event) {
	if !domain.IsFlagSet(ev) || !m.accepted() {
		return
	}
	logger.Info("Secure attempt abandoned by the other peer", "room", m.room, "state", m.state.String())
	if err := m.cleanup(ctx); err != nil {
		logger.Warn("Cleanup after remote abandon failed", "room", m.room, "error", err.Error())
	}
	m.fail(domain.ErrNegotiationCancelled)
}

// HandleRendezvous reacts to a change of the rendezvous flag. Only the
// initiator consumes it; the responder is the one writing it.
func (m *Machine) HandleRendezvous(ctx context.Context, ev domain.Event) {
	if m.role != domain.RoleInitiator || !ev.Exists {
		return
	}

	// The flag is only written after acceptance, so its presence stands in
	// for an accepted status the backend may have coalesced away.
	if m.state == domain.StateRequestSent {
		m.transition(domain.StateAccepted)
		m.awaitPassphrase()
	}

	if !domain.IsFlagSet(ev) || m.flagSeen {
		return
	}
	if m.state != domain.StateKeyPending && m.state != domain.StateKeyExchanged {
		return
	}
	m.flagSeen = true
	if err := m.ch.Remove(ctx, domain.RendezvousRoot(m.room)); err != nil {
		logger.Warn("Failed to consume rendezvous flag", "room", m.room, "error", err.Error())
	}
	if m.keyEnter {
		m.activate()
	}
}

func (m *Machine) isInitiatorWaiting(req domain.SecureRequest) bool {
	return m.role == domain.RoleInitiator && m.state == domain.StateRequestSent && req.RequesterID == m.self
}

func (m *Machine) answer(ctx context.Context, status domain.RequestStatus) error {
	b, err := domain.MarshalValue(domain.SecureRequest{RequesterID: m.requester, Status: status})
	if err != nil {
		return err
	}
	return m.ch.Put(ctx, domain.RequestPath(m.room), b)
}

func (m *Machine) awaitPassphrase() {
	m.transition(domain.StateKeyPending)
	m.arm()
	m.notify.PassphraseRequired(m.room, m.role)
}

func (m *Machine) activate() {
	m.disarm()
	m.transition(domain.StateActive)
	m.onActive(m.role)
}

// accepted reports whether the attempt got past acceptance.
func (m *Machine) accepted() bool {
	switch m.state {
	case domain.StateAccepted, domain.StateKeyPending, domain.StateKeyExchanged:
		return true
	}
	return false
}

// abandon cleans up this peer's writes and, past acceptance, tells the other
// peer to tear down.
func (m *Machine) abandon(ctx context.Context) error {
	errs := []error{m.cleanup(ctx)}
	if m.accepted() && m.onAbandon != nil {
		errs = append(errs, m.onAbandon(ctx))
	}
	return errors.Join(errs...)
}

// cleanup removes what this peer wrote for an attempt that will not finish.
func (m *Machine) cleanup(ctx context.Context) error {
	var errs []error
	if m.role == domain.RoleInitiator && m.state == domain.StateRequestSent {
		errs = append(errs, m.ch.Remove(ctx, domain.RequestPath(m.room)))
	}
	errs = append(errs, m.ch.Remove(ctx, domain.RendezvousRoot(m.room)))
	return errors.Join(errs...)
}

func (m *Machine) fail(err error) {
	if derr := m.cache.DeletePassphrase(m.room); derr != nil {
		logger.Warn("Failed to discard cached passphrase", "room", m.room, "error", derr.Error())
	}
	m.reset()
	m.notify.NegotiationFailed(m.room, err)
}

func (m *Machine) reset() {
	m.disarm()
	m.state = domain.StateIdle
	m.role = domain.RoleNone
	m.requester = ""
	m.keyEnter = false
	m.flagSeen = false
}

func (m *Machine) transition(next domain.State) {
	logger.Debug("Negotiation transition", "room", m.room, "role", m.role.String(), "from", m.state.String(), "to", next.String())
	m.state = next
}

// arm (re)starts the attempt deadline. A timer from an earlier attempt or
// phase is ignored when it fires.
func (m *Machine) arm() {
	m.disarm()
	m.attempt++
	attempt := m.attempt
	m.timer = m.clock.AfterFunc(m.timeout, func() {
		m.post(func() { m.expire(attempt) })
	})
}

func (m *Machine) disarm() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) expire(attempt uint64) {
	if attempt != m.attempt || m.state == domain.StateIdle || m.state == domain.StateActive {
		return
	}
	logger.Info("Negotiation timed out", "room", m.room, "state", m.state.String())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.abandon(ctx); err != nil {
		logger.Warn("Cleanup after timeout failed", "room", m.room, "error", err.Error())
	}
	m.fail(domain.ErrNegotiationTimeout)
}
