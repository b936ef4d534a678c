package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"gossips/internal/domain"
	"gossips/internal/logger"
	"gossips/internal/services/feed"
	"gossips/internal/services/negotiation"
	"gossips/internal/services/session"
)

// DefaultResubscribeDelay is the pause before a lost subscription is retried.
const DefaultResubscribeDelay = time.Second

// clearWait bounds how long Close waits for its terminated flag to come back
// before clearing it directly.
const clearWait = 2 * time.Second

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("peer closed")

// Options wires a Peer. Clock defaults to the wall clock.
type Options struct {
	Self     domain.PeerID
	Other    domain.PeerID
	Channel  domain.Channel
	Cache    domain.PassphraseStore
	Notifier domain.Notifier
	Clock    clock.Clock

	NegotiationTimeout time.Duration
	WrongKeyGrace      time.Duration
	ResubscribeDelay   time.Duration
}

// Status is a snapshot of the peer's protocol position.
type Status struct {
	Room   domain.RoomID
	State  domain.State
	Role   domain.Role
	Secure bool
}

// Peer is one participant in a two-party room.
type Peer struct {
	self        domain.PeerID
	room        domain.RoomID
	ch          domain.Channel
	resubscribe time.Duration

	ops  chan func()
	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}

	closeOnce sync.Once
	closeErr  error

	neg       *negotiation.Machine
	sess      *session.Lifecycle
	feed      *feed.Service
	secureSub context.CancelFunc
}

// Open derives the room, starts the event loop and subscribes to the
// room's paths. The peer runs until Close; cancelling ctx does not stop it,
// so Close can still run the termination sequence after a signal.
func Open(ctx context.Context, opts Options) (*Peer, error) {
	room, err := domain.DeriveRoomID(opts.Self, opts.Other)
	if err != nil {
		return nil, err
	}
	if opts.Channel == nil || opts.Cache == nil || opts.Notifier == nil {
		return nil, fmt.Errorf("peer %s: channel, cache and notifier are required", opts.Self)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = DefaultResubscribeDelay
	}

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	p := &Peer{
		self:        opts.Self,
		room:        room,
		ch:          opts.Channel,
		resubscribe: opts.ResubscribeDelay,
		ops:         make(chan func()),
		ctx:         loopCtx,
		stop:        stop,
		done:        make(chan struct{}),
	}

	p.neg = negotiation.New(
		negotiation.Config{Self: opts.Self, Room: room, Timeout: opts.NegotiationTimeout},
		opts.Channel, opts.Cache, opts.Notifier, opts.Clock, p.post, p.activated, p.abandoned,
	)
	p.sess = session.New(
		session.Config{Self: opts.Self, Room: room, Grace: opts.WrongKeyGrace},
		opts.Channel, opts.Cache, opts.Notifier, opts.Clock, p.post, p.closed,
	)
	p.feed = feed.New(opts.Channel, opts.Notifier, opts.Self, room)

	go p.loop()

	p.watch(loopCtx, domain.RequestPath(room), p.neg.HandleRequest)
	p.watch(loopCtx, domain.RendezvousPath(room), p.neg.HandleRendezvous)
	p.watch(loopCtx, domain.WrongKeyPath(room), p.sess.HandleWrongKey)
	p.watch(loopCtx, domain.TerminatedPath(room), func(ctx context.Context, ev domain.Event) {
		p.sess.HandleTerminated(ctx, ev)
		p.neg.HandleTerminated(ctx, ev)
	})
	p.watchChildren(loopCtx, domain.MessagesPath(room), func(_ context.Context, c domain.Child) {
		p.feed.HandleMessage(c)
	})

	logger.Info("Peer joined room", "peer", opts.Self, "room", room)
	return p, nil
}

func (p *Peer) Room() domain.RoomID { return p.room }

// StartSecure proposes secure mode to the other peer.
func (p *Peer) StartSecure(ctx context.Context) error { return p.call(ctx, p.neg.Start) }

func (p *Peer) Accept(ctx context.Context) error  { return p.call(ctx, p.neg.Accept) }
func (p *Peer) Decline(ctx context.Context) error { return p.call(ctx, p.neg.Decline) }
func (p *Peer) Cancel(ctx context.Context) error  { return p.call(ctx, p.neg.Cancel) }

// EnterPassphrase supplies the shared passphrase once it is requested.
func (p *Peer) EnterPassphrase(ctx context.Context, passphrase string) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.neg.EnterPassphrase(ctx, passphrase)
	})
}

// Send encrypts text into the active secure session.
func (p *Peer) Send(ctx context.Context, text string) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.sess.Send(ctx, text)
	})
}

// SendPlain appends text to the unencrypted feed.
func (p *Peer) SendPlain(ctx context.Context, text string) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.feed.Send(ctx, text)
	})
}

// Terminate ends secure mode for both peers and wipes the secure log.
func (p *Peer) Terminate(ctx context.Context) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.sess.Terminate(ctx, domain.CloseLocal)
	})
}

func (p *Peer) Status(ctx context.Context) (Status, error) {
	var st Status
	err := p.call(ctx, func(context.Context) error {
		st = Status{Room: p.room, State: p.neg.State(), Role: p.neg.Role(), Secure: p.sess.Active()}
		return nil
	})
	return st, err
}

// Close runs the termination sequence, as every exit does, then stops the
// loop and its subscriptions. Later calls return the first result.
func (p *Peer) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		pending := make(chan (<-chan struct{}), 1)
		err := p.call(ctx, func(ctx context.Context) error {
			if p.neg.State() != domain.StateIdle && p.neg.State() != domain.StateActive {
				if cerr := p.neg.Cancel(ctx); cerr != nil {
					logger.Warn("Cancel on close failed", "room", p.room, "error", cerr.Error())
				}
			}
			terr := p.sess.Terminate(ctx, domain.CloseDisconnect)
			pending <- p.sess.Cleared()
			return terr
		})
		select {
		case cleared := <-pending:
			p.awaitCleared(ctx, cleared)
		default:
		}
		p.stop()
		<-p.done
		if errors.Is(err, ErrClosed) {
			err = nil
		}
		p.closeErr = err
		logger.Info("Peer left room", "peer", p.self, "room", p.room)
	})
	return p.closeErr
}

// awaitCleared keeps the loop running until the terminated flag this peer
// raised has come back and been cleared. Past clearWait it is removed
// directly so it does not outlive the peer.
func (p *Peer) awaitCleared(ctx context.Context, cleared <-chan struct{}) {
	if cleared == nil {
		return
	}
	timer := time.NewTimer(clearWait)
	defer timer.Stop()
	select {
	case <-cleared:
		return
	case <-timer.C:
	case <-ctx.Done():
	}
	logger.Warn("Terminated flag not observed, clearing it", "room", p.room)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearWait)
	defer cancel()
	if err := p.ch.Remove(rctx, domain.TerminatedPath(p.room)); err != nil {
		logger.Warn("Failed to clear terminated flag", "room", p.room, "error", err.Error())
	}
}

func (p *Peer) loop() {
	defer close(p.done)
	for {
		select {
		case fn := <-p.ops:
			fn()
		case <-p.ctx.Done():
			return
		}
	}
}

// post queues fn on the loop; it is dropped once the loop has stopped.
func (p *Peer) post(fn func()) {
	select {
	case p.ops <- fn:
	case <-p.done:
	}
}

// call runs fn on the loop and waits for its result.
func (p *Peer) call(ctx context.Context, fn func(context.Context) error) error {
	res := make(chan error, 1)
	select {
	case p.ops <- func() { res <- fn(ctx) }:
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Peer) activated(role domain.Role) {
	if err := p.sess.Open(); err != nil {
		logger.Error("Failed to open secure session", err, "room", p.room, "role", role.String())
		p.neg.Reset()
		return
	}
	subCtx, cancel := context.WithCancel(p.ctx)
	p.secureSub = cancel
	p.watchChildren(subCtx, domain.SecureMessagesPath(p.room), p.sess.HandleMessage)
}

// abandoned tells the other peer to tear down an attempt this peer gave up
// on after acceptance.
func (p *Peer) abandoned(ctx context.Context) error {
	return p.sess.Broadcast(ctx)
}

func (p *Peer) closed(reason domain.CloseReason) {
	if p.secureSub != nil {
		p.secureSub()
		p.secureSub = nil
	}
	p.neg.Reset()
}
