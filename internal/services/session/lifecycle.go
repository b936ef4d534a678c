package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"gossips/internal/crypto"
	"gossips/internal/domain"
	"gossips/internal/logger"
)

// DefaultGrace is how long the wrong-key notice stays up before teardown.
const DefaultGrace = 7 * time.Second

// Post schedules fn on the owning event loop.
type Post func(fn func())

type Config struct {
	Self  domain.PeerID
	Room  domain.RoomID
	Grace time.Duration
}

// Lifecycle owns one room's encrypted session from activation to teardown.
type Lifecycle struct {
	ch     domain.Channel
	cache  domain.PassphraseStore
	notify domain.Notifier
	clock  clock.Clock
	post   Post

	self  domain.PeerID
	room  domain.RoomID
	grace time.Duration

	active     bool
	passphrase string
	seen       map[string]bool

	wrongKey bool
	detector bool
	epoch    uint64
	timer    *clock.Timer

	// clearing is non-nil while a raised terminated flag awaits its echo.
	clearing chan struct{}

	onClosed func(reason domain.CloseReason)
}

func New(
	cfg Config,
	ch domain.Channel,
	cache domain.PassphraseStore,
	notify domain.Notifier,
	clk clock.Clock,
	post Post,
	onClosed func(reason domain.CloseReason),
) *Lifecycle {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return &Lifecycle{
		ch:       ch,
		cache:    cache,
		notify:   notify,
		clock:    clk,
		post:     post,
		self:     cfg.Self,
		room:     cfg.Room,
		grace:    cfg.Grace,
		onClosed: onClosed,
	}
}

// Active reports whether the session is open.
func (l *Lifecycle) Active() bool { return l.active }

// Open activates the session with the passphrase cached during negotiation.
func (l *Lifecycle) Open() error {
	if l.active {
		return nil
	}
	pass, ok, err := l.cache.LoadPassphrase(l.room)
	if err != nil {
		return fmt.Errorf("load passphrase: %w", err)
	}
	if !ok {
		return domain.ErrPassphraseNotFound
	}

	l.epoch++
	l.active = true
	l.passphrase = pass
	l.seen = make(map[string]bool)
	l.wrongKey, l.detector = false, false

	logger.Info("Secure session opened", "room", l.room)
	l.notify.SessionOpened(l.room)
	return nil
}

// Send encodes text and appends it to the secure log. The plaintext is
// displayed as soon as the store acknowledges the write.
func (l *Lifecycle) Send(ctx context.Context, text string) error {
	if !l.active {
		return domain.ErrSessionClosed
	}
	ct, err := crypto.Encode(text, l.passphrase)
	if err != nil {
		return err
	}
	b, err := domain.MarshalValue(domain.Message{Text: ct, SenderID: l.self})
	if err != nil {
		return err
	}
	key, err := l.ch.Push(ctx, domain.SecureMessagesPath(l.room), b)
	if err != nil {
		return err
	}
	l.seen[key] = true
	l.notify.MessageDisplayed(l.room, domain.Message{Text: text, SenderID: l.self}, true)
	return nil
}

// HandleMessage decodes a secure log entry the first time it is seen.
func (l *Lifecycle) HandleMessage(ctx context.Context, c domain.Child) {
	if !l.active || l.seen[c.Key] {
		return
	}
	l.seen[c.Key] = true

	var msg domain.Message
	if err := domain.UnmarshalValue(c.Value, &msg); err != nil {
		logger.Warn("Unreadable secure entry", "room", l.room, "key", c.Key)
		l.startWrongKey(ctx, true)
		return
	}
	text, err := crypto.Decode(msg.Text, l.passphrase)
	if err != nil {
		logger.Warn("Secure entry failed to decode", "room", l.room, "key", c.Key, "error", err.Error())
		l.startWrongKey(ctx, true)
		return
	}
	msg.Text = text
	l.notify.MessageDisplayed(l.room, msg, true)
}

// HandleWrongKey follows the other peer into the wrong-key sequence.
func (l *Lifecycle) HandleWrongKey(ctx context.Context, ev domain.Event) {
	if !l.active || !domain.IsFlagSet(ev) {
		return
	}
	l.startWrongKey(ctx, false)
}

// HandleTerminated closes the session when the other peer terminates. A
// flag this peer raised is cleared once it comes back here, so a watcher
// that only reports distinct snapshots still sees it set.
func (l *Lifecycle) HandleTerminated(ctx context.Context, ev domain.Event) {
	if !domain.IsFlagSet(ev) {
		return
	}
	if l.clearing != nil {
		if err := l.ch.Remove(ctx, domain.TerminatedPath(l.room)); err != nil {
			logger.Warn("Failed to clear terminated flag", "room", l.room, "error", err.Error())
		}
		close(l.clearing)
		l.clearing = nil
	}
	if l.active {
		l.close(ctx, domain.CloseRemote)
	}
}

// Terminate broadcasts termination, wipes the secure log and closes the
// local session. It runs on every exit path, so it writes even when no
// session is open; repeated calls only repeat the idempotent writes.
func (l *Lifecycle) Terminate(ctx context.Context, reason domain.CloseReason) error {
	err := l.Broadcast(ctx)
	l.close(ctx, reason)
	return err
}

// Broadcast raises the terminated flag and wipes the secure log without
// touching local state.
func (l *Lifecycle) Broadcast(ctx context.Context) error {
	var errs []error
	if err := l.ch.Put(ctx, domain.TerminatedPath(l.room), domain.FlagValue(true)); err != nil {
		errs = append(errs, err)
	} else if l.clearing == nil {
		l.clearing = make(chan struct{})
	}
	if err := l.ch.Remove(ctx, domain.SecureMessagesPath(l.room)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Cleared is closed once a raised terminated flag has been cleared. It is
// nil when no flag is pending.
func (l *Lifecycle) Cleared() <-chan struct{} { return l.clearing }

func (l *Lifecycle) startWrongKey(ctx context.Context, detected bool) {
	if l.wrongKey {
		return
	}
	l.wrongKey = true
	l.detector = detected
	if detected {
		if err := l.ch.Put(ctx, domain.WrongKeyPath(l.room), domain.FlagValue(true)); err != nil {
			logger.Error("Failed to raise wrong-key flag", err, "room", l.room)
		}
	}

	epoch := l.epoch
	l.timer = l.clock.AfterFunc(l.grace, func() {
		l.post(func() { l.graceElapsed(epoch) })
	})
	l.notify.WrongKey(l.room)
}

func (l *Lifecycle) graceElapsed(epoch uint64) {
	if !l.active || epoch != l.epoch {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if l.detector {
		if err := l.ch.Remove(ctx, domain.WrongKeyPath(l.room)); err != nil {
			logger.Warn("Failed to clear wrong-key flag", "room", l.room, "error", err.Error())
		}
		l.detector = false
	}
	if err := l.Terminate(ctx, domain.CloseWrongKey); err != nil {
		logger.Error("Terminate after wrong key failed", err, "room", l.room)
	}
}

func (l *Lifecycle) close(ctx context.Context, reason domain.CloseReason) {
	if !l.active {
		return
	}
	if l.detector {
		if err := l.ch.Remove(ctx, domain.WrongKeyPath(l.room)); err != nil {
			logger.Warn("Failed to clear wrong-key flag", "room", l.room, "error", err.Error())
		}
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if err := l.cache.DeletePassphrase(l.room); err != nil {
		logger.Warn("Failed to discard cached passphrase", "room", l.room, "error", err.Error())
	}

	l.active = false
	l.epoch++
	l.passphrase = ""
	l.seen = nil
	l.wrongKey, l.detector = false, false

	logger.Info("Secure session closed", "room", l.room, "reason", string(reason))
	l.notify.SessionClosed(l.room, reason)
	l.onClosed(reason)
}
