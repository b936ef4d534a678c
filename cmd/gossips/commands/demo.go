package commands

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"gossips/internal/channel/memory"
	"gossips/internal/crypto"
	"gossips/internal/domain"
	"gossips/internal/notify"
	"gossips/internal/services/peer"
	"gossips/internal/store"
)

// demo: alice and bob escalate to secure mode, exchange a message, then hit
// a corrupted entry and both terminate.
func demoCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the alice/bob secure-mode scenario in-process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), grace+30*time.Second)
			defer cancel()
			return runDemo(ctx, cmd.OutOrStdout(), grace)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 2*time.Second, "wrong-key grace period")
	return cmd
}

type demoPeer struct {
	p   *peer.Peer
	rec *notify.Recorder
}

func runDemo(ctx context.Context, w io.Writer, grace time.Duration) error {
	out := &lockedWriter{w: w}
	ch := memory.New()
	join := func(self, other domain.PeerID) (*demoPeer, error) {
		rec := notify.NewRecorder()
		p, err := peer.Open(ctx, peer.Options{
			Self:               self,
			Other:              other,
			Channel:            ch,
			Cache:              store.NewMemoryStore(),
			Notifier:           notify.Multi{notify.NewConsole(out, self, true), rec},
			NegotiationTimeout: cfg.NegotiationTimeout,
			WrongKeyGrace:      grace,
			ResubscribeDelay:   cfg.ResubscribeDelay,
		})
		if err != nil {
			return nil, err
		}
		return &demoPeer{p: p, rec: rec}, nil
	}

	alice, err := join("alice", "bob")
	if err != nil {
		return err
	}
	defer alice.p.Close(context.Background())
	bob, err := join("bob", "alice")
	if err != nil {
		return err
	}
	defer bob.p.Close(context.Background())
	room := alice.p.Room()
	fmt.Fprintf(out, "room: %s\n", room)

	steps := []struct {
		name string
		run  func() error
	}{
		{"alice says hello", func() error { return alice.p.SendPlain(ctx, "hello bob") }},
		{"alice proposes secure mode", func() error { return alice.p.StartSecure(ctx) }},
		{"bob sees the request", func() error { return waitKind(ctx, bob.rec, notify.KindRequestReceived) }},
		{"bob accepts", func() error { return bob.p.Accept(ctx) }},
		{"alice sees the acceptance", func() error { return waitKind(ctx, alice.rec, notify.KindPassphraseRequired) }},
		{"bob enters the key", func() error { return bob.p.EnterPassphrase(ctx, "pw") }},
		{"alice enters the key", func() error { return alice.p.EnterPassphrase(ctx, "pw") }},
		{"alice is secure", func() error { return waitKind(ctx, alice.rec, notify.KindSessionOpened) }},
		{"alice sends hi", func() error { return alice.p.Send(ctx, "hi") }},
		{"bob reads hi", func() error { return waitDisplayed(ctx, bob.rec, "hi") }},
		{"a corrupted entry arrives", func() error { return injectCorrupt(ctx, ch, room) }},
		{"both see the wrong key", func() error {
			if err := waitKind(ctx, alice.rec, notify.KindWrongKey); err != nil {
				return err
			}
			return waitKind(ctx, bob.rec, notify.KindWrongKey)
		}},
		{"both terminate", func() error {
			if err := waitKind(ctx, alice.rec, notify.KindSessionClosed); err != nil {
				return err
			}
			return waitKind(ctx, bob.rec, notify.KindSessionClosed)
		}},
	}
	for i, step := range steps {
		fmt.Fprintf(out, "-- %d. %s\n", i+1, step.name)
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	fmt.Fprintf(out, "secure log entries left: %d\n", len(ch.Keys(domain.SecureMessagesPath(room))))
	return nil
}

func injectCorrupt(ctx context.Context, ch domain.Channel, room domain.RoomID) error {
	ct, err := crypto.Encode("hi", "wrong")
	if err != nil {
		return err
	}
	b, err := domain.MarshalValue(domain.Message{Text: ct, SenderID: "bob"})
	if err != nil {
		return err
	}
	_, err = ch.Push(ctx, domain.SecureMessagesPath(room), b)
	return err
}

func waitKind(ctx context.Context, rec *notify.Recorder, kind notify.Kind) error {
	return poll(ctx, func() bool { return rec.Count(kind) > 0 })
}

func waitDisplayed(ctx context.Context, rec *notify.Recorder, text string) error {
	return poll(ctx, func() bool {
		for _, m := range rec.Displayed(true) {
			if m.Text == text {
				return true
			}
		}
		return false
	})
}

func poll(ctx context.Context, done func() bool) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// lockedWriter lets both peers' consoles and the step log share one writer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
