package negotiation_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gossips/internal/channel/memory"
	"gossips/internal/domain"
	"gossips/internal/notify"
	"gossips/internal/services/negotiation"
	"gossips/internal/store"
)

const room = domain.RoomID("alicebob")

type side struct {
	m        *negotiation.Machine
	rec      *notify.Recorder
	cache    *store.MemoryStore
	queue    chan func()
	actives  []domain.Role
	abandons int
}

// drain runs one closure posted by a timer.
func (s *side) drain(t *testing.T) {
	t.Helper()
	select {
	case fn := <-s.queue:
		fn()
	case <-time.After(time.Second):
		t.Fatal("nothing posted")
	}
}

type harness struct {
	ctx   context.Context
	ch    *memory.Store
	clock *clock.Mock
	alice *side
	bob   *side
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ctx: context.Background(), ch: memory.New(), clock: clock.NewMock()}
	h.alice = h.newSide("alice")
	h.bob = h.newSide("bob")
	return h
}

func (h *harness) newSide(self domain.PeerID) *side {
	s := &side{rec: notify.NewRecorder(), cache: store.NewMemoryStore(), queue: make(chan func(), 8)}
	s.m = negotiation.New(
		negotiation.Config{Self: self, Room: room},
		h.ch, s.cache, s.rec, h.clock,
		func(fn func()) { s.queue <- fn },
		func(role domain.Role) { s.actives = append(s.actives, role) },
		func(context.Context) error { s.abandons++; return nil },
	)
	return s
}

// event reads path as a subscriber would currently see it.
func (h *harness) event(t *testing.T, path string) domain.Event {
	t.Helper()
	v, ok, err := h.ch.Get(h.ctx, path)
	require.NoError(t, err)
	return domain.Event{Path: path, Value: v, Exists: ok}
}

func requestEvent(t *testing.T, from domain.PeerID, status domain.RequestStatus) domain.Event {
	t.Helper()
	b, err := domain.MarshalValue(domain.SecureRequest{RequesterID: from, Status: status})
	require.NoError(t, err)
	return domain.Event{Path: domain.RequestPath(room), Value: b, Exists: true}
}

func flagEvent(on bool) domain.Event {
	return domain.Event{Path: domain.RendezvousPath(room), Value: domain.FlagValue(on), Exists: true}
}

// handshake runs alice's request and bob's acceptance.
func (h *harness) handshake(t *testing.T) {
	t.Helper()
	require.NoError(t, h.alice.m.Start(h.ctx))
	h.bob.m.HandleRequest(h.ctx, h.event(t, domain.RequestPath(room)))
	require.NoError(t, h.bob.m.Accept(h.ctx))
	h.alice.m.HandleRequest(h.ctx, requestEvent(t, "alice", domain.StatusAccepted))
}

func TestStart_WritesPendingRequest(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.alice.m.Start(h.ctx))
	assert.Equal(t, domain.StateRequestSent, h.alice.m.State())
	assert.Equal(t, domain.RoleInitiator, h.alice.m.Role())

	var req domain.SecureRequest
	ev := h.event(t, domain.RequestPath(room))
	require.True(t, ev.Exists)
	require.NoError(t, domain.UnmarshalValue(ev.Value, &req))
	assert.Equal(t, domain.SecureRequest{RequesterID: "alice", Status: domain.StatusPending}, req)
}

func TestStart_AlreadyPending(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))

	err := h.bob.m.Start(h.ctx)
	assert.ErrorIs(t, err, domain.ErrAlreadyPending)
	assert.Equal(t, domain.StateIdle, h.bob.m.State())

	var req domain.SecureRequest
	require.NoError(t, domain.UnmarshalValue(h.event(t, domain.RequestPath(room)).Value, &req))
	assert.Equal(t, domain.PeerID("alice"), req.RequesterID)

	assert.ErrorIs(t, h.alice.m.Start(h.ctx), domain.ErrAlreadyPending)
}

func TestHandleRequest_PromptsResponderOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))

	ev := h.event(t, domain.RequestPath(room))
	h.bob.m.HandleRequest(h.ctx, ev)
	h.bob.m.HandleRequest(h.ctx, ev)
	h.alice.m.HandleRequest(h.ctx, ev)

	assert.Equal(t, domain.StateRequestReceived, h.bob.m.State())
	assert.Equal(t, domain.RoleResponder, h.bob.m.Role())
	assert.Equal(t, 1, h.bob.rec.Count(notify.KindRequestReceived))
	rec, _ := h.bob.rec.Last(notify.KindRequestReceived)
	assert.Equal(t, domain.PeerID("alice"), rec.From)

	assert.Equal(t, domain.StateRequestSent, h.alice.m.State())
	assert.Zero(t, h.alice.rec.Count(notify.KindRequestReceived))
}

func TestHandleRequest_IgnoresMalformed(t *testing.T) {
	h := newHarness(t)
	h.bob.m.HandleRequest(h.ctx, domain.Event{Path: domain.RequestPath(room), Value: []byte("{"), Exists: true})
	assert.Equal(t, domain.StateIdle, h.bob.m.State())
}

func TestAccept_MutatesThenDeletes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))

	// Observe every write bob makes to the request path.
	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	events, err := h.ch.Watch(ctx, domain.RequestPath(room))
	require.NoError(t, err)
	<-events // current pending value

	h.bob.m.HandleRequest(h.ctx, h.event(t, domain.RequestPath(room)))
	require.NoError(t, h.bob.m.Accept(h.ctx))

	accepted := <-events
	require.True(t, accepted.Exists)
	var req domain.SecureRequest
	require.NoError(t, domain.UnmarshalValue(accepted.Value, &req))
	assert.Equal(t, domain.StatusAccepted, req.Status)
	assert.Equal(t, domain.PeerID("alice"), req.RequesterID)
	assert.False(t, (<-events).Exists)

	flag := h.event(t, domain.RendezvousPath(room))
	assert.True(t, flag.Exists)
	assert.False(t, domain.IsFlagSet(flag))

	assert.Equal(t, domain.StateKeyPending, h.bob.m.State())
	rec, ok := h.bob.rec.Last(notify.KindPassphraseRequired)
	require.True(t, ok)
	assert.Equal(t, domain.RoleResponder, rec.Role)
}

func TestAccept_RequiresReceivedRequest(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.bob.m.Accept(h.ctx), domain.ErrInvalidState)
	assert.ErrorIs(t, h.bob.m.Decline(h.ctx), domain.ErrInvalidState)
}

func TestNegotiation_ResponderKeyFirst(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)
	assert.Equal(t, domain.StateKeyPending, h.alice.m.State())
	rec, _ := h.alice.rec.Last(notify.KindPassphraseRequired)
	assert.Equal(t, domain.RoleInitiator, rec.Role)

	require.NoError(t, h.bob.m.EnterPassphrase(h.ctx, "pw"))
	assert.Equal(t, domain.StateActive, h.bob.m.State())
	assert.Equal(t, []domain.Role{domain.RoleResponder}, h.bob.actives)
	assert.True(t, domain.IsFlagSet(h.event(t, domain.RendezvousPath(room))))

	flag := h.event(t, domain.RendezvousPath(room))
	h.bob.m.HandleRendezvous(h.ctx, flag)
	h.alice.m.HandleRendezvous(h.ctx, flag)
	assert.Equal(t, domain.StateKeyPending, h.alice.m.State())
	assert.False(t, h.event(t, domain.RendezvousPath(room)).Exists, "initiator consumes the flag")

	require.NoError(t, h.alice.m.EnterPassphrase(h.ctx, "pw"))
	assert.Equal(t, domain.StateActive, h.alice.m.State())
	assert.Equal(t, []domain.Role{domain.RoleInitiator}, h.alice.actives)

	for _, s := range []*side{h.alice, h.bob} {
		pass, ok, err := s.cache.LoadPassphrase(room)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "pw", pass)
	}
}

func TestNegotiation_InitiatorKeyFirst(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)

	require.NoError(t, h.alice.m.EnterPassphrase(h.ctx, "pw"))
	assert.Equal(t, domain.StateKeyExchanged, h.alice.m.State())
	assert.Empty(t, h.alice.actives)

	require.NoError(t, h.bob.m.EnterPassphrase(h.ctx, "pw"))
	h.alice.m.HandleRendezvous(h.ctx, flagEvent(true))
	h.alice.m.HandleRendezvous(h.ctx, flagEvent(true))

	assert.Equal(t, domain.StateActive, h.alice.m.State())
	assert.Len(t, h.alice.actives, 1)
}

func TestHandleRendezvous_InfersAcceptance(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))

	h.alice.m.HandleRendezvous(h.ctx, flagEvent(false))
	assert.Equal(t, domain.StateKeyPending, h.alice.m.State())
	assert.Equal(t, 1, h.alice.rec.Count(notify.KindPassphraseRequired))

	// A late accepted status must not prompt again.
	h.alice.m.HandleRequest(h.ctx, requestEvent(t, "alice", domain.StatusAccepted))
	assert.Equal(t, 1, h.alice.rec.Count(notify.KindPassphraseRequired))
}

func TestHandleRendezvous_IgnoredByResponder(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)
	require.NoError(t, h.bob.m.EnterPassphrase(h.ctx, "pw"))

	h.bob.m.HandleRendezvous(h.ctx, flagEvent(true))
	assert.True(t, domain.IsFlagSet(h.event(t, domain.RendezvousPath(room))))
}

func TestDecline(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))
	h.bob.m.HandleRequest(h.ctx, h.event(t, domain.RequestPath(room)))

	require.NoError(t, h.bob.m.Decline(h.ctx))
	assert.Equal(t, domain.StateIdle, h.bob.m.State())
	assert.False(t, h.event(t, domain.RequestPath(room)).Exists)

	h.alice.m.HandleRequest(h.ctx, requestEvent(t, "alice", domain.StatusDeclined))
	h.alice.m.HandleRequest(h.ctx, requestEvent(t, "alice", domain.StatusDeclined))
	assert.Equal(t, domain.StateIdle, h.alice.m.State())
	assert.Equal(t, 1, h.alice.rec.Count(notify.KindRequestDeclined))

	// The room is reusable for a fresh attempt.
	require.NoError(t, h.alice.m.Start(h.ctx))
}

func TestEnterPassphrase_Validation(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.alice.m.EnterPassphrase(h.ctx, "pw"), domain.ErrInvalidState)

	h.handshake(t)
	assert.ErrorIs(t, h.bob.m.EnterPassphrase(h.ctx, ""), domain.ErrEmptyPassphrase)
	assert.Equal(t, domain.StateKeyPending, h.bob.m.State())
}

func TestTimeout_ReturnsInitiatorToIdle(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))

	h.clock.Add(negotiation.DefaultTimeout)
	h.alice.drain(t)

	assert.Equal(t, domain.StateIdle, h.alice.m.State())
	rec, ok := h.alice.rec.Last(notify.KindNegotiationFailed)
	require.True(t, ok)
	assert.ErrorIs(t, rec.Err, domain.ErrNegotiationTimeout)
	assert.False(t, h.event(t, domain.RequestPath(room)).Exists)
}

func TestTimeout_ResponderWaitingForKey(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)
	require.NoError(t, h.bob.m.EnterPassphrase(h.ctx, "pw"))

	h.clock.Add(negotiation.DefaultTimeout)
	h.alice.drain(t)

	assert.Equal(t, domain.StateIdle, h.alice.m.State())
	assert.Equal(t, domain.StateActive, h.bob.m.State())
	assert.Equal(t, 1, h.alice.abandons, "the active responder is told to tear down")
	_, ok, err := h.alice.cache.LoadPassphrase(room)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimeout_StaleTimerIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))
	h.clock.Add(time.Minute)
	h.alice.m.HandleRendezvous(h.ctx, flagEvent(false))

	// The first deadline was replaced when the phase changed.
	h.clock.Add(time.Minute + time.Second)
	select {
	case fn := <-h.alice.queue:
		fn()
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, domain.StateKeyPending, h.alice.m.State())
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.alice.m.Cancel(h.ctx), domain.ErrInvalidState)

	require.NoError(t, h.alice.m.Start(h.ctx))
	h.bob.m.HandleRequest(h.ctx, h.event(t, domain.RequestPath(room)))

	require.NoError(t, h.alice.m.Cancel(h.ctx))
	assert.Equal(t, domain.StateIdle, h.alice.m.State())
	rec, _ := h.alice.rec.Last(notify.KindNegotiationFailed)
	assert.ErrorIs(t, rec.Err, domain.ErrNegotiationCancelled)

	h.bob.m.HandleRequest(h.ctx, h.event(t, domain.RequestPath(room)))
	assert.Equal(t, domain.StateIdle, h.bob.m.State())
	assert.Equal(t, 1, h.bob.rec.Count(notify.KindNegotiationFailed))
	assert.Zero(t, h.alice.abandons, "nothing to tear down before acceptance")
}

func TestCancel_AfterAcceptanceAbandons(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)
	require.NoError(t, h.bob.m.EnterPassphrase(h.ctx, "pw"))
	require.Equal(t, domain.StateActive, h.bob.m.State())

	require.NoError(t, h.alice.m.Cancel(h.ctx))
	assert.Equal(t, domain.StateIdle, h.alice.m.State())
	assert.Equal(t, 1, h.alice.abandons)
	assert.False(t, h.event(t, domain.RendezvousPath(room)).Exists)
}

func TestHandleTerminated_AbandonsAcceptedAttempt(t *testing.T) {
	h := newHarness(t)
	h.handshake(t)
	require.NoError(t, h.alice.m.EnterPassphrase(h.ctx, "pw"))
	require.Equal(t, domain.StateKeyExchanged, h.alice.m.State())

	terminated := domain.Event{Path: domain.TerminatedPath(room), Value: domain.FlagValue(true), Exists: true}
	h.alice.m.HandleTerminated(h.ctx, domain.Event{Path: domain.TerminatedPath(room)})
	assert.Equal(t, domain.StateKeyExchanged, h.alice.m.State(), "a cleared flag is ignored")

	h.alice.m.HandleTerminated(h.ctx, terminated)
	assert.Equal(t, domain.StateIdle, h.alice.m.State())
	rec, ok := h.alice.rec.Last(notify.KindNegotiationFailed)
	require.True(t, ok)
	assert.ErrorIs(t, rec.Err, domain.ErrNegotiationCancelled)
	_, cached, err := h.alice.cache.LoadPassphrase(room)
	require.NoError(t, err)
	assert.False(t, cached)

	// Idle and RequestSent are not affected.
	h.alice.m.HandleTerminated(h.ctx, terminated)
	require.NoError(t, h.alice.m.Start(h.ctx))
	h.alice.m.HandleTerminated(h.ctx, terminated)
	assert.Equal(t, domain.StateRequestSent, h.alice.m.State())
}

func TestReset_OnlyFromActive(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.alice.m.Start(h.ctx))
	h.alice.m.Reset()
	assert.Equal(t, domain.StateRequestSent, h.alice.m.State())

	h.bob.m.HandleRequest(h.ctx, h.event(t, domain.RequestPath(room)))
	require.NoError(t, h.bob.m.Accept(h.ctx))
	require.NoError(t, h.bob.m.EnterPassphrase(h.ctx, "pw"))
	h.bob.m.Reset()
	assert.Equal(t, domain.StateIdle, h.bob.m.State())
	assert.Equal(t, domain.RoleNone, h.bob.m.Role())
}
