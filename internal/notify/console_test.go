package notify_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"gossips/internal/domain"
	"gossips/internal/notify"
)

func TestConsole_TaggedLines(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsole(&buf, "bob", true)

	c.RequestReceived("alicebob", "alice")
	c.MessageDisplayed("alicebob", domain.Message{Text: "hi", SenderID: "alice"}, true)
	c.SessionClosed("alicebob", domain.CloseRemote)

	out := buf.String()
	assert.Contains(t, out, "[bob] alice wants to switch to secure mode")
	assert.Contains(t, out, "[bob] (secure) alice: hi\n")
	assert.Contains(t, out, "Secure mode off (remote).")
}

func TestMulti_FansOut(t *testing.T) {
	a, b := notify.NewRecorder(), notify.NewRecorder()
	m := notify.Multi{a, b}

	m.WrongKey("alicebob")
	m.NegotiationFailed("alicebob", errors.New("boom"))

	for _, r := range []*notify.Recorder{a, b} {
		assert.Equal(t, 1, r.Count(notify.KindWrongKey))
		rec, ok := r.Last(notify.KindNegotiationFailed)
		assert.True(t, ok)
		assert.EqualError(t, rec.Err, "boom")
	}
}
