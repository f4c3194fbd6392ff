package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	h := NewHub()
	a := h.NewConnection(nil, "a@b.com", "10.0.0.1")
	b := h.NewConnection(nil, "a@b.com", "10.0.0.2")
	c := h.NewConnection(nil, "c@d.com", "10.0.0.3")

	h.Register(a)
	h.Register(b)
	h.Register(c)
	assert.Equal(t, 3, h.ConnectionCount())
	assert.Equal(t, 2, h.SessionCount())

	h.Broadcast("a@b.com", []byte("hi"))
	assert.Equal(t, []byte("hi"), <-a.Send)
	assert.Equal(t, []byte("hi"), <-b.Send)
	assert.Len(t, c.Send, 0)

	h.Unregister(a)
	h.Unregister(a)
	assert.Equal(t, 2, h.ConnectionCount())

	_, open := <-a.Send
	assert.False(t, open)

	h.CloseAll()
	assert.Zero(t, h.ConnectionCount())
	assert.Zero(t, h.SessionCount())
	assert.NoError(t, h.SendJSONToConnection(b, map[string]string{"type": "error"}))
}
