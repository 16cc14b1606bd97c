package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectToMeRoundTrip(t *testing.T) {
	wire := FormatConnectToMe("Bob", "1.2.3.4:412")
	assert.Equal(t, "$ConnectToMe Bob 1.2.3.4:412|", wire)

	nick, addr, ok := ParseConnectToMe("Bob 1.2.3.4:412")
	require.True(t, ok)
	assert.Equal(t, "Bob", nick)
	assert.Equal(t, "1.2.3.4:412", addr)
}

func TestRevConnectToMeRoundTrip(t *testing.T) {
	wire := FormatRevConnectToMe("me", "Bob")
	assert.Equal(t, "$RevConnectToMe me Bob|", wire)

	from, target, ok := ParseRevConnectToMe("me Bob")
	require.True(t, ok)
	assert.Equal(t, "me", from)
	assert.Equal(t, "Bob", target)
}

func TestRequestConnectToPrecedence(t *testing.T) {
	h := New(Options{Nick: "me"})

	wire, err := h.RequestConnectTo("Bob", "1.2.3.4:412", false, true)
	require.NoError(t, err)
	assert.Equal(t, "$ConnectToMe Bob 1.2.3.4:412|", wire)

	wire, err = h.RequestConnectTo("Bob", "1.2.3.4:412", true, false)
	require.NoError(t, err)
	assert.Equal(t, "$RevConnectToMe me Bob|", wire)

	_, err = h.RequestConnectTo("Bob", "1.2.3.4:412", true, true)
	assert.Equal(t, ErrBothPassive, err)
}

func TestGetPassEntersPasswordState(t *testing.T) {
	h := New(Options{Nick: "me", Password: "secret"})
	wire := h.HandleGetPass()
	assert.Equal(t, "$MyPass secret|", wire)
	assert.Equal(t, StatePassword, h.State)
}
