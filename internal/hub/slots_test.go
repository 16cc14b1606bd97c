package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtraSlotBypassesCounter(t *testing.T) {
	m := NewSlotManager(1, false)
	m.GrantExtra("vip", true)

	kind := m.Request("vip", false, 1<<20)
	assert.Equal(t, SlotExtra, kind)
	m.Acquire(kind)
	assert.Equal(t, 0, m.Used())

	// A normal request still has the full slot count available.
	kind2 := m.Request("someone-else", false, 1<<20)
	assert.Equal(t, SlotNormal, kind2)
	m.Acquire(kind2)
	assert.Equal(t, 1, m.Used())
}

func TestPerHubEffectiveTotal(t *testing.T) {
	m := NewSlotManager(2, true)
	m.NormalHubs = 2
	assert.Equal(t, 4, m.Total())
}
