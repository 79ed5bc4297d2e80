package multipool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "IDLE", statusIdle.String())
	assert.Equal(t, "IN_FLIGHT", statusInFlight.String())
	assert.Equal(t, "RETIRED", statusRetired.String())
	assert.Equal(t, "DEAD", statusDead.String())
	assert.Contains(t, status(99).String(), "status(99)")
}

func TestResourceKeyCAS(t *testing.T) {
	k := newResourceKey("K1", statusIdle)
	assert.Equal(t, statusIdle, k.load())

	assert.False(t, k.cas(statusInFlight, statusIdle), "CAS from the wrong pre-state must fail")
	assert.Equal(t, statusIdle, k.load())

	assert.True(t, k.cas(statusIdle, statusInFlight))
	assert.Equal(t, statusInFlight, k.load())

	// A second attempt at the same transition fails: only one CAS can win.
	assert.False(t, k.cas(statusIdle, statusInFlight))
}

func TestNewResourceKeyIdentity(t *testing.T) {
	a := newResourceKey("K1", statusIdle)
	b := newResourceKey("K1", statusIdle)
	assert.Equal(t, a.category, b.category)
	assert.NotEqual(t, a.id, b.id, "distinct keys get distinct identities even for the same category")
}
