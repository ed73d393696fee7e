package advisory

import (
	"testing"
	"time"

	"github.com/kiosk404/spark/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestFallbackBudgetRejectsAfterCap(t *testing.T) {
	stepped := &clock.Stepped{Start: time.Unix(1_700_000_000, 0), Step: time.Second}
	b := NewFallbackBudget(stepped, 2, time.Minute)

	assert.True(t, b.TryConsume())
	assert.True(t, b.TryConsume())
	assert.False(t, b.TryConsume(), "third attempt within the window must be rejected")
}

func TestFallbackBudgetReleasesSlotsOutsideWindow(t *testing.T) {
	stepped := &clock.Stepped{Start: time.Unix(1_700_000_000, 0), Step: time.Minute}
	b := NewFallbackBudget(stepped, 1, 30*time.Second)

	assert.True(t, b.TryConsume())
	assert.True(t, b.TryConsume(), "the 1-minute step exceeds the 30s window, so the prior slot expired")
}

func TestFallbackBudgetReconfigureIgnoresZeroValues(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	b := NewFallbackBudget(clk, 1, time.Minute)
	b.Reconfigure(0, 0) // zero values must not clobber existing config
	assert.True(t, b.TryConsume())
	assert.False(t, b.TryConsume(), "cap must still be 1 after a no-op reconfigure")
}

func TestPacketCacheExpiresEntries(t *testing.T) {
	stepped := &clock.Stepped{Start: time.Unix(1_700_000_000, 0), Step: time.Minute}
	c := NewPacketCache(stepped, 30*time.Second)

	c.Put("fp1", Packet{Fingerprint: "fp1"})
	_, ok := c.Get("fp1")
	assert.False(t, ok, "the 1-minute step between Put and Get exceeds the 30s TTL")
}

func TestPacketCacheReturnsFreshEntry(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	c := NewPacketCache(clk, time.Minute)

	c.Put("fp1", Packet{Fingerprint: "fp1"})
	pkt, ok := c.Get("fp1")
	assert.True(t, ok)
	assert.Equal(t, "fp1", pkt.Fingerprint)
}
