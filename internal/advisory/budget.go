package advisory

import (
	"sync"
	"time"

	"github.com/kiosk404/spark/pkg/clock"
)

// FallbackBudget rate-limits templated/baseline emissions over a rolling
// window (I6): the (cap+1)th attempt within the window is rejected and the
// caller must record ReasonFallbackBudget.
type FallbackBudget struct {
	mu     sync.Mutex
	clk    clock.Clock
	cap    int
	window time.Duration
	events []time.Time
}

func NewFallbackBudget(clk clock.Clock, cap int, window time.Duration) *FallbackBudget {
	return &FallbackBudget{clk: clk, cap: cap, window: window}
}

// Reconfigure updates the cap and window applied to future TryConsume
// calls, called once per bridge cycle after a tuneables hot-reload.
func (b *FallbackBudget) Reconfigure(cap int, window time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cap > 0 {
		b.cap = cap
	}
	if window > 0 {
		b.window = window
	}
}

// TryConsume reports whether a fallback emission is currently allowed,
// consuming one slot if so.
func (b *FallbackBudget) TryConsume() bool {
	now := b.clk.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-b.window)
	kept := b.events[:0]
	for _, t := range b.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.events = kept

	if len(b.events) >= b.cap {
		return false
	}
	b.events = append(b.events, now)
	return true
}

// PacketCache is the write-through cache of retrieved candidates keyed by
// context fingerprint, with TTL-bounded entries (spec's Packet type).
type PacketCache struct {
	mu  sync.Mutex
	ttl time.Duration
	clk clock.Clock
	m   map[string]Packet
}

func NewPacketCache(clk clock.Clock, ttl time.Duration) *PacketCache {
	return &PacketCache{clk: clk, ttl: ttl, m: map[string]Packet{}}
}

// Get returns a non-expired packet for fp, if any.
func (p *PacketCache) Get(fp string) (Packet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pkt, ok := p.m[fp]
	if !ok || pkt.Expired(p.clk.Now()) {
		return Packet{}, false
	}
	return pkt, true
}

// Put stores a freshly retrieved candidate set under fp.
func (p *PacketCache) Put(fp string, pkt Packet) {
	pkt.CreatedAt = p.clk.Now()
	if pkt.TTL == 0 {
		pkt.TTL = p.ttl
	}
	p.mu.Lock()
	p.m[fp] = pkt
	p.mu.Unlock()
}
