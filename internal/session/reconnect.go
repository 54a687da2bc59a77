package session

import (
	"context"
	"time"

	"github.com/rickgao/ems-client/internal/protocol"
)

// ReconnectPolicy controls automatic token re-login after a session that
// reached Connected drops.
type ReconnectPolicy struct {
	Enabled   bool
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// backoff doubles from base up to max.
type backoff struct {
	base time.Duration
	max  time.Duration
	next time.Duration
}

func newBackoff(p ReconnectPolicy) *backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := p.MaxDelay
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, next: base}
}

// Next returns the current delay and doubles the following one.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset starts over from the base delay.
func (b *backoff) Reset() {
	b.next = b.base
}

// scheduleRetryLocked arms a token re-login after the next backoff delay.
func (m *Manager) scheduleRetryLocked(parent context.Context) {
	if !m.opts.Reconnect.Enabled || parent.Err() != nil {
		return
	}
	m.stopRetryLocked()

	gen := m.retryGen
	wait := m.backoff.Next()
	m.logger.Info("scheduling reconnect", "wait", wait)
	m.retry = time.AfterFunc(wait, func() {
		m.reconnect(parent, gen)
	})
}

// stopRetryLocked cancels a pending reconnect. Timers that already fired see
// a newer generation and give up.
func (m *Manager) stopRetryLocked() {
	m.retryGen++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) reconnect(ctx context.Context, gen uint64) {
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	stale := gen != m.retryGen || m.current != nil
	m.mu.Unlock()
	if stale {
		return
	}

	token, ok := m.storedToken(ctx)
	if !ok {
		m.logger.Info("no stored token, reconnect abandoned")
		return
	}

	m.logger.Info("attempting reconnection")
	m.start(ctx, protocol.TokenLogin(token), true, gen)
}
