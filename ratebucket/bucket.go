// Package ratebucket implements the per-direction token bucket the
// control socket consults before telling the helper how many bytes it may
// transfer, plus a small hierarchical grouping so several sockets can
// share one global limit the way the teacher's fs/accounting token bucket
// and its rc/core/bwlimit call let every transfer share one process-wide
// limiter.
package ratebucket

import (
	"golang.org/x/time/rate"
)

// Direction matches the two directions the helper can ask about.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// maxGrant caps a single grant so it always fits the helper's wire format
// (the helper reads the byte count as a platform int).
const maxGrant = 1<<31 - 1

// Bucket is a per-direction limiter. A nil *rate.Limiter (the zero value)
// means unlimited, matching rate.Inf semantics but letting the zero value
// of Bucket itself be usable unlimited.
type Bucket struct {
	limiter *rate.Limiter
	limit   int64 // configured bytes/sec, 0 == unlimited; kept for the L field of "-DB,L"
	parent  *Group
}

// NewUnlimited returns a Bucket with no limit.
func NewUnlimited() *Bucket {
	return &Bucket{}
}

// NewLimited returns a Bucket capped at bytesPerSec, with a burst equal to
// one second's worth of traffic (mirroring rate.NewLimiter's own idiom,
// grounded in backend/xpan/ratelimiter.go's newRatelimiterClient).
func NewLimited(bytesPerSec int64) *Bucket {
	if bytesPerSec <= 0 {
		return NewUnlimited()
	}
	burst := int(bytesPerSec)
	if burst <= 0 {
		burst = 1
	}
	return &Bucket{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		limit:   bytesPerSec,
	}
}

// SetLimit reconfigures the bucket in place; bytesPerSec <= 0 removes the
// limit.
func (b *Bucket) SetLimit(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		b.limiter = nil
		b.limit = 0
		return
	}
	burst := int(bytesPerSec)
	if burst <= 0 {
		burst = 1
	}
	if b.limiter == nil {
		b.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	} else {
		b.limiter.SetLimit(rate.Limit(bytesPerSec))
		b.limiter.SetBurst(burst)
	}
	b.limit = bytesPerSec
}

// Limit returns the configured bytes/sec limit, or 0 for unlimited.
func (b *Bucket) Limit() int64 {
	return b.limit
}

// Unlimited reports whether the bucket currently has no cap.
func (b *Bucket) Unlimited() bool {
	return b.limiter == nil
}

// Available answers the helper's UsedQuotaRecv/UsedQuotaSend query: how
// many bytes may it move right now. It never blocks. The three cases
// spec.md 4.5 distinguishes:
//   - unlimited: returns (0, true, false)
//   - no tokens right now: returns (0, false, false)
//   - some tokens available: returns (n, false, true) with n already
//     reserved (consumed) from the bucket, capped to maxGrant and to
//     whatever the parent Group (if any) can still spare this instant.
func (b *Bucket) Available() (granted int64, unlimited bool, ok bool) {
	if b.Unlimited() {
		return 0, true, false
	}
	tokens := b.limiter.TokensAt(nowFunc())
	if tokens < 1 {
		return 0, false, false
	}
	granted = int64(tokens)
	if granted > maxGrant {
		granted = maxGrant
	}
	if b.parent != nil {
		granted = b.parent.clamp(granted)
		if granted <= 0 {
			return 0, false, false
		}
	}
	b.limiter.ReserveN(nowFunc(), int(granted))
	if b.parent != nil {
		b.parent.consume(granted)
	}
	return granted, false, true
}

// nowFunc is overridden in tests to make token-bucket behavior
// deterministic without sleeping.
var nowFunc = defaultNow
