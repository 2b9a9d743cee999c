package session

import "time"

// tokenBucket is a simple refill-on-read bucket.
type tokenBucket struct {
	capacity float64
	rate     float64 // tokens per second
	level    float64
	lastFill time.Time
}

func newTokenBucket(rate float64, burstSeconds float64, now time.Time) tokenBucket {
	capacity := rate * burstSeconds
	if capacity < 1 {
		capacity = 1
	}
	return tokenBucket{
		capacity: capacity,
		rate:     rate,
		level:    capacity,
		lastFill: now,
	}
}

func (b *tokenBucket) take(n float64, now time.Time) bool {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed > 0 {
		b.level += elapsed * b.rate
		if b.level > b.capacity {
			b.level = b.capacity
		}
		b.lastFill = now
	}
	if b.level < n {
		return false
	}
	b.level -= n
	return true
}

// inboundAudioLimiter protects the engine and the upstream transcriber from
// clients that send audio faster than real time. It bounds both chunk rate
// and decoded byte rate.
type inboundAudioLimiter struct {
	frames tokenBucket
	bytes  tokenBucket
}

func newInboundAudioLimiter(maxFPS, maxBytesPerSecond int, burstSeconds float64, now time.Time) *inboundAudioLimiter {
	if maxFPS <= 0 && maxBytesPerSecond <= 0 {
		return nil
	}
	if burstSeconds <= 0 {
		burstSeconds = 2
	}
	l := &inboundAudioLimiter{}
	if maxFPS > 0 {
		l.frames = newTokenBucket(float64(maxFPS), burstSeconds, now)
	}
	if maxBytesPerSecond > 0 {
		l.bytes = newTokenBucket(float64(maxBytesPerSecond), burstSeconds, now)
	}
	return l
}

// allow reports whether a decoded chunk of the given size may pass. A
// rejected chunk is dropped with a log line; the connection stays open.
func (l *inboundAudioLimiter) allow(size int, now time.Time) bool {
	if l == nil {
		return true
	}
	if l.frames.rate > 0 && !l.frames.take(1, now) {
		return false
	}
	if l.bytes.rate > 0 && !l.bytes.take(float64(size), now) {
		return false
	}
	return true
}
