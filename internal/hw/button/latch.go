package button

import (
	"sync"
	"time"
)

// Latch is a virtual panel pressed from software (web API, keyboard).
// A press is held for a fixed duration and then released, so the control
// loop sees a normal press edge followed by None.
//
// Pressing the button that is still held releases it first: the next
// Current reads None and the one after starts the new press, so every
// press is a separate edge however fast they come.
type Latch struct {
	mu      sync.Mutex
	now     func() time.Time
	hold    time.Duration
	reading Reading
	until   time.Time
	queue   []Reading // presses waiting behind a release
	gap     bool      // the release before queue[0] has been read
}

// NewLatch creates a virtual panel. now is the loop's time source.
func NewLatch(hold time.Duration, now func() time.Time) *Latch {
	if hold <= 0 {
		hold = 150 * time.Millisecond
	}
	if now == nil {
		now = time.Now
	}
	return &Latch{now: now, hold: hold}
}

// Press holds r down for the configured hold time, replacing any other
// button still held (the panel reports one button at a time). A re-press
// of the held button is queued behind a release.
func (l *Latch) Press(r Reading) {
	r = Sanitize(r)
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	held := l.reading != None && now.Before(l.until)
	if r != None && (len(l.queue) > 0 || (held && l.reading == r)) {
		l.reading = None
		l.queue = append(l.queue, r)
		return
	}
	l.reading = r
	l.until = now.Add(l.hold)
}

// Release lets go of the held button immediately and drops queued presses.
func (l *Latch) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reading = None
	l.queue = nil
	l.gap = false
}

func (l *Latch) Current() Reading {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.reading != None && !now.Before(l.until) {
		l.reading = None
	}
	if l.reading == None && len(l.queue) > 0 {
		if !l.gap {
			l.gap = true
			return None
		}
		l.reading, l.queue, l.gap = l.queue[0], l.queue[1:], false
		l.until = now.Add(l.hold)
	}
	return l.reading
}

// Merge combines several sources: the first non-None reading wins.
// Used to accept both a physical panel and a virtual one.
func Merge(sources ...Source) Source {
	return SourceFunc(func() Reading {
		for _, s := range sources {
			if r := Sanitize(s.Current()); r != None {
				return r
			}
		}
		return None
	})
}
