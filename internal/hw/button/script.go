package button

import "sync"

// Script replays a fixed sequence of readings, one per Current call.
// Once exhausted it keeps returning None.
type Script struct {
	mu    sync.Mutex
	steps []Reading
	pos   int
}

// NewScript builds a Script from readings.
func NewScript(steps ...Reading) *Script {
	return &Script{steps: steps}
}

// Hold returns r repeated n times, for building scripts.
func Hold(r Reading, n int) []Reading {
	out := make([]Reading, n)
	for i := range out {
		out[i] = r
	}
	return out
}

// Click returns a press of one poll followed by one released poll.
func Click(r Reading) []Reading {
	return []Reading{r, None}
}

// Append adds readings to the end of the script.
func (s *Script) Append(steps ...Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

func (s *Script) Current() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.steps) {
		return None
	}
	r := s.steps[s.pos]
	s.pos++
	return r
}

// Remaining returns how many readings have not been consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.pos
}
