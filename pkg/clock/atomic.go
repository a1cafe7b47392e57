package clock

import "sync/atomic"

// Sequence hands out strictly increasing ticks. The zero value is ready to use
// and the first tick is 1, so 0 can mean "never".
type Sequence struct {
	v atomic.Uint64
}

func NewSequence(start uint64) *Sequence {
	var s Sequence
	s.v.Store(start)
	return &s
}

// Next advances the sequence and returns the new tick.
func (s *Sequence) Next() uint64 {
	return s.v.Add(1)
}

// Current returns the last tick handed out.
func (s *Sequence) Current() uint64 {
	return s.v.Load()
}
