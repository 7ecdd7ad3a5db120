package undo

// Interval is a closed range [Begin, End] of undolog sequence numbers
// representing one undo/redo step. Replaying the inverse statement of
// every log row in the range, in descending seq order, reverts one
// barrier's worth of change.
//
// Begin <= End always holds for a pushed interval; an empty span is never
// pushed.
type Interval struct {
	Begin int64 `json:"begin" yaml:"begin"`
	End   int64 `json:"end" yaml:"end"`
}

// stack is a LIFO of intervals. Entries are strictly increasing and
// non-overlapping in sequence number from bottom to top.
type stack []Interval

func (s *stack) push(iv Interval) {
	*s = append(*s, iv)
}

// pop removes and returns the top interval. Callers must check empty()
// first; popping an empty stack panics, as that is a bookkeeping bug, not
// a runtime condition.
func (s *stack) pop() Interval {
	old := *s
	iv := old[len(old)-1]
	*s = old[:len(old)-1]
	return iv
}

func (s stack) empty() bool {
	return len(s) == 0
}

// snapshot returns a copy for status reporting.
func (s stack) snapshot() []Interval {
	out := make([]Interval, len(s))
	copy(out, s)
	return out
}
