package batch

// Sequencer hands out per-batch sequence numbers used in output file names.
// It is not safe for concurrent use.
type Sequencer struct {
	next map[string]int
}

// NewSequencer creates a sequencer starting every batch at zero
func NewSequencer() *Sequencer {
	return &Sequencer{next: make(map[string]int)}
}

// Next returns the next sequence number for batch
func (s *Sequencer) Next(batch string) int {
	seq := s.next[batch]
	s.next[batch] = seq + 1
	return seq
}
