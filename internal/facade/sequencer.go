package facade

import "sync/atomic"

// Sequencer issues monotonically increasing request tokens so callers can
// discard responses that arrive after a newer request was made.
type Sequencer struct {
	last atomic.Uint64
}

// Next issues a new token, which becomes the latest.
func (s *Sequencer) Next() uint64 { return s.last.Add(1) }

func (s *Sequencer) Latest() uint64 { return s.last.Load() }

// IsLatest reports whether token is the most recently issued one.
func (s *Sequencer) IsLatest(token uint64) bool { return token == s.last.Load() }
