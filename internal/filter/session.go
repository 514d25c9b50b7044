package filter

import (
	"errors"
	"fmt"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

// ErrSessionClosed is returned when a session is used after Submit.
var ErrSessionClosed = errors.New("filter: session already submitted")

// Session records one execution pass. Nodes encode into its command buffer
// as they are pulled; Submit commits the buffer, waits for the device and
// closes the session. A session must not be shared between goroutines.
type Session struct {
	ctx *Context
	id  uint64
	cb  gpu.CommandBuffer

	encoded   []*Node
	submitted bool
	completed bool
	err       error
}

func (s *Session) ID() uint64 { return s.id }

// Dispatches returns how many passes have been encoded so far.
func (s *Session) Dispatches() int { return len(s.encoded) }

// Err returns the error that aborted the pass, if any.
func (s *Session) Err() error { return s.err }

// holds reports whether output encoded in s can be read from other. That is
// the case within s itself and, once s completed, in any later session.
// Work encoded in a session that was never submitted is not.
func (s *Session) holds(other *Session) bool {
	return s != nil && (s == other || s.completed)
}

func (s *Session) usable() error {
	if s.submitted {
		return ErrSessionClosed
	}
	return s.err
}

// fail records the first error of the pass and returns err.
func (s *Session) fail(err error) error {
	if err != nil && s.err == nil {
		s.err = err
	}
	return err
}

func (s *Session) encode(n *Node, record func(enc gpu.ComputeEncoder)) error {
	if err := s.usable(); err != nil {
		return err
	}
	enc, err := s.cb.ComputeEncoder()
	if err != nil {
		return s.fail(fmt.Errorf("filter: failed to create encoder for %s: %w", n.label, err))
	}
	record(enc)
	if err := enc.EndEncoding(); err != nil {
		return s.fail(fmt.Errorf("filter: failed to encode %s: %w", n.label, err))
	}
	s.encoded = append(s.encoded, n)
	return nil
}

// Submit commits the command buffer and waits for it to complete. It can be
// called once; a failed pass invalidates every node it encoded.
func (s *Session) Submit() error {
	if s.submitted {
		return ErrSessionClosed
	}
	s.submitted = true

	if s.err != nil {
		s.rollback()
		return s.err
	}
	if len(s.encoded) == 0 {
		s.completed = true
		return nil
	}

	err := s.cb.Commit()
	if err == nil {
		err = s.cb.WaitUntilCompleted()
	}
	if err != nil {
		s.err = fmt.Errorf("filter: session %d failed: %w", s.id, err)
		s.rollback()
		return s.err
	}
	s.completed = true
	s.ctx.logger.Debug("session completed", "session", s.id, "dispatches", len(s.encoded))
	return nil
}

func (s *Session) rollback() {
	for _, n := range s.encoded {
		n.invalidate()
	}
	s.ctx.logger.Warn("session aborted", "session", s.id, "invalidated", len(s.encoded), "error", s.err)
}
