package filter

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

// ErrCycle is returned when wiring an input would make a provider consume
// its own output.
var ErrCycle = errors.New("filter: wiring would create a cycle")

// Provider yields a texture on demand, encoding whatever upstream work is
// needed into the session. Implementations must be comparable, which in
// practice means pointer types; func and slice providers are rejected when
// wired.
type Provider interface {
	Texture(s *Session) (gpu.Texture, error)
}

// Consumer accepts a provider as the input at index.
type Consumer interface {
	SetInput(index int, p Provider) error
}

// Versioned providers report a generation that changes whenever their output
// does. Providers without it are compared by texture identity.
type Versioned interface {
	Generation() uint64
}

type upstream interface {
	Inputs() []Provider
}

var generations atomic.Uint64

func nextGeneration() uint64 { return generations.Add(1) }

func checkComparable(p Provider) error {
	if !reflect.TypeOf(p).Comparable() {
		return fmt.Errorf("filter: provider of type %T is not comparable", p)
	}
	return nil
}

// checkAcyclic fails if self is reachable from p, or if any provider on the
// way cannot be used as a map key.
func checkAcyclic(p, self Provider) error {
	if p == nil {
		return errors.New("filter: nil provider")
	}
	seen := make(map[Provider]struct{})
	stack := []Provider{p}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		if err := checkComparable(cur); err != nil {
			return err
		}
		if cur == self {
			return ErrCycle
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		if u, ok := cur.(upstream); ok {
			stack = append(stack, u.Inputs()...)
		}
	}
	return nil
}

// Source is a Provider around an already materialised texture, such as one
// loaded from a resource bundle.
type Source struct {
	tex gpu.Texture
	gen uint64
}

func NewSource(tex gpu.Texture) *Source {
	return &Source{tex: tex, gen: nextGeneration()}
}

func (s *Source) Texture(*Session) (gpu.Texture, error) {
	if s.tex == nil {
		return nil, gpu.ComputeFailure("source has no texture")
	}
	return s.tex, nil
}

// SetTexture swaps the texture, invalidating everything downstream.
func (s *Source) SetTexture(tex gpu.Texture) {
	s.tex = tex
	s.gen = nextGeneration()
}

func (s *Source) Generation() uint64 { return s.gen }

func (s *Source) String() string {
	if s.tex == nil {
		return "source(empty)"
	}
	return fmt.Sprintf("source(%d)", s.tex.ID())
}
