package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session carries the per-invocation mutable state of an interaction
// sequence: the browsing context it belongs to, the last emitted cursor
// position, and its own RNG. The Simulator itself holds no cursor state, so
// one cached Simulator can serve concurrent solves across independent
// browsing contexts.
type Session struct {
	ID        string
	ContextID string

	mu     sync.Mutex
	cursor Vector2D
	rng    *rand.Rand
}

// NewSession creates an interaction session for the given browsing context.
// The cursor starts at a lightly randomized resting position rather than the
// origin, which no real pointer ever occupies.
func NewSession(contextID string) *Session {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Session{
		ID:        uuid.NewString(),
		ContextID: contextID,
		cursor: Vector2D{
			X: 80 + rng.Float64()*240,
			Y: 80 + rng.Float64()*160,
		},
		rng: rng,
	}
}

// NewSessionWithRand creates a session with a caller supplied RNG, for
// deterministic tests.
func NewSessionWithRand(contextID string, rng *rand.Rand) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ContextID: contextID,
		cursor:    Vector2D{X: 200, Y: 150},
		rng:       rng,
	}
}

// Cursor returns the last emitted cursor position.
func (s *Session) Cursor() Vector2D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Session) setCursor(v Vector2D) {
	s.mu.Lock()
	s.cursor = v
	s.mu.Unlock()
}

// randFloat returns a uniform sample in [0,1) from the session RNG.
func (s *Session) randFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// randNorm returns a standard normal sample from the session RNG.
func (s *Session) randNorm() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.NormFloat64()
}

// randDuration returns a uniform sample in [min,max].
func (s *Session) randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}
