package providers

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/gatecrash/internal/humanoid"
)

// Session is the call-scoped state of one Solve invocation: the browsing
// context identifier, the humanoid interaction session holding the cursor,
// and the attempt counter. Solvers are cached singletons shared across
// contexts, so none of this may live on the solver itself.
type Session struct {
	ID        string
	ContextID string

	Human *humanoid.Session

	mu       sync.Mutex
	attempts int
	rng      *rand.Rand
}

// NewSession creates the state for one solve against a browsing context.
func NewSession(contextID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Human:     humanoid.NewSession(contextID),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextAttempt increments and returns the attempt counter.
func (s *Session) NextAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

// Attempts returns the number of attempts consumed so far.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Shuffle permutes the slice in place using the session RNG. Grid clicks are
// shuffled so the click order never walks the tiles monotonically.
func (s *Session) Shuffle(indices []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
}
