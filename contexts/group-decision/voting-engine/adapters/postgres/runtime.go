package postgresadapter

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Runtime sources the production wiring hands to the voting use cases next to
// the repository.

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator issues session, ballot and event ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(context.Context) (string, error) {
	return uuid.NewString(), nil
}

// RuntimeRandom draws tie-break picks from the process-wide source.
type RuntimeRandom struct{}

func (RuntimeRandom) IntN(n int) int { return rand.IntN(n) }
