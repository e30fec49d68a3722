package draw

import (
	"math/rand"
	"time"

	"raffle/internal/models"
)

// RandomSource is the randomness the engine needs. *rand.Rand satisfies it,
// so tests can pass a seeded generator.
type RandomSource interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRandomSource returns a generator seeded once from the current time.
func NewRandomSource() RandomSource {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// shuffled returns a random permutation of entries without touching the input.
func shuffled(rng RandomSource, entries []models.Entry) []models.Entry {
	out := append([]models.Entry(nil), entries...)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// choose picks one entry uniformly. entries must not be empty.
func choose(rng RandomSource, entries []models.Entry) models.Entry {
	return entries[rng.Intn(len(entries))]
}
