package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/value"
)

// RNG wraps a seeded math/rand source. It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic fixtures
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Key returns a random 16 byte record key.
func (r *RNG) Key() model.Key {
	return model.Key(r.Bytes(16))
}

// Value returns a random value of a random kind, null included.
func (r *RNG) Value() value.Value {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.rand.Intn(6) {
	case 0:
		return value.Null()
	case 1:
		return value.Bool(r.rand.Intn(2) == 1)
	case 2:
		return value.Int(r.rand.Int63n(2000) - 1000)
	case 3:
		return value.Float(r.rand.NormFloat64() * 100)
	case 4:
		return value.String(r.wordLocked(1 + r.rand.Intn(8)))
	default:
		b := make([]byte, r.rand.Intn(8))
		_, _ = r.rand.Read(b)
		return value.Bytes(b)
	}
}

// Word returns a lowercase ASCII word of length n.
func (r *RNG) Word(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wordLocked(n)
}

func (r *RNG) wordLocked(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + r.rand.Intn(26))
	}
	return string(b)
}

// Zipf returns a Zipfian-distributed value in [0, n), P(k) ∝ 1/k^s.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}
	return n - 1
}

// Shuffle permutes n elements with swap.
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(n, swap)
}
