// Package testutils holds helpers for randomized tests.
package testutils

import (
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"testing"
	"time"
)

// SeedEnv names the environment variable that pins the seed of every randomized test.
const SeedEnv = "STASH_TEST_SEED"

// NewRand returns a PRNG for one randomized test. The seed is read from SeedEnv when set and taken
// from the clock otherwise. It is always logged so a failing run can be replayed.
func NewRand(tb testing.TB) *rand.Rand {
	tb.Helper()

	seed := uint64(time.Now().UnixNano()) //nolint:gosec // it's ok
	if v := os.Getenv(SeedEnv); v != "" {
		parsed, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			tb.Fatalf("invalid %s %q: %v", SeedEnv, v, err)
		}
		seed = parsed
	}
	tb.Logf("replay with %s=%#x", SeedEnv, seed)

	return rand.New(rand.NewPCG(seed, ^seed)) //nolint:gosec // weak RNG is fine for tests
}

// Weight is implemented by operation enums whose value doubles as their relative frequency.
type Weight interface {
	~uint8 | ~uint16 | ~uint32 | ~int
}

// Weighted picks operations with probability proportional to their value.
type Weighted[T Weight] struct {
	ops        []T
	cumulative []int
}

// NewWeighted builds a picker over ops. Panics if every weight is zero.
func NewWeighted[T Weight](ops ...T) Weighted[T] {
	cumulative := make([]int, len(ops))
	total := 0
	for i, op := range ops {
		total += int(op)
		cumulative[i] = total
	}
	if total == 0 {
		panic("weighted picker needs a positive weight")
	}
	return Weighted[T]{ops: ops, cumulative: cumulative}
}

// Pick returns one operation.
func (w Weighted[T]) Pick(r *rand.Rand) T {
	target := r.IntN(w.cumulative[len(w.cumulative)-1]) + 1
	i, _ := slices.BinarySearch(w.cumulative, target)
	return w.ops[i]
}

// MapKey returns a random key of m. Panics if m is empty.
func MapKey[K comparable, V any](r *rand.Rand, m map[K]V) K {
	skip := r.IntN(len(m))
	for k := range m {
		if skip == 0 {
			return k
		}
		skip--
	}
	panic("empty map")
}

// Subset keeps each item with probability p, preserving order.
func Subset[T any](r *rand.Rand, items []T, p float64) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if r.Float64() < p {
			out = append(out, item)
		}
	}
	return out
}
