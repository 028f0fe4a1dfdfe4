package sampling

import (
	"hash/fnv"
	"math/rand"
)

// Derive returns the sub-seed for stream n of a parent seed. Sub-seeds are
// assigned up front (one per patient, then one per document, then one per
// field) so parallel workers never share a mutable rand source and results
// do not depend on scheduling.
func Derive(seed int64, n uint64) int64 {
	return int64(mix64(uint64(seed) ^ (n+1)*0x9E3779B97F4A7C15))
}

// FieldSeed derives the seed for a single field's draw within a document
// stream. Hashing the field path keeps a field's value stable when sibling
// fields are added to a template.
func FieldSeed(docSeed int64, fieldPath string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fieldPath))
	return Derive(docSeed, h.Sum64())
}

// New returns a rand source for a derived seed.
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// mix64 is the splitmix64 finalizer. It spreads adjacent inputs across the
// whole state space so patient 0 and patient 1 get unrelated streams.
func mix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return x
}
