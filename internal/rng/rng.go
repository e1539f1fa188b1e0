// Package rng provides the content-seeded deterministic random generator
// used throughout the score expander and voice renderer. Every stream is
// derived from a stable hash of the values that identify it (seed, section
// name, patch name, sample offset, ...) so that two renders of the same
// source with the same seed produce bit-identical output regardless of
// map/goroutine iteration order elsewhere in the program.
package rng

const fnvOffset uint64 = 1469598103934665603
const fnvPrime uint64 = 1099511628211

// Hash64 computes an FNV-1a hash of text, seeded with seed instead of the
// standard FNV offset basis when the caller wants an independent stream.
func Hash64(text string, seed uint64) uint64 {
	hash := seed
	for i := 0; i < len(text); i++ {
		hash ^= uint64(text[i])
		hash *= fnvPrime
	}
	return hash
}

// Hash64Seed is Hash64 with the standard FNV-1a offset basis.
func Hash64Seed(text string) uint64 {
	return Hash64(text, fnvOffset)
}

// Hash64Combine mixes two 64-bit values using a Boost-style golden-ratio
// combine followed by a splitmix64 finalizer.
func Hash64Combine(a, b uint64) uint64 {
	z := a + 0x9e3779b97f4a7c15 + (b << 6) + (b >> 2)
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

// Hash64FromParts combines a base seed with up to four identifying strings.
// Empty parts after a are skipped wherever they appear, mirroring the original's default-argument
// behavior so that callers can omit b/c/d freely.
func Hash64FromParts(seed uint64, a string, rest ...string) uint64 {
	h := Hash64Combine(seed, Hash64Seed(a))
	for _, part := range rest {
		if part == "" {
			continue
		}
		h = Hash64Combine(h, Hash64Seed(part))
	}
	return h
}

// PCG32 is a PCG-XSH-RR 32-bit generator with 64 bits of state, seeded from a
// 64-bit value and an optional stream sequence selector.
type PCG32 struct {
	state     uint64
	increment uint64
}

const defaultSequence uint64 = 0x853c49e6748fea9b
const multiplier uint64 = 6364136223846793005

// NewPCG32 constructs a generator seeded as PCG32(seed) in the original.
func NewPCG32(seed uint64) *PCG32 {
	g := &PCG32{}
	g.Seed(seed, defaultSequence)
	return g
}

// NewPCG32WithSequence seeds the generator with an explicit stream selector.
func NewPCG32WithSequence(seed, sequence uint64) *PCG32 {
	g := &PCG32{}
	g.Seed(seed, sequence)
	return g
}

// Seed reinitializes the generator state.
func (g *PCG32) Seed(seed, sequence uint64) {
	g.state = 0
	g.increment = (sequence << 1) | 1
	g.NextUInt()
	g.state += seed
	g.NextUInt()
}

// NextUInt returns the next 32-bit output of the stream.
func (g *PCG32) NextUInt() uint32 {
	oldState := g.state
	g.state = oldState*multiplier + g.increment
	xorshifted := uint32(((oldState >> 18) ^ oldState) >> 27)
	rot := uint32(oldState >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

// NextUnit returns a float64 in [0, 1]; the output is divided by the
// largest uint32, so 1 itself is reachable.
func (g *PCG32) NextUnit() float64 {
	return float64(g.NextUInt()) / float64(^uint32(0))
}

// Uniform returns a float64 uniformly distributed in [min, max].
func (g *PCG32) Uniform(min, max float64) float64 {
	return min + (max-min)*g.NextUnit()
}
