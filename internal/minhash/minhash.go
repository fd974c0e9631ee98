// Package minhash computes fixed-width MinHash signatures over shingle
// sets, the core similarity sketch the LSH index and dedupe engine build
// on top of.
package minhash

import (
	"hash/fnv"
	"math/bits"
	"math/rand"

	"github.com/textdedupe/textdedupe/internal/shingle"
)

// Mersenne is the prime modulus used for the permutation arithmetic,
// 2^61 - 1, large enough that collisions across shingle hashes are
// negligible while staying within a uint64.
const Mersenne uint64 = (1 << 61) - 1

// Signature is a fixed-width MinHash signature: one minimum-hash value
// per permutation.
type Signature []uint64

// Permutations holds the deterministic (a, b) coefficient pairs used to
// simulate P independent hash functions over a single FNV-1a hash of
// each shingle, per the standard MinHash construction.
type Permutations struct {
	a []uint64
	b []uint64
}

// NewPermutations generates P permutation coefficient pairs from seed.
// The seed is fixed at the call site to a published constant (never
// wall-clock time) so that two runs over the same corpus produce
// identical signatures.
func NewPermutations(seed int64, p int) Permutations {
	r := rand.New(rand.NewSource(seed))

	perm := Permutations{
		a: make([]uint64, p),
		b: make([]uint64, p),
	}
	for i := 0; i < p; i++ {
		// a in [1, Mersenne-1], b in [0, Mersenne-1]; a must be non-zero
		// so every permutation is a genuine bijection mod Mersenne.
		perm.a[i] = 1 + uint64(r.Int63n(int64(Mersenne-1)))
		perm.b[i] = uint64(r.Int63n(int64(Mersenne)))
	}
	return perm
}

// P returns the number of permutations (the signature width).
func (p Permutations) P() int {
	return len(p.a)
}

// Builder signs shingle sets against a fixed set of permutations.
type Builder struct {
	perm Permutations
}

// NewBuilder creates a Builder bound to the given permutations.
func NewBuilder(perm Permutations) *Builder {
	return &Builder{perm: perm}
}

// emptySentinel is the signature value assigned to every position when a
// document's shingle set is empty (failed tokenization, or too short to
// produce any 5-word shingle). It is Mersenne-1 — the maximum value any
// permutation's minimum could otherwise take, so an empty-set signature
// only coincides with a genuine minimum in the unlikely case that every
// hashed shingle permutes to that maximum, yet still satisfies the
// fixed-width signature contract every downstream consumer expects.
const emptySentinel = Mersenne - 1

// Sign computes the MinHash signature for a shingle set. An empty set
// yields emptySentinel in every position.
func (b *Builder) Sign(shingles shingle.Set) Signature {
	p := b.perm.P()
	sig := make(Signature, p)
	for i := range sig {
		sig[i] = emptySentinel
	}

	if len(shingles) == 0 {
		return sig
	}

	for i := range sig {
		sig[i] = Mersenne
	}

	for g := range shingles {
		h := hashShingle(g)
		for i := 0; i < p; i++ {
			v := permute(b.perm.a[i], b.perm.b[i], h)
			if v < sig[i] {
				sig[i] = v
			}
		}
	}

	return sig
}

// permute applies (a*h + b) mod Mersenne. a and h are both below the
// 2^61-1 modulus, so a*h can exceed 64 bits; the full 128-bit product is
// computed with math/bits.Mul64 and folded back down using the identity
// 2^64 ≡ 8 (mod 2^61-1).
func permute(a, b, h uint64) uint64 {
	hi, lo := bits.Mul64(a, h)
	v := mulMod(hi, lo, Mersenne)
	v = (v + b) % Mersenne
	return v
}

// mulMod reduces a 128-bit product (hi, lo = a*h) modulo the Mersenne
// prime 2^61-1, using 2^64 mod (2^61-1) = 8.
func mulMod(hi, lo uint64, m uint64) uint64 {
	v := (hi%m)*8%m + lo%m
	for v >= m {
		v -= m
	}
	return v
}

// hashShingle computes the 64-bit FNV-1a hash of a shingle string,
// reduced modulo Mersenne so it is a valid input to permute.
func hashShingle(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64() % Mersenne
}

// EstimateSimilarity estimates the Jaccard similarity between two
// documents from their signatures: the fraction of permutation
// positions where the minima agree.
func EstimateSimilarity(a, b Signature) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}
