// Package simhash fingerprints question statements so that near-identical
// ones can be spotted within a run.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// Fingerprint computes a 64-bit SimHash of the given words.
// Each word is hashed with FNV-64a and voted into a bit vector.
func Fingerprint(words []string) uint64 {
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Words returns the lowercased visible words of an HTML fragment. Markup,
// attributes and image sources are ignored.
func Words(fragment string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var words []string
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return words
		case html.TextToken:
			for _, w := range strings.Fields(string(tokenizer.Text())) {
				words = append(words, strings.ToLower(w))
			}
		}
	}
}

// MinWords is the shortest text that gets a fingerprint. A few words share
// too many hash bits for the distance to mean anything.
const MinWords = 8

// Statement fingerprints the visible text of an HTML statement, or returns 0
// when it has fewer than MinWords words.
func Statement(fragment string) uint64 {
	words := Words(fragment)
	if len(words) < MinWords {
		return 0
	}
	return Fingerprint(words)
}

// Pair is two positions whose fingerprints are within the threshold.
type Pair struct {
	A, B     int
	Distance int
}

// NearDuplicates compares every pair of fingerprints and returns those at
// Hamming distance <= threshold, A < B, in input order. Zero fingerprints
// (empty text) never match.
func NearDuplicates(fps []uint64, threshold int) []Pair {
	var pairs []Pair
	for i := range fps {
		if fps[i] == 0 {
			continue
		}
		for j := i + 1; j < len(fps); j++ {
			if fps[j] == 0 {
				continue
			}
			if d := Distance(fps[i], fps[j]); d <= threshold {
				pairs = append(pairs, Pair{A: i, B: j, Distance: d})
			}
		}
	}
	return pairs
}
