package embedding

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf16"
)

// whitespaceRe matches the ECMAScript \s class, which is wider than RE2's.
var whitespaceRe = regexp.MustCompile(`[\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]+`)

// Fallback computes a deterministic hash-style embedding of length dim.
// Each UTF-16 code unit of each word adds 1/(words+1) to a bucket chosen by
// (code * (charIndex+1) * (wordIndex+1)) mod dim, and the result is L2-normalised.
// Leading or trailing whitespace yields empty words that still take an index.
func Fallback(text string, dim int) []float64 {
	vec := make([]float64, dim)
	if dim <= 0 {
		return vec
	}
	words := whitespaceRe.Split(strings.ToLower(text), -1)
	weight := 1 / float64(len(words)+1)
	for w, word := range words {
		for c, code := range utf16.Encode([]rune(word)) {
			pos := (int(code) * (c + 1) * (w + 1)) % dim
			vec[pos] += weight
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
