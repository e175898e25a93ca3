package placement

import "unicode/utf16"

const (
	hashSeed       = 7
	hashMultiplier = 31
	hashModulus    = 1000000007
)

// Hash is the polynomial rolling hash over the UTF-16 code units of s. Rendered layouts
// depend on these exact constants; changing any of them moves every bubble.
func Hash(s string) int64 {
	acc := int64(hashSeed)
	for _, c := range utf16.Encode([]rune(s)) {
		acc = (acc*hashMultiplier + int64(c)) % hashModulus
	}
	return acc
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
