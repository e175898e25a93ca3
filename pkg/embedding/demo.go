// Package embedding produces the placeholder vectors stored with each submission.
//
// The vectors are a pure function of the text and carry no meaning. They exist to fill the
// fixed-width embedding column until a real model is wired in, and must not be used for
// similarity search.
package embedding

import (
	"math"
	"unicode/utf16"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	Dimensions = model.EmbeddingSize

	hashModulus = 1000000
	stride      = 9973
	buckets     = 2000
	scale       = 1000
)

// Normalize decomposes compatibility characters (NFKD) and lowercases the result.
func Normalize(text string) string {
	return cases.Lower(language.Und).String(norm.NFKD.String(text))
}

// Seed is the rolling hash of the normalized text that every dimension derives from.
func Seed(text string) int64 {
	var acc int64
	for _, c := range utf16.Encode([]rune(Normalize(text))) {
		acc = (acc*31 + int64(c)) % hashModulus
	}
	return acc
}

// Generate returns a Dimensions-long vector with values in [-1, 1), rounded to 6 places.
func Generate(text string) []float64 {
	seed := Seed(text)
	vec := make([]float64, Dimensions)
	for i := range vec {
		v := float64((seed+int64(i)*stride)%buckets)/scale - 1
		vec[i] = math.Round(v*1e6) / 1e6
	}
	return vec
}
