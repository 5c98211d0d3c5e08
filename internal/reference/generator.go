// Package reference produces short booking codes that passengers can read out
// over the phone. Uniqueness is the caller's job.
package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	Length = 6
	// Alphabet leaves out 0/O, 1/I/L.
	Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

type Generator struct {
	alphabet string
	length   int
}

func NewGenerator() *Generator {
	return &Generator{alphabet: Alphabet, length: Length}
}

func (g *Generator) Generate() (string, error) {
	size := big.NewInt(int64(len(g.alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate reference: %w", err)
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Normalize makes lookups case-insensitive.
func Normalize(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

func Valid(ref string) bool {
	if len(ref) != Length {
		return false
	}
	for _, r := range ref {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
