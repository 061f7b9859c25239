package slug

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	GeneratedLength = 6
	alphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Bytes at or above this bound are rejected so that b % 62 is uniform:
	// 248 = 4 * 62 is the largest multiple of 62 that fits in a byte.
	rejectionBound = 256 - 256%len(alphabet)
)

// Generator draws random slugs from a byte source.
type Generator struct {
	source io.Reader
	length int
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{source: rand.Reader, length: GeneratedLength}
}

// NewGeneratorWithSource is used by tests to make draws deterministic.
func NewGeneratorWithSource(source io.Reader, length int) *Generator {
	if length <= 0 {
		length = GeneratedLength
	}
	return &Generator{source: source, length: length}
}

// Generate returns a slug of the configured length over [A-Za-z0-9].
func (g *Generator) Generate() (string, error) {
	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)

	for len(out) < g.length {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectionBound {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == g.length {
				break
			}
		}
	}

	return string(out), nil
}
