package slug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestGenerator_Generate(t *testing.T) {
	gen := NewGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(s) != GeneratedLength {
			t.Fatalf("Generate() length = %d, want %d", len(s), GeneratedLength)
		}
		for _, r := range s {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("Generate() = %q contains %q outside the alphabet", s, r)
			}
		}
		seen[s] = true
	}

	if len(seen) < 990 {
		t.Errorf("Generate() produced only %d distinct slugs out of 1000", len(seen))
	}
}

func TestGenerator_RejectsBiasedBytes(t *testing.T) {
	// 248..255 must be skipped; 0, 1, 61 and 62 map to A, B, 9 and A.
	src := bytes.NewReader([]byte{255, 248, 0, 250, 1, 61, 62, 249, 0, 0, 0, 0})
	gen := NewGeneratorWithSource(src, 5)

	got, err := gen.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "AB9AA" {
		t.Errorf("Generate() = %q, want %q", got, "AB9AA")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy gone") }

func TestGenerator_SourceError(t *testing.T) {
	gen := NewGeneratorWithSource(failingReader{}, 6)
	if _, err := gen.Generate(); err == nil {
		t.Fatal("Generate() expected error from failing source")
	}
}

func TestGenerator_Uniformity(t *testing.T) {
	gen := NewGenerator()
	counts := make(map[byte]int)

	const draws = 62 * 400
	for i := 0; i < draws/GeneratedLength; i++ {
		s, err := gen.Generate()
		if err != nil {
			t.Fatal(err)
		}
		for j := 0; j < len(s); j++ {
			counts[s[j]]++
		}
	}

	if len(counts) != len(alphabet) {
		t.Fatalf("saw %d symbols, want %d", len(counts), len(alphabet))
	}
	for sym, n := range counts {
		// Expected ~400 per symbol; this only catches gross skew.
		if n < 200 || n > 650 {
			t.Errorf("symbol %q drawn %d times", sym, n)
		}
	}
}
