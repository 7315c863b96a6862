package links

import (
	"strings"
	"testing"
)

func TestCryptoCodeGeneratorGenerate(t *testing.T) {
	g := NewCryptoCodeGenerator()

	t.Run("correct length", func(t *testing.T) {
		code, err := g.Generate(7)
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 7 {
			t.Errorf("got length %d, want 7", len(code))
		}
	})

	t.Run("base62 alphabet only", func(t *testing.T) {
		code, err := g.Generate(100)
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range code {
			if !strings.ContainsRune(base62Alphabet, c) {
				t.Errorf("code contains non-base62 char: %q", c)
			}
		}
	})

	t.Run("zero length uses fallback", func(t *testing.T) {
		code, err := g.Generate(0)
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 7 {
			t.Errorf("got length %d, want 7 (fallback)", len(code))
		}
	})

	t.Run("negative length uses fallback", func(t *testing.T) {
		code, err := g.Generate(-5)
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 7 {
			t.Errorf("got length %d, want 7 (fallback)", len(code))
		}
	})

	t.Run("uniqueness over 100 calls", func(t *testing.T) {
		seen := make(map[string]struct{}, 100)
		for i := 0; i < 100; i++ {
			code, err := g.Generate(10)
			if err != nil {
				t.Fatal(err)
			}
			if _, exists := seen[code]; exists {
				t.Fatalf("duplicate code on iteration %d: %q", i, code)
			}
			seen[code] = struct{}{}
		}
	})
}
