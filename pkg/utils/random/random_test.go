package random

import (
	"strings"
	"testing"
)

func TestCodeUsesReadableAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := Code(6)
		if len(code) != 6 {
			t.Fatalf("expected 6 characters, got %q", code)
		}
		if strings.ContainsAny(code, "IO01") {
			t.Fatalf("ambiguous character in %q", code)
		}
	}
	if Code(0) != "" {
		t.Fatal("zero length should be empty")
	}
}

func TestDiceRange(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 600; i++ {
		v, err := Dice()
		if err != nil {
			t.Fatalf("dice: %v", err)
		}
		if v < 1 || v > 6 {
			t.Fatalf("dice out of range: %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 6 {
		t.Fatalf("expected every face in 600 rolls, saw %v", seen)
	}
}
