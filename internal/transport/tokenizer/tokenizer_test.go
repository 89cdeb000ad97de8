package tokenizer

import "testing"

func TestHeuristic_Count(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"one_rune", "a", 1},
		{"four_runes", "abcd", 1},
		{"five_runes", "abcde", 2},
		{"multibyte", "héllo wörld!", 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := (Heuristic{}).Count(tc.in); got != tc.want {
				t.Errorf("Count(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestHeuristic_Monotonic(t *testing.T) {
	prev := 0
	s := ""
	for range 64 {
		s += "x"
		got := (Heuristic{}).Count(s)
		if got < prev {
			t.Fatalf("count decreased from %d to %d at length %d", prev, got, len(s))
		}
		prev = got
	}
}
