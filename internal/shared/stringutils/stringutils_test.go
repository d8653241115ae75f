package stringutils

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a much longer title", 8, "a much …"},
		{"héllo wörld", 5, "héll…"},
		{"abc", 1, "a"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestStripThink(t *testing.T) {
	in := "<think>\nweighing tools\n</think>{\"toolName\":\"x\"}"
	if got := StripThink(in); got != `{"toolName":"x"}` {
		t.Errorf("got %q", got)
	}
}
