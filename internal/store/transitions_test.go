package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"call_next", "waiting", true},
		{"call_next", "called", false},
		{"call_next", "serving", false},
		{"call", "waiting", true},
		{"call", "called", true},
		{"call", "serving", false},
		{"start_serving", "called", true},
		{"start_serving", "waiting", false},
		{"finish", "serving", true},
		{"finish", "called", true},
		{"finish", "waiting", false},
		{"no_show", "called", true},
		{"no_show", "waiting", false},
		{"recall", "called", true},
		{"recall", "done", false},
		{"transfer", "waiting", true},
		{"transfer", "called", true},
		{"transfer", "serving", true},
		{"transfer", "done", false},
		{"transfer", "no_show", false},
		{"unknown", "waiting", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}
