package event

import "testing"

func TestRedact(t *testing.T) {
	cases := map[string]bool{
		"saslStart":    true,
		"authenticate": true,
		"find":         false,
		"insert":       false,
	}
	for name, want := range cases {
		if got := Redact(name); got != want {
			t.Errorf("Redact(%q) = %v, want %v", name, got, want)
		}
	}
}
