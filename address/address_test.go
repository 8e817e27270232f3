package address

import "testing"

func TestCanonicalizeAddsDefaultPort(t *testing.T) {
	a := Address("Example.com")
	if got, want := a.Canonicalize(), Address("example.com:27017"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeKeepsExplicitPort(t *testing.T) {
	a := Address("db1:27018")
	if got, want := a.Canonicalize(), Address("db1:27018"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUnixSocketNetwork(t *testing.T) {
	a := Address("/tmp/server.sock")
	if a.Network() != "unix" {
		t.Fatalf("expected unix network, got %s", a.Network())
	}
}
