package auth

import (
	"testing"

	"github.com/xdg-go/scram"
)

func TestCreateAuthenticatorScramSHA1(t *testing.T) {
	a, err := CreateAuthenticator(&Cred{Mechanism: ScramSHA1, Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sa, ok := a.(*scramAuthenticator)
	if !ok {
		t.Fatalf("expected *scramAuthenticator, got %T", a)
	}
	if sa.mechanism != ScramSHA1 {
		t.Fatalf("mechanism = %q, want %q", sa.mechanism, ScramSHA1)
	}
}

func TestCreateAuthenticatorX509(t *testing.T) {
	a, err := CreateAuthenticator(&Cred{Mechanism: MongoDBX509, Username: "CN=client"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := a.(*x509Authenticator); !ok {
		t.Fatalf("expected *x509Authenticator, got %T", a)
	}
}

func TestScramAuthenticatorConversationLifecycle(t *testing.T) {
	a, err := newScramAuthenticator(&Cred{Username: "u", Source: "admin"}, ScramSHA256, scram.SHA256, "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sa := a.(*scramAuthenticator)
	sa.conv = sa.client.NewConversation()
	if sa.Completed() {
		t.Fatal("a fresh conversation should not be complete")
	}
}
