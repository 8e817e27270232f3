package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

type fakeTokenProvider struct {
	token string
	err   error
}

func (p *fakeTokenProvider) GetToken(ctx context.Context) (string, error) {
	return p.token, p.err
}

var errTokenUnavailable = errors.New("metadata server unreachable")

func TestOIDCAuthenticatorSendsTokenAsPayload(t *testing.T) {
	conn := &fakeConn{replies: []bsoncore.Document{okDoneReply(nil)}}
	a := &oidcAuthenticator{source: "$external", provider: &fakeTokenProvider{token: "tok-123"}}

	if err := a.Auth(context.Background(), conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one command sent, got %d", len(conn.sent))
	}
	payload, err := conn.sent[0].LookupErr("payload")
	if err != nil {
		t.Fatalf("payload lookup: %v", err)
	}
	_, b, _ := payload.BinaryOK()
	if string(b) != "tok-123" {
		t.Fatalf("payload = %q, want %q", b, "tok-123")
	}
}

func TestOIDCAuthenticatorPropagatesTokenFetchError(t *testing.T) {
	conn := &fakeConn{}
	a := &oidcAuthenticator{source: "$external", provider: &fakeTokenProvider{err: errTokenUnavailable}}

	if err := a.Auth(context.Background(), conn); err == nil {
		t.Fatal("expected an error when the token provider fails")
	}
}

func TestCloudProviderForUnknownNameFails(t *testing.T) {
	if _, err := cloudProviderFor("not-a-provider", ""); err == nil {
		t.Fatal("expected an error for an unrecognized provider name")
	}
}

func TestCloudProviderForDefaultsToGCP(t *testing.T) {
	p, err := cloudProviderFor("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*gcpTokenProvider); !ok {
		t.Fatalf("expected *gcpTokenProvider, got %T", p)
	}
}
