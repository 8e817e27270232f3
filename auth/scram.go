package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/xdg-go/scram"
	"github.com/xdg-go/stringprep"
)

// ScramSHA1 and ScramSHA256 are the mechanism names as sent on the wire.
const (
	ScramSHA1   = "SCRAM-SHA-1"
	ScramSHA256 = "SCRAM-SHA-256"
)

func newScramSHA1Authenticator(cred *Cred) (Authenticator, error) {
	// SCRAM-SHA-1 hashes username:mongo:password with MD5 before handing
	// it to the mechanism, a legacy carryover from the MONGODB-CR days.
	h := md5.New()
	fmt.Fprintf(h, "%s:mongo:%s", cred.Username, cred.Password)
	passdigest := hex.EncodeToString(h.Sum(nil))
	return newScramAuthenticator(cred, ScramSHA1, scram.SHA1, passdigest)
}

func newScramSHA256Authenticator(cred *Cred) (Authenticator, error) {
	password, err := stringprep.SASLprep.Prepare(cred.Password)
	if err != nil {
		return nil, newAuthError(ScramSHA256, fmt.Errorf("SASLprep: %w", err))
	}
	return newScramAuthenticator(cred, ScramSHA256, scram.SHA256, password)
}

func newScramAuthenticator(cred *Cred, mechanism string, hashFn scram.HashGeneratorFcn, password string) (Authenticator, error) {
	client, err := hashFn.NewClient(cred.Username, password, "")
	if err != nil {
		return nil, newAuthError(mechanism, err)
	}
	return &scramAuthenticator{mechanism: mechanism, source: cred.Source, client: client}, nil
}

// scramAuthenticator runs the SCRAM SASL conversation via xdg-go/scram,
// which owns the PBKDF2 key derivation and nonce generation internally.
type scramAuthenticator struct {
	mechanism string
	source    string
	client    *scram.Client
	conv      *scram.ClientConversation
}

func (a *scramAuthenticator) Auth(ctx context.Context, conn Connection) error {
	a.conv = a.client.NewConversation()
	return conductSaslConversation(ctx, conn, a.source, a.mechanism, a)
}

func (a *scramAuthenticator) Start() (string, []byte, error) {
	step, err := a.conv.Step("")
	if err != nil {
		return a.mechanism, nil, err
	}
	return a.mechanism, []byte(step), nil
}

func (a *scramAuthenticator) Next(challenge []byte) ([]byte, error) {
	step, err := a.conv.Step(string(challenge))
	if err != nil {
		return nil, err
	}
	return []byte(step), nil
}

func (a *scramAuthenticator) Completed() bool {
	return a.conv.Done()
}
