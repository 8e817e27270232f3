package auth

import "context"

// Plain is the mechanism name for PLAIN (LDAP proxy) authentication.
const Plain = "PLAIN"

func newPlainAuthenticator(cred *Cred) (Authenticator, error) {
	source := cred.Source
	if source == "" {
		source = "$external"
	}
	return &plainAuthenticator{source: source, username: cred.Username, password: cred.Password}, nil
}

// plainAuthenticator implements SASL PLAIN: a single round trip carrying
// the authzid, username and password separated by NUL bytes.
type plainAuthenticator struct {
	source, username, password string
}

func (a *plainAuthenticator) Auth(ctx context.Context, conn Connection) error {
	return conductSaslConversation(ctx, conn, a.source, Plain, a)
}

func (a *plainAuthenticator) Start() (string, []byte, error) {
	payload := []byte("\x00" + a.username + "\x00" + a.password)
	return Plain, payload, nil
}

func (a *plainAuthenticator) Next(challenge []byte) ([]byte, error) {
	return nil, nil
}

func (a *plainAuthenticator) Completed() bool { return true }
