// Package auth implements the SASL-based authentication mechanisms run
// once per connection, right after the handshake and before the
// connection is handed back to its pool.
package auth

import (
	"context"
	"fmt"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

const defaultAuthDB = "admin"

// Cred holds the credentials and mechanism properties parsed out of a
// connection string's userinfo and authMechanismProperties.
type Cred struct {
	Source      string
	Username    string
	Password    string
	PasswordSet bool
	Mechanism   string
	Props       map[string]string
}

// Authenticator authenticates a connection against a server.
type Authenticator interface {
	Auth(ctx context.Context, conn Connection) error
}

// Connection is the subset of driver.Connection an Authenticator needs:
// just enough to run a raw saslStart/saslContinue command exchange before
// the connection is usable for anything else.
type Connection interface {
	WriteCommand(ctx context.Context, name string, cmd bsoncore.Document) (int32, error)
	ReadReply(ctx context.Context) (bsoncore.Document, error)
}

// CreateAuthenticator builds the Authenticator named by cred.Mechanism, or
// SCRAM-SHA-256 when Mechanism is empty (the server's default since 4.0).
func CreateAuthenticator(cred *Cred) (Authenticator, error) {
	switch cred.Mechanism {
	case "", "SCRAM-SHA-256":
		return newScramSHA256Authenticator(cred)
	case "SCRAM-SHA-1":
		return newScramSHA1Authenticator(cred)
	case "MONGODB-X509":
		return newMongoDBX509Authenticator(cred)
	case "PLAIN":
		return newPlainAuthenticator(cred)
	case OIDC:
		return newOIDCAuthenticator(cred)
	default:
		return nil, fmt.Errorf("auth: unsupported mechanism %q", cred.Mechanism)
	}
}

// Error wraps a failure from an authentication mechanism.
type Error struct {
	Mechanism string
	Wrapped   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth mechanism %s: %s", e.Mechanism, e.Wrapped)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func newAuthError(mechanism string, err error) error {
	return &Error{Mechanism: mechanism, Wrapped: err}
}
