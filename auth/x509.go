package auth

import (
	"context"
	"fmt"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

// MongoDBX509 is the mechanism name for certificate-based authentication.
const MongoDBX509 = "MONGODB-X509"

func newMongoDBX509Authenticator(cred *Cred) (Authenticator, error) {
	return &x509Authenticator{username: cred.Username}, nil
}

// x509Authenticator authenticates using the client certificate already
// presented during the TLS handshake; the username is optional from 3.4 on
// since the server can read it from the certificate's subject itself.
type x509Authenticator struct {
	username string
}

func (a *x509Authenticator) Auth(ctx context.Context, conn Connection) error {
	b := bsoncore.NewDocumentBuilder().
		AppendInt32("authenticate", 1).
		AppendString("mechanism", MongoDBX509)
	if a.username != "" {
		b.AppendString("user", a.username)
	}
	b.AppendString("$db", "$external")
	cmd := b.Build()

	if _, err := conn.WriteCommand(ctx, "authenticate", cmd); err != nil {
		return newAuthError(MongoDBX509, err)
	}
	reply, err := conn.ReadReply(ctx)
	if err != nil {
		return newAuthError(MongoDBX509, err)
	}
	if okVal, err := reply.LookupErr("ok"); err == nil {
		if n, _ := okVal.AsInt64(); n != 1 {
			msg, _ := reply.LookupErr("errmsg")
			s, _ := msg.StringValueOK()
			return newAuthError(MongoDBX509, fmt.Errorf("%s", s))
		}
	}
	return nil
}
