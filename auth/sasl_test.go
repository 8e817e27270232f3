// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"testing"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

// fakeConn replays a scripted sequence of command replies, one per
// WriteCommand/ReadReply round trip, and records the commands it was sent.
type fakeConn struct {
	replies []bsoncore.Document
	sent    []bsoncore.Document
	pos     int
}

func (c *fakeConn) WriteCommand(ctx context.Context, name string, cmd bsoncore.Document) (int32, error) {
	c.sent = append(c.sent, cmd)
	return int32(len(c.sent)), nil
}

func (c *fakeConn) ReadReply(ctx context.Context) (bsoncore.Document, error) {
	reply := c.replies[c.pos]
	c.pos++
	return reply, nil
}

func okDoneReply(payload []byte) bsoncore.Document {
	return bsoncore.NewDocumentBuilder().
		AppendInt32("ok", 1).
		AppendInt32("conversationId", 1).
		AppendBoolean("done", true).
		AppendBinary("payload", 0x00, payload).
		Build()
}

func errReply(msg string) bsoncore.Document {
	return bsoncore.NewDocumentBuilder().
		AppendInt32("ok", 0).
		AppendString("errmsg", msg).
		Build()
}

func TestConductSaslConversationPlainSucceedsInOneRoundTrip(t *testing.T) {
	conn := &fakeConn{replies: []bsoncore.Document{okDoneReply(nil)}}
	client := &plainAuthenticator{source: "$external", username: "u", password: "p"}

	if err := conductSaslConversation(context.Background(), conn, client.source, Plain, client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one command sent, got %d", len(conn.sent))
	}
}

func TestConductSaslConversationServerError(t *testing.T) {
	conn := &fakeConn{replies: []bsoncore.Document{errReply("bad auth")}}
	client := &plainAuthenticator{source: "$external", username: "u", password: "p"}

	err := conductSaslConversation(context.Background(), conn, client.source, Plain, client)
	if err == nil {
		t.Fatal("expected an error for a non-1 ok reply")
	}
}

func TestPlainAuthenticatorStartPayload(t *testing.T) {
	client := &plainAuthenticator{source: "$external", username: "alice", password: "s3cr3t"}
	_, payload, err := client.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := "\x00alice\x00s3cr3t"
	if string(payload) != want {
		t.Fatalf("payload = %q, want %q", payload, want)
	}
}

func TestCreateAuthenticatorUnsupportedMechanism(t *testing.T) {
	_, err := CreateAuthenticator(&Cred{Mechanism: "NOT-A-MECHANISM"})
	if err == nil {
		t.Fatal("expected an error for an unsupported mechanism")
	}
}

func TestCreateAuthenticatorDefaultsToScramSHA256(t *testing.T) {
	a, err := CreateAuthenticator(&Cred{Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sa, ok := a.(*scramAuthenticator)
	if !ok {
		t.Fatalf("expected *scramAuthenticator, got %T", a)
	}
	if sa.mechanism != ScramSHA256 {
		t.Fatalf("mechanism = %q, want %q", sa.mechanism, ScramSHA256)
	}
}
