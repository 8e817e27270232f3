// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"fmt"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

// SaslClient drives one side of a SASL conversation.
type SaslClient interface {
	Start() (mechanism string, payload []byte, err error)
	Next(challenge []byte) (payload []byte, err error)
	Completed() bool
}

// saslResponse is the shape common to saslStart and saslContinue replies.
type saslResponse struct {
	ConversationID int32
	Code           int32
	Done           bool
	Payload        []byte
}

func parseSaslResponse(reply bsoncore.Document) (saslResponse, error) {
	var resp saslResponse
	if v, err := reply.LookupErr("conversationId"); err == nil {
		if n, ok := v.AsInt64(); ok {
			resp.ConversationID = int32(n)
		}
	}
	if v, err := reply.LookupErr("code"); err == nil {
		resp.Code = v.Int32()
	}
	if v, err := reply.LookupErr("done"); err == nil {
		resp.Done, _ = v.BooleanOK()
	}
	if v, err := reply.LookupErr("payload"); err == nil {
		_, resp.Payload, _ = v.BinaryOK()
	}
	return resp, nil
}

// conductSaslConversation runs a full saslStart/saslContinue exchange over
// conn, driving client until the server reports done and client agrees.
func conductSaslConversation(ctx context.Context, conn Connection, db string, mechanism string, client SaslClient) error {
	if db == "" {
		db = defaultAuthDB
	}

	mech, payload, err := client.Start()
	if err != nil {
		return newAuthError(mechanism, err)
	}

	cmd := bsoncore.NewDocumentBuilder().
		AppendInt32("saslStart", 1).
		AppendString("mechanism", mech).
		AppendBinary("payload", 0x00, payload).
		AppendString("$db", db).
		Build()
	resp, err := runSaslCommand(ctx, conn, "saslStart", cmd)
	if err != nil {
		return newAuthError(mechanism, err)
	}

	cid := resp.ConversationID
	for {
		if resp.Code != 0 {
			return newAuthError(mechanism, fmt.Errorf("server returned code %d", resp.Code))
		}
		if resp.Done && client.Completed() {
			return nil
		}

		payload, err = client.Next(resp.Payload)
		if err != nil {
			return newAuthError(mechanism, err)
		}
		if resp.Done && client.Completed() {
			return nil
		}

		cmd := bsoncore.NewDocumentBuilder().
			AppendInt32("saslContinue", 1).
			AppendInt32("conversationId", cid).
			AppendBinary("payload", 0x00, payload).
			AppendString("$db", db).
			Build()
		resp, err = runSaslCommand(ctx, conn, "saslContinue", cmd)
		if err != nil {
			return newAuthError(mechanism, err)
		}
	}
}

func runSaslCommand(ctx context.Context, conn Connection, name string, cmd bsoncore.Document) (saslResponse, error) {
	if _, err := conn.WriteCommand(ctx, name, cmd); err != nil {
		return saslResponse{}, err
	}
	reply, err := conn.ReadReply(ctx)
	if err != nil {
		return saslResponse{}, err
	}
	if okVal, err := reply.LookupErr("ok"); err == nil {
		if n, _ := okVal.AsInt64(); n != 1 {
			if msg, err := reply.LookupErr("errmsg"); err == nil {
				s, _ := msg.StringValueOK()
				return saslResponse{}, fmt.Errorf("%s", s)
			}
			return saslResponse{}, fmt.Errorf("%s failed", name)
		}
	}
	return parseSaslResponse(reply)
}
