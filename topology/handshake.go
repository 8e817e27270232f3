// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/nodaldb/nodal-go-driver/auth"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/wiremessage"
)

// availableCompressors are offered during every handshake; the wire
// connection only ever uses whichever one the server also names back in
// its reply, so holding all three here costs nothing per connection.
var availableCompressors = map[string]wiremessage.Compressor{
	wiremessage.SnappyCompressor{}.Name(): wiremessage.SnappyCompressor{},
	wiremessage.ZlibCompressor{}.Name():   wiremessage.ZlibCompressor{},
	wiremessage.ZstdCompressor{}.Name():   wiremessage.ZstdCompressor{},
}

// handshake runs the hello command and, when cred is non-nil, the
// corresponding SASL/X.509 conversation, over a freshly dialed connection;
// it is the one-time setup every pooled connection goes through before it
// is handed to a caller.
func handshake(ctx context.Context, conn *Connection, appName string, compressors []string, loadBalanced bool, cred *auth.Cred) (description.Server, error) {
	cmd := buildHelloCommand(appName, compressors, loadBalanced)
	start := time.Now()
	if _, err := conn.WriteCommand(ctx, "hello", cmd); err != nil {
		return description.Server{}, fmt.Errorf("topology: handshake write: %w", err)
	}
	reply, err := conn.ReadReply(ctx)
	if err != nil {
		return description.Server{}, fmt.Errorf("topology: handshake read: %w", err)
	}
	desc := parseHelloReply(conn.addr, reply, time.Since(start), true)
	if desc.MaxMessageSize > 0 {
		conn.maxMessageSize = int32(desc.MaxMessageSize)
	}

	negotiateCompressor(conn, desc.Compression)

	if cred != nil {
		authenticator, err := auth.CreateAuthenticator(cred)
		if err != nil {
			return description.Server{}, err
		}
		if err := authenticator.Auth(ctx, conn); err != nil {
			return description.Server{}, err
		}
	}
	return desc, nil
}

// negotiateCompressor picks the first name the server echoed back that this
// driver also has a Compressor for, matching the order the server sent
// them in. A server that names none, or none this build supports, leaves
// the connection uncompressed.
func negotiateCompressor(conn *Connection, serverCompressors []string) {
	for _, name := range serverCompressors {
		if c, ok := availableCompressors[name]; ok {
			conn.selectedCompressor = c
			conn.compressors = map[wiremessage.CompressorID]wiremessage.Compressor{c.ID(): c}
			return
		}
	}
}
