// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/wiremessage"
)

// defaultMaxMessageSize is the ceiling a connection starts with, until the
// handshake's hello reply replaces it with the server's maxMessageSizeBytes;
// InvalidArgument is raised before any I/O for commands that would exceed
// the server's actual limit (set after handshake).
const defaultMaxMessageSize = 48 * 1000 * 1000

// Connection is a single TCP (or Unix-domain) connection to a server,
// speaking the OP_MSG wire protocol. It is not safe for concurrent use: the
// executor serializes send/receive per checked-out connection.
type Connection struct {
	addr address.Address
	id   string
	nc   net.Conn

	tlsConfig *tls.Config

	requestIDCounter int32

	compressors        map[wiremessage.CompressorID]wiremessage.Compressor
	selectedCompressor wiremessage.Compressor
	maxMessageSize     int32

	// poisoned marks a connection that hit an I/O error or a malformed
	// reply; the pool tracks generations on its pooledConnection wrapper.
	poisoned bool

	connectTimeout time.Duration
	socketTimeout  time.Duration
}

func newConnection(addr address.Address, id string, tlsConfig *tls.Config) *Connection {
	return &Connection{
		addr:           addr,
		id:             id,
		maxMessageSize: defaultMaxMessageSize,
		connectTimeout: 30 * time.Second,
		tlsConfig:      tlsConfig,
	}
}

// connect dials the server, upgrading to TLS first when tlsConfig is set, so
// the hello/isWritablePrimary handshake the caller drives afterward
// (handshake.go for pooled connections, server.go for the monitoring
// connection, both using WriteCommand/ReadReply below) always runs over the
// final transport.
func (c *Connection) connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: c.connectTimeout}
	nc, err := dialer.DialContext(ctx, c.addr.Network(), string(c.addr))
	if err != nil {
		return fmt.Errorf("topology: dial %s: %w", c.addr, err)
	}
	if c.tlsConfig != nil {
		tlsConn := tls.Client(nc, c.tlsConfig)
		if dl, ok := ctx.Deadline(); ok {
			tlsConn.SetDeadline(dl)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			nc.Close()
			return fmt.Errorf("topology: TLS handshake with %s: %w", c.addr, err)
		}
		tlsConn.SetDeadline(time.Time{})
		nc = tlsConn
	}
	c.nc = nc
	return nil
}

// close tears down the underlying socket; safe to call more than once.
func (c *Connection) close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Close()
}

// Stale reports whether this connection was marked bad (I/O error,
// malformed response) and must never be returned to a caller again.
func (c *Connection) Stale() bool { return c.poisoned }

func (c *Connection) poison() { c.poisoned = true }

// nextRequestID returns a monotonically increasing request id scoped to
// this connection, matching the wire protocol's requestID/responseTo
// correlation contract.
func (c *Connection) nextRequestID() int32 {
	return atomic.AddInt32(&c.requestIDCounter, 1)
}

// WriteCommand serializes cmd as the sole kind-0 section of an OP_MSG and
// writes it to the socket, applying the negotiated compressor if one is
// selected and the command is eligible (§4.1).
func (c *Connection) WriteCommand(ctx context.Context, commandName string, cmd bsoncore.Document) (int32, error) {
	if int32(len(cmd)) > c.maxMessageSize {
		return 0, fmt.Errorf("topology: command %q of %d bytes exceeds max message size %d", commandName, len(cmd), c.maxMessageSize)
	}
	reqID := c.nextRequestID()
	body, err := wiremessage.AppendMsg(nil, reqID, 0, 0, []interface{}{wiremessage.SectionDocument{Document: cmd}}, nil)
	if err != nil {
		return 0, err
	}

	var out []byte
	if c.selectedCompressor != nil && wiremessage.CanCompress(commandName) {
		out, err = wiremessage.AppendCompressed(nil, reqID, 0, wiremessage.OpMsg, body[16:], c.selectedCompressor)
		if err != nil {
			return 0, err
		}
	} else {
		out = body
	}

	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetWriteDeadline(dl)
	} else {
		c.nc.SetWriteDeadline(time.Time{})
	}
	if _, err := c.nc.Write(out); err != nil {
		c.poison()
		return 0, fmt.Errorf("topology: write: %w", err)
	}
	return reqID, nil
}

// ReadReply reads one full wire message (whatever opcode it declares) and
// decodes its primary document, transparently decompressing OP_COMPRESSED
// envelopes.
func (c *Connection) ReadReply(ctx context.Context) (bsoncore.Document, error) {
	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetReadDeadline(dl)
	} else {
		c.nc.SetReadDeadline(time.Time{})
	}

	var hdrBuf [16]byte
	if _, err := io.ReadFull(c.nc, hdrBuf[:]); err != nil {
		c.poison()
		return nil, fmt.Errorf("topology: read header: %w", err)
	}
	hdr, err := wiremessage.ReadHeader(hdrBuf[:])
	if err != nil {
		c.poison()
		return nil, err
	}
	if hdr.MessageLength < 16 {
		c.poison()
		return nil, fmt.Errorf("topology: invalid message length %d", hdr.MessageLength)
	}
	body := make([]byte, hdr.MessageLength-16)
	if _, err := io.ReadFull(c.nc, body); err != nil {
		c.poison()
		return nil, fmt.Errorf("topology: read body: %w", err)
	}

	opcode := hdr.OpCode
	if opcode == wiremessage.OpCompressed {
		origOpcode, decompressed, err := wiremessage.ReadCompressed(body, c.compressors)
		if err != nil {
			c.poison()
			return nil, err
		}
		opcode = origOpcode
		body = decompressed
	}

	switch opcode {
	case wiremessage.OpMsg:
		msg, err := wiremessage.ReadMsg(body)
		if err != nil {
			c.poison()
			return nil, err
		}
		doc, ok := msg.PrimaryDocument()
		if !ok {
			c.poison()
			return nil, fmt.Errorf("topology: OP_MSG reply has no document section")
		}
		return doc, nil
	case wiremessage.OpReply:
		doc, err := readLegacyReply(body)
		if err != nil {
			c.poison()
			return nil, err
		}
		return doc, nil
	default:
		c.poison()
		return nil, fmt.Errorf("topology: unexpected reply opcode %s", opcode)
	}
}

// readLegacyReply decodes the minimal subset of OP_REPLY needed to accept
// a pre-3.6 handshake response: flags, cursorId, startingFrom, numberReturned,
// followed by exactly one document.
func readLegacyReply(body []byte) (bsoncore.Document, error) {
	if len(body) < 20 {
		return nil, fmt.Errorf("topology: OP_REPLY body too short")
	}
	numberReturned := int32(binary.LittleEndian.Uint32(body[16:20]))
	if numberReturned < 1 {
		return nil, fmt.Errorf("topology: OP_REPLY carried no documents")
	}
	doc, _, ok := bsoncore.ReadDocument(body[20:])
	if !ok {
		return nil, fmt.Errorf("topology: OP_REPLY contained a malformed document")
	}
	return doc, nil
}
