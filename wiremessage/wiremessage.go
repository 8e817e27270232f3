// Package wiremessage implements the framing described in the wire codec
// component: a 16-byte header, the unified "message" opcode with its
// document/document-sequence sections, and the compression envelope that
// wraps it. It only builds and parses message bytes: request ids are
// minted, and the socket is read and written, by topology.Connection.
package wiremessage

import (
	"encoding/binary"
	"fmt"
)

// OpCode identifies the kind of wire message.
type OpCode int32

// The opcodes this driver knows. OpReply is accepted inbound only for the
// initial handshake reply on servers old enough to still use it; OpQuery is
// named here but never sent or accepted. All other traffic uses OpMsg,
// optionally wrapped in OpCompressed.
const (
	OpReply      OpCode = 1
	OpQuery      OpCode = 2004
	OpCompressed OpCode = 2012
	OpMsg        OpCode = 2013
)

func (c OpCode) String() string {
	switch c {
	case OpReply:
		return "OP_REPLY"
	case OpQuery:
		return "OP_QUERY"
	case OpCompressed:
		return "OP_COMPRESSED"
	case OpMsg:
		return "OP_MSG"
	default:
		return fmt.Sprintf("OpCode(%d)", int32(c))
	}
}

// headerLen is the fixed size of every wire message header.
const headerLen = 16

// Header is the 16-byte frame header common to every opcode.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

// AppendHeader appends the 4 header fields to dst in wire order.
func AppendHeader(dst []byte, length, requestID, responseTo int32, opcode OpCode) []byte {
	dst = appendi32(dst, length)
	dst = appendi32(dst, requestID)
	dst = appendi32(dst, responseTo)
	return appendi32(dst, int32(opcode))
}

// ReadHeader decodes a Header from the front of src.
func ReadHeader(src []byte) (Header, error) {
	if len(src) < headerLen {
		return Header{}, fmt.Errorf("wiremessage: header requires %d bytes, got %d", headerLen, len(src))
	}
	return Header{
		MessageLength: readi32(src, 0),
		RequestID:     readi32(src, 4),
		ResponseTo:    readi32(src, 8),
		OpCode:        OpCode(readi32(src, 12)),
	}, nil
}

func appendi32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func readi32(src []byte, pos int) int32 {
	return int32(binary.LittleEndian.Uint32(src[pos : pos+4]))
}
