package wiremessage

import (
	"encoding/binary"
	"fmt"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

// MsgFlag is the OP_MSG flag-bits bitmask.
type MsgFlag uint32

// The three flag bits this driver recognizes.
const (
	ChecksumPresent MsgFlag = 1 << 0
	MoreToCome      MsgFlag = 1 << 1
	ExhaustAllowed  MsgFlag = 1 << 16
)

// SectionKind identifies an OP_MSG section's shape.
type SectionKind byte

// The two section kinds: a single inline document, or a named document
// sequence (used for write-command batches).
const (
	SectionKindDocument SectionKind = 0
	SectionKindSequence SectionKind = 1
)

// SectionDocument is a kind-0 section: exactly one document, normally the
// command itself on the way out or the reply on the way back.
type SectionDocument struct {
	Document bsoncore.Document
}

// SectionSequence is a kind-1 section: an identifier followed by zero or
// more back-to-back documents, used to carry e.g. "documents" or "updates"
// arrays out-of-line from the main command document.
type SectionSequence struct {
	Identifier string
	Documents  []bsoncore.Document
}

// Msg is a fully decoded OP_MSG body (header excluded).
type Msg struct {
	FlagBits    MsgFlag
	Sections    []interface{} // SectionDocument or SectionSequence
	Checksum    uint32
	HasChecksum bool
}

// AppendMsg serializes a full OP_MSG wire message (including its header)
// into dst.
func AppendMsg(dst []byte, requestID, responseTo int32, flags MsgFlag, sections []interface{}, checksum *uint32) ([]byte, error) {
	start := len(dst)
	dst = AppendHeader(dst, 0, requestID, responseTo, OpMsg)

	f := flags
	if checksum != nil {
		f |= ChecksumPresent
	}
	dst = appendu32(dst, uint32(f))

	for _, sec := range sections {
		var err error
		dst, err = appendSection(dst, sec)
		if err != nil {
			return nil, err
		}
	}

	if checksum != nil {
		dst = appendu32(dst, *checksum)
	}

	binary.LittleEndian.PutUint32(dst[start:start+4], uint32(len(dst)-start))
	return dst, nil
}

func appendSection(dst []byte, sec interface{}) ([]byte, error) {
	switch s := sec.(type) {
	case SectionDocument:
		dst = append(dst, byte(SectionKindDocument))
		return append(dst, s.Document...), nil
	case SectionSequence:
		dst = append(dst, byte(SectionKindSequence))
		lenPos := len(dst)
		dst = appendu32(dst, 0)
		dst = append(dst, s.Identifier...)
		dst = append(dst, 0x00)
		for _, d := range s.Documents {
			dst = append(dst, d...)
		}
		binary.LittleEndian.PutUint32(dst[lenPos:lenPos+4], uint32(len(dst)-lenPos))
		return dst, nil
	default:
		return nil, fmt.Errorf("wiremessage: unknown section type %T", sec)
	}
}

// ReadMsg decodes the OP_MSG body (everything after the 16-byte header) in
// src, which must be exactly the message's declared length minus 16.
func ReadMsg(src []byte) (Msg, error) {
	if len(src) < 4 {
		return Msg{}, fmt.Errorf("wiremessage: OP_MSG body too short for flag bits")
	}
	flags := MsgFlag(binary.LittleEndian.Uint32(src))
	rem := src[4:]

	hasChecksum := flags&ChecksumPresent != 0
	var checksum uint32
	if hasChecksum {
		if len(rem) < 4 {
			return Msg{}, fmt.Errorf("wiremessage: OP_MSG missing checksum trailer")
		}
		checksum = binary.LittleEndian.Uint32(rem[len(rem)-4:])
		rem = rem[:len(rem)-4]
	}

	var sections []interface{}
	for len(rem) > 0 {
		kind := SectionKind(rem[0])
		rem = rem[1:]
		switch kind {
		case SectionKindDocument:
			doc, next, ok := bsoncore.ReadDocument(rem)
			if !ok {
				return Msg{}, fmt.Errorf("wiremessage: malformed kind-0 section")
			}
			sections = append(sections, SectionDocument{Document: doc})
			rem = next
		case SectionKindSequence:
			if len(rem) < 4 {
				return Msg{}, fmt.Errorf("wiremessage: malformed kind-1 section length")
			}
			seqLen := int32(binary.LittleEndian.Uint32(rem))
			if int(seqLen) > len(rem) {
				return Msg{}, fmt.Errorf("wiremessage: kind-1 section length exceeds message")
			}
			seqBody := rem[4:seqLen]
			rem = rem[seqLen:]

			nullIdx := indexByte(seqBody, 0x00)
			if nullIdx < 0 {
				return Msg{}, fmt.Errorf("wiremessage: kind-1 section missing identifier terminator")
			}
			identifier := string(seqBody[:nullIdx])
			docsBytes := seqBody[nullIdx+1:]

			var docs []bsoncore.Document
			for len(docsBytes) > 0 {
				doc, next, ok := bsoncore.ReadDocument(docsBytes)
				if !ok {
					return Msg{}, fmt.Errorf("wiremessage: malformed document in kind-1 section")
				}
				docs = append(docs, doc)
				docsBytes = next
			}
			sections = append(sections, SectionSequence{Identifier: identifier, Documents: docs})
		default:
			return Msg{}, fmt.Errorf("wiremessage: unknown section kind %d", kind)
		}
	}

	return Msg{FlagBits: flags, Sections: sections, Checksum: checksum, HasChecksum: hasChecksum}, nil
}

// PrimaryDocument returns the first kind-0 section's document, which is the
// command or reply body.
func (m Msg) PrimaryDocument() (bsoncore.Document, bool) {
	for _, sec := range m.Sections {
		if d, ok := sec.(SectionDocument); ok {
			return d.Document, true
		}
	}
	return nil, false
}

func appendu32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
