package wiremessage

import (
	"testing"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

func TestMsgRoundTrip(t *testing.T) {
	cmd := bsoncore.NewDocumentBuilder().AppendString("hello", "1").AppendInt32("n", 3).Build()
	seqDoc := bsoncore.NewDocumentBuilder().AppendInt32("x", 1).Build()

	sections := []interface{}{
		SectionDocument{Document: cmd},
		SectionSequence{Identifier: "documents", Documents: []bsoncore.Document{seqDoc}},
	}

	buf, err := AppendMsg(nil, 42, 0, 0, sections, nil)
	if err != nil {
		t.Fatalf("AppendMsg: %v", err)
	}

	hdr, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.OpCode != OpMsg || hdr.RequestID != 42 {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	if int(hdr.MessageLength) != len(buf) {
		t.Fatalf("length mismatch: header says %d, got %d bytes", hdr.MessageLength, len(buf))
	}

	msg, err := ReadMsg(buf[16:])
	if err != nil {
		t.Fatalf("ReadMsg: %v", err)
	}
	doc, ok := msg.PrimaryDocument()
	if !ok || !doc.Equal(cmd) {
		t.Fatalf("primary document mismatch")
	}
	if len(msg.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(msg.Sections))
	}
	seq, ok := msg.Sections[1].(SectionSequence)
	if !ok || seq.Identifier != "documents" || len(seq.Documents) != 1 {
		t.Fatalf("unexpected sequence section: %+v", msg.Sections[1])
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	cmd := bsoncore.NewDocumentBuilder().AppendString("insert", "widgets").Build()
	body, err := AppendMsg(nil, 7, 0, 0, []interface{}{SectionDocument{Document: cmd}}, nil)
	if err != nil {
		t.Fatalf("AppendMsg: %v", err)
	}
	uncompressedBody := body[16:]

	buf, err := AppendCompressed(nil, 7, 0, OpMsg, uncompressedBody, SnappyCompressor{})
	if err != nil {
		t.Fatalf("AppendCompressed: %v", err)
	}

	hdr, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.OpCode != OpCompressed {
		t.Fatalf("expected OP_COMPRESSED, got %s", hdr.OpCode)
	}

	origOpcode, decompressed, err := ReadCompressed(buf[16:], map[CompressorID]Compressor{CompressorSnappy: SnappyCompressor{}})
	if err != nil {
		t.Fatalf("ReadCompressed: %v", err)
	}
	if origOpcode != OpMsg {
		t.Fatalf("expected original opcode OP_MSG, got %s", origOpcode)
	}
	if string(decompressed) != string(uncompressedBody) {
		t.Fatalf("decompressed body mismatch")
	}
}

func TestCanCompressExcludesAuthCommands(t *testing.T) {
	if CanCompress("saslStart") {
		t.Fatal("saslStart must never be compressed")
	}
	if !CanCompress("find") {
		t.Fatal("find should be compressible")
	}
}
