package wiremessage

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// CompressorID identifies a negotiated compression algorithm on the wire.
type CompressorID byte

// The compressor ids recognized by the wire protocol.
const (
	CompressorNoop   CompressorID = 0
	CompressorSnappy CompressorID = 1
	CompressorZlib   CompressorID = 2
	CompressorZstd   CompressorID = 3
)

// Compressor compresses and decompresses the bytes of an OP_MSG body for
// the OP_COMPRESSED envelope.
type Compressor interface {
	ID() CompressorID
	Name() string
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte) ([]byte, error)
}

// commands that must never be compressed, per §4.1: compression is
// negotiated at handshake and applies only to commands not whitelisted as
// security-sensitive.
var noCompressCommands = map[string]bool{
	"hello": true, "isMaster": true, "ismaster": true,
	"saslStart": true, "saslContinue": true, "authenticate": true,
	"getnonce": true, "createUser": true, "updateUser": true,
}

// CanCompress reports whether commandName is eligible for compression.
func CanCompress(commandName string) bool {
	return !noCompressCommands[commandName]
}

// AppendCompressed wraps an already-serialized OP_MSG body (everything
// after its own header) in an OP_COMPRESSED envelope.
func AppendCompressed(dst []byte, requestID, responseTo int32, originalOpCode OpCode, uncompressedBody []byte, c Compressor) ([]byte, error) {
	start := len(dst)
	dst = AppendHeader(dst, 0, requestID, responseTo, OpCompressed)
	dst = appendi32(dst, int32(originalOpCode))
	dst = appendi32(dst, int32(len(uncompressedBody)))
	dst = append(dst, byte(c.ID()))

	compressed, err := c.Compress(nil, uncompressedBody)
	if err != nil {
		return nil, fmt.Errorf("wiremessage: compress: %w", err)
	}
	dst = append(dst, compressed...)

	binary.LittleEndian.PutUint32(dst[start:start+4], uint32(len(dst)-start))
	return dst, nil
}

// ReadCompressed decompresses an OP_COMPRESSED body (everything after the
// 16-byte header) and returns the original opcode plus the decompressed
// message body (without the original 16-byte header, which the caller
// reconstructs).
func ReadCompressed(src []byte, compressors map[CompressorID]Compressor) (OpCode, []byte, error) {
	if len(src) < 9 {
		return 0, nil, fmt.Errorf("wiremessage: OP_COMPRESSED body too short")
	}
	origOpcode := OpCode(readi32(src, 0))
	uncompressedSize := readi32(src, 4)
	compressorID := CompressorID(src[8])
	compressedBody := src[9:]

	c, ok := compressors[compressorID]
	if !ok {
		return 0, nil, fmt.Errorf("wiremessage: no compressor registered for id %d", compressorID)
	}
	dst := make([]byte, 0, uncompressedSize)
	dst, err := c.Decompress(dst, compressedBody)
	if err != nil {
		return 0, nil, fmt.Errorf("wiremessage: decompress: %w", err)
	}
	if int32(len(dst)) != uncompressedSize {
		return 0, nil, fmt.Errorf("wiremessage: decompressed size %d does not match advertised %d", len(dst), uncompressedSize)
	}
	return origOpcode, dst, nil
}

// SnappyCompressor wraps github.com/golang/snappy.
type SnappyCompressor struct{}

func (SnappyCompressor) ID() CompressorID { return CompressorSnappy }
func (SnappyCompressor) Name() string     { return "snappy" }
func (SnappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}
func (SnappyCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}

// ZlibCompressor wraps the standard library's compress/zlib at a
// configurable level.
type ZlibCompressor struct{ Level int }

func (ZlibCompressor) ID() CompressorID { return CompressorZlib }
func (ZlibCompressor) Name() string     { return "zlib" }
func (z ZlibCompressor) Compress(dst, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := z.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func (ZlibCompressor) Decompress(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readAll(dst, r)
}

// ZstdCompressor wraps github.com/klauspost/compress/zstd.
type ZstdCompressor struct{}

func (ZstdCompressor) ID() CompressorID { return CompressorZstd }
func (ZstdCompressor) Name() string     { return "zstd" }
func (ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst), nil
}
func (ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(src, dst)
}

func readAll(dst []byte, r io.Reader) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
