// Package fileagent specializes pkg/transfer to whole-file transfer: a
// META record carrying the file's block layout and SHA-256 digest,
// periodic re-announcement so a late-joining receiver can still learn
// it, and an integrity check on commit.
package fileagent

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	typeMeta byte = 0x01
	typeEnd  byte = 0xFF

	shaLen     = 32
	metaFixed  = 1 + 2 + 1 + 1 + shaLen // type + nblocks + blocksz + lastblock + sha256
)

// ErrMetaTooShort is returned by DecodeMeta when the payload is smaller
// than the fixed META header.
var ErrMetaTooShort = errors.New("fileagent: meta record shorter than fixed header")

// Meta is the decoded form of a META record (spec's control-channel
// type 0x01).
type Meta struct {
	NBlocks   uint16
	BlockSz   uint8
	LastBlock uint8
	SHA256    [shaLen]byte
	Filename  string
}

// EncodeMeta builds the wire form of a META record.
func EncodeMeta(m Meta) []byte {
	buf := make([]byte, 0, metaFixed+len(m.Filename))
	buf = append(buf, typeMeta)
	var nb [2]byte
	binary.BigEndian.PutUint16(nb[:], m.NBlocks)
	buf = append(buf, nb[:]...)
	buf = append(buf, m.BlockSz, m.LastBlock)
	buf = append(buf, m.SHA256[:]...)
	buf = append(buf, []byte(m.Filename)...)
	return buf
}

// DecodeMeta parses a META record payload (including its leading type
// byte). Any trailing NUL bytes are trimmed from the filename.
func DecodeMeta(payload []byte) (Meta, error) {
	if len(payload) < metaFixed {
		return Meta{}, ErrMetaTooShort
	}
	var m Meta
	m.NBlocks = binary.BigEndian.Uint16(payload[1:3])
	m.BlockSz = payload[3]
	m.LastBlock = payload[4]
	copy(m.SHA256[:], payload[5:5+shaLen])
	name := payload[5+shaLen:]
	name = bytes.TrimRight(name, "\x00")
	m.Filename = string(name)
	return m, nil
}

// Equal reports whether two Meta records describe the same transfer,
// ignoring nothing — every field must match.
func (m Meta) Equal(other Meta) bool {
	return m.NBlocks == other.NBlocks &&
		m.BlockSz == other.BlockSz &&
		m.LastBlock == other.LastBlock &&
		m.SHA256 == other.SHA256 &&
		m.Filename == other.Filename
}

// TotalSize returns the file size implied by this Meta's block layout:
// NBlocks full-size blocks plus the trailing LastBlock bytes (0 when
// the file length is an exact multiple of BlockSz).
func (m Meta) TotalSize() int64 {
	return int64(m.NBlocks)*int64(m.BlockSz) + int64(m.LastBlock)
}

// TotalSlots returns the number of distinct blockno slots this Meta
// describes: NBlocks full blocks, plus one more if there's a nonzero
// trailing partial block.
func (m Meta) TotalSlots() int {
	n := int(m.NBlocks)
	if m.LastBlock > 0 {
		n++
	}
	return n
}
