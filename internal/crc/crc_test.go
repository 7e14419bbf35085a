package crc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoldenHeaderOnly(t *testing.T) {
	// 04 00 00 -> CD CC, the zero-length frame fixture.
	got := Checksum([]byte{0x04, 0x00, 0x00})
	assert.Equal(t, uint16(0xCDCC), got)
}

func TestChecksumEmpty(t *testing.T) {
	got := Checksum(nil)
	assert.Equal(t, CRC16(0).Finish(), got)
}

func TestSingleAccumulatesLikeBytes(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0xFF, 0xAB}
	viaBytes := CRC16(0).Bytes(data).Finish()
	viaSingle := CRC16(0)
	for _, b := range data {
		viaSingle = viaSingle.Single(b)
	}
	assert.Equal(t, viaBytes, viaSingle.Finish())
	assert.Equal(t, Checksum(data), viaBytes)
}

func TestTableImplementationAgrees(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		n := r.Intn(40)
		data := make([]byte, n)
		r.Read(data)
		assert.Equal(t, Checksum(data), ChecksumTable(data), "mismatch for %x", data)
	}
}
