package phy

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackPairRoundTrip(t *testing.T) {
	a, b := NewLoopbackPair()
	require.NoError(t, a.Send([]byte("hello")))
	buf := make([]byte, 16)
	n, err := b.RecvInto(buf, 50)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestLoopbackNoDataReturnsZero(t *testing.T) {
	_, b := NewLoopbackPair()
	buf := make([]byte, 4)
	n, err := b.RecvInto(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoopbackCloseSignalsEOF(t *testing.T) {
	la := NewLoopback()
	lb := NewLoopback()
	a, b := Link(la, lb)
	_ = a
	lb.Close()
	buf := make([]byte, 4)
	_, err := b.RecvInto(buf, 10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStdioPHYSendWritesThrough(t *testing.T) {
	r, w := io.Pipe()
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := r.Read(buf)
		done <- buf[:n]
	}()
	s := &StdioPHY{W: w}
	require.NoError(t, s.Send([]byte("ping")))
	assert.Equal(t, "ping", string(<-done))
}

func TestNoisyDropAlwaysDropsWhenSpecIsCertain(t *testing.T) {
	a, b := NewLoopbackPair()
	noisy := NewNoisy(a, NoiseSpec{Drop: 100})
	require.NoError(t, noisy.Send([]byte("x")))
	buf := make([]byte, 4)
	n, err := b.RecvInto(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNoisyPassesThroughWithNoSpec(t *testing.T) {
	a, b := NewLoopbackPair()
	noisy := NewNoisy(a, NoiseSpec{})
	require.NoError(t, noisy.Send([]byte("clean")))
	buf := make([]byte, 16)
	n, err := b.RecvInto(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, "clean", string(buf[:n]))
}
