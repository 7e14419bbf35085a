package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsEmptyAtInitialStart(t *testing.T) {
	b := New(128, 10)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 128, b.Cap())
	assert.False(t, b.IsFull())
	assert.Equal(t, "Buffer(sz=128, start=10, end=10)", b.String())
}

func TestAppendAndAt(t *testing.T) {
	b := New(8, 0)
	require.NoError(t, b.Append('a'))
	require.NoError(t, b.Append('b'))
	assert.Equal(t, 2, b.Len())
	v, err := b.At(0)
	require.NoError(t, err)
	assert.Equal(t, byte('a'), v)
	v, err = b.At(1)
	require.NoError(t, err)
	assert.Equal(t, byte('b'), v)
	_, err = b.At(2)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestAppendOverflow(t *testing.T) {
	b := New(2, 0)
	require.NoError(t, b.Append(1))
	require.NoError(t, b.Append(2))
	assert.True(t, b.IsFull())
	assert.ErrorIs(t, b.Append(3), ErrOverflow)
}

func TestPrependNeedsHeadroom(t *testing.T) {
	b := New(8, 3)
	require.NoError(t, b.Prepend1('x'))
	require.NoError(t, b.Prepend([]byte{'a', 'b'}))
	got, err := b.Slice(0, b.Len())
	require.NoError(t, err)
	assert.Equal(t, []byte("abx"), got)
}

func TestPrependOverflow(t *testing.T) {
	b := New(8, 1)
	require.NoError(t, b.Prepend1('x'))
	assert.ErrorIs(t, b.Prepend1('y'), ErrOverflow)
}

func TestLTruncRTrunc(t *testing.T) {
	b := New(8, 0)
	require.NoError(t, b.Extend([]byte("hello")))
	b.LTrunc(1)
	b.RTrunc(1)
	assert.Equal(t, []byte("ell"), b.Bytes())
}

func TestReset(t *testing.T) {
	b := New(8, 2)
	require.NoError(t, b.Extend([]byte("hi")))
	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestReadWithLendsActiveRange(t *testing.T) {
	b := New(8, 0)
	require.NoError(t, b.Extend([]byte("hello")))
	var sent []byte
	n := b.ReadWith(func(p []byte) int {
		sent = append(sent, p...)
		return len(p)
	})
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), sent)
}

func TestWriteWithLendsWholeBackingStore(t *testing.T) {
	b := New(8, 3)
	n := b.WriteWith(func(p []byte) int {
		copy(p, "abc")
		return 3
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("abc"), b.Bytes())
}
