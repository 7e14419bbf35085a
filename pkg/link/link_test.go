package link

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djwhale/ftag/pkg/phy"
)

func TestSendRecvRoundTrip(t *testing.T) {
	a, b := phy.NewLoopbackPair()
	sender := NewSender(a)
	receiver := NewReceiver(b)

	require.NoError(t, sender.Send([]byte("hi"), 0x01, 42))
	delivered, err := receiver.Poll(5)
	require.NoError(t, err)
	assert.True(t, delivered)

	payload, blockno, err := receiver.RecvFor(0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), payload)
	assert.Equal(t, uint16(42), blockno)
}

func TestRecvForWrongChannelIsNoData(t *testing.T) {
	a, b := phy.NewLoopbackPair()
	sender := NewSender(a)
	receiver := NewReceiver(b)

	require.NoError(t, sender.Send([]byte("hi"), 0x01, 0))
	delivered, err := receiver.Poll(5)
	require.NoError(t, err)
	require.True(t, delivered)

	_, _, err = receiver.RecvFor(0x02)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSendEOFProducesENDOnControlChannel(t *testing.T) {
	a, b := phy.NewLoopbackPair()
	sender := NewSender(a)
	receiver := NewReceiver(b)

	require.NoError(t, sender.SendEOF(0x03))
	delivered, err := receiver.Poll(5)
	require.NoError(t, err)
	require.True(t, delivered)

	_, _, err = receiver.RecvFor(0x03 | controlBit)
	assert.ErrorIs(t, err, io.EOF)
}

func TestShortHeaderRejected(t *testing.T) {
	a, b := phy.NewLoopbackPair()
	enc := NewSender(a)
	_ = enc
	require.NoError(t, a.Send([]byte{0xFF, 0x02, 0x01, 0x00, 0xFF}))
	receiver := NewReceiver(b)
	delivered, err := receiver.Poll(5)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, uint64(1), receiver.Stats().ShortHeader)
}

func TestGoldenZeroLengthFrame(t *testing.T) {
	// header [len=6, seqno=0, channel=0, blockno=0000], empty payload,
	// CRC-16/CCITT over those 5 header bytes = 3C 4B: a header-only
	// frame whose CRC passes and carries no payload.
	a, b := phy.NewLoopbackPair()
	require.NoError(t, a.Send([]byte{0xFF, 0x06, 0x00, 0x00, 0x00, 0x00, 0x3C, 0x4B, 0xFF}))
	receiver := NewReceiver(b)
	delivered, err := receiver.Poll(5)
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, uint64(0), receiver.Stats().CRCErrors)
	payload, _, err := receiver.RecvFor(0x00)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestCRCMismatchRejected(t *testing.T) {
	a, b := phy.NewLoopbackPair()
	require.NoError(t, a.Send([]byte{0xFF, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF}))
	receiver := NewReceiver(b)
	delivered, err := receiver.Poll(5)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, uint64(1), receiver.Stats().CRCErrors)
}

func TestSubscribeDispatchesToHandler(t *testing.T) {
	a, b := phy.NewLoopbackPair()
	sender := NewSender(a)
	receiver := NewReceiver(b)

	var got []byte
	cancel := receiver.Subscribe(0x05, HandlerFunc(func(payload []byte, info Info) {
		got = append([]byte(nil), payload...)
	}))

	require.NoError(t, sender.Send([]byte("zz"), 0x05, 0))
	_, err := receiver.Poll(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("zz"), got)

	cancel()
	got = nil
	require.NoError(t, sender.Send([]byte("after-cancel"), 0x05, 0))
	_, err = receiver.Poll(5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTooLongPayloadDropped(t *testing.T) {
	a, _ := phy.NewLoopbackPair()
	sender := NewSender(a)
	huge := make([]byte, 300)
	err := sender.Send(huge, 0x01, 0)
	assert.ErrorIs(t, err, ErrTooLong)
}
