// Package link implements the link layer: a 5-byte header plus a
// CRC-16/CCITT trailer wrapped around framer payloads, channel
// multiplexing between a control sub-channel (bit 7 set) and up to 128
// data sub-channels, and a registration table dispatching received
// frames to handlers by channel id.
package link

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/djwhale/ftag/internal/crc"
	"github.com/djwhale/ftag/pkg/buffer"
	"github.com/djwhale/ftag/pkg/framer"
	"github.com/djwhale/ftag/pkg/phy"
)

const (
	headerLen  = 5
	trailerLen = 2
	overhead   = headerLen + trailerLen
	// MaxPayload is the largest payload a single frame can carry: the
	// length byte is total-frame-bytes-minus-one and must fit in a u8.
	MaxPayload = 255 - overhead

	controlBit byte = 0x80

	typeMeta byte = 0x01
	typeEnd  byte = 0xFF

	// LinkChannel is the single well-known control channel used for
	// META/END bookkeeping records, before any per-transfer channel
	// bits are applied.
	LinkChannel uint8 = 0
)

var (
	ErrShortHeader    = errors.New("link: frame shorter than header+crc overhead")
	ErrLengthMismatch = errors.New("link: length byte does not match frame size")
	ErrCRC            = errors.New("link: crc mismatch")
	ErrTooLong        = errors.New("link: payload too long for a single frame")
	// ErrNoData is returned by RecvFor when the most recently
	// dispatched frame belonged to a different channel.
	ErrNoData = errors.New("link: no data for requested channel")
)

// Info describes the channel/blockno a payload was sent or received on.
type Info struct {
	Channel uint8
	Blockno uint16
}

// IsControl reports whether the channel's control bit (bit 7) is set.
func (i Info) IsControl() bool { return i.Channel&controlBit != 0 }

// Handler is invoked by the receiver's demux for every successfully
// decoded frame on a channel it is registered for.
type Handler interface {
	Handle(payload []byte, info Info)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(payload []byte, info Info)

func (f HandlerFunc) Handle(payload []byte, info Info) { f(payload, info) }

// Stats are informational, single-writer counters for the receiver.
type Stats struct {
	ShortHeader uint64
	BadLength   uint64
	CRCErrors   uint64
	SeqGaps     uint64
	Frames      uint64
}

// Sender frames and sends payloads via an underlying framer.Encoder.
type Sender struct {
	enc   *framer.Encoder
	seqno byte
}

// NewSender wraps p for sending link frames.
func NewSender(p phy.PHY) *Sender {
	return &Sender{enc: framer.NewEncoder(p)}
}

// Send prepends the link header and CRC trailer to payload and emits it
// framed. channel's control bit, if any, is taken verbatim from the
// caller.
func (s *Sender) Send(payload []byte, channel uint8, blockno uint16) error {
	total := headerLen + len(payload) + trailerLen
	if total > 256 {
		log.WithFields(log.Fields{"channel": channel, "len": len(payload)}).
			Warn("link: frame dropped, length byte would overflow")
		return ErrTooLong
	}
	frame := make([]byte, 0, total)
	frame = append(frame, byte(total-1))
	frame = append(frame, s.seqno)
	frame = append(frame, channel)
	frame = append(frame, byte(blockno>>8), byte(blockno))
	frame = append(frame, payload...)

	sum := crc.Checksum(frame)
	frame = append(frame, byte(sum>>8), byte(sum))

	s.seqno++
	return s.enc.Send(frame)
}

// SendEOF emits the END record (payload 0xFF) on the control channel
// that corresponds to channel: the same low 7 bits, with the control
// bit forced on. END is always a control-channel concept even when the
// caller's own channel was a data channel.
func (s *Sender) SendEOF(channel uint8) error {
	ctl := (channel &^ controlBit) | controlBit
	return s.Send([]byte{typeEnd}, ctl, 0)
}

// SendMeta sends a pre-built META record on the control channel that
// corresponds to channel, mirroring SendEOF's channel mapping so a
// receiver tracking multiple concurrent transfers can tell them apart.
func (s *Sender) SendMeta(record []byte, channel uint8) error {
	ctl := (channel &^ controlBit) | controlBit
	return s.Send(record, ctl, 0)
}

// Receiver demultiplexes decoded link frames to per-channel handlers.
type Receiver struct {
	dec      *framer.Decoder
	stats    Stats
	expected byte
	haveSeq  bool

	handlers [256][]Handler

	lastPayload []byte
	lastInfo    Info
	lastIsEnd   bool
	lastValid   bool
}

// NewReceiver wraps p for receiving link frames.
func NewReceiver(p phy.PHY) *Receiver {
	return &Receiver{dec: framer.NewDecoder(p)}
}

// Stats returns a snapshot of the receiver's counters.
func (r *Receiver) Stats() Stats { return r.stats }

// Subscribe registers handler to be invoked for every frame received on
// channel. It returns a cancel function that removes the registration.
func (r *Receiver) Subscribe(channel uint8, handler Handler) (cancel func()) {
	r.handlers[channel] = append(r.handlers[channel], handler)
	idx := len(r.handlers[channel]) - 1
	return func() {
		hs := r.handlers[channel]
		if idx >= len(hs) {
			return
		}
		r.handlers[channel] = append(hs[:idx], hs[idx+1:]...)
	}
}

// Poll decodes and validates one frame (non-blocking when waitMs is 0),
// dispatching it to every handler registered for its channel. It
// returns io.EOF only when the underlying PHY itself has disconnected;
// a NODATA poll returns (false, nil).
func (r *Receiver) Poll(waitMs int) (delivered bool, err error) {
	r.lastValid = false
	out := buffer.New(256, 0)
	n, ferr := r.dec.RecvInto(out, waitMs)
	if ferr == io.EOF {
		return false, io.EOF
	}
	if ferr != nil {
		return false, ferr
	}
	if n == 0 {
		return false, nil
	}

	raw, _ := out.Slice(0, n)
	ok := r.validateAndDispatch(raw)
	return ok, nil
}

func (r *Receiver) validateAndDispatch(raw []byte) bool {
	if len(raw) < overhead {
		r.stats.ShortHeader++
		return false
	}
	length := raw[0]
	if int(length)+1 != len(raw) {
		r.stats.BadLength++
		return false
	}

	body := raw[:len(raw)-trailerLen]
	gotCRC := uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
	if crc.Checksum(body) != gotCRC {
		r.stats.CRCErrors++
		return false
	}

	seqno := raw[1]
	channel := raw[2]
	blockno := uint16(raw[3])<<8 | uint16(raw[4])
	payload := raw[headerLen : len(raw)-trailerLen]

	if r.haveSeq && seqno != r.expected {
		r.stats.SeqGaps++
		log.WithFields(log.Fields{"got": seqno, "expected": r.expected}).
			Warn("link: sequence number gap")
	}
	r.expected = seqno + 1
	r.haveSeq = true
	r.stats.Frames++

	info := Info{Channel: channel, Blockno: blockno}
	isEnd := info.IsControl() && len(payload) >= 1 && payload[0] == typeEnd

	r.lastPayload = payload
	r.lastInfo = info
	r.lastIsEnd = isEnd
	r.lastValid = true

	for _, h := range r.handlers[channel] {
		h.Handle(payload, info)
	}
	return true
}

// RecvFor dispatches the most recently polled frame to every registered
// handler (already done by Poll) and tells the caller whether that
// frame belonged to channel: payload+blockno on a match, io.EOF if it
// was the END record for channel (which SendEOF puts on channel's
// control-bit sibling), or ErrNoData if the frame was for a different
// channel.
func (r *Receiver) RecvFor(channel uint8) (payload []byte, blockno uint16, err error) {
	if !r.lastValid {
		return nil, 0, ErrNoData
	}
	if r.lastIsEnd && r.lastInfo.Channel == channel|controlBit {
		return nil, 0, io.EOF
	}
	if r.lastInfo.Channel != channel {
		return nil, 0, ErrNoData
	}
	return r.lastPayload, r.lastInfo.Blockno, nil
}
