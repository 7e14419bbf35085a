// Package framer implements the byte-stuffing codec that turns a
// byte-oriented PHY into a discrete-packet transport: SYNC-delimited
// frames with escaping for SYNC and ESC bytes appearing in the payload.
package framer

import (
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/djwhale/ftag/pkg/buffer"
	"github.com/djwhale/ftag/pkg/phy"
)

const (
	Sync    byte = 0xFF
	Esc     byte = 0xFE
	SyncEsc byte = 0xFD
	EscEsc  byte = 0xFE
)

// state is the decoder's internal state machine position.
type state int

const (
	syncing state = iota
	inSync
	data
	escaped
	truncating
)

const defaultFillSize = 256

// Options configures a Decoder; the Encoder takes no options. Use With*
// functions to override defaults at construction.
type Options struct {
	FillBufferSize int
}

// Option mutates Options; see WithFillBufferSize.
type Option func(*Options)

// WithFillBufferSize overrides the internal rx fill buffer size (the
// chunk size fetched from the PHY per RecvInto call).
func WithFillBufferSize(n int) Option {
	return func(o *Options) { o.FillBufferSize = n }
}

func defaultOptions() Options {
	return Options{FillBufferSize: defaultFillSize}
}

// Stats are read-only, single-writer counters describing decoder
// health since construction. They are informational, not
// correctness-critical.
type Stats struct {
	Fills              uint64
	Overflows          uint64
	ProtocolViolations uint64
	Packets            uint64
	Truncations        uint64
	TruncatedBytes     uint64
	JunkBytes          uint64
	BadPlen            uint64
}

// Decoder drives a byte-stuffing state machine over a PHY, delivering
// one decoded payload per successful RecvInto call.
type Decoder struct {
	phy   phy.PHY
	opts  Options
	stats Stats

	fill    []byte
	fillLen int
	fillPos int

	st state
}

// NewDecoder wraps p, pulling bytes through an internal fill buffer
// sized per opts.
func NewDecoder(p phy.PHY, opts ...Option) *Decoder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Decoder{
		phy:  p,
		opts: o,
		fill: make([]byte, o.FillBufferSize),
		st:   syncing,
	}
}

// Stats returns a snapshot of the decoder's counters.
func (d *Decoder) Stats() Stats { return d.stats }

func (d *Decoder) nextByte(waitMs int) (byte, error) {
	for d.fillPos >= d.fillLen {
		n, err := d.phy.RecvInto(d.fill, waitMs)
		d.stats.Fills++
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, errNoData
		}
		d.fillLen = n
		d.fillPos = 0
	}
	b := d.fill[d.fillPos]
	d.fillPos++
	return b, nil
}

var errNoData = noDataErr{}

type noDataErr struct{}

func (noDataErr) Error() string { return "framer: no data available" }

// RecvInto decodes bytes from the PHY into out until a full packet is
// assembled, NODATA is hit (returns 0, nil), or the PHY reports EOF.
// waitMs is passed through to the underlying PHY's RecvInto for each
// physical fill; 0 makes the whole call non-blocking, matching one
// cooperative-scheduler tick. out is reset at the start of each call
// and grown via Append; a caller that wants to retain a decoded
// payload across calls must copy it out before calling RecvInto again.
func (d *Decoder) RecvInto(out *buffer.Buffer, waitMs int) (int, error) {
	out.Reset()
	for {
		b, err := d.nextByte(waitMs)
		if err == errNoData {
			return 0, nil
		}
		if err == io.EOF {
			out.Reset()
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}

		switch d.st {
		case syncing:
			if b == Sync {
				d.st = inSync
			} else {
				d.stats.JunkBytes++
			}

		case inSync:
			if b == Sync {
				continue
			}
			if b == Esc {
				d.st = escaped
				continue
			}
			d.st = data
			if err := d.appendOrTruncate(out, b); err != nil {
				return 0, err
			}

		case data:
			switch b {
			case Sync:
				d.st = syncing
				d.stats.Packets++
				d.checkLengthSanity(out)
				return out.Len(), nil
			case Esc:
				d.st = escaped
			default:
				if err := d.appendOrTruncate(out, b); err != nil {
					return 0, err
				}
			}

		case escaped:
			switch b {
			case SyncEsc:
				d.st = data
				if err := d.appendOrTruncate(out, Sync); err != nil {
					return 0, err
				}
			case EscEsc:
				d.st = data
				if err := d.appendOrTruncate(out, Esc); err != nil {
					return 0, err
				}
			default:
				d.stats.ProtocolViolations++
				log.WithField("byte", b).Warn("framer: byte following ESC was not a valid escape code")
				d.beginTruncating()
			}

		case truncating:
			if b == Sync {
				d.st = inSync
				d.stats.Truncations++
				out.Reset()
			} else {
				d.stats.TruncatedBytes++
			}
		}
	}
}

func (d *Decoder) appendOrTruncate(out *buffer.Buffer, b byte) error {
	if err := out.Append(b); err != nil {
		d.stats.Overflows++
		d.beginTruncating()
		return nil
	}
	return nil
}

func (d *Decoder) beginTruncating() {
	d.st = truncating
}

// checkLengthSanity compares the first payload byte (the link length
// field, for link-wrapped frames) against the decoded length. A
// mismatch is counted but never drops the frame at this layer — the
// link receiver makes the final accept/reject decision.
func (d *Decoder) checkLengthSanity(out *buffer.Buffer) {
	if out.Len() == 0 {
		return
	}
	first, err := out.At(0)
	if err != nil {
		return
	}
	if int(first)+1 != out.Len() {
		d.stats.BadPlen++
	}
}

// Encoder emits byte-stuffed frames to a PHY.
type Encoder struct {
	phy phy.PHY
}

// NewEncoder wraps p for sending framed payloads.
func NewEncoder(p phy.PHY) *Encoder {
	return &Encoder{phy: p}
}

// Send byte-stuffs payload and writes it to the underlying PHY as a
// single SYNC-delimited frame.
func (e *Encoder) Send(payload []byte) error {
	out := make([]byte, 0, len(payload)*2+2)
	out = append(out, Sync)
	for _, b := range payload {
		switch b {
		case Sync:
			out = append(out, Esc, SyncEsc)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, Sync)
	return e.phy.Send(out)
}
