// Package transfer implements the generic block-oriented sender and
// receiver: reading/writing fixed-size blocks addressed by blockno,
// repeated broadcast with no acknowledgements, and a BitSet-based
// completion tracker on the receive side.
package transfer

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/djwhale/ftag/pkg/link"
)

// ErrEOF is the sentinel a Reader returns to signal there is no more
// data; distinct from a zero-length read, which just means "nothing
// ready this tick".
var ErrEOF = errors.New("transfer: reader at eof")

// Reader reads up to nbytes starting at offset. It returns io.EOF (not
// a partial read) once the source is exhausted, and may return a
// zero-length slice with no error to signal "not ready yet".
type Reader func(nbytes int, offset int64) ([]byte, error)

// Chooser picks the next (blockno, repetition) to send. The default
// policy is SequentialChooser; a caller may substitute a different one
// (e.g. to prioritize blocks a receiver has NACKed) without touching
// the sender or link layers.
type Chooser interface {
	Next() (blockno uint16, repetition int)
	Advance()
}

// SequentialChooser emits each block up to repeats+1 times before
// advancing the cursor; this is the default policy (repeats=0 means
// single-send).
type SequentialChooser struct {
	repeats int
	blockno uint16
	rep     int
}

// NewSequentialChooser creates the default chooser with the given
// repeat count (0 = send each block exactly once).
func NewSequentialChooser(repeats int) *SequentialChooser {
	return &SequentialChooser{repeats: repeats}
}

func (c *SequentialChooser) Next() (uint16, int) {
	return c.blockno, c.rep
}

func (c *SequentialChooser) Advance() {
	if c.rep < c.repeats {
		c.rep++
		return
	}
	c.blockno++
	c.rep = 0
}

// Sender reads fixed-size blocks at arbitrary offsets and repeatedly
// emits them on a data channel, interleaved by whatever the caller's
// tick cadence is (see fileagent for the META-interleaving policy).
type Sender struct {
	read      Reader
	sender    *link.Sender
	channel   uint8
	blockSize int
	chooser   Chooser

	running bool
	ticks   uint64
}

// NewSender builds a transfer sender. chooser may be nil to use
// NewSequentialChooser(0).
func NewSender(read Reader, s *link.Sender, channel uint8, blockSize int, chooser Chooser) *Sender {
	if chooser == nil {
		chooser = NewSequentialChooser(0)
	}
	return &Sender{
		read:      read,
		sender:    s,
		channel:   channel,
		blockSize: blockSize,
		chooser:   chooser,
		running:   true,
	}
}

// IsRunning reports whether Tick should still be called.
func (s *Sender) IsRunning() bool { return s.running }

// Tick performs one unit of work: choose a block, read it, and send it
// (or signal EOF once the reader is exhausted).
func (s *Sender) Tick() bool {
	if !s.running {
		return false
	}
	s.ticks++

	blockno, _ := s.chooser.Next()
	data, err := s.read(s.blockSize, int64(blockno)*int64(s.blockSize))
	if err == io.EOF || err == ErrEOF {
		s.running = false
		if sendErr := s.sender.SendEOF(s.channel); sendErr != nil {
			log.WithError(sendErr).Warn("transfer: failed to send EOF")
		}
		return false
	}
	if err != nil {
		log.WithError(err).Warn("transfer: reader error, will retry next tick")
		return true
	}
	if len(data) == 0 {
		return true
	}

	if sendErr := s.sender.Send(data, s.channel, blockno); sendErr != nil {
		log.WithError(sendErr).WithField("blockno", blockno).Warn("transfer: send failed")
	}
	s.chooser.Advance()
	return true
}

// Run calls Tick until the transfer finishes.
func (s *Sender) Run() {
	for s.Tick() {
	}
}
