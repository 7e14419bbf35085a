package transfer

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/djwhale/ftag/internal/bitset"
)

// State is the receiver's lifecycle position.
type State int

const (
	Starting State = iota
	Transferring
	Finishing
	FinishedOk
	FinishedErr
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Transferring:
		return "transferring"
	case Finishing:
		return "finishing"
	case FinishedOk:
		return "finished_ok"
	case FinishedErr:
		return "finished_err"
	default:
		return "unknown"
	}
}

// ErrUnknownExtent is returned by NewReceiver's writer-bound operations
// before the receiver has learned nblocks/blocksz/lastblock from the
// caller — the generic transfer receiver has no META concept of its
// own; fileagent supplies these via SetExtent once it decodes one.
var ErrUnknownExtent = errors.New("transfer: extent not yet known")

// Writer commits a decoded block at the given blockno. The Receiver
// drops repeated blocks before calling it, so a Writer sees each
// blockno once, unless an earlier write of that block failed.
type Writer func(blockno uint16, data []byte) error

// Receiver tracks which blocks have arrived on a channel via a BitSet
// and commits each unique block exactly once through Writer.
type Receiver struct {
	write   Writer
	channel uint8

	nblocks    int
	blocksz    int
	lastblock  int
	totalSlots int
	haveExtent bool

	seen  *bitset.BitSet
	state State
}

// NewReceiver builds a transfer receiver for channel. The extent
// (nblocks/blocksz/lastblock) is not known until SetExtent is called —
// until then Deliver buffers nothing and returns ErrUnknownExtent.
func NewReceiver(write Writer, channel uint8) *Receiver {
	return &Receiver{write: write, channel: channel, state: Starting}
}

// SetExtent records the block layout once known (normally from a META
// record) and is idempotent given the same values. nblocks is the
// count of full-size blocks, indices 0..nblocks-1. When lastblock is
// nonzero there is one further slot at index nblocks holding the
// trailing partial block; when lastblock is 0 (file length an exact
// multiple of blocksz) there is no extra slot.
func (r *Receiver) SetExtent(nblocks, blocksz, lastblock int) {
	if r.haveExtent {
		return
	}
	r.nblocks = nblocks
	r.blocksz = blocksz
	r.lastblock = lastblock
	r.totalSlots = nblocks
	if lastblock > 0 {
		r.totalSlots++
	}
	r.seen = bitset.New(r.totalSlots)
	r.haveExtent = true
	r.state = Transferring
}

// State returns the receiver's current lifecycle state.
func (r *Receiver) State() State { return r.state }

// Percent reports completion 0-99 until Deliver has seen every block,
// at which point it becomes 100 (see bitset.BitSet.Percent).
func (r *Receiver) Percent() int {
	if r.seen == nil {
		return 0
	}
	return r.seen.Percent()
}

// IsComplete reports whether every slot has arrived.
func (r *Receiver) IsComplete() bool {
	return r.seen != nil && r.seen.IsComplete()
}

// Deliver handles one decoded link frame. err is io.EOF when the frame
// was the channel's END record; the receiver transitions to Finishing
// and the caller (fileagent) decides FinishedOk vs FinishedErr based on
// IsComplete and any integrity check.
func (r *Receiver) Deliver(payload []byte, blockno uint16, deliverErr error) error {
	if deliverErr == io.EOF {
		r.state = Finishing
		return nil
	}
	if !r.haveExtent {
		return ErrUnknownExtent
	}
	idx := int(blockno)
	if idx < 0 || idx >= r.totalSlots {
		log.WithField("blockno", blockno).Warn("transfer: blockno out of range, dropped")
		return nil
	}
	if r.seen.Get(idx) {
		return nil
	}

	want := r.blocksz
	if idx == r.nblocks {
		want = r.lastblock
	}
	if len(payload) != want {
		log.WithFields(log.Fields{"blockno": blockno, "got": len(payload), "want": want}).
			Warn("transfer: block size mismatch, dropped")
		return nil
	}

	if err := r.write(blockno, payload); err != nil {
		return err
	}
	r.seen.Set(idx, true)
	return nil
}

// Finish resolves Finishing into FinishedOk or FinishedErr based on
// whether every block has arrived, and returns the resolved state.
func (r *Receiver) Finish() State {
	if r.IsComplete() {
		r.state = FinishedOk
	} else {
		r.state = FinishedErr
	}
	return r.state
}

// Channel returns the link channel this receiver tracks.
func (r *Receiver) Channel() uint8 { return r.channel }
