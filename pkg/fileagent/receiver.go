package fileagent

import (
	"bytes"
	"errors"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/djwhale/ftag/pkg/link"
	"github.com/djwhale/ftag/pkg/platform"
	"github.com/djwhale/ftag/pkg/transfer"
)

// ErrIntegrityMismatch is returned by Finish when the recomputed
// SHA-256 does not match the digest advertised in META.
var ErrIntegrityMismatch = errors.New("fileagent: sha256 mismatch on commit")

// Receiver specializes transfer.Receiver with META-driven extent
// discovery and a slot-indexed staging store. Blocks that arrive before
// the first META are rejected with transfer.ErrUnknownExtent and are
// not staged; they are accepted when the sender repeats them after the
// file's size is known.
type Receiver struct {
	base    *transfer.Receiver
	channel uint8

	meta    *Meta
	metaSet bool

	slots [][]byte // nblocks+[1] entries, nil until written

	finalName string
	deps      platform.Deps
	cancel    func()
}

// NewReceiver builds a Receiver that stages an incoming file's blocks
// in memory and, once complete and verified, writes finalName. deps
// supplies the hash primitive and the rename used to commit the file
// atomically, mirroring the original's platdeps seam.
func NewReceiver(recv *link.Receiver, channel uint8, finalName string, deps platform.Deps) *Receiver {
	r := &Receiver{channel: channel, finalName: finalName, deps: deps}
	r.base = transfer.NewReceiver(r.stage, channel)

	ctl := channel | 0x80
	r.cancel = recv.Subscribe(ctl, link.HandlerFunc(func(payload []byte, info link.Info) {
		r.handleControl(payload)
	}))
	return r
}

func (r *Receiver) stage(blockno uint16, data []byte) error {
	idx := int(blockno)
	if idx >= len(r.slots) {
		log.WithField("blockno", blockno).Warn("fileagent: blockno beyond known extent, dropped")
		return nil
	}
	r.slots[idx] = append([]byte(nil), data...)
	return nil
}

func (r *Receiver) handleControl(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case typeMeta:
		m, err := DecodeMeta(payload)
		if err != nil {
			log.WithError(err).Warn("fileagent: malformed meta record")
			return
		}
		if r.metaSet {
			if !r.meta.Equal(m) {
				log.Warn("fileagent: meta re-announcement does not match first capture")
			}
			return
		}
		r.meta = &m
		r.metaSet = true
		r.slots = make([][]byte, m.TotalSlots())
		r.base.SetExtent(int(m.NBlocks), int(m.BlockSz), int(m.LastBlock))
		log.WithFields(log.Fields{"filename": m.Filename, "slots": len(r.slots)}).
			Info("fileagent: meta captured")

	case typeEnd:
		if r.metaSet {
			_ = r.base.Deliver(nil, 0, io.EOF)
		}
	}
}

// Deliver feeds one decoded data-channel frame (blockno + payload) to
// the receiver. Call this for every link.Receiver.RecvFor result on
// this receiver's data channel.
func (r *Receiver) Deliver(payload []byte, blockno uint16) error {
	return r.base.Deliver(payload, blockno, nil)
}

// State returns the underlying transfer state machine's position.
func (r *Receiver) State() transfer.State { return r.base.State() }

// Percent reports completion, see transfer.Receiver.Percent.
func (r *Receiver) Percent() int { return r.base.Percent() }

// Finish resolves Finishing by verifying integrity and, on success,
// writing finalName. It deregisters the control-channel handler
// regardless of outcome.
func (r *Receiver) Finish() (transfer.State, error) {
	r.cancel()

	if !r.metaSet || !r.base.IsComplete() {
		r.base.Finish()
		return transfer.FinishedErr, nil
	}

	hasher := r.deps.NewSHA256()
	for _, slot := range r.slots {
		hasher.Write(slot)
	}
	var got [shaLen]byte
	copy(got[:], hasher.Sum(nil))

	if !bytes.Equal(got[:], r.meta.SHA256[:]) {
		r.base.Finish()
		return transfer.FinishedErr, ErrIntegrityMismatch
	}

	if err := r.commit(); err != nil {
		r.base.Finish()
		return transfer.FinishedErr, err
	}

	st := r.base.Finish()
	return st, nil
}

// commit writes the staged slots to a temporary file alongside
// finalName, then renames it into place via deps.Rename so a reader
// never observes a partially-written final file.
func (r *Receiver) commit() error {
	tmpName := r.finalName + ".part"
	f, err := os.Create(tmpName)
	if err != nil {
		return err
	}
	for _, slot := range r.slots {
		if _, err := f.Write(slot); err != nil {
			f.Close()
			os.Remove(tmpName)
			return err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := r.deps.Rename(tmpName, r.finalName); err != nil {
		os.Remove(tmpName)
		return err
	}
	r.slots = nil
	return nil
}
