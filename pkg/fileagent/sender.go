package fileagent

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/djwhale/ftag/pkg/link"
	"github.com/djwhale/ftag/pkg/platform"
	"github.com/djwhale/ftag/pkg/transfer"
)

const (
	// DefaultStartMeta is how many leading ticks send META instead of a
	// data block, guaranteeing an early receiver sees it before data.
	DefaultStartMeta = 1
	// DefaultMetaEveryN re-sends META on a cadence so a late-joining
	// receiver still learns the transfer's shape.
	DefaultMetaEveryN = 2000

	defaultBlockSize = 50
)

// Sender specializes transfer.Sender with file-aware metadata: it
// computes the file's size and SHA-256 digest up front, builds a
// cached META record, and interleaves it with the base sender's block
// ticks on a schedule.
type Sender struct {
	base    *transfer.Sender
	link    *link.Sender
	channel uint8
	source  *os.File

	metaRecord []byte
	startMeta  int
	metaEveryN int

	ticks uint64
	done  bool
}

// Option configures Sender construction.
type Option func(*senderConfig)

type senderConfig struct {
	blockSize  int
	startMeta  int
	metaEveryN int
	chooser    transfer.Chooser
}

// WithBlockSize overrides the default block size (50 bytes, matching
// the reference hardware's UART MTU headroom).
func WithBlockSize(n int) Option { return func(c *senderConfig) { c.blockSize = n } }

// WithStartMeta overrides how many leading ticks announce META.
func WithStartMeta(n int) Option { return func(c *senderConfig) { c.startMeta = n } }

// WithMetaEveryN overrides the META re-announcement cadence.
func WithMetaEveryN(n int) Option { return func(c *senderConfig) { c.metaEveryN = n } }

// WithChooser overrides the default sequential block-choice policy.
func WithChooser(c transfer.Chooser) Option {
	return func(cfg *senderConfig) { cfg.chooser = c }
}

// NewSender opens filename, hashes it, and builds a Sender that emits
// its contents plus periodic META records on s, using channel as the
// data channel (its control-bit sibling carries META/END). deps
// supplies the file size, basename, and hash primitive, the same seam
// the original threads as platdeps through dttk.get_file_info.
func NewSender(filename string, s *link.Sender, channel uint8, deps platform.Deps, opts ...Option) (*Sender, error) {
	cfg := senderConfig{blockSize: defaultBlockSize, startMeta: DefaultStartMeta, metaEveryN: DefaultMetaEveryN}
	for _, o := range opts {
		o(&cfg)
	}

	size, err := deps.FileSize(filename)
	if err != nil {
		return nil, err
	}

	hashFile, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	hasher := deps.NewSHA256()
	_, err = io.Copy(hasher, hashFile)
	hashFile.Close()
	if err != nil {
		return nil, err
	}

	nblocks := int(size) / cfg.blockSize
	lastblock := int(size) % cfg.blockSize

	var digest [shaLen]byte
	copy(digest[:], hasher.Sum(nil))

	meta := Meta{
		NBlocks:   uint16(nblocks),
		BlockSz:   uint8(cfg.blockSize),
		LastBlock: uint8(lastblock),
		SHA256:    digest,
		Filename:  deps.Basename(filename),
	}

	rf, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	reader := func(nbytes int, offset int64) ([]byte, error) {
		if offset >= size {
			return nil, io.EOF
		}
		buf := make([]byte, nbytes)
		n, err := rf.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return nil, err
		}
		return buf[:n], nil
	}

	base := transfer.NewSender(reader, s, channel, cfg.blockSize, cfg.chooser)

	log.WithFields(log.Fields{
		"file": filename, "size": size, "nblocks": nblocks, "lastblock": lastblock,
	}).Info("fileagent: sender ready")

	return &Sender{
		base:       base,
		link:       s,
		channel:    channel,
		source:     rf,
		metaRecord: EncodeMeta(meta),
		startMeta:  cfg.startMeta,
		metaEveryN: cfg.metaEveryN,
	}, nil
}

// Close releases the sender's open file handle. Safe to call after the
// transfer has finished; calling it early aborts any further Tick.
func (s *Sender) Close() error {
	s.done = true
	return s.source.Close()
}

// IsRunning reports whether Tick should still be called.
func (s *Sender) IsRunning() bool { return !s.done }

// Tick sends either a META record or delegates to the base sender's
// block logic, per the interleaving schedule.
func (s *Sender) Tick() bool {
	if s.done {
		return false
	}
	s.ticks++

	sendMeta := s.ticks <= uint64(s.startMeta) ||
		(s.metaEveryN > 0 && s.ticks%uint64(s.metaEveryN) == 0)

	if sendMeta {
		if err := s.link.SendMeta(s.metaRecord, s.channel); err != nil {
			log.WithError(err).Warn("fileagent: failed to send meta")
		}
		return true
	}

	running := s.base.Tick()
	if !running {
		s.done = true
		s.source.Close()
	}
	return !s.done
}

// Run calls Tick until the transfer finishes.
func (s *Sender) Run() {
	for s.Tick() {
	}
}
