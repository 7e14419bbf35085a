package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/djwhale/ftag/internal/hexline"
	"github.com/djwhale/ftag/pkg/config"
	"github.com/djwhale/ftag/pkg/fileagent"
	"github.com/djwhale/ftag/pkg/link"
	"github.com/djwhale/ftag/pkg/phy"
	"github.com/djwhale/ftag/pkg/platform"
	"github.com/djwhale/ftag/pkg/task"
	"github.com/djwhale/ftag/pkg/transfer"
)

const dataChannel uint8 = 0x01

var deps platform.Deps = platform.Host{}

func main() {
	log.SetLevel(log.InfoLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "receive":
		err = runReceive(os.Args[2:])
	case "loopback":
		err = runLoopback(os.Args[2:])
	case "bin2hex":
		err = runBin2Hex(os.Args[2:])
	case "hex2bin":
		err = runHex2Bin(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.WithError(err).Error("ftag: command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ftag <send|receive|loopback|bin2hex|hex2bin> [flags]")
}

func openTransport(device string, baud int) (phy.PHY, error) {
	if device == "" || device == "-" {
		return &phy.StdioPHY{R: os.Stdin, W: os.Stdout}, nil
	}
	return phy.OpenUART(device, baud)
}

// scanFlagValue looks up a "-name value", "-name=value", or
// "--name=value" style argument directly in args, without going
// through flag.Parse, so it also finds -config/-profile given after
// the positional filename, where flag parsing stops.
func scanFlagValue(args []string, name, fallback string) string {
	for i, a := range args {
		if a == "-"+name || a == "--"+name {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		if strings.HasPrefix(a, "-"+name+"=") {
			return strings.TrimPrefix(a, "-"+name+"=")
		}
		if strings.HasPrefix(a, "--"+name+"=") {
			return strings.TrimPrefix(a, "--"+name+"=")
		}
	}
	return fallback
}

// loadProfile reads -config/-profile directly out of args, returning
// the defaults a subcommand's own flags should fall back to when
// unset. An empty -config disables profile loading entirely.
func loadProfile(args []string) (config.Profile, error) {
	configPath := scanFlagValue(args, "config", "")
	if configPath == "" {
		return config.Profile{}, nil
	}
	section := scanFlagValue(args, "profile", "default")
	return config.Load(configPath, section)
}

// applyUnsetFlags overrides any flag in fs the user didn't explicitly
// pass on the command line, using apply[name] to set its value from a
// loaded config.Profile.
func applyUnsetFlags(fs *flag.FlagSet, apply map[string]func()) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, fn := range apply {
		if !set[name] {
			fn()
		}
	}
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	device := fs.String("d", "", "serial device, or \"-\" for stdio")
	baud := fs.Int("b", 115200, "baud rate")
	blockSize := fs.Int("blocksize", 50, "block size in bytes")
	metaEveryN := fs.Int("meta-every", fileagent.DefaultMetaEveryN, "ticks between META re-announcements")
	pps := fs.Int("p", 0, "outbound packets per second, 0 disables throttling")
	noiseProb := fs.Int("noise-prob", 0, "percent chance (0-100) of corrupting an outbound frame, for testing")
	configPath := fs.String("config", "", "ini profile to load defaults from")
	fs.String("profile", "default", "ini section within -config to read")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("send: missing filename")
	}
	filename := fs.Arg(0)

	prof, err := loadProfile(args)
	if err != nil {
		return err
	}
	if *configPath != "" {
		applyUnsetFlags(fs, map[string]func(){
			"d":          func() { *device = prof.Device },
			"b":          func() { *baud = prof.BaudRate },
			"blocksize":  func() { *blockSize = prof.BlockSize },
			"meta-every": func() { *metaEveryN = prof.MetaEveryN },
		})
	}

	transport, err := openTransport(*device, *baud)
	if err != nil {
		return err
	}
	if *noiseProb > 0 {
		transport = phy.NewNoisy(transport, phy.NoiseSpec{Prob: *noiseProb, Drop: 0, Byte: &phy.ByteSpec{Num: 1}})
	}

	linkSender := link.NewSender(transport)
	sender, err := fileagent.NewSender(filename, linkSender, dataChannel, deps,
		fileagent.WithBlockSize(*blockSize), fileagent.WithMetaEveryN(*metaEveryN))
	if err != nil {
		return err
	}

	delayMs := prof.InterPacketDelayMs
	if *pps > 0 {
		delayMs = 1000 / *pps
	}

	log.WithField("file", filename).Info("ftag: sending")
	runThrottled(sender, delayMs)
	log.Info("ftag: send complete")
	return nil
}

// runThrottled ticks sender to completion, sleeping between ticks so
// it emits roughly one packet per delayMs milliseconds. delayMs <= 0
// means unthrottled, matching ftag.py's send(pps=None) path.
func runThrottled(sender *fileagent.Sender, delayMs int) {
	if delayMs <= 0 {
		sender.Run()
		return
	}
	for sender.IsRunning() {
		start := deps.MonotonicMillis()
		sender.Tick()
		elapsed := int(deps.MonotonicMillis() - start)
		if sleep := delayMs - elapsed; sleep > 0 {
			deps.SleepMillis(sleep)
		}
	}
}

func runReceive(args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	device := fs.String("d", "", "serial device, or \"-\" for stdio")
	baud := fs.Int("b", 115200, "baud rate")
	timeoutSec := fs.Int("timeout", 30, "give up after this many seconds with no progress")
	configPath := fs.String("config", "", "ini profile to load defaults from")
	fs.String("profile", "default", "ini section within -config to read")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("receive: missing output filename")
	}
	filename := fs.Arg(0)

	prof, err := loadProfile(args)
	if err != nil {
		return err
	}
	if *configPath != "" {
		applyUnsetFlags(fs, map[string]func(){
			"d": func() { *device = prof.Device },
			"b": func() { *baud = prof.BaudRate },
		})
	}

	transport, err := openTransport(*device, *baud)
	if err != nil {
		return err
	}

	linkReceiver := link.NewReceiver(transport)
	receiver := fileagent.NewReceiver(linkReceiver, dataChannel, filename, deps)

	deadline := time.Now().Add(time.Duration(*timeoutSec) * time.Second)
	log.WithField("file", filename).Info("ftag: receiving")
	for receiver.State() != transfer.Finishing {
		if time.Now().After(deadline) {
			return fmt.Errorf("receive: timed out waiting for data")
		}
		delivered, err := linkReceiver.Poll(50)
		if err != nil {
			return err
		}
		if !delivered {
			continue
		}
		deadline = time.Now().Add(time.Duration(*timeoutSec) * time.Second)
		payload, blockno, rerr := linkReceiver.RecvFor(dataChannel)
		if rerr == nil {
			// Data seen before the first META is skipped; META repeats
			// let a late-joining receiver pick the transfer up.
			if err := receiver.Deliver(payload, blockno); err != nil && err != transfer.ErrUnknownExtent {
				return err
			}
		}
	}

	state, err := receiver.Finish()
	if err != nil {
		return err
	}
	if state != transfer.FinishedOk {
		return fmt.Errorf("receive: transfer finished incomplete")
	}
	log.Info("ftag: receive complete")
	return nil
}

// runLoopback sends and receives over an in-memory PHY pair in the
// same process, ticking both agents round-robin via pkg/task the way
// the original's loopback() drives tasking.run_all([sender, receiver]).
func runLoopback(args []string) error {
	fs := flag.NewFlagSet("loopback", flag.ExitOnError)
	blockSize := fs.Int("blocksize", 50, "block size in bytes")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("loopback: usage: loopback <src> <dst>")
	}
	srcFilename, dstFilename := fs.Arg(0), fs.Arg(1)

	txPhy, rxPhy := phy.NewLoopbackPair()
	linkSender := link.NewSender(txPhy)
	linkReceiver := link.NewReceiver(rxPhy)

	sender, err := fileagent.NewSender(srcFilename, linkSender, dataChannel, deps, fileagent.WithBlockSize(*blockSize))
	if err != nil {
		return err
	}
	receiver := fileagent.NewReceiver(linkReceiver, dataChannel, dstFilename, deps)

	var recvErr error
	receiveTask := task.Func(func() bool {
		if receiver.State() == transfer.Finishing {
			return false
		}
		delivered, err := linkReceiver.Poll(5)
		if err != nil {
			recvErr = err
			return false
		}
		if !delivered {
			return true
		}
		payload, blockno, rerr := linkReceiver.RecvFor(dataChannel)
		if rerr == nil {
			if err := receiver.Deliver(payload, blockno); err != nil {
				recvErr = err
				return false
			}
		}
		return true
	})

	log.WithFields(log.Fields{"src": srcFilename, "dst": dstFilename}).Info("ftag: loopback running")
	task.NewRunner(task.Func(sender.Tick), receiveTask).Run()
	if recvErr != nil {
		return recvErr
	}

	state, err := receiver.Finish()
	if err != nil {
		return err
	}
	if state != transfer.FinishedOk {
		return fmt.Errorf("loopback: transfer finished incomplete")
	}
	log.Info("ftag: loopback complete")
	return nil
}

func runBin2Hex(args []string) error {
	r := bufio.NewReader(os.Stdin)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			fmt.Fprintln(w, hexline.Encode(buf[:n]))
		}
		if err != nil {
			break
		}
	}
	return nil
}

func runHex2Bin(args []string) error {
	scanner := bufio.NewScanner(os.Stdin)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for scanner.Scan() {
		w.Write(hexline.Decode(scanner.Text()))
	}
	return scanner.Err()
}
