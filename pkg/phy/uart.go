package phy

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"golang.org/x/sys/unix"
)

// UARTPHY wraps a real serial device, grounded on a similar usock-style
// 8N1 raw-mode connection. The port is opened with no read timeout and
// tarm/serial exposes no per-read override, so RecvInto ignores waitMs
// and blocks until data arrives.
type UARTPHY struct {
	port *serial.Port
	name string
}

// OpenUART opens devicePath at baud, first forcing the line into raw
// mode via termios so stray control characters in the byte stream are
// never intercepted by the driver (no software flow control, no
// canonical line editing, no signal generation).
func OpenUART(devicePath string, baud int) (*UARTPHY, error) {
	if err := setRawMode(devicePath); err != nil {
		log.WithFields(log.Fields{"device": devicePath, "err": err}).Warn("uart: could not force raw mode, continuing anyway")
	}
	cfg := &serial.Config{
		Name:        devicePath,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 0,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", devicePath, err)
	}
	return &UARTPHY{port: port, name: devicePath}, nil
}

func (u *UARTPHY) Send(buf []byte) error {
	_, err := u.port.Write(buf)
	if err != nil {
		log.WithFields(log.Fields{"device": u.name, "err": err}).Warn("uart: send failed")
	}
	return err
}

// RecvInto blocks until at least one byte arrives or the port is
// closed; waitMs is advisory since tarm/serial has no per-call
// deadline, so callers that need strict non-blocking polling should
// prefer LoopbackPHY in tests and accept UART's blocking read in
// production, matching a single-threaded cooperative scheduler where
// a bounded-latency read is acceptable between ticks.
func (u *UARTPHY) RecvInto(buf []byte, waitMs int) (int, error) {
	n, err := u.port.Read(buf)
	if err == io.EOF {
		return n, io.EOF
	}
	return n, err
}

func (u *UARTPHY) Close() error {
	return u.port.Close()
}

// setRawMode opens the device directly to clear any inherited termios
// settings (echo, canonical mode, software flow control) before handing
// it to tarm/serial, grounded on the raw-mode-before-open discipline a
// UART file-transfer PHY needs that a generic serial config struct
// doesn't expose.
func setRawMode(devicePath string) error {
	fd, err := unix.Open(devicePath, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IXON | unix.IXOFF | unix.ICRNL
	t.Lflag &^= unix.ICANON | unix.ECHO | unix.ISIG
	t.Cflag |= unix.CLOCAL | unix.CREAD
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
