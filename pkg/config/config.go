// Package config loads the ftag command-line tool's profile settings
// from an ini file: transport selection, framer/link tuning, and
// default file-transfer parameters, so a deployment can pin its UART
// device and block size without repeating flags on every invocation.
package config

import (
	"strconv"

	"gopkg.in/ini.v1"
)

// Profile is the resolved, typed configuration for one named transport
// profile, parsed out of a single ini section.
type Profile struct {
	Name string

	// Transport names the PHY: "uart", "stdio", or "loopback". cmd/ftag
	// does not read it; it picks the PHY from Device instead.
	Transport string
	Device    string
	BaudRate  int

	BlockSize  int
	Repeats    int
	StartMeta  int
	MetaEveryN int

	// InterPacketDelayMs throttles the sender: a sleep of roughly this
	// many milliseconds between Tick calls, 0 disables throttling.
	InterPacketDelayMs int

	FillBufferSize int
}

func defaultProfile(name string) Profile {
	return Profile{
		Name:               name,
		Transport:          "stdio",
		BaudRate:           115200,
		BlockSize:          50,
		Repeats:            0,
		StartMeta:          1,
		MetaEveryN:         2000,
		InterPacketDelayMs: 0,
		FillBufferSize:     256,
	}
}

// Load parses path as an ini file and returns the named section's
// Profile, seeded with defaults for any key the section omits. An
// empty section name loads the file's default (unnamed) section.
func Load(path string, section string) (Profile, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Profile{}, err
	}
	return fromSection(f.Section(section), section)
}

func fromSection(sec *ini.Section, name string) (Profile, error) {
	p := defaultProfile(name)

	if sec.HasKey("transport") {
		p.Transport = sec.Key("transport").String()
	}
	if sec.HasKey("device") {
		p.Device = sec.Key("device").String()
	}

	var err error
	p.BaudRate, err = intOr(sec, "baud_rate", p.BaudRate)
	if err != nil {
		return Profile{}, err
	}
	p.BlockSize, err = intOr(sec, "block_size", p.BlockSize)
	if err != nil {
		return Profile{}, err
	}
	p.Repeats, err = intOr(sec, "repeats", p.Repeats)
	if err != nil {
		return Profile{}, err
	}
	p.StartMeta, err = intOr(sec, "start_meta", p.StartMeta)
	if err != nil {
		return Profile{}, err
	}
	p.MetaEveryN, err = intOr(sec, "meta_every_n", p.MetaEveryN)
	if err != nil {
		return Profile{}, err
	}
	p.InterPacketDelayMs, err = intOr(sec, "inter_packet_delay_ms", p.InterPacketDelayMs)
	if err != nil {
		return Profile{}, err
	}
	p.FillBufferSize, err = intOr(sec, "fill_buffer_size", p.FillBufferSize)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

func intOr(sec *ini.Section, key string, fallback int) (int, error) {
	if !sec.HasKey(key) {
		return fallback, nil
	}
	return strconv.Atoi(sec.Key(key).Value())
}
