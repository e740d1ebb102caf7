package spiboot

import (
	"fmt"

	"periph.io/x/conn/v3/spi"
)

// Transport exchanges bytes with the device. Each call is one chip-select
// framed transfer of max(len(w), len(r)) bytes: w is clocked out while the
// device's bytes are captured into r. A nil w clocks out idle bytes, a nil r
// discards what the device sent.
//
// A Transport is owned by a single bootloader and is not safe for concurrent use.
type Transport interface {
	Tx(w, r []byte) error
}

// ClockMode is the SPI clock polarity/phase combination.
type ClockMode int

// SPI clock modes.
const (
	Mode0 ClockMode = iota // CPOL=0, CPHA=0
	Mode1                  // CPOL=0, CPHA=1
	Mode2                  // CPOL=1, CPHA=0
	Mode3                  // CPOL=1, CPHA=1
)

// NewClockMode returns the mode for the given polarity and phase.
func NewClockMode(cpol, cpha bool) ClockMode {
	m := Mode0
	if cpol {
		m |= Mode2
	}
	if cpha {
		m |= Mode1
	}
	return m
}

// Polarity reports CPOL.
func (m ClockMode) Polarity() bool { return m&Mode2 != 0 }

// Phase reports CPHA.
func (m ClockMode) Phase() bool { return m&Mode1 != 0 }

func (m ClockMode) String() string {
	return fmt.Sprintf("mode%d", int(m))
}

func (m ClockMode) spiMode() (spi.Mode, error) {
	switch m {
	case Mode0:
		return spi.Mode0, nil
	case Mode1:
		return spi.Mode1, nil
	case Mode2:
		return spi.Mode2, nil
	case Mode3:
		return spi.Mode3, nil
	}
	return 0, fmt.Errorf("invalid clock mode %d", int(m))
}

// txLength returns the transfer length of a Tx call.
func txLength(w, r []byte) int {
	if len(w) > len(r) {
		return len(w)
	}
	return len(r)
}
