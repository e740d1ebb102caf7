// Package spiboot implements the host side of the STM32 SPI system memory
// bootloader protocol (ST AN4286): it erases, writes, reads and verifies device
// flash over a byte oriented SPI transport using the command/ACK handshake.
//
// The package contains three layers. Bootloader provides a transport-agnostic way
// of issuing the individual bootloader commands. Memory chunks arbitrary length
// reads and writes into bootloader frames and masks the flash write erratum by
// reading every written chunk back. Programmer drives firmware images (raw binary
// or Intel HEX) through a Memory. Engine bundles the three over one Transport.
//
// Also included is a command line tool, found in the cmd/spiboot directory,
// that serves as both an example on how to use the library and a fully functional
// host program to program, verify and dump devices.
package spiboot

import "fmt"

// The Bootloader interface allows low-level interaction with the device bootloader.
// For higher level transfers, use the Memory and Programmer types.
type Bootloader interface {
	// Connect performs the identify handshake that synchronises with a device
	// which has been started in bootloader mode.
	Connect() error
	GetCommand() (CommandSet, error)
	GetVersion() (byte, error)
	GetID() ([]byte, error)
	ReadMemory(address uint32, size int) ([]byte, error)
	WriteMemory(address uint32, data []byte) error
	EraseMemory(startPage, pageNum uint32) error
	Go(address uint32) error
	WriteProtect(startPage, pageNum uint32) error
	WriteUnprotect() error
	ReadoutProtect() error
	ReadoutUnprotect() error
}

// CommandSet holds the result of the Get command.
type CommandSet struct {
	// Version is the protocol version, e.g. 0x11 for v1.1.
	Version  byte
	Commands []byte
}

// Supports reports whether the device lists cmd.
func (c CommandSet) Supports(cmd byte) bool {
	for _, b := range c.Commands {
		if b == cmd {
			return true
		}
	}
	return false
}

// Bootloader command codes.
const (
	CommandGet              = 0x00
	CommandGetVersion       = 0x01
	CommandGetID            = 0x02
	CommandReadMemory       = 0x11
	CommandGo               = 0x21
	CommandWriteMemory      = 0x31
	CommandErase            = 0x44
	CommandWriteProtect     = 0x63
	CommandWriteUnprotect   = 0x73
	CommandReadoutProtect   = 0x82
	CommandReadoutUnprotect = 0x92
	CommandGetChecksum      = 0xA1
)

// Wire markers.
const (
	StartOfFrame = 0x5A
	ACK          = 0x79
	NAK          = 0x1F
	Dummy        = 0xA5
	Idle         = 0x00
)

// MaxFrameSize is the largest payload a single read or write transaction carries.
const MaxFrameSize = 256

// Special erase codes. Any code in 0xFFF0-0xFFFF selects a special erase and
// is sent without a page list.
const (
	EraseGlobal   = 0xFFFF
	EraseBank1    = 0xFFFE
	EraseBank2    = 0xFFFD
	eraseSpecials = 0xFFF0
)

// CommandName returns a printable name of a bootloader command code.
func CommandName(cmd byte) string {
	switch cmd {
	case CommandGet:
		return "get"
	case CommandGetVersion:
		return "get version"
	case CommandGetID:
		return "get id"
	case CommandReadMemory:
		return "read memory"
	case CommandGo:
		return "go"
	case CommandWriteMemory:
		return "write memory"
	case CommandErase:
		return "erase"
	case CommandWriteProtect:
		return "write protect"
	case CommandWriteUnprotect:
		return "write unprotect"
	case CommandReadoutProtect:
		return "readout protect"
	case CommandReadoutUnprotect:
		return "readout unprotect"
	case CommandGetChecksum:
		return "get checksum"
	default:
		return fmt.Sprintf("command 0x%02X", cmd)
	}
}
