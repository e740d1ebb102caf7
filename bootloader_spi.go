package spiboot

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type spiBootloader struct {
	t   Transport
	cfg config
}

// NewSPIBootloader creates a bootloader that talks to the device over t.
// The bootloader owns t exclusively; calls must be serialised by the caller.
func NewSPIBootloader(t Transport, opts ...Option) Bootloader {
	return &spiBootloader{
		t:   t,
		cfg: newConfig(opts),
	}
}

// send transmits a frame without waiting for the handshake.
func (b *spiBootloader) send(op string, frame []byte) error {
	b.cfg.log.Debugf("%s: send % X", op, frame)
	if err := b.t.Tx(frame, nil); err != nil {
		return newError(op, ResultTransportFault, err)
	}
	return nil
}

// sendFrame transmits a frame and waits for the device to acknowledge it.
func (b *spiBootloader) sendFrame(op string, frame []byte, timeout time.Duration) error {
	if err := b.send(op, frame); err != nil {
		return err
	}
	return b.waitAck(op, timeout)
}

func (b *spiBootloader) sendCommand(op string, cmd byte) error {
	err := b.sendFrame(op, NewCommandFrame(cmd), b.cfg.ackTimeout)
	if err != nil {
		b.cfg.log.Errorf("%s: command 0x%02X not acknowledged: %v", op, cmd, err)
	}
	return err
}

// receive clocks n bytes out of the device.
func (b *spiBootloader) receive(op string, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.t.Tx(nil, buf); err != nil {
		return nil, newError(op, ResultTransportFault, err)
	}
	b.cfg.log.Debugf("%s: received % X", op, buf)
	return buf, nil
}

func (b *spiBootloader) Connect() error {
	const op = "connect"
	resp := []byte{StartOfFrame}
	if err := b.t.Tx(resp, resp); err != nil {
		return newError(op, ResultTransportFault, err)
	}
	if resp[0] != Dummy {
		b.cfg.log.Errorf("%s: got 0x%02X instead of 0x%02X, check the bootloader activation pattern and power up the device", op, resp[0], Dummy)
		return newError(op, ResultDUTIllegalOperation, fmt.Errorf("sync answered 0x%02X", resp[0]))
	}
	return b.waitAck(op, b.cfg.ackTimeout)
}

// readList reads the variable length answer of the Get and Get ID commands:
// a Dummy status byte, the number of bytes to follow minus one, the bytes and a
// final handshake.
func (b *spiBootloader) readList(op string) ([]byte, error) {
	header, err := b.receive(op, 2)
	if err != nil {
		return nil, err
	}
	if header[0] != Dummy {
		b.cfg.log.Errorf("%s: bad status byte 0x%02X", op, header[0])
		return nil, newError(op, ResultHardwareFault, fmt.Errorf("status byte 0x%02X", header[0]))
	}
	n := header[1]
	if n >= Dummy {
		b.cfg.log.Warnf("%s: count 0x%02X >= 0x%02X, retrying", op, n, Dummy)
		if err := b.waitAck(op, b.cfg.ackTimeout); err != nil {
			return nil, err
		}
		if header, err = b.receive(op, 2); err != nil {
			return nil, err
		}
		if n = header[1]; n >= Dummy {
			b.cfg.log.Errorf("%s: count 0x%02X >= 0x%02X after retry", op, n, Dummy)
			return nil, newError(op, ResultHardwareFault, fmt.Errorf("invalid count 0x%02X", n))
		}
	}
	data, err := b.receive(op, int(n)+1)
	if err != nil {
		return nil, err
	}
	if err := b.waitAck(op, b.cfg.ackTimeout); err != nil {
		return nil, err
	}
	return data, nil
}

func (b *spiBootloader) GetCommand() (CommandSet, error) {
	const op = "get command"
	if err := b.sendCommand(op, CommandGet); err != nil {
		return CommandSet{}, err
	}
	data, err := b.readList(op)
	if err != nil {
		return CommandSet{}, err
	}
	return CommandSet{Version: data[0], Commands: data[1:]}, nil
}

func (b *spiBootloader) GetVersion() (byte, error) {
	const op = "get version"
	if err := b.sendCommand(op, CommandGetVersion); err != nil {
		return 0, err
	}
	resp, err := b.receive(op, 2)
	if err != nil {
		return 0, err
	}
	if err := b.waitAck(op, b.cfg.ackTimeout); err != nil {
		return 0, err
	}
	return resp[1], nil
}

func (b *spiBootloader) GetID() ([]byte, error) {
	const op = "get id"
	if err := b.sendCommand(op, CommandGetID); err != nil {
		return nil, err
	}
	return b.readList(op)
}

func (b *spiBootloader) ReadMemory(address uint32, size int) ([]byte, error) {
	const op = "read memory"
	sizeFrame, err := NewSizeFrame(size)
	if err != nil {
		b.cfg.log.Errorf("%s: %v", op, err)
		return nil, newError(op, ResultParamFault, err)
	}
	if err := b.sendCommand(op, CommandReadMemory); err != nil {
		return nil, err
	}
	if err := b.sendFrame(op, NewAddressFrame(address), b.cfg.ackTimeout); err != nil {
		return nil, err
	}
	if err := b.sendFrame(op, sizeFrame, b.cfg.ackTimeout); err != nil {
		return nil, err
	}
	// The first byte clocked out is a placeholder.
	resp, err := b.receive(op, size+1)
	if err != nil {
		return nil, err
	}
	return resp[1:], nil
}

// WriteMemory writes up to MaxFrameSize bytes. Flash writes must be 16-bit
// aligned; an odd length is padded with 0xFF. The device reports no error for
// writes to write protected pages.
func (b *spiBootloader) WriteMemory(address uint32, data []byte) error {
	const op = "write memory"
	frame, err := NewWriteMemoryFrame(data)
	if err != nil {
		b.cfg.log.Errorf("%s: %v", op, err)
		return newError(op, ResultParamFault, err)
	}
	if err := b.sendCommand(op, CommandWriteMemory); err != nil {
		return err
	}
	if err := b.sendFrame(op, NewAddressFrame(address), b.cfg.ackTimeout); err != nil {
		return err
	}
	return b.sendFrame(op, frame, b.cfg.ackTimeout)
}

// EraseMemory erases pageNum pages starting at startPage. A pageNum whose
// code (pageNum-1) is in 0xFFF0-0xFFFF selects a special erase and ignores
// startPage: 0x10000 is a global mass erase, 0xFFFF bank 1 and 0xFFFE bank 2.
func (b *spiBootloader) EraseMemory(startPage, pageNum uint32) error {
	const op = "erase memory"
	if startPage > 0xFF00 {
		return paramError(op, "start page 0x%X above 0xFF00", startPage)
	}
	if pageNum < 1 || pageNum > 0x10000 {
		return paramError(op, "page count 0x%X out of range 1-0x10000", pageNum)
	}
	code := uint16(pageNum - 1)
	special := IsSpecialErase(code)
	if !special && startPage+uint32(code) > 0xFFFF {
		return paramError(op, "last page 0x%X out of range", startPage+uint32(code))
	}

	if err := b.sendCommand(op, CommandErase); err != nil {
		return err
	}
	if special {
		b.cfg.log.Debugf("%s: special erase 0x%04X", op, code)
		return b.sendFrame(op, NewEraseHeaderFrame(code), b.cfg.eraseTimeout)
	}
	if err := b.sendFrame(op, NewEraseHeaderFrame(code), b.cfg.ackTimeout); err != nil {
		return err
	}
	chunks, checksum := NewPageListChunks(startPage, pageNum)
	for _, chunk := range chunks {
		if err := b.send(op, chunk); err != nil {
			return err
		}
	}
	if err := b.sendFrame(op, []byte{checksum}, b.cfg.eraseTimeout); err != nil {
		b.cfg.log.Errorf("%s: pages 0x%X+%d: %v", op, startPage, pageNum, err)
		return err
	}
	return nil
}

func (b *spiBootloader) Go(address uint32) error {
	const op = "go"
	if err := b.sendCommand(op, CommandGo); err != nil {
		return err
	}
	return b.sendFrame(op, NewAddressFrame(address), b.cfg.ackTimeout)
}

// WriteProtect enables write protection of pageNum pages starting at
// startPage. The device resets afterwards and is resynchronised.
func (b *spiBootloader) WriteProtect(startPage, pageNum uint32) error {
	const op = "write protect"
	if startPage >= 256 {
		return paramError(op, "start page %d above 255", startPage)
	}
	if pageNum < 1 || pageNum > 256 {
		return paramError(op, "page count %d out of range 1-256", pageNum)
	}
	if startPage+pageNum > 256 {
		return paramError(op, "last page %d above 255", startPage+pageNum-1)
	}
	if err := b.sendCommand(op, CommandWriteProtect); err != nil {
		return err
	}
	count, pages := NewWriteProtectFrames(startPage, pageNum)
	if err := b.sendFrame(op, count, b.cfg.ackTimeout); err != nil {
		return err
	}
	if err := b.sendFrame(op, pages, b.cfg.ackTimeout); err != nil {
		return err
	}
	return b.resync(op)
}

// WriteUnprotect disables write protection of the whole flash. The device
// resets afterwards and is resynchronised.
func (b *spiBootloader) WriteUnprotect() error {
	return b.protectCommand("write unprotect", CommandWriteUnprotect, true)
}

// ReadoutProtect enables flash read protection. The device resets afterwards
// and is resynchronised.
func (b *spiBootloader) ReadoutProtect() error {
	return b.protectCommand("readout protect", CommandReadoutProtect, false)
}

// ReadoutUnprotect disables flash read protection, which mass erases the
// flash. The device resets afterwards and is resynchronised.
func (b *spiBootloader) ReadoutUnprotect() error {
	return b.protectCommand("readout unprotect", CommandReadoutUnprotect, true)
}

// protectCommand runs one of the reset inducing protection commands. After
// the command ACK the device needs time to process it before it confirms,
// either after a filler frame or on its own.
func (b *spiBootloader) protectCommand(op string, cmd byte, filler bool) error {
	if err := b.sendCommand(op, cmd); err != nil {
		return err
	}
	b.cfg.sleep(b.cfg.processingDelay)
	var err error
	if filler {
		err = b.sendFrame(op, []byte{Idle}, b.cfg.ackTimeout)
	} else {
		err = b.waitAck(op, b.cfg.ackTimeout)
	}
	if err != nil {
		b.cfg.log.Errorf("%s: not confirmed: %v", op, err)
		return err
	}
	return b.resync(op)
}

// resync waits for the device to come back from its self reset and repeats
// the identify handshake.
func (b *spiBootloader) resync(op string) error {
	b.cfg.sleep(b.cfg.resetDelay)
	if err := b.Connect(); err != nil {
		b.cfg.log.Errorf("%s: resynchronise after reset: %v", op, err)
		return errors.Wrapf(err, "%s: resynchronise", op)
	}
	return nil
}
