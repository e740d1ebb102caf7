package spiboot

import (
	"bytes"

	"github.com/pkg/errors"
)

// Memory is the set of memory operations a Programmer needs from a device.
type Memory interface {
	Read(address uint32, size int) ([]byte, error)
	Write(address uint32, data []byte) error
	Erase4K(page uint32) error
	MassErase() error
}

type flashMemory struct {
	b       Bootloader
	profile Profile
	cfg     config
}

// NewMemory creates a Memory that splits transfers of any length into
// bootloader transactions of at most MaxFrameSize bytes.
func NewMemory(b Bootloader, p Profile, opts ...Option) Memory {
	return &flashMemory{
		b:       b,
		profile: p.withDefaults(),
		cfg:     newConfig(opts),
	}
}

// chunks calls f for every MaxFrameSize window of [address, address+size).
// The first error stops the walk.
func chunks(address uint32, size int, f func(addr uint32, offset, n int) error) error {
	for offset := 0; offset < size; offset += MaxFrameSize {
		n := size - offset
		if n > MaxFrameSize {
			n = MaxFrameSize
		}
		if err := f(address+uint32(offset), offset, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *flashMemory) Read(address uint32, size int) ([]byte, error) {
	if size < 0 {
		return nil, paramError("read", "negative size %d", size)
	}
	data := make([]byte, size)
	err := chunks(address, size, func(addr uint32, offset, n int) error {
		chunk, err := m.b.ReadMemory(addr, n)
		if err != nil {
			m.cfg.log.Errorf("read %08X size %d failed: %v", addr, n, err)
			return errors.Wrapf(err, "read at %08X", addr)
		}
		copy(data[offset:], chunk)
		m.cfg.log.Debugf("read %08X size %d, done %d of %d", addr, n, offset+n, size)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write writes data and reads every chunk back. Some bootloader versions can
// leave random double-words blank during SPI flash writes (AN2606, STM32L45x
// V9.2), so a chunk that does not read back identically is written again, up
// to the configured number of retries.
func (m *flashMemory) Write(address uint32, data []byte) error {
	return chunks(address, len(data), func(addr uint32, offset, n int) error {
		chunk := data[offset : offset+n]
		if err := m.b.WriteMemory(addr, chunk); err != nil {
			m.cfg.log.Errorf("write %08X size %d failed: %v", addr, n, err)
			return errors.Wrapf(err, "write at %08X", addr)
		}
		if err := m.verifyChunk(addr, chunk); err != nil {
			return err
		}
		m.cfg.log.Debugf("write %08X size %d, done %d of %d", addr, n, offset+n, len(data))
		return nil
	})
}

func (m *flashMemory) verifyChunk(addr uint32, chunk []byte) error {
	for attempt := 0; ; attempt++ {
		readback, err := m.b.ReadMemory(addr, len(chunk))
		if err != nil {
			m.cfg.log.Errorf("read back %08X size %d failed: %v", addr, len(chunk), err)
			return errors.Wrapf(err, "read back at %08X", addr)
		}
		if bytes.Equal(readback, chunk) {
			return nil
		}
		if attempt == m.cfg.writeRetries {
			m.cfg.log.Errorf("write %08X size %d still differs after %d retries", addr, len(chunk), attempt)
			return newError("write", ResultCheckoutError,
				errors.Wrapf(ErrVerify, "chunk at %08X after %d retries", addr, attempt))
		}
		m.cfg.log.Warnf("write %08X size %d read back differs, retry %d", addr, len(chunk), attempt+1)
		if err := m.b.WriteMemory(addr, chunk); err != nil {
			m.cfg.log.Errorf("rewrite %08X size %d failed: %v", addr, len(chunk), err)
			return errors.Wrapf(err, "rewrite at %08X", addr)
		}
	}
}

// Erase4K erases the 4 KiB block made of the PagesPer4K pages starting at page.
func (m *flashMemory) Erase4K(page uint32) error {
	return m.b.EraseMemory(page, m.profile.PagesPer4K)
}

func (m *flashMemory) MassErase() error {
	code := m.profile.MassEraseCode
	if !IsSpecialErase(code) {
		return paramError("mass erase", "code 0x%04X is not a special erase code", code)
	}
	if err := m.b.EraseMemory(0, uint32(code)+1); err != nil {
		m.cfg.log.Errorf("mass erase failed: %v", err)
		return err
	}
	return nil
}
