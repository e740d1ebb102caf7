package spiboot

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// WindowSize is the size of the file windows the Programmer streams.
const WindowSize = 4 * 1024

// DumpSuffix is appended to the file name given to Dump.
const DumpSuffix = ".readback"

// Progress describes how far a Programmer operation has got.
type Progress struct {
	Op      string
	Address uint32
	Done    int
	Total   int
}

// ProgressFunc receives progress reports. It is called synchronously and
// should return quickly.
type ProgressFunc func(Progress)

// Programmer programs, dumps and verifies firmware images through a Memory.
type Programmer struct {
	mem Memory
	cfg config
}

// NewProgrammer creates a programmer that uses the provided memory.
func NewProgrammer(m Memory, opts ...Option) *Programmer {
	return &Programmer{
		mem: m,
		cfg: newConfig(opts),
	}
}

// DumpPath returns the name of the file Dump writes for path.
func DumpPath(path string) string {
	return path + DumpSuffix
}

// openImage opens path and checks that [offset, offset+size) lies within it
// before positioning the file at offset.
func (p *Programmer) openImage(op, path string, size int, offset int64) (*os.File, error) {
	if path == "" {
		return nil, newError(op, ResultNullParam, errors.New("no file name"))
	}
	if size < 0 || offset < 0 {
		return nil, paramError(op, "size %d offset %d", size, offset)
	}
	file, err := os.Open(path)
	if err != nil {
		p.cfg.log.Errorf("%s: open %s: %v", op, path, err)
		return nil, newError(op, ResultFileError, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, newError(op, ResultFileError, err)
	}
	p.cfg.log.Infof("file %s size %d bytes", path, info.Size())
	if offset > info.Size() || info.Size()-offset < int64(size) {
		file.Close()
		p.cfg.log.Errorf("%s: range %d+%d exceeds file size %d", op, offset, size, info.Size())
		return nil, newError(op, ResultFileNotSuitable,
			errors.Errorf("range %d+%d exceeds file size %d", offset, size, info.Size()))
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, newError(op, ResultFileError, err)
	}
	return file, nil
}

// windows calls f for every WindowSize window of a size byte transfer.
func (p *Programmer) windows(op string, address uint32, size int, f func(addr uint32, n int) error) error {
	for done := 0; done < size; {
		n := size - done
		if n > WindowSize {
			n = WindowSize
		}
		addr := address + uint32(done)
		if err := f(addr, n); err != nil {
			p.cfg.log.Errorf("%s %08X size %d failed: %v", op, addr, n, err)
			return err
		}
		done += n
		p.cfg.log.Infof("%s %08X size %d, done %d of %d", op, addr, n, done, size)
		if p.cfg.progress != nil {
			p.cfg.progress(Progress{Op: op, Address: addr, Done: done, Total: size})
		}
	}
	return nil
}

// Program writes size bytes of the file at path, starting at offset, to the
// device at address.
func (p *Programmer) Program(path string, address uint32, size int, offset int64) error {
	const op = "program"
	file, err := p.openImage(op, path, size, offset)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, WindowSize)
	return p.windows(op, address, size, func(addr uint32, n int) error {
		if _, err := io.ReadFull(file, buf[:n]); err != nil {
			return newError(op, ResultFileError, err)
		}
		return p.mem.Write(addr, buf[:n])
	})
}

// Dump reads size bytes from address into DumpPath(path), replacing any
// existing file.
func (p *Programmer) Dump(path string, address uint32, size int) error {
	const op = "dump"
	if path == "" {
		return newError(op, ResultNullParam, errors.New("no file name"))
	}
	if size < 0 {
		return paramError(op, "negative size %d", size)
	}
	file, err := os.Create(DumpPath(path))
	if err != nil {
		p.cfg.log.Errorf("%s: create %s: %v", op, DumpPath(path), err)
		return newError(op, ResultFileError, err)
	}
	defer file.Close()

	err = p.windows(op, address, size, func(addr uint32, n int) error {
		data, err := p.mem.Read(addr, n)
		if err != nil {
			return err
		}
		if _, err := file.Write(data); err != nil {
			return newError(op, ResultFileError, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return newError(op, ResultFileError, err)
	}
	return nil
}

// Verify compares size bytes of the file at path, starting at offset, with
// the device memory at address.
func (p *Programmer) Verify(path string, address uint32, size int, offset int64) error {
	const op = "verify"
	file, err := p.openImage(op, path, size, offset)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, WindowSize)
	return p.windows(op, address, size, func(addr uint32, n int) error {
		if _, err := io.ReadFull(file, buf[:n]); err != nil {
			return newError(op, ResultFileError, err)
		}
		data, err := p.mem.Read(addr, n)
		if err != nil {
			return err
		}
		return compare(op, addr, buf[:n], data)
	})
}

// compare returns a checkout error naming the first differing address.
func compare(op string, addr uint32, want, got []byte) error {
	if bytes.Equal(want, got) {
		return nil
	}
	for i := range want {
		if i >= len(got) || want[i] != got[i] {
			var read byte
			if i < len(got) {
				read = got[i]
			}
			return newError(op, ResultCheckoutError,
				errors.Wrapf(ErrVerify, "mismatch at %08X, expected %02X read %02X", addr+uint32(i), want[i], read))
		}
	}
	return newError(op, ResultCheckoutError, errors.Wrapf(ErrVerify, "length mismatch at %08X", addr))
}
