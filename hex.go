package spiboot

import (
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

func loadHex(data io.Reader) ([]gohex.DataSegment, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(data); err != nil {
		return nil, newError("load hex", ResultFileNotSuitable, err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, newError("load hex", ResultFileNotSuitable, errors.New("no data segments"))
	}
	return segments, nil
}

// ProgramHex writes every data segment of the Intel HEX image read from data.
func (p *Programmer) ProgramHex(data io.Reader) error {
	const op = "program hex"
	segments, err := loadHex(data)
	if err != nil {
		return err
	}
	for _, segment := range segments {
		p.cfg.log.Debugf("%s: segment at %08X length %d", op, segment.Address, len(segment.Data))
		err := p.windows(op, segment.Address, len(segment.Data), func(addr uint32, n int) error {
			offset := addr - segment.Address
			return p.mem.Write(addr, segment.Data[offset:offset+uint32(n)])
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// VerifyHex compares every data segment of the Intel HEX image read from data
// with the device memory.
func (p *Programmer) VerifyHex(data io.Reader) error {
	const op = "verify hex"
	segments, err := loadHex(data)
	if err != nil {
		return err
	}
	for _, segment := range segments {
		err := p.windows(op, segment.Address, len(segment.Data), func(addr uint32, n int) error {
			offset := addr - segment.Address
			got, err := p.mem.Read(addr, n)
			if err != nil {
				return err
			}
			return compare(op, addr, segment.Data[offset:offset+uint32(n)], got)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
