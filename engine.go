package spiboot

import (
	"io"

	"periph.io/x/conn/v3/physic"
)

// Engine bundles a Bootloader, the Memory built on it and a Programmer over
// one Transport, exposing every operation as a method.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	Bootloader
	Memory
	*Programmer

	transport Transport
}

// NewEngine assembles an engine over t for a device described by p.
func NewEngine(t Transport, p Profile, opts ...Option) *Engine {
	b := NewSPIBootloader(t, opts...)
	m := NewMemory(b, p, opts...)
	return &Engine{
		Bootloader: b,
		Memory:     m,
		Programmer: NewProgrammer(m, opts...),
		transport:  t,
	}
}

// OpenSPI enables the named SPI bus and returns an engine using it.
func OpenSPI(bus string, freq physic.Frequency, mode ClockMode, p Profile, opts ...Option) (*Engine, error) {
	t := NewSPITransport(bus, freq, mode)
	if err := t.Enable(); err != nil {
		return nil, err
	}
	return NewEngine(t, p, opts...), nil
}

// Close releases the transport if it can be closed.
func (e *Engine) Close() error {
	if c, ok := e.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
