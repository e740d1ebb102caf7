package spiboot

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultFrequency is the SPI clock used when none is given.
const DefaultFrequency = 8 * physic.MegaHertz

// SPITransport is a Transport over a host SPI controller.
type SPITransport struct {
	name string
	freq physic.Frequency
	mode ClockMode

	port spi.PortCloser
	conn spi.Conn
}

// NewSPITransport creates a transport for the named SPI bus, e.g. "/dev/spidev0.0"
// or "SPI0.0". The bus is not opened until Enable is called.
func NewSPITransport(name string, freq physic.Frequency, mode ClockMode) *SPITransport {
	if freq == 0 {
		freq = DefaultFrequency
	}
	return &SPITransport{
		name: name,
		freq: freq,
		mode: mode,
	}
}

// Enable opens the bus with the current frequency and clock mode.
func (t *SPITransport) Enable() error {
	if t.port != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return newError("enable", ResultTransportFault, errors.Wrap(err, "initialise host drivers"))
	}
	mode, err := t.mode.spiMode()
	if err != nil {
		return newError("enable", ResultParamFault, err)
	}
	port, err := spireg.Open(t.name)
	if err != nil {
		return newError("enable", ResultTransportFault, errors.Wrapf(err, "open %s", t.name))
	}
	conn, err := port.Connect(t.freq, mode, 8)
	if err != nil {
		port.Close()
		return newError("enable", ResultTransportFault, errors.Wrapf(err, "connect %s at %v %v", t.name, t.freq, t.mode))
	}
	t.port = port
	t.conn = conn
	return nil
}

// Disable closes the bus. It can be enabled again later.
func (t *SPITransport) Disable() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.conn = nil
	if err != nil {
		return newError("disable", ResultTransportFault, err)
	}
	return nil
}

// Close is Disable.
func (t *SPITransport) Close() error {
	return t.Disable()
}

// reconnect applies a configuration change to an enabled bus.
func (t *SPITransport) reconnect() error {
	if t.port == nil {
		return nil
	}
	if err := t.Disable(); err != nil {
		return err
	}
	return t.Enable()
}

// SetFrequency changes the clock frequency.
func (t *SPITransport) SetFrequency(freq physic.Frequency) error {
	if freq <= 0 {
		return paramError("set frequency", "frequency %v", freq)
	}
	t.freq = freq
	return t.reconnect()
}

// SetClockMode changes the clock polarity and phase.
func (t *SPITransport) SetClockMode(mode ClockMode) error {
	if _, err := mode.spiMode(); err != nil {
		return newError("set clock mode", ResultParamFault, err)
	}
	t.mode = mode
	return t.reconnect()
}

func (t *SPITransport) Tx(w, r []byte) error {
	if t.conn == nil {
		return newError("transmit", ResultTransportFault, errors.New("bus not enabled"))
	}
	n := txLength(w, r)
	if len(w) != n {
		buf := make([]byte, n)
		copy(buf, w)
		w = buf
	}
	rx := r
	if len(rx) != n {
		rx = make([]byte, n)
	}
	if err := t.conn.Tx(w, rx); err != nil {
		return newError("transmit", ResultTransportFault, err)
	}
	copy(r, rx)
	return nil
}
