package spiboot

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// bridgeSync starts every request sent to a serial SPI bridge.
const bridgeSync = 0x53

// SerialBridge is a Transport for hosts without an SPI controller: a small
// USB-serial adapter performs each exchange. A request is the sync byte, the
// big-endian 16-bit length and the bytes to clock out; the bridge answers with
// exactly that many captured bytes.
type SerialBridge struct {
	portConfig serial.Config
	port       io.ReadWriteCloser
}

// NewSerialBridge creates a bridge transport on the given serial port.
func NewSerialBridge(port string, baud int) *SerialBridge {
	b := new(SerialBridge)

	b.portConfig.Baud = baud
	b.portConfig.Name = port
	b.portConfig.ReadTimeout = time.Second

	return b
}

// Enable opens the serial port.
func (b *SerialBridge) Enable() error {
	if b.port != nil {
		return nil
	}
	port, err := serial.OpenPort(&b.portConfig)
	if err != nil {
		return newError("enable", ResultTransportFault, errors.Wrapf(err, "open %s", b.portConfig.Name))
	}
	// On Linux with USB serial ports, in order for flush to work properly
	// we need to delay a little before flushing to make sure that any
	// received data has made its way up the driver stack.
	time.Sleep(time.Millisecond * 100)
	port.Flush()
	b.port = port
	return nil
}

// Close closes the serial port.
func (b *SerialBridge) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func (b *SerialBridge) recv(count int) ([]byte, error) {
	resp := make([]byte, 0, count)
	buf := make([]byte, count)
	for len(resp) < count {
		n, err := b.port.Read(buf[:count-len(resp)])
		if err != nil && err != io.EOF {
			return nil, err
		}
		if n == 0 {
			return nil, newError("bridge receive", ResultTransportBusy,
				errors.Errorf("timeout after %d of %d bytes", len(resp), count))
		}
		resp = append(resp, buf[:n]...)
	}
	return resp, nil
}

func (b *SerialBridge) Tx(w, r []byte) error {
	if b.port == nil {
		return newError("transmit", ResultTransportFault, errors.New("bridge not enabled"))
	}
	n := txLength(w, r)
	if n > 0xFFFF {
		return paramError("transmit", "transfer of %d bytes", n)
	}
	req := make([]byte, 3+n)
	req[0] = bridgeSync
	req[1] = byte(n >> 8)
	req[2] = byte(n)
	copy(req[3:], w)
	if _, err := b.port.Write(req); err != nil {
		return newError("transmit", ResultTransportFault, err)
	}
	resp, err := b.recv(n)
	if err != nil {
		if ResultOf(err) != ResultUndefined {
			return err
		}
		return newError("transmit", ResultTransportFault, err)
	}
	copy(r, resp)
	return nil
}
