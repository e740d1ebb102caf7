package spiboot

import (
	"encoding/binary"
	"time"
)

// fakeClock advances only when the simulated device is clocked or the engine
// sleeps.
type fakeClock struct {
	t      time.Time
	tick   time.Duration
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(0, 0), tick: time.Millisecond}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

func (c *fakeClock) option() Option { return WithClock(c.now, c.sleep) }

const (
	simFlashBase = 0x08000000
	simPageSize  = 2048
)

// simDevice emulates an STM32 SPI bootloader behind a Transport.
type simDevice struct {
	clock *fakeClock
	flash map[uint32]byte

	// handshake state
	ackPending bool
	ackReply   byte
	ackPolls   int
	awaitEcho  bool
	afterAck   func()

	// data stage state
	next     func(w, out []byte)
	segments [][]byte
	outAck   bool

	// configuration and fault injection
	syncReply   byte
	ackDelay    int
	eraseDelay  int
	neverAck    bool
	nak         map[byte]bool
	nakAddress  map[uint32]bool
	badCount    bool
	blankWrites int
	version     byte
	id          []byte

	// observations
	txs          [][]byte
	commands     []byte
	polls        int
	echoes       int
	unexpected   int
	reads        []uint32
	writes       []uint32
	writeFrames  [][]byte
	erasedPages  []uint16
	specialErase []uint16
	jumps        []uint32
	protected    [][2]byte
	resets       int
}

func newSimDevice(clock *fakeClock) *simDevice {
	return &simDevice{
		clock:      clock,
		flash:      make(map[uint32]byte),
		syncReply:  Dummy,
		nak:        make(map[byte]bool),
		nakAddress: make(map[uint32]bool),
		version:    0x11,
		id:         []byte{0x04, 0x62},
	}
}

func (d *simDevice) Tx(w, r []byte) error {
	if d.clock != nil {
		d.clock.t = d.clock.t.Add(d.clock.tick)
	}
	n := txLength(w, r)
	wb := make([]byte, n)
	copy(wb, w)
	d.txs = append(d.txs, wb)
	out := make([]byte, n)

	switch {
	case d.ackPending:
		d.polls++
		out[0] = Idle
		if !d.neverAck {
			if d.ackPolls >= d.ackDelay {
				out[0] = d.ackReply
				d.ackPending = false
				d.awaitEcho = true
			}
			d.ackPolls++
		}
	case d.awaitEcho:
		if n != 1 || wb[0] != ACK {
			d.unexpected++
		}
		d.echoes++
		d.awaitEcho = false
		if f := d.afterAck; f != nil {
			d.afterAck = nil
			f()
		}
	case d.next != nil:
		h := d.next
		d.next = nil
		h(wb, out)
	case n == 1 && wb[0] == StartOfFrame:
		out[0] = d.syncReply
		if d.syncReply == Dummy {
			d.ack(ACK, nil)
		}
	case n == 3 && wb[0] == StartOfFrame && wb[2] == Complement(wb[1]):
		d.commands = append(d.commands, wb[1])
		d.command(wb[1])
	default:
		d.unexpected++
	}
	copy(r, out)
	return nil
}

func (d *simDevice) ack(reply byte, after func()) {
	d.ackPending = true
	d.ackReply = reply
	d.ackPolls = 0
	d.afterAck = after
}

// ackErase acknowledges once the erase itself has taken eraseDelay polls.
func (d *simDevice) ackErase() {
	d.ack(ACK, nil)
	d.ackPolls = -d.eraseDelay
}

// respond queues bytes for the host to clock out. If ack is set the device
// acknowledges once the last byte has been read.
func (d *simDevice) respond(ack bool, segments ...[]byte) {
	d.segments = segments
	d.outAck = ack
	d.next = d.sendOut
}

func (d *simDevice) sendOut(w, out []byte) {
	seg := d.segments[0]
	k := copy(out, seg)
	d.segments[0] = seg[k:]
	if len(d.segments[0]) > 0 {
		d.next = d.sendOut
		return
	}
	d.segments = d.segments[1:]
	if len(d.segments) > 0 {
		d.ack(ACK, func() { d.next = d.sendOut })
		return
	}
	if d.outAck {
		d.ack(ACK, nil)
	}
}

func (d *simDevice) expectAddress(f func(addr uint32)) func(w, out []byte) {
	return func(w, out []byte) {
		if len(w) != 5 || XORChecksum(0, w[:4]) != w[4] {
			d.ack(NAK, nil)
			return
		}
		addr := binary.BigEndian.Uint32(w)
		if d.nakAddress[addr] {
			d.ack(NAK, nil)
			return
		}
		f(addr)
	}
}

func (d *simDevice) read(addr uint32, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		v, ok := d.flash[addr+uint32(i)]
		if !ok {
			v = 0xFF
		}
		data[i] = v
	}
	return data
}

func (d *simDevice) store(addr uint32, data []byte) {
	for i, v := range data {
		d.flash[addr+uint32(i)] = v
	}
}

func (d *simDevice) erasePage(page uint16) {
	base := simFlashBase + uint32(page)*simPageSize
	for a := base; a < base+simPageSize; a++ {
		delete(d.flash, a)
	}
}

func (d *simDevice) reset() {
	d.resets++
}

func (d *simDevice) command(cmd byte) {
	if d.nak[cmd] {
		d.ack(NAK, nil)
		return
	}
	switch cmd {
	case CommandGet:
		list := []byte{d.version, CommandGet, CommandGetVersion, CommandGetID, CommandReadMemory,
			CommandGo, CommandWriteMemory, CommandErase, CommandWriteProtect,
			CommandWriteUnprotect, CommandReadoutProtect, CommandReadoutUnprotect}
		d.ack(ACK, func() { d.respondList(list) })
	case CommandGetVersion:
		d.ack(ACK, func() { d.respond(true, []byte{Dummy, d.version}) })
	case CommandGetID:
		d.ack(ACK, func() { d.respondList(d.id) })
	case CommandReadMemory:
		d.ack(ACK, func() {
			d.next = d.expectAddress(func(addr uint32) {
				d.ack(ACK, func() {
					d.next = func(w, out []byte) {
						if len(w) != 2 || w[1] != Complement(w[0]) {
							d.ack(NAK, nil)
							return
						}
						size := int(w[0]) + 1
						d.reads = append(d.reads, addr)
						d.ack(ACK, func() {
							d.respond(false, append([]byte{Dummy}, d.read(addr, size)...))
						})
					}
				})
			})
		})
	case CommandWriteMemory:
		d.ack(ACK, func() {
			d.next = d.expectAddress(func(addr uint32) {
				d.ack(ACK, func() {
					d.next = func(w, out []byte) {
						count := int(w[0]) + 1
						if len(w) != count+2 || XORChecksum(0, w[:count+1]) != w[count+1] {
							d.ack(NAK, nil)
							return
						}
						d.writes = append(d.writes, addr)
						d.writeFrames = append(d.writeFrames, w)
						payload := w[1 : count+1]
						if d.blankWrites > 0 && len(payload) > 16 {
							d.blankWrites--
							d.store(addr, payload[:8])
							d.store(addr+16, payload[16:])
						} else {
							d.store(addr, payload)
						}
						d.ack(ACK, nil)
					}
				})
			})
		})
	case CommandErase:
		d.ack(ACK, func() { d.next = d.eraseHeader })
	case CommandGo:
		d.ack(ACK, func() {
			d.next = d.expectAddress(func(addr uint32) {
				d.jumps = append(d.jumps, addr)
				d.ack(ACK, nil)
			})
		})
	case CommandWriteProtect:
		d.ack(ACK, func() {
			d.next = func(w, out []byte) {
				if len(w) != 3 || w[1] != Complement(w[0]) || w[2] != XORChecksum(0, w[:2]) {
					d.ack(NAK, nil)
					return
				}
				d.ack(ACK, func() {
					d.next = func(w, out []byte) {
						if len(w) != 3 || w[2] != XORChecksum(0, w[:2]) {
							d.ack(NAK, nil)
							return
						}
						d.protected = append(d.protected, [2]byte{w[0], w[1]})
						d.ack(ACK, d.reset)
					}
				})
			}
		})
	case CommandWriteUnprotect:
		d.ack(ACK, func() { d.next = d.filler(nil) })
	case CommandReadoutProtect:
		d.ack(ACK, func() { d.ack(ACK, d.reset) })
	case CommandReadoutUnprotect:
		d.ack(ACK, func() {
			d.next = d.filler(func() { d.flash = make(map[uint32]byte) })
		})
	default:
		d.ack(NAK, nil)
	}
}

func (d *simDevice) respondList(list []byte) {
	header := []byte{Dummy, byte(len(list) - 1)}
	if d.badCount {
		d.badCount = false
		d.respond(true, []byte{Dummy, 0xFF}, append(header, list...))
		return
	}
	d.respond(true, append(header, list...))
}

func (d *simDevice) filler(apply func()) func(w, out []byte) {
	return func(w, out []byte) {
		if len(w) != 1 || w[0] != Idle {
			d.ack(NAK, nil)
			return
		}
		if apply != nil {
			apply()
		}
		d.ack(ACK, d.reset)
	}
}

func (d *simDevice) eraseHeader(w, out []byte) {
	if len(w) != 3 || XORChecksum(0, w[:2]) != w[2] {
		d.ack(NAK, nil)
		return
	}
	code := binary.BigEndian.Uint16(w)
	if IsSpecialErase(code) {
		d.specialErase = append(d.specialErase, code)
		d.flash = make(map[uint32]byte)
		d.ackErase()
		return
	}
	remaining := int(code) + 1
	var (
		pages    []uint16
		checksum byte
	)
	var collect func(w, out []byte)
	collect = func(w, out []byte) {
		if remaining == 0 {
			if len(w) != 1 || w[0] != checksum {
				d.ack(NAK, nil)
				return
			}
			for _, p := range pages {
				d.erasePage(p)
			}
			d.erasedPages = append(d.erasedPages, pages...)
			d.ackErase()
			return
		}
		for i := 0; i+1 < len(w); i += 2 {
			pages = append(pages, binary.BigEndian.Uint16(w[i:]))
		}
		checksum = XORChecksum(checksum, w)
		remaining -= len(w) / 2
		d.next = collect
	}
	d.ack(ACK, func() { d.next = collect })
}
