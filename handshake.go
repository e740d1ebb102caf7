package spiboot

import (
	"time"

	"github.com/pkg/errors"
)

// waitAck polls the device with idle bytes until it answers ACK or NAK, then
// echoes ACK to close the exchange. If neither arrives within timeout the
// device is reported busy and nothing is echoed.
func (b *spiBootloader) waitAck(op string, timeout time.Duration) error {
	poll := make([]byte, 1)
	start := b.cfg.now()
	for polls := 1; ; polls++ {
		poll[0] = Idle
		if err := b.t.Tx(poll, poll); err != nil {
			return newError(op, ResultTransportFault, errors.Wrap(err, "poll"))
		}
		switch poll[0] {
		case ACK:
			if err := b.t.Tx([]byte{ACK}, nil); err != nil {
				return newError(op, ResultTransportFault, errors.Wrap(err, "echo ack"))
			}
			b.cfg.log.Debugf("%s: ACK after %d polls", op, polls)
			return nil
		case NAK:
			if err := b.t.Tx([]byte{ACK}, nil); err != nil {
				return newError(op, ResultTransportFault, errors.Wrap(err, "echo ack"))
			}
			b.cfg.log.Debugf("%s: NAK after %d polls", op, polls)
			return newError(op, ResultHardwareFault, ErrNAK)
		}
		if b.cfg.now().Sub(start) >= timeout {
			b.cfg.log.Errorf("%s: no ACK within %v", op, timeout)
			return newError(op, ResultHardwareBusy, errors.Wrapf(ErrAckTimeout, "after %v", timeout))
		}
	}
}
