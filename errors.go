package spiboot

import (
	"fmt"

	"github.com/pkg/errors"
)

// Result is the kind of outcome of an engine operation.
type Result int

// Execution outcomes.
const (
	ResultNormal Result = iota
	ResultTransportFault
	ResultTransportBusy
	ResultProtocolFault
	ResultProtocolBusy
	ResultHardwareFault
	ResultHardwareBusy
	ResultDUTTimeout
	ResultDUTIllegalOperation
	ResultParamFault
	ResultNullParam
	ResultFileError
	ResultFileNotSuitable
	ResultCheckoutError
	ResultUndefined
)

// String returns the string representation of a result kind.
func (r Result) String() string {
	switch r {
	case ResultNormal:
		return "normal"
	case ResultTransportFault:
		return "transport fault"
	case ResultTransportBusy:
		return "transport busy"
	case ResultProtocolFault:
		return "protocol fault"
	case ResultProtocolBusy:
		return "protocol busy"
	case ResultHardwareFault:
		return "hardware fault"
	case ResultHardwareBusy:
		return "hardware busy"
	case ResultDUTTimeout:
		return "device operation timeout"
	case ResultDUTIllegalOperation:
		return "device illegal operation"
	case ResultParamFault:
		return "parameter fault"
	case ResultNullParam:
		return "missing parameter"
	case ResultFileError:
		return "file operation error"
	case ResultFileNotSuitable:
		return "firmware file not suitable"
	case ResultCheckoutError:
		return "programming checkout error"
	default:
		return "undefined fault"
	}
}

// Sentinel causes, usable with errors.Is.
var (
	ErrNAK        = errors.New("device answered NAK")
	ErrAckTimeout = errors.New("timed out waiting for ACK")
	ErrBadParam   = errors.New("invalid parameter")
	ErrVerify     = errors.New("read back data mismatch")
)

// Error is returned by every failing engine operation.
type Error struct {
	Op     string
	Result Result
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Result)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Result, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, result Result, err error) *Error {
	return &Error{Op: op, Result: result, Err: err}
}

func paramError(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Result: ResultParamFault, Err: errors.Wrapf(ErrBadParam, format, args...)}
}

// ResultOf maps err to exactly one result kind.
func ResultOf(err error) Result {
	if err == nil {
		return ResultNormal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Result
	}
	return ResultUndefined
}
