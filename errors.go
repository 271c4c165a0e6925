package slsi

import (
	"errors"
	"strconv"

	"github.com/soypat/slsi/fapi"
)

// Error classes returned by MLME operations. Test with errors.Is.
var (
	ErrNoMemory        = errors.New("slsi: no memory for signal")
	ErrIO              = errors.New("slsi: i/o error")
	ErrInvalidArgument = errors.New("slsi: invalid argument")
	ErrNotSupported    = errors.New("slsi: not supported")
	ErrBusy            = errors.New("slsi: busy")
	ErrServiceFailed   = errors.New("slsi: service failed")
	ErrClosed          = errors.New("slsi: device closed")
	ErrPortClosed      = errors.New("slsi: port closed")
)

var (
	errNoVIF          = errors.New("slsi: no free vif")
	errNotActivated   = errors.New("slsi: vif not activated")
	errNoPeer         = errors.New("slsi: no peer")
	errBadPeerIndex   = errors.New("slsi: peer index out of range")
	errUnknownVIF     = errors.New("slsi: signal for unknown vif")
	errScanNotActive  = errors.New("slsi: scan not active")
	errWrongVifType   = errors.New("slsi: operation not valid for vif type")
	errMissingConfirm = errors.New("slsi: missing confirmation")
	errMissingInd     = errors.New("slsi: missing indication")
)

// ResultError is returned when the firmware confirmed a request with a
// result code other than success. It matches ErrInvalidArgument.
type ResultError struct {
	Signal fapi.SignalID
	Result fapi.ResultCode
}

func (e *ResultError) Error() string {
	return "slsi: " + e.Signal.String() + " result " + e.Result.String() + " (0x" + strconv.FormatUint(uint64(e.Result), 16) + ")"
}

func (e *ResultError) Unwrap() error { return ErrInvalidArgument }
