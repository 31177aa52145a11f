package epos

import "errors"

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrPortOpen        = errors.New("port failed to open")
	ErrPortClosed      = errors.New("port is not open")
	ErrTimeout         = errors.New("operation timed out")
	ErrCommunication   = errors.New("communication error received")
	ErrDecode          = errors.New("response could not be decoded")
	ErrUnknownState    = errors.New("device reported an unhandled power state")
	ErrBusy            = errors.New("an operation is already in progress on this controller")
	ErrAborted         = errors.New("operation aborted by the caller")
)
