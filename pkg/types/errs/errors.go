package errs

import "errors"

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrNotConnected       = errors.New("bus is not connected")
	ErrConnectExhausted   = errors.New("broker connect attempts exhausted")
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrMalformedEnvelope  = errors.New("malformed message envelope")
	ErrAlreadySubscribed  = errors.New("handler already subscribed for routing key")
	ErrUnknownOperation   = errors.New("unknown change operation")
)
