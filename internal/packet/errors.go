package packet

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation is the root of every error the Reader returns. Running
// out of bytes is never an error; it is reported as "no packet yet".
var ErrProtocolViolation = errors.New("packet: protocol violation")

var (
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrProtocolViolation)
	ErrNegativePayloadLen = fmt.Errorf("%w: negative payload length", ErrProtocolViolation)
	ErrPayloadTooLarge    = fmt.Errorf("%w: payload too large", ErrProtocolViolation)
	ErrShortHeader        = errors.New("packet: short fixed header")
)

func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}
