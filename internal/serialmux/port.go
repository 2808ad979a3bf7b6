// Package serialmux provides the serial-port primitives shared by the
// autopilot's device drivers: the minimal read/write/close interface each
// driver programs against, and the connection parameters used to open a
// real port. The package used to also carry a generic pub/sub multiplexer
// for broadcasting device output to multiple subscribers (SSE tail,
// command-console admin routes); every driver in this repo speaks a
// synchronous command/reply protocol instead (write, sleep, read), so that
// machinery had no caller and was removed rather than kept unwired.
package serialmux

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
