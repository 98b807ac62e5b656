package device

import "io"

// Transport abstracts the byte-stream connection an OpenBCI adapter reads
// frames from and writes commands to: a serial port in production, an
// in-memory pipe in tests. This mirrors the usual separation between
// the SDR capability interface and its backend-specific Init/Close wiring.
type Transport interface {
	io.ReadWriteCloser
}
