package eds

import "net"

// fdOf extracts the underlying file descriptor of a TCP or Unix
// connection so it can be registered with poll(2) directly. conn.File()
// duplicates the descriptor, so closing c later still closes the
// original; callers that need to hand the fd elsewhere dup it again
// themselves (see internal/fdpass).
func fdOf(c net.Conn) (int, bool) {
	switch conn := c.(type) {
	case *net.TCPConn:
		f, err := conn.File()
		if err != nil {
			return 0, false
		}
		return int(f.Fd()), true
	case *net.UnixConn:
		f, err := conn.File()
		if err != nil {
			return 0, false
		}
		return int(f.Fd()), true
	default:
		return 0, false
	}
}
