// Package reaplan implements a bounded outbound TCP/TLS connection
// scanner: a pull-based producer supplies connection targets through an
// OnConnect callback, the poller drives each connection's readable and
// writable interest through its lifecycle, a per-tick deadline sweep
// closes connections that outlived their budget, and TLS handshakes are
// driven the same way OpenSSL's non-blocking handshake is: by toggling
// poll interest on WANT_READ/WANT_WRITE rather than blocking a goroutine
// per connection.
package reaplan
