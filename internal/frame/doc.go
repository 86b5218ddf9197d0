// Package frame implements the length-prefixed, self-describing
// key/value message stream used between the supervisor, its workers,
// and CLI clients: a 4-byte big-endian length prefix followed by a JSON
// body, mirroring the external wire contract without reimplementing the
// binary ycl_msg codec, which is out of scope for this module.
package frame
