// Package resolver is the illustrative dnstres-backed EDS handler. A
// client passes an fd in read_fd, then a framed request naming a batch of
// hosts in read_req; send_closefd hands one end of a fresh socketpair
// back to the client as its "done" signal, resolves the batch through
// internal/dnstres, and streams gzip-compressed "host addr\n" lines to
// the passed fd as results arrive before cycling back to read_fd.
package resolver
