/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package fdpass passes exactly one file descriptor per message across an
// AF_UNIX socket via SCM_RIGHTS, the Go-idiomatic equivalent of the
// original's single-fd-per-ycl_msg convention, plus the inline
// post-receive error code used to report "the fd you just received is
// unusable" without a second round trip.
package fdpass

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"

	"github.com/sebcat/yans-go/internal/errs"
)

// MaxPayload bounds the out-of-band data payload sent alongside the fd.
const MaxPayload = 256

// EncodeErrCode encodes the post-receive error code convention from the
// External Interfaces section: a signed integer travels in the payload
// alongside a passed fd; zero means the fd is usable as-is, nonzero means
// the receiver should close it and report the code as an error instead.
func EncodeErrCode(code int32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(code))
	return buf[:]
}

// DecodeErrCode decodes a post-receive error code from a Recv payload. A
// payload shorter than 4 bytes decodes as 0 (no error).
func DecodeErrCode(payload []byte) int32 {
	if len(payload) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(payload[:4]))
}

// Send writes payload to conn along with f's underlying fd as ancillary
// SCM_RIGHTS data. f is not closed; callers retain ownership.
func Send(conn *os.File, f *os.File, payload []byte) error {
	rights := unix.UnixRights(int(f.Fd()))

	raw, err := conn.SyscallConn()
	if err != nil {
		return errs.Wrap(err, errs.Resource, "fdpass: acquiring raw conn")
	}

	var sendErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sendErr = unix.Sendmsg(int(fd), payload, rights, nil, 0)
	})
	if ctrlErr != nil {
		return errs.Wrap(ctrlErr, errs.Resource, "fdpass: raw control")
	}
	if sendErr != nil {
		return errs.Wrap(sendErr, errs.Peer, "fdpass: sendmsg")
	}

	return nil
}

// Recv reads one message off conn, extracting at most one passed fd. The
// returned fd is nil if the peer sent no ancillary rights data (a plain
// status frame with no fd attached, e.g. a job-status response).
func Recv(conn *os.File) (payload []byte, f *os.File, err error) {
	buf := make([]byte, MaxPayload)
	oob := make([]byte, unix.CmsgSpace(4))

	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.Resource, "fdpass: acquiring raw conn")
	}

	var n, oobn int
	ctrlErr := raw.Control(func(fd uintptr) {
		n, oobn, _, _, err = unix.Recvmsg(int(fd), buf, oob, 0)
	})
	if ctrlErr != nil {
		return nil, nil, errs.Wrap(ctrlErr, errs.Resource, "fdpass: raw control")
	}
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.Peer, "fdpass: recvmsg")
	}
	if n == 0 && oobn == 0 {
		return nil, nil, errs.New(errs.Peer, "fdpass: peer closed connection")
	}

	payload = buf[:n]

	if oobn > 0 {
		cmsgs, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr != nil {
			return payload, nil, errs.Wrap(perr, errs.Peer, "fdpass: parsing control message")
		}
		for _, c := range cmsgs {
			fds, ferr := unix.ParseUnixRights(&c)
			if ferr != nil {
				continue
			}
			if len(fds) > 0 {
				f = os.NewFile(uintptr(fds[0]), "passed-fd")
				break
			}
		}
	}

	return payload, f, nil
}
