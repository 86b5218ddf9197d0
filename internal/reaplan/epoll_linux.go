//go:build linux

package reaplan

import (
	"golang.org/x/sys/unix"

	"github.com/sebcat/yans-go/internal/errs"
)

type epollPoller struct {
	fd int
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errs.Wrap(err, errs.Fatal, "reaplan: epoll_create1")
	}
	return &epollPoller{fd: fd}, nil
}

func epollEvents(readable, writable bool) uint32 {
	var ev uint32 = unix.EPOLLRDHUP
	if readable {
		ev |= unix.EPOLLIN
	}
	if writable {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) add(fd int, readable, writable bool) error {
	ev := &unix.EpollEvent{Events: epollEvents(readable, writable), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return errs.Wrap(err, errs.Resource, "reaplan: epoll_ctl add")
	}
	return nil
}

func (p *epollPoller) modify(fd int, readable, writable bool) error {
	ev := &unix.EpollEvent{Events: epollEvents(readable, writable), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return errs.Wrap(err, errs.Resource, "reaplan: epoll_ctl mod")
	}
	return nil
}

func (p *epollPoller) remove(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errs.Wrap(err, errs.Resource, "reaplan: epoll_ctl del")
	}
	return nil
}

func (p *epollPoller) wait(timeoutMillis int, buf []event) ([]event, error) {
	raw := make([]unix.EpollEvent, 256)

	n, err := unix.EpollWait(p.fd, raw, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return buf, nil
		}
		return buf, errs.Wrap(err, errs.Fatal, "reaplan: epoll_wait")
	}

	for i := 0; i < n; i++ {
		e := raw[i]
		buf = append(buf, event{
			fd:       int(e.Fd),
			readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: e.Events&unix.EPOLLOUT != 0,
			hup:      e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0,
		})
	}

	return buf, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.fd)
}
