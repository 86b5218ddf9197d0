//go:build darwin || freebsd || netbsd || openbsd

package reaplan

import (
	"golang.org/x/sys/unix"

	"github.com/sebcat/yans-go/internal/errs"
)

type kqueuePoller struct {
	fd int
}

func newPoller() (poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, errs.Wrap(err, errs.Fatal, "reaplan: kqueue")
	}
	return &kqueuePoller{fd: fd}, nil
}

func (p *kqueuePoller) changeOne(fd int, filter int16, flags uint16) error {
	kev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (p *kqueuePoller) add(fd int, readable, writable bool) error {
	return p.modify(fd, readable, writable)
}

func (p *kqueuePoller) modify(fd int, readable, writable bool) error {
	if readable {
		if err := p.changeOne(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE); err != nil {
			return errs.Wrap(err, errs.Resource, "reaplan: kevent EVFILT_READ enable")
		}
	} else {
		_ = p.changeOne(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}

	if writable {
		if err := p.changeOne(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE); err != nil {
			return errs.Wrap(err, errs.Resource, "reaplan: kevent EVFILT_WRITE enable")
		}
	} else {
		_ = p.changeOne(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	}

	return nil
}

func (p *kqueuePoller) remove(fd int) error {
	_ = p.changeOne(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = p.changeOne(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (p *kqueuePoller) wait(timeoutMillis int, buf []event) ([]event, error) {
	raw := make([]unix.Kevent_t, 256)

	var ts *unix.Timespec
	if timeoutMillis >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMillis) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(p.fd, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return buf, nil
		}
		return buf, errs.Wrap(err, errs.Fatal, "reaplan: kevent wait")
	}

	merged := make(map[int]*event)
	for i := 0; i < n; i++ {
		k := raw[i]
		fd := int(k.Ident)
		e, ok := merged[fd]
		if !ok {
			e = &event{fd: fd}
			merged[fd] = e
		}
		switch int16(k.Filter) {
		case unix.EVFILT_READ:
			e.readable = true
		case unix.EVFILT_WRITE:
			e.writable = true
		}
		if k.Flags&unix.EV_EOF != 0 {
			e.hup = true
		}
	}

	for _, e := range merged {
		buf = append(buf, *e)
	}

	return buf, nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.fd)
}
