//go:build linux

package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/smxoffload/internal/transport"
)

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
}

// Port is an open serial device.
type Port struct {
	mu   sync.Mutex
	fd   int
	path string
	old  *unix.Termios
}

var _ transport.Port = (*Port)(nil)

// Open opens and configures the device at cfg.Path.
func Open(cfg Config) (*Port, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	speed, ok := baudRates[cfg.baud()]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud rate %d", cfg.baud())
	}

	fd, err := unix.Open(cfg.Path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Path, err)
	}
	p := &Port{fd: fd, path: cfg.Path}
	if err := p.configure(speed); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if cfg.Settle > 0 {
		time.Sleep(cfg.Settle)
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: flush %s: %w", cfg.Path, err)
	}
	return p, nil
}

func (p *Port) configure(speed uint32) error {
	old, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("serial: get attributes of %s: %w", p.path, err)
	}
	p.old = old

	t := *old
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, &t); err != nil {
		return fmt.Errorf("serial: set attributes of %s: %w", p.path, err)
	}
	return nil
}

// Write writes all of b and waits for it to leave the output queue.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return 0, transport.ErrClosed
	}
	written := 0
	for written < len(b) {
		n, err := unix.Write(p.fd, b[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := p.wait(unix.POLLOUT, -1); err != nil {
				return written, err
			}
		default:
			return written, fmt.Errorf("serial: write %s: %w", p.path, err)
		}
	}
	// tcdrain
	if err := unix.IoctlSetInt(p.fd, unix.TCSBRK, 1); err != nil {
		return written, fmt.Errorf("serial: drain %s: %w", p.path, err)
	}
	return written, nil
}

// ReadExact reads n bytes or fails at ctx's deadline.
func (p *Port) ReadExact(ctx context.Context, n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return nil, transport.ErrClosed
	}

	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := unix.Read(p.fd, buf[got:])
		if m > 0 {
			got += m
			continue
		}
		// With VMIN=0 an idle line also reads zero bytes, so a hangup is
		// only trusted from EIO here or from POLLHUP in wait.
		if errors.Is(err, unix.EIO) {
			return buf[:got], p.hangup()
		}
		if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
			return buf[:got], fmt.Errorf("serial: read %s: %w", p.path, err)
		}

		timeout := -1
		if deadline, ok := ctx.Deadline(); ok {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return buf[:got], &transport.TimeoutError{Received: got, Expected: n}
			}
			timeout = int(remaining.Milliseconds()) + 1
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return buf[:got], &transport.TimeoutError{Received: got, Expected: n}
			}
			return buf[:got], err
		}
		// Cap each wait so cancellation without a deadline is noticed.
		if timeout < 0 || timeout > 100 {
			timeout = 100
		}
		if err := p.wait(unix.POLLIN, timeout); err != nil {
			return buf[:got], err
		}
	}
	return buf, nil
}

func (p *Port) hangup() error {
	return fmt.Errorf("serial: %s hung up: %w", p.path, transport.ErrClosed)
}

func (p *Port) wait(events int16, timeoutMs int) error {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: events}}
	for {
		_, err := unix.Poll(fds, timeoutMs)
		if err == nil {
			if fds[0].Revents&events == 0 && fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
				return p.hangup()
			}
			return nil
		}
		if !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("serial: poll %s: %w", p.path, err)
		}
	}
}

// Reset discards unread input.
func (p *Port) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return transport.ErrClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// Close restores the original line settings and closes the device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return nil
	}
	if p.old != nil {
		_ = unix.IoctlSetTermios(p.fd, unix.TCSETS, p.old)
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

// Path returns the device path.
func (p *Port) Path() string {
	return p.path
}
