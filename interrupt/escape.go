//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package interrupt

import (
	"os"
	"sync"

	"github.com/m4xw311/quill/errors"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const escByte = 0x1b

// WatchEscape interrupts the active scope when Esc is pressed on tty. The
// terminal is switched to non-canonical, no-echo mode with a short read
// timeout until the returned func is called. Nothing happens when tty is
// not a terminal.
func (c *Controller) WatchEscape(tty *os.File) (func(), error) {
	fd := int(tty.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}

	saved, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return nil, errors.Wrapf(err, "reading terminal attributes")
	}
	raw := *saved
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 1
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &raw); err != nil {
		return nil, errors.Wrapf(err, "setting terminal attributes")
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		buf := make([]byte, 16)
		for {
			select {
			case <-done:
				return
			default:
			}
			n, err := unix.Read(fd, buf)
			if err != nil && err != unix.EINTR && err != unix.EAGAIN {
				return
			}
			for _, b := range buf[:max(n, 0)] {
				if b == escByte {
					c.Interrupt()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
			_ = unix.IoctlSetTermios(fd, ioctlSetTermios, saved)
		})
	}, nil
}
