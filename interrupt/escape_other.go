//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package interrupt

import "os"

// WatchEscape is not supported on this platform; only signals interrupt.
func (c *Controller) WatchEscape(tty *os.File) (func(), error) {
	return func() {}, nil
}
