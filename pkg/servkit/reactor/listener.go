package reactor

import "golang.org/x/sys/unix"

// backlog is the listen(2) pending-connection queue depth.
const backlog = 1024

// ListenTCP4 creates, binds, and listens on a non-blocking IPv4 TCP socket,
// grounded on the accept-loop's listenSocket shape but built on
// golang.org/x/sys/unix rather than the raw syscall package, and with
// SO_REUSEADDR set so a restarted server can rebind immediately.
func ListenTCP4(addr [4]byte, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: addr}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}
