// Package unixsocket provides a connected pair of Linux unix sockets using
// SOCK_SEQPACKET, which preserves message boundaries: a message is delivered
// whole or not at all, never fragmented or coalesced with another. The
// launcher relies on this to carry its single-byte release handshake.
package unixsocket

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// oob buffer sized for the small number of fds a handshake may carry
const oobSize = 128

// Socket wraps a unix seqpacket connection.
type Socket struct {
	*net.UnixConn
}

// NewSocket creates a Socket from an existing seqpacket socket fd, for
// example one inherited from a parent process. The fd is marked
// close-on-exec to avoid leaking it into the contained command.
func NewSocket(fd int) (*Socket, error) {
	syscall.SetNonblock(fd, true)
	syscall.CloseOnExec(fd)

	file := os.NewFile(uintptr(fd), "unix-socket")
	if file == nil {
		return nil, fmt.Errorf("unixsocket: %d is not a valid fd", fd)
	}
	defer file.Close()

	conn, err := net.FileConn(file)
	if err != nil {
		return nil, err
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unixsocket: %d is not a unix socket", fd)
	}
	return &Socket{unixConn}, nil
}

// NewSocketPair creates a connected unix socketpair using SOCK_SEQPACKET.
func NewSocketPair() (*Socket, *Socket, error) {
	fd, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_SEQPACKET|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("unixsocket: socketpair: %w", err)
	}

	ins, err := NewSocket(fd[0])
	if err != nil {
		syscall.Close(fd[0])
		syscall.Close(fd[1])
		return nil, nil, fmt.Errorf("unixsocket: socketpair first end: %w", err)
	}
	outs, err := NewSocket(fd[1])
	if err != nil {
		ins.Close()
		syscall.Close(fd[1])
		return nil, nil, fmt.Errorf("unixsocket: socketpair second end: %w", err)
	}
	return ins, outs, nil
}

// SendMsg sends a single message together with optional fds encoded as
// SCM_RIGHTS.
func (s *Socket) SendMsg(b []byte, fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = syscall.UnixRights(fds...)
	}
	_, _, err := s.WriteMsgUnix(b, oob, nil)
	return err
}

// RecvMsg receives a single message into b and returns its length together
// with any fds passed over the socket.
func (s *Socket) RecvMsg(b []byte) (int, []int, error) {
	oob := make([]byte, oobSize)
	n, oobn, _, _, err := s.ReadMsgUnix(b, oob)
	if err != nil {
		return 0, nil, err
	}
	msgs, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, nil, err
	}
	fds, err := parseFds(msgs)
	if err != nil {
		return 0, nil, err
	}
	return n, fds, nil
}

func parseFds(msgs []syscall.SocketControlMessage) (fds []int, err error) {
	defer func() {
		if err != nil {
			for _, f := range fds {
				syscall.Close(f)
			}
			fds = nil
		}
	}()
	for _, m := range msgs {
		if m.Header.Level != syscall.SOL_SOCKET || m.Header.Type != syscall.SCM_RIGHTS {
			continue
		}
		f, err := syscall.ParseUnixRights(&m)
		if err != nil {
			return fds, err
		}
		fds = append(fds, f...)
	}
	return fds, nil
}
