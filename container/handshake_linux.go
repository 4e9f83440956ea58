package container

import (
	"fmt"

	"github.com/OmarBouchoucha0/docker-clone/pkg/unixsocket"
)

// waitRelease blocks until the parent sends the one-byte release message.
// A transport error, EOF or a malformed message all mean parent-side setup
// failed and the caller must not proceed.
func waitRelease(s *unixsocket.Socket) error {
	buf := make([]byte, 2)
	n, _, err := s.RecvMsg(buf)
	if err != nil {
		return fmt.Errorf("release handshake: %w", err)
	}
	if n != 1 || buf[0] != releaseByte {
		return fmt.Errorf("release handshake: unexpected message % x", buf[:n])
	}
	return nil
}
