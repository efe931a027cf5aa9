package stream

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// writeDeadline bounds every per-client write so one slow reader can never
// stall the broadcaster.
const writeDeadline = 2 * time.Second

// writeJSONLine marshals v and writes it followed by "\n".
func writeJSONLine(conn net.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshal message: %w", err)
	}
	data = append(data, '\n')
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return fmt.Errorf("stream: set write deadline: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("stream: write: %w", err)
	}
	return nil
}

// chmodSocket widens the socket's permissions so the invoking user's group
// can connect.
func chmodSocket(path string) error {
	return unix.Chmod(path, 0660)
}
