// Package ipc is the local control channel: newline-delimited JSON commands
// over a unix socket.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	log "log/slog"
)

const CmdTrigger = "trigger"

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

type Server struct {
	path string
	ln   net.Listener
	done chan struct{}
}

// StartServer listens on path, replacing a stale socket file, and calls
// handler for every message received. handler runs on the connection's
// goroutine.
func StartServer(path string, handler func(ControlMessage)) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{path: path, ln: ln, done: make(chan struct{})}
	go s.serve(handler)
	return s, nil
}

func (s *Server) serve(handler func(ControlMessage)) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			log.Warn("Control socket accept failed", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go handleConn(conn, handler)
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	close(s.done)
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

func handleConn(conn net.Conn, handler func(ControlMessage)) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	dec := json.NewDecoder(conn)
	for {
		var msg ControlMessage
		if err := dec.Decode(&msg); err != nil {
			return
		}
		handler(msg)
	}
}

func SendCommand(path, cmd string) error {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	return enc.Encode(ControlMessage{Cmd: cmd})
}
