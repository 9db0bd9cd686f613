// Package client implements the TCP client side of the key-value
// protocol: one connection per request, write half closed after the
// request is sent.
package client

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"

	"github.com/jassi-singh/ember-kv/internal/protocol"
)

// Do sends one request to the server at addr and returns its response.
func Do(addr string, req protocol.Request) (protocol.Response, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, req); err != nil {
		return protocol.Response{}, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			slog.Debug("client: failed to close write half",
				"error", err)
		}
	}

	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to read response from %s: %w", addr, err)
	}
	return resp, nil
}

// Set stores a key-value pair on the server.
func Set(addr, key, value string) (protocol.Response, error) {
	return Do(addr, protocol.Request{Op: protocol.OpSet, Key: key, Value: value})
}

// Get retrieves the value for key from the server.
func Get(addr, key string) (protocol.Response, error) {
	return Do(addr, protocol.Request{Op: protocol.OpGet, Key: key})
}

// Rm removes a key on the server.
func Rm(addr, key string) (protocol.Response, error) {
	return Do(addr, protocol.Request{Op: protocol.OpRm, Key: key})
}
