// Package serial provides the byte stream transports a PPP link runs on.
package serial

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	bugst "go.bug.st/serial"
	"golang.org/x/net/websocket"
)

// Options are used when opening a transport.
type Options struct {
	// BaudRate of a local UART, overridden by the baud query parameter.
	BaudRate int
	// BufferSize of the RX buffer.
	BufferSize int
	// DialTimeout for network transports.
	DialTimeout time.Duration
	// Origin for websocket connections.
	Origin string
}

// DefaultBaudRate is used when no baud rate is specified.
const DefaultBaudRate = 115200

// Open opens a transport and wraps it into a Stream. Accepted forms:
//
//	/dev/ttyUSB0
//	serial:///dev/ttyUSB0?baud=921600
//	tcp://host:port
//	ws://host:port/path, wss://host:port/path
func Open(location string, opts Options) (*Stream, error) {
	conn, err := Dial(location, opts)
	if err != nil {
		return nil, err
	}
	return NewStream(conn, opts.BufferSize), nil
}

// Dial opens the raw connection for location, see Open.
func Dial(location string, opts Options) (io.ReadWriteCloser, error) {
	if !strings.Contains(location, "://") {
		return openPort(location, opts.BaudRate)
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse transport URL %q: %w", location, err)
	}
	switch u.Scheme {
	case "serial":
		baud := opts.BaudRate
		if val := u.Query().Get("baud"); val != "" {
			if baud, err = strconv.Atoi(val); err != nil {
				return nil, fmt.Errorf("invalid baud rate %q: %w", val, err)
			}
		}
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		return openPort(path, baud)
	case "tcp":
		timeout := opts.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		conn, err := net.DialTimeout("tcp", u.Host, timeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.Host, err)
		}
		return conn, nil
	case "ws", "wss":
		origin := opts.Origin
		if origin == "" {
			origin = "http://localhost/"
		}
		conn, err := websocket.Dial(location, "", origin)
		if err != nil {
			return nil, fmt.Errorf("dial websocket %s: %w", location, err)
		}
		conn.PayloadType = websocket.BinaryFrame
		return conn, nil
	}
	return nil, fmt.Errorf("unsupported transport scheme %q", u.Scheme)
}

func openPort(path string, baud int) (io.ReadWriteCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := bugst.Open(path, &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}
