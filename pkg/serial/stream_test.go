package serial

import (
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func readAll(s *Stream) []byte {
	var out []byte
	for s.Available() > 0 {
		c, err := s.ReadByte()
		if err != nil {
			break
		}
		out = append(out, c)
	}
	return out
}

func TestStreamBuffersInput(t *testing.T) {
	local, peer := net.Pipe()
	s := NewStream(local, 0)
	defer s.Close()

	_, err := s.ReadByte()
	require.ErrorIs(t, err, ErrNoData)
	assert.Zero(t, s.Available())

	_, err = peer.Write([]byte("hello"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Available() == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("hello"), readAll(s))
	_, err = s.ReadByte()
	assert.ErrorIs(t, err, ErrNoData)
	assert.EqualValues(t, 5, s.Received())
}

func TestStreamWrite(t *testing.T) {
	local, peer := net.Pipe()
	s := NewStream(local, 0)
	defer s.Close()

	go s.Write([]byte{0x7e, 0x01})
	buf := make([]byte, 2)
	_, err := io.ReadFull(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7e, 0x01}, buf)
}

func TestStreamOverflow(t *testing.T) {
	local, peer := net.Pipe()
	s := NewStream(local, 4)
	defer s.Close()

	_, err := peer.Write([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Received() == 6 }, time.Second, time.Millisecond)
	assert.Equal(t, 4, s.Available())
	assert.EqualValues(t, 2, s.Dropped())
	assert.Equal(t, []byte{1, 2, 3, 4}, readAll(s))

	// wraps around after draining.
	_, err = peer.Write([]byte{7, 8, 9})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Available() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{7, 8, 9}, readAll(s))
}

func TestStreamPeerClosed(t *testing.T) {
	local, peer := net.Pipe()
	s := NewStream(local, 0)
	require.NoError(t, peer.Close())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("reader not stopped")
	}
	assert.ErrorIs(t, s.Err(), io.EOF)
	s.Close()
}

func TestStreamClose(t *testing.T) {
	local, _ := net.Pipe()
	s := NewStream(local, 0)
	require.NoError(t, s.Close())
	<-s.Done()
	assert.Error(t, s.Err())
	assert.NoError(t, s.Close())
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	s, err := Open("tcp://"+ln.Addr().String(), Options{})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Write([]byte("ppp"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Available() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("ppp"), readAll(s))
}

func TestOpenWebsocket(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		io.Copy(ws, ws)
	}))
	defer srv.Close()

	s, err := Open("ws://"+strings.TrimPrefix(srv.URL, "http://"), Options{})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Write([]byte{0x7e, 0xff})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Available() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x7e, 0xff}, readAll(s))
}

func TestOpenErrors(t *testing.T) {
	cases := []string{
		"udp://127.0.0.1:9",
		"serial:///dev/ttyS0?baud=fast",
		"serial://",
		"",
	}
	for _, location := range cases {
		_, err := Open(location, Options{})
		assert.Error(t, err, location)
	}
}
