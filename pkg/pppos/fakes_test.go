package pppos

import (
	"errors"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTestNoData = errors.New("no data")

type testTransport struct {
	lock     sync.Mutex
	rx       []byte
	failAt   int // ReadByte fails after reading failAt bytes when > 0
	reads    int
	written  []byte
	writeErr error
}

func (t *testTransport) inject(p []byte) {
	t.lock.Lock()
	t.rx = append(t.rx, p...)
	t.lock.Unlock()
}

func (t *testTransport) Available() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.rx)
}

func (t *testTransport) ReadByte() (byte, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.failAt > 0 && t.reads == t.failAt {
		t.failAt = 0
		return 0, errors.New("read error")
	}
	if len(t.rx) == 0 {
		return 0, errTestNoData
	}
	c := t.rx[0]
	t.rx = t.rx[1:]
	t.reads++
	return c, nil
}

func (t *testTransport) Write(p []byte) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	t.written = append(t.written, p...)
	return len(p), nil
}

func (t *testTransport) writtenBytes() []byte {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]byte(nil), t.written...)
}

type testHandle struct {
	id     int
	netif  *Netif
	output OutputFunc
	status StatusFunc
	freed  bool
}

type testEngine struct {
	lock sync.Mutex

	createErr     error
	setDefaultErr error
	connectErr    error
	// upOnConnect reports link up synchronously inside Connect.
	upOnConnect bool
	// negotiated is filled into netif on link up.
	negotiated NetifInfo

	handles []*testHandle
	inputs  [][]byte
	frees   int
}

func (e *testEngine) Create(netif *Netif, output OutputFunc, status StatusFunc) (Handle, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.createErr != nil {
		return nil, e.createErr
	}
	h := &testHandle{id: len(e.handles) + 1, netif: netif, output: output, status: status}
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *testEngine) SetDefault(h Handle) error {
	return e.setDefaultErr
}

func (e *testEngine) Connect(h Handle) error {
	if e.connectErr != nil {
		return e.connectErr
	}
	h.(*testHandle).output([]byte{0x7e, 0xff, 0x03})
	if e.upOnConnect {
		e.linkUp(h.(*testHandle))
	}
	return nil
}

func (e *testEngine) Free(h Handle) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	th := h.(*testHandle)
	if th.freed {
		return errors.New("double free")
	}
	th.freed = true
	e.frees++
	return nil
}

func (e *testEngine) Input(h Handle, data []byte) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.inputs = append(e.inputs, append([]byte(nil), data...))
	return nil
}

func (e *testEngine) linkUp(h *testHandle) {
	negotiated := e.negotiated
	h.netif.Update(func(info *NetifInfo) {
		info.Name = "ppp0"
		info.Addr = negotiated.Addr
		info.Gateway = negotiated.Gateway
		info.Peer = negotiated.Peer
	})
	h.status(ErrNone)
}

func (e *testEngine) last() *testHandle {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

func (e *testEngine) created() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.handles)
}

func (e *testEngine) live() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	n := 0
	for _, h := range e.handles {
		if !h.freed {
			n++
		}
	}
	return n
}

func (e *testEngine) inputCalls() [][]byte {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([][]byte(nil), e.inputs...)
}

type testStack struct {
	lock sync.Mutex

	initErr error
	// onGateway runs inside SetGateway without the stack lock.
	onGateway func()
	calls     []string
	gateway   netip.Addr
	dns       [2]netip.Addr
	deflt     string
	removed   int
}

func (s *testStack) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *testStack) Init() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.record("init")
	return s.initErr
}

func (s *testStack) RemoveNetif(n *Netif) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.record("remove")
	s.removed++
	return nil
}

func (s *testStack) SetGateway(n *Netif, gw netip.Addr) error {
	s.lock.Lock()
	s.record("gateway " + gw.String())
	s.gateway = gw
	hook := s.onGateway
	s.lock.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (s *testStack) SetDefaultNetif(n *Netif) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.record("default " + n.Name())
	s.deflt = n.Name()
	return nil
}

func (s *testStack) SetDNSServer(index int, addr netip.Addr) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.record("dns " + addr.String())
	s.dns[index] = addr
	return nil
}

func (s *testStack) DNSServer(index int) netip.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.dns[index]
}

func (s *testStack) overrides() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	var calls []string
	for _, c := range s.calls {
		if c != "init" && c != "remove" {
			calls = append(calls, c)
		}
	}
	return calls
}

var legalTransitions = map[transition]bool{
	{Disconnected, Connecting}:     true,
	{Connecting, Connected}:        true,
	{Connecting, ConnectionLost}:   true,
	{Connected, ConnectionLost}:    true,
	{ConnectionLost, Disconnected}: true,
	{Connected, Disconnected}:      true,
	{Connecting, Disconnected}:     true,
}

type testRecorder struct {
	lock        sync.Mutex
	transitions []transition
}

func (r *testRecorder) StatusChanged(from, to ConnectionStatus) {
	r.lock.Lock()
	r.transitions = append(r.transitions, transition{from: from, to: to})
	r.lock.Unlock()
}

func (r *testRecorder) recorded() []transition {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]transition(nil), r.transitions...)
}

func (r *testRecorder) requireLegal(t *testing.T) {
	for _, tr := range r.recorded() {
		require.Truef(t, legalTransitions[tr], "illegal transition %s -> %s", tr.from, tr.to)
	}
}

type bridgeTestCtx struct {
	bridge    *Bridge
	engine    *testEngine
	stack     *testStack
	transport *testTransport
	recorder  *testRecorder
}

func newBridgeTestCtx(cfg IPConfig) *bridgeTestCtx {
	tctx := &bridgeTestCtx{
		engine: &testEngine{negotiated: NetifInfo{
			Addr:    netip.MustParseAddr("192.168.7.2"),
			Gateway: netip.MustParseAddr("192.168.7.1"),
			Peer:    netip.MustParseAddr("192.168.7.1"),
		}},
		stack:     &testStack{},
		transport: &testTransport{},
		recorder:  &testRecorder{},
	}
	tctx.bridge = New(tctx.engine, tctx.stack)
	tctx.bridge.CleanupDelay = 0
	tctx.bridge.Notifier = tctx.recorder
	tctx.bridge.transport = tctx.transport
	tctx.bridge.config = cfg
	return tctx
}

func (c *bridgeTestCtx) mustConnect(t *testing.T) *testHandle {
	require.NoError(t, c.bridge.Connect())
	require.Equal(t, Connecting, c.bridge.Status())
	return c.engine.last()
}
