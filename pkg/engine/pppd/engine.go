// Package pppd drives the host pppd as the PPP engine of a bridge.
package pppd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/robotalks/pppos/pkg/pppos"
)

// DefaultPath is the pppd executable looked up in PATH.
const DefaultPath = "pppd"

// DefaultKillTimeout is how long Free waits after SIGTERM before killing pppd.
const DefaultKillTimeout = 3 * time.Second

// InputQueueSize is the number of Input chunks queued for pppd stdin.
const InputQueueSize = 64

// Engine implements pppos.Engine by running one pppd process per session.
// pppd talks PPP on its stdin/stdout and logs on stderr.
type Engine struct {
	// Path of pppd, DefaultPath if empty.
	Path string
	// Args are inserted before the generated pppd options.
	Args []string
	// Options are appended to the generated pppd options,
	// e.g. noauth, usepeerdns, debug.
	Options []string
	// Env is appended to the process environment.
	Env []string
	// Unit is the first ppp unit number to use.
	Unit int
	// KillTimeout before pppd is killed on Free.
	KillTimeout time.Duration

	lock     sync.Mutex
	nextUnit int
}

// New creates an Engine.
func New(options ...string) *Engine {
	return &Engine{Path: DefaultPath, Options: options, KillTimeout: DefaultKillTimeout}
}

// Session is a pppd process bound to a network interface.
type Session struct {
	engine *Engine
	netif  *pppos.Netif
	output pppos.OutputFunc
	status pppos.StatusFunc
	unit   int

	defaultRoute bool

	lock    sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	inputQ  chan []byte
	local   bool
	remote  bool
	up      bool
	exitErr *ExitError

	closed  atomic.Bool
	readers sync.WaitGroup
	exited  chan struct{}
}

// Create implements pppos.Engine.
func (e *Engine) Create(netif *pppos.Netif, output pppos.OutputFunc, status pppos.StatusFunc) (pppos.Handle, error) {
	if netif == nil || output == nil || status == nil {
		return nil, fmt.Errorf("pppd: netif and callbacks are required")
	}
	e.lock.Lock()
	unit := e.Unit + e.nextUnit
	e.nextUnit++
	e.lock.Unlock()
	s := &Session{
		engine: e,
		netif:  netif,
		output: output,
		status: status,
		unit:   unit,
		exited: make(chan struct{}),
	}
	netif.Update(func(info *pppos.NetifInfo) {
		*info = pppos.NetifInfo{Name: "ppp" + strconv.Itoa(unit)}
	})
	return s, nil
}

// SetDefault implements pppos.Engine.
func (e *Engine) SetDefault(h pppos.Handle) error {
	s, err := e.session(h)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cmd != nil {
		return fmt.Errorf("pppd: session already started")
	}
	s.defaultRoute = true
	return nil
}

// Connect implements pppos.Engine.
func (e *Engine) Connect(h pppos.Handle) error {
	s, err := e.session(h)
	if err != nil {
		return err
	}
	return s.start()
}

// Free implements pppos.Engine.
func (e *Engine) Free(h pppos.Handle) error {
	s, err := e.session(h)
	if err != nil {
		return err
	}
	return s.Close()
}

// Input implements pppos.Engine.
func (e *Engine) Input(h pppos.Handle, data []byte) error {
	s, err := e.session(h)
	if err != nil {
		return err
	}
	return s.input(data)
}

func (e *Engine) session(h pppos.Handle) (*Session, error) {
	s, ok := h.(*Session)
	if !ok || s == nil || s.engine != e {
		return nil, fmt.Errorf("pppd: invalid handle %v", h)
	}
	return s, nil
}

// CommandArgs returns the pppd arguments of the session.
func (s *Session) CommandArgs() []string {
	e := s.engine
	args := append([]string{}, e.Args...)
	args = append(args, "notty", "nodetach", "logfd", "2", "unit", strconv.Itoa(s.unit))
	if s.defaultRoute {
		args = append(args, "defaultroute")
	}
	return append(args, e.Options...)
}

// ExitErr returns how pppd terminated, nil while running.
func (s *Session) ExitErr() *ExitError {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.exitErr
}

// Close stops pppd and waits for it. No callbacks are made afterwards.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.lock.Lock()
	cmd, stdin := s.cmd, s.stdin
	s.lock.Unlock()
	if cmd == nil {
		return nil
	}
	stdin.Close()
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		glog.V(1).Infof("pppd[%d]: signal: %v", s.unit, err)
	}
	timeout := s.engine.KillTimeout
	if timeout <= 0 {
		timeout = DefaultKillTimeout
	}
	select {
	case <-s.exited:
	case <-time.After(timeout):
		glog.Warningf("pppd[%d]: not terminated in %s, killing", s.unit, timeout)
		cmd.Process.Kill()
		<-s.exited
	}
	return nil
}

func (s *Session) start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if s.cmd != nil {
		return fmt.Errorf("pppd: session already started")
	}
	path := s.engine.Path
	if path == "" {
		path = DefaultPath
	}
	cmd := exec.Command(path, s.CommandArgs()...)
	if len(s.engine.Env) > 0 {
		cmd.Env = append(os.Environ(), s.engine.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	glog.Infof("pppd[%d]: starting %s %v", s.unit, path, cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pppd: %w", err)
	}
	s.cmd, s.stdin = cmd, stdin
	s.inputQ = make(chan []byte, InputQueueSize)

	s.readers.Add(2)
	go s.pipeOutput(stdout)
	go s.parseLog(stderr)
	go s.pipeInput(stdin, s.inputQ)
	go s.wait()
	return nil
}

// input queues data for pppd stdin, it never blocks.
func (s *Session) input(data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.lock.Lock()
	q := s.inputQ
	s.lock.Unlock()
	if q == nil {
		return fmt.Errorf("pppd: session not started")
	}
	select {
	case q <- append([]byte(nil), data...):
		return nil
	default:
		return ErrInputOverrun
	}
}

func (s *Session) pipeInput(w io.Writer, q <-chan []byte) {
	for {
		select {
		case data := <-q:
			if _, err := w.Write(data); err != nil {
				glog.V(1).Infof("pppd[%d]: write stdin: %v", s.unit, err)
				return
			}
		case <-s.exited:
			return
		}
	}
}

func (s *Session) pipeOutput(r io.Reader) {
	defer s.readers.Done()
	buf := make([]byte, 1500)
	for {
		n, err := r.Read(buf)
		if n > 0 && !s.closed.Load() {
			s.output(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) parseLog(r io.Reader) {
	defer s.readers.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		glog.V(1).Infof("pppd[%d]: %s", s.unit, line)
		s.handleLogLine(line)
	}
}

func (s *Session) handleLogLine(line string) {
	event, value := parseLogLine(line)
	if event == logNone {
		return
	}
	var linkUp bool
	s.lock.Lock()
	switch event {
	case logInterface:
		s.netif.Update(func(info *pppos.NetifInfo) { info.Name = value })
	case logLocalIP:
		if addr, ok := parseAddr(value); ok {
			s.local = true
			s.netif.Update(func(info *pppos.NetifInfo) { info.Addr = addr })
		}
	case logRemoteIP:
		if addr, ok := parseAddr(value); ok {
			s.remote = true
			s.netif.Update(func(info *pppos.NetifInfo) {
				info.Peer = addr
				info.Gateway = addr
			})
		}
	case logPrimaryDNS:
		if addr, ok := parseAddr(value); ok {
			s.netif.Update(func(info *pppos.NetifInfo) { info.DNS = addr })
		}
	case logTerminated:
		glog.Infof("pppd[%d]: connection terminated", s.unit)
	}
	if !s.up && s.local && s.remote {
		s.up = true
		linkUp = true
	}
	s.lock.Unlock()
	if linkUp && !s.closed.Load() {
		s.status(pppos.ErrNone)
	}
}

func (s *Session) wait() {
	defer close(s.exited)
	s.readers.Wait()
	exitErr := exitErrorOf(s.cmd.Wait())
	s.lock.Lock()
	s.exitErr = exitErr
	s.lock.Unlock()
	if s.closed.Load() {
		glog.V(1).Infof("pppd[%d]: %v", s.unit, exitErr)
		return
	}
	glog.Warningf("pppd[%d]: %v", s.unit, exitErr)
	s.status(exitErr.ErrCode())
}
