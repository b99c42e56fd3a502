package pppd

import (
	"bufio"
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/pppos/pkg/pppos"
)

// DefaultResolvConf is the resolver configuration updated by Stack.
const DefaultResolvConf = "/etc/resolv.conf"

// MaxDNSServers is the number of resolvers managed by Stack.
const MaxDNSServers = 2

// ExecFunc runs a command.
type ExecFunc func(name string, args ...string) error

// Stack implements pppos.Stack on Linux using iproute2 and resolv.conf.
type Stack struct {
	// IP is the path of the ip command.
	IP string
	// ResolvConf is the resolver file, not touched if empty.
	ResolvConf string
	// Exec runs commands, defaults to os/exec.
	Exec ExecFunc

	lock     sync.Mutex
	gateways map[string]netip.Addr
	dns      [MaxDNSServers]netip.Addr
}

// NewStack creates a Stack with defaults.
func NewStack() *Stack {
	return &Stack{IP: "ip", ResolvConf: DefaultResolvConf}
}

// Init implements pppos.Stack.
func (s *Stack) Init() error {
	if s.Exec != nil {
		return nil
	}
	if _, err := exec.LookPath(s.ipPath()); err != nil {
		return fmt.Errorf("iproute2 not available: %w", err)
	}
	return nil
}

// RemoveNetif implements pppos.Stack.
func (s *Stack) RemoveNetif(n *pppos.Netif) error {
	name := n.Name()
	if name == "" {
		return nil
	}
	s.lock.Lock()
	delete(s.gateways, name)
	s.lock.Unlock()
	// the kernel drops the routes with the interface, this covers the
	// interface which survived pppd (e.g. persist).
	if err := s.run("route", "flush", "dev", name); err != nil {
		glog.V(1).Infof("stack: flush routes of %s: %v", name, err)
	}
	return nil
}

// SetGateway implements pppos.Stack.
func (s *Stack) SetGateway(n *pppos.Netif, gw netip.Addr) error {
	name := n.Name()
	if name == "" {
		return fmt.Errorf("stack: interface has no name")
	}
	if err := s.run("route", "replace", "default", "via", gw.String(), "dev", name); err != nil {
		return err
	}
	s.lock.Lock()
	if s.gateways == nil {
		s.gateways = make(map[string]netip.Addr)
	}
	s.gateways[name] = gw
	s.lock.Unlock()
	return nil
}

// SetDefaultNetif implements pppos.Stack.
func (s *Stack) SetDefaultNetif(n *pppos.Netif) error {
	name := n.Name()
	if name == "" {
		return fmt.Errorf("stack: interface has no name")
	}
	s.lock.Lock()
	gw, ok := s.gateways[name]
	s.lock.Unlock()
	if ok {
		return s.run("route", "replace", "default", "via", gw.String(), "dev", name)
	}
	return s.run("route", "replace", "default", "dev", name)
}

// SetDNSServer implements pppos.Stack.
func (s *Stack) SetDNSServer(index int, addr netip.Addr) error {
	if index < 0 || index >= MaxDNSServers {
		return fmt.Errorf("stack: DNS server index %d out of range", index)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.dns[index] = addr
	if s.ResolvConf == "" {
		return nil
	}
	return s.writeResolvConf()
}

// DNSServer implements pppos.Stack. Without an explicit setting it reads
// the nameservers from ResolvConf.
func (s *Stack) DNSServer(index int) netip.Addr {
	if index < 0 || index >= MaxDNSServers {
		return netip.Addr{}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if addr := s.dns[index]; addr.IsValid() {
		return addr
	}
	servers, _, err := readResolvConf(s.ResolvConf)
	if err != nil || index >= len(servers) {
		return netip.Addr{}
	}
	return servers[index]
}

func (s *Stack) ipPath() string {
	if s.IP == "" {
		return "ip"
	}
	return s.IP
}

func (s *Stack) run(args ...string) error {
	name := s.ipPath()
	glog.V(1).Infof("stack: %s %s", name, strings.Join(args, " "))
	if s.Exec != nil {
		return s.Exec(name, args...)
	}
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return nil
}

// writeResolvConf must be called with lock held.
func (s *Stack) writeResolvConf() error {
	servers, others, err := readResolvConf(s.ResolvConf)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for i, addr := range s.dns {
		if !addr.IsValid() {
			continue
		}
		for len(servers) <= i {
			servers = append(servers, netip.Addr{})
		}
		servers[i] = addr
	}
	var buf bytes.Buffer
	for _, addr := range servers {
		if addr.IsValid() {
			fmt.Fprintf(&buf, "nameserver %s\n", addr)
		}
	}
	for _, line := range others {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return os.WriteFile(s.ResolvConf, buf.Bytes(), 0644)
}

// readResolvConf returns nameservers and the rest of lines.
func readResolvConf(path string) (servers []netip.Addr, others []string, err error) {
	if path == "" {
		return nil, nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "nameserver" {
			if addr, err := netip.ParseAddr(fields[1]); err == nil {
				servers = append(servers, addr)
				continue
			}
		}
		others = append(others, line)
	}
	return servers, others, scanner.Err()
}
