// Package sh provides the operator console of a running bridge.
package sh

import (
	"bytes"
	"encoding/json"
	"flag"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/pppos/pkg/pppos"
)

// Source is the bridge inspected by the shell.
type Source interface {
	Status() pppos.ConnectionStatus
	Stats() pppos.Stats
	Netif() pppos.NetifInfo
	Config() pppos.IPConfig
	RequestReconnect()
}

// Command is a console command.
type Command struct {
	Name    string
	Aliases []string
	Help    string
	// Run returns a result printed as JSON or with fmt.
	Run func(src Source, args []string) (interface{}, error)
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Source Source
	// Output receives results of evaluated commands, os.Stdout if nil.
	Output io.Writer
}

// ErrCommandExpected is returned when evaluation only is requested
// without a command.
var ErrCommandExpected = errors.New("command expected")

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool

	commands = []*Command{
		&StatusCmd,
		&NetifCmd,
		&StatsCmd,
		&ConfigCmd,
		&ReconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds adds more commands during init func.
func AddCmds(cmds ...*Command) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(src Source) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Source: src,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("pppos > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(s.ishellCmd(cmd))
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Eval runs a command and renders the result.
func (s *Shell) Eval(name string, args ...string) (string, error) {
	for _, cmd := range commands {
		if cmd.Name == name || contains(cmd.Aliases, name) {
			res, err := cmd.Run(s.Source, args)
			if err != nil {
				return "", err
			}
			return Render(res, s.OutputJSON)
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}

// Render formats a command result.
func Render(res interface{}, asJSON bool) (string, error) {
	if res == nil {
		return "OK", nil
	}
	if asJSON {
		out, err := json.Marshal(res)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return fmt.Sprint(res), nil
}

// Run evaluates the command in args, or runs the interactive shell
// when no command is given.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		out, err := s.Eval(args[0], args[1:]...)
		if err != nil {
			return err
		}
		w := s.Output
		if w == nil {
			w = os.Stdout
		}
		_, err = fmt.Fprintln(w, out)
		return err
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return ErrCommandExpected
}

// Close stops the interactive shell.
func (s *Shell) Close() error {
	if s.Shell != nil {
		s.Shell.Close()
	}
	return nil
}

func (s *Shell) ishellCmd(cmd *Command) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    cmd.Name,
		Aliases: cmd.Aliases,
		Help:    cmd.Help,
		Func: func(c *ishell.Context) {
			sh := ShellFrom(c)
			res, err := cmd.Run(sh.Source, c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			out, err := Render(res, sh.OutputJSON)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(out)
		},
	}
}

func contains(items []string, item string) bool {
	for _, i := range items {
		if i == item {
			return true
		}
	}
	return false
}

// StatusResult is the result of StatusCmd.
type StatusResult struct {
	Status    pppos.ConnectionStatus `json:"status"`
	LastError pppos.ErrCode          `json:"last_error"`
}

func (r StatusResult) String() string {
	if r.LastError != pppos.ErrNone {
		return fmt.Sprintf("%s (last error: %s)", r.Status, r.LastError)
	}
	return r.Status.String()
}

// NetifResult is the result of NetifCmd.
type NetifResult pppos.NetifInfo

func (r NetifResult) String() string {
	var w bytes.Buffer
	tw := tabwriter.NewWriter(&w, 0, 4, 1, ' ', 0)
	name := r.Name
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(tw, "Interface\t%s\n", name)
	fmt.Fprintf(tw, "IP address\t%s\n", formatAddr(r.Addr.String(), r.Addr.IsValid()))
	fmt.Fprintf(tw, "Gateway\t%s\n", formatAddr(r.Gateway.String(), r.Gateway.IsValid()))
	fmt.Fprintf(tw, "Peer\t%s\n", formatAddr(r.Peer.String(), r.Peer.IsValid()))
	fmt.Fprintf(tw, "DNS\t%s", formatAddr(r.DNS.String(), r.DNS.IsValid()))
	tw.Flush()
	return w.String()
}

// StatsResult is the result of StatsCmd.
type StatsResult pppos.Stats

func (r StatsResult) String() string {
	var w bytes.Buffer
	tw := tabwriter.NewWriter(&w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "Status\t%s\n", r.Status)
	fmt.Fprintf(tw, "RX bytes\t%d\n", r.RxBytes)
	fmt.Fprintf(tw, "TX bytes\t%d\n", r.TxBytes)
	fmt.Fprintf(tw, "Connects\t%d\n", r.Connects)
	fmt.Fprintf(tw, "Link ups\t%d\n", r.LinkUps)
	fmt.Fprintf(tw, "Link losses\t%d\n", r.LinkLosses)
	fmt.Fprintf(tw, "Last error\t%s", r.LastError)
	tw.Flush()
	return w.String()
}

// ConfigResult is the result of ConfigCmd.
type ConfigResult struct {
	Gateway string `json:"gateway"`
	DNS     string `json:"dns"`
}

func (r ConfigResult) String() string {
	return fmt.Sprintf("gateway %s, dns %s", r.Gateway, r.DNS)
}

func formatAddr(addr string, ok bool) string {
	if !ok {
		return "-"
	}
	return addr
}

func configValue(cfg pppos.IPConfig, gateway bool) string {
	addr := cfg.DNS
	if gateway {
		addr = cfg.Gateway
	}
	if !pppos.IsSet(addr) {
		return "negotiated"
	}
	return addr.String()
}

var (
	// StatusCmd prints the connection status.
	StatusCmd = Command{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "show connection status",
		Run: func(src Source, args []string) (interface{}, error) {
			stats := src.Stats()
			return StatusResult{Status: stats.Status, LastError: stats.LastError}, nil
		},
	}

	// NetifCmd prints the network interface.
	NetifCmd = Command{
		Name:    "netif",
		Aliases: []string{"ip"},
		Help:    "show network interface",
		Run: func(src Source, args []string) (interface{}, error) {
			return NetifResult(src.Netif()), nil
		},
	}

	// StatsCmd prints counters.
	StatsCmd = Command{
		Name: "stats",
		Help: "show counters",
		Run: func(src Source, args []string) (interface{}, error) {
			return StatsResult(src.Stats()), nil
		},
	}

	// ConfigCmd prints the IP overrides.
	ConfigCmd = Command{
		Name: "config",
		Help: "show gateway and DNS overrides",
		Run: func(src Source, args []string) (interface{}, error) {
			cfg := src.Config()
			return ConfigResult{Gateway: configValue(cfg, true), DNS: configValue(cfg, false)}, nil
		},
	}

	// ReconnectCmd asks the watchdog to reconnect.
	ReconnectCmd = Command{
		Name:    "reconnect",
		Aliases: []string{"r"},
		Help:    "tear down the link and connect again",
		Run: func(src Source, args []string) (interface{}, error) {
			if !src.Status().IsActive() {
				return nil, fmt.Errorf("not connected, the watchdog reconnects automatically")
			}
			src.RequestReconnect()
			return nil, nil
		},
	}
)
