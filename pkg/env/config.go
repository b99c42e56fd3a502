// Package env assembles a bridge from configuration.
package env

import (
	"flag"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/pppos/pkg/pppos"
	"github.com/robotalks/pppos/pkg/serial"
)

// Config provides options to setup a bridge.
type Config struct {
	// Serial is the transport location, see serial.Open.
	Serial   string `yaml:"serial"`
	BaudRate int    `yaml:"baud"`

	// Gateway and DNS override the negotiated values when set.
	Gateway string `yaml:"gateway"`
	DNS     string `yaml:"dns"`

	// MQTTBrokerURL enables status reporting.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string `yaml:"mqtt"`
	// ID identifies the device in MQTT topics.
	ID string `yaml:"id"`

	PPPD        string   `yaml:"pppd"`
	PPPDOptions []string `yaml:"pppd_options"`
	ResolvConf  string   `yaml:"resolv_conf"`

	CleanupDelay     time.Duration `yaml:"cleanup_delay"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
}

var defaultConfig = Config{
	Serial:           "/dev/ttyUSB0",
	BaudRate:         serial.DefaultBaudRate,
	PPPD:             "pppd",
	PPPDOptions:      []string{"noauth", "local", "usepeerdns"},
	ResolvConf:       "/etc/resolv.conf",
	CleanupDelay:     pppos.DefaultCleanupDelay,
	WatchdogInterval: pppos.DefaultWatchdogInterval,
}

func init() {
	if err := defaultConfig.applyEnv(os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
	}
	if defaultConfig.ID == "" {
		defaultConfig.ID = MachineID()
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if val := getenv("PPPOS_SERIAL"); val != "" {
		c.Serial = val
	}
	if val := getenv("PPPOS_BAUD"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid PPPOS_BAUD %q: %w", val, err)
		}
		c.BaudRate = baud
	}
	if val := getenv("PPPOS_GATEWAY"); val != "" {
		c.Gateway = val
	}
	if val := getenv("PPPOS_DNS"); val != "" {
		c.DNS = val
	}
	if val := getenv("PPPOS_MQTT_URL"); val != "" {
		c.MQTTBrokerURL = val
	}
	if val := getenv("PPPOS_ID"); val != "" {
		c.ID = val
	}
	if val := getenv("PPPOS_PPPD"); val != "" {
		c.PPPD = val
	}
	return nil
}

type stringsFlag struct {
	values *[]string
}

func (f stringsFlag) String() string {
	if f.values == nil {
		return ""
	}
	return strings.Join(*f.values, ",")
}

func (f stringsFlag) Set(val string) error {
	*f.values = strings.Split(val, ",")
	return nil
}

// SetupFlags sets command line flags.
func SetupFlags() {
	defaultConfig.SetupFlags(flag.CommandLine)
}

// SetupFlags registers flags on fs.
func (c *Config) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Serial, "serial", c.Serial, "Serial port or URL (serial://, tcp://, ws://)")
	fs.IntVar(&c.BaudRate, "baud", c.BaudRate, "Serial baud rate")
	fs.StringVar(&c.Gateway, "gateway", c.Gateway, "Gateway override, e.g. 10.0.0.1")
	fs.StringVar(&c.DNS, "dns", c.DNS, "DNS server override, e.g. 8.8.8.8")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL for status reporting")
	fs.StringVar(&c.ID, "id", c.ID, "Device ID")
	fs.StringVar(&c.PPPD, "pppd", c.PPPD, "Path of pppd")
	fs.Var(stringsFlag{values: &c.PPPDOptions}, "pppd-options", "Comma separated pppd options")
	fs.DurationVar(&c.CleanupDelay, "cleanup-delay", c.CleanupDelay, "Delay after PPP interface is freed")
	fs.DurationVar(&c.WatchdogInterval, "watchdog", c.WatchdogInterval, "Link watchdog interval")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.PPPDOptions = append([]string(nil), defaultConfig.PPPDOptions...)
	return &conf
}

// LoadFile overrides the config with a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// IPConfig parses the gateway and DNS overrides.
func (c *Config) IPConfig() (cfg pppos.IPConfig, err error) {
	if cfg.Gateway, err = parseAddr("gateway", c.Gateway); err != nil {
		return
	}
	cfg.DNS, err = parseAddr("dns", c.DNS)
	return
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Serial == "" {
		return fmt.Errorf("serial transport must be specified")
	}
	if c.MQTTBrokerURL != "" && c.ID == "" {
		return fmt.Errorf("device id is required for MQTT reporting")
	}
	_, err := c.IPConfig()
	return err
}

func parseAddr(name, val string) (netip.Addr, error) {
	if val == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(val)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid %s %q: IPv4 address expected", name, val)
	}
	return addr, nil
}
