package pppd

import (
	"net/netip"
	"strings"
)

type logEvent int

const (
	logNone logEvent = iota
	logInterface
	logLocalIP
	logRemoteIP
	logPrimaryDNS
	logSecondaryDNS
	logTerminated
)

var logPatterns = []struct {
	prefix string
	event  logEvent
}{
	{"Using interface ", logInterface},
	{"local IP address ", logLocalIP},
	{"remote IP address ", logRemoteIP},
	{"primary DNS address ", logPrimaryDNS},
	{"secondary DNS address ", logSecondaryDNS},
	{"Connection terminated", logTerminated},
}

// parseLogLine extracts a link event from a pppd log line.
func parseLogLine(line string) (logEvent, string) {
	normalized := strings.Join(strings.Fields(line), " ")
	for _, p := range logPatterns {
		idx := strings.Index(normalized, p.prefix)
		if idx < 0 {
			continue
		}
		value := strings.TrimSpace(normalized[idx+len(p.prefix):])
		if fields := strings.Fields(value); len(fields) > 0 {
			value = fields[0]
		}
		return p.event, value
	}
	return logNone, ""
}

func parseAddr(value string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
