package pppos

import (
	"github.com/golang/glog"
)

// applyNetworkConfig installs the configured gateway and DNS server on the
// interface which just came up. Unset values keep what PPP negotiated.
func (b *Bridge) applyNetworkConfig() {
	cfg := b.config
	if IsSet(cfg.Gateway) {
		if err := b.Stack.SetGateway(&b.netif, cfg.Gateway); err != nil {
			glog.Errorf("netcfg: set gateway %s error: %v", cfg.Gateway, err)
		} else {
			b.netif.Update(func(info *NetifInfo) { info.Gateway = cfg.Gateway })
			if err := b.Stack.SetDefaultNetif(&b.netif); err != nil {
				glog.Errorf("netcfg: set default interface error: %v", err)
			}
		}
	}
	if IsSet(cfg.DNS) {
		if err := b.Stack.SetDNSServer(0, cfg.DNS); err != nil {
			glog.Errorf("netcfg: set DNS server %s error: %v", cfg.DNS, err)
		}
	}

	dns := b.Stack.DNSServer(0)
	b.netif.Update(func(info *NetifInfo) { info.DNS = dns })
	info := b.netif.Snapshot()
	glog.Infof("netcfg: - IP address : %s", info.Addr)
	glog.Infof("netcfg: - Gateway : %s", info.Gateway)
	glog.Infof("netcfg: - DNS : %s", dns)
}
