package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine, hashed so
// it can be published. The hostname is used when no machine ID exists.
func MachineID() string {
	id, err := machineid.ProtectedID("pppos")
	if err == nil {
		return id[:16]
	}
	glog.V(1).Infof("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return ""
}
