// Package identity resolves the local node's network identity. The MAC
// address tags job runs with their owning instance; it is provenance, not a
// distributed lock.
package identity

import (
	"fmt"
	"net"
)

// DeviceIdentityError reports that the local network identity could not be
// resolved. Callers must treat affected jobs as non-dispatchable for this
// tick.
type DeviceIdentityError struct {
	Reason string
}

func (e *DeviceIdentityError) Error() string {
	return fmt.Sprintf("resolve device identity: %s", e.Reason)
}

// Device is the resolved local identity.
type Device struct {
	MAC string
	IP  string
}

// Resolve inspects the local interfaces and returns the MAC and IPv4 address
// of the first interface that is up, not a loopback, and carries a hardware
// address.
func Resolve() (*Device, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, &DeviceIdentityError{Reason: err.Error()}
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}

		ip := firstIPv4(&iface)
		if ip == "" {
			continue
		}

		return &Device{MAC: iface.HardwareAddr.String(), IP: ip}, nil
	}

	return nil, &DeviceIdentityError{Reason: "no usable network interface"}
}

func firstIPv4(iface *net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
