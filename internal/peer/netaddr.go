package peer

import (
	"errors"
	"net"
	"strings"
)

var virtualPrefixes = []string{"br-", "veth", "docker", "virbr", "vmnet", "vboxnet", "tun", "tap", "utun"}

var preferredPrefixes = []string{"wl", "eth", "en", "wlan", "wifi"}

func isVirtualInterface(name string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func isPreferredInterface(name string) bool {
	for _, p := range preferredPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// LocalIP returns this host's LAN address: the first private IPv4 on an up,
// non-virtual interface, preferring wired and wireless NICs.
func LocalIP() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	candidates := make([]ifaceAddrs, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		candidates = append(candidates, ifaceAddrs{name: iface.Name, flags: iface.Flags, addrs: addrs})
	}
	return pickLocalIP(candidates)
}

type ifaceAddrs struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

func pickLocalIP(ifaces []ifaceAddrs) (net.IP, error) {
	for _, preferredOnly := range []bool{true, false} {
		for _, iface := range ifaces {
			if iface.flags&net.FlagUp == 0 || iface.flags&net.FlagLoopback != 0 || isVirtualInterface(iface.name) {
				continue
			}
			if preferredOnly && !isPreferredInterface(iface.name) {
				continue
			}
			for _, addr := range iface.addrs {
				ipnet, ok := addr.(*net.IPNet)
				if !ok {
					continue
				}
				if v4 := ipnet.IP.To4(); v4 != nil && v4.IsPrivate() {
					return v4, nil
				}
			}
		}
	}
	return nil, errors.New("no private IPv4 address found")
}

// OwnAddresses lists every unicast address assigned to this host.
func OwnAddresses() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			out = append(out, ipnet.IP)
		}
	}
	return out
}
