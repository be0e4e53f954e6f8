package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipnet(s string) net.Addr {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestPickLocalIP(t *testing.T) {
	up := net.FlagUp
	ifaces := []ifaceAddrs{
		{name: "lo", flags: up | net.FlagLoopback, addrs: []net.Addr{ipnet("127.0.0.1/8")}},
		{name: "docker0", flags: up, addrs: []net.Addr{ipnet("172.17.0.1/16")}},
		{name: "zt0", flags: up, addrs: []net.Addr{ipnet("10.147.17.5/24")}},
		{name: "wlp3s0", flags: up, addrs: []net.Addr{ipnet("fe80::1/64"), ipnet("192.168.1.33/24")}},
	}

	ip, err := pickLocalIP(ifaces)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.33", ip.String(), "preferred NIC wins over earlier interfaces")

	ip, err = pickLocalIP(ifaces[:3])
	require.NoError(t, err)
	assert.Equal(t, "10.147.17.5", ip.String(), "any private address as fallback")

	_, err = pickLocalIP(ifaces[:2])
	assert.Error(t, err)
}

func TestPickLocalIP_SkipsDownInterfaces(t *testing.T) {
	_, err := pickLocalIP([]ifaceAddrs{
		{name: "eth0", flags: 0, addrs: []net.Addr{ipnet("192.168.0.2/24")}},
	})
	assert.Error(t, err)
}
