package domain

import (
	"net"
	"time"
)

// IPOrigin says which of a node's addresses is meant.
type IPOrigin int

const (
	OriginLocal IPOrigin = iota
	OriginPublic
)

// String returns "local" or "public".
func (o IPOrigin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginPublic:
		return "public"
	default:
		return "unknown"
	}
}

// Node is a peer device. Two nodes are the same device when their DeviceID matches.
type Node struct {
	DeviceID        string
	Name            string
	LocalIP         net.IP
	PublicIP        net.IP
	LastSeen        *time.Time
	LastSync        *time.Time
	PreferredOrigin *IPOrigin
}

// Same reports whether n and other identify the same device.
func (n Node) Same(other Node) bool {
	return n.DeviceID == other.DeviceID
}

// Addresses returns the node's addresses in dial order.
func (n Node) Addresses() []Address {
	local := Address{IP: n.LocalIP, Origin: OriginLocal}
	public := Address{IP: n.PublicIP, Origin: OriginPublic}

	order := []Address{local, public}
	if n.PreferredOrigin != nil && *n.PreferredOrigin == OriginPublic {
		order = []Address{public, local}
	}

	out := order[:0]
	for _, a := range order {
		if len(a.IP) == 0 {
			continue
		}
		if len(out) > 0 && out[0].IP.Equal(a.IP) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Address is one dialable IP of a node.
type Address struct {
	IP     net.IP
	Origin IPOrigin
}
