package peer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"os"
	"os/user"
	"strings"

	"github.com/denisbrodbeck/machineid"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/ports"
)

// IdentityProvider is one way of deriving a stable device id.
type IdentityProvider struct {
	Name    string
	Resolve func(ctx context.Context) (string, error)
}

// DefaultProviders returns the fallback chain: app-scoped OS machine id, primary MAC
// address, then a hash of hostname and user name.
func DefaultProviders() []IdentityProvider {
	return []IdentityProvider{
		{Name: "machine-id", Resolve: machineID},
		{Name: "mac", Resolve: func(context.Context) (string, error) { return primaryMAC(net.Interfaces) }},
		{Name: "host-user", Resolve: func(context.Context) (string, error) { return hostUserHash(os.Hostname, currentUser) }},
	}
}

// ResolveIdentity tries providers in order and returns the first non-empty id.
func ResolveIdentity(ctx context.Context, providers []IdentityProvider, logger ports.Logger) (string, error) {
	for _, p := range providers {
		id, err := p.Resolve(ctx)
		id = strings.ToLower(strings.TrimSpace(id))
		if err == nil && id != "" {
			logger.Debug("device identity resolved", ports.String("provider", p.Name))
			return id, nil
		}
		logger.Debug("identity provider failed", ports.String("provider", p.Name), ports.Err(err))
	}
	return "", domain.ErrNoIdentity
}

// CachedIdentity returns the cached id if present, otherwise resolves one
// and caches it.
func CachedIdentity(ctx context.Context, cache ports.IdentityCache, providers []IdentityProvider, logger ports.Logger) (string, error) {
	if id, err := cache.Load(ctx); err != nil {
		logger.Warn("identity cache unreadable, resolving again", ports.Err(err))
	} else if id != "" {
		return id, nil
	}

	id, err := ResolveIdentity(ctx, providers, logger)
	if err != nil {
		return "", err
	}
	if err := cache.Save(ctx, id); err != nil {
		logger.Warn("failed to cache device identity", ports.Err(err))
	}
	return id, nil
}

// appID scopes the machine id so the raw OS identifier never leaves the host.
const appID = "clipd"

func machineID(context.Context) (string, error) {
	return machineid.ProtectedID(appID)
}

func primaryMAC(interfaces func() ([]net.Interface, error)) (string, error) {
	ifaces, err := interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}
	return "", errors.New("no hardware address")
}

func hostUserHash(hostname, username func() (string, error)) (string, error) {
	host, err := hostname()
	if err != nil {
		return "", err
	}
	name, err := username()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(host + name))
	return hex.EncodeToString(sum[:]), nil
}

func currentUser() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	for _, env := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	return "", errors.New("current user unknown")
}
