// Package peer tracks the devices this one syncs with: their identities,
// the registry they are persisted in, and how to reach them.
package peer

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Registry is the persistent set of known nodes, keyed by device id.
type Registry struct {
	db *sqlitedb.DB
}

// OpenRegistry creates or opens the registry file at path.
func OpenRegistry(path string) (*Registry, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background(), schemaSQL, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the registry.
func (r *Registry) Close() error {
	return r.db.Close()
}

// AddNode inserts n unless a node with the same device id exists.
// It reports whether a row was added.
func (r *Registry) AddNode(ctx context.Context, n domain.Node) (bool, error) {
	res, err := r.db.Write.ExecContext(ctx,
		`INSERT INTO nodes (device_id, name, local_ip, public_ip, last_seen, last_sync, preferred_origin)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO NOTHING`,
		n.DeviceID, n.Name, ipString(n.LocalIP), ipString(n.PublicIP),
		millis(n.LastSeen), millis(n.LastSync), originValue(n.PreferredOrigin))
	if err != nil {
		return false, fmt.Errorf("add node %s: %w", n.DeviceID, err)
	}
	added, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

// Get returns the node with the given device id.
func (r *Registry) Get(ctx context.Context, deviceID string) (domain.Node, error) {
	row := r.db.Read.QueryRowContext(ctx,
		`SELECT device_id, name, local_ip, public_ip, last_seen, last_sync, preferred_origin
		 FROM nodes WHERE device_id = ?`, deviceID)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return domain.Node{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Node{}, fmt.Errorf("get node %s: %w", deviceID, err)
	}
	return n, nil
}

// Nodes returns every known node ordered by device id.
func (r *Registry) Nodes(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.Read.QueryContext(ctx,
		`SELECT device_id, name, local_ip, public_ip, last_seen, last_sync, preferred_origin
		 FROM nodes ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Touch records that n was heard from at t and refreshes whichever of its
// name and addresses are set.
func (r *Registry) Touch(ctx context.Context, n domain.Node, t time.Time) error {
	return r.update(ctx, n.DeviceID,
		`UPDATE nodes SET
			name = COALESCE(NULLIF(?, ''), name),
			local_ip = COALESCE(NULLIF(?, ''), local_ip),
			public_ip = COALESCE(NULLIF(?, ''), public_ip),
			last_seen = ?
		 WHERE device_id = ?`,
		n.Name, ipString(n.LocalIP), ipString(n.PublicIP), t.UnixMilli(), n.DeviceID)
}

// MarkSynced records the time up to which deviceID has been sent our entries.
func (r *Registry) MarkSynced(ctx context.Context, deviceID string, t time.Time) error {
	return r.update(ctx, deviceID,
		`UPDATE nodes SET last_sync = ? WHERE device_id = ?`, t.UnixMilli(), deviceID)
}

// SetPreferredOrigin records which address of deviceID last answered.
func (r *Registry) SetPreferredOrigin(ctx context.Context, deviceID string, o domain.IPOrigin) error {
	return r.update(ctx, deviceID,
		`UPDATE nodes SET preferred_origin = ? WHERE device_id = ?`, int(o), deviceID)
}

// Remove deletes deviceID from the registry.
func (r *Registry) Remove(ctx context.Context, deviceID string) error {
	return r.update(ctx, deviceID, `DELETE FROM nodes WHERE device_id = ?`, deviceID)
}

func (r *Registry) update(ctx context.Context, deviceID, query string, args ...any) error {
	res, err := r.db.Write.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update node %s: %w", deviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (domain.Node, error) {
	var (
		n                 domain.Node
		local, public     string
		lastSeen, lastSyn sql.NullInt64
		origin            sql.NullInt64
	)
	if err := r.Scan(&n.DeviceID, &n.Name, &local, &public, &lastSeen, &lastSyn, &origin); err != nil {
		return domain.Node{}, err
	}
	n.LocalIP = net.ParseIP(local)
	n.PublicIP = net.ParseIP(public)
	n.LastSeen = timeOf(lastSeen)
	n.LastSync = timeOf(lastSyn)
	if origin.Valid {
		o := domain.IPOrigin(origin.Int64)
		n.PreferredOrigin = &o
	}
	return n, nil
}

func ipString(ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	return ip.String()
}

func millis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeOf(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func originValue(o *domain.IPOrigin) any {
	if o == nil {
		return nil
	}
	return int(*o)
}
