// Package catalog holds the static product/SKU tables the message layer
// consults for display names, KMS PID prefixes, and per-group minimum
// client counts. The table is compiled into the binary and never mutated
// after Load, so it is safe to share read-only across sessions.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/relaykms/kmsgate/codec"
)

// ApplicationGroup is a KMS host-facing product family (Windows, Windows
// Server, an Office wave, ...).
type ApplicationGroup struct {
	UUID         codec.UUID `json:"uuid"`
	DisplayName  string     `json:"display_name"`
	KMSPIDPrefix string     `json:"kms_pid_prefix"`
	MinClients   int        `json:"min_clients"`
}

// SKU is a specific activation ID within an ApplicationGroup.
type SKU struct {
	UUID        codec.UUID `json:"uuid"`
	DisplayName string     `json:"display_name"`
	GroupUUID   codec.UUID `json:"group_uuid"`
}

// wireApplicationGroup, wireSKU and wireCatalog mirror the embedded JSON
// document's shape; UUIDs are read as
// plain strings and converted once at Load time.
type wireApplicationGroup struct {
	UUID         string `json:"uuid"`
	DisplayName  string `json:"display_name"`
	KMSPIDPrefix string `json:"kms_pid_prefix"`
	MinClients   int    `json:"min_clients"`
}

type wireSKU struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"display_name"`
	GroupUUID   string `json:"group_uuid"`
}

type wireCatalog struct {
	ApplicationGroups []wireApplicationGroup `json:"application_groups"`
	SKUs              []wireSKU              `json:"skus"`
}

// Catalog is the parsed, read-only product table.
type Catalog struct {
	groups map[codec.UUID]ApplicationGroup
	skus   map[codec.UUID]SKU
}

// Parse decodes a catalog document (the shape of data.json) into a Catalog.
// It never mutates package state; callers own the returned value.
func Parse(raw []byte) (*Catalog, error) {
	var wire wireCatalog
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	c := &Catalog{
		groups: make(map[codec.UUID]ApplicationGroup, len(wire.ApplicationGroups)),
		skus:   make(map[codec.UUID]SKU, len(wire.SKUs)),
	}
	for _, wg := range wire.ApplicationGroups {
		u, err := codec.UUIDFromString(wg.UUID)
		if err != nil {
			return nil, fmt.Errorf("catalog: application group %q: %w", wg.DisplayName, err)
		}
		if len(wg.KMSPIDPrefix) != 5 {
			return nil, fmt.Errorf("catalog: application group %q: kms_pid_prefix must be 5 digits, got %q", wg.DisplayName, wg.KMSPIDPrefix)
		}
		c.groups[u] = ApplicationGroup{
			UUID:         u,
			DisplayName:  wg.DisplayName,
			KMSPIDPrefix: wg.KMSPIDPrefix,
			MinClients:   wg.MinClients,
		}
	}
	for _, ws := range wire.SKUs {
		u, err := codec.UUIDFromString(ws.UUID)
		if err != nil {
			return nil, fmt.Errorf("catalog: sku %q: %w", ws.DisplayName, err)
		}
		gu, err := codec.UUIDFromString(ws.GroupUUID)
		if err != nil {
			return nil, fmt.Errorf("catalog: sku %q group_uuid: %w", ws.DisplayName, err)
		}
		c.skus[u] = SKU{UUID: u, DisplayName: ws.DisplayName, GroupUUID: gu}
	}
	return c, nil
}

// Load parses the compiled-in catalog document.
func Load() (*Catalog, error) {
	return Parse(embeddedData)
}

// AppName returns the application group's display name, or a hex-string
// fallback if the UUID is not in the catalog. Callers should treat a
// fallback as a debug-level, not warning-level, event.
func (c *Catalog) AppName(u codec.UUID) (name string, known bool) {
	if g, ok := c.groups[u]; ok {
		return g.DisplayName, true
	}
	return fmt.Sprintf("%x", [16]byte(u)), false
}

// SKUName returns the SKU's display name, or a hex-string fallback.
func (c *Catalog) SKUName(u codec.UUID) (name string, known bool) {
	if s, ok := c.skus[u]; ok {
		return s.DisplayName, true
	}
	return fmt.Sprintf("%x", [16]byte(u)), false
}

// MinClients returns the application group's minimum activation threshold.
// Unknown groups report 0, letting the caller fall back to config's
// client_count without an artificial floor.
func (c *Catalog) MinClients(u codec.UUID) int {
	if g, ok := c.groups[u]; ok {
		return g.MinClients
	}
	return 0
}

// PIDPrefix returns the application group's 5-digit KMS PID prefix and
// whether the group is known.
func (c *Catalog) PIDPrefix(u codec.UUID) (prefix string, known bool) {
	if g, ok := c.groups[u]; ok {
		return g.KMSPIDPrefix, true
	}
	return "", false
}

// Group looks up an application group by UUID.
func (c *Catalog) Group(u codec.UUID) (ApplicationGroup, bool) {
	g, ok := c.groups[u]
	return g, ok
}

// SKUByUUID looks up a SKU by UUID.
func (c *Catalog) SKUByUUID(u codec.UUID) (SKU, bool) {
	s, ok := c.skus[u]
	return s, ok
}

// Groups returns every known application group, for the self-test client's
// `-mode list` table.
func (c *Catalog) Groups() []ApplicationGroup {
	out := make([]ApplicationGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	return out
}

// SKUs returns every known SKU.
func (c *Catalog) SKUs() []SKU {
	out := make([]SKU, 0, len(c.skus))
	for _, s := range c.skus {
		out = append(out, s)
	}
	return out
}
