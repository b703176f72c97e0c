package models

import (
	"slices"
	"time"
)

// BundleID identifies a bundle. IDs are assigned monotonically starting at 1;
// the zero value means "no bundle".
type BundleID uint64

// Color is a named display color with a light variant for backgrounds.
type Color struct {
	Name  string `json:"name"`
	Color string `json:"color" validate:"required,hexcolor"`
	Light string `json:"light"`
}

// Bundle is a named, colored group of nodes executed together.
type Bundle struct {
	ID        BundleID  `json:"id"`
	Name      string    `json:"name"`
	NodeIDs   []string  `json:"node_ids"`
	Color     Color     `json:"color"`
	IsRunning bool      `json:"is_running"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *Bundle) Contains(nodeID string) bool {
	return slices.Contains(b.NodeIDs, nodeID)
}

func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}

	c := *b
	c.NodeIDs = slices.Clone(b.NodeIDs)

	return &c
}
