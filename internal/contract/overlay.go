package contract

import "github.com/roach88/overlay/internal/ir"

// OverlayRef records one applied patch, in application order.
type OverlayRef struct {
	ID         string `json:"overlay_id"`
	Version    string `json:"version"`
	Hash       string `json:"content_hash"`
	Source     string `json:"source,omitempty"`
	Scope      Scope  `json:"scope,omitempty"`
	OrderIndex int    `json:"order_index"`
}

// Object returns the canonical shape used in envelopes.
func (r OverlayRef) Object() ir.Object {
	obj := ir.Object{
		"overlay_id":   ir.String(r.ID),
		"version":      ir.String(r.Version),
		"content_hash": ir.String(r.Hash),
		"order_index":  ir.Int(r.OrderIndex),
	}
	if r.Source != "" {
		obj["source"] = ir.String(r.Source)
	}
	if r.Scope != "" {
		obj["scope"] = ir.String(r.Scope)
	}
	return obj
}

// ResolverBuild identifies the engine that produced a resolution and the
// exact inputs it was given.
type ResolverBuild struct {
	EngineVersion string `json:"engine_version"`
	BuildHash     string `json:"build_hash"`
}

// Object returns the canonical shape used in envelopes.
func (b ResolverBuild) Object() ir.Object {
	return ir.Object{
		"engine_version": ir.String(b.EngineVersion),
		"build_hash":     ir.String(b.BuildHash),
	}
}
