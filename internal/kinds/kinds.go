// Package kinds holds the concrete extension kinds attached to host objects.
package kinds

import (
	"fmt"

	"extlayer/internal/checksum"
	"extlayer/internal/extension"
	"extlayer/internal/stream"
)

const (
	Building extension.Kind = "building"
	Techno   extension.Kind = "techno"
	House    extension.Kind = "house"
	Weapon   extension.Kind = "weapon"
)

// Env carries the shared resources records draw from.
type Env struct {
	Lights *LightPool
}

// Descriptors returns every kind in the fixed order used for save files and
// checksum passes.
func Descriptors(env Env) []extension.Descriptor {
	if env.Lights == nil {
		env.Lights = NewLightPool(0)
	}
	return []extension.Descriptor{
		buildingDescriptor(env.Lights),
		technoDescriptor(),
		houseDescriptor(),
		weaponDescriptor(),
	}
}

// Install registers every kind with m.
func Install(m *extension.Manager, env Env) error {
	for _, desc := range Descriptors(env) {
		if err := m.Register(desc); err != nil {
			return fmt.Errorf("kinds: %w", err)
		}
	}
	return nil
}

// RGB is a packed color as stored in the host's rules data.
type RGB struct {
	R, G, B uint8
}

func (c RGB) write(w *stream.Writer) {
	w.Uint8(c.R)
	w.Uint8(c.G)
	w.Uint8(c.B)
}

func (c *RGB) read(r *stream.Reader) {
	c.R = r.Uint8()
	c.G = r.Uint8()
	c.B = r.Uint8()
}

func (c RGB) commit(acc *checksum.Accumulator) {
	acc.Uint8(c.R)
	acc.Uint8(c.G)
	acc.Uint8(c.B)
}
