package backends

import "maps"

// Capabilities is a snapshot of the registry's availability table: backend
// name -> whether it can be constructed in this build. Vendor-library slots
// registered as unavailable appear with false.
type Capabilities struct {
	Backends map[string]bool
}

// Snapshot captures the current availability table.
func Snapshot() Capabilities {
	c := Capabilities{Backends: make(map[string]bool, len(registered))}
	for name, r := range registered {
		c.Backends[name] = r.constructor != nil
	}
	return c
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Backends = make(map[string]bool, len(c.Backends))
	maps.Copy(c2.Backends, c.Backends)
	return c2
}
