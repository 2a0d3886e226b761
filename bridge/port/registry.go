package port

import (
	"slices"
	"sync/atomic"

	"github.com/yanet-platform/yabridge/bridge/fdb"
)

// Port is a network interface enslaved to the bridge.
type Port struct {
	ID      fdb.PortID `json:"id" yaml:"id"`
	Name    string     `json:"name" yaml:"name"`
	IfIndex int        `json:"ifindex" yaml:"ifindex"`
	Addr    fdb.MAC    `json:"addr" yaml:"addr"`
}

// Registry is the set of attached ports.
//
// Reads are lock-free: they observe an immutable view which writers replace
// as a whole. This is what allows the forwarding database to consult the
// registry while holding its own lock.
//
// Registry implements fdb.Ports.
type Registry struct {
	view atomic.Pointer[[]Port]
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	m := &Registry{}
	m.view.Store(&[]Port{})
	return m
}

func (m *Registry) ports() []Port {
	return *m.view.Load()
}

// swap replaces the current view, returning the previous one.
//
// The given ports must be sorted by ID and must not be modified afterwards.
func (m *Registry) swap(ports []Port) []Port {
	return *m.view.Swap(&ports)
}

// List returns a copy of the attached ports, ordered by ID.
func (m *Registry) List() []Port {
	return slices.Clone(m.ports())
}

// Len returns the number of attached ports.
func (m *Registry) Len() int {
	return len(m.ports())
}

// Get returns the port with the given ID.
func (m *Registry) Get(id fdb.PortID) (Port, bool) {
	ports := m.ports()
	if idx, ok := slices.BinarySearchFunc(ports, id, cmpID); ok {
		return ports[idx], true
	}

	return Port{}, false
}

// Lookup returns the port backed by the interface with the given index.
func (m *Registry) Lookup(ifindex int) (Port, bool) {
	for _, port := range m.ports() {
		if port.IfIndex == ifindex {
			return port, true
		}
	}

	return Port{}, false
}

// Attached implements fdb.Ports.
func (m *Registry) Attached(id fdb.PortID) bool {
	_, ok := m.Get(id)
	return ok
}

// SharingPort implements fdb.Ports.
//
// The lowest numbered port wins when several share the address.
func (m *Registry) SharingPort(addr fdb.MAC, except fdb.PortID) (fdb.PortID, bool) {
	for _, port := range m.ports() {
		if port.ID != except && port.Addr == addr {
			return port.ID, true
		}
	}

	return fdb.NoPort, false
}

func cmpID(port Port, id fdb.PortID) int {
	return int(port.ID) - int(id)
}
