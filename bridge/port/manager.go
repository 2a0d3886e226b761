package port

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/common/go/bitset"
)

// MaxPorts is the number of port numbers. Port 0 is reserved.
const MaxPorts = bitset.MaxBits

var (
	// ErrNoFreePort is returned when every port number is taken.
	ErrNoFreePort = errors.New("no free port number")
	// ErrPortExists is returned when the interface is already attached.
	ErrPortExists = errors.New("port already exists")
	// ErrPortNotFound is returned when the interface is not attached.
	ErrPortNotFound = errors.New("port not found")
)

// Table is the part of the forwarding database the manager drives.
type Table interface {
	InsertLocal(port fdb.PortID, addr fdb.MAC) error
	ChangeAddress(port fdb.PortID, addr fdb.MAC) error
	DeleteByPort(port fdb.PortID) int
}

// Manager attaches and detaches ports, keeping the registry and the local
// entries of the forwarding database in sync.
type Manager struct {
	mu       sync.Mutex
	used     bitset.TinyBitset
	registry *Registry
	table    Table
	log      *zap.SugaredLogger
}

// NewManager creates a new port manager.
//
// The registry should be the one the table was created with.
func NewManager(registry *Registry, table Table, log *zap.SugaredLogger) *Manager {
	m := &Manager{
		registry: registry,
		table:    table,
		log:      log,
	}
	m.used.Insert(uint32(fdb.NoPort))

	return m
}

// Registry returns the set of attached ports.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Lookup returns the port backed by the interface with the given index.
func (m *Manager) Lookup(ifindex int) (Port, bool) {
	return m.registry.Lookup(ifindex)
}

// List returns the attached ports, ordered by ID.
func (m *Manager) List() []Port {
	return m.registry.List()
}

// Attach enslaves the given interface, assigning it the lowest free port
// number and registering its address as local.
func (m *Manager) Attach(ifindex int, name string, addr fdb.MAC) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if port, ok := m.registry.Lookup(ifindex); ok {
		return port, fmt.Errorf("%w: %q is port %d", ErrPortExists, name, port.ID)
	}

	id, ok := m.used.NextClear(1)
	if !ok {
		return Port{}, fmt.Errorf("failed to attach %q: %w", name, ErrNoFreePort)
	}

	port := Port{
		ID:      fdb.PortID(id),
		Name:    name,
		IfIndex: ifindex,
		Addr:    addr,
	}

	ports := m.registry.ports()
	idx, _ := slices.BinarySearchFunc(ports, port.ID, cmpID)
	prev := m.registry.swap(slices.Insert(slices.Clone(ports), idx, port))

	if err := m.table.InsertLocal(port.ID, addr); err != nil {
		m.registry.swap(prev)
		return Port{}, fmt.Errorf("failed to insert local address of %q: %w", name, err)
	}
	m.used.Insert(id)

	m.log.Infow("attached port",
		zap.String("name", name),
		zap.Int("ifindex", ifindex),
		zap.Uint16("port", uint16(port.ID)),
		zap.Stringer("addr", addr),
	)

	return port, nil
}

// Detach removes the interface from the bridge, deleting every entry
// reachable through it.
func (m *Manager) Detach(ifindex int) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	port, ok := m.registry.Lookup(ifindex)
	if !ok {
		return Port{}, fmt.Errorf("%w: ifindex %d", ErrPortNotFound, ifindex)
	}

	m.registry.swap(slices.DeleteFunc(slices.Clone(m.registry.ports()), func(p Port) bool {
		return p.ID == port.ID
	}))
	deleted := m.table.DeleteByPort(port.ID)
	m.used.Remove(uint32(port.ID))

	m.log.Infow("detached port",
		zap.String("name", port.Name),
		zap.Int("ifindex", ifindex),
		zap.Uint16("port", uint16(port.ID)),
		zap.Int("deleted", deleted),
	)

	return port, nil
}

// SetAddress handles a hardware address change of an attached interface.
func (m *Manager) SetAddress(ifindex int, addr fdb.MAC) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	port, ok := m.registry.Lookup(ifindex)
	if !ok {
		return Port{}, fmt.Errorf("%w: ifindex %d", ErrPortNotFound, ifindex)
	}
	if port.Addr == addr {
		return port, nil
	}

	old := port.Addr
	port.Addr = addr

	ports := slices.Clone(m.registry.ports())
	idx, _ := slices.BinarySearchFunc(ports, port.ID, cmpID)
	ports[idx] = port
	prev := m.registry.swap(ports)

	if err := m.table.ChangeAddress(port.ID, addr); err != nil {
		m.registry.swap(prev)
		return Port{}, fmt.Errorf("failed to change address of %q: %w", port.Name, err)
	}

	m.log.Infow("changed port address",
		zap.String("name", port.Name),
		zap.Uint16("port", uint16(port.ID)),
		zap.Stringer("from", old),
		zap.Stringer("to", addr),
	)

	return port, nil
}
