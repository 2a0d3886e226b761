package fdb

import (
	"fmt"
	"net"
)

// MAC is an EUI-48 hardware address.
//
// It is comparable and used as the forwarding database key.
type MAC [6]byte

// BroadcastMAC is the all-ones Ethernet address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses an EUI-48 address in any of the formats accepted by
// net.ParseMAC.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}

	addr, ok := MACFromSlice(hw)
	if !ok {
		return MAC{}, fmt.Errorf("unsupported hardware address %q: must be EUI-48", s)
	}

	return addr, nil
}

// MustParseMAC is like ParseMAC, but panics on error.
func MustParseMAC(s string) MAC {
	addr, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}

	return addr
}

// MACFromSlice converts a 6-byte slice into MAC.
func MACFromSlice(b []byte) (MAC, bool) {
	if len(b) != 6 {
		return MAC{}, false
	}

	addr := MAC{}
	copy(addr[:], b)
	return addr, true
}

// String returns the canonical colon-separated lowercase representation.
func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// HardwareAddr returns a copy of this address as net.HardwareAddr.
func (m MAC) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, 6)
	copy(hw, m[:])
	return hw
}

// IsZero reports whether this is the all-zero address.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// IsMulticast reports whether the group bit is set. Broadcast is multicast
// too.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// IsBroadcast reports whether this is the all-ones address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsValidUnicast reports whether the address may be owned by a single
// station: neither all-zero nor multicast (and thus not broadcast).
func (m MAC) IsValidUnicast() bool {
	return !m.IsZero() && !m.IsMulticast()
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	addr, err := ParseMAC(string(text))
	if err != nil {
		return err
	}

	*m = addr
	return nil
}

// PortID is the bridge-local port number.
//
// Zero is never assigned to an attached port.
type PortID uint16

// NoPort is the zero PortID.
const NoPort PortID = 0
