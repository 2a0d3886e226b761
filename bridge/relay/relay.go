package relay

import (
	"fmt"
	"time"

	"github.com/gopacket/gopacket"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/yanet-platform/yabridge/bridge/fdb"
	"github.com/yanet-platform/yabridge/common/go/xpacket"
)

// Verdict is what the bridge does with a received frame.
type Verdict uint8

const (
	// VerdictDrop discards the frame.
	VerdictDrop Verdict = iota
	// VerdictFlood sends the frame out of every port except the ingress.
	VerdictFlood
	// VerdictForward sends the frame out of a single port.
	VerdictForward
	// VerdictDeliver passes the frame up to the local stack.
	VerdictDeliver
)

func (m Verdict) String() string {
	switch m {
	case VerdictDrop:
		return "drop"
	case VerdictFlood:
		return "flood"
	case VerdictForward:
		return "forward"
	case VerdictDeliver:
		return "deliver"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(m))
	}
}

// Decision is the result of classifying a frame.
type Decision struct {
	Verdict Verdict `json:"verdict" yaml:"verdict"`
	// Port is the egress port for forwarded frames and the owning port for
	// delivered ones.
	Port fdb.PortID `json:"port" yaml:"port"`
	Src  fdb.MAC    `json:"src" yaml:"src"`
	Dst  fdb.MAC    `json:"dst" yaml:"dst"`
}

// Table is the part of the forwarding database on the receive path.
type Table interface {
	Update(port fdb.PortID, addr fdb.MAC, now time.Time)
	Lookup(addr fdb.MAC) (*fdb.Entry, bool)
	Release(e *fdb.Entry)
}

// Classifier learns source addresses of received frames and decides where
// to send them.
type Classifier struct {
	table Table
	clock clock.PassiveClock
	log   *zap.SugaredLogger
}

// NewClassifier creates a new frame classifier.
func NewClassifier(table Table, clock clock.PassiveClock, log *zap.SugaredLogger) *Classifier {
	return &Classifier{
		table: table,
		clock: clock,
		log:   log,
	}
}

// Classify decodes a raw Ethernet frame received on the given port.
func (m *Classifier) Classify(ingress fdb.PortID, frame []byte) (Decision, error) {
	return m.ClassifyPacket(ingress, xpacket.ParseEtherPacket(frame))
}

// ClassifyPacket is Classify for an already decoded packet.
func (m *Classifier) ClassifyPacket(ingress fdb.PortID, packet gopacket.Packet) (Decision, error) {
	eth, err := xpacket.Ethernet(packet)
	if err != nil {
		return Decision{}, err
	}

	src, ok := fdb.MACFromSlice(eth.SrcMAC)
	if !ok {
		return Decision{}, fmt.Errorf("%w: source %q", fdb.ErrInvalidAddress, eth.SrcMAC)
	}
	dst, ok := fdb.MACFromSlice(eth.DstMAC)
	if !ok {
		return Decision{}, fmt.Errorf("%w: destination %q", fdb.ErrInvalidAddress, eth.DstMAC)
	}

	return m.Decide(ingress, src, dst), nil
}

// Decide learns src on the ingress port and resolves dst.
func (m *Classifier) Decide(ingress fdb.PortID, src fdb.MAC, dst fdb.MAC) Decision {
	decision := Decision{Src: src, Dst: dst}

	// Multicast and all-zero sources are bogus.
	if !src.IsValidUnicast() {
		m.log.Debugw("dropping frame with invalid source address",
			zap.Stringer("src", src),
			zap.Uint16("port", uint16(ingress)),
		)
		decision.Verdict = VerdictDrop
		return decision
	}

	m.table.Update(ingress, src, m.clock.Now())

	if dst.IsMulticast() {
		decision.Verdict = VerdictFlood
		return decision
	}

	e, ok := m.table.Lookup(dst)
	if !ok {
		decision.Verdict = VerdictFlood
		return decision
	}
	defer m.table.Release(e)

	decision.Port = e.Port()
	switch {
	case e.IsLocal():
		decision.Verdict = VerdictDeliver
	case e.Port() == ingress:
		// The destination is on the segment the frame came from.
		decision.Verdict = VerdictDrop
	default:
		decision.Verdict = VerdictForward
	}

	return decision
}
