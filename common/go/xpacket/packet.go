package xpacket

import (
	"fmt"
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// MinFrameLen is the minimum Ethernet frame length without FCS.
const MinFrameLen = 60

// ParseEtherPacket decodes raw bytes as an Ethernet frame.
func ParseEtherPacket(data []byte) gopacket.Packet {
	// Pad the packet with zero bytes to align its size at 60 bytes
	// https://github.com/google/gopacket/issues/361
	// github.com/gopacket/gopacket@v1.3.1/layers/ethernet.go#L95
	if len(data) < MinFrameLen {
		var zeros [MinFrameLen]byte
		data = append(data, zeros[:MinFrameLen-len(data)]...)
	}

	return gopacket.NewPacket(
		data,
		layers.LayerTypeEthernet,
		gopacket.Default,
	)
}

// Ethernet returns the Ethernet header of the packet.
func Ethernet(packet gopacket.Packet) (*layers.Ethernet, error) {
	layer := packet.Layer(layers.LayerTypeEthernet)
	if layer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return nil, fmt.Errorf("not an ethernet frame: %w", errLayer.Error())
		}
		return nil, fmt.Errorf("not an ethernet frame")
	}

	eth, _ := layer.(*layers.Ethernet)
	return eth, nil
}

// SerializeLayers serializes the given layers into a frame, fixing lengths
// and checksums.
func SerializeLayers(lyrs ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	if err := gopacket.SerializeLayers(buf, opts, lyrs...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}

	return buf.Bytes(), nil
}

// EtherFrame builds a minimal frame from src to dst carrying the given
// payload.
func EtherFrame(src net.HardwareAddr, dst net.HardwareAddr, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeIPv4,
	}

	return SerializeLayers(eth, gopacket.Payload(payload))
}

// LayersToPacket serializes the given layers and decodes them back, failing
// the test on error.
func LayersToPacket(t *testing.T, lyrs ...gopacket.SerializableLayer) gopacket.Packet {
	data, err := SerializeLayers(lyrs...)
	require.NoError(t, err)

	pkt := ParseEtherPacket(data)
	require.Empty(t, pkt.ErrorLayer(), "%#+v", lyrs)
	return pkt
}
