package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"wifiwatch/internal/models"
)

const httpPort = 80

// DecodePacket turns one captured frame into a PacketRecord. Fields that the
// frame does not carry stay empty.
func DecodePacket(data []byte, ci gopacket.CaptureInfo, link gopacket.Decoder) models.PacketRecord {
	pkt := gopacket.NewPacket(data, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	rec := models.PacketRecord{Timestamp: ci.Timestamp, Length: ci.Length}
	if rec.Length == 0 {
		rec.Length = len(data)
	}

	var etherType layers.EthernetType
	if eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		rec.SrcMAC = strings.ToUpper(eth.SrcMAC.String())
		rec.DstMAC = strings.ToUpper(eth.DstMAC.String())
		etherType = eth.EthernetType
	}

	var ipProto layers.IPProtocol
	hasIP := false
	if ip4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		rec.SrcIP, rec.DstIP = ip4.SrcIP.String(), ip4.DstIP.String()
		ipProto, hasIP = ip4.Protocol, true
		rec.Protocol = fmt.Sprintf("IPv4 (%d)", ipProto)
	} else if ip6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		rec.SrcIP, rec.DstIP = ip6.SrcIP.String(), ip6.DstIP.String()
		ipProto, hasIP = ip6.NextHeader, true
		rec.Protocol = fmt.Sprintf("IPv6 (%d)", ipProto)
	}

	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		rec.Protocol = "TCP"
		rec.SrcPort, rec.DstPort = int(tcp.SrcPort), int(tcp.DstPort)
		if rec.DstPort == httpPort && len(tcp.Payload) > 0 && utf8.Valid(tcp.Payload) {
			rec.Payload = string(tcp.Payload)
		}
	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		rec.Protocol = "UDP"
		rec.SrcPort, rec.DstPort = int(udp.SrcPort), int(udp.DstPort)
	case pkt.Layer(layers.LayerTypeARP) != nil:
		rec.Protocol = "ARP"
	case !hasIP && etherType != 0:
		rec.Protocol = fmt.Sprintf("Unknown (0x%04x)", uint16(etherType))
	}
	if rec.Protocol == "" {
		rec.Protocol = "Unknown"
	}
	return rec
}
