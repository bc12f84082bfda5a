package capture

import (
	"sort"
	"strconv"

	"wifiwatch/internal/models"
)

// TalkerStat holds the byte volume sent by one source address.
type TalkerStat struct {
	Addr  string // source IP, or source MAC for non-IP frames
	Bytes int
}

// ProtocolStat holds the frame count for one protocol label.
type ProtocolStat struct {
	Protocol string
	Count    int
}

// Summary describes the packets of a capture buffer.
type Summary struct {
	Packets    int
	Bytes      int
	Protocols  []ProtocolStat // descending by count
	TopTalkers []TalkerStat   // descending by bytes
}

// Summarize computes protocol distribution and top talkers over pkts.
func Summarize(pkts []models.PacketRecord, talkers int) Summary {
	sum := Summary{Packets: len(pkts)}
	byAddr := make(map[string]int)
	byProto := make(map[string]int)

	for _, p := range pkts {
		sum.Bytes += p.Length

		addr := p.SrcIP
		if addr == "" {
			addr = p.SrcMAC
		}
		if addr != "" {
			byAddr[addr] += p.Length
		}

		proto := p.Protocol
		if proto == "" {
			proto = "Unknown"
		}
		byProto[proto]++
	}

	sum.TopTalkers = make([]TalkerStat, 0, len(byAddr))
	for addr, bytes := range byAddr {
		sum.TopTalkers = append(sum.TopTalkers, TalkerStat{Addr: addr, Bytes: bytes})
	}
	sort.Slice(sum.TopTalkers, func(i, j int) bool {
		if sum.TopTalkers[i].Bytes != sum.TopTalkers[j].Bytes {
			return sum.TopTalkers[i].Bytes > sum.TopTalkers[j].Bytes
		}
		return sum.TopTalkers[i].Addr < sum.TopTalkers[j].Addr
	})
	if talkers >= 0 && len(sum.TopTalkers) > talkers {
		sum.TopTalkers = sum.TopTalkers[:talkers]
	}

	sum.Protocols = make([]ProtocolStat, 0, len(byProto))
	for proto, count := range byProto {
		sum.Protocols = append(sum.Protocols, ProtocolStat{Protocol: proto, Count: count})
	}
	sort.Slice(sum.Protocols, func(i, j int) bool {
		if sum.Protocols[i].Count != sum.Protocols[j].Count {
			return sum.Protocols[i].Count > sum.Protocols[j].Count
		}
		return sum.Protocols[i].Protocol < sum.Protocols[j].Protocol
	})

	return sum
}

var commonPorts = map[int]string{
	20:   "FTP-DATA",
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	53:   "DNS",
	67:   "DHCP",
	68:   "DHCP",
	80:   "HTTP",
	123:  "NTP",
	443:  "HTTPS",
	853:  "DoT",
	1900: "SSDP",
	5353: "mDNS",
	8080: "HTTP-Alt",
}

// ServiceName returns the common name for a port, or the port number as a string.
func ServiceName(port int) string {
	if name, ok := commonPorts[port]; ok {
		return name
	}
	return strconv.Itoa(port)
}
