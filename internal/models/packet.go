package models

import "time"

// PacketRecord holds the extracted information from a captured frame.
type PacketRecord struct {
	Timestamp time.Time
	SrcMAC    string
	DstMAC    string
	SrcIP     string // empty when the frame carries no IP layer
	DstIP     string
	SrcPort   int // 0 when not TCP/UDP
	DstPort   int
	Protocol  string
	Length    int

	// Payload is the decoded text of plaintext HTTP requests, empty otherwise.
	Payload string
}

// HasPorts reports whether the record came from a TCP or UDP segment.
func (p PacketRecord) HasPorts() bool {
	return p.SrcPort != 0 || p.DstPort != 0
}
