package vda5050

import "time"

// Header carries the fields every published VDA 5050 message stamps: a
// per-topic monotonic counter, the send timestamp, the protocol version,
// and the AGV identity.
type Header struct {
	HeaderID     uint32 `json:"headerId"`
	Timestamp    string `json:"timestamp"` // ISO-8601, e.g. time.RFC3339Nano
	Version      string `json:"version"`   // "x.y.z"
	Manufacturer string `json:"manufacturer"`
	SerialNumber string `json:"serialNumber"`
}

// Stamp fills in Timestamp (if empty), Version, and the AGV identity. It
// does not touch HeaderID; callers assign that from a per-topic counter
// before calling Stamp, or after, since Stamp never overwrites a non-zero
// HeaderID.
func (h *Header) Stamp(id AgvId, version string, now time.Time) {
	if h.Timestamp == "" {
		h.Timestamp = now.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	h.Version = version
	h.Manufacturer = id.Manufacturer
	h.SerialNumber = id.SerialNumber
}

// HeaderCounter is a per-topic monotonic header-id counter that wraps at
// 2^32-1 back to 0, per spec §3/§4.2.
type HeaderCounter struct {
	counters map[Topic]uint32
}

// NewHeaderCounter returns a HeaderCounter starting every topic at 0.
func NewHeaderCounter() *HeaderCounter {
	return &HeaderCounter{counters: make(map[Topic]uint32)}
}

// Next returns the next header id for topic and advances the counter,
// wrapping 2^32-1 -> 0.
func (c *HeaderCounter) Next(topic Topic) uint32 {
	id := c.counters[topic]
	if id == 0xFFFFFFFF {
		c.counters[topic] = 0
	} else {
		c.counters[topic] = id + 1
	}
	return id
}
