package entities

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/wesleywu/kroute/internal/routing/types"
)

// RequestSet is a set of route requests keyed by a hash of their kernel-relevant fields.
// Requests sharing a hash are compared field by field.
type RequestSet struct {
	requests map[uint64][]*types.RouteRequest
	hash     func(*types.RouteRequest) uint64
}

// NewRequestSet creates a new RequestSet
func NewRequestSet() *RequestSet {
	return &RequestSet{
		requests: make(map[uint64][]*types.RouteRequest),
		hash:     hashRequest,
	}
}

// Add adds a request to the set, returning false if an identical request is present
func (rs *RequestSet) Add(req *types.RouteRequest) bool {
	if req == nil {
		return false
	}
	hash := rs.hash(req)

	for _, existing := range rs.requests[hash] {
		if sameRequest(existing, req) {
			return false
		}
	}

	rs.requests[hash] = append(rs.requests[hash], req)
	return true
}

// Remove drops the request identical to req, returning false if there is none
func (rs *RequestSet) Remove(req *types.RouteRequest) bool {
	if req == nil {
		return false
	}
	hash := rs.hash(req)

	bucket := rs.requests[hash]
	for i, existing := range bucket {
		if sameRequest(existing, req) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(rs.requests, hash)
			} else {
				rs.requests[hash] = bucket
			}
			return true
		}
	}
	return false
}

// hashRequest hashes action, metric, addresses and device. Nil addresses hash as 0.0.0.0.
func hashRequest(req *types.RouteRequest) uint64 {
	h := xxhash.New()

	var hdr [3]byte
	hdr[0] = byte(req.Action)
	binary.BigEndian.PutUint16(hdr[1:], req.Metric)
	_, _ = h.Write(hdr[:])

	_, _ = h.Write(addr4(req.Destination))
	_, _ = h.Write(addr4(req.Netmask))
	_, _ = h.Write(addr4(req.Gateway))
	_, _ = h.WriteString(req.Device)

	return h.Sum64()
}

// sameRequest reports whether a and b submit the same kernel route operation
func sameRequest(a, b *types.RouteRequest) bool {
	return a.Action == b.Action &&
		a.Metric == b.Metric &&
		a.Device == b.Device &&
		bytes.Equal(addr4(a.Destination), addr4(b.Destination)) &&
		bytes.Equal(addr4(a.Netmask), addr4(b.Netmask)) &&
		bytes.Equal(addr4(a.Gateway), addr4(b.Gateway))
}

func addr4(b []byte) []byte {
	switch len(b) {
	case 4:
		return b
	case 16:
		return b[12:]
	default:
		return make([]byte, 4)
	}
}
