// Package store persists activation bookkeeping across restarts. It
// implements the kmsmsg.Store interface with one record per CMID: a
// request from a given CMID always resolves to the same EPID once one has
// been assigned, and the store tracks how many times each client
// has checked in and the FILETIMEs of its last six requests.
package store

import "github.com/relaykms/kmsgate/codec"

// ringSize is the number of trailing request FILETIMEs a client record
// remembers, per the persisted schema's ring_1..ring_6 columns.
const ringSize = 6

// Record is one client's activation bookkeeping row.
type Record struct {
	CMID             codec.UUID
	ApplicationGroup codec.UUID
	SKU              codec.UUID
	EPID             string
	FirstRequestTime uint64
	LastRequestTime  uint64
	NRequests        int
	Ring             [ringSize]uint64 // most recent first; zero entries are unused
}

// pushRing shifts t onto the front of the ring, dropping the oldest entry.
func pushRing(ring [ringSize]uint64, t uint64) [ringSize]uint64 {
	var out [ringSize]uint64
	out[0] = t
	copy(out[1:], ring[:ringSize-1])
	return out
}
