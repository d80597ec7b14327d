package queue

import (
	"encoding/binary"

	"github.com/fornolabs/expedite/pkg/id"
)

const (
	prefixMsg      = "msg/"
	prefixAvail    = "avail/"
	prefixDelay    = "delay/"
	prefixLease    = "lease/"
	prefixLeaseIdx = "lease_idx/"
	prefixReceipt  = "receipt/"
	prefixRCount   = "rcount/"
)

// queuePrefix returns the base prefix for a queue. Format: q/{queue}/
func queuePrefix(queue string) string { return "q/" + queue + "/" }

func msgKey(queue string, mid id.ID) []byte {
	p := queuePrefix(queue) + prefixMsg
	key := make([]byte, len(p)+16)
	copy(key, p)
	copy(key[len(p):], mid[:])
	return key
}

// availKey orders by ascending priority, then by id (creation time).
func availKey(queue string, priority uint32, mid id.ID) []byte {
	p := queuePrefix(queue) + prefixAvail
	key := make([]byte, len(p)+4+16)
	copy(key, p)
	binary.BigEndian.PutUint32(key[len(p):], priority)
	copy(key[len(p)+4:], mid[:])
	return key
}

func delayKey(queue string, readyAtMs int64, mid id.ID) []byte {
	p := queuePrefix(queue) + prefixDelay
	key := make([]byte, len(p)+8+16)
	copy(key, p)
	binary.BigEndian.PutUint64(key[len(p):], uint64(readyAtMs))
	copy(key[len(p)+8:], mid[:])
	return key
}

func leaseKey(queue string, mid id.ID) []byte {
	p := queuePrefix(queue) + prefixLease
	key := make([]byte, len(p)+16)
	copy(key, p)
	copy(key[len(p):], mid[:])
	return key
}

func leaseIdxKey(queue string, expiresMs int64, mid id.ID) []byte {
	p := queuePrefix(queue) + prefixLeaseIdx
	key := make([]byte, len(p)+8+16)
	copy(key, p)
	binary.BigEndian.PutUint64(key[len(p):], uint64(expiresMs))
	copy(key[len(p)+8:], mid[:])
	return key
}

func receiptKey(queue, handle string) []byte {
	return []byte(queuePrefix(queue) + prefixReceipt + handle)
}

func rcountKey(queue string, mid id.ID) []byte {
	p := queuePrefix(queue) + prefixRCount
	key := make([]byte, len(p)+16)
	copy(key, p)
	copy(key[len(p):], mid[:])
	return key
}

func availPrefix(queue string) []byte    { return []byte(queuePrefix(queue) + prefixAvail) }
func delayPrefix(queue string) []byte    { return []byte(queuePrefix(queue) + prefixDelay) }
func leasePrefix(queue string) []byte    { return []byte(queuePrefix(queue) + prefixLease) }
func leaseIdxPrefix(queue string) []byte { return []byte(queuePrefix(queue) + prefixLeaseIdx) }

// idFromKeyTail extracts the trailing 16-byte message id from an index key.
func idFromKeyTail(key []byte) (id.ID, bool) {
	if len(key) < 16 {
		return id.ID{}, false
	}
	var mid id.ID
	copy(mid[:], key[len(key)-16:])
	return mid, true
}
