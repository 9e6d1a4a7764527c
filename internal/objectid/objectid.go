// Package objectid generates 24-character hex identifiers that are
// wire-compatible with MongoDB's ObjectId, without pulling in a Mongo
// driver this module has no other use for (see DESIGN.md). The format is
// the standard 12-byte layout: 4-byte unix seconds, 5-byte process-wide
// random value, 3-byte atomic counter.
package objectid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var processRandom = mustRandom5()
var counter uint32 = mustRandomUint32()

func mustRandom5() [5]byte {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("objectid: failed to seed process-random bytes: %v", err))
	}
	return b
}

func mustRandomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("objectid: failed to seed counter: %v", err))
	}
	return binary.BigEndian.Uint32(b[:])
}

// New returns a fresh 24-character lowercase hex ID.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a fresh ID embedding the given timestamp, used by tests
// that need deterministic ordering.
func NewAt(t time.Time) string {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(t.Unix()))
	copy(buf[4:9], processRandom[:])

	c := atomic.AddUint32(&counter, 1) & 0x00FFFFFF
	buf[9] = byte(c >> 16)
	buf[10] = byte(c >> 8)
	buf[11] = byte(c)

	return hex.EncodeToString(buf[:])
}

// Valid reports whether s has the shape of an ObjectId-compatible hex ID.
func Valid(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Timestamp extracts the embedded creation time of a valid ID.
func Timestamp(s string) (time.Time, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 12 {
		return time.Time{}, fmt.Errorf("objectid: %q is not a valid id", s)
	}
	sec := binary.BigEndian.Uint32(b[0:4])
	return time.Unix(int64(sec), 0).UTC(), nil
}
