// Package xid generates prefixed unique ids for ledger records.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id like "tx-1756600000000000000-a1b2c3d4e5f6". The
// timestamp keeps ids roughly sortable by creation time; the random tail
// makes collisions within the same nanosecond irrelevant.
func New(prefix string) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
