// Package actors gives each chat session a single-occupancy lane so a
// session's C1/C2/C4 writes are never interleaved by concurrent requests,
// while distinct sessions proceed fully in parallel (spec §5).
package actors

import (
	"sync"
	"time"
)

// lane is one session's execution slot.
type lane struct {
	mu       sync.Mutex
	lastUsed time.Time
}
