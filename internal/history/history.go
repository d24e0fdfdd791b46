package history

import (
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/power"
)

const DefaultCapacity = 600

// Ring keeps the most recent snapshots for display, oldest evicted first.
// It is not persisted.
type Ring struct {
	mu    sync.Mutex
	buf   []power.Snapshot
	start int
	n     int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]power.Snapshot, capacity)}
}

func (r *Ring) Push(s power.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Ring) Cap() int {
	return len(r.buf)
}

// Snapshots returns the contents, oldest first.
func (r *Ring) Snapshots() []power.Snapshot {
	return r.Since(time.Time{})
}

// Since returns the snapshots taken after t, oldest first.
func (r *Ring) Since(t time.Time) []power.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]power.Snapshot, 0, r.n)
	for i := 0; i < r.n; i++ {
		s := r.buf[(r.start+i)%len(r.buf)]
		if s.Time.After(t) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Ring) Latest() (power.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return power.Snapshot{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}
