package bot

import (
	"sync"
)

// flight tracks one in-progress job for a chat together with the busy
// notice suppression counter for that busy period
type flight struct {
	noticesSent int
}

// Gate is a keyed single-flight admission gate: each chat may have at
// most one transcription job in progress, and independent chats never
// block each other.
type Gate struct {
	mu      sync.Mutex
	flights map[int64]*flight
}

// NewGate creates an empty admission gate
func NewGate() *Gate {
	return &Gate{
		flights: make(map[int64]*flight),
	}
}

// Admit tries to claim the job slot for a chat. On success it returns
// ok=true and a release function that must be called exactly when the
// job finishes, on every path. The release function is idempotent.
// When the chat already has a job in flight, ok is false and release is
// nil.
func (g *Gate) Admit(chatID int64) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.flights[chatID]; busy {
		return nil, false
	}

	g.flights[chatID] = &flight{}

	var once sync.Once
	release = func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.flights, chatID)
		})
	}
	return release, true
}

// IsBusy reports whether a chat currently has a job in flight
func (g *Gate) IsBusy(chatID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.flights[chatID]
	return busy
}

// NoteBusy reports whether a "please wait" notice should be sent for a
// rejected event. It returns true exactly once per busy period; further
// rejections while the same job is in flight return false. If the chat
// is not actually busy, no notice is due.
func (g *Gate) NoteBusy(chatID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, busy := g.flights[chatID]
	if !busy {
		return false
	}
	if f.noticesSent > 0 {
		return false
	}
	f.noticesSent++
	return true
}

// InFlight returns the number of chats with a job in progress
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flights)
}
