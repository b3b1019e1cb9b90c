// Package framesource holds the latest frame of a live camera track.
//
// Capture backends publish every decoded frame; the scanner samples whatever
// is newest at tick time. Frames are never queued: a new frame replaces the
// previous one whether or not it was read (latest-frame-wins).
package framesource

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Slot is a single-slot frame mailbox.
//
// Thread-safety: Publish, Latest, Ready and Stats are safe for concurrent use.
// Typically one publisher (a backend pump goroutine) and one reader (the scanner).
type Slot struct {
	mu       sync.Mutex
	frame    image.Image
	unread   bool
	lastAt   time.Time
	ready    chan struct{}
	readyOne sync.Once

	published uint64 // atomic
	overwrote uint64 // atomic, frames replaced before being read
}

// New creates an empty slot
func New() *Slot {
	return &Slot{ready: make(chan struct{})}
}

// Publish stores img as the latest frame.
//
// Non-blocking. The slot keeps a reference to img; publishers must hand over
// a frame they will not modify afterwards.
func (s *Slot) Publish(img image.Image) {
	s.mu.Lock()
	if s.unread {
		atomic.AddUint64(&s.overwrote, 1)
	}
	s.frame = img
	s.unread = true
	s.lastAt = time.Now()
	s.mu.Unlock()

	atomic.AddUint64(&s.published, 1)
	s.readyOne.Do(func() { close(s.ready) })
}

// Latest returns the newest frame, or ok=false before the first Publish
func (s *Slot) Latest() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame == nil {
		return nil, false
	}
	s.unread = false
	return s.frame, true
}

// Ready returns a channel closed by the first Publish
func (s *Slot) Ready() <-chan struct{} {
	return s.ready
}

// Stats contains slot counters
type Stats struct {
	// Published is the number of frames published
	Published uint64
	// Overwritten is the number of frames replaced before any read
	Overwritten uint64
	// LastFrameAt is when the newest frame was published (zero before the first)
	LastFrameAt time.Time
}

// Stats returns a snapshot of the slot counters
func (s *Slot) Stats() Stats {
	s.mu.Lock()
	last := s.lastAt
	s.mu.Unlock()

	return Stats{
		Published:   atomic.LoadUint64(&s.published),
		Overwritten: atomic.LoadUint64(&s.overwrote),
		LastFrameAt: last,
	}
}
