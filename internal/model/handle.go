package model

import (
	"sync/atomic"
	"time"
)

// Snapshot is one published classifier version. Readers that obtain a
// snapshot keep using it for the whole request even if a newer one is published.
type Snapshot struct {
	Model       *Classifier
	Version     int64
	PublishedAt time.Time
}

// Handle is the process-wide reference to the serving classifier.
type Handle struct {
	current atomic.Pointer[Snapshot]
}

// NewHandle returns a handle serving m as version 1.
func NewHandle(m *Classifier) *Handle {
	h := &Handle{}
	h.current.Store(&Snapshot{Model: m, Version: 1, PublishedAt: time.Now()})
	return h
}

// Current returns the serving snapshot.
func (h *Handle) Current() *Snapshot {
	return h.current.Load()
}

// Publish installs m as the next version and returns its number.
func (h *Handle) Publish(m *Classifier) int64 {
	for {
		prev := h.current.Load()
		next := &Snapshot{Model: m, Version: prev.Version + 1, PublishedAt: time.Now()}
		if h.current.CompareAndSwap(prev, next) {
			return next.Version
		}
	}
}
