package parser

import "sync"

// Snapshot is a point-in-time copy of a Status. Nil sub-records have not been
// observed since the last reset.
type Snapshot struct {
	Progress     *Progress
	Transfer     *Transfer
	Cache        *CacheUsage
	DownloadRate *DownloadRate
	DiskRate     *DiskRate
	Verification *Verification
}

// Percentage returns the overall completion, or 0 before any progress line.
func (s Snapshot) Percentage() float64 {
	if s.Progress == nil {
		return 0
	}
	return s.Progress.Percentage
}

// Terminal reports whether the operation has reached 100%.
func (s Snapshot) Terminal() bool {
	return s.Percentage() >= 100
}

// Status is the live progress record of one operation. It is written by a
// single Parser and read by any number of observers; reads are snapshots and
// carry no ordering guarantee relative to in-flight writes.
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatus returns an empty status.
func NewStatus() *Status {
	return &Status{}
}

// Snapshot returns a deep copy of the current state.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Reset clears every field. Called when a new operation begins.
func (s *Status) Reset() {
	s.mu.Lock()
	s.snap = Snapshot{}
	s.mu.Unlock()
}

// SetProgress records p unless it would move the percentage backwards.
// Percentage is non-decreasing between resets, so once 100 has been seen the
// record is terminal and stays at 100. Reports whether p was stored.
func (s *Status) SetProgress(p Progress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.snap.Progress; cur != nil && p.Percentage < cur.Percentage {
		return false
	}
	s.snap.Progress = &p
	return true
}

// SetTransfer records cumulative transfer sizes.
func (s *Status) SetTransfer(t Transfer) {
	s.mu.Lock()
	s.snap.Transfer = &t
	s.mu.Unlock()
}

// SetCache records cache usage.
func (s *Status) SetCache(c CacheUsage) {
	s.mu.Lock()
	s.snap.Cache = &c
	s.mu.Unlock()
}

// SetDownloadRate records network throughput.
func (s *Status) SetDownloadRate(r DownloadRate) {
	s.mu.Lock()
	s.snap.DownloadRate = &r
	s.mu.Unlock()
}

// SetDiskRate records disk throughput.
func (s *Status) SetDiskRate(r DiskRate) {
	s.mu.Lock()
	s.snap.DiskRate = &r
	s.mu.Unlock()
}

// SetVerification records verification progress. Verification is transient:
// reaching 100% clears it instead of storing it.
func (s *Status) SetVerification(v Verification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Percentage >= 100 {
		s.snap.Verification = nil
		return
	}
	s.snap.Verification = &v
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{}
	if s.Progress != nil {
		v := *s.Progress
		out.Progress = &v
	}
	if s.Transfer != nil {
		v := *s.Transfer
		out.Transfer = &v
	}
	if s.Cache != nil {
		v := *s.Cache
		out.Cache = &v
	}
	if s.DownloadRate != nil {
		v := *s.DownloadRate
		out.DownloadRate = &v
	}
	if s.DiskRate != nil {
		v := *s.DiskRate
		out.DiskRate = &v
	}
	if s.Verification != nil {
		v := *s.Verification
		out.Verification = &v
	}
	return out
}
