// Package stats summarises transfer rates and finished operations.
package stats

import (
	"sync"

	"github.com/influxdata/tdigest"
)

// compression of the t-digests. 100 keeps quantile error well under 1% for
// the few thousand samples one install produces.
const compression = 100

// RateSummary holds percentiles of one rate series in bytes per second.
type RateSummary struct {
	Samples int
	P50     float64
	P95     float64
	P99     float64
	Max     float64
	Last    float64
}

// RateTracker collects the download and disk rates reported during one
// operation and summarises them as percentiles.
type RateTracker struct {
	mu       sync.Mutex
	download series
	disk     series
}

type series struct {
	digest *tdigest.TDigest
	count  int
	max    float64
	last   float64
}

func (s *series) add(v float64) {
	if v < 0 {
		return
	}
	if s.digest == nil {
		s.digest = tdigest.NewWithCompression(compression)
	}
	s.digest.Add(v, 1)
	s.count++
	s.last = v
	if v > s.max {
		s.max = v
	}
}

func (s *series) summary() RateSummary {
	if s.count == 0 {
		return RateSummary{}
	}
	return RateSummary{
		Samples: s.count,
		P50:     s.digest.Quantile(0.50),
		P95:     s.digest.Quantile(0.95),
		P99:     s.digest.Quantile(0.99),
		Max:     s.max,
		Last:    s.last,
	}
}

// NewRateTracker returns an empty tracker.
func NewRateTracker() *RateTracker {
	return &RateTracker{}
}

// AddDownload records a raw network rate sample.
func (t *RateTracker) AddDownload(bytesPerSec float64) {
	t.mu.Lock()
	t.download.add(bytesPerSec)
	t.mu.Unlock()
}

// AddDisk records a disk write rate sample.
func (t *RateTracker) AddDisk(bytesPerSec float64) {
	t.mu.Lock()
	t.disk.add(bytesPerSec)
	t.mu.Unlock()
}

// Download returns the download rate summary.
func (t *RateTracker) Download() RateSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.download.summary()
}

// Disk returns the disk write rate summary.
func (t *RateTracker) Disk() RateSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disk.summary()
}
