package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Example download manager output, one record per line:
//
//	[DLManager] INFO: = Progress: 45.00% (450/1000), Running for 00:01:00, ETA: 00:01:10
//	[DLManager] INFO:  - Downloaded: 1.25 GiB, Written: 2.50 GiB
//	[DLManager] INFO:  - Cache usage: 12.00 MiB, active tasks: 5
//	[DLManager] INFO:  + Download	- 12.34 MiB/s (raw) / 23.45 MiB/s (decompressed)
//	[DLManager] INFO:  + Disk	- 34.56 MiB/s (write) / 0.00 MiB/s (read)
//
// and from verification (repair):
//
//	[cli] INFO: Verification progress: 123/456 (27.0%) [12.3 MiB/s]
var (
	progressPattern = regexp.MustCompile(
		`Progress: ([\d.]+)% \((\d+)/(\d+)\), Running for ([\d:.]+), ETA: ([\d:.]+)`)
	transferPattern = regexp.MustCompile(
		`Downloaded: ([\d.]+) ?([KMGT]?i?B), Written: ([\d.]+) ?([KMGT]?i?B)`)
	cachePattern = regexp.MustCompile(
		`Cache usage: ([\d.]+) ?([KMGT]?i?B), active tasks: (\d+)`)
	downloadRatePattern = regexp.MustCompile(
		`\+ Download\s+- ([\d.]+) ?([KMGT]?i?B)/s \(raw\) / ([\d.]+) ?([KMGT]?i?B)/s \(decompressed\)`)
	diskRatePattern = regexp.MustCompile(
		`\+ Disk\s+- ([\d.]+) ?([KMGT]?i?B)/s \(write\) / ([\d.]+) ?([KMGT]?i?B)/s \(read\)`)
	verificationPattern = regexp.MustCompile(
		`Verification progress: (\d+)/(\d+) \(([\d.]+)%\) \[([\d.]+) ?([KMGT]?i?B)/s\]`)
)

// Progress is the overall completion of the running operation.
type Progress struct {
	Percentage float64
	Completed  int64
	Total      int64
	Elapsed    time.Duration
	ETA        time.Duration
}

// Transfer holds cumulative byte counts.
type Transfer struct {
	Downloaded float64 // bytes
	Written    float64 // bytes
}

// CacheUsage is the download manager's in-memory cache state.
type CacheUsage struct {
	Usage       float64 // bytes
	ActiveTasks int
}

// DownloadRate is network throughput in bytes per second.
type DownloadRate struct {
	Raw          float64
	Decompressed float64
}

// DiskRate is disk throughput in bytes per second.
type DiskRate struct {
	Write float64
	Read  float64
}

// Verification is the progress of a file verification pass.
type Verification struct {
	Verified   int64
	Total      int64
	Percentage float64
	Rate       float64 // bytes per second
}

// MatchProgress extracts a Progress record from line.
func MatchProgress(line string) (Progress, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}
	completed, err1 := strconv.ParseInt(m[2], 10, 64)
	total, err2 := strconv.ParseInt(m[3], 10, 64)
	if err1 != nil || err2 != nil {
		return Progress{}, false
	}
	elapsed, _ := ParseClock(m[4])
	eta, _ := ParseClock(m[5])
	return Progress{
		Percentage: clampPercent(pct),
		Completed:  completed,
		Total:      total,
		Elapsed:    elapsed,
		ETA:        eta,
	}, true
}

// MatchTransfer extracts cumulative download/write sizes from line.
func MatchTransfer(line string) (Transfer, bool) {
	m := transferPattern.FindStringSubmatch(line)
	if m == nil {
		return Transfer{}, false
	}
	dl, ok1 := ToBytes(m[1], m[2])
	wr, ok2 := ToBytes(m[3], m[4])
	if !ok1 || !ok2 {
		return Transfer{}, false
	}
	return Transfer{Downloaded: dl, Written: wr}, true
}

// MatchCache extracts cache usage from line.
func MatchCache(line string) (CacheUsage, bool) {
	m := cachePattern.FindStringSubmatch(line)
	if m == nil {
		return CacheUsage{}, false
	}
	usage, ok := ToBytes(m[1], m[2])
	tasks, err := strconv.Atoi(m[3])
	if !ok || err != nil {
		return CacheUsage{}, false
	}
	return CacheUsage{Usage: usage, ActiveTasks: tasks}, true
}

// MatchDownloadRate extracts network throughput from line.
func MatchDownloadRate(line string) (DownloadRate, bool) {
	m := downloadRatePattern.FindStringSubmatch(line)
	if m == nil {
		return DownloadRate{}, false
	}
	raw, ok1 := ToBytes(m[1], m[2])
	dec, ok2 := ToBytes(m[3], m[4])
	if !ok1 || !ok2 {
		return DownloadRate{}, false
	}
	return DownloadRate{Raw: raw, Decompressed: dec}, true
}

// MatchDiskRate extracts disk throughput from line.
func MatchDiskRate(line string) (DiskRate, bool) {
	m := diskRatePattern.FindStringSubmatch(line)
	if m == nil {
		return DiskRate{}, false
	}
	w, ok1 := ToBytes(m[1], m[2])
	r, ok2 := ToBytes(m[3], m[4])
	if !ok1 || !ok2 {
		return DiskRate{}, false
	}
	return DiskRate{Write: w, Read: r}, true
}

// MatchVerification extracts verification progress from line.
func MatchVerification(line string) (Verification, bool) {
	m := verificationPattern.FindStringSubmatch(line)
	if m == nil {
		return Verification{}, false
	}
	verified, err1 := strconv.ParseInt(m[1], 10, 64)
	total, err2 := strconv.ParseInt(m[2], 10, 64)
	pct, err3 := strconv.ParseFloat(m[3], 64)
	rate, ok := ToBytes(m[4], m[5])
	if err1 != nil || err2 != nil || err3 != nil || !ok {
		return Verification{}, false
	}
	return Verification{
		Verified:   verified,
		Total:      total,
		Percentage: clampPercent(pct),
		Rate:       rate,
	}, true
}

// Marker is a terminal text token: a line matching Pattern decides the
// operation's outcome. The first capture group, if any, is the message.
type Marker struct {
	Name    string
	Pattern *regexp.Regexp
}

// match returns the marker message for line.
func (m Marker) match(line string) (string, bool) {
	sub := m.Pattern.FindStringSubmatch(line)
	if sub == nil {
		return "", false
	}
	if len(sub) > 1 {
		return strings.TrimSpace(sub[1]), true
	}
	return strings.TrimSpace(sub[0]), true
}

// DefaultFailureMarkers are the lines the tool prints when an operation has
// definitively failed, whatever its exit code.
func DefaultFailureMarkers() []Marker {
	return []Marker{
		{Name: "failure", Pattern: regexp.MustCompile(`^\s*! Failure: (.+)$`)},
		{Name: "cli_error", Pattern: regexp.MustCompile(`\[cli\] (?:ERROR|CRITICAL): (.+)$`)},
		{Name: "login_failed", Pattern: regexp.MustCompile(`(Login failed.*)$`)},
	}
}

// DefaultSuccessMarkers are the lines the tool prints when an operation has
// definitively succeeded.
func DefaultSuccessMarkers() []Marker {
	return []Marker{
		{Name: "install_finished", Pattern: regexp.MustCompile(`Finished installation process in`)},
		{Name: "up_to_date", Pattern: regexp.MustCompile(`Download size is 0, the game is either already up to date`)},
		{Name: "uninstalled", Pattern: regexp.MustCompile(`Game has been uninstalled`)},
		{Name: "verified", Pattern: regexp.MustCompile(`Verification finished successfully`)},
		{Name: "logged_in", Pattern: regexp.MustCompile(`Successfully logged in as`)},
	}
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
