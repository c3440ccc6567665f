// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/MythicApp/Mythic-sub001/internal/process"
	"github.com/MythicApp/Mythic-sub001/internal/stats"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll checks.
type Options struct {
	LegendaryPath string
	ConfigDir     string
	BaseDir       string // empty skips the disk space check

	// MaxCommands is how many tool invocations may run at once.
	MaxCommands int

	Runner *process.Runner
}

// minFreeSpace is the free space below which the disk check warns.
const minFreeSpace = 2 << 30

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(opts.MaxCommands))
	add(checkLegendary(ctx, opts.Runner, opts.LegendaryPath))
	add(checkConfigDir(opts.ConfigDir))
	if opts.BaseDir != "" {
		// Warning only
		add(checkFreeSpace(opts.BaseDir))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(commands int) Check {
	if commands < 1 {
		commands = 1
	}
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Three pipes per child plus the lock file and the metrics listener
	required := commands*8 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d commands)", actual, required, commands),
	}
}

// `legendary version "0.20.34", codename "Direct Intervention"`
var versionPattern = regexp.MustCompile(`version "?([0-9][^",\s]*)`)

// checkLegendary verifies the tool starts and reports a version.
func checkLegendary(ctx context.Context, runner *process.Runner, path string) Check {
	if runner == nil {
		runner = process.NewRunner(nil, process.DefaultStopPolicy())
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	res, err := runner.Execute(ctx, process.Command{Path: path, Args: []string{"--version"}})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return Check{
			Name:    "legendary",
			Passed:  false,
			Message: fmt.Sprintf("not runnable at %s: %v", path, err),
		}
	}

	version := "unknown"
	if m := versionPattern.FindStringSubmatch(res.Stdout + res.Stderr); m != nil {
		version = m[1]
	}
	return Check{
		Name:    "legendary",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkConfigDir verifies the state directory exists, or can be created, and
// is writable, since the lock file lives there.
func checkConfigDir(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "config_dir",
			Passed:  true,
			Warning: true,
			Message: "not set (tool default)",
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: "config_dir", Passed: false, Message: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{Name: "config_dir", Passed: false, Message: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return Check{
		Name:    "config_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s writable", dir),
	}
}

// checkFreeSpace warns when the install base is low on space. It walks up to
// the nearest existing ancestor so an uncreated base still gets checked.
func checkFreeSpace(dir string) Check {
	path := filepath.Clean(dir)
	for {
		if _, err := os.Stat(path); err == nil || !errors.Is(err, os.ErrNotExist) {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return Check{
			Name:    "disk_space",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to stat %s: %v", path, err),
		}
	}
	free := float64(fs.Bavail) * float64(fs.Bsize)

	return Check{
		Name:    "disk_space",
		Passed:  true,
		Warning: free < minFreeSpace,
		Message: fmt.Sprintf("%s free at %s", stats.FormatBytes(free), path),
	}
}

// PrintResults prints the preflight check results.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "legendary":
		return "install legendary (pipx install legendary-gl) or pass --legendary"
	case "config_dir":
		return "pass a writable --config-dir"
	default:
		return "see documentation"
	}
}
