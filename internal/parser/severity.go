package parser

import "regexp"

// Severity is the log level a line carries, as printed by the tool itself.
type Severity int

const (
	SeverityNone Severity = iota // no level token present
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the level name.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// Lines look like "[DLManager] INFO: ..." or "[cli] WARNING: ...".
var severityPattern = regexp.MustCompile(`\b(DEBUG|INFO|WARNING|WARN|ERROR|CRITICAL|FATAL):`)

// ClassifySeverity returns the level token embedded in line. It only decides
// logging verbosity; failure detection is done by the failure markers.
func ClassifySeverity(line string) Severity {
	m := severityPattern.FindStringSubmatch(line)
	if m == nil {
		return SeverityNone
	}
	switch m[1] {
	case "DEBUG":
		return SeverityDebug
	case "INFO":
		return SeverityInfo
	case "WARNING", "WARN":
		return SeverityWarning
	case "ERROR":
		return SeverityError
	default:
		return SeverityCritical
	}
}
