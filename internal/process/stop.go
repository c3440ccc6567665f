package process

import (
	"syscall"
	"time"
)

// Stage is one step of the stop escalation.
type Stage int

const (
	// StageNone means no stop has been requested.
	StageNone Stage = iota

	// StageInterrupt sends SIGINT, the polite request a terminal user sends.
	StageInterrupt

	// StageTerminate sends SIGTERM.
	StageTerminate

	// StageKill sends SIGKILL, which cannot be ignored.
	StageKill
)

// String returns a human-readable name for the stage.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageInterrupt:
		return "interrupt"
	case StageTerminate:
		return "terminate"
	case StageKill:
		return "kill"
	default:
		return "unknown"
	}
}

func (s Stage) signal() syscall.Signal {
	switch s {
	case StageInterrupt:
		return syscall.SIGINT
	case StageTerminate:
		return syscall.SIGTERM
	default:
		return syscall.SIGKILL
	}
}

// StopPolicy configures how long each stage waits for the child to exit
// before escalating to the next one.
type StopPolicy struct {
	InterruptGrace time.Duration // after SIGINT (default: 5s)
	TerminateGrace time.Duration // after SIGTERM (default: 2s)
}

// DefaultStopPolicy returns the standard interrupt -> terminate -> kill
// timings.
func DefaultStopPolicy() StopPolicy {
	return StopPolicy{
		InterruptGrace: 5 * time.Second,
		TerminateGrace: 2 * time.Second,
	}
}

func (p StopPolicy) withDefaults() StopPolicy {
	d := DefaultStopPolicy()
	if p.InterruptGrace <= 0 {
		p.InterruptGrace = d.InterruptGrace
	}
	if p.TerminateGrace <= 0 {
		p.TerminateGrace = d.TerminateGrace
	}
	return p
}

// grace returns how long to wait after entering stage s. Zero means s is
// final.
func (p StopPolicy) grace(s Stage) time.Duration {
	switch s {
	case StageInterrupt:
		return p.InterruptGrace
	case StageTerminate:
		return p.TerminateGrace
	default:
		return 0
	}
}

// escalate drives the stop state machine:
//
//	interrupt --(grace expired)--> terminate --(grace expired)--> kill
//
// Any state exits early once the child is gone. Each stage signals the whole
// process group so helpers spawned by the child are stopped too.
func (h *Handle) escalate() {
	defer close(h.stopDone)

	for stage := StageInterrupt; stage <= StageKill; stage++ {
		select {
		case <-h.done:
			return
		default:
		}

		h.stage.Store(int32(stage))
		h.logger.Info("command_stop_signal",
			"id", h.id,
			"pid", h.pid,
			"stage", stage.String(),
		)
		h.signalGroup(stage.signal())

		grace := h.policy.grace(stage)
		if grace == 0 {
			<-h.done
			return
		}

		timer := time.NewTimer(grace)
		select {
		case <-h.done:
			timer.Stop()
			return
		case <-timer.C:
			h.logger.Warn("command_stop_escalating",
				"id", h.id,
				"pid", h.pid,
				"stage", stage.String(),
				"grace", grace.String(),
			)
		}
	}
}

// signalGroup delivers sig to the child's process group, falling back to the
// child alone when the group cannot be resolved.
func (h *Handle) signalGroup(sig syscall.Signal) {
	if pgid, err := syscall.Getpgid(h.pid); err == nil {
		if err := syscall.Kill(-pgid, sig); err == nil {
			return
		}
	}
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Signal(sig)
	}
}
