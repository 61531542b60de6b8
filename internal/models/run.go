package models

import (
	"net"
	"strconv"
)

// HostTarget identifies one remote host.
type HostTarget struct {
	Host string
	Port int
}

// Addr returns the dialable host:port address.
func (t HostTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t HostTarget) String() string {
	return t.Addr()
}

// OutcomeStatus classifies a single host's execution attempt.
type OutcomeStatus int

const (
	// StatusSuccess means the remote command exited zero.
	StatusSuccess OutcomeStatus = iota
	// StatusExitError means the remote command exited nonzero.
	StatusExitError
	// StatusTimeout means the command exceeded its time budget.
	StatusTimeout
	// StatusConnectionFailed means the host could not be reached or
	// authenticated, or the session could not be established.
	StatusConnectionFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusExitError:
		return "exit-error"
	case StatusTimeout:
		return "timeout"
	case StatusConnectionFailed:
		return "connection-failed"
	default:
		return "unknown"
	}
}

// HostOutcome is the result of one host's execution attempt. Output is
// captured even when the attempt failed.
type HostOutcome struct {
	Host     HostTarget
	Status   OutcomeStatus
	ExitCode int // meaningful only for StatusExitError
	Output   []byte
	Err      error
}

// RunReport is the terminal artifact of a run. CombinedOutput holds every
// host's captured output in host-list order, each section preceded by a
// marker naming the host.
type RunReport struct {
	CombinedOutput string
	Outcomes       []HostOutcome
	Success        bool
}
