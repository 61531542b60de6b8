// Package runner orchestrates a run: assemble the script, provision
// credentials, execute on every host, aggregate the outcomes.
package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/caelicode/ssh-action/internal/models"
	"github.com/caelicode/ssh-action/internal/services/credentials"
	"github.com/caelicode/ssh-action/internal/services/script"
	"github.com/caelicode/ssh-action/internal/services/sshexec"
	"github.com/rs/zerolog"
)

// ErrHostsFailed is the generic run-level failure. Per-host detail lives
// in the combined output markers and the structured outcomes.
var ErrHostsFailed = errors.New("one or more hosts failed")

// Service defines the interface for the run orchestrator.
type Service interface {
	Run(ctx context.Context, cfg models.Config) (*models.RunReport, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	scriptSvc script.Service
	credsSvc  credentials.Service
	execSvc   sshexec.Service
	logger    zerolog.Logger
	environ   []string
	stream    io.Writer // live destination for combined output
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		scriptSvc: script.New(logger),
		credsSvc:  credentials.New(logger),
		execSvc:   sshexec.New(logger),
		logger:    logger,
		environ:   os.Environ(),
		stream:    os.Stdout,
	}
}

// NewWithServices creates a new runner service with custom services (for
// testing).
func NewWithServices(
	logger zerolog.Logger,
	scriptSvc script.Service,
	credsSvc credentials.Service,
	execSvc sshexec.Service,
	environ []string,
	stream io.Writer,
) *Impl {
	return &Impl{
		scriptSvc: scriptSvc,
		credsSvc:  credsSvc,
		execSvc:   execSvc,
		logger:    logger,
		environ:   environ,
		stream:    stream,
	}
}

// Run executes the configured script on every host. Fatal setup errors
// (script resolution, credential loading) abort before any connection
// attempt; per-host failures are folded into the report instead.
// Credential teardown runs on every exit path.
func (s *Impl) Run(ctx context.Context, cfg models.Config) (*models.RunReport, error) {
	s.logger.Info().
		Int("hosts", len(cfg.Hosts)).
		Str("username", cfg.Username).
		Str("remote_shell", cfg.RemoteShell).
		Dur("command_timeout", cfg.CommandTimeout).
		Msg("starting run")

	// The payload is assembled exactly once; every host runs the
	// identical bytes.
	payload, err := s.scriptSvc.Assemble(cfg, s.environ)
	if err != nil {
		return nil, err
	}

	provisioned, err := s.credsSvc.Provision(cfg)
	if err != nil {
		return nil, err
	}
	defer provisioned.Teardown()

	ectx := sshexec.BuildContext(cfg, provisioned.AuthMethods(), provisioned.ProxyAuthMethods())

	var combined captureWriter
	outcomes := s.execSvc.Run(ctx, cfg.Hosts, ectx, payload, io.MultiWriter(&combined, s.stream))

	report := Aggregate(outcomes, combined.String())
	if !report.Success {
		return report, ErrHostsFailed
	}

	s.logger.Info().Msg("all hosts succeeded")
	return report, nil
}

// Aggregate folds the ordered per-host outcomes into the final report.
// The report carries the combined output even when the run failed.
func Aggregate(outcomes []models.HostOutcome, combined string) *models.RunReport {
	report := &models.RunReport{
		CombinedOutput: combined,
		Outcomes:       outcomes,
		Success:        true,
	}

	for _, outcome := range outcomes {
		if outcome.Status != models.StatusSuccess {
			report.Success = false
		}
	}

	return report
}

// captureWriter accumulates the combined output for the report. Copy
// goroutines of a timed-out host may still be writing when the report is
// read, hence the lock.
type captureWriter struct {
	mu  sync.Mutex
	buf []byte
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *captureWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}
