// Package sshexec executes the assembled script on each target host over
// SSH, directly or through a jump host.
package sshexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/caelicode/ssh-action/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Service defines the interface for remote execution.
type Service interface {
	Run(ctx context.Context, hosts []models.HostTarget, ectx *ExecutionContext, payload string, combined io.Writer) []models.HostOutcome
}

// KeepaliveConfig controls transport-level keepalive probing.
type KeepaliveConfig struct {
	Interval time.Duration
	CountMax int
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Dial(network, addr string) (net.Conn, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	RequestPty(term string, height, width int, modes ssh.TerminalModes) error
	StdinPipe() (io.WriteCloser, error)
	SetOutput(w io.Writer) // merged stdout+stderr
	Start(cmd string) error
	Wait() error
	Signal(sig ssh.Signal) error
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig, keepalive KeepaliveConfig) (SSHClient, error)
	NewClientOnConn(conn net.Conn, addr string, config *ssh.ClientConfig, keepalive KeepaliveConfig) (SSHClient, error)
}

// exitStatusError is the remote-exit classification seam; *ssh.ExitError
// satisfies it.
type exitStatusError interface {
	ExitStatus() int
}

// Impl implements the sshexec Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new sshexec service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new sshexec service with a custom client
// factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

// Run executes the payload on every host, strictly sequentially and in
// host-list order. A failing host never aborts the remaining ones; each
// attempt yields exactly one outcome. Output is streamed incrementally
// into combined as it arrives, each host's section preceded by a marker.
func (s *Impl) Run(ctx context.Context, hosts []models.HostTarget, ectx *ExecutionContext, payload string, combined io.Writer) []models.HostOutcome {
	combined = &syncWriter{w: combined}

	outcomes := make([]models.HostOutcome, 0, len(hosts))
	for _, host := range hosts {
		outcome := s.runHost(ctx, host, ectx, payload, combined)

		s.logger.Info().
			Stringer("host", host).
			Stringer("status", outcome.Status).
			Int("exit_code", outcome.ExitCode).
			Msg("host finished")

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

//nolint:gocognit // single-host lifecycle covers connect, stream and classify
func (s *Impl) runHost(ctx context.Context, host models.HostTarget, ectx *ExecutionContext, payload string, combined io.Writer) models.HostOutcome {
	outcome := models.HostOutcome{Host: host}
	out := newHostWriter(combined)

	fmt.Fprintf(combined, "======= %s =======\n", host)

	connectionFailed := func(err error) models.HostOutcome {
		fmt.Fprintf(out, "ssh-action: %v\n", err)
		outcome.Status = models.StatusConnectionFailed
		outcome.Err = err
		outcome.Output = out.Captured()
		return outcome
	}

	client, err := s.dial(ctx, host, ectx)
	if err != nil {
		return connectionFailed(fmt.Errorf("failed to connect: %w", err))
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return connectionFailed(fmt.Errorf("failed to create session: %w", err))
	}
	defer session.Close()

	if ectx.RequestPTY {
		modes := ssh.TerminalModes{
			ssh.ECHO:          0,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm", 40, 80, modes); err != nil {
			return connectionFailed(fmt.Errorf("failed to request pty: %w", err))
		}
	}

	session.SetOutput(out)

	stdin, err := session.StdinPipe()
	if err != nil {
		return connectionFailed(fmt.Errorf("failed to open stdin: %w", err))
	}

	runCtx := ctx
	if ectx.CommandTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, ectx.CommandTimeout)
		defer cancel()
	}

	// The payload goes over stdin, never as an argument: the remote shell
	// reads and interprets the piped text.
	if err := session.Start(ectx.RemoteCommand()); err != nil {
		return connectionFailed(fmt.Errorf("failed to start remote shell: %w", err))
	}

	go func() {
		_, _ = io.WriteString(stdin, payload)
		_ = stdin.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-runCtx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			outcome.Status = models.StatusTimeout
			outcome.Err = runCtx.Err()
			fmt.Fprintf(out, "ssh-action: command timed out after %s\n", ectx.CommandTimeout)
		} else {
			outcome.Status = models.StatusConnectionFailed
			outcome.Err = ctx.Err()
		}
	case err := <-done:
		var exitErr exitStatusError
		switch {
		case err == nil:
			outcome.Status = models.StatusSuccess
		case errors.As(err, &exitErr):
			outcome.Status = models.StatusExitError
			outcome.ExitCode = exitErr.ExitStatus()
			outcome.Err = err
		default:
			outcome.Status = models.StatusConnectionFailed
			outcome.Err = err
		}
	}

	outcome.Output = out.Captured()
	return outcome
}

// dial opens the connection described by the execution context,
// cancellable via ctx. The connect timeout itself lives on the client
// config and bounds each hop's handshake.
func (s *Impl) dial(ctx context.Context, host models.HostTarget, ectx *ExecutionContext) (SSHClient, error) {
	type dialResult struct {
		client SSHClient
		err    error
	}

	ch := make(chan dialResult, 1)
	go func() {
		client, err := s.dialChain(host, ectx)
		ch <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.client, r.err
	}
}

func (s *Impl) dialChain(host models.HostTarget, ectx *ExecutionContext) (SSHClient, error) {
	keepalive := KeepaliveConfig{Interval: ectx.KeepaliveInterval, CountMax: ectx.KeepaliveCountMax}

	if ectx.Proxy == nil {
		return s.clientFactory.NewClient("tcp", host.Addr(), ectx.ClientConfig, keepalive)
	}

	proxy, err := s.clientFactory.NewClient("tcp", ectx.Proxy.Addr, ectx.Proxy.ClientConfig, keepalive)
	if err != nil {
		return nil, fmt.Errorf("dialing proxy %s: %w", ectx.Proxy.Addr, err)
	}

	conn, err := proxy.Dial("tcp", host.Addr())
	if err != nil {
		_ = proxy.Close()
		return nil, fmt.Errorf("dialing %s via proxy: %w", host.Addr(), err)
	}

	target, err := s.clientFactory.NewClientOnConn(conn, host.Addr(), ectx.ClientConfig, keepalive)
	if err != nil {
		_ = conn.Close()
		_ = proxy.Close()
		return nil, fmt.Errorf("handshake with %s via proxy: %w", host.Addr(), err)
	}

	return &chainedClient{SSHClient: target, proxy: proxy}, nil
}

// chainedClient ties the proxy hop's lifetime to the target connection.
type chainedClient struct {
	SSHClient
	proxy SSHClient
}

func (c *chainedClient) Close() error {
	err := c.SSHClient.Close()
	_ = c.proxy.Close()
	return err
}

// syncWriter serializes writes from session copy goroutines that may
// outlive a timed-out host.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// hostWriter tees one host's merged output into the per-host capture and
// the shared combined stream.
type hostWriter struct {
	mu       sync.Mutex
	combined io.Writer
	capture  []byte
}

func newHostWriter(combined io.Writer) *hostWriter {
	return &hostWriter{combined: combined}
}

func (w *hostWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.capture = append(w.capture, p...)
	return w.combined.Write(p)
}

// Captured returns a copy of everything written for the host so far.
func (w *hostWriter) Captured() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.capture...)
}
