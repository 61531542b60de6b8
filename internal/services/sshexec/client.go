package sshexec

import (
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient dials a new SSH connection.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig, keepalive KeepaliveConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return newDefaultSSHClient(client, keepalive), nil
}

// NewClientOnConn runs the SSH handshake over an existing connection,
// typically one opened through a jump host.
func (f *DefaultClientFactory) NewClientOnConn(conn net.Conn, addr string, config *ssh.ClientConfig, keepalive KeepaliveConfig) (SSHClient, error) {
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, err
	}
	return newDefaultSSHClient(ssh.NewClient(c, chans, reqs), keepalive), nil
}

type defaultSSHClient struct {
	client   *ssh.Client
	stop     chan struct{}
	stopOnce sync.Once
}

func newDefaultSSHClient(client *ssh.Client, keepalive KeepaliveConfig) *defaultSSHClient {
	c := &defaultSSHClient{
		client: client,
		stop:   make(chan struct{}),
	}
	if keepalive.Interval > 0 {
		go c.keepalive(keepalive)
	}
	return c
}

// keepalive probes the server on a ticker. After CountMax consecutive
// failed probes the connection is considered dead and closed.
func (c *defaultSSHClient) keepalive(cfg KeepaliveConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				missed++
				if missed >= cfg.CountMax {
					_ = c.client.Close()
					return
				}
				continue
			}
			missed = 0
		}
	}
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Dial(network, addr string) (net.Conn, error) {
	return c.client.Dial(network, addr)
}

func (c *defaultSSHClient) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) RequestPty(term string, height, width int, modes ssh.TerminalModes) error {
	return s.session.RequestPty(term, height, width, modes)
}

func (s *defaultSSHSession) StdinPipe() (io.WriteCloser, error) {
	return s.session.StdinPipe()
}

// SetOutput points remote stdout and stderr at the same writer. The two
// streams are copied concurrently, so the writer must be safe for
// concurrent use.
func (s *defaultSSHSession) SetOutput(w io.Writer) {
	s.session.Stdout = w
	s.session.Stderr = w
}

func (s *defaultSSHSession) Start(cmd string) error {
	return s.session.Start(cmd)
}

func (s *defaultSSHSession) Wait() error {
	return s.session.Wait()
}

func (s *defaultSSHSession) Signal(sig ssh.Signal) error {
	return s.session.Signal(sig)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}
