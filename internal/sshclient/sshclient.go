// Package sshclient opens SSH connections to devices and runs commands on them.
package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrHostKeyPolicy = errors.New("sshclient: no host key policy configured (set SSH_KNOWN_HOSTS or SSH_INSECURE_IGNORE_HOST_KEY)")
	ErrNoAuthMethod  = errors.New("sshclient: no password or private key available")
)

// Target identifies the remote endpoint and credentials for one connection.
type Target struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Result is the outcome of one remote command.
type Result struct {
	Output    []byte
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

// Conn is an open connection that can run commands.
type Conn interface {
	Run(ctx context.Context, command string) (Result, error)
	Close() error
}

// Options configure a Dialer.
type Options struct {
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	PrivateKeyPath        string
	DialTimeout           time.Duration
	MaxOutputBytes        int
}

// Dialer opens Conns with x/crypto/ssh.
type Dialer struct {
	hostKeyCallback ssh.HostKeyCallback
	signer          ssh.Signer
	dialTimeout     time.Duration
	maxOutput       int
}

func NewDialer(opts Options) (*Dialer, error) {
	d := &Dialer{
		dialTimeout: opts.DialTimeout,
		maxOutput:   opts.MaxOutputBytes,
	}
	if d.dialTimeout <= 0 {
		d.dialTimeout = 10 * time.Second
	}
	if d.maxOutput <= 0 {
		d.maxOutput = 64 * 1024
	}

	switch {
	case opts.KnownHostsPath != "":
		cb, err := knownhosts.New(opts.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("sshclient: load known_hosts: %w", err)
		}
		d.hostKeyCallback = cb
	case opts.InsecureIgnoreHostKey:
		d.hostKeyCallback = ssh.InsecureIgnoreHostKey()
	default:
		d.hostKeyCallback = func(string, net.Addr, ssh.PublicKey) error { return ErrHostKeyPolicy }
	}

	if opts.PrivateKeyPath != "" {
		pem, err := os.ReadFile(opts.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("sshclient: read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("sshclient: parse private key: %w", err)
		}
		d.signer = signer
	}
	return d, nil
}

func (d *Dialer) clientConfig(t Target) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if d.signer != nil {
		methods = append(methods, ssh.PublicKeys(d.signer))
	}
	if t.Password != "" {
		methods = append(methods, ssh.Password(t.Password))
	}
	if len(methods) == 0 {
		return nil, ErrNoAuthMethod
	}
	return &ssh.ClientConfig{
		User:            t.Username,
		Auth:            methods,
		HostKeyCallback: d.hostKeyCallback,
		Timeout:         d.dialTimeout,
	}, nil
}

// Dial connects and authenticates. The context bounds the TCP connect and
// handshake; it does not bound the lifetime of the returned Conn.
func (d *Dialer) Dial(ctx context.Context, t Target) (Conn, error) {
	cfg, err := d.clientConfig(t)
	if err != nil {
		return nil, err
	}

	nd := net.Dialer{Timeout: d.dialTimeout}
	raw, err := nd.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, fmt.Errorf("sshclient: dial %s: %w", t.Addr(), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	sc, chans, reqs, err := ssh.NewClientConn(raw, t.Addr(), cfg)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("sshclient: handshake %s: %w", t.Addr(), err)
	}
	_ = raw.SetDeadline(time.Time{})

	return &conn{client: ssh.NewClient(sc, chans, reqs), maxOutput: d.maxOutput}, nil
}

type conn struct {
	client    *ssh.Client
	maxOutput int

	closeOnce sync.Once
	closeErr  error
}

// Run executes command in a fresh session and returns combined output.
// A non-zero exit status is reported in Result.ExitCode, not as an error.
func (c *conn) Run(ctx context.Context, command string) (Result, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("sshclient: new session: %w", err)
	}
	defer session.Close()

	out := &limitedBuffer{limit: c.maxOutput}
	session.Stdout = out
	session.Stderr = out

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return Result{Output: out.Bytes(), ExitCode: -1, Truncated: out.Truncated(), Duration: time.Since(start)}, ctx.Err()
	}

	res := Result{Output: out.Bytes(), Truncated: out.Truncated(), Duration: time.Since(start)}
	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		var missing *ssh.ExitMissingError
		if errors.As(runErr, &missing) {
			res.ExitCode = -1
			return res, nil
		}
		return res, fmt.Errorf("sshclient: run: %w", runErr)
	}
	return res, nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.client.Close() })
	return c.closeErr
}

// limitedBuffer keeps the first limit bytes and silently discards the rest.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
