// Package ssh is the remote-session core: it dials authenticated transports,
// runs one-shot commands, searches log files across many hosts at once,
// traces transaction chains through hop markers found in gateway logs, and
// drives interactive PTY sessions.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"

	"hoptrace/internal/models"
)

const defaultConnectTimeout = 10 * time.Second

// Dialer opens authenticated transports. Every call dials a fresh
// connection; transports are never pooled or reused, the caller owns the
// returned client and must close it.
type Dialer struct {
	timeout time.Duration
	logger  *log.Logger
}

// NewDialer creates a Dialer with the given connect timeout.
func NewDialer(timeout time.Duration, logger *log.Logger) *Dialer {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Dialer{timeout: timeout, logger: logger}
}

type dialResult struct {
	client *ssh.Client
	err    error
}

// Dial connects and authenticates to the profile's host. It attempts a
// single connection, never retries, and classifies failures as
// AuthenticationFailed, Unreachable or ConnectTimeout.
func (d *Dialer) Dial(ctx context.Context, profile *models.ServerProfile) (*ssh.Client, error) {
	authMethods, err := d.authMethods(profile)
	if err != nil {
		return nil, &ConnectError{Kind: AuthenticationFailed, Host: profile.Host, Err: err}
	}

	cfg := &ssh.ClientConfig{
		User:            profile.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resCh := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", profile.Addr(), cfg)
		resCh <- dialResult{client: client, err: err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			d.logger.Debug("dial failed", "host", profile.Host, "err", res.err)
			return nil, classifyDialError(profile.Host, res.err)
		}
		return res.client, nil
	case <-ctx.Done():
		// The abandoned dial may still succeed; reap the client so the
		// connection does not leak.
		go func() {
			if res := <-resCh; res.client != nil {
				res.client.Close()
			}
		}()
		d.logger.Debug("dial timed out", "host", profile.Host)
		return nil, &ConnectError{Kind: ConnectTimeout, Host: profile.Host, Err: ctx.Err()}
	}
}

// Test dials the profile and runs a probe command. A nil return means the
// host accepted the credentials and executed the probe.
func (d *Dialer) Test(ctx context.Context, profile *models.ServerProfile) error {
	client, err := d.Dial(ctx, profile)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := runCommand(ctx, client, profile.Host, "echo 'Connection test successful'", 0); err != nil {
		return &ConnectError{Kind: Unreachable, Host: profile.Host, Err: err}
	}
	return nil
}

// authMethods builds the auth chain: the key file when the profile names
// one, the password when one is stored.
func (d *Dialer) authMethods(profile *models.ServerProfile) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if profile.KeyPath != "" {
		key, err := os.ReadFile(profile.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %v", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file: %v", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if profile.Secret != "" {
		methods = append(methods, ssh.Password(profile.Secret))
	}
	if len(methods) == 0 {
		return nil, errors.New("profile has no credentials")
	}

	return methods, nil
}

// classifyDialError maps transport and handshake failures onto the
// connection error taxonomy.
func classifyDialError(host string, err error) *ConnectError {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "no supported methods remain") {
		return &ConnectError{Kind: AuthenticationFailed, Host: host, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectError{Kind: ConnectTimeout, Host: host, Err: err}
	}

	return &ConnectError{Kind: Unreachable, Host: host, Err: err}
}
