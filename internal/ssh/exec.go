package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultOutputCap    = 1 << 20
	defaultReadMaxLines = 1000
)

// ExecResult is the captured outcome of one remote command.
type ExecResult struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	Truncated  bool
	Duration   time.Duration
}

// cappedBuffer keeps at most limit bytes and discards the rest. Writes are
// serialized because the session writes stdout and stderr from separate
// goroutines, and a timed-out caller may snapshot while they still run.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len()+len(p) > b.limit {
		if keep := b.limit - b.buf.Len(); keep > 0 {
			b.buf.Write(p[:keep])
		}
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) snapshot() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String(), b.truncated
}

// runCommand executes one command on a fresh session over the given
// transport and waits for completion or context expiry, whichever comes
// first. On expiry the session is torn down and CommandTimeout returned;
// the remote process may keep running, only the local wait is abandoned.
// Output beyond byteCap is dropped and reported as OutputTruncated.
// A non-zero exit is reported as NonZeroExit. In every case the returned
// result carries whatever output was captured.
func runCommand(ctx context.Context, client *ssh.Client, host, command string, byteCap int) (*ExecResult, error) {
	if byteCap <= 0 {
		byteCap = defaultOutputCap
	}
	res := &ExecResult{ExitStatus: -1}

	session, err := client.NewSession()
	if err != nil {
		return res, fmt.Errorf("%s: failed to open session: %v", host, err)
	}
	defer session.Close()

	stdout := &cappedBuffer{limit: byteCap}
	stderr := &cappedBuffer{limit: byteCap}
	session.Stdout = stdout
	session.Stderr = stderr

	start := time.Now()
	if err := session.Start(command); err != nil {
		return res, fmt.Errorf("%s: failed to start command: %v", host, err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Closing the session unblocks the wait goroutine.
		session.Close()
		collect(res, stdout, stderr, start)
		return res, &ExecError{Kind: CommandTimeout, Host: host, Command: command, Err: ctx.Err()}
	case waitErr := <-waitCh:
		collect(res, stdout, stderr, start)
		if waitErr != nil {
			var exitErr *ssh.ExitError
			if errors.As(waitErr, &exitErr) {
				res.ExitStatus = exitErr.ExitStatus()
				return res, &ExecError{Kind: NonZeroExit, Host: host, Command: command, ExitCode: res.ExitStatus, Err: waitErr}
			}
			return res, fmt.Errorf("%s: command failed: %v", host, waitErr)
		}
		res.ExitStatus = 0
		if res.Truncated {
			return res, &ExecError{Kind: OutputTruncated, Host: host, Command: command}
		}
		return res, nil
	}
}

func collect(res *ExecResult, stdout, stderr *cappedBuffer, start time.Time) {
	var outTrunc, errTrunc bool
	res.Stdout, outTrunc = stdout.snapshot()
	res.Stderr, errTrunc = stderr.snapshot()
	res.Truncated = outTrunc || errTrunc
	res.Duration = time.Since(start)
}

// readFile fetches at most maxLines lines of the remote file. The extra
// probe line tells truncation apart from a file that is exactly maxLines
// long; the byte cap guards against pathologically long lines.
func readFile(ctx context.Context, client *ssh.Client, host, path string, maxLines, byteCap int) (string, bool, error) {
	if maxLines <= 0 {
		maxLines = defaultReadMaxLines
	}

	cmd := fmt.Sprintf("head -n %d -- %s", maxLines+1, shellQuote(path))
	res, err := runCommand(ctx, client, host, cmd, byteCap)
	if err != nil {
		var execErr *ExecError
		if errors.As(err, &execErr) {
			switch execErr.Kind {
			case OutputTruncated:
				return "", false, &FileReadError{Kind: FileTooLarge, Host: host, Path: path, Err: err}
			case NonZeroExit:
				cause := err
				if msg := strings.TrimSpace(res.Stderr); msg != "" {
					cause = errors.New(msg)
				}
				return "", false, &FileReadError{Kind: FileUnreadable, Host: host, Path: path, Err: cause}
			}
		}
		return "", false, &FileReadError{Kind: FileUnreadable, Host: host, Path: path, Err: err}
	}

	lines := strings.Split(res.Stdout, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if len(lines) > maxLines {
		return strings.Join(lines[:maxLines], "\n") + "\n", true, nil
	}
	return res.Stdout, false, nil
}

// shellQuote wraps s in single quotes for interpolation into a remote shell
// command.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
