package ssh

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func dialTestClient(t *testing.T, srv *testServer) *ssh.Client {
	t.Helper()
	dialer := NewDialer(0, nil)
	client, err := dialer.Dial(context.Background(), srv.profile())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRunCommand(t *testing.T) {
	t.Run("captures both streams separately", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return "all good\n", "minor warning\n", 0
		})
		client := dialTestClient(t, srv)

		res, err := runCommand(context.Background(), client, "127.0.0.1", "status", 0)
		require.NoError(t, err)
		assert.Equal(t, "all good\n", res.Stdout)
		assert.Equal(t, "minor warning\n", res.Stderr)
		assert.Equal(t, 0, res.ExitStatus)
		assert.False(t, res.Truncated)
		assert.Greater(t, res.Duration, time.Duration(0))
	})

	t.Run("non-zero exit keeps the captured output", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return "partial\n", "boom\n", 3
		})
		client := dialTestClient(t, srv)

		res, err := runCommand(context.Background(), client, "127.0.0.1", "fail", 0)

		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, NonZeroExit, execErr.Kind)
		assert.Equal(t, 3, execErr.ExitCode)
		assert.Equal(t, 3, res.ExitStatus)
		assert.Equal(t, "partial\n", res.Stdout)
		assert.Equal(t, "boom\n", res.Stderr)
	})

	t.Run("output beyond the cap is dropped, not buffered", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return strings.Repeat("x", 100), "", 0
		})
		client := dialTestClient(t, srv)

		res, err := runCommand(context.Background(), client, "127.0.0.1", "spam", 16)

		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, OutputTruncated, execErr.Kind)
		assert.Equal(t, strings.Repeat("x", 16), res.Stdout)
		assert.True(t, res.Truncated)
		assert.Equal(t, 0, res.ExitStatus)
	})

	t.Run("expired context abandons the wait", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			time.Sleep(500 * time.Millisecond)
			return "too late\n", "", 0
		})
		client := dialTestClient(t, srv)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		res, err := runCommand(ctx, client, "127.0.0.1", "slow", 0)
		elapsed := time.Since(start)

		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, CommandTimeout, execErr.Kind)
		assert.NotNil(t, res)
		assert.Less(t, elapsed, 400*time.Millisecond)
	})
}

func TestReadFile(t *testing.T) {
	t.Run("extra probe line marks truncation", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(command string) (string, string, uint32) {
			if strings.HasPrefix(command, "head -n 4") {
				return "a\nb\nc\nd\n", "", 0
			}
			return "", "unexpected command", 1
		})
		client := dialTestClient(t, srv)

		text, truncated, err := readFile(context.Background(), client, "127.0.0.1", "/var/log/app.log", 3, 0)
		require.NoError(t, err)
		assert.True(t, truncated)
		assert.Equal(t, "a\nb\nc\n", text)
	})

	t.Run("a file exactly at the limit is not truncated", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(command string) (string, string, uint32) {
			if strings.HasPrefix(command, "head -n 4") {
				return "a\nb\nc\n", "", 0
			}
			return "", "unexpected command", 1
		})
		client := dialTestClient(t, srv)

		text, truncated, err := readFile(context.Background(), client, "127.0.0.1", "/var/log/app.log", 3, 0)
		require.NoError(t, err)
		assert.False(t, truncated)
		assert.Equal(t, "a\nb\nc\n", text)
	})

	t.Run("missing file surfaces the remote error text", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return "", "head: cannot open '/nope' for reading\n", 1
		})
		client := dialTestClient(t, srv)

		_, _, err := readFile(context.Background(), client, "127.0.0.1", "/nope", 10, 0)

		var readErr *FileReadError
		require.ErrorAs(t, err, &readErr)
		assert.Equal(t, FileUnreadable, readErr.Kind)
		assert.Equal(t, "/nope", readErr.Path)
		assert.Contains(t, err.Error(), "cannot open")
	})

	t.Run("a line blowing the byte cap means the file is too large", func(t *testing.T) {
		srv := newTestServer(t, "127.0.0.1")
		srv.script(func(string) (string, string, uint32) {
			return strings.Repeat("y", 64), "", 0
		})
		client := dialTestClient(t, srv)

		_, _, err := readFile(context.Background(), client, "127.0.0.1", "/var/log/huge.log", 10, 8)

		var readErr *FileReadError
		require.ErrorAs(t, err, &readErr)
		assert.Equal(t, FileTooLarge, readErr.Kind)
	})
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"plain":             "'plain'",
		"two words":         "'two words'",
		"it's quoted":       `'it'\''s quoted'`,
		"/var/log/app.log":  "'/var/log/app.log'",
		"a;rm -rf /;echo b": "'a;rm -rf /;echo b'",
		"back`tick`":        "'back`tick`'",
		"$HOME":             "'$HOME'",
	}
	for in, want := range cases {
		assert.Equal(t, want, shellQuote(in), "input %q", in)
	}
}

func TestCappedBuffer(t *testing.T) {
	buf := &cappedBuffer{limit: 10}

	n, err := buf.Write([]byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Crossing the limit keeps the prefix and reports the full length so
	// the writer keeps going.
	n, err = buf.Write([]byte("6789ABCDEF"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	out, truncated := buf.snapshot()
	assert.Equal(t, "123456789A", out)
	assert.True(t, truncated)

	// Further writes are swallowed whole.
	_, err = buf.Write([]byte("zzz"))
	require.NoError(t, err)
	out, _ = buf.snapshot()
	assert.Equal(t, "123456789A", out)
}
