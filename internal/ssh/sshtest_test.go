package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"

	"hoptrace/internal/models"
)

const (
	testUser     = "deploy"
	testPassword = "hunter2"
)

type windowSize struct {
	cols uint32
	rows uint32
}

// testServer is a minimal in-process SSH server. Exec requests are answered
// from a scripted handler; shell requests get an echoing pseudo-terminal.
type testServer struct {
	t        *testing.T
	hostname string
	listener net.Listener
	config   *ssh.ServerConfig

	mu      sync.Mutex
	handle  func(command string) (stdout, stderr string, exit uint32)
	resizes []windowSize

	wg sync.WaitGroup
}

// newTestServer starts an SSH server on an ephemeral loopback port. hostname
// is the name the matching profile will dial it under; anything resolving to
// loopback works.
func newTestServer(t *testing.T, hostname string) *testServer {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == testUser && string(password) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("wrong credentials for %q", conn.User())
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() == testUser {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown user %q", conn.User())
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &testServer{
		t:        t,
		hostname: hostname,
		listener: listener,
		config:   config,
		handle: func(string) (string, string, uint32) {
			return "", "command not scripted", 127
		},
	}

	go srv.acceptLoop()
	t.Cleanup(srv.close)
	return srv
}

func (s *testServer) close() {
	s.listener.Close()
	s.wg.Wait()
}

// script replaces the exec handler for commands arriving after the call.
func (s *testServer) script(handle func(command string) (stdout, stderr string, exit uint32)) {
	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
}

func (s *testServer) dispatch(command string) (string, string, uint32) {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	return handle(command)
}

func (s *testServer) recordedResizes() []windowSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]windowSize, len(s.resizes))
	copy(out, s.resizes)
	return out
}

// profile returns a stored-profile view of this server, dialable under the
// hostname given at construction.
func (s *testServer) profile() *models.ServerProfile {
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		s.t.Fatalf("split listener addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return &models.ServerProfile{
		ID:       "srv-" + net.JoinHostPort(s.hostname, portStr),
		Host:     s.hostname,
		Port:     port,
		Username: testUser,
		Secret:   testPassword,
		Status:   models.StatusUnknown,
	}
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *testServer) serveConn(netConn net.Conn) {
	serverConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	defer serverConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveSession(channel, requests)
		}()
	}
}

func (s *testServer) serveSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	shellStarted := false
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			stdout, stderr, exit := s.dispatch(payload.Command)
			if stdout != "" {
				io.WriteString(channel, stdout)
			}
			if stderr != "" {
				io.WriteString(channel.Stderr(), stderr)
			}
			channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{exit}))
			return

		case "pty-req":
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "window-change":
			var payload struct{ Columns, Rows, Width, Height uint32 }
			if err := ssh.Unmarshal(req.Payload, &payload); err == nil {
				s.mu.Lock()
				s.resizes = append(s.resizes, windowSize{cols: payload.Columns, rows: payload.Rows})
				s.mu.Unlock()
			}
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "shell":
			if req.WantReply {
				req.Reply(true, nil)
			}
			if !shellStarted {
				shellStarted = true
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.echoShell(channel)
				}()
			}

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// echoShell banners the session, then echoes input back verbatim. The line
// "exit" ends the session from the remote side.
func (s *testServer) echoShell(channel ssh.Channel) {
	io.WriteString(channel, "ready\n")
	buf := make([]byte, 1024)
	for {
		n, err := channel.Read(buf)
		if n > 0 {
			if strings.Contains(string(buf[:n]), "exit") {
				channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
				channel.Close()
				return
			}
			channel.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
